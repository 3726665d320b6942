package handlers

import (
	"context"
	"errors"
	"log"

	"promptika-bot/internal/locales"
	"promptika-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// sendReply sends a text reply to the user. Delivery failures are logged,
// not returned, so a flaky send does not look like a handler failure.
func (h *MessageHandler) sendReply(ctx context.Context, bot telegoapi.BotAPI, chatID int64, text string) error {
	_, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	if err != nil {
		log.Printf("Error sending message to chat %d: %v", chatID, err)
	}
	return nil
}

// sendError sends a localized generic error message and returns the original
// error for the update loop to report.
func (h *MessageHandler) sendError(ctx context.Context, bot telegoapi.BotAPI, chatID int64, originalErr error) error {
	log.Printf("Error for user in chat %d: %v", chatID, originalErr)

	localizer := locales.NewLocalizer(locales.GetDefaultLanguageTag().String())
	errMsg := locales.GetMessage(localizer, "MsgErrorGeneral", nil)

	_, sendErr := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), errMsg))
	if sendErr != nil {
		log.Printf("Error sending generic error message to chat %d: %v", chatID, sendErr)
	}
	return originalErr
}

// getLocalizer picks a localizer for the user, falling back to the default
// language when the user has no language code.
func (h *MessageHandler) getLocalizer(user *telego.User) *i18n.Localizer {
	lang := locales.GetDefaultLanguageTag().String()
	if user != nil && user.LanguageCode != "" {
		lang = user.LanguageCode
	}
	return locales.NewLocalizer(lang, locales.GetDefaultLanguageTag().String())
}

// requireAdmin checks admin status and notifies the user when denied. The
// returned bool tells the caller whether to proceed.
func (h *MessageHandler) requireAdmin(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) (bool, error) {
	if message.From == nil {
		return false, nil
	}
	isAdmin, err := h.adminChecker.IsAdmin(ctx, message.From.ID)
	if err != nil {
		// Lookup errors already degrade to non-admin inside the checker.
		isAdmin = false
	}
	if !isAdmin {
		log.Printf("[Cmd User:%d] Non-admin attempted an admin command.", message.From.ID)
		localizer := h.getLocalizer(message.From)
		msg := locales.GetMessage(localizer, "MsgErrorRequiresAdmin", nil)
		return false, h.sendError(ctx, bot, message.Chat.ID, errors.New(msg))
	}
	return true, nil
}
