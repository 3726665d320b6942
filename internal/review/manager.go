package review

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"promptika-bot/internal/database"
	"promptika-bot/internal/database/models"
	"promptika-bot/internal/locales"
	"promptika-bot/internal/pipeline"
	"promptika-bot/pkg/telegoapi"
	"promptika-bot/pkg/tgtext"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// Manager handles review-keyboard callbacks: approve, reject and the
// regeneration menu.
type Manager struct {
	bot      telegoapi.BotAPI
	drafts   database.DraftRepository
	pipeline *pipeline.Pipeline
	botToken string
}

// NewManager creates a review Manager. The bot token is needed to build
// downloadable file URLs for reference images.
func NewManager(bot telegoapi.BotAPI, drafts database.DraftRepository, pl *pipeline.Pipeline, botToken string) (*Manager, error) {
	if bot == nil {
		return nil, fmt.Errorf("review: bot instance is required")
	}
	if drafts == nil {
		return nil, fmt.Errorf("review: draft repository is required")
	}
	if pl == nil {
		return nil, fmt.Errorf("review: pipeline is required")
	}
	return &Manager{bot: bot, drafts: drafts, pipeline: pl, botToken: botToken}, nil
}

// HandleCallback processes a callback query. Returns false when the callback
// data does not belong to the review keyboard.
func (m *Manager) HandleCallback(ctx context.Context, query telego.CallbackQuery) (bool, error) {
	action, draftID, ok := ParseCallback(query.Data)
	if !ok {
		return false, nil
	}

	localizer := locales.NewLocalizer(locales.GetDefaultLanguageTag().String())

	msg, hasMessage := query.Message.(*telego.Message)
	if !hasMessage {
		m.answer(ctx, query.ID, locales.GetMessage(localizer, "MsgErrorGeneral", nil), true)
		return true, fmt.Errorf("review: callback %q has no accessible message", query.Data)
	}

	switch action {
	case ActionApprove:
		return true, m.handleStatusAction(ctx, query.ID, msg, draftID, models.StatusApproved,
			locales.GetMessage(localizer, "MsgReviewApprovedToast", nil),
			locales.GetMessage(localizer, "MsgReviewApproved", map[string]interface{}{"ID": draftID}))
	case ActionReject:
		return true, m.handleStatusAction(ctx, query.ID, msg, draftID, models.StatusRejected,
			locales.GetMessage(localizer, "MsgReviewRejectedToast", nil),
			locales.GetMessage(localizer, "MsgReviewRejected", map[string]interface{}{"ID": draftID}))
	case ActionRegenMenu:
		m.answer(ctx, query.ID, locales.GetMessage(localizer, "MsgReviewRegenChoose", nil), false)
		m.editReplyMarkup(ctx, msg, RegenKeyboard(draftID))
		return true, nil
	case ActionRegenImg, ActionRegenCap, ActionRegenAll:
		return true, m.handleRegenAction(ctx, query.ID, msg, draftID, action, localizer)
	default:
		m.answer(ctx, query.ID, locales.GetMessage(localizer, "MsgReviewUnknownAction", nil), true)
		return true, nil
	}
}

func (m *Manager) handleStatusAction(ctx context.Context, queryID string, msg *telego.Message, draftID int64, status, toast, confirmation string) error {
	err := m.drafts.SetStatus(ctx, draftID, status)
	if err != nil {
		localizer := locales.NewLocalizer(locales.GetDefaultLanguageTag().String())
		if errors.Is(err, database.ErrDraftNotFound) {
			m.answer(ctx, queryID, locales.GetMessage(localizer, "MsgReviewDraftNotFound", nil), true)
			return nil
		}
		m.answer(ctx, queryID, locales.GetMessage(localizer, "MsgErrorGeneral", nil), true)
		return err
	}

	m.answer(ctx, queryID, toast, false)
	m.editReplyMarkup(ctx, msg, nil)
	_, sendErr := m.bot.SendMessage(ctx, tu.Message(tu.ID(msg.Chat.ID), confirmation))
	if sendErr != nil {
		log.Printf("[Review Draft:%d] Failed to send confirmation: %v", draftID, sendErr)
	}
	return nil
}

var regenModes = map[string]string{
	ActionRegenImg: pipeline.ModeImage,
	ActionRegenCap: pipeline.ModeCaption,
	ActionRegenAll: pipeline.ModeAll,
}

func (m *Manager) handleRegenAction(ctx context.Context, queryID string, msg *telego.Message, draftID int64, action string, localizer *i18n.Localizer) error {
	// Answer quickly, otherwise the callback may expire during generation.
	m.answer(ctx, queryID, locales.GetMessage(localizer, "MsgReviewRegenStarted", nil), false)

	referenceURLs := m.referenceImageURLs(ctx, msg)

	result, err := m.pipeline.Regenerate(ctx, draftID, regenModes[action], referenceURLs)
	if err != nil {
		if errors.Is(err, database.ErrDraftNotFound) {
			m.sendText(ctx, msg.Chat.ID, locales.GetMessage(localizer, "MsgReviewDraftNotFound", nil))
			return nil
		}
		sentry.CaptureException(err)
		m.sendText(ctx, msg.Chat.ID, locales.GetMessage(localizer, "MsgErrorGeneral", nil))
		return err
	}

	if !result.Changed {
		// The moderator must learn explicitly that nothing changed.
		m.sendText(ctx, msg.Chat.ID, locales.GetMessage(localizer, "MsgReviewRegenNoChange", nil))
		m.editReplyMarkup(ctx, msg, Keyboard(draftID))
		return nil
	}

	if result.CaptionStale {
		m.sendText(ctx, msg.Chat.ID, locales.GetMessage(localizer, "MsgReviewRegenCaptionStale", nil))
	}

	m.renderReviewMessage(ctx, msg, draftID, localizer)
	return nil
}

// referenceImageURLs builds downloadable URLs for the photo of the current
// review message, used as the reference image for regeneration.
func (m *Manager) referenceImageURLs(ctx context.Context, msg *telego.Message) []string {
	if len(msg.Photo) == 0 {
		return nil
	}
	// The last size is the largest.
	fileID := msg.Photo[len(msg.Photo)-1].FileID
	file, err := m.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		log.Printf("[Review] Failed to resolve reference image file: %v", err)
		return nil
	}
	return []string{fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", m.botToken, file.FilePath)}
}

// renderReviewMessage re-renders the review message with the current draft
// content after a successful regeneration.
func (m *Manager) renderReviewMessage(ctx context.Context, msg *telego.Message, draftID int64, localizer *i18n.Localizer) {
	draft, err := m.drafts.GetByID(ctx, draftID)
	if err != nil {
		m.sendText(ctx, msg.Chat.ID, locales.GetMessage(localizer, "MsgReviewDraftNotFound", nil))
		return
	}

	caption := draft.Caption
	if caption == "" {
		caption = locales.GetMessage(localizer, "MsgReviewEmptyCaption", nil)
	}

	if len(draft.ImagePaths) > 0 {
		photo, err := os.Open(draft.ImagePaths[0])
		if err != nil {
			log.Printf("[Review Draft:%d] Regenerated image missing: %v", draftID, err)
			m.sendText(ctx, msg.Chat.ID, locales.GetMessage(localizer, "MsgErrorGeneral", nil))
			return
		}
		defer photo.Close()

		media := tu.MediaPhoto(tu.File(photo)).
			WithCaption(tgtext.Clip(caption, tgtext.PhotoCaptionLimit)).
			WithParseMode(telego.ModeHTML)
		_, err = m.bot.EditMessageMedia(ctx, &telego.EditMessageMediaParams{
			ChatID:      tu.ID(msg.Chat.ID),
			MessageID:   msg.MessageID,
			Media:       media,
			ReplyMarkup: Keyboard(draftID),
		})
		if err != nil && !isNotModified(err) {
			log.Printf("[Review Draft:%d] Failed to edit review media: %v", draftID, err)
			sentry.CaptureException(err)
		}
		return
	}

	_, err = m.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:      tu.ID(msg.Chat.ID),
		MessageID:   msg.MessageID,
		Text:        tgtext.Clip(caption, tgtext.MessageTextLimit),
		ParseMode:   telego.ModeHTML,
		ReplyMarkup: Keyboard(draftID),
	})
	if err != nil && !isNotModified(err) {
		log.Printf("[Review Draft:%d] Failed to edit review text: %v", draftID, err)
		sentry.CaptureException(err)
	}
}

func (m *Manager) answer(ctx context.Context, queryID, text string, alert bool) {
	err := m.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		log.Printf("[Review] Failed to answer callback query: %v", err)
	}
}

func (m *Manager) sendText(ctx context.Context, chatID int64, text string) {
	if _, err := m.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.Printf("[Review] Failed to send message: %v", err)
	}
}

func (m *Manager) editReplyMarkup(ctx context.Context, msg *telego.Message, markup *telego.InlineKeyboardMarkup) {
	_, err := m.bot.EditMessageReplyMarkup(ctx, &telego.EditMessageReplyMarkupParams{
		ChatID:      tu.ID(msg.Chat.ID),
		MessageID:   msg.MessageID,
		ReplyMarkup: markup,
	})
	if err != nil && !isNotModified(err) {
		log.Printf("[Review] Failed to edit reply markup: %v", err)
	}
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
