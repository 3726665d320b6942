package handlers

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"promptika-bot/internal/locales"
	"promptika-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// HandleStart handles the /start command. It registers the bot commands and
// sends the welcome message.
func (h *MessageHandler) HandleStart(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if err := h.setupCommands(ctx, bot); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("failed to set up commands: %w", err))
	}

	localizer := h.getLocalizer(message.From)
	return h.sendReply(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgStart", nil))
}

// HandleChannels handles the /channels command: lists the source allow list.
func (h *MessageHandler) HandleChannels(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if ok, err := h.requireAdmin(ctx, bot, message); !ok {
		return err
	}
	localizer := h.getLocalizer(message.From)

	list, err := h.channelRepo.List(ctx)
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("failed to list channels: %w", err))
	}
	if len(list) == 0 {
		return h.sendReply(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgChannelsEmpty", nil))
	}

	var b strings.Builder
	b.WriteString(locales.GetMessage(localizer, "MsgChannelsHeader", nil))
	for _, ch := range list {
		b.WriteString("\n@" + ch.Username)
	}
	return h.sendReply(ctx, bot, message.Chat.ID, b.String())
}

// HandleAddChannel handles /addchannel <username>.
func (h *MessageHandler) HandleAddChannel(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if ok, err := h.requireAdmin(ctx, bot, message); !ok {
		return err
	}
	localizer := h.getLocalizer(message.From)

	username := commandArg(message.Text)
	if username == "" {
		return h.sendReply(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgUsageAddChannel", nil))
	}
	username = strings.ToLower(strings.TrimPrefix(username, "@"))

	if err := h.channelRepo.Add(ctx, username); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("failed to add channel %q: %w", username, err))
	}
	if h.channelCache != nil {
		h.channelCache.Invalidate()
	}
	return h.sendReply(ctx, bot, message.Chat.ID,
		locales.GetMessage(localizer, "MsgChannelAdded", map[string]interface{}{"Username": username}))
}

// HandleDelChannel handles /delchannel <username>.
func (h *MessageHandler) HandleDelChannel(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if ok, err := h.requireAdmin(ctx, bot, message); !ok {
		return err
	}
	localizer := h.getLocalizer(message.From)

	username := commandArg(message.Text)
	if username == "" {
		return h.sendReply(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgUsageDelChannel", nil))
	}
	username = strings.ToLower(strings.TrimPrefix(username, "@"))

	removed, err := h.channelRepo.Remove(ctx, username)
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("failed to remove channel %q: %w", username, err))
	}
	if removed == 0 {
		return h.sendReply(ctx, bot, message.Chat.ID,
			locales.GetMessage(localizer, "MsgChannelNotFound", map[string]interface{}{"Username": username}))
	}
	if h.channelCache != nil {
		h.channelCache.Invalidate()
	}
	return h.sendReply(ctx, bot, message.Chat.ID,
		locales.GetMessage(localizer, "MsgChannelRemoved", map[string]interface{}{"Username": username}))
}

// HandleSettings handles /settings: shows stored overrides of compiled-in
// defaults.
func (h *MessageHandler) HandleSettings(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if ok, err := h.requireAdmin(ctx, bot, message); !ok {
		return err
	}
	localizer := h.getLocalizer(message.From)

	settings, err := h.settingsRepo.All(ctx)
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("failed to list settings: %w", err))
	}
	if len(settings) == 0 {
		return h.sendReply(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgSettingsEmpty", nil))
	}

	var b strings.Builder
	b.WriteString(locales.GetMessage(localizer, "MsgSettingsHeader", nil))
	for _, s := range settings {
		b.WriteString(fmt.Sprintf("\n%s = %s", s.Key, s.Value))
	}
	return h.sendReply(ctx, bot, message.Chat.ID, b.String())
}

// HandleSet handles /set <KEY> <value>. The value may contain spaces.
func (h *MessageHandler) HandleSet(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if ok, err := h.requireAdmin(ctx, bot, message); !ok {
		return err
	}
	localizer := h.getLocalizer(message.From)

	parts := strings.SplitN(strings.TrimSpace(message.Text), " ", 3)
	if len(parts) < 3 || strings.TrimSpace(parts[1]) == "" || strings.TrimSpace(parts[2]) == "" {
		return h.sendReply(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgUsageSet", nil))
	}
	key := strings.ToUpper(strings.TrimSpace(parts[1]))
	value := strings.TrimSpace(parts[2])

	if err := h.settingsRepo.Set(ctx, key, value); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("failed to save setting %q: %w", key, err))
	}
	return h.sendReply(ctx, bot, message.Chat.ID,
		locales.GetMessage(localizer, "MsgSettingSaved", map[string]interface{}{"Key": key}))
}

// HandleAddAdmin handles /addadmin <user_id>.
func (h *MessageHandler) HandleAddAdmin(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if ok, err := h.requireAdmin(ctx, bot, message); !ok {
		return err
	}
	localizer := h.getLocalizer(message.From)

	userID, err := strconv.ParseInt(commandArg(message.Text), 10, 64)
	if err != nil {
		return h.sendReply(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgUsageAddAdmin", nil))
	}

	if err := h.adminRepo.Add(ctx, userID); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("failed to add admin %d: %w", userID, err))
	}
	return h.sendReply(ctx, bot, message.Chat.ID,
		locales.GetMessage(localizer, "MsgAdminAdded", map[string]interface{}{"ID": userID}))
}

// HandleDelAdmin handles /deladmin <user_id>.
func (h *MessageHandler) HandleDelAdmin(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if ok, err := h.requireAdmin(ctx, bot, message); !ok {
		return err
	}
	localizer := h.getLocalizer(message.From)

	userID, err := strconv.ParseInt(commandArg(message.Text), 10, 64)
	if err != nil {
		return h.sendReply(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgUsageDelAdmin", nil))
	}

	removed, err := h.adminRepo.Remove(ctx, userID)
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("failed to remove admin %d: %w", userID, err))
	}
	msgID := "MsgAdminRemoved"
	if removed == 0 {
		msgID = "MsgAdminNotFound"
	}
	return h.sendReply(ctx, bot, message.Chat.ID,
		locales.GetMessage(localizer, msgID, map[string]interface{}{"ID": userID}))
}

// commandArg returns the first argument of a command message, or "".
func commandArg(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

// setupCommands registers the bot's commands with Telegram using localized
// descriptions.
func (h *MessageHandler) setupCommands(ctx context.Context, bot telegoapi.BotAPI) error {
	if len(h.commands) == 0 {
		log.Println("No commands defined in handler, skipping SetMyCommands.")
		return nil
	}

	localizer := locales.NewLocalizer(locales.GetDefaultLanguageTag().String())

	commands := make([]telego.BotCommand, 0, len(h.commands))
	for _, cmd := range h.commands {
		commands = append(commands, telego.BotCommand{
			Command:     cmd.Command,
			Description: locales.GetMessage(localizer, cmd.Description, nil),
		})
	}

	err := bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: commands})
	if err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	log.Printf("Successfully set %d bot commands.", len(commands))
	return nil
}
