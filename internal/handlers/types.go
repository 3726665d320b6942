package handlers

import (
	"context"
	"fmt"

	"promptika-bot/internal/auth"
	"promptika-bot/internal/channels"
	"promptika-bot/internal/database"
	"promptika-bot/internal/pipeline"
	"promptika-bot/internal/review"
	"promptika-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// Command maps a command string to its description key and handler function.
type Command struct {
	Command     string
	Description string // message id of the localized description
	Handler     func(context.Context, telegoapi.BotAPI, telego.Message) error
}

// MessageHandler handles incoming Telegram messages: forwarded channel posts
// from the watcher account and moderator commands.
type MessageHandler struct {
	reviewChatID    int64
	watcherSenderID int64
	botToken        string

	commands []Command

	drafts       database.DraftRepository
	settingsRepo database.SettingRepository
	channelRepo  database.ChannelRepository
	adminRepo    database.AdminRepository

	pipeline     *pipeline.Pipeline
	notifier     *review.Notifier
	channelCache *channels.Cache
	adminChecker *auth.AdminChecker
}

// NewMessageHandler creates and initializes a new MessageHandler instance.
func NewMessageHandler(
	reviewChatID int64,
	watcherSenderID int64,
	botToken string,
	drafts database.DraftRepository,
	settingsRepo database.SettingRepository,
	channelRepo database.ChannelRepository,
	adminRepo database.AdminRepository,
	pl *pipeline.Pipeline,
	notifier *review.Notifier,
	channelCache *channels.Cache,
	adminChecker *auth.AdminChecker,
) (*MessageHandler, error) {
	if drafts == nil {
		return nil, fmt.Errorf("handlers: draft repository is required")
	}
	if pl == nil {
		return nil, fmt.Errorf("handlers: pipeline is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("handlers: review notifier is required")
	}
	if adminChecker == nil {
		return nil, fmt.Errorf("handlers: admin checker is required")
	}
	h := &MessageHandler{
		reviewChatID:    reviewChatID,
		watcherSenderID: watcherSenderID,
		botToken:        botToken,
		drafts:          drafts,
		settingsRepo:    settingsRepo,
		channelRepo:     channelRepo,
		adminRepo:       adminRepo,
		pipeline:        pl,
		notifier:        notifier,
		channelCache:    channelCache,
		adminChecker:    adminChecker,
	}
	h.commands = []Command{
		{Command: "start", Description: "CmdStartDesc", Handler: h.HandleStart},
		{Command: "channels", Description: "CmdChannelsDesc", Handler: h.HandleChannels},
		{Command: "addchannel", Description: "CmdAddChannelDesc", Handler: h.HandleAddChannel},
		{Command: "delchannel", Description: "CmdDelChannelDesc", Handler: h.HandleDelChannel},
		{Command: "settings", Description: "CmdSettingsDesc", Handler: h.HandleSettings},
		{Command: "set", Description: "CmdSetDesc", Handler: h.HandleSet},
		{Command: "addadmin", Description: "CmdAddAdminDesc", Handler: h.HandleAddAdmin},
		{Command: "deladmin", Description: "CmdDelAdminDesc", Handler: h.HandleDelAdmin},
	}
	return h, nil
}

// GetCommandHandler retrieves the handler for a command string (e.g. "start").
// It returns nil if the command is not found.
func (h *MessageHandler) GetCommandHandler(command string) func(context.Context, telegoapi.BotAPI, telego.Message) error {
	for _, cmd := range h.commands {
		if cmd.Command == command {
			return cmd.Handler
		}
	}
	return nil
}
