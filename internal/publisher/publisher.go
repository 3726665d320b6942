// Package publisher delivers finished drafts to the destination channel.
package publisher

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"promptika-bot/internal/pipeline"
	"promptika-bot/pkg/deeplink"
	"promptika-bot/pkg/telegoapi"
	"promptika-bot/pkg/tgtext"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/ratelimit"
)

// ChannelPublisher sends posts to a destination channel. Sends are rate
// limited to stay under the Bot API flood limits.
type ChannelPublisher struct {
	bot         telegoapi.BotAPI
	ratelimiter ratelimit.Limiter
}

// New creates a ChannelPublisher.
func New(bot telegoapi.BotAPI) (*ChannelPublisher, error) {
	if bot == nil {
		return nil, fmt.Errorf("publisher: bot instance is required")
	}
	return &ChannelPublisher{
		bot:         bot,
		ratelimiter: ratelimit.New(20),
	}, nil
}

// chatID accepts both @username strings and numeric chat ids.
func chatID(destination string) telego.ChatID {
	dest := strings.TrimSpace(destination)
	if id, err := strconv.ParseInt(dest, 10, 64); err == nil {
		return telego.ChatID{ID: id}
	}
	if !strings.HasPrefix(dest, "@") {
		dest = "@" + dest
	}
	return telego.ChatID{Username: dest}
}

// Deliver publishes one draft: the first image with the caption as the primary
// message, the full text as a follow-up when the caption exceeds the photo
// limit, and the remaining images as replies. Returns the id of the primary
// channel message.
func (p *ChannelPublisher) Deliver(ctx context.Context, params pipeline.DeliveryParams) (int, error) {
	dest := chatID(params.Destination)
	url := deeplink.BotStartURL(params.BotUsername, params.Token)
	markup := tu.InlineKeyboard(tu.InlineKeyboardRow(
		tu.InlineKeyboardButton(params.ButtonText).WithURL(url),
	))

	if len(params.ImagePaths) == 0 {
		return p.deliverTextOnly(ctx, dest, params.Caption, markup)
	}

	caption, overflow, parseMode := tgtext.PreparePhotoCaption(params.Caption)

	photo, err := os.Open(params.ImagePaths[0])
	if err != nil {
		return 0, fmt.Errorf("publisher: failed to open image %s: %w", params.ImagePaths[0], err)
	}
	defer photo.Close()

	p.ratelimiter.Take()
	msg, err := p.bot.SendPhoto(ctx, &telego.SendPhotoParams{
		ChatID:      dest,
		Photo:       tu.File(photo),
		Caption:     caption,
		ParseMode:   parseMode,
		ReplyMarkup: markup,
	})
	if err != nil {
		return 0, fmt.Errorf("publisher: failed to send photo: %w", err)
	}

	// The clipped caption loses text; deliver the full version as a reply.
	if overflow != "" {
		for _, chunk := range tgtext.ChunkText(overflow, tgtext.MessageTextLimit) {
			p.ratelimiter.Take()
			_, err := p.bot.SendMessage(ctx, &telego.SendMessageParams{
				ChatID:          dest,
				Text:            chunk,
				ReplyParameters: &telego.ReplyParameters{MessageID: msg.MessageID},
			})
			if err != nil {
				log.Printf("[Publisher] Failed to send full caption follow-up: %v", err)
				break
			}
		}
	}

	for _, path := range params.ImagePaths[1:] {
		if err := p.sendExtraPhoto(ctx, dest, path, msg.MessageID); err != nil {
			log.Printf("[Publisher] Failed to send extra photo %s: %v", path, err)
		}
	}

	return msg.MessageID, nil
}

func (p *ChannelPublisher) deliverTextOnly(ctx context.Context, dest telego.ChatID, caption string, markup *telego.InlineKeyboardMarkup) (int, error) {
	chunks := tgtext.ChunkText(caption, tgtext.MessageTextLimit)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("publisher: nothing to send")
	}

	firstID := 0
	for i, chunk := range chunks {
		msgParams := &telego.SendMessageParams{
			ChatID:    dest,
			Text:      chunk,
			ParseMode: telego.ModeHTML,
		}
		if i == 0 {
			msgParams.ReplyMarkup = markup
		}
		p.ratelimiter.Take()
		msg, err := p.bot.SendMessage(ctx, msgParams)
		if err != nil {
			if i == 0 {
				return 0, fmt.Errorf("publisher: failed to send message: %w", err)
			}
			log.Printf("[Publisher] Failed to send text chunk %d: %v", i+1, err)
			break
		}
		if i == 0 {
			firstID = msg.MessageID
		}
	}
	return firstID, nil
}

func (p *ChannelPublisher) sendExtraPhoto(ctx context.Context, dest telego.ChatID, path string, replyTo int) error {
	photo, err := os.Open(path)
	if err != nil {
		return err
	}
	defer photo.Close()

	p.ratelimiter.Take()
	_, err = p.bot.SendPhoto(ctx, &telego.SendPhotoParams{
		ChatID:          dest,
		Photo:           tu.File(photo),
		ReplyParameters: &telego.ReplyParameters{MessageID: replyTo},
	})
	return err
}
