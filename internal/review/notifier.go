package review

import (
	"context"
	"fmt"
	"log"
	"os"

	"promptika-bot/internal/database/models"
	"promptika-bot/internal/locales"
	"promptika-bot/pkg/telegoapi"
	"promptika-bot/pkg/tgtext"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Notifier sends drafts into the review chat.
type Notifier struct {
	bot telegoapi.BotAPI
}

// NewNotifier creates a Notifier.
func NewNotifier(bot telegoapi.BotAPI) (*Notifier, error) {
	if bot == nil {
		return nil, fmt.Errorf("review: bot instance is required")
	}
	return &Notifier{bot: bot}, nil
}

// SendDraft posts the draft content with the review keyboard into chatID and
// returns the id of the sent message, so the draft can link back to it.
func (n *Notifier) SendDraft(ctx context.Context, chatID int64, draft *models.Draft) (int, error) {
	if chatID == 0 {
		return 0, fmt.Errorf("review: review chat id is not set")
	}

	caption := draft.Caption
	if caption == "" {
		localizer := locales.NewLocalizer(locales.GetDefaultLanguageTag().String())
		caption = locales.GetMessage(localizer, "MsgReviewEmptyCaption", nil)
	}

	if len(draft.ImagePaths) > 0 {
		path := draft.ImagePaths[0]
		photo, err := os.Open(path)
		if err != nil {
			log.Printf("[Review Draft:%d] Image missing, sending text only: %v", draft.ID, err)
		} else {
			defer photo.Close()
			msg, err := n.bot.SendPhoto(ctx, &telego.SendPhotoParams{
				ChatID:      tu.ID(chatID),
				Photo:       tu.File(photo),
				Caption:     tgtext.Clip(caption, tgtext.PhotoCaptionLimit),
				ParseMode:   telego.ModeHTML,
				ReplyMarkup: Keyboard(draft.ID),
			})
			if err != nil {
				return 0, fmt.Errorf("review: failed to send draft photo: %w", err)
			}
			return msg.MessageID, nil
		}
	}

	msg, err := n.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:      tu.ID(chatID),
		Text:        tgtext.Clip(caption, tgtext.MessageTextLimit),
		ParseMode:   telego.ModeHTML,
		ReplyMarkup: Keyboard(draft.ID),
	})
	if err != nil {
		return 0, fmt.Errorf("review: failed to send draft message: %w", err)
	}
	return msg.MessageID, nil
}
