package handlers

import (
	"context"
	"fmt"
	"log"

	"promptika-bot/internal/locales"
	"promptika-bot/internal/pipeline"
	"promptika-bot/pkg/telegoapi"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
)

// HandleMessage processes a non-command private message. Forwarded channel
// posts become drafts; everything else is ignored. Returns true when the
// message was consumed.
func (h *MessageHandler) HandleMessage(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) (bool, error) {
	if message.Chat.Type != telego.ChatTypePrivate || message.From == nil {
		return false, nil
	}

	origin, ok := message.ForwardOrigin.(*telego.MessageOriginChannel)
	if !ok {
		return false, nil
	}

	userID := message.From.ID
	if !h.mayIngest(ctx, userID) {
		log.Printf("[Ingest User:%d] Sender is neither the watcher account nor an admin, ignoring forward.", userID)
		return false, nil
	}

	if h.channelCache != nil {
		if err := h.channelCache.RefreshIfStale(ctx); err != nil {
			log.Printf("[Ingest User:%d] Failed to refresh channel allow list: %v", userID, err)
		}
		if !h.channelCache.Allowed(origin.Chat.Username) {
			log.Printf("[Ingest User:%d] Channel @%s is not on the allow list, ignoring forward.", userID, origin.Chat.Username)
			return false, nil
		}
	}

	text := message.Text
	if text == "" {
		text = message.Caption
	}

	localizer := h.getLocalizer(message.From)

	draftID, err := h.pipeline.Ingest(ctx, pipeline.IngestParams{
		SourceChatID:    origin.Chat.ID,
		SourceMessageID: origin.MessageID,
		OriginalText:    text,
		SourceImageURLs: h.photoURLs(ctx, bot, message),
	})
	if err != nil {
		sentry.CaptureException(err)
		h.sendReply(ctx, bot, message.Chat.ID,
			locales.GetMessage(localizer, "MsgIngestFailed", map[string]interface{}{"Error": err.Error()}))
		return true, err
	}

	if err := h.notifyReview(ctx, draftID); err != nil {
		log.Printf("[Ingest Draft:%d] Failed to send review message: %v", draftID, err)
		sentry.CaptureException(err)
	}

	return true, h.sendReply(ctx, bot, message.Chat.ID,
		locales.GetMessage(localizer, "MsgIngestAccepted", map[string]interface{}{"ID": draftID}))
}

// mayIngest allows the configured watcher account and admins to submit posts.
func (h *MessageHandler) mayIngest(ctx context.Context, userID int64) bool {
	if h.watcherSenderID != 0 && userID == h.watcherSenderID {
		return true
	}
	isAdmin, err := h.adminChecker.IsAdmin(ctx, userID)
	if err != nil {
		return false
	}
	return isAdmin
}

// photoURLs builds downloadable URLs for the photos of the forwarded message.
// Only the largest size of the photo is used.
func (h *MessageHandler) photoURLs(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) []string {
	if len(message.Photo) == 0 {
		return nil
	}
	fileID := message.Photo[len(message.Photo)-1].FileID
	file, err := bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		log.Printf("[Ingest] Failed to resolve photo file %s: %v", fileID, err)
		return nil
	}
	return []string{fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", h.botToken, file.FilePath)}
}

// notifyReview posts the freshly created draft to the review chat and records
// the review message id on the draft.
func (h *MessageHandler) notifyReview(ctx context.Context, draftID int64) error {
	draft, err := h.drafts.GetByID(ctx, draftID)
	if err != nil {
		return fmt.Errorf("failed to load draft %d: %w", draftID, err)
	}
	if draft.ReviewMessageID != 0 {
		// Already announced, e.g. a duplicate forward of the same post.
		return nil
	}

	messageID, err := h.notifier.SendDraft(ctx, h.reviewChatID, draft)
	if err != nil {
		return fmt.Errorf("failed to send draft %d for review: %w", draftID, err)
	}
	if err := h.drafts.SetReviewMessage(ctx, draftID, h.reviewChatID, messageID); err != nil {
		return fmt.Errorf("failed to record review message for draft %d: %w", draftID, err)
	}
	return nil
}
