package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"promptika-bot/internal/database/models"
)

// PublishTick drains one batch of approved-and-unpublished drafts to the
// destination channel. Each draft is delivered independently: a failure marks
// that draft failed and the tick moves on, so one broken draft never blocks
// the queue. Returns the number of drafts published.
func (p *Pipeline) PublishTick(ctx context.Context) (int, error) {
	if p.deliver == nil {
		return 0, fmt.Errorf("pipeline: no deliverer configured")
	}

	destination := p.resolveSetting(ctx, SettingDestinationChannel, p.cfg.DefaultDestination)
	if destination == "" {
		log.Println("[Publish] DESTINATION_CHANNEL is not set, skipping tick")
		return 0, nil
	}

	drafts, err := p.drafts.ListApprovedUnpublished(ctx, p.cfg.PublishBatchSize)
	if err != nil {
		return 0, err
	}
	if len(drafts) == 0 {
		log.Println("[Publish] Queue empty")
		return 0, nil
	}

	botUsername := p.resolveSetting(ctx, SettingExternalBotUsername, p.cfg.ExternalBotUsername)
	buttonText := p.resolveSetting(ctx, SettingExternalButtonText, p.cfg.ExternalButtonText)

	published := 0
	for _, draft := range drafts {
		messageID, err := p.deliver.Deliver(ctx, DeliveryParams{
			Destination: destination,
			Caption:     draft.Caption,
			ImagePaths:  draft.ImagePaths,
			Token:       TokenFor(draft.ID),
			BotUsername: botUsername,
			ButtonText:  buttonText,
		})
		if err != nil {
			log.Printf("[Publish Draft:%d] Delivery failed: %v", draft.ID, err)
			p.report(err)
			if statusErr := p.drafts.SetStatus(ctx, draft.ID, models.StatusFailed); statusErr != nil {
				log.Printf("[Publish Draft:%d] Failed to mark draft failed: %v", draft.ID, statusErr)
				p.report(statusErr)
			}
			continue
		}

		if err := p.drafts.SetStatus(ctx, draft.ID, models.StatusPublished); err != nil {
			log.Printf("[Publish Draft:%d] Published but status update failed: %v", draft.ID, err)
			p.report(err)
			continue
		}
		published++

		if p.postLog != nil {
			entry := models.PostLog{
				DraftID:       draft.ID,
				Caption:       draft.Caption,
				ImageCount:    len(draft.ImagePaths),
				Destination:   destination,
				ChannelPostID: messageID,
				PublishedAt:   time.Now().UTC(),
			}
			if err := p.postLog.LogPublishedPost(ctx, entry); err != nil {
				log.Printf("[Publish Draft:%d] Failed to write post log: %v", draft.ID, err)
			}
		}
	}

	log.Printf("[Publish] Tick finished: published=%d of %d", published, len(drafts))
	return published, nil
}
