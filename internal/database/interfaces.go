package database

import (
	"context"
	"errors"

	"promptika-bot/internal/database/models"
)

// ErrDraftNotFound is returned when a draft is not found.
var ErrDraftNotFound = errors.New("draft not found")

// ErrTokenNotFound is returned when a prompt token is not found.
var ErrTokenNotFound = errors.New("prompt token not found")

// ErrInvalidTransition is returned when a status change would leave a terminal
// state or skip an edge of the draft state machine.
var ErrInvalidTransition = errors.New("invalid draft status transition")

// DraftRepository defines the persistence contract for drafts. It is the only
// writer of draft rows; pipelines never touch storage directly.
type DraftRepository interface {
	// Create inserts a new draft with status pending_review and returns it.
	// If a draft already exists for the same source key, the existing draft
	// is returned instead (idempotent ingest).
	Create(ctx context.Context, draft *models.Draft) (*models.Draft, error)
	GetByID(ctx context.Context, id int64) (*models.Draft, error)
	GetBySource(ctx context.Context, sourceChatID int64, sourceMessageID int) (*models.Draft, error)
	// SetStatus advances the draft state machine, stamping approved_at /
	// published_at / updated_at as appropriate.
	SetStatus(ctx context.Context, id int64, status string) error
	SetReviewMessage(ctx context.Context, id int64, chatID int64, messageID int) error
	// UpdateContent replaces caption, image prompt and image paths in one write.
	UpdateContent(ctx context.Context, id int64, caption, imagePrompt string, imagePaths []string) error
	// ListApprovedUnpublished returns approved drafts that were never
	// published, oldest approval first, then id.
	ListApprovedUnpublished(ctx context.Context, limit int) ([]models.Draft, error)
}

// PromptTokenRepository stores prompt tokens for the resolver API.
type PromptTokenRepository interface {
	Put(ctx context.Context, token, prompt string) error
	Get(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
	Count(ctx context.Context) (int64, error)
	ListPage(ctx context.Context, offset, limit int) ([]models.PromptToken, error)
}

// SettingRepository stores key/value overrides of compiled-in defaults.
type SettingRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) ([]models.Setting, error)
}

// ChannelRepository stores the source-channel allow list.
type ChannelRepository interface {
	List(ctx context.Context) ([]models.Channel, error)
	Add(ctx context.Context, username string) error
	Remove(ctx context.Context, username string) (int64, error)
}

// AdminRepository stores moderator user ids.
type AdminRepository interface {
	List(ctx context.Context) ([]models.Admin, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	Add(ctx context.Context, userID int64) error
	Remove(ctx context.Context, userID int64) (int64, error)
}

// PostLogger defines the interface for logging published posts.
type PostLogger interface {
	LogPublishedPost(ctx context.Context, log models.PostLog) error
}
