// Package pipeline implements the draft lifecycle: ingest of forwarded posts,
// selective regeneration, and scheduled publishing of approved drafts.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"promptika-bot/internal/database"
	"promptika-bot/internal/kie"
	"promptika-bot/internal/rewriter"
)

// Setting keys that can be overridden in the database.
const (
	SettingKieRegenTemplate    = "KIE_REGEN_TEMPLATE"
	SettingRewriteTemplate     = "REWRITE_TEMPLATE"
	SettingDestinationChannel  = "DESTINATION_CHANNEL"
	SettingExternalBotUsername = "EXTERNAL_BOT_USERNAME"
	SettingExternalButtonText  = "EXTERNAL_BUTTON_TEXT"
)

// ImageGenerator produces images for a prompt. Implemented by kie.Client.
type ImageGenerator interface {
	Generate(ctx context.Context, params kie.GenerateParams) ([]string, error)
}

// CaptionGenerator produces captions and prompts. Implemented by
// rewriter.Rewriter.
type CaptionGenerator interface {
	CaptionFromImage(ctx context.Context, imageBytes []byte, mime, originalText, template string) (rewriter.Result, error)
	RewriteTextOnly(ctx context.Context, originalText string) (rewriter.Result, error)
}

// DeliveryParams describes one post delivery to the destination channel.
type DeliveryParams struct {
	Destination string
	Caption     string
	ImagePaths  []string
	Token       string
	BotUsername string
	ButtonText  string
}

// Deliverer sends a finished post to the destination channel and returns the
// id of the primary channel message.
type Deliverer interface {
	Deliver(ctx context.Context, params DeliveryParams) (int, error)
}

// ErrorReporter forwards unexpected errors to error tracking. Matches
// sentry.CaptureException.
type ErrorReporter func(err error)

// Config carries the compiled-in defaults the pipeline falls back to when no
// database override exists.
type Config struct {
	MediaDir           string
	KieRegenTemplate   string
	RewriteTemplate    string
	DefaultDestination string
	PublishBatchSize   int
	// EmptyCaptionPlaceholder is the caption of last resort when every
	// generator failed and the source post had no text. The caller supplies
	// the localized string; the pipeline itself carries no presentation text.
	EmptyCaptionPlaceholder string
	ExternalBotUsername     string
	ExternalButtonText      string
}

// Pipeline orchestrates the image generator, the caption generator and the
// draft store. It owns every persistence step; the generators are stateless
// collaborators.
type Pipeline struct {
	drafts   database.DraftRepository
	tokens   database.PromptTokenRepository
	settings database.SettingRepository
	postLog  database.PostLogger
	images   ImageGenerator
	captions CaptionGenerator
	deliver  Deliverer
	report   ErrorReporter
	cfg      Config
}

// New creates a Pipeline. The deliverer and post logger are only needed for
// publishing and may be nil in ingest-only contexts such as tests.
func New(
	drafts database.DraftRepository,
	tokens database.PromptTokenRepository,
	settings database.SettingRepository,
	postLog database.PostLogger,
	images ImageGenerator,
	captions CaptionGenerator,
	deliver Deliverer,
	report ErrorReporter,
	cfg Config,
) (*Pipeline, error) {
	if drafts == nil {
		return nil, fmt.Errorf("pipeline: draft repository is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("pipeline: prompt token repository is required")
	}
	if settings == nil {
		return nil, fmt.Errorf("pipeline: setting repository is required")
	}
	if images == nil {
		return nil, fmt.Errorf("pipeline: image generator is required")
	}
	if captions == nil {
		return nil, fmt.Errorf("pipeline: caption generator is required")
	}
	if report == nil {
		report = func(error) {}
	}
	if cfg.PublishBatchSize <= 0 {
		cfg.PublishBatchSize = 1
	}
	if cfg.EmptyCaptionPlaceholder == "" {
		return nil, fmt.Errorf("pipeline: empty caption placeholder is required")
	}
	return &Pipeline{
		drafts:   drafts,
		tokens:   tokens,
		settings: settings,
		postLog:  postLog,
		images:   images,
		captions: captions,
		deliver:  deliver,
		report:   report,
		cfg:      cfg,
	}, nil
}

// TokenFor returns the prompt token for a draft id.
func TokenFor(draftID int64) string {
	return fmt.Sprintf("p_%d", draftID)
}

// resolveSetting returns the database override for key, falling back to the
// compiled-in default. Setting reads are best-effort: a storage error only
// means the default wins.
func (p *Pipeline) resolveSetting(ctx context.Context, key, fallback string) string {
	value, err := p.settings.Get(ctx, key)
	if err != nil {
		log.Printf("[Settings Key:%s] Read failed, using default: %v", key, err)
		return fallback
	}
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func (p *Pipeline) draftDir(sourceChatID int64, sourceMessageID int, regen bool) string {
	name := fmt.Sprintf("draft_%d_%d", sourceChatID, sourceMessageID)
	if regen {
		name += "_regen"
	}
	return filepath.Join(p.cfg.MediaDir, name)
}

// mimeForPath guesses the image mime type by extension. Generated artifacts
// are png unless the provider was asked for jpeg.
func mimeForPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return "image/png"
	}
	return "image/jpeg"
}
