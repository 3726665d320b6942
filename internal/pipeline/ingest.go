package pipeline

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"

	"promptika-bot/internal/database"
	"promptika-bot/internal/database/models"
	"promptika-bot/internal/kie"
	"promptika-bot/internal/rewriter"
)

// IngestParams identifies and describes one forwarded source post.
type IngestParams struct {
	SourceChatID    int64
	SourceMessageID int
	OriginalText    string
	// SourceImageURLs are publicly fetchable photo URLs of the source post,
	// passed to the image model as references.
	SourceImageURLs []string
}

// Ingest builds a draft from a forwarded channel post and returns its id.
//
// The call is idempotent per source key: a second ingest of the same post
// returns the existing draft id without touching the external services. AI
// failures never abort the ingest; image generation degrades to no image and
// caption generation degrades down to the raw original text, so a draft with
// a non-empty caption is always produced.
func (p *Pipeline) Ingest(ctx context.Context, params IngestParams) (int64, error) {
	if existing, err := p.drafts.GetBySource(ctx, params.SourceChatID, params.SourceMessageID); err == nil {
		log.Printf("[Ingest Chat:%d Msg:%d] Draft %d already exists, skipping", params.SourceChatID, params.SourceMessageID, existing.ID)
		return existing.ID, nil
	} else if !errors.Is(err, database.ErrDraftNotFound) {
		return 0, err
	}

	originalText := strings.TrimSpace(params.OriginalText)
	log.Printf("[Ingest Chat:%d Msg:%d] Start images=%d text_len=%d",
		params.SourceChatID, params.SourceMessageID, len(params.SourceImageURLs), len(originalText))

	imagePaths := p.generateImage(ctx, originalText, params.SourceImageURLs,
		p.draftDir(params.SourceChatID, params.SourceMessageID, false))

	caption, prompt := p.generateCaption(ctx, originalText, imagePaths)

	draft, err := p.drafts.Create(ctx, &models.Draft{
		SourceChatID:    params.SourceChatID,
		SourceMessageID: params.SourceMessageID,
		OriginalText:    originalText,
		Caption:         caption,
		ImagePrompt:     prompt,
		ImagePaths:      imagePaths,
	})
	if err != nil {
		return 0, err
	}

	if err := p.tokens.Put(ctx, TokenFor(draft.ID), draft.ImagePrompt); err != nil {
		log.Printf("[Ingest Draft:%d] Failed to store prompt token: %v", draft.ID, err)
		p.report(err)
	}

	log.Printf("[Ingest Chat:%d Msg:%d] Draft %d created token=%s images=%d",
		params.SourceChatID, params.SourceMessageID, draft.ID, TokenFor(draft.ID), len(draft.ImagePaths))
	return draft.ID, nil
}

// generateImage runs the image model for exactly one image. Best-effort: any
// failure, including credit exhaustion, degrades to an empty path list.
func (p *Pipeline) generateImage(ctx context.Context, originalText string, referenceURLs []string, outDir string) []string {
	template := p.resolveSetting(ctx, SettingKieRegenTemplate, p.cfg.KieRegenTemplate)
	prompt := rewriter.FormatTemplate(template, originalText)

	paths, err := p.images.Generate(ctx, kie.GenerateParams{
		Prompt:    prompt,
		OutDir:    outDir,
		Count:     1,
		ImageURLs: referenceURLs,
	})
	if err != nil {
		var credits *kie.InsufficientCreditsError
		if errors.As(err, &credits) {
			log.Printf("[Ingest] KIE credits insufficient: %v", err)
		} else {
			log.Printf("[Ingest] KIE generate failed: %v", err)
			p.report(err)
		}
		return nil
	}
	if len(paths) > 1 {
		paths = paths[:1]
	}
	return paths
}

// generateCaption produces the caption/prompt pair with the full degradation
// chain: image-based, then text-only, then the raw original text.
func (p *Pipeline) generateCaption(ctx context.Context, originalText string, imagePaths []string) (caption, prompt string) {
	if len(imagePaths) > 0 {
		template := p.resolveSetting(ctx, SettingRewriteTemplate, p.cfg.RewriteTemplate)
		result, err := p.captionFromFile(ctx, imagePaths[0], originalText, template)
		if err == nil {
			return result.Caption, result.PromptikaPrompt
		}
		log.Printf("[Ingest] Caption from image failed, falling back to text-only: %v", err)
		p.report(err)
	}

	result, err := p.captions.RewriteTextOnly(ctx, originalText)
	if err == nil {
		return result.Caption, result.PromptikaPrompt
	}
	log.Printf("[Ingest] Text-only caption failed, using original text: %v", err)
	p.report(err)

	// Absolute fallback: the pipeline never produces an empty caption.
	caption = originalText
	if caption == "" {
		caption = p.cfg.EmptyCaptionPlaceholder
	}
	return caption, originalText
}

func (p *Pipeline) captionFromFile(ctx context.Context, imagePath, originalText, template string) (rewriter.Result, error) {
	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		return rewriter.Result{}, err
	}
	return p.captions.CaptionFromImage(ctx, imageBytes, mimeForPath(imagePath), originalText, template)
}
