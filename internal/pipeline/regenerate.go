package pipeline

import (
	"context"
	"log"

	"promptika-bot/internal/kie"
	"promptika-bot/internal/rewriter"
)

// Regen modes select which stages to re-run on an existing draft.
const (
	ModeImage   = "image"
	ModeCaption = "caption"
	ModeAll     = "all"
)

// RegenResult reports the outcome of a regeneration call.
type RegenResult struct {
	// Changed is true when anything was persisted.
	Changed bool
	// CaptionStale is true when mode "all" persisted a fresh image but the
	// caption stage failed, leaving the old caption alongside the new image.
	CaptionStale bool
}

// Regenerate re-runs the selected stages against an existing draft.
//
// Stage failures never corrupt the draft: mode "image" leaves the row
// untouched on failure, mode "caption" never touches image paths, and mode
// "all" aborts before captioning if the image stage fails (a new caption must
// reflect the newest image). When "all" regenerates the image but the caption
// stage then fails, the independently valid image is kept and the result is
// flagged as caption-stale.
func (p *Pipeline) Regenerate(ctx context.Context, draftID int64, mode string, referenceImageURLs []string) (RegenResult, error) {
	switch mode {
	case ModeImage, ModeCaption, ModeAll:
	default:
		mode = ModeAll
	}

	draft, err := p.drafts.GetByID(ctx, draftID)
	if err != nil {
		return RegenResult{}, err
	}

	imagePaths := draft.ImagePaths
	caption := draft.Caption
	prompt := draft.ImagePrompt
	imageChanged := false
	captionChanged := false

	if mode == ModeImage || mode == ModeAll {
		outDir := p.draftDir(draft.SourceChatID, draft.SourceMessageID, true)
		template := p.resolveSetting(ctx, SettingKieRegenTemplate, p.cfg.KieRegenTemplate)
		kiePrompt := rewriter.FormatTemplate(template, draft.OriginalText)

		log.Printf("[Regen Draft:%d Mode:%s] KIE start refs=%d", draftID, mode, len(referenceImageURLs))
		newPaths, err := p.images.Generate(ctx, kie.GenerateParams{
			Prompt:    kiePrompt,
			OutDir:    outDir,
			Count:     1,
			ImageURLs: referenceImageURLs,
		})
		if err != nil || len(newPaths) == 0 {
			if err != nil {
				log.Printf("[Regen Draft:%d Mode:%s] KIE failed: %v", draftID, mode, err)
				p.report(err)
			}
			// A failed image stage poisons the whole request: captioning must
			// reflect the newest image, so nothing is persisted.
			return RegenResult{}, nil
		}
		imagePaths = newPaths[:1]
		imageChanged = true
		log.Printf("[Regen Draft:%d Mode:%s] KIE done", draftID, mode)
	}

	if mode == ModeCaption || mode == ModeAll {
		template := p.resolveSetting(ctx, SettingRewriteTemplate, p.cfg.RewriteTemplate)

		var result rewriter.Result
		var err error
		if len(imagePaths) > 0 {
			result, err = p.captionFromFile(ctx, imagePaths[0], draft.OriginalText, template)
		} else {
			result, err = p.captions.RewriteTextOnly(ctx, draft.OriginalText)
		}
		if err != nil {
			log.Printf("[Regen Draft:%d Mode:%s] Caption failed: %v", draftID, mode, err)
			p.report(err)
			if !imageChanged {
				return RegenResult{}, nil
			}
			// Keep the fresh image, keep the old caption, tell the caller.
		} else {
			caption = result.Caption
			prompt = result.PromptikaPrompt
			captionChanged = true
			log.Printf("[Regen Draft:%d Mode:%s] Caption done", draftID, mode)
		}
	}

	if !imageChanged && !captionChanged {
		return RegenResult{}, nil
	}

	if err := p.drafts.UpdateContent(ctx, draftID, caption, prompt, imagePaths); err != nil {
		return RegenResult{}, err
	}

	// Token storage is not critical for regeneration; the persisted draft is
	// the source of truth.
	if err := p.tokens.Put(ctx, TokenFor(draftID), prompt); err != nil {
		log.Printf("[Regen Draft:%d] Failed to update prompt token: %v", draftID, err)
		p.report(err)
	}

	log.Printf("[Regen Draft:%d Mode:%s] Done imageChanged=%t captionChanged=%t", draftID, mode, imageChanged, captionChanged)
	// Stale only when the caption stage actually ran and failed; mode "image"
	// never attempts it.
	return RegenResult{Changed: true, CaptionStale: mode == ModeAll && imageChanged && !captionChanged}, nil
}
