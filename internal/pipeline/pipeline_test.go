package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"promptika-bot/internal/database"
	"promptika-bot/internal/database/models"
	"promptika-bot/internal/kie"
	"promptika-bot/internal/rewriter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type fakeDraftRepo struct {
	mu     sync.Mutex
	nextID int64
	drafts map[int64]*models.Draft
}

func newFakeDraftRepo() *fakeDraftRepo {
	return &fakeDraftRepo{drafts: map[int64]*models.Draft{}}
}

func (r *fakeDraftRepo) Create(ctx context.Context, draft *models.Draft) (*models.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.drafts {
		if d.SourceChatID == draft.SourceChatID && d.SourceMessageID == draft.SourceMessageID {
			copy := *d
			return &copy, nil
		}
	}
	r.nextID++
	d := *draft
	d.ID = r.nextID
	d.Status = models.StatusPendingReview
	d.CreatedAt = time.Now().UTC()
	d.UpdatedAt = d.CreatedAt
	r.drafts[d.ID] = &d
	copy := d
	return &copy, nil
}

func (r *fakeDraftRepo) GetByID(ctx context.Context, id int64) (*models.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[id]
	if !ok {
		return nil, database.ErrDraftNotFound
	}
	copy := *d
	return &copy, nil
}

func (r *fakeDraftRepo) GetBySource(ctx context.Context, sourceChatID int64, sourceMessageID int) (*models.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.drafts {
		if d.SourceChatID == sourceChatID && d.SourceMessageID == sourceMessageID {
			copy := *d
			return &copy, nil
		}
	}
	return nil, database.ErrDraftNotFound
}

func (r *fakeDraftRepo) SetStatus(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[id]
	if !ok {
		return database.ErrDraftNotFound
	}
	if !models.ValidTransition(d.Status, status) {
		return database.ErrInvalidTransition
	}
	now := time.Now().UTC()
	d.Status = status
	d.UpdatedAt = now
	switch status {
	case models.StatusApproved:
		d.ApprovedAt = &now
	case models.StatusPublished:
		d.PublishedAt = &now
	}
	return nil
}

func (r *fakeDraftRepo) SetReviewMessage(ctx context.Context, id int64, chatID int64, messageID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[id]
	if !ok {
		return database.ErrDraftNotFound
	}
	d.ReviewChatID = chatID
	d.ReviewMessageID = messageID
	return nil
}

func (r *fakeDraftRepo) UpdateContent(ctx context.Context, id int64, caption, imagePrompt string, imagePaths []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[id]
	if !ok {
		return database.ErrDraftNotFound
	}
	d.Caption = caption
	d.ImagePrompt = imagePrompt
	d.ImagePaths = imagePaths
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeDraftRepo) ListApprovedUnpublished(ctx context.Context, limit int) ([]models.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Draft
	for _, d := range r.drafts {
		if d.Status == models.StatusApproved && d.PublishedAt == nil {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ApprovedAt.Equal(*out[j].ApprovedAt) {
			return out[i].ApprovedAt.Before(*out[j].ApprovedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: map[string]string{}}
}

func (r *fakeTokenRepo) Put(ctx context.Context, token, prompt string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = prompt
	return nil
}

func (r *fakeTokenRepo) Get(ctx context.Context, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prompt, ok := r.tokens[token]
	if !ok {
		return "", database.ErrTokenNotFound
	}
	return prompt, nil
}

func (r *fakeTokenRepo) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, token)
	return nil
}

func (r *fakeTokenRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.tokens)), nil
}

func (r *fakeTokenRepo) ListPage(ctx context.Context, offset, limit int) ([]models.PromptToken, error) {
	return nil, nil
}

type fakeSettingRepo struct {
	values map[string]string
}

func (r *fakeSettingRepo) Get(ctx context.Context, key string) (string, error) {
	return r.values[key], nil
}

func (r *fakeSettingRepo) Set(ctx context.Context, key, value string) error {
	r.values[key] = value
	return nil
}

func (r *fakeSettingRepo) All(ctx context.Context) ([]models.Setting, error) {
	return nil, nil
}

type fakePostLogger struct {
	mu      sync.Mutex
	entries []models.PostLog
}

func (l *fakePostLogger) LogPublishedPost(ctx context.Context, entry models.PostLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// fakeImageGen writes a real file per call so the caption stage can read it.
type fakeImageGen struct {
	err   error
	calls int
}

func (g *fakeImageGen) Generate(ctx context.Context, params kie.GenerateParams) ([]string, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	if err := os.MkdirAll(params.OutDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(params.OutDir, fmt.Sprintf("img_%d.png", g.calls))
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

type fakeCaptionGen struct {
	imageResult rewriter.Result
	imageErr    error
	textResult  rewriter.Result
	textErr     error
	imageCalls  int
	textCalls   int
}

func (g *fakeCaptionGen) CaptionFromImage(ctx context.Context, imageBytes []byte, mime, originalText, template string) (rewriter.Result, error) {
	g.imageCalls++
	return g.imageResult, g.imageErr
}

func (g *fakeCaptionGen) RewriteTextOnly(ctx context.Context, originalText string) (rewriter.Result, error) {
	g.textCalls++
	return g.textResult, g.textErr
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []DeliveryParams
	failFor   map[string]error // keyed by token
	nextMsgID int
}

func (d *fakeDeliverer) Deliver(ctx context.Context, params DeliveryParams) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failFor[params.Token]; err != nil {
		return 0, err
	}
	d.delivered = append(d.delivered, params)
	d.nextMsgID++
	return d.nextMsgID, nil
}

type env struct {
	drafts   *fakeDraftRepo
	tokens   *fakeTokenRepo
	settings *fakeSettingRepo
	postLog  *fakePostLogger
	images   *fakeImageGen
	captions *fakeCaptionGen
	deliver  *fakeDeliverer
	pipeline *Pipeline
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		drafts:   newFakeDraftRepo(),
		tokens:   newFakeTokenRepo(),
		settings: &fakeSettingRepo{values: map[string]string{}},
		postLog:  &fakePostLogger{},
		images:   &fakeImageGen{},
		captions: &fakeCaptionGen{
			imageResult: rewriter.Result{Caption: "<b>image caption</b>", PromptikaPrompt: "image prompt"},
			textResult:  rewriter.Result{Caption: "text caption", PromptikaPrompt: "text prompt"},
		},
		deliver: &fakeDeliverer{failFor: map[string]error{}},
	}

	pl, err := New(e.drafts, e.tokens, e.settings, e.postLog, e.images, e.captions, e.deliver, nil, Config{
		MediaDir:                t.TempDir(),
		KieRegenTemplate:        "Сгенерируй: {original_text}",
		RewriteTemplate:         "Перепиши: {original_text}",
		DefaultDestination:      "@dest",
		PublishBatchSize:        10,
		EmptyCaptionPlaceholder: "(без текста)",
		ExternalBotUsername:     "PromptikaBot",
		ExternalButtonText:      "Попробовать",
	})
	require.NoError(t, err)
	e.pipeline = pl
	return e
}

// --- Ingest ---

func TestIngestHappyPath(t *testing.T) {
	e := newEnv(t)

	id, err := e.pipeline.Ingest(context.Background(), IngestParams{
		SourceChatID:    -100123,
		SourceMessageID: 42,
		OriginalText:    "original post",
	})
	require.NoError(t, err)

	draft, err := e.drafts.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingReview, draft.Status)
	assert.Equal(t, "<b>image caption</b>", draft.Caption)
	assert.Equal(t, "image prompt", draft.ImagePrompt)
	assert.Len(t, draft.ImagePaths, 1)

	prompt, err := e.tokens.Get(context.Background(), TokenFor(id))
	require.NoError(t, err)
	assert.Equal(t, "image prompt", prompt)
}

func TestIngestIdempotent(t *testing.T) {
	e := newEnv(t)
	params := IngestParams{SourceChatID: -100123, SourceMessageID: 42, OriginalText: "post"}

	first, err := e.pipeline.Ingest(context.Background(), params)
	require.NoError(t, err)
	second, err := e.pipeline.Ingest(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// The second run must not call the external services at all.
	assert.Equal(t, 1, e.images.calls)
	assert.Equal(t, 1, e.captions.imageCalls)
}

func TestIngestInsufficientCreditsDegradesToText(t *testing.T) {
	e := newEnv(t)
	e.images.err = &kie.InsufficientCreditsError{Message: "no credits"}

	id, err := e.pipeline.Ingest(context.Background(), IngestParams{
		SourceChatID:    -1,
		SourceMessageID: 1,
		OriginalText:    "post text",
	})
	require.NoError(t, err)

	draft, err := e.drafts.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, draft.ImagePaths)
	assert.Equal(t, models.StatusPendingReview, draft.Status)
	// No image, so the text-only generator produced the caption.
	assert.Equal(t, "text caption", draft.Caption)
	assert.Equal(t, 0, e.captions.imageCalls)
	assert.Equal(t, 1, e.captions.textCalls)
}

func TestIngestAllGeneratorsFailUsesOriginalText(t *testing.T) {
	e := newEnv(t)
	e.images.err = errors.New("kie down")
	e.captions.textErr = errors.New("openai down")

	id, err := e.pipeline.Ingest(context.Background(), IngestParams{
		SourceChatID:    -1,
		SourceMessageID: 2,
		OriginalText:    "raw text",
	})
	require.NoError(t, err)

	draft, err := e.drafts.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "raw text", draft.Caption)
	assert.Equal(t, "raw text", draft.ImagePrompt)
}

func TestIngestEmptyEverythingStillProducesCaption(t *testing.T) {
	e := newEnv(t)
	e.images.err = errors.New("kie down")
	e.captions.textErr = errors.New("openai down")

	id, err := e.pipeline.Ingest(context.Background(), IngestParams{
		SourceChatID:    -1,
		SourceMessageID: 3,
	})
	require.NoError(t, err)

	draft, err := e.drafts.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "(без текста)", draft.Caption)
}

func TestNewRequiresEmptyCaptionPlaceholder(t *testing.T) {
	e := newEnv(t)
	_, err := New(e.drafts, e.tokens, e.settings, e.postLog, e.images, e.captions, e.deliver, nil, Config{
		MediaDir: t.TempDir(),
	})
	require.Error(t, err)
}

// --- Regenerate ---

func approvedDraft(t *testing.T, e *env, srcMsgID int) int64 {
	t.Helper()
	id, err := e.pipeline.Ingest(context.Background(), IngestParams{
		SourceChatID:    -100500,
		SourceMessageID: srcMsgID,
		OriginalText:    "post",
	})
	require.NoError(t, err)
	require.NoError(t, e.drafts.SetStatus(context.Background(), id, models.StatusApproved))
	return id
}

func TestRegenerateUnknownDraft(t *testing.T) {
	e := newEnv(t)
	_, err := e.pipeline.Regenerate(context.Background(), 9999, ModeAll, nil)
	assert.ErrorIs(t, err, database.ErrDraftNotFound)
}

func TestRegenerateImageFailureLeavesDraftUntouched(t *testing.T) {
	e := newEnv(t)
	id, err := e.pipeline.Ingest(context.Background(), IngestParams{
		SourceChatID: -1, SourceMessageID: 10, OriginalText: "post",
	})
	require.NoError(t, err)
	before, err := e.drafts.GetByID(context.Background(), id)
	require.NoError(t, err)

	e.images.err = errors.New("kie down")
	result, err := e.pipeline.Regenerate(context.Background(), id, ModeAll, nil)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.False(t, result.CaptionStale)

	after, err := e.drafts.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, before.Caption, after.Caption)
	assert.Equal(t, before.ImagePrompt, after.ImagePrompt)
	assert.Equal(t, before.ImagePaths, after.ImagePaths)
}

func TestRegenerateImageOnlySuccessKeepsCaptionFresh(t *testing.T) {
	e := newEnv(t)
	id, err := e.pipeline.Ingest(context.Background(), IngestParams{
		SourceChatID: -1, SourceMessageID: 14, OriginalText: "post",
	})
	require.NoError(t, err)
	before, err := e.drafts.GetByID(context.Background(), id)
	require.NoError(t, err)
	imageCaptionCalls := e.captions.imageCalls
	textCaptionCalls := e.captions.textCalls

	result, err := e.pipeline.Regenerate(context.Background(), id, ModeImage, nil)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	// The caption stage is not part of mode "image", so the kept caption is
	// not stale.
	assert.False(t, result.CaptionStale)
	assert.Equal(t, imageCaptionCalls, e.captions.imageCalls)
	assert.Equal(t, textCaptionCalls, e.captions.textCalls)

	after, err := e.drafts.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.NotEqual(t, before.ImagePaths, after.ImagePaths)
	assert.Equal(t, before.Caption, after.Caption)
	assert.Equal(t, before.ImagePrompt, after.ImagePrompt)
}

func TestRegenerateCaptionOnlyKeepsImages(t *testing.T) {
	e := newEnv(t)
	id, err := e.pipeline.Ingest(context.Background(), IngestParams{
		SourceChatID: -1, SourceMessageID: 11, OriginalText: "post",
	})
	require.NoError(t, err)
	before, err := e.drafts.GetByID(context.Background(), id)
	require.NoError(t, err)

	e.captions.imageResult = rewriter.Result{Caption: "new caption", PromptikaPrompt: "new prompt"}
	imageCallsBefore := e.images.calls

	result, err := e.pipeline.Regenerate(context.Background(), id, ModeCaption, nil)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.False(t, result.CaptionStale)

	after, err := e.drafts.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "new caption", after.Caption)
	assert.Equal(t, before.ImagePaths, after.ImagePaths)
	assert.Equal(t, imageCallsBefore, e.images.calls)

	prompt, err := e.tokens.Get(context.Background(), TokenFor(id))
	require.NoError(t, err)
	assert.Equal(t, "new prompt", prompt)
}

func TestRegenerateAllCaptionFailureKeepsFreshImage(t *testing.T) {
	e := newEnv(t)
	id, err := e.pipeline.Ingest(context.Background(), IngestParams{
		SourceChatID: -1, SourceMessageID: 12, OriginalText: "post",
	})
	require.NoError(t, err)
	before, err := e.drafts.GetByID(context.Background(), id)
	require.NoError(t, err)

	e.captions.imageErr = errors.New("openai down")
	e.captions.textErr = errors.New("openai down")

	result, err := e.pipeline.Regenerate(context.Background(), id, ModeAll, nil)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.True(t, result.CaptionStale)

	after, err := e.drafts.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.NotEqual(t, before.ImagePaths, after.ImagePaths)
	assert.Equal(t, before.Caption, after.Caption)
	assert.Equal(t, before.ImagePrompt, after.ImagePrompt)
}

func TestRegenerateCaptionFailureWithoutImageChangeIsNoop(t *testing.T) {
	e := newEnv(t)
	id, err := e.pipeline.Ingest(context.Background(), IngestParams{
		SourceChatID: -1, SourceMessageID: 13, OriginalText: "post",
	})
	require.NoError(t, err)

	e.captions.imageErr = errors.New("openai down")
	e.captions.textErr = errors.New("openai down")

	result, err := e.pipeline.Regenerate(context.Background(), id, ModeCaption, nil)
	require.NoError(t, err)
	assert.False(t, result.Changed)
}

// --- Publish ---

func TestPublishTickNoDestination(t *testing.T) {
	e := newEnv(t)
	e.pipeline.cfg.DefaultDestination = ""

	published, err := e.pipeline.PublishTick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)
	assert.Empty(t, e.deliver.delivered)
}

func TestPublishTickPerDraftIsolation(t *testing.T) {
	e := newEnv(t)
	okID := approvedDraft(t, e, 20)
	failID := approvedDraft(t, e, 21)
	e.deliver.failFor[TokenFor(failID)] = errors.New("telegram down")

	published, err := e.pipeline.PublishTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)

	ok, err := e.drafts.GetByID(context.Background(), okID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, ok.Status)
	assert.NotNil(t, ok.PublishedAt)

	failed, err := e.drafts.GetByID(context.Background(), failID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failed.Status)

	require.Len(t, e.postLog.entries, 1)
	assert.Equal(t, okID, e.postLog.entries[0].DraftID)
	assert.Equal(t, "@dest", e.postLog.entries[0].Destination)
}

func TestPublishTickSkipsPendingAndRejected(t *testing.T) {
	e := newEnv(t)
	pendingID, err := e.pipeline.Ingest(context.Background(), IngestParams{
		SourceChatID: -1, SourceMessageID: 30, OriginalText: "pending",
	})
	require.NoError(t, err)
	rejectedID, err := e.pipeline.Ingest(context.Background(), IngestParams{
		SourceChatID: -1, SourceMessageID: 31, OriginalText: "rejected",
	})
	require.NoError(t, err)
	require.NoError(t, e.drafts.SetStatus(context.Background(), rejectedID, models.StatusRejected))

	published, err := e.pipeline.PublishTick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)

	pending, _ := e.drafts.GetByID(context.Background(), pendingID)
	assert.Equal(t, models.StatusPendingReview, pending.Status)
}

func TestPublishTickSecondRunIsEmpty(t *testing.T) {
	e := newEnv(t)
	approvedDraft(t, e, 40)

	published, err := e.pipeline.PublishTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)

	published, err = e.pipeline.PublishTick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)
	assert.Len(t, e.deliver.delivered, 1)
}

func TestPublishTickUsesSettingOverrides(t *testing.T) {
	e := newEnv(t)
	approvedDraft(t, e, 50)
	require.NoError(t, e.settings.Set(context.Background(), SettingDestinationChannel, "@override"))

	published, err := e.pipeline.PublishTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	require.Len(t, e.deliver.delivered, 1)
	assert.Equal(t, "@override", e.deliver.delivered[0].Destination)
	assert.Equal(t, "PromptikaBot", e.deliver.delivered[0].BotUsername)
}
