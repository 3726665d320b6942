package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"promptika-bot/internal/database"
	"promptika-bot/internal/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]string
	getErr error
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
	if r.getErr != nil {
		return "", r.getErr
	}
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

func newTestServer(t *testing.T, apiKey string) (*Server, *fakeTokenRepo) {
	t.Helper()
	repo := &fakeTokenRepo{tokens: map[string]string{"p_1": "a cat in the snow"}}
	srv, err := New(repo, apiKey, "127.0.0.1", 8080)
	require.NoError(t, err)
	return srv, repo
}

func doRequest(srv *Server, method, target, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if apiKey != "" {
		req.Header.Set("X-Resolver-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	rec := doRequest(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPromptRequiresAPIKey(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	rec := doRequest(srv, http.MethodGet, "/v1/prompt/p_1", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/v1/prompt/p_1", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/v1/prompt/p_1", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPromptLookup(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := doRequest(srv, http.MethodGet, "/v1/prompt/p_1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "p_1", body["token"])
	assert.Equal(t, "a cat in the snow", body["prompt"])
}

func TestPromptNotFound(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rec := doRequest(srv, http.MethodGet, "/v1/prompt/p_404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPromptConsumeIsOneShot(t *testing.T) {
	srv, repo := newTestServer(t, "")

	rec := doRequest(srv, http.MethodGet, "/v1/prompt/p_1?consume=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, repo.tokens)

	rec = doRequest(srv, http.MethodGet, "/v1/prompt/p_1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPromptWithoutConsumeStays(t *testing.T) {
	srv, repo := newTestServer(t, "")

	rec := doRequest(srv, http.MethodGet, "/v1/prompt/p_1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, repo.tokens, "p_1")
}
