package rewriter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTemplate(t *testing.T) {
	t.Run("placeholder present", func(t *testing.T) {
		got := FormatTemplate("Перепиши: {original_text}!", "привет")
		assert.Equal(t, "Перепиши: привет!", got)
	})

	t.Run("placeholder repeated", func(t *testing.T) {
		got := FormatTemplate("{original_text} / {original_text}", "x")
		assert.Equal(t, "x / x", got)
	})

	t.Run("placeholder absent appends original", func(t *testing.T) {
		got := FormatTemplate("Просто шаблон", "привет")
		assert.Equal(t, "Просто шаблон\n\nИсходный текст: привет", got)
	})

	t.Run("malformed braces never fail", func(t *testing.T) {
		got := FormatTemplate("Шаблон с {битой скобкой", "текст")
		assert.Equal(t, "Шаблон с {битой скобкой\n\nИсходный текст: текст", got)
	})
}

func TestParseJSONObject(t *testing.T) {
	t.Run("strict", func(t *testing.T) {
		fields, err := parseJSONObject(`{"caption_html":"<b>Hi</b>","promptika_prompt":"try this"}`)
		require.NoError(t, err)
		assert.Equal(t, "<b>Hi</b>", fields.CaptionHTML)
		assert.Equal(t, "try this", fields.PromptikaPrompt)
	})

	t.Run("brace scan around noise", func(t *testing.T) {
		raw := "Вот результат:\n```json\n{\"caption_html\":\"Hi\",\"promptika_prompt\":\"try this\"}\n```"
		fields, err := parseJSONObject(raw)
		require.NoError(t, err)
		assert.Equal(t, "Hi", fields.CaptionHTML)
		assert.Equal(t, "try this", fields.PromptikaPrompt)
	})

	t.Run("no object at all", func(t *testing.T) {
		_, err := parseJSONObject("просто текст без JSON")
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Contains(t, parseErr.Raw, "просто текст")
	})
}

func newTestRewriter(t *testing.T, handler http.HandlerFunc) *Rewriter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	r, err := New(Options{
		APIKey:          "test-key",
		BaseURL:         server.URL,
		Model:           "gpt-4o-mini",
		DefaultTemplate: "Перепиши: {original_text}",
		HTTPClient:      server.Client(),
	})
	require.NoError(t, err)
	return r
}

func responsesBody(text string) map[string]any {
	return map[string]any{
		"output": []map[string]any{
			{
				"type": "message",
				"content": []map[string]any{
					{"type": "output_text", "text": text},
				},
			},
		},
	}
}

func TestRewriteTextOnly(t *testing.T) {
	r := newTestRewriter(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/responses", req.URL.Path)
		assert.Equal(t, "Bearer test-key", req.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])

		_ = json.NewEncoder(w).Encode(responsesBody(
			`{"caption_html":"<b>Пост</b>","promptika_prompt":"кошка на закате"}`))
	})

	result, err := r.RewriteTextOnly(context.Background(), "исходный текст")
	require.NoError(t, err)
	assert.Equal(t, "<b>Пост</b>", result.Caption)
	assert.Equal(t, "кошка на закате", result.PromptikaPrompt)
}

func TestCaptionFromImageSendsDataURL(t *testing.T) {
	r := newTestRewriter(t, func(w http.ResponseWriter, req *http.Request) {
		raw, _ := json.Marshal(mustDecode(t, req))
		assert.Contains(t, string(raw), "input_image")
		assert.Contains(t, string(raw), "data:image/png;base64,")

		_ = json.NewEncoder(w).Encode(responsesBody(
			`{"caption_html":"Caption","promptika_prompt":"prompt"}`))
	})

	result, err := r.CaptionFromImage(context.Background(), []byte{1, 2, 3}, "image/png", "текст", "")
	require.NoError(t, err)
	assert.Equal(t, "Caption", result.Caption)
}

func TestGenerateEmptyFields(t *testing.T) {
	r := newTestRewriter(t, func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewEncoder(w).Encode(responsesBody(
			`{"caption_html":"","promptika_prompt":"   "}`))
	})

	_, err := r.RewriteTextOnly(context.Background(), "текст")
	assert.ErrorIs(t, err, ErrEmptyGeneration)
}

func TestCallAPIError(t *testing.T) {
	r := newTestRewriter(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model overloaded"},
		})
	})

	_, err := r.RewriteTextOnly(context.Background(), "текст")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func mustDecode(t *testing.T, req *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
	return body
}
