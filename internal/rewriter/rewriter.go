// Package rewriter wraps the OpenAI Responses API to turn a generated image
// and/or original post text into a Telegram HTML caption plus a user-facing
// prompt. The remote model is forced, by instruction, to answer with exactly
// one JSON object carrying both fields.
package rewriter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const placeholder = "{original_text}"

const defaultSystemInstructions = "You write engaging Telegram post captions in Russian. " +
	"Follow the user's template strictly and return valid JSON when asked."

// ErrEmptyGeneration is returned when the model answers with valid JSON whose
// required fields are empty or whitespace.
var ErrEmptyGeneration = errors.New("rewriter: model returned empty caption or prompt")

// ParseError is returned when no JSON object can be located in the model output.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if len(raw) > 500 {
		raw = raw[:500]
	}
	return fmt.Sprintf("rewriter: failed to parse JSON from model output: %v; raw=%s", e.Err, raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Result is the structured output of one caption generation.
type Result struct {
	// Caption is Telegram-ready HTML.
	Caption string
	// PromptikaPrompt is the user-facing prompt stored under the draft token.
	PromptikaPrompt string
}

// Options configures a Rewriter.
type Options struct {
	APIKey string
	// BaseURL overrides the OpenAI endpoint, mainly for tests.
	BaseURL            string
	Model              string
	SystemInstructions string
	// DefaultTemplate is the compiled-in caption template used when no
	// explicit template is passed.
	DefaultTemplate string
	HTTPClient      *http.Client
}

// Rewriter is a stateless caption generator. Safe for concurrent use.
type Rewriter struct {
	opts Options
	http *http.Client
}

// New creates a Rewriter from options.
func New(opts Options) (*Rewriter, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("rewriter: API key is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if strings.TrimSpace(opts.SystemInstructions) == "" {
		opts.SystemInstructions = defaultSystemInstructions
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Rewriter{opts: opts, http: httpClient}, nil
}

// FormatTemplate substitutes the original text into a user-supplied template.
// Admin templates are free-form text, so substitution must never fail: when
// the placeholder is absent the original text is appended instead.
func FormatTemplate(template, originalText string) string {
	tpl := strings.TrimSpace(template)
	if strings.Contains(tpl, placeholder) {
		return strings.ReplaceAll(tpl, placeholder, originalText)
	}
	return tpl + "\n\nИсходный текст: " + originalText
}

// wrapAsJSONTask combines the formatted admin template with the fixed
// instruction envelope that enforces the JSON output contract.
func wrapAsJSONTask(userTemplate, originalText string) string {
	var b strings.Builder
	b.WriteString("Используй следующий шаблон и требования. ")
	b.WriteString("Шаблон — это только форма текста, сам промпт и инструкции НЕ показывай.\n\n")
	b.WriteString("Шаблон/черновик (как должен выглядеть итоговый caption):\n")
	b.WriteString(userTemplate)
	b.WriteString("\n\nТребования к результату:\n")
	b.WriteString("- Язык: русский.\n")
	b.WriteString("- Итоговый caption должен выглядеть как в шаблоне (символы/переносы/структура).\n")
	b.WriteString("- Не добавляй заголовки типа 'Пример', 'Шаблон', 'Инструкция'.\n")
	b.WriteString("- Не упоминай промпт/модели/OpenAI/KIE.\n")
	b.WriteString("- Длина caption: до 850 символов (важно для Telegram).\n\n")
	b.WriteString("Дополнительно сгенерируй promptika_prompt:\n")
	b.WriteString("- 1–2 коротких предложения, без HTML, без ссылок, без кавычек.\n")
	b.WriteString("- Должен описывать, как пользователю сгенерировать похожий кадр/стиль.\n\n")
	b.WriteString(`Формат ответа: верни строго JSON без лишнего текста: {"caption_html":"...","promptika_prompt":"..."}`)

	if ctx := strings.TrimSpace(originalText); ctx != "" {
		b.WriteString("\n\nКонтекст исходного поста (для смысла, не цитируй дословно):\n")
		b.WriteString(ctx)
	}
	return b.String()
}

// CaptionFromImage generates a caption and prompt based on the generated image.
// template may be empty, in which case the compiled-in default is used.
func (r *Rewriter) CaptionFromImage(ctx context.Context, imageBytes []byte, mime, originalText, template string) (Result, error) {
	if template == "" {
		template = r.opts.DefaultTemplate
	}
	userTemplate := FormatTemplate(template, originalText)
	instructions := wrapAsJSONTask(userTemplate, originalText)

	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(imageBytes))
	input := []map[string]any{
		{"role": "system", "content": r.opts.SystemInstructions},
		{
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": instructions},
				{"type": "input_image", "image_url": dataURL},
			},
		},
	}
	return r.generate(ctx, input)
}

// RewriteTextOnly is the fallback when no image is available.
func (r *Rewriter) RewriteTextOnly(ctx context.Context, originalText string) (Result, error) {
	userTemplate := FormatTemplate(r.opts.DefaultTemplate, originalText)
	instructions := wrapAsJSONTask(userTemplate, originalText)

	input := []map[string]any{
		{"role": "system", "content": r.opts.SystemInstructions},
		{"role": "user", "content": instructions},
	}
	return r.generate(ctx, input)
}

func (r *Rewriter) generate(ctx context.Context, input []map[string]any) (Result, error) {
	text, err := r.call(ctx, input)
	if err != nil {
		return Result{}, err
	}

	fields, err := parseJSONObject(text)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Caption:         strings.TrimSpace(fields.CaptionHTML),
		PromptikaPrompt: strings.TrimSpace(fields.PromptikaPrompt),
	}
	if result.Caption == "" || result.PromptikaPrompt == "" {
		return Result{}, ErrEmptyGeneration
	}
	return result, nil
}

type generationFields struct {
	CaptionHTML     string `json:"caption_html"`
	PromptikaPrompt string `json:"promptika_prompt"`
}

// parseJSONObject parses text as strict JSON first; on failure it scans for
// the first '{' and the last '}' and retries on that span before giving up.
func parseJSONObject(text string) (generationFields, error) {
	text = strings.TrimSpace(text)

	var fields generationFields
	strictErr := json.Unmarshal([]byte(text), &fields)
	if strictErr == nil {
		return fields, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return generationFields{}, &ParseError{Raw: text, Err: strictErr}
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return generationFields{}, &ParseError{Raw: text, Err: err}
	}
	return fields, nil
}

type responsesRequest struct {
	Model string           `json:"model"`
	Input []map[string]any `json:"input"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// call posts to the Responses API and concatenates the output text items.
func (r *Rewriter) call(ctx context.Context, input []map[string]any) (string, error) {
	body, err := json.Marshal(responsesRequest{Model: r.opts.Model, Input: input})
	if err != nil {
		return "", fmt.Errorf("rewriter: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.BaseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("rewriter: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.opts.APIKey)

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("rewriter: request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed responsesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("rewriter: malformed response body: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("rewriter: API error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("rewriter: unexpected HTTP status %d", resp.StatusCode)
	}

	var b strings.Builder
	for _, item := range parsed.Output {
		if item.Type != "message" {
			continue
		}
		for _, content := range item.Content {
			if content.Type == "output_text" {
				b.WriteString(content.Text)
			}
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("rewriter: model returned empty output")
	}
	return text, nil
}
