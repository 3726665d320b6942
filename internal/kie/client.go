// Package kie wraps the KIE asynchronous image-generation job API.
//
// Flow:
//  1. POST <base><create path> -> taskId
//  2. GET  <base><query path>?taskId=... until state is terminal
//  3. Download resultUrls on success and save into the caller's out dir.
package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const (
	retryAttempts   = 3
	retryBaseDelay  = 2 * time.Second
	retryMaxDelay   = 20 * time.Second
	downloadTimeout = 300 * time.Second
)

// Options configures a Client.
type Options struct {
	APIKey       string
	BaseURL      string
	CreatePath   string
	QueryPath    string
	Model        string
	OutputFormat string
	ImageSize    string
	PollInterval time.Duration
	MaxAttempts  int
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// GenerateParams describes one generation request.
type GenerateParams struct {
	Prompt string
	OutDir string
	Count  int
	// ImageURLs are passed as reference images, required by edit models.
	ImageURLs []string
	// OutputFormat and ImageSize override the client defaults when non-empty.
	OutputFormat string
	ImageSize    string
}

// Client talks to the KIE job API. It holds a long-lived HTTP client; callers
// must Close it when done.
type Client struct {
	opts Options
	http *http.Client
}

// NewClient creates a KIE client from options.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("kie: API key is required")
	}
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("kie: base URL is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 120
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: downloadTimeout}
	}
	return &Client{opts: opts, http: httpClient}, nil
}

// Close releases the underlying HTTP client's idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

type apiResponse struct {
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (r *apiResponse) errorMessage() string {
	if r.Msg != "" {
		return r.Msg
	}
	return r.Message
}

type createTaskData struct {
	TaskID string `json:"taskId"`
}

type recordInfoData struct {
	State      string `json:"state"`
	ResultJSON string `json:"resultJson"`
	FailMsg    string `json:"failMsg"`
	FailCode   string `json:"failCode"`
}

type taskResult struct {
	ResultURLs []string `json:"resultUrls"`
}

// Generate creates Count images for the prompt and saves them as numbered
// files under OutDir. The whole create+poll+download sequence is retried up to
// three times with exponential backoff to smooth over transient network
// errors; definitive provider answers (credits, terminal failure, timeout) are
// surfaced immediately.
func (c *Client) Generate(ctx context.Context, params GenerateParams) ([]string, error) {
	if err := os.MkdirAll(params.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("kie: failed to create out dir: %w", err)
	}

	var lastErr error
	delay := retryBaseDelay
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		paths, err := c.generateAll(ctx, params)
		if err == nil {
			return paths, nil
		}
		lastErr = err
		if IsNonRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt < retryAttempts {
			log.Printf("[KIE] Generate attempt %d/%d failed: %v. Retrying in %s.", attempt, retryAttempts, err, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
			if delay > retryMaxDelay {
				delay = retryMaxDelay
			}
		}
	}
	return nil, lastErr
}

func (c *Client) generateAll(ctx context.Context, params GenerateParams) ([]string, error) {
	count := params.Count
	if count < 1 {
		count = 1
	}

	// The API has no batch mode; one task per requested unit.
	outPaths := make([]string, 0, count)
	for i := 0; i < count; i++ {
		taskID, err := c.createTask(ctx, params)
		if err != nil {
			return nil, err
		}
		result, err := c.pollTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if len(result.ResultURLs) == 0 {
			return nil, fmt.Errorf("kie: task %s succeeded but returned no result urls", taskID)
		}

		path := filepath.Join(params.OutDir, fmt.Sprintf("img_%d.png", i+1))
		if err := c.download(ctx, result.ResultURLs[0], path); err != nil {
			return nil, err
		}
		outPaths = append(outPaths, path)
	}
	return outPaths, nil
}

func (c *Client) createTask(ctx context.Context, params GenerateParams) (string, error) {
	outputFormat := params.OutputFormat
	if outputFormat == "" {
		outputFormat = c.opts.OutputFormat
	}
	imageSize := params.ImageSize
	if imageSize == "" {
		imageSize = c.opts.ImageSize
	}

	input := map[string]any{
		"prompt":        params.Prompt,
		"output_format": outputFormat,
		"image_size":    imageSize,
	}
	if len(params.ImageURLs) > 0 {
		input["image_urls"] = params.ImageURLs
	}
	payload := map[string]any{"model": c.opts.Model, "input": input}

	resp, err := c.postJSON(ctx, c.opts.BaseURL+c.opts.CreatePath, payload)
	if err != nil {
		return "", fmt.Errorf("kie: createTask request failed: %w", err)
	}
	if resp.Code == http.StatusPaymentRequired {
		return "", &InsufficientCreditsError{Message: resp.errorMessage()}
	}
	if resp.Code != http.StatusOK {
		return "", fmt.Errorf("kie: createTask failed: code=%d msg=%s", resp.Code, resp.errorMessage())
	}

	var data createTaskData
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.TaskID == "" {
		return "", fmt.Errorf("kie: createTask response missing taskId")
	}
	return data.TaskID, nil
}

// pollTask queries the task status at the configured interval until success, a
// terminal failure, or the attempt budget runs out.
func (c *Client) pollTask(ctx context.Context, taskID string) (*taskResult, error) {
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		result, done, err := c.getStatus(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}
		select {
		case <-time.After(c.opts.PollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: task %s still pending after %d attempts", ErrJobTimeout, taskID, c.opts.MaxAttempts)
}

func (c *Client) getStatus(ctx context.Context, taskID string) (*taskResult, bool, error) {
	u := c.opts.BaseURL + c.opts.QueryPath + "?taskId=" + url.QueryEscape(taskID)
	resp, err := c.getJSON(ctx, u)
	if err != nil {
		return nil, false, fmt.Errorf("kie: recordInfo request failed: %w", err)
	}
	if resp.Code != http.StatusOK {
		return nil, false, fmt.Errorf("kie: recordInfo failed: code=%d msg=%s", resp.Code, resp.errorMessage())
	}

	var data recordInfoData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, false, fmt.Errorf("kie: recordInfo response malformed: %w", err)
	}

	switch data.State {
	case "fail", "failed", "error":
		msg := data.FailMsg
		if msg == "" {
			msg = "Unknown error"
		}
		code := data.FailCode
		if code == "" {
			code = "Unknown"
		}
		return nil, false, &JobFailedError{Code: code, Message: msg}
	case "success":
		var result taskResult
		if data.ResultJSON != "" {
			// resultJson is a JSON-encoded string; a malformed payload is
			// treated the same as an empty result set.
			if err := json.Unmarshal([]byte(data.ResultJSON), &result); err != nil {
				log.Printf("[KIE Task:%s] Malformed resultJson: %v", taskID, err)
			}
		}
		return &result, true, nil
	default:
		return nil, false, nil
	}
}

func (c *Client) download(ctx context.Context, srcURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return fmt.Errorf("kie: bad result url: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("kie: download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kie: download failed: status %d", resp.StatusCode)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("kie: failed to create %s: %w", destPath, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("kie: failed to write %s: %w", destPath, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, u string, payload any) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req)
}

func (c *Client) getJSON(ctx context.Context, u string) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.doJSON(req)
}

func (c *Client) doJSON(req *http.Request) (*apiResponse, error) {
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("malformed response body: %w", err)
	}
	return &parsed, nil
}
