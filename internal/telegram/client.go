// Package telegram is a small Bot API client plus the long-polling loop
// that feeds chat messages into the pipeline.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.telegram.org"

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// APIError is a Bot API response with ok=false or a non-2xx status.
type APIError struct {
	StatusCode  int
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error status=%d code=%d: %s", e.StatusCode, e.Code, e.Description)
}

type ClientConfig struct {
	BaseURL string
	Token   string
	// Timeout bounds a single request; long polls add their own wait on top.
	Timeout time.Duration
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	timeout time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg ClientConfig) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{},
		timeout: timeout,
		sleep:   sleepContext,
	}, nil
}

// GetUpdates long-polls for updates with id >= offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(int(wait/time.Second)))
	params.Set("allowed_updates", `["message"]`)

	ctx, cancel := context.WithTimeout(ctx, c.timeout+wait)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.methodURL("getUpdates")+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build getUpdates request: %w", err)
	}
	var updates []Update
	if err := c.do(req, &updates); err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	return updates, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal sendMessage payload: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	return nil
}

// SendPhoto uploads png as a new photo message.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("write chat_id field: %w", err)
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return fmt.Errorf("write caption field: %w", err)
		}
	}
	part, err := writer.CreateFormFile("photo", "chart.png")
	if err != nil {
		return fmt.Errorf("create photo part: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return fmt.Errorf("write photo part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendPhoto"), &buf)
	if err != nil {
		return fmt.Errorf("build sendPhoto request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("sendPhoto: %w", err)
	}
	return nil
}

// SendWithRetry retries send with exponential backoff (1s, 2s, 4s ...),
// honouring retry_after from rate-limit responses.
func (c *Client) SendWithRetry(ctx context.Context, maxRetries int, send func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		lastErr = send(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i == maxRetries || !retryable(lastErr) {
			break
		}
		backoff := time.Duration(1<<uint(i)) * time.Second
		var apiErr *APIError
		if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > backoff {
			backoff = apiErr.RetryAfter
		}
		if err := c.sleep(ctx, backoff); err != nil {
			return err
		}
	}
	return fmt.Errorf("send failed after %d attempt(s): %w", maxRetries+1, lastErr)
}

func (c *Client) methodURL(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		// Strip the URL: it carries the bot token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return urlErr.Err
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Description: truncate(string(raw), 200)}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 || !parsed.OK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: parsed.ErrorCode, Description: parsed.Description}
		if parsed.Parameters != nil && parsed.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(parsed.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(parsed.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// retryable excludes client errors other than rate limiting.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(value string, maxLen int) string {
	if len(value) <= maxLen {
		return value
	}
	return value[:maxLen] + "..."
}
