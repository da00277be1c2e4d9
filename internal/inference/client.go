package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dealerscan/ingest-be/internal/fetch"
)

var (
	// ErrMalformed is returned when the backend's completion text cannot be
	// parsed as the expected structure. Stages degrade gracefully on it.
	ErrMalformed = errors.New("malformed inference response")

	// ErrBackend is returned for transport failures and non-2xx statuses
	ErrBackend = errors.New("inference backend call failed")
)

// Doer executes budgeted HTTP requests
type Doer interface {
	Do(ctx context.Context, req *http.Request, budget fetch.Budget) (*http.Response, error)
}

// Config holds inference client configuration
type Config struct {
	Endpoint         string
	Model            string
	APIKey           string
	Timeout          time.Duration
	MaxResponseBytes int64
}

// Client calls an OpenAI-compatible chat-completions endpoint and parses the
// completion text into typed structures
type Client struct {
	endpoint         string
	model            string
	apiKey           string
	timeout          time.Duration
	maxResponseBytes int64
	doer             Doer
}

// NewClient builds a client from configuration
func NewClient(cfg *Config, doer Doer) *Client {
	return &Client{
		endpoint:         cfg.Endpoint,
		model:            cfg.Model,
		apiKey:           cfg.APIKey,
		timeout:          cfg.Timeout,
		maxResponseBytes: cfg.MaxResponseBytes,
		doer:             doer,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate posts the prompt and unmarshals the completion text into out.
// Responses exceeding the configured size are truncated before parsing;
// unparseable completions return ErrMalformed so callers can fall back.
func (c *Client) Generate(ctx context.Context, prompt string, out any) error {
	// Inference calls get their own deadline, independent of the shorter
	// transport timeout used for page fetches
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal inference payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.doer.Do(ctx, req, fetch.BudgetInference)
	if err != nil {
		if errors.Is(err, fetch.ErrRateLimited) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s: %s", ErrBackend, resp.Status, strings.TrimSpace(string(detail)))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrBackend, err)
	}

	var completion chatResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}
	if len(completion.Choices) == 0 {
		return fmt.Errorf("%w: no choices", ErrMalformed)
	}

	content := extractJSON(completion.Choices[0].Message.Content)
	if content == "" {
		return fmt.Errorf("%w: no structured content", ErrMalformed)
	}

	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return nil
}

// extractJSON pulls the first JSON object or array out of a completion that
// may be wrapped in prose or markdown fences
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	objStart := strings.IndexAny(text, "{[")
	if objStart < 0 {
		return ""
	}

	var objEnd int
	if text[objStart] == '{' {
		objEnd = strings.LastIndex(text, "}")
	} else {
		objEnd = strings.LastIndex(text, "]")
	}
	if objEnd <= objStart {
		return ""
	}

	return text[objStart : objEnd+1]
}
