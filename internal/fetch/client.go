package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const maxPageBytes = 2 << 20 // 2 MiB cap on fetched page bodies

// Budget selects which sliding-window budget a request draws from. Page
// fetches and inference calls are metered separately.
type Budget int

const (
	BudgetPages Budget = iota
	BudgetInference
)

var (
	// ErrRateLimited is returned when the caller's request budget is exhausted
	ErrRateLimited = errors.New("request budget exhausted")

	// ErrUnexpectedStatus is returned for non-2xx responses on page fetches
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// Config holds rate-limited client configuration. Timeout bounds page
// fetches only; inference callers carry their own deadlines.
type Config struct {
	UserAgent        string
	Timeout          time.Duration
	PagesLimiter     *Limiter
	InferenceLimiter *Limiter
}

// Client is a bounded HTTP fetch utility shared by page retrieval and
// inference-backend calls. Deadlines ride on the request context: GetPage
// applies the configured page timeout, inference callers bring their own.
type Client struct {
	http      *http.Client
	timeout   time.Duration
	userAgent string
	pages     *Limiter
	inference *Limiter
	logger    *slog.Logger
}

// NewClient creates a new rate-limited client
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	return &Client{
		http:      &http.Client{},
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		pages:     cfg.PagesLimiter,
		inference: cfg.InferenceLimiter,
		logger:    logger,
	}
}

// Do executes a request against the given budget. Exhausted budgets reject
// immediately with ErrRateLimited.
func (c *Client) Do(ctx context.Context, req *http.Request, budget Budget) (*http.Response, error) {
	limiter := c.pages
	if budget == BudgetInference {
		limiter = c.inference
	}

	if limiter != nil && !limiter.Allow() {
		c.logger.Warn("Request rejected by rate limiter",
			slog.String("url", req.URL.String()),
			slog.Int("budget", int(budget)),
		)
		return nil, ErrRateLimited
	}

	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// GetPage fetches one page body with the pages budget. Non-2xx responses and
// network errors are returned to the calling stage, never raised past it.
func (c *Client) GetPage(ctx context.Context, url string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := c.Do(ctx, req, BudgetPages)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s fetching %s", ErrUnexpectedStatus, resp.Status, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read page body: %w", err)
	}

	return body, nil
}
