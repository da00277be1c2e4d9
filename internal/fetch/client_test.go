package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(pages, inference *Limiter) *Client {
	return NewClient(&Config{
		UserAgent:        "ingest-test/1.0",
		Timeout:          5 * time.Second,
		PagesLimiter:     pages,
		InferenceLimiter: inference,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestClientTimeout(timeout time.Duration, pages *Limiter) *Client {
	return NewClient(&Config{
		UserAgent:    "ingest-test/1.0",
		Timeout:      timeout,
		PagesLimiter: pages,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_GetPage(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>listing page</html>"))
	}))
	defer server.Close()

	client := newTestClient(NewLimiter(10, time.Minute), nil)

	body, err := client.GetPage(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>listing page</html>", string(body))
	assert.Equal(t, "ingest-test/1.0", gotUA)
}

func TestClient_GetPage_UnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(NewLimiter(10, time.Minute), nil)

	_, err := client.GetPage(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestClient_GetPage_RateLimited(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(NewLimiter(1, time.Minute), nil)

	_, err := client.GetPage(context.Background(), server.URL)
	require.NoError(t, err)

	_, err = client.GetPage(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, requests, "rejected request must never reach the server")
}

func TestClient_Do_SeparateBudgets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(NewLimiter(1, time.Minute), NewLimiter(1, time.Minute))

	// Exhaust the pages budget
	_, err := client.GetPage(context.Background(), server.URL)
	require.NoError(t, err)
	_, err = client.GetPage(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrRateLimited)

	// Inference budget is untouched
	req, err := http.NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req, BudgetInference)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestClient_GetPage_TimeoutApplies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClientTimeout(30*time.Millisecond, NewLimiter(10, time.Minute))

	_, err := client.GetPage(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Do_PageTimeoutDoesNotBindInference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// The page timeout is far shorter than the server's response time;
	// inference requests carry their own deadlines and must not inherit it
	client := newTestClientTimeout(30*time.Millisecond, NewLimiter(10, time.Minute))

	req, err := http.NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req, BudgetInference)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestClient_Do_PreservesCallerUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(NewLimiter(10, time.Minute), nil)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "custom/2.0")

	resp, err := client.Do(context.Background(), req, BudgetPages)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "custom/2.0", gotUA)
}
