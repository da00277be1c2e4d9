package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerscan/ingest-be/internal/api/dto"
	"github.com/dealerscan/ingest-be/internal/api/handler"
	"github.com/dealerscan/ingest-be/internal/api/router"
	"github.com/dealerscan/ingest-be/internal/ledger"
	"github.com/dealerscan/ingest-be/internal/scheduler"
)

const testSecret = "test-trigger-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	result     scheduler.BatchResult
	err        error
	calls      int
	gotSel     scheduler.Selector
	gotLimit   int
	reassigned int
}

func (f *fakeRunner) RunBatch(ctx context.Context, sel scheduler.Selector, limit int) (scheduler.BatchResult, error) {
	f.calls++
	f.gotSel = sel
	f.gotLimit = limit
	return f.result, f.err
}

func (f *fakeRunner) ReassignRotationRanks(ctx context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.reassigned, nil
}

type fakeJobs struct {
	jobs      map[string]*ledger.Job
	listOut   []ledger.Job
	listErr   error
	gotFilter ledger.Filter
}

func (f *fakeJobs) GetByID(ctx context.Context, jobID string) (*ledger.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, ledger.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobs) List(ctx context.Context, filter ledger.Filter) ([]ledger.Job, error) {
	f.gotFilter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listOut, nil
}

type fakeHealth struct {
	err error
}

func (f *fakeHealth) HealthCheck(ctx context.Context) error {
	return f.err
}

func newTestRouter(runner *fakeRunner, jobs *fakeJobs, health handler.HealthChecker) *gin.Engine {
	return router.SetupRouter(&handler.Dependencies{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Runner:        runner,
		Jobs:          jobs,
		Health:        health,
		TriggerSecret: testSecret,
	})
}

func doRequest(r *gin.Engine, method, path, secret string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRunBatch_Authentication(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		wantStatus int
	}{
		{name: "missing credential", secret: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong credential", secret: "wrong-secret", wantStatus: http.StatusUnauthorized},
		{name: "valid credential", secret: testSecret, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			r := newTestRouter(runner, &fakeJobs{}, nil)

			w := doRequest(r, http.MethodPost, "/api/v1/ingest/run", tt.secret, nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, 0, runner.calls, "rejected trigger must not start any work")
			} else {
				assert.Equal(t, 1, runner.calls)
			}
		})
	}
}

func TestRunBatch_ReturnsSummary(t *testing.T) {
	runner := &fakeRunner{result: scheduler.BatchResult{
		SourcesAttempted: 3,
		SourcesFailed:    1,
		ItemsDiscovered:  12,
		ItemsExtracted:   10,
		ItemsPersisted:   8,
		ItemsRejected:    2,
	}}
	r := newTestRouter(runner, &fakeJobs{}, nil)

	w := doRequest(r, http.MethodPost, "/api/v1/ingest/run", testSecret,
		dto.RunBatchRequest{Limit: 3})

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.RunBatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.SourcesProcessed)
	assert.Equal(t, 1, resp.SourcesFailed)
	assert.Equal(t, 12, resp.ItemsDiscovered)
	assert.Equal(t, 8, resp.ItemsPersisted)
	assert.Equal(t, 3, runner.gotLimit)
	assert.Nil(t, runner.gotSel.Rank)
}

func TestRunBatch_ExplicitRank(t *testing.T) {
	runner := &fakeRunner{}
	r := newTestRouter(runner, &fakeJobs{}, nil)

	rank := 4
	w := doRequest(r, http.MethodPost, "/api/v1/ingest/run", testSecret,
		dto.RunBatchRequest{Rank: &rank, Limit: 2})

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, runner.gotSel.Rank)
	assert.Equal(t, 4, *runner.gotSel.Rank)
}

func TestRunBatch_InvalidRank(t *testing.T) {
	runner := &fakeRunner{}
	r := newTestRouter(runner, &fakeJobs{}, nil)

	rank := 0
	w := doRequest(r, http.MethodPost, "/api/v1/ingest/run", testSecret,
		dto.RunBatchRequest{Rank: &rank})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, runner.calls)
}

func TestRunBatch_FatalFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("source registry unavailable")}
	r := newTestRouter(runner, &fakeJobs{}, nil)

	w := doRequest(r, http.MethodPost, "/api/v1/ingest/run", testSecret, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReassignRanks(t *testing.T) {
	runner := &fakeRunner{reassigned: 6}
	r := newTestRouter(runner, &fakeJobs{}, nil)

	w := doRequest(r, http.MethodPost, "/api/v1/ingest/rotation/reassign", testSecret, nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ReassignRanksResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 6, resp.ActiveSources)
}

func TestReassignRanks_RequiresAuth(t *testing.T) {
	runner := &fakeRunner{}
	r := newTestRouter(runner, &fakeJobs{}, nil)

	w := doRequest(r, http.MethodPost, "/api/v1/ingest/rotation/reassign", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func completedJob(jobID string) *ledger.Job {
	return &ledger.Job{
		JobID:      jobID,
		SourceID:   7,
		SourceName: "Test Motors",
		Payload:    `{"source_id":7}`,
		Status:     ledger.JobStatusCompleted,
		Result:     sql.NullString{String: `{"items_persisted":3}`, Valid: true},
		CreatedAt:  time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		StartedAt:  sql.NullTime{Time: time.Date(2025, 6, 15, 12, 0, 1, 0, time.UTC), Valid: true},
	}
}

func TestGetJob(t *testing.T) {
	jobID := uuid.New().String()
	jobs := &fakeJobs{jobs: map[string]*ledger.Job{jobID: completedJob(jobID)}}
	r := newTestRouter(&fakeRunner{}, jobs, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/jobs/"+jobID, "", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.JobDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, jobID, resp.JobID)
	assert.Equal(t, int64(7), resp.SourceID)
	assert.Equal(t, ledger.JobStatusCompleted, resp.Status)
	assert.Equal(t, `{"items_persisted":3}`, resp.Result)
	assert.NotEmpty(t, resp.StartedAt)
	assert.Empty(t, resp.CompletedAt)
}

func TestGetJob_NotFound(t *testing.T) {
	jobs := &fakeJobs{jobs: map[string]*ledger.Job{}}
	r := newTestRouter(&fakeRunner{}, jobs, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/jobs/"+uuid.New().String(), "", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetJob_InvalidID(t *testing.T) {
	r := newTestRouter(&fakeRunner{}, &fakeJobs{}, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/jobs/not-a-uuid", "", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListJobs(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	var listOut []ledger.Job
	for i := 0; i < 3; i++ {
		job := completedJob(uuid.New().String())
		job.CreatedAt = base.Add(-time.Duration(i) * time.Minute)
		listOut = append(listOut, *job)
	}

	jobs := &fakeJobs{listOut: listOut}
	r := newTestRouter(&fakeRunner{}, jobs, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/jobs?page_size=2&status=COMPLETED&source_id=7", "", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	// Three rows against page size two: one extra row signals another page
	assert.Len(t, resp.Jobs, 2)
	assert.NotEmpty(t, resp.NextCursor)

	assert.Equal(t, int64(7), jobs.gotFilter.SourceID)
	assert.Equal(t, "COMPLETED", jobs.gotFilter.Status)
	assert.Equal(t, 2, jobs.gotFilter.PageSize)
}

func TestListJobs_LastPageHasNoCursor(t *testing.T) {
	jobs := &fakeJobs{listOut: []ledger.Job{*completedJob(uuid.New().String())}}
	r := newTestRouter(&fakeRunner{}, jobs, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/jobs?page_size=5", "", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Jobs, 1)
	assert.Empty(t, resp.NextCursor)
}

func TestListJobs_InvalidCursor(t *testing.T) {
	r := newTestRouter(&fakeRunner{}, &fakeJobs{}, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/jobs?cursor=%21%21not-base64", "", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListJobs_CursorRoundTrip(t *testing.T) {
	original := &ledger.Cursor{
		CreatedAt: time.Date(2025, 6, 15, 12, 0, 0, 123456789, time.UTC),
		JobID:     uuid.New().String(),
	}

	decoded, err := handler.DecodeJobCursor(handler.EncodeJobCursor(original))

	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.Equal(t, original.JobID, decoded.JobID)
	assert.True(t, original.CreatedAt.Equal(decoded.CreatedAt))
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		health     *fakeHealth
		wantStatus int
	}{
		{name: "healthy", health: &fakeHealth{}, wantStatus: http.StatusOK},
		{name: "unhealthy", health: &fakeHealth{err: fmt.Errorf("db down")}, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&fakeRunner{}, &fakeJobs{}, tt.health)

			w := doRequest(r, http.MethodGet, "/health", "", nil)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
