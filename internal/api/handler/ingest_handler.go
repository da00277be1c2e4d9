package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dealerscan/ingest-be/internal/api/dto"
	"github.com/dealerscan/ingest-be/internal/scheduler"
)

// RunBatch handles POST /api/v1/ingest/run
// Executes one scheduling invocation and returns the summary. Individual
// source failures are reflected in the counts, never as a non-2xx status.
func (h *IngestHandler) RunBatch(c *gin.Context) {
	var req dto.RunBatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Error("Invalid request body", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
	}

	if req.Rank != nil && *req.Rank < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "rank must be a positive rotation rank",
		})
		return
	}

	h.logger.Info("Batch trigger received",
		slog.Any("rank", req.Rank),
		slog.Int("limit", req.Limit),
	)

	start := time.Now()
	result, err := h.runner.RunBatch(c.Request.Context(), scheduler.Selector{Rank: req.Rank}, req.Limit)
	if err != nil {
		// Only the fatal class reaches here: nothing was attempted
		h.logger.Error("Batch aborted", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Batch aborted before any source work",
		})
		return
	}

	c.JSON(http.StatusOK, dto.RunBatchResponse{
		SourcesProcessed: result.SourcesAttempted,
		SourcesFailed:    result.SourcesFailed,
		ItemsDiscovered:  result.ItemsDiscovered,
		ItemsExtracted:   result.ItemsExtracted,
		ItemsPersisted:   result.ItemsPersisted,
		ItemsRejected:    result.ItemsRejected,
		DurationMs:       time.Since(start).Milliseconds(),
	})
}

// ReassignRanks handles POST /api/v1/ingest/rotation/reassign
// Re-enumerates active sources and rewrites sequential rotation ranks
func (h *IngestHandler) ReassignRanks(c *gin.Context) {
	h.logger.Info("Rotation rank reassignment requested")

	count, err := h.runner.ReassignRotationRanks(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to reassign rotation ranks", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to reassign rotation ranks",
		})
		return
	}

	c.JSON(http.StatusOK, dto.ReassignRanksResponse{
		ActiveSources: count,
	})
}
