package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dealerscan/ingest-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "ingest-service",
		})
	})

	ingestHandler := handler.NewIngestHandler(deps)
	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		ingest := v1.Group("/ingest")
		ingest.Use(AuthMiddleware(deps.TriggerSecret, deps.Logger))
		{
			// POST /api/v1/ingest/run - Execute one scheduling invocation
			ingest.POST("/run", ingestHandler.RunBatch)

			// POST /api/v1/ingest/rotation/reassign - Rewrite rotation ranks
			ingest.POST("/rotation/reassign", ingestHandler.ReassignRanks)
		}

		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List ledger entries
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get one ledger entry
			jobs.GET("/:job_id", jobHandler.GetJob)
		}
	}

	return r
}
