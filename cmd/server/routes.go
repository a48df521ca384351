package main

import (
	"github.com/alibot/reviewdash/internal/handlers"
	"github.com/alibot/reviewdash/internal/middleware"
	"github.com/alibot/reviewdash/internal/models"
	"github.com/alibot/reviewdash/pkg/logger"
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.Use(middleware.CORS())

	// Rate limiter for the submit route
	submitLimiter := middleware.NewRateLimiter(svc.cfg.Server.SubmitRPS, svc.cfg.Server.SubmitBurst)

	db := models.GetDB()

	// Health checks
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "AliBot Backend is running",
			"status":  "healthy",
			"endpoints": gin.H{
				"submit_code":  "/api/analyze",
				"check_status": "/api/analyze/status/{review_id}",
				"get_review":   "/dashboard/review/{review_id}",
				"get_history":  "/dashboard/history",
			},
		})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "reviewdash"})
	})

	// Dashboard read side
	dashboard := r.Group("/dashboard")
	{
		reviewHandler := handlers.NewReviewHandler(db)
		dashboard.GET("/review/:id", reviewHandler.GetByID)

		historyHandler := handlers.NewHistoryHandler(db)
		dashboard.GET("/history", historyHandler.List)
	}

	// Submission pipeline
	api := r.Group("/api")
	{
		analyzeHandler := handlers.NewAnalyzeHandler(db, svc.taskQueue)
		api.POST("/analyze", submitLimiter.Middleware(), analyzeHandler.Submit)
		api.GET("/analyze/status/:id", analyzeHandler.Status)
	}
}
