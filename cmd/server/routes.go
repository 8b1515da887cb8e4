package main

import (
	"github.com/gin-gonic/gin"

	"github.com/vulegon/Summarite/internal/middleware"
	"github.com/vulegon/Summarite/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.Use(middleware.CORS())

	// Sync triggers fan out to external APIs, so they get a tighter budget
	// than the rest of the API.
	syncLimiter := middleware.NewRateLimiter(1, 5)

	// Health check
	r.GET("/health", svc.healthHandler.CheckHealth)

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", svc.authHandler.Register)
			auth.POST("/login", svc.authHandler.Login)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.PUT("/auth/story-points-field", svc.authHandler.UpdateStoryPointsField)

			// Connected accounts
			protected.POST("/accounts", svc.accountHandler.Connect)
			protected.GET("/accounts", svc.accountHandler.List)
			protected.DELETE("/accounts/:provider", svc.accountHandler.Disconnect)

			// Sync
			sync := protected.Group("/sync")
			{
				sync.POST("/github", syncLimiter.Middleware(), svc.syncHandler.TriggerGithub)
				sync.POST("/jira", syncLimiter.Middleware(), svc.syncHandler.TriggerJira)
				sync.GET("/status", svc.syncHandler.Status)
			}

			// Metrics
			protected.GET("/metrics/weekly", svc.metricsHandler.Weekly)
			protected.GET("/metrics/monthly", svc.metricsHandler.Monthly)
			protected.GET("/metrics/custom", svc.metricsHandler.Custom)

			// Summaries
			protected.POST("/summaries", svc.summaryHandler.Generate)
			protected.GET("/summaries", svc.summaryHandler.List)
		}

		// Admin only routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.POST("/admin/resync", svc.adminHandler.Resync)
		}
	}
}
