package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/vulegon/Summarite/internal/models"
	"github.com/vulegon/Summarite/internal/services"
)

// HealthHandler provides health check endpoints.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"

	dbStatus := "ok"
	sqlDB, err := models.GetDB().DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}

	taskQueue := services.GetTaskQueue()
	queueMode := "in-process"
	if taskQueue != nil && taskQueue.IsAsync() {
		queueMode = "async (Redis)"
	}

	var syncingCount int64
	models.GetDB().Model(&models.User{}).
		Where("github_sync_status = ? OR jira_sync_status = ?", models.SyncStatusSyncing, models.SyncStatusSyncing).
		Count(&syncingCount)

	c.JSON(200, gin.H{
		"status":  overall,
		"service": "summarite",
		"components": gin.H{
			"database":      dbStatus,
			"queue_mode":    queueMode,
			"syncing_users": syncingCount,
		},
	})
}
