package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/vulegon/Summarite/internal/services"
	"github.com/vulegon/Summarite/pkg/response"
)

type AdminHandler struct {
	scheduler *services.SchedulerService
}

func NewAdminHandler(scheduler *services.SchedulerService) *AdminHandler {
	return &AdminHandler{scheduler: scheduler}
}

// Resync runs the stale-user sweep immediately instead of waiting for the
// next cron tick. The sweep only claims and enqueues; the syncs themselves
// run detached.
// POST /api/admin/resync
func (h *AdminHandler) Resync(c *gin.Context) {
	h.scheduler.RunSweepNow(c.Request.Context())
	response.Accepted(c, gin.H{"status": "sweep completed"})
}
