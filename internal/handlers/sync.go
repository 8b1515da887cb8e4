package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/vulegon/Summarite/internal/middleware"
	"github.com/vulegon/Summarite/internal/models"
	"github.com/vulegon/Summarite/internal/services"
	"github.com/vulegon/Summarite/pkg/response"
)

type SyncHandler struct {
	syncService *services.SyncService
	queue       services.TaskQueue
}

func NewSyncHandler(syncService *services.SyncService, queue services.TaskQueue) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		queue:       queue,
	}
}

// TriggerGithub starts a detached GitHub sync
// POST /api/sync/github
func (h *SyncHandler) TriggerGithub(c *gin.Context) {
	h.trigger(c, models.ProviderGitHub)
}

// TriggerJira starts a detached Jira sync
// POST /api/sync/jira
func (h *SyncHandler) TriggerJira(c *gin.Context) {
	h.trigger(c, models.ProviderJira)
}

// trigger claims the user's sync slot and hands the job to the queue. The
// claim happens here, before enqueue, so a second request sees 409 rather
// than racing the worker.
func (h *SyncHandler) trigger(c *gin.Context, provider string) {
	userID := middleware.GetUserID(c)

	if err := h.syncService.Begin(userID, provider); err != nil {
		if errors.Is(err, services.ErrSyncInProgress) {
			response.Conflict(c, "sync already in progress")
			return
		}
		response.ServerError(c, "failed to start sync")
		return
	}

	if err := h.queue.Enqueue(&services.SyncTask{UserID: userID, Provider: provider}); err != nil {
		h.syncService.Abort(userID, provider, err)
		response.ServerError(c, "failed to enqueue sync")
		return
	}

	response.Accepted(c, gin.H{"provider": provider, "status": models.SyncStatusSyncing})
}

// Status reports the sync state for both providers
// GET /api/sync/status
func (h *SyncHandler) Status(c *gin.Context) {
	status, err := h.syncService.Status(middleware.GetUserID(c))
	if err != nil {
		response.ServerError(c, "failed to load sync status")
		return
	}

	response.Success(c, status)
}
