package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vulegon/Summarite/internal/middleware"
	"github.com/vulegon/Summarite/internal/services"
	"github.com/vulegon/Summarite/pkg/response"
)

type AccountHandler struct {
	accountService *services.AccountService
}

func NewAccountHandler(db *gorm.DB) *AccountHandler {
	return &AccountHandler{
		accountService: services.NewAccountService(db),
	}
}

type connectRequest struct {
	Provider     string `json:"provider" binding:"required"`
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    *int64 `json:"expires_at"` // unix seconds
}

// Connect stores a provider credential for the current user
// POST /api/accounts
func (h *AccountHandler) Connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	account, err := h.accountService.Connect(
		middleware.GetUserID(c), req.Provider, req.AccessToken, req.RefreshToken, req.ExpiresAt)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.Success(c, account)
}

// List returns the current user's connected providers
// GET /api/accounts
func (h *AccountHandler) List(c *gin.Context) {
	accounts, err := h.accountService.List(middleware.GetUserID(c))
	if err != nil {
		response.ServerError(c, "failed to list accounts")
		return
	}

	response.Success(c, accounts)
}

// Disconnect removes a provider credential
// DELETE /api/accounts/:provider
func (h *AccountHandler) Disconnect(c *gin.Context) {
	err := h.accountService.Disconnect(middleware.GetUserID(c), c.Param("provider"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "account not found")
			return
		}
		response.ServerError(c, "failed to disconnect account")
		return
	}

	response.Success(c, gin.H{"message": "disconnected"})
}
