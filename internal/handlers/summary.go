package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vulegon/Summarite/internal/middleware"
	"github.com/vulegon/Summarite/internal/services"
	"github.com/vulegon/Summarite/pkg/response"
)

type SummaryHandler struct {
	summaryService *services.SummaryService
	metricsService *services.MetricsService
}

func NewSummaryHandler(summaryService *services.SummaryService, metricsService *services.MetricsService) *SummaryHandler {
	return &SummaryHandler{
		summaryService: summaryService,
		metricsService: metricsService,
	}
}

type generateSummaryRequest struct {
	PeriodType string `json:"period_type" binding:"required,oneof=weekly monthly custom"`
	WeeksAgo   int    `json:"weeks_ago"`
	MonthsAgo  int    `json:"months_ago"`
	Start      string `json:"start"` // YYYY-MM-DD, custom only
	End        string `json:"end"`   // YYYY-MM-DD, custom only
}

// Generate creates (or regenerates) the narrative summary for a period
// POST /api/summaries
func (h *SummaryHandler) Generate(c *gin.Context) {
	var req generateSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var period services.Period
	switch req.PeriodType {
	case services.PeriodWeekly:
		period = services.WeeklyPeriod(req.WeeksAgo)
	case services.PeriodMonthly:
		period = services.MonthlyPeriod(req.MonthsAgo)
	case services.PeriodCustom:
		start, err := time.Parse("2006-01-02", req.Start)
		if err != nil {
			response.BadRequest(c, "start must be a YYYY-MM-DD date")
			return
		}
		end, err := time.Parse("2006-01-02", req.End)
		if err != nil {
			response.BadRequest(c, "end must be a YYYY-MM-DD date")
			return
		}
		if end.Before(start) {
			response.BadRequest(c, "end must not be before start")
			return
		}
		period = services.CustomPeriod(start, end)
	}

	userID := middleware.GetUserID(c)
	ctx := c.Request.Context()

	metrics, err := h.metricsService.ForPeriod(ctx, userID, period)
	if err != nil {
		response.ServerError(c, "failed to compute metrics")
		return
	}

	var previous *services.PeriodMetrics
	if prev, ok := period.Previous(); ok {
		previous, err = h.metricsService.ForPeriod(ctx, userID, prev)
		if err != nil {
			response.ServerError(c, "failed to compute previous period metrics")
			return
		}
	}

	summary, err := h.summaryService.GenerateAndStore(ctx, userID, metrics, previous, period)
	if err != nil {
		response.ServerError(c, "failed to generate summary")
		return
	}

	response.Success(c, summary)
}

// List returns the current user's stored summaries
// GET /api/summaries?limit=20
func (h *SummaryHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	summaries, err := h.summaryService.ListForUser(middleware.GetUserID(c), limit)
	if err != nil {
		response.ServerError(c, "failed to list summaries")
		return
	}

	response.Success(c, summaries)
}
