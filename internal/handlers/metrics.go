package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vulegon/Summarite/internal/middleware"
	"github.com/vulegon/Summarite/internal/services"
	"github.com/vulegon/Summarite/pkg/response"
)

type MetricsHandler struct {
	metricsService *services.MetricsService
}

func NewMetricsHandler(metricsService *services.MetricsService) *MetricsHandler {
	return &MetricsHandler{metricsService: metricsService}
}

type metricsResponse struct {
	Period      services.Period             `json:"period"`
	Github      services.GithubMetrics      `json:"github"`
	Jira        services.JiraMetrics        `json:"jira"`
	Projects    []services.ProjectBreakdown `json:"projects"`
	Previous    *services.PeriodMetrics     `json:"previous,omitempty"`
	PrevPeriod  *services.Period            `json:"previous_period,omitempty"`
}

// Weekly returns metrics for a Monday-aligned week
// GET /api/metrics/weekly?weeks_ago=0
func (h *MetricsHandler) Weekly(c *gin.Context) {
	weeksAgo, err := strconv.Atoi(c.DefaultQuery("weeks_ago", "0"))
	if err != nil || weeksAgo < 0 {
		response.BadRequest(c, "weeks_ago must be a non-negative integer")
		return
	}

	h.respond(c, services.WeeklyPeriod(weeksAgo))
}

// Monthly returns metrics for a calendar month
// GET /api/metrics/monthly?months_ago=0
func (h *MetricsHandler) Monthly(c *gin.Context) {
	monthsAgo, err := strconv.Atoi(c.DefaultQuery("months_ago", "0"))
	if err != nil || monthsAgo < 0 {
		response.BadRequest(c, "months_ago must be a non-negative integer")
		return
	}

	h.respond(c, services.MonthlyPeriod(monthsAgo))
}

// Custom returns metrics for an arbitrary date range
// GET /api/metrics/custom?start=2024-03-01&end=2024-03-15
func (h *MetricsHandler) Custom(c *gin.Context) {
	start, err := time.Parse("2006-01-02", c.Query("start"))
	if err != nil {
		response.BadRequest(c, "start must be a YYYY-MM-DD date")
		return
	}
	end, err := time.Parse("2006-01-02", c.Query("end"))
	if err != nil {
		response.BadRequest(c, "end must be a YYYY-MM-DD date")
		return
	}
	if end.Before(start) {
		response.BadRequest(c, "end must not be before start")
		return
	}

	h.respond(c, services.CustomPeriod(start, end))
}

func (h *MetricsHandler) respond(c *gin.Context, period services.Period) {
	userID := middleware.GetUserID(c)

	metrics, err := h.metricsService.ForPeriod(c.Request.Context(), userID, period)
	if err != nil {
		response.ServerError(c, "failed to compute metrics")
		return
	}

	projects, err := h.metricsService.JiraProjectBreakdown(userID, period)
	if err != nil {
		response.ServerError(c, "failed to compute project breakdown")
		return
	}

	resp := metricsResponse{
		Period:   period,
		Github:   metrics.Github,
		Jira:     metrics.Jira,
		Projects: projects,
	}

	// Weekly and monthly views carry the previous period for delta framing.
	if prev, ok := period.Previous(); ok {
		previous, err := h.metricsService.ForPeriod(c.Request.Context(), userID, prev)
		if err != nil {
			response.ServerError(c, "failed to compute previous period metrics")
			return
		}
		resp.Previous = previous
		resp.PrevPeriod = &prev
	}

	response.Success(c, resp)
}
