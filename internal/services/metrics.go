package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/vulegon/Summarite/internal/models"
	"github.com/vulegon/Summarite/pkg/logger"
)

// GithubMetrics are the windowed counters folded from stored GitHub events.
type GithubMetrics struct {
	PRsOpened    int `json:"prs_opened"`
	PRsMerged    int `json:"prs_merged"`
	Reviews      int `json:"reviews"`
	IssuesOpened int `json:"issues_opened"`
	IssuesClosed int `json:"issues_closed"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	Commits      int `json:"commits"`
}

// ProjectBreakdown is the per-project slice of Jira activity in a period.
type ProjectBreakdown struct {
	ProjectKey  string  `json:"project_key"`
	ProjectName string  `json:"project_name"`
	Created     int     `json:"created"`
	Done        int     `json:"done"`
	InProgress  int     `json:"in_progress"`
	StoryPoints float64 `json:"story_points"`
}

// PeriodMetrics bundles both providers' metrics for one period.
type PeriodMetrics struct {
	Github GithubMetrics `json:"github"`
	Jira   JiraMetrics   `json:"jira"`
}

// MetricsService computes windowed aggregates from stored events. Reads
// only, except that the Jira stalled count cannot be derived from events
// and is fetched live when the user has a usable token.
type MetricsService struct {
	db     *gorm.DB
	tokens *TokenService

	// Overridable in tests.
	newJiraClient func(token string) *JiraClient
}

func NewMetricsService(db *gorm.DB, tokens *TokenService) *MetricsService {
	return &MetricsService{
		db:            db,
		tokens:        tokens,
		newJiraClient: NewJiraClient,
	}
}

// GithubMetricsFor folds the user's stored GitHub events in the period.
// Merged PRs contribute additions and deletions but not their commit
// counts; those would double against the separate commit events.
func (s *MetricsService) GithubMetricsFor(userID uint, period Period) (GithubMetrics, error) {
	var events []models.GithubEvent
	err := s.db.
		Where("user_id = ? AND event_date >= ? AND event_date <= ?", userID, period.Start, period.End).
		Find(&events).Error
	if err != nil {
		return GithubMetrics{}, err
	}

	var m GithubMetrics
	for _, ev := range events {
		switch ev.EventType {
		case models.GithubEventPROpened:
			m.PRsOpened++
		case models.GithubEventPRMerged:
			m.PRsMerged++
			m.Additions += ev.Additions
			m.Deletions += ev.Deletions
		case models.GithubEventReview:
			m.Reviews++
		case models.GithubEventIssueOpened:
			m.IssuesOpened++
		case models.GithubEventIssueClosed:
			m.IssuesClosed++
		case models.GithubEventCommit:
			m.Commits += ev.Commits
		}
	}

	return m, nil
}

// JiraMetricsFor folds the user's stored Jira events in the period. The
// stalled count is a point-in-time structural query with no event
// category, so it is asked of Jira directly; without a usable token it
// stays zero.
func (s *MetricsService) JiraMetricsFor(ctx context.Context, userID uint, period Period) (JiraMetrics, error) {
	var events []models.JiraEvent
	err := s.db.
		Where("user_id = ? AND event_date >= ? AND event_date <= ?", userID, period.Start, period.End).
		Find(&events).Error
	if err != nil {
		return JiraMetrics{}, err
	}

	var m JiraMetrics
	for _, ev := range events {
		switch ev.EventType {
		case models.JiraEventCreated:
			m.Created++
		case models.JiraEventDone:
			m.Done++
		case models.JiraEventInProgress:
			m.InProgress++
		}
	}

	if token := s.tokens.JiraToken(ctx, userID); token != "" {
		live, err := s.newJiraClient(token).GetMetrics(ctx, period)
		if err != nil {
			logger.Warn().Err(err).Uint("user_id", userID).Msg("live stalled count unavailable")
		} else {
			m.Stalled = live.Stalled
		}
	}

	return m, nil
}

// ForPeriod computes both providers' metrics for the period.
func (s *MetricsService) ForPeriod(ctx context.Context, userID uint, period Period) (*PeriodMetrics, error) {
	github, err := s.GithubMetricsFor(userID, period)
	if err != nil {
		return nil, err
	}
	jira, err := s.JiraMetricsFor(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	return &PeriodMetrics{Github: github, Jira: jira}, nil
}

// JiraProjectBreakdown groups the user's stored Jira events in the period
// by project, with a counter per event type. Story points accrue on done
// events only: an estimate counts when the work lands, not when it is filed.
func (s *MetricsService) JiraProjectBreakdown(userID uint, period Period) ([]ProjectBreakdown, error) {
	var events []models.JiraEvent
	err := s.db.
		Where("user_id = ? AND event_date >= ? AND event_date <= ?", userID, period.Start, period.End).
		Order("project_key").
		Find(&events).Error
	if err != nil {
		return nil, err
	}

	byProject := make(map[string]*ProjectBreakdown)
	var order []string

	for _, ev := range events {
		key := ev.ProjectKey
		if key == "" {
			key = "unknown"
		}
		b, ok := byProject[key]
		if !ok {
			name := ev.ProjectName
			if name == "" {
				name = key
			}
			b = &ProjectBreakdown{ProjectKey: key, ProjectName: name}
			byProject[key] = b
			order = append(order, key)
		}
		switch ev.EventType {
		case models.JiraEventCreated:
			b.Created++
		case models.JiraEventDone:
			b.Done++
			b.StoryPoints += ev.StoryPoints
		case models.JiraEventInProgress:
			b.InProgress++
		}
	}

	breakdown := make([]ProjectBreakdown, 0, len(order))
	for _, key := range order {
		breakdown = append(breakdown, *byProject[key])
	}
	return breakdown, nil
}
