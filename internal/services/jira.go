package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/vulegon/Summarite/internal/models"
	"github.com/vulegon/Summarite/pkg/logger"
)

const (
	jiraAPIBase = "https://api.atlassian.com"

	jiraPageSize  = 100
	jiraIssuesCap = 1000
)

// JiraMetrics are the live issue counts for one period. Stalled is only
// answerable by Jira itself: it is a point-in-time structural query, not
// something a stored event stream can reproduce.
type JiraMetrics struct {
	Created    int `json:"created"`
	Done       int `json:"done"`
	InProgress int `json:"in_progress"`
	Stalled    int `json:"stalled"`
}

// JiraClient talks to one Jira Cloud tenant through the REST v3 API.
// The cloud ID is resolved once per instance; an instance belongs to a
// single sync operation and must not be shared across users.
type JiraClient struct {
	baseURL string
	token   string
	http    *http.Client
	cloudID string
}

func NewJiraClient(accessToken string) *JiraClient {
	return &JiraClient{
		baseURL: jiraAPIBase,
		token:   accessToken,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// resolveCloudID finds the tenant this token can address. Every issue
// query goes through the cloud-ID indirection, so this must succeed first.
func (c *JiraClient) resolveCloudID(ctx context.Context) (string, error) {
	if c.cloudID != "" {
		return c.cloudID, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/oauth/token/accessible-resources", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("jira accessible-resources: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("jira accessible-resources status %d: %s", resp.StatusCode, string(body))
	}

	var resources []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&resources); err != nil {
		return "", fmt.Errorf("jira accessible-resources decode: %w", err)
	}
	if len(resources) == 0 {
		return "", fmt.Errorf("no jira cloud resources found")
	}

	c.cloudID = resources[0].ID
	return c.cloudID, nil
}

// GetMetrics runs the four count queries for the period in parallel.
// Each query swallows its own failure as zero so one broken JQL never
// blanks the whole metrics panel.
func (c *JiraClient) GetMetrics(ctx context.Context, period Period) (JiraMetrics, error) {
	if _, err := c.resolveCloudID(ctx); err != nil {
		return JiraMetrics{}, err
	}

	startDate := period.Start.Format("2006-01-02")
	endDate := period.End.Format("2006-01-02")

	var metrics JiraMetrics
	var wg sync.WaitGroup

	count := func(dst *int, jql string) {
		defer wg.Done()
		n, err := c.searchCount(ctx, jql)
		if err != nil {
			logger.Warn().Err(err).Str("jql", jql).Msg("jira count query failed, using zero")
			return
		}
		*dst = n
	}

	wg.Add(4)
	go count(&metrics.Created, fmt.Sprintf(`created >= "%s" AND created <= "%s"`, startDate, endDate))
	go count(&metrics.Done, fmt.Sprintf(`status = Done AND resolutiondate >= "%s" AND resolutiondate <= "%s"`, startDate, endDate))
	go count(&metrics.InProgress, fmt.Sprintf(`status = "In Progress" AND updated >= "%s" AND updated <= "%s"`, startDate, endDate))
	// Strictly before the period start on both clauses: an issue touched on
	// the boundary day itself is not stalled.
	go count(&metrics.Stalled, fmt.Sprintf(`status != Done AND updated < "%s" AND created < "%s"`, startDate, startDate))
	wg.Wait()

	return metrics, nil
}

func (c *JiraClient) searchCount(ctx context.Context, jql string) (int, error) {
	cloudID, err := c.resolveCloudID(ctx)
	if err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/ex/jira/%s/rest/api/3/search?jql=%s&maxResults=0",
		c.baseURL, cloudID, url.QueryEscape(jql))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("jira search status %d", resp.StatusCode)
	}

	var result struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}
	return result.Total, nil
}

type jiraIssue struct {
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

type jiraSearchPage struct {
	Issues        []jiraIssue `json:"issues"`
	NextPageToken string      `json:"nextPageToken"`
}

// FetchEvents collects the current user's issues in [start, end] as
// normalized events. Story points live in a tenant-configurable custom
// field, so its ID is a caller parameter.
func (c *JiraClient) FetchEvents(ctx context.Context, start, end time.Time, storyPointsFieldID string) ([]models.JiraEvent, error) {
	if _, err := c.resolveCloudID(ctx); err != nil {
		return nil, err
	}

	fromDate := start.Format("2006-01-02")
	toDate := end.Format("2006-01-02")

	var events []models.JiraEvent

	created := c.searchIssues(ctx, fmt.Sprintf(
		`assignee = currentUser() AND created >= "%s" AND created <= "%s"`, fromDate, toDate), storyPointsFieldID)
	for _, issue := range created {
		if ev, ok := c.issueToEvent(issue, models.JiraEventCreated, "created", storyPointsFieldID); ok {
			events = append(events, ev)
		}
	}

	done := c.searchIssues(ctx, fmt.Sprintf(
		`assignee = currentUser() AND status = Done AND resolutiondate >= "%s" AND resolutiondate <= "%s"`, fromDate, toDate), storyPointsFieldID)
	for _, issue := range done {
		if ev, ok := c.issueToEvent(issue, models.JiraEventDone, "resolutiondate", storyPointsFieldID); ok {
			events = append(events, ev)
		}
	}

	inProgress := c.searchIssues(ctx, fmt.Sprintf(
		`assignee = currentUser() AND status = "In Progress" AND updated >= "%s" AND updated <= "%s"`, fromDate, toDate), storyPointsFieldID)
	for _, issue := range inProgress {
		if ev, ok := c.issueToEvent(issue, models.JiraEventInProgress, "updated", storyPointsFieldID); ok {
			events = append(events, ev)
		}
	}

	logger.Info().Int("count", len(events)).Msg("jira events fetched")
	return events, nil
}

// searchIssues walks token-based cursor pages. A page error stops the loop
// and returns what was accumulated so far.
func (c *JiraClient) searchIssues(ctx context.Context, jql, storyPointsFieldID string) []jiraIssue {
	fields := []string{
		"project", "issuetype", "priority", "status", "summary",
		"assignee", "reporter", "created", "resolutiondate", "updated",
	}
	if storyPointsFieldID != "" {
		fields = append(fields, storyPointsFieldID)
	}

	var issues []jiraIssue
	var nextPageToken string

	for {
		page, err := c.searchPage(ctx, jql, fields, nextPageToken)
		if err != nil {
			logger.Error().Err(err).Str("jql", jql).Msg("jira search failed, returning partial results")
			break
		}

		issues = append(issues, page.Issues...)

		if len(issues) >= jiraIssuesCap {
			logger.Warn().Str("jql", jql).Msg("jira issue cap reached, truncating")
			break
		}
		if page.NextPageToken == "" {
			break
		}
		nextPageToken = page.NextPageToken
	}

	return issues
}

func (c *JiraClient) searchPage(ctx context.Context, jql string, fields []string, nextPageToken string) (*jiraSearchPage, error) {
	cloudID, err := c.resolveCloudID(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"jql":        jql,
		"fields":     fields,
		"maxResults": jiraPageSize,
	}
	if nextPageToken != "" {
		body["nextPageToken"] = nextPageToken
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/ex/jira/%s/rest/api/3/search/jql", c.baseURL, cloudID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("jira search status %d: %s", resp.StatusCode, string(errBody))
	}

	var page jiraSearchPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, err
	}
	return &page, nil
}

// issueToEvent maps one issue to an event whose date comes from the
// type-specific field: created, resolutiondate or updated.
func (c *JiraClient) issueToEvent(issue jiraIssue, eventType, dateField, storyPointsFieldID string) (models.JiraEvent, bool) {
	dateStr := fieldString(issue.Fields, dateField)
	if dateStr == "" {
		return models.JiraEvent{}, false
	}
	eventDate, err := parseJiraTime(dateStr)
	if err != nil {
		return models.JiraEvent{}, false
	}

	ev := models.JiraEvent{
		EventType:   eventType,
		EventDate:   eventDate,
		IssueKey:    issue.Key,
		ProjectKey:  fieldNestedString(issue.Fields, "project", "key"),
		ProjectName: fieldNestedString(issue.Fields, "project", "name"),
		IssueType:   fieldNestedString(issue.Fields, "issuetype", "name"),
		Priority:    fieldNestedString(issue.Fields, "priority", "name"),
		Status:      fieldNestedString(issue.Fields, "status", "name"),
		Summary:     fieldString(issue.Fields, "summary"),
		Assignee:    fieldNestedString(issue.Fields, "assignee", "displayName"),
		Reporter:    fieldNestedString(issue.Fields, "reporter", "displayName"),
	}

	if storyPointsFieldID != "" {
		if raw, ok := issue.Fields[storyPointsFieldID]; ok {
			var points float64
			if err := json.Unmarshal(raw, &points); err == nil {
				ev.StoryPoints = points
			}
		}
	}

	return ev, true
}

func fieldString(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func fieldNestedString(fields map[string]json.RawMessage, key, nested string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return fieldString(obj, nested)
}

// parseJiraTime accepts Jira's millisecond-offset timestamps as well as
// plain RFC 3339.
func parseJiraTime(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04:05.000-0700", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
