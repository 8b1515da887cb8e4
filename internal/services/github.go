package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vulegon/Summarite/internal/models"
	"github.com/vulegon/Summarite/pkg/logger"
)

const (
	githubGraphQLURL = "https://api.github.com/graphql"

	// GitHub search pagination: 100 per page, at most 1000 events collected
	// per category. The cap is a safety valve inherited from the previous
	// implementation; truncation is logged, not reported.
	githubPageSize    = 100
	githubCategoryCap = 1000
)

// contributionsCollection rejects ranges longer than one year.
const maxContributionWindow = 365 * 24 * time.Hour

// GithubClient fetches a user's activity through the GitHub GraphQL API.
// A client instance belongs to a single sync operation; the cached viewer
// login must never be shared across users.
type GithubClient struct {
	baseURL  string
	token    string
	http     *http.Client
	username string
}

func NewGithubClient(accessToken string) *GithubClient {
	return &GithubClient{
		baseURL: githubGraphQLURL,
		token:   accessToken,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// graphql posts one query and decodes the data payload into out.
// Non-2xx responses and GraphQL-level errors both abort.
func (c *GithubClient) graphql(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("github graphql request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("github graphql status %d: %s", resp.StatusCode, string(body))
	}

	var gr graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return fmt.Errorf("github graphql decode: %w", err)
	}
	if len(gr.Errors) > 0 {
		return fmt.Errorf("github graphql error: %s", gr.Errors[0].Message)
	}
	if gr.Data == nil {
		return fmt.Errorf("github graphql: empty data")
	}

	return json.Unmarshal(gr.Data, out)
}

// Username resolves and caches the authenticated viewer's login.
func (c *GithubClient) Username(ctx context.Context) (string, error) {
	if c.username != "" {
		return c.username, nil
	}

	var data struct {
		Viewer struct {
			Login string `json:"login"`
		} `json:"viewer"`
	}
	if err := c.graphql(ctx, `query { viewer { login } }`, nil, &data); err != nil {
		return "", err
	}

	c.username = data.Viewer.Login
	return c.username, nil
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type searchNode struct {
	Number     int    `json:"number"`
	Title      string `json:"title"`
	CreatedAt  string `json:"createdAt"`
	ClosedAt   string `json:"closedAt"`
	MergedAt   string `json:"mergedAt"`
	Additions  int    `json:"additions"`
	Deletions  int    `json:"deletions"`
	Commits    struct {
		TotalCount int `json:"totalCount"`
	} `json:"commits"`
	Repository struct {
		NameWithOwner string `json:"nameWithOwner"`
	} `json:"repository"`
}

type searchData struct {
	Search struct {
		IssueCount int          `json:"issueCount"`
		Nodes      []searchNode `json:"nodes"`
		PageInfo   pageInfo     `json:"pageInfo"`
	} `json:"search"`
}

// FetchEvents collects the user's GitHub activity in [start, end] as
// normalized events. UserID is left zero; the caller owns attribution.
func (c *GithubClient) FetchEvents(ctx context.Context, start, end time.Time) ([]models.GithubEvent, error) {
	username, err := c.Username(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve github username: %w", err)
	}

	from := start.Format("2006-01-02")
	to := end.Format("2006-01-02")
	logger.Info().Str("username", username).Str("from", from).Str("to", to).Msg("fetching github events")

	var events []models.GithubEvent

	merged, err := c.fetchMergedPRs(ctx, username, from, to)
	if err != nil {
		return nil, err
	}
	events = append(events, merged...)

	opened, err := c.fetchOpenedPRs(ctx, username, from, to)
	if err != nil {
		return nil, err
	}
	events = append(events, opened...)

	reviews := c.fetchReviews(ctx, start, end)
	events = append(events, reviews...)

	openedIssues, err := c.fetchOpenedIssues(ctx, username, from, to)
	if err != nil {
		return nil, err
	}
	events = append(events, openedIssues...)

	closedIssues, err := c.fetchClosedIssues(ctx, username, from, to)
	if err != nil {
		return nil, err
	}
	events = append(events, closedIssues...)

	commits := c.fetchCommitContributions(ctx, start, end)
	events = append(events, commits...)

	logger.Info().Int("count", len(events)).Msg("github events fetched")
	return events, nil
}

const mergedPRsQuery = `
query ($searchQuery: String!, $cursor: String) {
  search(query: $searchQuery, type: ISSUE, first: 100, after: $cursor) {
    issueCount
    nodes {
      ... on PullRequest {
        number
        title
        mergedAt
        additions
        deletions
        commits { totalCount }
        repository { nameWithOwner }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

func (c *GithubClient) fetchMergedPRs(ctx context.Context, username, from, to string) ([]models.GithubEvent, error) {
	searchQuery := fmt.Sprintf("is:pr is:merged author:%s merged:%s..%s", username, from, to)

	return c.searchEvents(ctx, mergedPRsQuery, searchQuery, func(n searchNode) (models.GithubEvent, bool) {
		if n.Repository.NameWithOwner == "" || n.MergedAt == "" {
			return models.GithubEvent{}, false
		}
		mergedAt, err := time.Parse(time.RFC3339, n.MergedAt)
		if err != nil {
			return models.GithubEvent{}, false
		}
		return models.GithubEvent{
			EventType:  models.GithubEventPRMerged,
			EventDate:  mergedAt,
			ExternalID: fmt.Sprintf("%s#%d", n.Repository.NameWithOwner, n.Number),
			Repo:       n.Repository.NameWithOwner,
			Additions:  n.Additions,
			Deletions:  n.Deletions,
			Commits:    n.Commits.TotalCount,
		}, true
	})
}

const openedPRsQuery = `
query ($searchQuery: String!, $cursor: String) {
  search(query: $searchQuery, type: ISSUE, first: 100, after: $cursor) {
    issueCount
    nodes {
      ... on PullRequest {
        number
        createdAt
        repository { nameWithOwner }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

func (c *GithubClient) fetchOpenedPRs(ctx context.Context, username, from, to string) ([]models.GithubEvent, error) {
	searchQuery := fmt.Sprintf("is:pr author:%s created:%s..%s", username, from, to)

	return c.searchEvents(ctx, openedPRsQuery, searchQuery, func(n searchNode) (models.GithubEvent, bool) {
		if n.Repository.NameWithOwner == "" || n.CreatedAt == "" {
			return models.GithubEvent{}, false
		}
		createdAt, err := time.Parse(time.RFC3339, n.CreatedAt)
		if err != nil {
			return models.GithubEvent{}, false
		}
		return models.GithubEvent{
			EventType:  models.GithubEventPROpened,
			EventDate:  createdAt,
			ExternalID: fmt.Sprintf("%s#%d-opened", n.Repository.NameWithOwner, n.Number),
			Repo:       n.Repository.NameWithOwner,
		}, true
	})
}

const openedIssuesQuery = `
query ($searchQuery: String!, $cursor: String) {
  search(query: $searchQuery, type: ISSUE, first: 100, after: $cursor) {
    issueCount
    nodes {
      ... on Issue {
        number
        createdAt
        repository { nameWithOwner }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

func (c *GithubClient) fetchOpenedIssues(ctx context.Context, username, from, to string) ([]models.GithubEvent, error) {
	searchQuery := fmt.Sprintf("is:issue author:%s created:%s..%s", username, from, to)

	return c.searchEvents(ctx, openedIssuesQuery, searchQuery, func(n searchNode) (models.GithubEvent, bool) {
		if n.Repository.NameWithOwner == "" || n.CreatedAt == "" {
			return models.GithubEvent{}, false
		}
		createdAt, err := time.Parse(time.RFC3339, n.CreatedAt)
		if err != nil {
			return models.GithubEvent{}, false
		}
		return models.GithubEvent{
			EventType:  models.GithubEventIssueOpened,
			EventDate:  createdAt,
			ExternalID: fmt.Sprintf("%s#%d-opened", n.Repository.NameWithOwner, n.Number),
			Repo:       n.Repository.NameWithOwner,
		}, true
	})
}

const closedIssuesQuery = `
query ($searchQuery: String!, $cursor: String) {
  search(query: $searchQuery, type: ISSUE, first: 100, after: $cursor) {
    issueCount
    nodes {
      ... on Issue {
        number
        closedAt
        repository { nameWithOwner }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

func (c *GithubClient) fetchClosedIssues(ctx context.Context, username, from, to string) ([]models.GithubEvent, error) {
	searchQuery := fmt.Sprintf("is:issue is:closed author:%s closed:%s..%s", username, from, to)

	return c.searchEvents(ctx, closedIssuesQuery, searchQuery, func(n searchNode) (models.GithubEvent, bool) {
		if n.Repository.NameWithOwner == "" || n.ClosedAt == "" {
			return models.GithubEvent{}, false
		}
		closedAt, err := time.Parse(time.RFC3339, n.ClosedAt)
		if err != nil {
			return models.GithubEvent{}, false
		}
		return models.GithubEvent{
			EventType:  models.GithubEventIssueClosed,
			EventDate:  closedAt,
			ExternalID: fmt.Sprintf("%s#%d-closed", n.Repository.NameWithOwner, n.Number),
			Repo:       n.Repository.NameWithOwner,
		}, true
	})
}

// searchEvents walks cursor pages of one search query, mapping nodes to
// events until pages run out or the category cap is reached.
func (c *GithubClient) searchEvents(ctx context.Context, query, searchQuery string, mapNode func(searchNode) (models.GithubEvent, bool)) ([]models.GithubEvent, error) {
	var events []models.GithubEvent
	var cursor string

	for {
		variables := map[string]interface{}{"searchQuery": searchQuery}
		if cursor != "" {
			variables["cursor"] = cursor
		}

		var data searchData
		if err := c.graphql(ctx, query, variables, &data); err != nil {
			return nil, err
		}

		for _, node := range data.Search.Nodes {
			if ev, ok := mapNode(node); ok {
				events = append(events, ev)
			}
		}

		if len(events) >= githubCategoryCap {
			logger.Warn().Str("search", searchQuery).Msg("github category cap reached, truncating")
			break
		}
		if !data.Search.PageInfo.HasNextPage {
			break
		}
		cursor = data.Search.PageInfo.EndCursor
	}

	return events, nil
}

const reviewContributionsQuery = `
query ($from: DateTime!, $to: DateTime!, $cursor: String) {
  viewer {
    contributionsCollection(from: $from, to: $to) {
      pullRequestReviewContributions(first: 100, after: $cursor) {
        totalCount
        nodes {
          occurredAt
          pullRequestReview {
            pullRequest {
              number
              repository { nameWithOwner }
            }
          }
        }
        pageInfo { hasNextPage endCursor }
      }
    }
  }
}`

type reviewContributionsData struct {
	Viewer struct {
		ContributionsCollection struct {
			PullRequestReviewContributions struct {
				TotalCount int `json:"totalCount"`
				Nodes      []struct {
					OccurredAt        string `json:"occurredAt"`
					PullRequestReview *struct {
						PullRequest struct {
							Number     int `json:"number"`
							Repository struct {
								NameWithOwner string `json:"nameWithOwner"`
							} `json:"repository"`
						} `json:"pullRequest"`
					} `json:"pullRequestReview"`
				} `json:"nodes"`
				PageInfo pageInfo `json:"pageInfo"`
			} `json:"pullRequestReviewContributions"`
		} `json:"contributionsCollection"`
	} `json:"viewer"`
}

// fetchReviews collects review contributions, splitting the range into
// one-year sub-windows. A failing sub-window yields zero results for that
// window rather than failing the whole sync.
func (c *GithubClient) fetchReviews(ctx context.Context, start, end time.Time) []models.GithubEvent {
	var events []models.GithubEvent

	for _, window := range splitWindows(start, end) {
		var cursor string

		for {
			variables := map[string]interface{}{
				"from": window.start.Format(time.RFC3339),
				"to":   window.end.Format(time.RFC3339),
			}
			if cursor != "" {
				variables["cursor"] = cursor
			}

			var data reviewContributionsData
			if err := c.graphql(ctx, reviewContributionsQuery, variables, &data); err != nil {
				logger.Error().Err(err).Msg("review contributions fetch failed, skipping window")
				break
			}

			contributions := data.Viewer.ContributionsCollection.PullRequestReviewContributions
			for _, node := range contributions.Nodes {
				if node.PullRequestReview == nil || node.PullRequestReview.PullRequest.Repository.NameWithOwner == "" {
					continue
				}
				occurredAt, err := time.Parse(time.RFC3339, node.OccurredAt)
				if err != nil {
					continue
				}
				pr := node.PullRequestReview.PullRequest
				events = append(events, models.GithubEvent{
					EventType:  models.GithubEventReview,
					EventDate:  occurredAt,
					ExternalID: fmt.Sprintf("%s#%d-review-%s", pr.Repository.NameWithOwner, pr.Number, occurredAt.Format(time.RFC3339)),
					Repo:       pr.Repository.NameWithOwner,
				})
			}

			if len(events) >= githubCategoryCap {
				logger.Warn().Msg("github review cap reached, truncating")
				return events
			}
			if !contributions.PageInfo.HasNextPage {
				break
			}
			cursor = contributions.PageInfo.EndCursor
		}
	}

	return events
}

const commitContributionsQuery = `
query ($from: DateTime!, $to: DateTime!) {
  viewer {
    contributionsCollection(from: $from, to: $to) {
      totalCommitContributions
      commitContributionsByRepository(maxRepositories: 100) {
        repository { nameWithOwner }
        contributions { totalCount }
      }
    }
  }
}`

type commitContributionsData struct {
	Viewer struct {
		ContributionsCollection struct {
			TotalCommitContributions       int `json:"totalCommitContributions"`
			CommitContributionsByRepository []struct {
				Repository struct {
					NameWithOwner string `json:"nameWithOwner"`
				} `json:"repository"`
				Contributions struct {
					TotalCount int `json:"totalCount"`
				} `json:"contributions"`
			} `json:"commitContributionsByRepository"`
		} `json:"contributionsCollection"`
	} `json:"viewer"`
}

// fetchCommitContributions records per-repository commit totals per
// one-year sub-window. The contribution API exposes no per-commit dates, so
// the event is attributed to the window start. Window errors are skipped.
func (c *GithubClient) fetchCommitContributions(ctx context.Context, start, end time.Time) []models.GithubEvent {
	var events []models.GithubEvent

	for _, window := range splitWindows(start, end) {
		variables := map[string]interface{}{
			"from": window.start.Format(time.RFC3339),
			"to":   window.end.Format(time.RFC3339),
		}

		var data commitContributionsData
		if err := c.graphql(ctx, commitContributionsQuery, variables, &data); err != nil {
			logger.Error().Err(err).Msg("commit contributions fetch failed, skipping window")
			continue
		}

		for _, repoContrib := range data.Viewer.ContributionsCollection.CommitContributionsByRepository {
			if repoContrib.Contributions.TotalCount == 0 {
				continue
			}
			events = append(events, models.GithubEvent{
				EventType:  models.GithubEventCommit,
				EventDate:  window.start,
				ExternalID: fmt.Sprintf("%s-commits-%s", repoContrib.Repository.NameWithOwner, window.start.Format("2006-01-02")),
				Repo:       repoContrib.Repository.NameWithOwner,
				Commits:    repoContrib.Contributions.TotalCount,
			})
		}
	}

	return events
}

type dateWindow struct {
	start time.Time
	end   time.Time
}

// splitWindows cuts [start, end] into sub-windows no longer than one year.
func splitWindows(start, end time.Time) []dateWindow {
	var windows []dateWindow

	current := start
	for current.Before(end) {
		windowEnd := current.Add(maxContributionWindow)
		if windowEnd.After(end) {
			windowEnd = end
		}
		windows = append(windows, dateWindow{start: current, end: windowEnd})
		current = windowEnd.Add(time.Nanosecond)
	}

	return windows
}
