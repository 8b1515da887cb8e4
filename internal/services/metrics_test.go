package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/vulegon/Summarite/internal/models"
)

func seedGithubEvent(t *testing.T, db *gorm.DB, ev models.GithubEvent) {
	t.Helper()
	if err := db.Create(&ev).Error; err != nil {
		t.Fatalf("seed github event: %v", err)
	}
}

func seedJiraEvent(t *testing.T, db *gorm.DB, ev models.JiraEvent) {
	t.Helper()
	if err := db.Create(&ev).Error; err != nil {
		t.Fatalf("seed jira event: %v", err)
	}
}

func newMetricsService(db *gorm.DB) *MetricsService {
	return NewMetricsService(db, NewTokenService(db, testConfig()))
}

func TestGithubMetricsFor_MergedPRTotals(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "metrics-user")
	svc := newMetricsService(db)

	additions := []int{10, 20, 5}
	deletions := []int{2, 3, 1}
	for i := range additions {
		seedGithubEvent(t, db, models.GithubEvent{
			UserID:     user.ID,
			EventType:  models.GithubEventPRMerged,
			EventDate:  date(2024, 3, 12).AddDate(0, 0, i),
			ExternalID: fmt.Sprintf("acme/app#%d", i+1),
			Repo:       "acme/app",
			Additions:  additions[i],
			Deletions:  deletions[i],
			Commits:    4, // must not leak into the commit aggregate
		})
	}

	m, err := svc.GithubMetricsFor(user.ID, CustomPeriod(date(2024, 3, 11), date(2024, 3, 17)))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	if m.PRsMerged != 3 {
		t.Errorf("PRsMerged = %d, expected 3", m.PRsMerged)
	}
	if m.Additions != 35 {
		t.Errorf("Additions = %d, expected 35", m.Additions)
	}
	if m.Deletions != 6 {
		t.Errorf("Deletions = %d, expected 6", m.Deletions)
	}
	if m.Commits != 0 {
		t.Errorf("Commits = %d, expected 0: merged-PR commit counts are per-PR detail", m.Commits)
	}
}

func TestGithubMetricsFor_CommitEventsAccumulate(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "commit-user")
	svc := newMetricsService(db)

	seedGithubEvent(t, db, models.GithubEvent{
		UserID: user.ID, EventType: models.GithubEventCommit,
		EventDate: date(2024, 3, 12), ExternalID: "acme/app-commits-2024-03-12",
		Repo: "acme/app", Commits: 7,
	})
	seedGithubEvent(t, db, models.GithubEvent{
		UserID: user.ID, EventType: models.GithubEventCommit,
		EventDate: date(2024, 3, 13), ExternalID: "acme/lib-commits-2024-03-13",
		Repo: "acme/lib", Commits: 3,
	})

	m, err := svc.GithubMetricsFor(user.ID, CustomPeriod(date(2024, 3, 11), date(2024, 3, 17)))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if m.Commits != 10 {
		t.Errorf("Commits = %d, expected 10", m.Commits)
	}
}

func TestGithubMetricsFor_BoundaryInclusive(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "boundary-user")
	svc := newMetricsService(db)

	period := CustomPeriod(date(2024, 3, 11), date(2024, 3, 17))

	seedGithubEvent(t, db, models.GithubEvent{
		UserID: user.ID, EventType: models.GithubEventPROpened,
		EventDate: period.Start, ExternalID: "acme/app#10-opened", Repo: "acme/app",
	})
	seedGithubEvent(t, db, models.GithubEvent{
		UserID: user.ID, EventType: models.GithubEventReview,
		EventDate: period.End, ExternalID: "acme/app#11-review-x", Repo: "acme/app",
	})
	// Just outside on either side.
	seedGithubEvent(t, db, models.GithubEvent{
		UserID: user.ID, EventType: models.GithubEventPROpened,
		EventDate: period.Start.Add(-time.Second), ExternalID: "acme/app#12-opened", Repo: "acme/app",
	})

	m, err := svc.GithubMetricsFor(user.ID, period)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if m.PRsOpened != 1 {
		t.Errorf("PRsOpened = %d, expected 1 (boundary start inclusive, earlier excluded)", m.PRsOpened)
	}
	if m.Reviews != 1 {
		t.Errorf("Reviews = %d, expected 1 (boundary end inclusive)", m.Reviews)
	}
}

func TestGithubMetricsFor_Additivity(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "additivity-user")
	svc := newMetricsService(db)

	r1 := CustomPeriod(date(2024, 3, 1), date(2024, 3, 10))
	r2 := CustomPeriod(date(2024, 3, 11), date(2024, 3, 20))
	union := CustomPeriod(date(2024, 3, 1), date(2024, 3, 20))

	seedGithubEvent(t, db, models.GithubEvent{
		UserID: user.ID, EventType: models.GithubEventPRMerged,
		EventDate: date(2024, 3, 5), ExternalID: "acme/app#1",
		Repo: "acme/app", Additions: 10, Deletions: 4,
	})
	seedGithubEvent(t, db, models.GithubEvent{
		UserID: user.ID, EventType: models.GithubEventPRMerged,
		EventDate: date(2024, 3, 15), ExternalID: "acme/app#2",
		Repo: "acme/app", Additions: 20, Deletions: 6,
	})
	seedGithubEvent(t, db, models.GithubEvent{
		UserID: user.ID, EventType: models.GithubEventCommit,
		EventDate: date(2024, 3, 15), ExternalID: "acme/app-commits-2024-03-15",
		Repo: "acme/app", Commits: 5,
	})

	m1, err := svc.GithubMetricsFor(user.ID, r1)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := svc.GithubMetricsFor(user.ID, r2)
	if err != nil {
		t.Fatal(err)
	}
	mu, err := svc.GithubMetricsFor(user.ID, union)
	if err != nil {
		t.Fatal(err)
	}

	if m1.PRsMerged+m2.PRsMerged != mu.PRsMerged {
		t.Errorf("PRsMerged not additive: %d + %d != %d", m1.PRsMerged, m2.PRsMerged, mu.PRsMerged)
	}
	if m1.Additions+m2.Additions != mu.Additions {
		t.Errorf("Additions not additive: %d + %d != %d", m1.Additions, m2.Additions, mu.Additions)
	}
	if m1.Deletions+m2.Deletions != mu.Deletions {
		t.Errorf("Deletions not additive: %d + %d != %d", m1.Deletions, m2.Deletions, mu.Deletions)
	}
	if m1.Commits+m2.Commits != mu.Commits {
		t.Errorf("Commits not additive: %d + %d != %d", m1.Commits, m2.Commits, mu.Commits)
	}
}

func TestJiraMetricsFor_CountersFromStoredEvents(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "jira-metrics-user")
	svc := newMetricsService(db)

	seedJiraEvent(t, db, models.JiraEvent{
		UserID: user.ID, EventType: models.JiraEventCreated,
		EventDate: date(2024, 3, 12), IssueKey: "PROJ-1", ProjectKey: "PROJ",
	})
	seedJiraEvent(t, db, models.JiraEvent{
		UserID: user.ID, EventType: models.JiraEventDone,
		EventDate: date(2024, 3, 13), IssueKey: "PROJ-1", ProjectKey: "PROJ",
	})
	seedJiraEvent(t, db, models.JiraEvent{
		UserID: user.ID, EventType: models.JiraEventInProgress,
		EventDate: date(2024, 3, 14), IssueKey: "PROJ-2", ProjectKey: "PROJ",
	})

	m, err := svc.JiraMetricsFor(context.Background(), user.ID, CustomPeriod(date(2024, 3, 11), date(2024, 3, 17)))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	if m.Created != 1 || m.Done != 1 || m.InProgress != 1 {
		t.Errorf("counters = %+v, expected created/done/inProgress all 1", m)
	}
	// No connected Jira account: the live-only stalled count stays zero.
	if m.Stalled != 0 {
		t.Errorf("Stalled = %d, expected 0 without a usable token", m.Stalled)
	}
}

func TestJiraProjectBreakdown(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "breakdown-user")
	svc := newMetricsService(db)

	// PROJ-1 both created and done in the window: each event type counts,
	// but its points land only with the done event.
	seedJiraEvent(t, db, models.JiraEvent{
		UserID: user.ID, EventType: models.JiraEventCreated,
		EventDate: date(2024, 3, 12), IssueKey: "PROJ-1",
		ProjectKey: "PROJ", ProjectName: "Project One", StoryPoints: 8,
	})
	seedJiraEvent(t, db, models.JiraEvent{
		UserID: user.ID, EventType: models.JiraEventDone,
		EventDate: date(2024, 3, 13), IssueKey: "PROJ-1",
		ProjectKey: "PROJ", ProjectName: "Project One", StoryPoints: 8,
	})
	seedJiraEvent(t, db, models.JiraEvent{
		UserID: user.ID, EventType: models.JiraEventInProgress,
		EventDate: date(2024, 3, 14), IssueKey: "PROJ-2",
		ProjectKey: "PROJ", ProjectName: "Project One", StoryPoints: 5,
	})
	seedJiraEvent(t, db, models.JiraEvent{
		UserID: user.ID, EventType: models.JiraEventCreated,
		EventDate: date(2024, 3, 14), IssueKey: "OTHER-9",
		ProjectKey: "OTHER", ProjectName: "Other", StoryPoints: 5,
	})

	breakdown, err := svc.JiraProjectBreakdown(user.ID, CustomPeriod(date(2024, 3, 11), date(2024, 3, 17)))
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}

	if len(breakdown) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(breakdown))
	}
	for _, b := range breakdown {
		switch b.ProjectKey {
		case "PROJ":
			if b.Created != 1 || b.Done != 1 || b.InProgress != 1 {
				t.Errorf("PROJ counters = %+v, expected created/done/inProgress all 1", b)
			}
			if b.StoryPoints != 8 {
				t.Errorf("PROJ StoryPoints = %v, expected 8 (done events only)", b.StoryPoints)
			}
		case "OTHER":
			// Created but not finished: no points yet.
			if b.Created != 1 || b.Done != 0 || b.StoryPoints != 0 {
				t.Errorf("OTHER = %+v, expected 1 created / 0 points", b)
			}
		default:
			t.Errorf("unexpected project %q", b.ProjectKey)
		}
	}
}

func TestJiraProjectBreakdown_MissingProjectKey(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "no-project-user")
	svc := newMetricsService(db)

	seedJiraEvent(t, db, models.JiraEvent{
		UserID: user.ID, EventType: models.JiraEventDone,
		EventDate: date(2024, 3, 12), IssueKey: "ORPHAN-1", StoryPoints: 2,
	})

	breakdown, err := svc.JiraProjectBreakdown(user.ID, CustomPeriod(date(2024, 3, 11), date(2024, 3, 17)))
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if len(breakdown) != 1 {
		t.Fatalf("expected 1 project, got %d", len(breakdown))
	}
	b := breakdown[0]
	if b.ProjectKey != "unknown" || b.ProjectName != "unknown" {
		t.Errorf("fallback project = %q/%q, expected unknown", b.ProjectKey, b.ProjectName)
	}
	if b.Done != 1 || b.StoryPoints != 2 {
		t.Errorf("unknown project = %+v, expected 1 done / 2 points", b)
	}
}
