package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newJiraTestClient(t *testing.T, handler http.HandlerFunc) *JiraClient {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token/accessible-resources" {
			json.NewEncoder(w).Encode([]map[string]string{{"id": "cloud-123"}})
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := NewJiraClient("test-token")
	client.baseURL = server.URL
	return client
}

func TestGetMetrics_StalledUsesStrictBounds(t *testing.T) {
	jqls := make(chan string, 8)
	client := newJiraTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jqls <- r.URL.Query().Get("jql")
		json.NewEncoder(w).Encode(map[string]int{"total": 3})
	})

	period := CustomPeriod(date(2024, 3, 1), date(2024, 3, 31))
	metrics, err := client.GetMetrics(context.Background(), period)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	if metrics.Created != 3 || metrics.Done != 3 || metrics.InProgress != 3 || metrics.Stalled != 3 {
		t.Errorf("metrics = %+v, expected all 3", metrics)
	}

	close(jqls)
	var sawStalled bool
	for jql := range jqls {
		if strings.Contains(jql, "status != Done") {
			sawStalled = true
			// Boundary-day activity must not count: strictly before the start.
			if !strings.Contains(jql, `updated < "2024-03-01"`) || !strings.Contains(jql, `created < "2024-03-01"`) {
				t.Errorf("stalled JQL not strict: %q", jql)
			}
			if strings.Contains(jql, "<=") {
				t.Errorf("stalled JQL must not be inclusive: %q", jql)
			}
		}
	}
	if !sawStalled {
		t.Error("stalled count query never issued")
	}
}

func TestGetMetrics_CountErrorsSwallowedAsZero(t *testing.T) {
	client := newJiraTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jql := r.URL.Query().Get("jql")
		if strings.Contains(jql, "resolutiondate") {
			http.Error(w, "bad jql", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]int{"total": 5})
	})

	metrics, err := client.GetMetrics(context.Background(), CustomPeriod(date(2024, 3, 1), date(2024, 3, 31)))
	if err != nil {
		t.Fatalf("metrics should not fail on a single broken count: %v", err)
	}

	if metrics.Done != 0 {
		t.Errorf("Done = %d, expected 0 for the failed query", metrics.Done)
	}
	if metrics.Created != 5 {
		t.Errorf("Created = %d, expected 5", metrics.Created)
	}
}

func jiraIssuePayload(key, created string, points float64) map[string]interface{} {
	fields := map[string]interface{}{
		"project":   map[string]string{"key": "PROJ", "name": "Project One"},
		"issuetype": map[string]string{"name": "Story"},
		"priority":  map[string]string{"name": "High"},
		"status":    map[string]string{"name": "In Progress"},
		"summary":   "Do the thing",
		"assignee":  map[string]string{"displayName": "Dev One"},
		"reporter":  map[string]string{"displayName": "PM One"},
		"created":   created,
		"updated":   created,
	}
	if points > 0 {
		fields["customfield_10016"] = points
	}
	return map[string]interface{}{"key": key, "fields": fields}
}

func TestFetchEvents_PaginationAndStoryPoints(t *testing.T) {
	pages := 0
	client := newJiraTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/search/jql") {
			http.NotFound(w, r)
			return
		}

		var body struct {
			JQL           string   `json:"jql"`
			Fields        []string `json:"fields"`
			NextPageToken string   `json:"nextPageToken"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		// Only the created-issues search returns data in this test.
		if !strings.Contains(body.JQL, "created >=") {
			json.NewEncoder(w).Encode(map[string]interface{}{"issues": []interface{}{}})
			return
		}

		hasField := false
		for _, f := range body.Fields {
			if f == "customfield_10016" {
				hasField = true
			}
		}
		if !hasField {
			t.Error("story points field missing from requested fields")
		}

		pages++
		resp := map[string]interface{}{
			"issues": []interface{}{
				jiraIssuePayload("PROJ-1", "2024-03-12T10:00:00.000+0000", 5),
			},
		}
		if body.NextPageToken == "" {
			resp["nextPageToken"] = "page-2"
			resp["issues"] = []interface{}{
				jiraIssuePayload("PROJ-1", "2024-03-12T10:00:00.000+0000", 5),
			}
		}
		json.NewEncoder(w).Encode(resp)
	})

	events, err := client.FetchEvents(context.Background(),
		date(2024, 3, 1), date(2024, 3, 31), "customfield_10016")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if pages != 2 {
		t.Errorf("issued %d pages, expected token-driven second page", pages)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, expected 2", len(events))
	}

	ev := events[0]
	if ev.IssueKey != "PROJ-1" || ev.EventType != "created" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.StoryPoints != 5 {
		t.Errorf("StoryPoints = %v, expected 5", ev.StoryPoints)
	}
	if ev.ProjectKey != "PROJ" || ev.Assignee != "Dev One" {
		t.Errorf("issue fields not mapped: %+v", ev)
	}
	want := time.Date(2024, 3, 12, 10, 0, 0, 0, time.FixedZone("", 0))
	if !ev.EventDate.Equal(want) {
		t.Errorf("EventDate = %v, expected %v", ev.EventDate, want)
	}
}

func TestFetchEvents_PageErrorReturnsPartial(t *testing.T) {
	pages := 0
	client := newJiraTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			JQL           string `json:"jql"`
			NextPageToken string `json:"nextPageToken"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		if !strings.Contains(body.JQL, "created >=") {
			json.NewEncoder(w).Encode(map[string]interface{}{"issues": []interface{}{}})
			return
		}

		pages++
		if body.NextPageToken != "" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"issues":        []interface{}{jiraIssuePayload("PROJ-2", "2024-03-10T08:00:00.000+0000", 0)},
			"nextPageToken": "page-2",
		})
	})

	events, err := client.FetchEvents(context.Background(), date(2024, 3, 1), date(2024, 3, 31), "")
	if err != nil {
		t.Fatalf("partial page failure must not fail the fetch: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events, expected the first page's result", len(events))
	}
}

func TestResolveCloudID_FailureBlocksQueries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client := NewJiraClient("bad-token")
	client.baseURL = server.URL

	if _, err := client.GetMetrics(context.Background(), CustomPeriod(date(2024, 3, 1), date(2024, 3, 31))); err == nil {
		t.Fatal("expected cloud ID resolution failure to propagate")
	}
	if _, err := client.FetchEvents(context.Background(), date(2024, 3, 1), date(2024, 3, 31), ""); err == nil {
		t.Fatal("expected cloud ID resolution failure to propagate")
	}
}
