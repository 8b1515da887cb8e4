package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/vulegon/Summarite/internal/models"
)

func seedAccount(t *testing.T, db *gorm.DB, account models.Account) *models.Account {
	t.Helper()
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return &account
}

func TestGithubToken_ReturnedVerbatim(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "gh-token-user")
	svc := NewTokenService(db, testConfig())

	// Expired by any measure; GitHub tokens are still returned as stored.
	past := time.Now().Add(-time.Hour).Unix()
	seedAccount(t, db, models.Account{
		UserID: user.ID, Provider: models.ProviderGitHub,
		AccessToken: "gh-token", ExpiresAt: &past,
	})

	if got := svc.GithubToken(user.ID); got != "gh-token" {
		t.Errorf("GithubToken = %q, expected stored token", got)
	}
}

func TestGithubToken_NotConnected(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "gh-missing-user")
	svc := NewTokenService(db, testConfig())

	if got := svc.GithubToken(user.ID); got != "" {
		t.Errorf("GithubToken = %q, expected empty for unconnected user", got)
	}
}

func TestJiraToken_FreshTokenNotRefreshed(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "jira-fresh-user")
	svc := NewTokenService(db, testConfig())
	svc.tokenURL = "http://127.0.0.1:0" // any refresh attempt would fail loudly

	future := time.Now().Add(2 * time.Hour).Unix()
	seedAccount(t, db, models.Account{
		UserID: user.ID, Provider: models.ProviderJira,
		AccessToken: "jira-token", RefreshToken: "refresh", ExpiresAt: &future,
	})

	if got := svc.JiraToken(context.Background(), user.ID); got != "jira-token" {
		t.Errorf("JiraToken = %q, expected stored token", got)
	}
}

func TestJiraToken_RefreshesWithinMargin(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "jira-refresh-user")
	svc := NewTokenService(db, testConfig())

	var gotGrant map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotGrant)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(server.Close)
	svc.tokenURL = server.URL

	// Expires inside the safety margin: must refresh even though not yet
	// strictly expired.
	soon := time.Now().Add(time.Duration(tokenRefreshMargin-10) * time.Second).Unix()
	account := seedAccount(t, db, models.Account{
		UserID: user.ID, Provider: models.ProviderJira,
		AccessToken: "old-access", RefreshToken: "old-refresh", ExpiresAt: &soon,
	})

	if got := svc.JiraToken(context.Background(), user.ID); got != "new-access" {
		t.Fatalf("JiraToken = %q, expected refreshed token", got)
	}

	if gotGrant["grant_type"] != "refresh_token" || gotGrant["refresh_token"] != "old-refresh" {
		t.Errorf("unexpected grant request: %+v", gotGrant)
	}

	var stored models.Account
	if err := db.First(&stored, account.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.AccessToken != "new-access" || stored.RefreshToken != "new-refresh" {
		t.Errorf("new token pair not persisted: %+v", stored)
	}
	if stored.ExpiresAt == nil || *stored.ExpiresAt <= time.Now().Unix() {
		t.Error("new expiry not persisted")
	}
}

func TestJiraToken_RefreshFailureMeansNotConnected(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "jira-broken-user")
	svc := NewTokenService(db, testConfig())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_grant", http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)
	svc.tokenURL = server.URL

	past := time.Now().Add(-time.Hour).Unix()
	seedAccount(t, db, models.Account{
		UserID: user.ID, Provider: models.ProviderJira,
		AccessToken: "old-access", RefreshToken: "old-refresh", ExpiresAt: &past,
	})

	if got := svc.JiraToken(context.Background(), user.ID); got != "" {
		t.Errorf("JiraToken = %q, expected empty on refresh failure", got)
	}
}

func TestJiraToken_NoRefreshTokenMeansNotConnected(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "jira-norefresh-user")
	svc := NewTokenService(db, testConfig())

	past := time.Now().Add(-time.Hour).Unix()
	seedAccount(t, db, models.Account{
		UserID: user.ID, Provider: models.ProviderJira,
		AccessToken: "old-access", ExpiresAt: &past,
	})

	if got := svc.JiraToken(context.Background(), user.ID); got != "" {
		t.Errorf("JiraToken = %q, expected empty without a refresh token", got)
	}
}
