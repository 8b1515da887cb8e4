package services

import (
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/vulegon/Summarite/internal/models"
)

func TestConnect_ReconnectReplacesTokens(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "account-user")
	svc := NewAccountService(db)

	expiry := time.Now().Add(time.Hour).Unix()
	if _, err := svc.Connect(user.ID, models.ProviderJira, "first-token", "first-refresh", &expiry); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := svc.Connect(user.ID, models.ProviderJira, "second-token", "second-refresh", &expiry); err != nil {
		t.Fatalf("reconnect: %v", err)
	}

	accounts, err := svc.List(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account after reconnect, got %d", len(accounts))
	}
	if accounts[0].AccessToken != "second-token" {
		t.Errorf("AccessToken = %q, expected replacement", accounts[0].AccessToken)
	}
}

func TestConnect_Validation(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "validation-user")
	svc := NewAccountService(db)

	if _, err := svc.Connect(user.ID, "bitbucket", "tok", "", nil); err == nil {
		t.Error("unknown provider must be rejected")
	}
	if _, err := svc.Connect(user.ID, models.ProviderGitHub, "", "", nil); err == nil {
		t.Error("empty access token must be rejected")
	}
}

func TestDisconnect(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, "disconnect-user")
	svc := NewAccountService(db)

	if _, err := svc.Connect(user.ID, models.ProviderGitHub, "tok", "", nil); err != nil {
		t.Fatal(err)
	}
	if err := svc.Disconnect(user.ID, models.ProviderGitHub); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := svc.Disconnect(user.ID, models.ProviderGitHub); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("second disconnect = %v, expected not found", err)
	}
}
