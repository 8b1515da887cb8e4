package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/vulegon/Summarite/internal/config"
	"github.com/vulegon/Summarite/internal/models"
	"github.com/vulegon/Summarite/pkg/logger"
)

const (
	jiraTokenURL = "https://auth.atlassian.com/oauth/token"

	// Refresh ahead of actual expiry so an in-flight sync never races the
	// token's lifetime.
	tokenRefreshMargin = 300 // seconds
)

// TokenService resolves a usable OAuth access token for a user+provider
// pair. GitHub tokens are long-lived and never refreshed here; Jira tokens
// are rotated through the refresh-token grant when close to expiry.
type TokenService struct {
	db       *gorm.DB
	cfg      *config.Config
	http     *http.Client
	tokenURL string
}

func NewTokenService(db *gorm.DB, cfg *config.Config) *TokenService {
	return &TokenService{
		db:       db,
		cfg:      cfg,
		http:     &http.Client{Timeout: 30 * time.Second},
		tokenURL: jiraTokenURL,
	}
}

// GithubToken returns the stored GitHub token, or "" when the user has no
// connected GitHub account.
func (s *TokenService) GithubToken(userID uint) string {
	account, err := s.account(userID, models.ProviderGitHub)
	if err != nil {
		return ""
	}
	return account.AccessToken
}

// JiraToken returns a valid Jira access token, refreshing first when the
// stored one expires within the safety margin. Returns "" when the user is
// not connected or the refresh fails; callers treat "" as "not connected".
func (s *TokenService) JiraToken(ctx context.Context, userID uint) string {
	account, err := s.account(userID, models.ProviderJira)
	if err != nil || account.AccessToken == "" {
		return ""
	}

	now := time.Now().Unix()
	expired := account.ExpiresAt != nil && *account.ExpiresAt < now+tokenRefreshMargin

	if !expired {
		return account.AccessToken
	}
	if account.RefreshToken == "" {
		logger.Warn().Uint("user_id", userID).Msg("jira token expired and no refresh token stored")
		return ""
	}

	token, err := s.refreshJira(ctx, account)
	if err != nil {
		logger.Error().Err(err).Uint("user_id", userID).Msg("jira token refresh failed")
		return ""
	}
	return token
}

func (s *TokenService) account(userID uint, provider string) (*models.Account, error) {
	var account models.Account
	err := s.db.Where("user_id = ? AND provider = ?", userID, provider).First(&account).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error().Err(err).Str("provider", provider).Msg("account lookup failed")
		}
		return nil, err
	}
	return &account, nil
}

// refreshJira performs the refresh-token grant and persists the new token
// pair. Atlassian rotates refresh tokens; a missing one in the response
// means the old one stays valid.
func (s *TokenService) refreshJira(ctx context.Context, account *models.Account) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     s.cfg.Jira.ClientID,
		"client_secret": s.cfg.Jira.ClientSecret,
		"refresh_token": account.RefreshToken,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token refresh status %d: %s", resp.StatusCode, string(body))
	}

	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return "", fmt.Errorf("token refresh decode: %w", err)
	}
	if tokens.AccessToken == "" {
		return "", fmt.Errorf("token refresh returned empty access token")
	}

	expiresAt := time.Now().Unix() + tokens.ExpiresIn
	updates := map[string]interface{}{
		"access_token": tokens.AccessToken,
		"expires_at":   expiresAt,
	}
	if tokens.RefreshToken != "" {
		updates["refresh_token"] = tokens.RefreshToken
	}
	if err := s.db.Model(account).Updates(updates).Error; err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}

	logger.Info().Uint("user_id", account.UserID).Msg("jira token refreshed")
	return tokens.AccessToken, nil
}
