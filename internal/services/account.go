package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vulegon/Summarite/internal/models"
)

// AccountService manages the stored provider credentials.
type AccountService struct {
	db *gorm.DB
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{db: db}
}

// Connect stores or replaces the user's credential for a provider. One
// credential per user+provider; reconnecting overwrites the old tokens.
func (s *AccountService) Connect(userID uint, provider, accessToken, refreshToken string, expiresAt *int64) (*models.Account, error) {
	if provider != models.ProviderGitHub && provider != models.ProviderJira {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	if accessToken == "" {
		return nil, errors.New("access token is required")
	}

	account := models.Account{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "expires_at", "updated_at",
		}),
	}).Create(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// List returns the user's connected providers. Tokens are never
// serialized; the model hides them from JSON.
func (s *AccountService) List(userID uint) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.Where("user_id = ?", userID).Find(&accounts).Error
	return accounts, err
}

// Disconnect removes the user's credential for a provider.
func (s *AccountService) Disconnect(userID uint, provider string) error {
	result := s.db.Where("user_id = ? AND provider = ?", userID, provider).Delete(&models.Account{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
