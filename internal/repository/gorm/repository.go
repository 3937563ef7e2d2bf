package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradebridge/internal/models"
	"tradebridge/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- accounts ---------------------------------------------------------------

func (s *Store) UpsertAccount(ctx context.Context, item *models.Account) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.AccountID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"platform",
			"account_type",
			"display_name",
			"last_heartbeat",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) TouchAccountHeartbeat(ctx context.Context, accountID string, at time.Time) error {
	if s == nil || s.db == nil || strings.TrimSpace(accountID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("account_id = ?", accountID).
		Update("last_heartbeat", at).Error
}

func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Account
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- relationships ----------------------------------------------------------

func (s *Store) UpsertRelationship(ctx context.Context, item *models.Relationship) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_id"}, {Name: "copyer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"volume_multiplier",
			"max_lots",
			"enabled",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) SetRelationshipEnabled(ctx context.Context, providerID, copyerID string, enabled bool) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Relationship{}).
		Where("provider_id = ? AND copyer_id = ?", providerID, copyerID).
		Update("enabled", enabled).Error
}

func (s *Store) DeleteRelationship(ctx context.Context, providerID, copyerID string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("provider_id = ? AND copyer_id = ?", providerID, copyerID).
		Delete(&models.Relationship{}).Error
}

func (s *Store) ListRelationships(ctx context.Context) ([]models.Relationship, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Relationship
	if err := s.db.WithContext(ctx).Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- copy events ------------------------------------------------------------

func (s *Store) InsertCopyEvent(ctx context.Context, item *models.CopyEvent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListCopyEvents(ctx context.Context, params repository.ListCopyEventsParams) ([]models.CopyEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.CopyEvent{})
	if params.ProviderID != nil && strings.TrimSpace(*params.ProviderID) != "" {
		query = query.Where("provider_id = ?", strings.TrimSpace(*params.ProviderID))
	}
	if params.CopyerID != nil && strings.TrimSpace(*params.CopyerID) != "" {
		query = query.Where("copyer_id = ?", strings.TrimSpace(*params.CopyerID))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	order := "created_at desc"
	if params.Asc {
		order = "created_at asc"
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.CopyEvent
	if err := query.Order(order).Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteCopyEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if before.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.CopyEvent{})
	return res.RowsAffected, res.Error
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
