package store

import (
	"context"
	"errors"
	"fmt"

	"reward-engine/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScopeConfigs persists one models.ScopeConfig row per scope.
type ScopeConfigs struct {
	DB *gorm.DB
}

func NewScopeConfigs(db *gorm.DB) *ScopeConfigs {
	return &ScopeConfigs{DB: db}
}

// Ensure reads the config of scopeID, inserting the defaults first when the
// scope has none. Duplicate inserts from concurrent callers are ignored.
func (s *ScopeConfigs) Ensure(ctx context.Context, scopeID string) (models.ScopeConfig, error) {
	db := s.DB.WithContext(ctx)

	cfg := models.DefaultScopeConfig(scopeID)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope_id"}},
		DoNothing: true,
	}).Create(&cfg).Error; err != nil {
		return models.ScopeConfig{}, fmt.Errorf("upsert scope config %s: %w", scopeID, err)
	}

	var stored models.ScopeConfig
	if err := db.Where("scope_id = ?", scopeID).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ScopeConfig{}, ErrNotFound
		}
		return models.ScopeConfig{}, fmt.Errorf("load scope config %s: %w", scopeID, err)
	}
	return stored, nil
}

// Save replaces every tunable field of the scope's config.
func (s *ScopeConfigs) Save(ctx context.Context, cfg models.ScopeConfig) (models.ScopeConfig, error) {
	existing, err := s.Ensure(ctx, cfg.ScopeID)
	if err != nil {
		return models.ScopeConfig{}, err
	}
	cfg.ID = existing.ID
	cfg.CreatedAt = existing.CreatedAt

	if err := s.DB.WithContext(ctx).Save(&cfg).Error; err != nil {
		return models.ScopeConfig{}, fmt.Errorf("save scope config %s: %w", cfg.ScopeID, err)
	}
	return cfg, nil
}
