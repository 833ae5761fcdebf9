package store

import (
	"context"
	"time"

	"devicepulse/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AliasStore struct{ db *gorm.DB }

func (s *Store) Aliases() *AliasStore { return &AliasStore{db: s.DB} }

// Upsert sets the display name for deviceID, replacing any previous alias.
func (a *AliasStore) Upsert(ctx context.Context, deviceID, alias string) error {
	row := domain.DeviceAlias{DeviceID: deviceID, Alias: alias}
	return classify(a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"alias":      alias,
				"updated_at": time.Now().UTC(),
			}),
		}).
		Create(&row).Error)
}

func (a *AliasStore) Get(ctx context.Context, deviceID string) (*domain.DeviceAlias, error) {
	var row domain.DeviceAlias
	if err := a.db.WithContext(ctx).First(&row, "device_id = ?", deviceID).Error; err != nil {
		return nil, classify(err)
	}
	return &row, nil
}
