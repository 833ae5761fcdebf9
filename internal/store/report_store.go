package store

import (
	"context"

	"devicepulse/internal/domain"

	"gorm.io/gorm"
)

type ReportStore struct{ db *gorm.DB }

func (s *Store) Reports() *ReportStore { return &ReportStore{db: s.DB} }

// Create inserts a single report row. Reports are never updated or deleted.
func (r *ReportStore) Create(ctx context.Context, report *domain.Report) error {
	return classify(r.db.WithContext(ctx).Create(report).Error)
}

// History returns up to limit reports for deviceID, newest first.
func (r *ReportStore) History(ctx context.Context, deviceID string, limit int) ([]domain.Report, error) {
	reports := []domain.Report{}
	tx := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("reported_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&reports).Error; err != nil {
		return nil, classify(err)
	}
	return reports, nil
}

// latestPerDeviceSQL keeps, per device, the report no other report of the same
// device supersedes, and joins its alias in the same round trip. Equal
// timestamps are broken by id so each device yields exactly one row.
const latestPerDeviceSQL = `
SELECT r.*, a.alias
FROM reports r
LEFT JOIN device_aliases a ON a.device_id = r.device_id
WHERE NOT EXISTS (
    SELECT 1 FROM reports newer
    WHERE newer.device_id = r.device_id
      AND (newer.reported_at > r.reported_at
           OR (newer.reported_at = r.reported_at AND newer.id > r.id))
)
ORDER BY r.reported_at DESC, r.device_id ASC`

// LatestPerDevice returns exactly one row per distinct device: its most recent
// report plus alias, ordered by that report's timestamp descending.
func (r *ReportStore) LatestPerDevice(ctx context.Context) ([]domain.LatestReport, error) {
	rows := []domain.LatestReport{}
	if err := r.db.WithContext(ctx).Raw(latestPerDeviceSQL).Scan(&rows).Error; err != nil {
		return nil, classify(err)
	}
	return rows, nil
}
