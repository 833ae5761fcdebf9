package store

import (
	"context"

	"devicepulse/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OperatorStore struct{ db *gorm.DB }

func (s *Store) Operators() *OperatorStore { return &OperatorStore{db: s.DB} }

// Ensure creates op unless an operator with the same username exists.
// It reports whether a row was inserted.
func (o *OperatorStore) Ensure(ctx context.Context, op domain.Operator) (bool, error) {
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	tx := o.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoNothing: true,
		}).
		Create(&op)
	return tx.RowsAffected > 0, classify(tx.Error)
}

func (o *OperatorStore) GetByUsername(ctx context.Context, username string) (*domain.Operator, error) {
	var op domain.Operator
	if err := o.db.WithContext(ctx).First(&op, "username = ?", username).Error; err != nil {
		return nil, classify(err)
	}
	return &op, nil
}
