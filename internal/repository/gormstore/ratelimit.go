package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/unityvault/ticketflow/internal/domain"
	"github.com/unityvault/ticketflow/internal/repository"
)

type rateLimitRepository struct {
	db *gorm.DB
}

func (r *rateLimitRepository) Hit(ctx context.Context, key string, limit uint32, window time.Duration, now time.Time) (*domain.RateLimitEntry, error) {
	if r.db == nil {
		return nil, repository.ErrNoHandle
	}
	now = now.UTC()
	var m rateLimitEntryModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(&rateLimitEntryModel{Key: key}).Take(&m).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound), err == nil && m.toDomain().Expired(now):
			m = rateLimitEntryModel{Key: key, Count: 1, WindowEnd: now.Add(window)}
		case err != nil:
			return err
		case m.Count > limit:
			// saturated; nothing to write
			return nil
		default:
			m.Count++
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"count", "window_end"}),
		}).Create(&m).Error
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit hit: %w", err)
	}
	return m.toDomain(), nil
}

func (r *rateLimitRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if r.db == nil {
		return 0, repository.ErrNoHandle
	}
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("window_end <= ?", now.UTC()).Delete(&rateLimitEntryModel{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("purge rate limits: %w", err)
	}
	return deleted, nil
}
