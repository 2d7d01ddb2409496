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

type configRepository struct {
	db *gorm.DB
}

func (r *configRepository) GetOrCreate(ctx context.Context, communityID string) (*domain.CommunityConfig, error) {
	if r.db == nil {
		return nil, repository.ErrNoHandle
	}
	var out *domain.CommunityConfig
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := ensureConfig(tx, communityID, time.Now().UTC())
		if err != nil {
			return err
		}
		out = m.toDomain()
		return nil
	})
	return out, translate(err)
}

func (r *configRepository) Update(ctx context.Context, communityID string, patch domain.ConfigPatch, at time.Time) (*domain.CommunityConfig, error) {
	if r.db == nil {
		return nil, repository.ErrNoHandle
	}
	var out *domain.CommunityConfig
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := ensureConfig(tx, communityID, at); err != nil {
			return err
		}
		updates := map[string]any{"updated_at": at}
		if patch.LogChannel != nil {
			updates["log_channel"] = nullable(*patch.LogChannel)
		}
		if patch.TicketCategory != nil {
			updates["ticket_category"] = nullable(*patch.TicketCategory)
		}
		if patch.SupportRoles != nil {
			updates["support_roles"] = domain.JoinRoles(*patch.SupportRoles)
		}
		if patch.OnboardingChannel != nil {
			updates["onboarding_channel"] = nullable(*patch.OnboardingChannel)
		}
		if err := tx.Model(&communityConfigModel{}).Where("community_id = ?", communityID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update community config: %w", err)
		}
		var m communityConfigModel
		if err := tx.Where("community_id = ?", communityID).Take(&m).Error; err != nil {
			return err
		}
		out = m.toDomain()
		return nil
	})
	return out, translate(err)
}

func (r *configRepository) IncrementCounter(ctx context.Context, communityID string, at time.Time) (uint64, error) {
	if r.db == nil {
		return 0, repository.ErrNoHandle
	}
	var counter uint64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := ensureConfig(tx, communityID, at); err != nil {
			return err
		}
		var err error
		counter, err = incrementCounter(tx, communityID, at)
		return err
	})
	return counter, translate(err)
}

// ensureConfig inserts an empty record if absent and returns the current one.
func ensureConfig(tx *gorm.DB, communityID string, at time.Time) (*communityConfigModel, error) {
	seed := communityConfigModel{CommunityID: communityID, UpdatedAt: at}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("ensure community config: %w", err)
	}
	var m communityConfigModel
	if err := tx.Where("community_id = ?", communityID).Take(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func incrementCounter(tx *gorm.DB, communityID string, at time.Time) (uint64, error) {
	res := tx.Model(&communityConfigModel{}).
		Where("community_id = ?", communityID).
		UpdateColumns(map[string]any{
			"ticket_counter": gorm.Expr("ticket_counter + 1"),
			"updated_at":     at,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("increment counter: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, errors.New("increment counter: community config missing")
	}
	var m communityConfigModel
	if err := tx.Select("ticket_counter").Where("community_id = ?", communityID).Take(&m).Error; err != nil {
		return 0, err
	}
	return m.TicketCounter, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
