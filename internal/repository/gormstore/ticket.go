package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/unityvault/ticketflow/internal/domain"
	"github.com/unityvault/ticketflow/internal/repository"
)

type ticketRepository struct {
	db *gorm.DB
}

func (r *ticketRepository) Create(ctx context.Context, params repository.CreateTicketParams, allocate repository.ChannelAllocator) (*domain.Ticket, error) {
	if r.db == nil {
		return nil, repository.ErrNoHandle
	}
	var out *domain.Ticket
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cfg, err := ensureConfig(tx, params.CommunityID, params.CreatedAt)
		if err != nil {
			return err
		}

		open, err := countOpen(tx, params.CommunityID, params.OpenerID)
		if err != nil {
			return err
		}
		if open >= int64(params.MaxOpen) {
			return repository.ErrOpenQuotaExceeded
		}

		number, err := incrementCounter(tx, params.CommunityID, params.CreatedAt)
		if err != nil {
			return err
		}
		snapshot := cfg.toDomain()
		snapshot.TicketCounter = number

		channelID, err := allocate(ctx, snapshot, number)
		if err != nil {
			return fmt.Errorf("provision channel: %w", err)
		}

		m := ticketModel{
			ID:          params.ID,
			CommunityID: params.CommunityID,
			ChannelID:   channelID,
			OpenerID:    params.OpenerID,
			Number:      number,
			Type:        string(params.Type),
			Subject:     params.Subject,
			Description: params.Description,
			Status:      string(domain.TicketStatusOpen),
			CreatedAt:   params.CreatedAt,
			UpdatedAt:   params.CreatedAt,
		}
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		out = m.toDomain()
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *ticketRepository) GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	return r.first(ctx, "channel_id = ?", channelID)
}

func (r *ticketRepository) first(ctx context.Context, cond string, arg string) (*domain.Ticket, error) {
	if r.db == nil {
		return nil, repository.ErrNoHandle
	}
	var m ticketModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where(cond, arg).Take(&m).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (r *ticketRepository) CountOpenByUser(ctx context.Context, communityID, userID string) (int, error) {
	if r.db == nil {
		return 0, repository.ErrNoHandle
	}
	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		count, err = countOpen(tx, communityID, userID)
		return err
	})
	return int(count), err
}

func (r *ticketRepository) Close(ctx context.Context, id, closedBy string, at time.Time) (*domain.Ticket, error) {
	return r.transition(ctx, id,
		func(tx *gorm.DB) *gorm.DB { return tx.Where("status <> ?", string(domain.TicketStatusClosed)) },
		map[string]any{
			"status":     string(domain.TicketStatusClosed),
			"closed_at":  at,
			"closed_by":  closedBy,
			"updated_at": at,
		})
}

func (r *ticketRepository) Escalate(ctx context.Context, id string, at time.Time) (*domain.Ticket, error) {
	return r.transition(ctx, id,
		func(tx *gorm.DB) *gorm.DB { return tx.Where("status = ?", string(domain.TicketStatusOpen)) },
		map[string]any{
			"status":       string(domain.TicketStatusEscalated),
			"escalated_at": at,
			"updated_at":   at,
		})
}

func (r *ticketRepository) SetTranscript(ctx context.Context, id, url string, at time.Time) (*domain.Ticket, error) {
	return r.transition(ctx, id,
		func(tx *gorm.DB) *gorm.DB { return tx.Where("status = ?", string(domain.TicketStatusClosed)) },
		map[string]any{
			"transcript_url": url,
			"updated_at":     at,
		})
}

// transition applies updates only when guard still matches the row.
func (r *ticketRepository) transition(ctx context.Context, id string, guard func(*gorm.DB) *gorm.DB, updates map[string]any) (*domain.Ticket, error) {
	if r.db == nil {
		return nil, repository.ErrNoHandle
	}
	var m ticketModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := guard(tx.Model(&ticketModel{}).Where("id = ?", id)).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update ticket: %w", res.Error)
		}
		if err := tx.Where("id = ?", id).Take(&m).Error; err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return repository.ErrStatusChanged
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, err
		}
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func countOpen(tx *gorm.DB, communityID, userID string) (int64, error) {
	var count int64
	err := tx.Model(&ticketModel{}).
		Where("community_id = ? AND opener_id = ? AND status IN ?", communityID, userID, openStatuses()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count open tickets: %w", err)
	}
	return count, nil
}

func openStatuses() []string {
	out := make([]string, 0, len(domain.OpenStatuses))
	for _, s := range domain.OpenStatuses {
		out = append(out, string(s))
	}
	return out
}
