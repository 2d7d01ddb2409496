package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/unityvault/ticketflow/internal/domain"
)

const configColumns = `community_id, log_channel, ticket_category, support_roles, onboarding_channel, ticket_counter, updated_at`

type configRepository struct {
	db DB
}

// NewConfigRepository instantiates the Postgres config repository.
func NewConfigRepository(db DB) ConfigRepository {
	return &configRepository{db: db}
}

func (r *configRepository) GetOrCreate(ctx context.Context, communityID string) (*domain.CommunityConfig, error) {
	if r.db == nil {
		return nil, ErrNoHandle
	}
	if err := ensureConfig(ctx, r.db, communityID); err != nil {
		return nil, err
	}
	return scanConfig(r.db.QueryRow(ctx, `SELECT `+configColumns+` FROM community_config WHERE community_id=$1`, communityID))
}

func (r *configRepository) Update(ctx context.Context, communityID string, patch domain.ConfigPatch, at time.Time) (*domain.CommunityConfig, error) {
	if r.db == nil {
		return nil, ErrNoHandle
	}
	if err := ensureConfig(ctx, r.db, communityID); err != nil {
		return nil, err
	}

	var roles *string
	if patch.SupportRoles != nil {
		joined := domain.JoinRoles(*patch.SupportRoles)
		roles = &joined
	}

	// $n IS NULL leaves the column untouched; an empty string clears it.
	const query = `
        UPDATE community_config SET
            log_channel        = CASE WHEN $2::text IS NULL THEN log_channel        ELSE NULLIF($2, '') END,
            ticket_category    = CASE WHEN $3::text IS NULL THEN ticket_category    ELSE NULLIF($3, '') END,
            support_roles      = COALESCE($4, support_roles),
            onboarding_channel = CASE WHEN $5::text IS NULL THEN onboarding_channel ELSE NULLIF($5, '') END,
            updated_at         = $6
        WHERE community_id=$1
        RETURNING ` + configColumns
	return scanConfig(r.db.QueryRow(ctx, query,
		communityID,
		patch.LogChannel,
		patch.TicketCategory,
		roles,
		patch.OnboardingChannel,
		at,
	))
}

func (r *configRepository) IncrementCounter(ctx context.Context, communityID string, at time.Time) (uint64, error) {
	if r.db == nil {
		return 0, ErrNoHandle
	}
	if err := ensureConfig(ctx, r.db, communityID); err != nil {
		return 0, err
	}
	var counter uint64
	err := r.db.QueryRow(ctx, `
        UPDATE community_config SET ticket_counter = ticket_counter + 1, updated_at = $2
        WHERE community_id=$1
        RETURNING ticket_counter`, communityID, at).Scan(&counter)
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return counter, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func ensureConfig(ctx context.Context, db execer, communityID string) error {
	if _, err := db.Exec(ctx, `INSERT INTO community_config (community_id) VALUES ($1) ON CONFLICT (community_id) DO NOTHING`, communityID); err != nil {
		return fmt.Errorf("ensure community config: %w", err)
	}
	return nil
}

func scanConfig(row pgx.Row) (*domain.CommunityConfig, error) {
	var (
		cfg   domain.CommunityConfig
		roles string
	)
	if err := row.Scan(
		&cfg.ID,
		&cfg.LogChannel,
		&cfg.TicketCategory,
		&roles,
		&cfg.OnboardingChannel,
		&cfg.TicketCounter,
		&cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	cfg.SupportRoles = domain.SplitRoles(roles)
	return &cfg, nil
}
