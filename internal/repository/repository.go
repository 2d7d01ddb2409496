package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/unityvault/ticketflow/internal/domain"
)

var (
	// ErrNotFound is returned when no row matches. It is pgx.ErrNoRows so pgx
	// lookups need no translation.
	ErrNotFound = pgx.ErrNoRows
	// ErrOpenQuotaExceeded is returned by a creation transaction when the opener
	// already holds the maximum number of open tickets.
	ErrOpenQuotaExceeded = errors.New("open ticket quota exceeded")
	// ErrStatusChanged is returned by a conditional transition when the ticket
	// exists but is no longer in an accepted source state.
	ErrStatusChanged = errors.New("ticket status changed")
	// ErrNoHandle is returned when a repository was built without a storage handle.
	ErrNoHandle = errors.New("storage handle not configured")
)

// DB is the subset of pgxpool.Pool used by the Postgres repositories.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CreateTicketParams is the input of a creation transaction.
type CreateTicketParams struct {
	ID          string
	CommunityID string
	OpenerID    string
	Type        domain.TicketType
	Subject     string
	Description string
	MaxOpen     int
	CreatedAt   time.Time
}

// ChannelAllocator returns the hosting channel for a ticket. It runs inside the
// creation transaction after the number is allocated; an error rolls the
// transaction back.
type ChannelAllocator func(ctx context.Context, cfg *domain.CommunityConfig, number uint64) (string, error)

// ConfigRepository persists per-community settings.
type ConfigRepository interface {
	// GetOrCreate inserts an empty record if absent and returns the current one.
	GetOrCreate(ctx context.Context, communityID string) (*domain.CommunityConfig, error)
	// Update applies the non-nil fields of patch and bumps updated_at.
	Update(ctx context.Context, communityID string, patch domain.ConfigPatch, at time.Time) (*domain.CommunityConfig, error)
	// IncrementCounter atomically adds one to the ticket counter and returns the new value.
	IncrementCounter(ctx context.Context, communityID string, at time.Time) (uint64, error)
}

// TicketRepository persists tickets.
type TicketRepository interface {
	// Create locks the community record, enforces the open quota, allocates the
	// next number, provisions the channel and inserts the ticket in one transaction.
	Create(ctx context.Context, params CreateTicketParams, allocate ChannelAllocator) (*domain.Ticket, error)
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error)
	CountOpenByUser(ctx context.Context, communityID, userID string) (int, error)
	// Close moves any non-Closed ticket to Closed.
	Close(ctx context.Context, id, closedBy string, at time.Time) (*domain.Ticket, error)
	// Escalate moves an Open ticket to Escalated.
	Escalate(ctx context.Context, id string, at time.Time) (*domain.Ticket, error)
	// SetTranscript records the transcript location of a Closed ticket.
	SetTranscript(ctx context.Context, id, url string, at time.Time) (*domain.Ticket, error)
}

// RateLimitRepository persists fixed-window counters.
type RateLimitRepository interface {
	// Hit counts one attempt against key and returns the entry after the hit.
	// The count saturates at limit+1; the attempt is allowed iff Count <= limit.
	Hit(ctx context.Context, key string, limit uint32, window time.Duration, now time.Time) (*domain.RateLimitEntry, error)
	// PurgeExpired deletes entries whose window ended at or before now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
