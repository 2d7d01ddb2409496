package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/unityvault/ticketflow/internal/domain"
)

const ticketColumns = `id, community_id, channel_id, opener_id, number, type, subject, description, status,
               created_at, updated_at, escalated_at, closed_at, closed_by, transcript_url`

var openStatuses = []string{
	string(domain.TicketStatusOpen),
	string(domain.TicketStatusReopened),
	string(domain.TicketStatusEscalated),
}

type ticketRepository struct {
	db DB
}

// NewTicketRepository instantiates the Postgres ticket repository.
func NewTicketRepository(db DB) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, params CreateTicketParams, allocate ChannelAllocator) (*domain.Ticket, error) {
	if r.db == nil {
		return nil, ErrNoHandle
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create ticket: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := ensureConfig(ctx, tx, params.CommunityID); err != nil {
		return nil, err
	}
	// Row lock serializes creations per community until commit.
	cfg, err := scanConfig(tx.QueryRow(ctx, `SELECT `+configColumns+` FROM community_config WHERE community_id=$1 FOR UPDATE`, params.CommunityID))
	if err != nil {
		return nil, fmt.Errorf("lock community config: %w", err)
	}

	var open int
	if err := tx.QueryRow(ctx, `
        SELECT COUNT(*) FROM ticket
        WHERE community_id=$1 AND opener_id=$2 AND status = ANY($3)`,
		params.CommunityID, params.OpenerID, openStatuses,
	).Scan(&open); err != nil {
		return nil, fmt.Errorf("count open tickets: %w", err)
	}
	if open >= params.MaxOpen {
		return nil, ErrOpenQuotaExceeded
	}

	var number uint64
	if err := tx.QueryRow(ctx, `
        UPDATE community_config SET ticket_counter = ticket_counter + 1, updated_at = $2
        WHERE community_id=$1
        RETURNING ticket_counter`, params.CommunityID, params.CreatedAt,
	).Scan(&number); err != nil {
		return nil, fmt.Errorf("increment counter: %w", err)
	}
	cfg.TicketCounter = number

	channelID, err := allocate(ctx, cfg, number)
	if err != nil {
		return nil, fmt.Errorf("provision channel: %w", err)
	}

	ticket, err := scanTicket(tx.QueryRow(ctx, `
        INSERT INTO ticket (id, community_id, channel_id, opener_id, number, type, subject, description, status, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
        RETURNING `+ticketColumns,
		params.ID,
		params.CommunityID,
		channelID,
		params.OpenerID,
		number,
		string(params.Type),
		params.Subject,
		params.Description,
		string(domain.TicketStatusOpen),
		params.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("insert ticket: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create ticket: %w", err)
	}
	return ticket, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if r.db == nil {
		return nil, ErrNoHandle
	}
	if !validID(id) {
		return nil, ErrNotFound
	}
	return scanTicket(r.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM ticket WHERE id=$1`, id))
}

func (r *ticketRepository) GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	if r.db == nil {
		return nil, ErrNoHandle
	}
	return scanTicket(r.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM ticket WHERE channel_id=$1`, channelID))
}

func (r *ticketRepository) CountOpenByUser(ctx context.Context, communityID, userID string) (int, error) {
	if r.db == nil {
		return 0, ErrNoHandle
	}
	var count int
	err := r.db.QueryRow(ctx, `
        SELECT COUNT(*) FROM ticket
        WHERE community_id=$1 AND opener_id=$2 AND status = ANY($3)`,
		communityID, userID, openStatuses,
	).Scan(&count)
	return count, err
}

func (r *ticketRepository) Close(ctx context.Context, id, closedBy string, at time.Time) (*domain.Ticket, error) {
	const query = `
        UPDATE ticket SET status=$2, closed_at=$3, closed_by=$4, updated_at=$3
        WHERE id=$1 AND status <> $2
        RETURNING ` + ticketColumns
	return r.transition(ctx, id, query, id, string(domain.TicketStatusClosed), at, closedBy)
}

func (r *ticketRepository) Escalate(ctx context.Context, id string, at time.Time) (*domain.Ticket, error) {
	const query = `
        UPDATE ticket SET status=$2, escalated_at=$3, updated_at=$3
        WHERE id=$1 AND status=$4
        RETURNING ` + ticketColumns
	return r.transition(ctx, id, query, id, string(domain.TicketStatusEscalated), at, string(domain.TicketStatusOpen))
}

func (r *ticketRepository) SetTranscript(ctx context.Context, id, url string, at time.Time) (*domain.Ticket, error) {
	const query = `
        UPDATE ticket SET transcript_url=$2, updated_at=$3
        WHERE id=$1 AND status=$4
        RETURNING ` + ticketColumns
	return r.transition(ctx, id, query, id, url, at, string(domain.TicketStatusClosed))
}

// transition runs a conditional update. When no row changes it tells a missing
// ticket apart from one whose status no longer matches.
func (r *ticketRepository) transition(ctx context.Context, id, query string, args ...any) (*domain.Ticket, error) {
	if r.db == nil {
		return nil, ErrNoHandle
	}
	if !validID(id) {
		return nil, ErrNotFound
	}
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, args...))
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ticket WHERE id=$1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrStatusChanged
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket     domain.Ticket
		ticketType string
		status     string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.CommunityID,
		&ticket.ChannelID,
		&ticket.OpenerID,
		&ticket.Number,
		&ticketType,
		&ticket.Subject,
		&ticket.Description,
		&status,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.EscalatedAt,
		&ticket.ClosedAt,
		&ticket.ClosedBy,
		&ticket.TranscriptURL,
	); err != nil {
		return nil, err
	}
	ticket.Type = domain.TicketType(ticketType)
	ticket.Status = domain.TicketStatus(status)
	return &ticket, nil
}

// validID reports whether id can match the UUID primary key.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
