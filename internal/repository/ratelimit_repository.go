package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/unityvault/ticketflow/internal/domain"
)

type rateLimitRepository struct {
	db DB
}

// NewRateLimitRepository instantiates the Postgres rate-limit repository.
func NewRateLimitRepository(db DB) RateLimitRepository {
	return &rateLimitRepository{db: db}
}

// Hit is a single upsert. Both CASE expressions read the pre-update row, so an
// expired window restarts at 1 and a live one increments until limit+1.
func (r *rateLimitRepository) Hit(ctx context.Context, key string, limit uint32, window time.Duration, now time.Time) (*domain.RateLimitEntry, error) {
	if r.db == nil {
		return nil, ErrNoHandle
	}
	const query = `
        INSERT INTO rate_limit_entry (key, count, window_end) VALUES ($1, 1, $3)
        ON CONFLICT (key) DO UPDATE SET
            count = CASE
                WHEN rate_limit_entry.window_end <= $2 THEN 1
                WHEN rate_limit_entry.count > $4 THEN rate_limit_entry.count
                ELSE rate_limit_entry.count + 1
            END,
            window_end = CASE
                WHEN rate_limit_entry.window_end <= $2 THEN $3
                ELSE rate_limit_entry.window_end
            END
        RETURNING key, count, window_end`

	var (
		entry domain.RateLimitEntry
		count int64
	)
	if err := r.db.QueryRow(ctx, query, key, now, now.Add(window), int64(limit)).Scan(&entry.Key, &count, &entry.WindowEnd); err != nil {
		return nil, fmt.Errorf("rate limit hit: %w", err)
	}
	entry.Count = uint32(count)
	return &entry, nil
}

func (r *rateLimitRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if r.db == nil {
		return 0, ErrNoHandle
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM rate_limit_entry WHERE window_end <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge rate limits: %w", err)
	}
	return cmd.RowsAffected(), nil
}
