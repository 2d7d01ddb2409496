// Package gormstore implements the repository contracts on gorm and the
// embedded SQLite driver. The handle must allow a single open connection;
// every method runs its statements inside one transaction on it.
package gormstore

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/unityvault/ticketflow/internal/repository"
)

// Store bundles the three repositories over one gorm handle.
type Store struct {
	db *gorm.DB
}

// New migrates the schema and returns a Store. A nil handle yields a Store whose
// repositories fail with repository.ErrNoHandle.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return &Store{}, nil
	}
	for _, model := range models {
		if err := db.AutoMigrate(model); err != nil {
			return nil, fmt.Errorf("migrate %T: %w", model, err)
		}
	}
	return &Store{db: db}, nil
}

// Configs returns the config repository.
func (s *Store) Configs() repository.ConfigRepository { return &configRepository{db: s.db} }

// Tickets returns the ticket repository.
func (s *Store) Tickets() repository.TicketRepository { return &ticketRepository{db: s.db} }

// RateLimits returns the rate-limit repository.
func (s *Store) RateLimits() repository.RateLimitRepository { return &rateLimitRepository{db: s.db} }

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrNotFound
	}
	return err
}
