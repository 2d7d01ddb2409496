package gormstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unityvault/ticketflow/internal/persistence"
	"github.com/unityvault/ticketflow/internal/repository"
	"github.com/unityvault/ticketflow/internal/repository/repotest"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	sq, err := persistence.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	store, err := New(sq.DB)
	require.NoError(t, err)
	return store
}

func TestStoreContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repotest.Stores {
		store := newStore(t)
		return repotest.Stores{
			Configs:    store.Configs(),
			Tickets:    store.Tickets(),
			RateLimits: store.RateLimits(),
		}
	})
}

func TestNilHandle(t *testing.T) {
	store, err := New(nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Configs().GetOrCreate(ctx, "g1")
	assert.ErrorIs(t, err, repository.ErrNoHandle)
	_, err = store.Tickets().GetByChannel(ctx, "c")
	assert.ErrorIs(t, err, repository.ErrNoHandle)
	_, err = store.RateLimits().Hit(ctx, "k", 1, time.Second, repotest.Epoch)
	assert.ErrorIs(t, err, repository.ErrNoHandle)
}
