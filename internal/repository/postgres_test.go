package repository_test

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/unityvault/ticketflow/internal/persistence"
	"github.com/unityvault/ticketflow/internal/repository"
	"github.com/unityvault/ticketflow/internal/repository/repotest"
	"github.com/unityvault/ticketflow/migrations"
)

// postgresDSNEnv names a disposable database the tests may create schemas in.
const postgresDSNEnv = "TICKETFLOW_TEST_POSTGRES_DSN"

// openSchema returns a pool pinned to a fresh schema with migrations applied.
// The schema is dropped when the test ends.
func openSchema(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}
	ctx := context.Background()

	schema := "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	admin, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close(context.Background()) })
	_, err = admin.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	cfg.MaxConns = 8
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, persistence.RunMigrations(ctx, pool, migrations.FS, zaptest.NewLogger(t)))
	return pool
}

func TestPostgresContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repotest.Stores {
		pool := openSchema(t)
		return repotest.Stores{
			Configs:    repository.NewConfigRepository(pool),
			Tickets:    repository.NewTicketRepository(pool),
			RateLimits: repository.NewRateLimitRepository(pool),
		}
	})
}

func TestPostgresMigrationsIdempotent(t *testing.T) {
	pool := openSchema(t)
	ctx := context.Background()

	require.NoError(t, persistence.RunMigrations(ctx, pool, migrations.FS, nil))

	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	var applied int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, len(files), applied)
}

func TestPostgresNilHandle(t *testing.T) {
	ctx := context.Background()

	_, err := repository.NewConfigRepository(nil).GetOrCreate(ctx, "g1")
	assert.ErrorIs(t, err, repository.ErrNoHandle)
	_, err = repository.NewTicketRepository(nil).GetByChannel(ctx, "c")
	assert.ErrorIs(t, err, repository.ErrNoHandle)
	_, err = repository.NewRateLimitRepository(nil).PurgeExpired(ctx, repotest.Epoch)
	assert.ErrorIs(t, err, repository.ErrNoHandle)
}
