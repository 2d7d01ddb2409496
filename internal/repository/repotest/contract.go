// Package repotest holds the behavioural suite every storage driver must pass.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unityvault/ticketflow/internal/domain"
	"github.com/unityvault/ticketflow/internal/repository"
)

// Epoch is the fixed clock the suite writes with.
var Epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Stores bundles the three repositories of one driver.
type Stores struct {
	Configs    repository.ConfigRepository
	Tickets    repository.TicketRepository
	RateLimits repository.RateLimitRepository
}

// Opener returns repositories backed by fresh, empty storage.
type Opener func(t *testing.T) Stores

// Run executes the suite. Each subtest opens its own storage.
func Run(t *testing.T, open Opener) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s Stores)
	}{
		{"ConfigGetOrCreate", testConfigGetOrCreate},
		{"ConfigUpdatePatch", testConfigUpdatePatch},
		{"ConfigIncrementCounter", testConfigIncrementCounter},
		{"TicketCreateAndLookup", testTicketCreateAndLookup},
		{"TicketCreateQuota", testTicketCreateQuota},
		{"TicketCreateRollsBackCounter", testTicketCreateRollsBackCounter},
		{"TicketCreateDuplicateChannelRollsBack", testTicketCreateDuplicateChannelRollsBack},
		{"TicketConcurrentNumbering", testTicketConcurrentNumbering},
		{"TicketConcurrentQuota", testTicketConcurrentQuota},
		{"TicketTransitions", testTicketTransitions},
		{"TicketConcurrentClose", testTicketConcurrentClose},
		{"RateLimitHit", testRateLimitHit},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

func channelFor(_ context.Context, cfg *domain.CommunityConfig, number uint64) (string, error) {
	return fmt.Sprintf("%s:ticket-%04d", cfg.ID, number), nil
}

func createParams(community, opener string) repository.CreateTicketParams {
	return repository.CreateTicketParams{
		ID:          uuid.NewString(),
		CommunityID: community,
		OpenerID:    opener,
		Type:        domain.TicketTypeSupport,
		Subject:     "Login broken",
		Description: "I cannot log in since yesterday",
		MaxOpen:     2,
		CreatedAt:   Epoch,
	}
}

func testConfigGetOrCreate(t *testing.T, s Stores) {
	ctx := context.Background()

	cfg, err := s.Configs.GetOrCreate(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", cfg.ID)
	assert.Zero(t, cfg.TicketCounter)
	assert.Empty(t, cfg.SupportRoles)
	assert.Nil(t, cfg.LogChannel)

	again, err := s.Configs.GetOrCreate(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, again.ID)
}

func testConfigUpdatePatch(t *testing.T, s Stores) {
	ctx := context.Background()

	logChannel := "logs"
	roles := []string{"mods", " helpers ", "mods"}
	cfg, err := s.Configs.Update(ctx, "g1", domain.ConfigPatch{LogChannel: &logChannel, SupportRoles: &roles}, Epoch)
	require.NoError(t, err)
	require.NotNil(t, cfg.LogChannel)
	assert.Equal(t, "logs", *cfg.LogChannel)
	assert.Equal(t, []string{"helpers", "mods"}, cfg.SupportRoles)
	assert.True(t, cfg.UpdatedAt.Equal(Epoch))

	category := "cat-1"
	later := Epoch.Add(time.Minute)
	cfg, err = s.Configs.Update(ctx, "g1", domain.ConfigPatch{TicketCategory: &category}, later)
	require.NoError(t, err)
	require.NotNil(t, cfg.LogChannel)
	assert.Equal(t, "logs", *cfg.LogChannel, "unspecified fields are untouched")
	assert.Equal(t, "cat-1", *cfg.TicketCategory)
	assert.True(t, cfg.UpdatedAt.Equal(later))

	empty := ""
	cfg, err = s.Configs.Update(ctx, "g1", domain.ConfigPatch{LogChannel: &empty}, later)
	require.NoError(t, err)
	assert.Nil(t, cfg.LogChannel)
}

func testConfigIncrementCounter(t *testing.T, s Stores) {
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		got, err := s.Configs.IncrementCounter(ctx, "g1", Epoch)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func testTicketCreateAndLookup(t *testing.T, s Stores) {
	ctx := context.Background()

	created, err := s.Tickets.Create(ctx, createParams("g1", "u1"), channelFor)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), created.Number)
	assert.Equal(t, "g1:ticket-0001", created.ChannelID)
	assert.Equal(t, domain.TicketStatusOpen, created.Status)

	byChannel, err := s.Tickets.GetByChannel(ctx, created.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byChannel.ID)

	byID, err := s.Tickets.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ChannelID, byID.ChannelID)
	assert.True(t, byID.CreatedAt.Equal(Epoch))

	_, err = s.Tickets.GetByChannel(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Tickets.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	cfg, err := s.Configs.GetOrCreate(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cfg.TicketCounter)
}

func testTicketCreateQuota(t *testing.T, s Stores) {
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.Tickets.Create(ctx, createParams("g1", "u1"), channelFor)
		require.NoError(t, err)
	}
	_, err := s.Tickets.Create(ctx, createParams("g1", "u1"), channelFor)
	assert.ErrorIs(t, err, repository.ErrOpenQuotaExceeded)

	// the quota is per community
	_, err = s.Tickets.Create(ctx, createParams("g2", "u1"), channelFor)
	assert.NoError(t, err)

	count, err := s.Tickets.CountOpenByUser(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func testTicketCreateRollsBackCounter(t *testing.T, s Stores) {
	ctx := context.Background()

	failing := func(context.Context, *domain.CommunityConfig, uint64) (string, error) {
		return "", errors.New("platform refused channel")
	}
	_, err := s.Tickets.Create(ctx, createParams("g1", "u1"), failing)
	require.Error(t, err)

	cfg, err := s.Configs.GetOrCreate(ctx, "g1")
	require.NoError(t, err)
	assert.Zero(t, cfg.TicketCounter)

	created, err := s.Tickets.Create(ctx, createParams("g1", "u1"), channelFor)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), created.Number)
}

func testTicketCreateDuplicateChannelRollsBack(t *testing.T, s Stores) {
	ctx := context.Background()

	fixed := func(context.Context, *domain.CommunityConfig, uint64) (string, error) { return "same", nil }
	_, err := s.Tickets.Create(ctx, createParams("g1", "u1"), fixed)
	require.NoError(t, err)
	_, err = s.Tickets.Create(ctx, createParams("g1", "u2"), fixed)
	require.Error(t, err)

	cfg, err := s.Configs.GetOrCreate(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cfg.TicketCounter)
}

func testTicketConcurrentNumbering(t *testing.T, s Stores) {
	ctx := context.Background()

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []uint64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := s.Tickets.Create(ctx, createParams("g1", fmt.Sprintf("user-%d", i)), channelFor)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers = append(numbers, created.Number)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Len(t, numbers, n)
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, number := range numbers {
		assert.Equal(t, uint64(i+1), number)
	}
	cfg, err := s.Configs.GetOrCreate(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, uint64(n), cfg.TicketCounter)
}

func testTicketConcurrentQuota(t *testing.T, s Stores) {
	ctx := context.Background()

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Tickets.Create(ctx, createParams("g1", "u1"), channelFor)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, repository.ErrOpenQuotaExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, succeeded)
	assert.Equal(t, n-2, rejected)
}

func testTicketTransitions(t *testing.T, s Stores) {
	ctx := context.Background()
	at := Epoch.Add(time.Hour)

	created, err := s.Tickets.Create(ctx, createParams("g1", "u1"), channelFor)
	require.NoError(t, err)

	_, err = s.Tickets.SetTranscript(ctx, created.ID, "https://example.test/t.html", at)
	assert.ErrorIs(t, err, repository.ErrStatusChanged, "transcript requires a closed ticket")

	escalated, err := s.Tickets.Escalate(ctx, created.ID, at)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, escalated.Status)
	require.NotNil(t, escalated.EscalatedAt)
	assert.True(t, escalated.EscalatedAt.Equal(at))

	_, err = s.Tickets.Escalate(ctx, created.ID, at)
	assert.ErrorIs(t, err, repository.ErrStatusChanged)

	closed, err := s.Tickets.Close(ctx, created.ID, "staff-1", at)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedBy)
	assert.Equal(t, "staff-1", *closed.ClosedBy)

	_, err = s.Tickets.Close(ctx, created.ID, "staff-1", at)
	assert.ErrorIs(t, err, repository.ErrStatusChanged)

	withTranscript, err := s.Tickets.SetTranscript(ctx, created.ID, "https://example.test/t.html", at)
	require.NoError(t, err)
	require.NotNil(t, withTranscript.TranscriptURL)

	_, err = s.Tickets.Close(ctx, uuid.NewString(), "staff-1", at)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testTicketConcurrentClose(t *testing.T, s Stores) {
	ctx := context.Background()

	created, err := s.Tickets.Create(ctx, createParams("g1", "u1"), channelFor)
	require.NoError(t, err)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Tickets.Close(ctx, created.ID, "u1", Epoch)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, repository.ErrStatusChanged)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func testRateLimitHit(t *testing.T, s Stores) {
	ctx := context.Background()
	window := time.Minute

	var counts []uint32
	for i := 0; i < 5; i++ {
		entry, err := s.RateLimits.Hit(ctx, "slash:ticket:u1", 3, window, Epoch.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		counts = append(counts, entry.Count)
		assert.True(t, entry.WindowEnd.Equal(Epoch.Add(window)), "window is fixed at first hit")
	}
	assert.Equal(t, []uint32{1, 2, 3, 4, 4}, counts)

	entry, err := s.RateLimits.Hit(ctx, "slash:ticket:u1", 3, window, Epoch.Add(window))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), entry.Count, "a new window starts at windowEnd")
	assert.True(t, entry.WindowEnd.Equal(Epoch.Add(2*window)))

	_, err = s.RateLimits.Hit(ctx, "btn:close:u1", 30, window, Epoch)
	require.NoError(t, err)
	purged, err := s.RateLimits.PurgeExpired(ctx, Epoch.Add(window))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
