package command

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unityvault/ticketflow/internal/config"
	"github.com/unityvault/ticketflow/internal/domain"
	"github.com/unityvault/ticketflow/internal/persistence"
	"github.com/unityvault/ticketflow/internal/ratelimit"
	"github.com/unityvault/ticketflow/internal/repository/gormstore"
	"github.com/unityvault/ticketflow/internal/service"
	apperrors "github.com/unityvault/ticketflow/pkg/errorutil"
)

var (
	epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	admin = domain.Actor{ID: "admin-1", Permissions: domain.AdministrativeBundle}
)

func newRouter(t *testing.T) *Router {
	t.Helper()
	sq, err := persistence.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	store, err := gormstore.New(sq.DB)
	require.NoError(t, err)

	clock := func() time.Time { return epoch }
	cfg := config.Default()
	limiter := ratelimit.NewLimiter(store.RateLimits(), ratelimit.PoliciesFromConfig(cfg.RateLimit), ratelimit.WithClock(clock))
	tickets := service.NewTicketService(service.TicketDependencies{
		ConfigRepo: store.Configs(),
		TicketRepo: store.Tickets(),
		Config:     cfg.Tickets,
		Clock:      clock,
	})
	configs := service.NewConfigService(service.ConfigDependencies{
		ConfigRepo: store.Configs(),
		Config:     cfg.Tickets,
		Clock:      clock,
	})
	return NewRouter(limiter, tickets, configs, nil)
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func createIntent(t *testing.T, community, user string) Intent {
	return Intent{
		Action:      ActionTicketCreate,
		Actor:       domain.Actor{ID: user},
		CommunityID: community,
		Payload: payload(t, CreatePayload{
			Type:        "support",
			Subject:     gofakeit.Sentence(4),
			Description: gofakeit.Sentence(12),
		}),
	}
}

func TestParseAction(t *testing.T) {
	for _, a := range Actions {
		got, err := ParseAction(string(a))
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	got, err := ParseAction(" Ticket.Create ")
	require.NoError(t, err)
	assert.Equal(t, ActionTicketCreate, got)

	_, err = ParseAction("ticket.delete")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestRateLimitKey(t *testing.T) {
	actor := domain.Actor{ID: "u1"}
	assert.Equal(t, ratelimit.TicketCreateKey("g1", "u1"), RateLimitKey(Intent{Action: ActionTicketCreate, Actor: actor, CommunityID: "g1"}))
	assert.Equal(t, ratelimit.ButtonKey("ticket.close", "u1"), RateLimitKey(Intent{Action: ActionTicketClose, Actor: actor}))
	assert.Equal(t, ratelimit.ButtonKey("ticket.escalate", "u1"), RateLimitKey(Intent{Action: ActionTicketEscalate, Actor: actor}))
	assert.Equal(t, ratelimit.CommandKey("config.view", "u1"), RateLimitKey(Intent{Action: ActionConfigView, Actor: actor}))
}

func TestDispatchCreateQuotaThenRateLimit(t *testing.T) {
	r := newRouter(t)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		res, err := r.Dispatch(ctx, createIntent(t, "g1", "u1"))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), res.Ticket.Number)
	}

	_, err := r.Dispatch(ctx, createIntent(t, "g1", "u1"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict), "third create hits the open quota")

	_, err = r.Dispatch(ctx, createIntent(t, "g1", "u1"))
	require.Error(t, err)
	de := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeRateLimited, de.Code)
	assert.Equal(t, 300, de.Details["retry_after_seconds"])

	_, err = r.Dispatch(ctx, createIntent(t, "g2", "u1"))
	assert.NoError(t, err, "ticket creation is throttled per community")
}

func TestDispatchCloseByChannelAndID(t *testing.T) {
	r := newRouter(t)
	ctx := context.Background()

	first, err := r.Dispatch(ctx, createIntent(t, "g1", "u1"))
	require.NoError(t, err)
	second, err := r.Dispatch(ctx, createIntent(t, "g1", "u1"))
	require.NoError(t, err)

	res, err := r.Dispatch(ctx, Intent{
		Action:      ActionTicketClose,
		Actor:       domain.Actor{ID: "u1"},
		CommunityID: "g1",
		Payload:     payload(t, TicketRef{ChannelID: first.Ticket.ChannelID}),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, res.Ticket.Status)

	res, err = r.Dispatch(ctx, Intent{
		Action:  ActionTicketEscalate,
		Actor:   admin,
		Payload: payload(t, TicketRef{TicketID: second.Ticket.ID}),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, res.Ticket.Status)

	_, err = r.Dispatch(ctx, Intent{
		Action:      ActionTicketClose,
		Actor:       admin,
		CommunityID: "other",
		Payload:     payload(t, TicketRef{TicketID: second.Ticket.ID}),
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound), "tickets are scoped to the intent's community")

	_, err = r.Dispatch(ctx, Intent{Action: ActionTicketClose, Actor: admin, Payload: payload(t, TicketRef{})})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestDispatchFindAndOpenCount(t *testing.T) {
	r := newRouter(t)
	ctx := context.Background()

	created, err := r.Dispatch(ctx, createIntent(t, "g1", "u1"))
	require.NoError(t, err)

	res, err := r.Dispatch(ctx, Intent{
		Action:      ActionTicketFind,
		Actor:       domain.Actor{ID: "u2"},
		CommunityID: "g1",
		Payload:     payload(t, TicketRef{ChannelID: created.Ticket.ChannelID}),
	})
	require.NoError(t, err)
	assert.Equal(t, created.Ticket.ID, res.Ticket.ID)

	res, err = r.Dispatch(ctx, Intent{Action: ActionTicketOpenCount, Actor: domain.Actor{ID: "u1"}, CommunityID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, &OpenCount{UserID: "u1", Open: 1, Max: 2}, res.OpenCount)

	res, err = r.Dispatch(ctx, Intent{
		Action:      ActionTicketOpenCount,
		Actor:       admin,
		CommunityID: "g1",
		Payload:     payload(t, OpenCountPayload{UserID: "u9"}),
	})
	require.NoError(t, err)
	assert.Zero(t, res.OpenCount.Open)
}

func TestDispatchConfig(t *testing.T) {
	r := newRouter(t)
	ctx := context.Background()

	logs := "logs"
	res, err := r.Dispatch(ctx, Intent{
		Action:      ActionConfigUpdate,
		Actor:       admin,
		CommunityID: "g1",
		Payload:     payload(t, ConfigPayload{LogChannel: &logs}),
	})
	require.NoError(t, err)
	assert.Equal(t, "logs", *res.Config.LogChannel)

	res, err = r.Dispatch(ctx, Intent{Action: ActionConfigView, Actor: admin, CommunityID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, "logs", *res.Config.LogChannel)

	_, err = r.Dispatch(ctx, Intent{Action: ActionConfigView, Actor: domain.Actor{ID: "u1"}, CommunityID: "g1"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = r.Dispatch(ctx, Intent{Action: ActionConfigView, Actor: admin})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestDispatchCommandThrottle(t *testing.T) {
	r := newRouter(t)
	ctx := context.Background()
	in := Intent{Action: ActionTicketOpenCount, Actor: domain.Actor{ID: "u1"}, CommunityID: "g1"}

	for i := 0; i < 5; i++ {
		_, err := r.Dispatch(ctx, in)
		require.NoError(t, err)
	}
	_, err := r.Dispatch(ctx, in)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeRateLimited))

	in.Action = ActionConfigView
	in.Actor = admin
	_, err = r.Dispatch(ctx, in)
	assert.NoError(t, err, "each command has its own counter")
}

func TestDispatchRejectsBadInput(t *testing.T) {
	r := newRouter(t)
	ctx := context.Background()

	_, err := r.Dispatch(ctx, Intent{Action: "ticket.delete", Actor: admin})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = r.Dispatch(ctx, Intent{Action: ActionConfigView, CommunityID: "g1"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, err = r.Dispatch(ctx, Intent{
		Action:      ActionTicketCreate,
		Actor:       domain.Actor{ID: "u1"},
		CommunityID: "g1",
		Payload:     json.RawMessage(`{"subject": 7}`),
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestDispatchMissingCommunityIsNotCharged(t *testing.T) {
	r := newRouter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := r.Dispatch(ctx, createIntent(t, "", "u1"))
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "attempt %d", i+1)
	}

	_, err := r.Dispatch(ctx, createIntent(t, "g1", "u1"))
	assert.NoError(t, err)
}

type countingLimiter struct{ calls int }

func (l *countingLimiter) Allow(context.Context, ratelimit.Key) error {
	l.calls++
	return nil
}

func TestDispatchValidatesCommunityBeforeLimiter(t *testing.T) {
	limiter := &countingLimiter{}
	r := NewRouter(limiter, nil, nil, nil)

	for _, action := range []Action{ActionTicketCreate, ActionTicketOpenCount, ActionConfigView, ActionConfigUpdate} {
		_, err := r.Dispatch(context.Background(), Intent{Action: action, Actor: domain.Actor{ID: "u1"}})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), action)
	}
	assert.Zero(t, limiter.calls)
}
