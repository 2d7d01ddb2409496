package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/unityvault/ticketflow/internal/config"
	"github.com/unityvault/ticketflow/internal/domain"
	"github.com/unityvault/ticketflow/internal/events"
	"github.com/unityvault/ticketflow/internal/persistence"
	"github.com/unityvault/ticketflow/internal/repository/gormstore"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

var staff = domain.Actor{ID: "staff-1", Permissions: domain.AdministrativeBundle}

type captureSink struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (s *captureSink) Notify(_ context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *captureSink) last() events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type harness struct {
	store   *gormstore.Store
	sink    *captureSink
	tickets *TicketService
	configs *ConfigService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sq, err := persistence.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	store, err := gormstore.New(sq.DB)
	require.NoError(t, err)

	sink := &captureSink{}
	ticketsCfg := config.TicketsConfig{MaxOpenPerUser: 2, DefaultCategory: "tickets", DefaultOnboardingChannel: "welcome"}
	clock := func() time.Time { return epoch }
	return &harness{
		store: store,
		sink:  sink,
		tickets: NewTicketService(TicketDependencies{
			ConfigRepo:       store.Configs(),
			TicketRepo:       store.Tickets(),
			Sink:             sink,
			Config:           ticketsCfg,
			OperationTimeout: 5 * time.Second,
			Clock:            clock,
		}),
		configs: NewConfigService(ConfigDependencies{
			ConfigRepo:       store.Configs(),
			Config:           ticketsCfg,
			OperationTimeout: 5 * time.Second,
			Clock:            clock,
		}),
	}
}

func validInput(community, user string) CreateTicketInput {
	return CreateTicketInput{
		CommunityID: community,
		Actor:       domain.Actor{ID: user},
		Type:        "support",
		Subject:     gofakeit.Sentence(4),
		Description: gofakeit.Sentence(12),
	}
}

func (h *harness) create(t *testing.T, community, user string) *domain.Ticket {
	t.Helper()
	ticket, err := h.tickets.Create(context.Background(), validInput(community, user))
	require.NoError(t, err)
	return ticket
}

var errProvision = errors.New("platform refused channel")

type failingProvisioner struct{}

func (failingProvisioner) ProvisionChannel(context.Context, ChannelRequest) (string, error) {
	return "", errProvision
}
