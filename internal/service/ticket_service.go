package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/unityvault/ticketflow/internal/auth"
	"github.com/unityvault/ticketflow/internal/config"
	"github.com/unityvault/ticketflow/internal/domain"
	"github.com/unityvault/ticketflow/internal/events"
	"github.com/unityvault/ticketflow/internal/observability"
	"github.com/unityvault/ticketflow/internal/repository"
	apperrors "github.com/unityvault/ticketflow/pkg/errorutil"
)

// Field limits for ticket creation, counted in characters after trimming.
const (
	MaxSubjectLength     = 256
	MinDescriptionLength = 10
	MaxDescriptionLength = 1024
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	configs     repository.ConfigRepository
	tickets     repository.TicketRepository
	gate        *auth.PermissionGate
	provisioner ChannelProvisioner
	sink        events.Sink
	cfg         config.TicketsConfig
	now         func() time.Time
	logger      *zap.Logger
	instrumentation
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	ConfigRepo       repository.ConfigRepository
	TicketRepo       repository.TicketRepository
	Gate             *auth.PermissionGate
	Provisioner      ChannelProvisioner
	Sink             events.Sink
	Config           config.TicketsConfig
	OperationTimeout time.Duration
	Clock            func() time.Time
	Logger           *zap.Logger
	Metrics          *observability.Metrics
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	CommunityID string
	Actor       domain.Actor
	Type        string
	Subject     string
	Description string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	provisioner := deps.Provisioner
	if provisioner == nil {
		provisioner = FormatProvisioner{}
	}
	cfg := deps.Config
	if cfg.MaxOpenPerUser <= 0 {
		cfg.MaxOpenPerUser = 2
	}
	gate := deps.Gate
	if gate == nil {
		gate = auth.NewPermissionGate(deps.ConfigRepo)
	}
	return &TicketService{
		configs:     deps.ConfigRepo,
		tickets:     deps.TicketRepo,
		gate:        gate,
		provisioner: provisioner,
		sink:        deps.Sink,
		cfg:         cfg,
		now:         now,
		logger:      logger,
		instrumentation: instrumentation{
			logger:  logger,
			metrics: deps.Metrics,
			timeout: deps.OperationTimeout,
		},
	}
}

// Create opens a ticket for input.Actor. The quota check, number allocation,
// channel provisioning and insert commit together or not at all.
func (s *TicketService) Create(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	ticketType, subject, description, err := validateCreate(input)
	if err != nil {
		return nil, err
	}
	if s.tickets == nil {
		return nil, apperrors.NewStorageError(repository.ErrNoHandle)
	}

	var (
		ticket     *domain.Ticket
		logChannel *string
	)
	err = s.run(ctx, "ticket.create", []attribute.KeyValue{
		attribute.String("community_id", input.CommunityID),
		attribute.String("actor_id", input.Actor.ID),
	}, func(ctx context.Context) error {
		params := repository.CreateTicketParams{
			ID:          uuid.NewString(),
			CommunityID: input.CommunityID,
			OpenerID:    input.Actor.ID,
			Type:        ticketType,
			Subject:     subject,
			Description: description,
			MaxOpen:     s.cfg.MaxOpenPerUser,
			CreatedAt:   s.now().UTC(),
		}
		allocate := func(ctx context.Context, cfg *domain.CommunityConfig, number uint64) (string, error) {
			logChannel = cfg.LogChannel
			channelID, err := s.provisioner.ProvisionChannel(ctx, ChannelRequest{
				CommunityID:  cfg.ID,
				OpenerID:     input.Actor.ID,
				Number:       number,
				Type:         ticketType,
				Category:     s.ticketCategory(cfg),
				SupportRoles: cfg.SupportRoles,
			})
			if err != nil {
				var de *apperrors.DomainError
				if errors.As(err, &de) {
					return "", de
				}
				return "", apperrors.NewInternalError(fmt.Errorf("provision channel: %w", err))
			}
			return channelID, nil
		}

		created, err := s.tickets.Create(ctx, params, allocate)
		if errors.Is(err, repository.ErrOpenQuotaExceeded) {
			return apperrors.NewConflict(
				fmt.Sprintf("You already have %d open tickets. Please close one before opening another.", s.cfg.MaxOpenPerUser),
				map[string]any{"max_open": s.cfg.MaxOpenPerUser},
			)
		}
		if err != nil {
			return mapStoreError(err, "ticket")
		}
		ticket = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, events.Event{
		Type:             events.EventTicketCreated,
		CommunityID:      ticket.CommunityID,
		TicketID:         ticket.ID,
		ChannelID:        ticket.ChannelID,
		ActorID:          input.Actor.ID,
		TicketType:       ticket.Type,
		Number:           ticket.Number,
		CommunityCounter: ticket.Number,
		LogChannel:       logChannel,
	})
	return ticket, nil
}

// Close closes a ticket. The opener may always close their own ticket; anyone
// else needs the ticket capability.
func (s *TicketService) Close(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	var (
		ticket *domain.Ticket
		cfg    *domain.CommunityConfig
	)
	err := s.run(ctx, "ticket.close", ticketAttrs(ticketID, actor), func(ctx context.Context) error {
		current, err := s.load(ctx, ticketID)
		if err != nil {
			return err
		}
		if current.Status == domain.TicketStatusClosed {
			return apperrors.NewConflict("This ticket is already closed.", map[string]any{"ticket_id": current.ID})
		}
		if current.OpenerID != actor.ID {
			if err := s.gate.RequireTicketCapability(ctx, actor, current.CommunityID); err != nil {
				return err
			}
		}

		closed, err := s.tickets.Close(ctx, current.ID, actor.ID, s.now().UTC())
		if errors.Is(err, repository.ErrStatusChanged) {
			return apperrors.NewConflict("This ticket is already closed.", map[string]any{"ticket_id": current.ID})
		}
		if err != nil {
			return mapStoreError(err, "ticket")
		}
		ticket = closed
		cfg = s.communitySnapshot(ctx, closed.CommunityID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := events.Event{
		Type:        events.EventTicketClosed,
		CommunityID: ticket.CommunityID,
		TicketID:    ticket.ID,
		ChannelID:   ticket.ChannelID,
		ActorID:     actor.ID,
		TicketType:  ticket.Type,
		Number:      ticket.Number,
	}
	if cfg != nil {
		event.CommunityCounter = cfg.TicketCounter
		event.LogChannel = cfg.LogChannel
	}
	s.notify(ctx, event)
	return ticket, nil
}

// Escalate moves an Open ticket to Escalated. Requires the ticket capability.
func (s *TicketService) Escalate(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	var (
		ticket *domain.Ticket
		cfg    *domain.CommunityConfig
	)
	err := s.run(ctx, "ticket.escalate", ticketAttrs(ticketID, actor), func(ctx context.Context) error {
		current, err := s.load(ctx, ticketID)
		if err != nil {
			return err
		}
		if err := s.gate.RequireTicketCapability(ctx, actor, current.CommunityID); err != nil {
			return err
		}
		if current.Status != domain.TicketStatusOpen {
			return escalateConflict(current)
		}

		escalated, err := s.tickets.Escalate(ctx, current.ID, s.now().UTC())
		if errors.Is(err, repository.ErrStatusChanged) {
			latest, getErr := s.tickets.GetByID(ctx, current.ID)
			if getErr != nil {
				return mapStoreError(getErr, "ticket")
			}
			return escalateConflict(latest)
		}
		if err != nil {
			return mapStoreError(err, "ticket")
		}
		ticket = escalated
		cfg = s.communitySnapshot(ctx, escalated.CommunityID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := events.Event{
		Type:        events.EventTicketEscalated,
		CommunityID: ticket.CommunityID,
		TicketID:    ticket.ID,
		ChannelID:   ticket.ChannelID,
		ActorID:     actor.ID,
		TicketType:  ticket.Type,
		Number:      ticket.Number,
	}
	if cfg != nil {
		event.CommunityCounter = cfg.TicketCounter
		event.LogChannel = cfg.LogChannel
	}
	s.notify(ctx, event)
	return ticket, nil
}

// AttachTranscript records where the transcript of a Closed ticket lives.
func (s *TicketService) AttachTranscript(ctx context.Context, ticketID string, actor domain.Actor, transcriptURL string) (*domain.Ticket, error) {
	transcriptURL = strings.TrimSpace(transcriptURL)
	parsed, err := url.Parse(transcriptURL)
	if transcriptURL == "" || err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, apperrors.NewValidationError("Transcript URL must be an absolute URL.", nil)
	}

	var ticket *domain.Ticket
	err = s.run(ctx, "ticket.attach_transcript", ticketAttrs(ticketID, actor), func(ctx context.Context) error {
		current, err := s.load(ctx, ticketID)
		if err != nil {
			return err
		}
		if err := s.gate.RequireTicketCapability(ctx, actor, current.CommunityID); err != nil {
			return err
		}
		if current.Status != domain.TicketStatusClosed {
			return apperrors.NewConflict("Transcripts can only be attached to closed tickets.", map[string]any{"status": current.Status})
		}
		updated, err := s.tickets.SetTranscript(ctx, current.ID, transcriptURL, s.now().UTC())
		if err != nil {
			return mapStoreError(err, "ticket")
		}
		ticket = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// Get returns a ticket by id.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.run(ctx, "ticket.get", []attribute.KeyValue{attribute.String("ticket_id", ticketID)}, func(ctx context.Context) error {
		var err error
		ticket, err = s.load(ctx, ticketID)
		return err
	})
	return ticket, err
}

// FindByChannel returns the ticket hosted in channelID.
func (s *TicketService) FindByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.run(ctx, "ticket.find_by_channel", []attribute.KeyValue{attribute.String("channel_id", channelID)}, func(ctx context.Context) error {
		if s.tickets == nil {
			return apperrors.NewStorageError(repository.ErrNoHandle)
		}
		found, err := s.tickets.GetByChannel(ctx, channelID)
		if err != nil {
			return mapStoreError(err, "ticket")
		}
		ticket = found
		return nil
	})
	return ticket, err
}

// CountOpenByUser returns how many of userID's tickets count toward the quota.
func (s *TicketService) CountOpenByUser(ctx context.Context, communityID, userID string) (int, error) {
	var count int
	err := s.run(ctx, "ticket.count_open", []attribute.KeyValue{
		attribute.String("community_id", communityID),
		attribute.String("user_id", userID),
	}, func(ctx context.Context) error {
		if s.tickets == nil {
			return apperrors.NewStorageError(repository.ErrNoHandle)
		}
		n, err := s.tickets.CountOpenByUser(ctx, communityID, userID)
		if err != nil {
			return mapStoreError(err, "ticket")
		}
		count = n
		return nil
	})
	return count, err
}

// MaxOpenPerUser returns the configured quota.
func (s *TicketService) MaxOpenPerUser() int {
	return s.cfg.MaxOpenPerUser
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if s.tickets == nil {
		return nil, apperrors.NewStorageError(repository.ErrNoHandle)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapStoreError(err, "ticket")
	}
	return ticket, nil
}

// communitySnapshot reads the community record for event payloads. A failure
// only degrades the event, so it is logged rather than returned.
func (s *TicketService) communitySnapshot(ctx context.Context, communityID string) *domain.CommunityConfig {
	if s.configs == nil {
		return nil
	}
	cfg, err := s.configs.GetOrCreate(ctx, communityID)
	if err != nil {
		s.logger.Warn("community config unavailable for event", zap.String("community_id", communityID), zap.Error(err))
		return nil
	}
	return cfg
}

func (s *TicketService) ticketCategory(cfg *domain.CommunityConfig) string {
	if cfg.TicketCategory != nil && *cfg.TicketCategory != "" {
		return *cfg.TicketCategory
	}
	return s.cfg.DefaultCategory
}

// notify hands the event to the sink. Sink failures never fail the operation.
func (s *TicketService) notify(ctx context.Context, event events.Event) {
	if s.sink == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.sink.Notify(ctx, event); err != nil {
		s.logger.Warn("notification sink failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err),
		)
	}
}

func validateCreate(input CreateTicketInput) (domain.TicketType, string, string, error) {
	ticketType, ok := domain.ParseTicketType(input.Type)
	if !ok {
		return "", "", "", apperrors.NewValidationError(
			fmt.Sprintf("Unknown ticket type %q.", strings.TrimSpace(input.Type)),
			map[string]any{"allowed": domain.TicketTypes},
		)
	}
	subject := strings.TrimSpace(input.Subject)
	switch n := utf8.RuneCountInString(subject); {
	case n == 0:
		return "", "", "", apperrors.NewValidationError("Subject is required.", map[string]any{"field": "subject"})
	case n > MaxSubjectLength:
		return "", "", "", apperrors.NewValidationError("Subject must be 256 characters or less.", map[string]any{"field": "subject"})
	}
	description := strings.TrimSpace(input.Description)
	switch n := utf8.RuneCountInString(description); {
	case n < MinDescriptionLength:
		return "", "", "", apperrors.NewValidationError("Please provide at least 10 characters.", map[string]any{"field": "description"})
	case n > MaxDescriptionLength:
		return "", "", "", apperrors.NewValidationError("Description must be 1024 characters or less.", map[string]any{"field": "description"})
	}
	if strings.TrimSpace(input.CommunityID) == "" || strings.TrimSpace(input.Actor.ID) == "" {
		return "", "", "", apperrors.NewValidationError("Community and actor are required.", nil)
	}
	return ticketType, subject, description, nil
}

func escalateConflict(t *domain.Ticket) error {
	msg := "Only open tickets can be escalated."
	if t.Status == domain.TicketStatusEscalated {
		msg = "This ticket is already escalated."
	}
	return apperrors.NewConflict(msg, map[string]any{"status": t.Status})
}

func ticketAttrs(ticketID string, actor domain.Actor) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("ticket_id", ticketID),
		attribute.String("actor_id", actor.ID),
	}
}
