package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/unityvault/ticketflow/internal/domain"
	"github.com/unityvault/ticketflow/internal/ratelimit"
	"github.com/unityvault/ticketflow/internal/service"
	apperrors "github.com/unityvault/ticketflow/pkg/errorutil"
)

// Limiter throttles attempts per key.
type Limiter interface {
	Allow(ctx context.Context, key ratelimit.Key) error
}

// TicketWorkflow is the ticket side of the router.
type TicketWorkflow interface {
	Create(ctx context.Context, input service.CreateTicketInput) (*domain.Ticket, error)
	Close(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error)
	Escalate(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error)
	FindByChannel(ctx context.Context, channelID string) (*domain.Ticket, error)
	Get(ctx context.Context, ticketID string) (*domain.Ticket, error)
	CountOpenByUser(ctx context.Context, communityID, userID string) (int, error)
	MaxOpenPerUser() int
}

// ConfigManager is the community settings side of the router.
type ConfigManager interface {
	Get(ctx context.Context, communityID string, actor domain.Actor) (*domain.CommunityConfig, error)
	Update(ctx context.Context, communityID string, actor domain.Actor, patch domain.ConfigPatch) (*domain.CommunityConfig, error)
}

// Intent is an authenticated request to perform Action.
type Intent struct {
	Action      Action
	Actor       domain.Actor
	CommunityID string
	Payload     json.RawMessage
}

// CreatePayload carries ticket.create arguments.
type CreatePayload struct {
	Type        string `json:"type"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

// TicketRef names a ticket by id or by its channel.
type TicketRef struct {
	TicketID  string `json:"ticket_id"`
	ChannelID string `json:"channel_id"`
}

// OpenCountPayload carries ticket.open_count arguments. UserID defaults to the actor.
type OpenCountPayload struct {
	UserID string `json:"user_id"`
}

// ConfigPayload carries config.update arguments.
type ConfigPayload struct {
	LogChannel        *string   `json:"log_channel"`
	TicketCategory    *string   `json:"ticket_category"`
	SupportRoles      *[]string `json:"support_roles"`
	OnboardingChannel *string   `json:"onboarding_channel"`
}

// Patch converts the payload to a domain patch.
func (p ConfigPayload) Patch() domain.ConfigPatch {
	return domain.ConfigPatch{
		LogChannel:        p.LogChannel,
		TicketCategory:    p.TicketCategory,
		SupportRoles:      p.SupportRoles,
		OnboardingChannel: p.OnboardingChannel,
	}
}

// OpenCount is the result of ticket.open_count.
type OpenCount struct {
	UserID string
	Open   int
	Max    int
}

// Result holds whatever the action produced.
type Result struct {
	Action    Action
	Ticket    *domain.Ticket
	Config    *domain.CommunityConfig
	OpenCount *OpenCount
}

// Router dispatches intents after rate limiting them.
type Router struct {
	limiter Limiter
	tickets TicketWorkflow
	configs ConfigManager
	logger  *zap.Logger
}

// NewRouter wires the router. A nil limiter disables throttling.
func NewRouter(limiter Limiter, tickets TicketWorkflow, configs ConfigManager, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{limiter: limiter, tickets: tickets, configs: configs, logger: logger}
}

// RateLimitKey returns the counter an intent is charged against.
func RateLimitKey(in Intent) ratelimit.Key {
	switch in.Action {
	case ActionTicketCreate:
		return ratelimit.TicketCreateKey(in.CommunityID, in.Actor.ID)
	case ActionTicketClose, ActionTicketEscalate:
		return ratelimit.ButtonKey(string(in.Action), in.Actor.ID)
	default:
		return ratelimit.CommandKey(string(in.Action), in.Actor.ID)
	}
}

// Dispatch rate limits the intent and runs it.
func (r *Router) Dispatch(ctx context.Context, in Intent) (*Result, error) {
	if _, err := ParseAction(string(in.Action)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Actor.ID) == "" {
		return nil, apperrors.NewUnauthorized("actor is required")
	}
	if scopedToCommunity(in.Action) && strings.TrimSpace(in.CommunityID) == "" {
		return nil, apperrors.NewValidationError("community_id is required.", nil)
	}
	if r.limiter != nil {
		if err := r.limiter.Allow(ctx, RateLimitKey(in)); err != nil {
			return nil, err
		}
	}

	res := &Result{Action: in.Action}
	var err error
	switch in.Action {
	case ActionTicketCreate:
		res.Ticket, err = r.create(ctx, in)
	case ActionTicketClose:
		res.Ticket, err = r.transition(ctx, in, r.tickets.Close)
	case ActionTicketEscalate:
		res.Ticket, err = r.transition(ctx, in, r.tickets.Escalate)
	case ActionTicketFind:
		res.Ticket, err = r.find(ctx, in)
	case ActionTicketOpenCount:
		res.OpenCount, err = r.openCount(ctx, in)
	case ActionConfigView:
		res.Config, err = r.configs.Get(ctx, in.CommunityID, in.Actor)
	case ActionConfigUpdate:
		res.Config, err = r.updateConfig(ctx, in)
	default:
		err = apperrors.NewInternalError(fmt.Errorf("unhandled action %q", in.Action))
	}
	if err != nil {
		r.logger.Debug("intent rejected",
			zap.String("action", string(in.Action)),
			zap.String("actor_id", in.Actor.ID),
			zap.Error(err),
		)
		return nil, err
	}
	return res, nil
}

func (r *Router) create(ctx context.Context, in Intent) (*domain.Ticket, error) {
	var p CreatePayload
	if err := decode(in.Payload, &p); err != nil {
		return nil, err
	}
	return r.tickets.Create(ctx, service.CreateTicketInput{
		CommunityID: in.CommunityID,
		Actor:       in.Actor,
		Type:        p.Type,
		Subject:     p.Subject,
		Description: p.Description,
	})
}

type transitionFunc func(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error)

func (r *Router) transition(ctx context.Context, in Intent, apply transitionFunc) (*domain.Ticket, error) {
	var ref TicketRef
	if err := decode(in.Payload, &ref); err != nil {
		return nil, err
	}
	ticket, err := r.resolve(ctx, in.CommunityID, ref)
	if err != nil {
		return nil, err
	}
	return apply(ctx, ticket.ID, in.Actor)
}

// resolve loads the referenced ticket. When communityID is set the ticket must belong to it.
func (r *Router) resolve(ctx context.Context, communityID string, ref TicketRef) (*domain.Ticket, error) {
	var (
		ticket *domain.Ticket
		err    error
	)
	switch {
	case strings.TrimSpace(ref.TicketID) != "":
		ticket, err = r.tickets.Get(ctx, strings.TrimSpace(ref.TicketID))
	case strings.TrimSpace(ref.ChannelID) != "":
		ticket, err = r.tickets.FindByChannel(ctx, strings.TrimSpace(ref.ChannelID))
	default:
		return nil, apperrors.NewValidationError("A ticket id or channel id is required.", nil)
	}
	if err != nil {
		return nil, err
	}
	if communityID != "" && ticket.CommunityID != communityID {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	return ticket, nil
}

func (r *Router) find(ctx context.Context, in Intent) (*domain.Ticket, error) {
	var ref TicketRef
	if err := decode(in.Payload, &ref); err != nil {
		return nil, err
	}
	return r.resolve(ctx, in.CommunityID, ref)
}

func (r *Router) openCount(ctx context.Context, in Intent) (*OpenCount, error) {
	var p OpenCountPayload
	if err := decode(in.Payload, &p); err != nil {
		return nil, err
	}
	userID := strings.TrimSpace(p.UserID)
	if userID == "" {
		userID = in.Actor.ID
	}
	n, err := r.tickets.CountOpenByUser(ctx, in.CommunityID, userID)
	if err != nil {
		return nil, err
	}
	return &OpenCount{UserID: userID, Open: n, Max: r.tickets.MaxOpenPerUser()}, nil
}

func (r *Router) updateConfig(ctx context.Context, in Intent) (*domain.CommunityConfig, error) {
	var p ConfigPayload
	if err := decode(in.Payload, &p); err != nil {
		return nil, err
	}
	return r.configs.Update(ctx, in.CommunityID, in.Actor, p.Patch())
}

// scopedToCommunity reports whether the action cannot run without a community id.
func scopedToCommunity(a Action) bool {
	switch a {
	case ActionTicketCreate, ActionTicketOpenCount, ActionConfigView, ActionConfigUpdate:
		return true
	default:
		return false
	}
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperrors.NewValidationError("Invalid payload.", map[string]any{"error": err.Error()})
	}
	return nil
}
