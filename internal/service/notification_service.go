package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unityvault/ticketflow/internal/config"
	"github.com/unityvault/ticketflow/internal/events"
	"github.com/unityvault/ticketflow/internal/observability"
)

// NotificationService subscribes the built-in sinks to lifecycle events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	redis      redis.UniversalClient
	cfg        config.NotificationConfig
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	// Redis is optional; events are published only when it is set and
	// Config.PublishRedis is true.
	Redis  redis.UniversalClient
	Config config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		redis:      deps.Redis,
		cfg:        deps.Config,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.EventTypes {
		n.dispatcher.Subscribe(eventType, n.logEvent)
		if n.redis != nil && n.cfg.PublishRedis {
			n.dispatcher.Subscribe(eventType, n.publishRedis)
		}
	}
}

// ChannelFor returns the pub/sub channel carrying a community's events.
func (n *NotificationService) ChannelFor(communityID string) string {
	prefix := n.cfg.ChannelPrefix
	if prefix == "" {
		prefix = "ticketflow:events"
	}
	return fmt.Sprintf("%s:%s", prefix, communityID)
}

func (n *NotificationService) logEvent(_ context.Context, event events.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("community_id", event.CommunityID),
		zap.String("ticket_id", event.TicketID),
		zap.String("channel_id", event.ChannelID),
		zap.String("actor_id", event.ActorID),
		zap.String("ticket_type", string(event.TicketType)),
		zap.Uint64("number", event.Number),
		zap.Uint64("community_counter", event.CommunityCounter),
	}
	if event.LogChannel != nil {
		fields = append(fields, zap.String("log_channel", *event.LogChannel))
	}
	n.logger.Info("ticket event", fields...)
	n.metrics.RecordNotification("log", nil)
	return nil
}

func (n *NotificationService) publishRedis(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err == nil {
		err = n.redis.Publish(ctx, n.ChannelFor(event.CommunityID), payload).Err()
	}
	n.metrics.RecordNotification("redis", err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}
