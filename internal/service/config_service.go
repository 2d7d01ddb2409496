package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/unityvault/ticketflow/internal/auth"
	"github.com/unityvault/ticketflow/internal/config"
	"github.com/unityvault/ticketflow/internal/domain"
	"github.com/unityvault/ticketflow/internal/observability"
	"github.com/unityvault/ticketflow/internal/repository"
	apperrors "github.com/unityvault/ticketflow/pkg/errorutil"
)

// MaxSupportRoles caps the configured support role set.
const MaxSupportRoles = 25

// ConfigService manages per-community settings.
type ConfigService struct {
	configs repository.ConfigRepository
	gate    *auth.PermissionGate
	cfg     config.TicketsConfig
	now     func() time.Time
	instrumentation
}

// ConfigDependencies bundles collaborators for the config service.
type ConfigDependencies struct {
	ConfigRepo       repository.ConfigRepository
	Gate             *auth.PermissionGate
	Config           config.TicketsConfig
	OperationTimeout time.Duration
	Clock            func() time.Time
	Logger           *zap.Logger
	Metrics          *observability.Metrics
}

// NewConfigService constructs the service.
func NewConfigService(deps ConfigDependencies) *ConfigService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	gate := deps.Gate
	if gate == nil {
		gate = auth.NewPermissionGate(deps.ConfigRepo)
	}
	return &ConfigService{
		configs: deps.ConfigRepo,
		gate:    gate,
		cfg:     deps.Config,
		now:     now,
		instrumentation: instrumentation{
			logger:  logger,
			metrics: deps.Metrics,
			timeout: deps.OperationTimeout,
		},
	}
}

// Get returns the community settings. Requires the ticket capability.
func (s *ConfigService) Get(ctx context.Context, communityID string, actor domain.Actor) (*domain.CommunityConfig, error) {
	var out *domain.CommunityConfig
	err := s.run(ctx, "config.view", configAttrs(communityID, actor), func(ctx context.Context) error {
		if err := s.gate.RequireTicketCapability(ctx, actor, communityID); err != nil {
			return err
		}
		cfg, err := s.read(ctx, communityID)
		if err != nil {
			return err
		}
		out = cfg
		return nil
	})
	return out, err
}

// Update applies patch. Requires the ticket capability. Empty strings clear a field.
func (s *ConfigService) Update(ctx context.Context, communityID string, actor domain.Actor, patch domain.ConfigPatch) (*domain.CommunityConfig, error) {
	patch = normalizePatch(patch)
	if patch.Empty() {
		return nil, apperrors.NewValidationError("Nothing to update.", nil)
	}
	if patch.SupportRoles != nil && len(*patch.SupportRoles) > MaxSupportRoles {
		return nil, apperrors.NewValidationError("Too many support roles.", map[string]any{"max": MaxSupportRoles})
	}

	var out *domain.CommunityConfig
	err := s.run(ctx, "config.update", configAttrs(communityID, actor), func(ctx context.Context) error {
		if err := s.gate.RequireTicketCapability(ctx, actor, communityID); err != nil {
			return err
		}
		if s.configs == nil {
			return apperrors.NewStorageError(repository.ErrNoHandle)
		}
		cfg, err := s.configs.Update(ctx, communityID, patch, s.now().UTC())
		if err != nil {
			return mapStoreError(err, "community config")
		}
		out = cfg
		return nil
	})
	if err == nil {
		s.logger.Info("community config updated",
			zap.String("community_id", communityID),
			zap.String("actor_id", actor.ID),
		)
	}
	return out, err
}

// OnboardingChannel resolves the onboarding channel, falling back to the
// process-wide default. No capability is needed.
func (s *ConfigService) OnboardingChannel(ctx context.Context, communityID string) (string, error) {
	var channel string
	err := s.run(ctx, "config.onboarding_channel", []attribute.KeyValue{attribute.String("community_id", communityID)}, func(ctx context.Context) error {
		cfg, err := s.read(ctx, communityID)
		if err != nil {
			return err
		}
		if cfg.OnboardingChannel != nil && *cfg.OnboardingChannel != "" {
			channel = *cfg.OnboardingChannel
			return nil
		}
		if s.cfg.DefaultOnboardingChannel != "" {
			channel = s.cfg.DefaultOnboardingChannel
			return nil
		}
		return apperrors.NewNotFound("onboarding channel", map[string]any{"community_id": communityID})
	})
	return channel, err
}

func (s *ConfigService) read(ctx context.Context, communityID string) (*domain.CommunityConfig, error) {
	if s.configs == nil {
		return nil, apperrors.NewStorageError(repository.ErrNoHandle)
	}
	cfg, err := s.configs.GetOrCreate(ctx, communityID)
	if err != nil {
		return nil, mapStoreError(err, "community config")
	}
	return cfg, nil
}

func normalizePatch(p domain.ConfigPatch) domain.ConfigPatch {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}
	p.LogChannel = trim(p.LogChannel)
	p.TicketCategory = trim(p.TicketCategory)
	p.OnboardingChannel = trim(p.OnboardingChannel)
	if p.SupportRoles != nil {
		roles := domain.NormalizeRoles(*p.SupportRoles)
		p.SupportRoles = &roles
	}
	return p
}

func configAttrs(communityID string, actor domain.Actor) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("community_id", communityID),
		attribute.String("actor_id", actor.ID),
	}
}
