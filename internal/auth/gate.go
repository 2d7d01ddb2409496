package auth

import (
	"context"
	"errors"

	"github.com/unityvault/ticketflow/internal/domain"
	apperrors "github.com/unityvault/ticketflow/pkg/errorutil"
)

var errNoConfigSource = errors.New("config repository not configured")

// ConfigSource loads community settings.
type ConfigSource interface {
	GetOrCreate(ctx context.Context, communityID string) (*domain.CommunityConfig, error)
}

// PermissionGate decides whether an actor may perform privileged ticket operations.
type PermissionGate struct {
	configs ConfigSource
}

// NewPermissionGate builds a gate reading support roles from configs.
func NewPermissionGate(configs ConfigSource) *PermissionGate {
	return &PermissionGate{configs: configs}
}

// HasTicketCapability reports whether actor holds the administrative bundle or
// one of the community's configured support roles. Support roles are re-read on
// every call.
func (g *PermissionGate) HasTicketCapability(ctx context.Context, actor domain.Actor, communityID string) (bool, error) {
	if actor.IsAdministrator() {
		return true, nil
	}
	if len(actor.RoleIDs) == 0 {
		return false, nil
	}
	if g.configs == nil {
		return false, apperrors.NewStorageError(errNoConfigSource)
	}
	cfg, err := g.configs.GetOrCreate(ctx, communityID)
	if err != nil {
		return false, apperrors.NewStorageError(err)
	}
	return cfg.HasSupportRole(actor.RoleIDs), nil
}

// RequireTicketCapability returns a FORBIDDEN error unless the actor holds the capability.
func (g *PermissionGate) RequireTicketCapability(ctx context.Context, actor domain.Actor, communityID string) error {
	ok, err := g.HasTicketCapability(ctx, actor, communityID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewPermissionError("You do not have permission to manage tickets.")
	}
	return nil
}
