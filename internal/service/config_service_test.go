package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unityvault/ticketflow/internal/domain"
	apperrors "github.com/unityvault/ticketflow/pkg/errorutil"
)

func strPtr(s string) *string { return &s }

func TestConfigGetRequiresCapability(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.configs.Get(ctx, "g1", domain.Actor{ID: "u1"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	cfg, err := h.configs.Get(ctx, "g1", staff)
	require.NoError(t, err)
	assert.Equal(t, "g1", cfg.ID)
	assert.Zero(t, cfg.TicketCounter)
	assert.Nil(t, cfg.LogChannel)
}

func TestConfigUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	roles := []string{" mods ", "helpers", "mods"}
	cfg, err := h.configs.Update(ctx, "g1", staff, domain.ConfigPatch{
		LogChannel:   strPtr(" logs "),
		SupportRoles: &roles,
	})
	require.NoError(t, err)
	require.NotNil(t, cfg.LogChannel)
	assert.Equal(t, "logs", *cfg.LogChannel)
	assert.Equal(t, []string{"helpers", "mods"}, cfg.SupportRoles)

	cfg, err = h.configs.Update(ctx, "g1", domain.Actor{ID: "u9", RoleIDs: []string{"mods"}}, domain.ConfigPatch{
		TicketCategory: strPtr("cat-1"),
	})
	require.NoError(t, err, "support roles grant the capability")
	assert.Equal(t, "cat-1", *cfg.TicketCategory)
	assert.Equal(t, "logs", *cfg.LogChannel, "untouched fields survive")

	cfg, err = h.configs.Update(ctx, "g1", staff, domain.ConfigPatch{LogChannel: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, cfg.LogChannel, "empty string clears")
}

func TestConfigUpdateRejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.configs.Update(ctx, "g1", staff, domain.ConfigPatch{})
	require.Error(t, err)
	assert.Equal(t, "Nothing to update.", apperrors.ToDomainError(err).Message)

	roles := make([]string, MaxSupportRoles+1)
	for i := range roles {
		roles[i] = fmt.Sprintf("role-%d", i)
	}
	_, err = h.configs.Update(ctx, "g1", staff, domain.ConfigPatch{SupportRoles: &roles})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = h.configs.Update(ctx, "g1", domain.Actor{ID: "u1", RoleIDs: []string{"members"}}, domain.ConfigPatch{LogChannel: strPtr("x")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestOnboardingChannel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	channel, err := h.configs.OnboardingChannel(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "welcome", channel)

	_, err = h.configs.Update(ctx, "g1", staff, domain.ConfigPatch{OnboardingChannel: strPtr("start-here")})
	require.NoError(t, err)
	channel, err = h.configs.OnboardingChannel(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "start-here", channel)

	bare := NewConfigService(ConfigDependencies{ConfigRepo: h.store.Configs()})
	_, err = bare.OnboardingChannel(ctx, "g2")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
