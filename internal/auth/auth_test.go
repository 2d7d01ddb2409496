package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unityvault/ticketflow/internal/domain"
	apperrors "github.com/unityvault/ticketflow/pkg/errorutil"
)

type stubConfigs struct {
	cfg   *domain.CommunityConfig
	err   error
	calls int
}

func (s *stubConfigs) GetOrCreate(_ context.Context, communityID string) (*domain.CommunityConfig, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	cfg := *s.cfg
	cfg.ID = communityID
	return &cfg, nil
}

func TestGateAdministratorBundle(t *testing.T) {
	configs := &stubConfigs{cfg: &domain.CommunityConfig{}}
	gate := NewPermissionGate(configs)

	ok, err := gate.HasTicketCapability(context.Background(), domain.Actor{ID: "a", Permissions: domain.AdministrativeBundle}, "g1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, configs.calls, "administrators skip the config read")

	partial := domain.AdministrativeBundle &^ domain.PermissionModerateMembers
	ok, err = gate.HasTicketCapability(context.Background(), domain.Actor{ID: "a", Permissions: partial}, "g1")
	require.NoError(t, err)
	assert.False(t, ok, "the whole bundle is required")
}

func TestGateSupportRoles(t *testing.T) {
	configs := &stubConfigs{cfg: &domain.CommunityConfig{SupportRoles: []string{"helpers", "mods"}}}
	gate := NewPermissionGate(configs)
	ctx := context.Background()

	ok, err := gate.HasTicketCapability(ctx, domain.Actor{ID: "s", RoleIDs: []string{"members", "mods"}}, "g1")
	require.NoError(t, err)
	assert.True(t, ok)

	err = gate.RequireTicketCapability(ctx, domain.Actor{ID: "u", RoleIDs: []string{"members"}}, "g1")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	err = gate.RequireTicketCapability(ctx, domain.Actor{ID: "u"}, "g1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestGateStorageFailure(t *testing.T) {
	gate := NewPermissionGate(&stubConfigs{err: errors.New("timeout")})
	_, err := gate.HasTicketCapability(context.Background(), domain.Actor{ID: "u", RoleIDs: []string{"mods"}}, "g1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeStorageUnavailable))

	gate = NewPermissionGate(nil)
	_, err = gate.HasTicketCapability(context.Background(), domain.Actor{ID: "u", RoleIDs: []string{"mods"}}, "g1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeStorageUnavailable))
}

func TestParsePermissions(t *testing.T) {
	perms, err := ParsePermissions([]string{"admin"})
	require.NoError(t, err)
	assert.Equal(t, domain.AdministrativeBundle, perms)

	perms, err = ParsePermissions([]string{"Manage_Channels", " view_channel", ""})
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionManageChannels|domain.PermissionViewChannel, perms)
	assert.Equal(t, []string{"manage_channels", "view_channel"}, PermissionNames(perms))

	_, err = ParsePermissions([]string{"ban_everyone"})
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	actor := domain.Actor{ID: "u1", RoleIDs: []string{"mods"}, Permissions: domain.PermissionViewChannel}

	token, expiresAt, err := tm.GenerateToken(actor)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor, claims.Actor())

	_, err = NewTokenManager("other", 5).ParseToken(token)
	assert.Error(t, err)

	_, _, err = tm.GenerateToken(domain.Actor{})
	assert.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	issued := time.Now().Add(-2 * time.Minute)
	tm.now = func() time.Time { return issued }
	token, _, err := tm.GenerateToken(domain.Actor{ID: "u1"})
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.ParseToken(token)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	app.Get("/me", NewAuthMiddleware(tm).Handle, func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.SendString(actor.ID)
	})

	token, _, err := tm.GenerateToken(domain.Actor{ID: "u1"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
