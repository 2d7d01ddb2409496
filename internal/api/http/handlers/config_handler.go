package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/unityvault/ticketflow/internal/command"
	apperrors "github.com/unityvault/ticketflow/pkg/errorutil"
)

// ConfigHandler exposes community settings.
type ConfigHandler struct {
	router *command.Router
}

// NewConfigHandler constructs handler.
func NewConfigHandler(router *command.Router) *ConfigHandler {
	return &ConfigHandler{router: router}
}

// GetConfig GET /v1/communities/:community/config.
func (h *ConfigHandler) GetConfig(c *fiber.Ctx) error {
	return respond(c, h.router, fiber.StatusOK, command.ActionConfigView, c.Params("community"), nil)
}

// UpdateConfig PATCH /v1/communities/:community/config.
func (h *ConfigHandler) UpdateConfig(c *fiber.Ctx) error {
	var req command.ConfigPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return respond(c, h.router, fiber.StatusOK, command.ActionConfigUpdate, c.Params("community"), req)
}
