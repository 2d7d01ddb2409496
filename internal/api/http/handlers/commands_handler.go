package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/unityvault/ticketflow/internal/api/dto"
	"github.com/unityvault/ticketflow/internal/auth"
	"github.com/unityvault/ticketflow/internal/command"
	apperrors "github.com/unityvault/ticketflow/pkg/errorutil"
)

// CommandsHandler accepts generic intents from platform adapters.
type CommandsHandler struct {
	router *command.Router
}

// NewCommandsHandler constructs handler.
func NewCommandsHandler(router *command.Router) *CommandsHandler {
	return &CommandsHandler{router: router}
}

// Dispatch POST /v1/commands.
func (h *CommandsHandler) Dispatch(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	var req dto.CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	action, err := command.ParseAction(req.Action)
	if err != nil {
		return err
	}
	res, err := h.router.Dispatch(c.UserContext(), command.Intent{
		Action:      action,
		Actor:       actor,
		CommunityID: req.CommunityID,
		Payload:     req.Payload,
	})
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if action == command.ActionTicketCreate {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"action": action, "data": dto.ResultData(res)})
}
