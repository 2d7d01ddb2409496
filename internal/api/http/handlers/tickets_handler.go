package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/unityvault/ticketflow/internal/api/dto"
	"github.com/unityvault/ticketflow/internal/auth"
	"github.com/unityvault/ticketflow/internal/command"
	apperrors "github.com/unityvault/ticketflow/pkg/errorutil"
)

// TicketsHandler exposes ticket workflow endpoints.
type TicketsHandler struct {
	router *command.Router
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(router *command.Router) *TicketsHandler {
	return &TicketsHandler{router: router}
}

// CreateTicket POST /v1/communities/:community/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return respond(c, h.router, fiber.StatusCreated, command.ActionTicketCreate, c.Params("community"), req)
}

// CloseTicket POST /v1/tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	return respond(c, h.router, fiber.StatusOK, command.ActionTicketClose, "", command.TicketRef{TicketID: c.Params("id")})
}

// EscalateTicket POST /v1/tickets/:id/escalate.
func (h *TicketsHandler) EscalateTicket(c *fiber.Ctx) error {
	return respond(c, h.router, fiber.StatusOK, command.ActionTicketEscalate, "", command.TicketRef{TicketID: c.Params("id")})
}

// FindByChannel GET /v1/channels/:channel/ticket.
func (h *TicketsHandler) FindByChannel(c *fiber.Ctx) error {
	return respond(c, h.router, fiber.StatusOK, command.ActionTicketFind, "", command.TicketRef{ChannelID: c.Params("channel")})
}

// OpenCount GET /v1/communities/:community/users/:user/open-tickets.
func (h *TicketsHandler) OpenCount(c *fiber.Ctx) error {
	return respond(c, h.router, fiber.StatusOK, command.ActionTicketOpenCount, c.Params("community"), command.OpenCountPayload{UserID: c.Params("user")})
}

// respond dispatches an intent for the authenticated actor and writes the result.
func respond(c *fiber.Ctx, router *command.Router, status int, action command.Action, communityID string, payload any) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	res, err := router.Dispatch(c.UserContext(), command.Intent{
		Action:      action,
		Actor:       actor,
		CommunityID: communityID,
		Payload:     raw,
	})
	if err != nil {
		return err
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.ResultData(res)})
}
