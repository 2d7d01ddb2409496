package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/unityvault/ticketflow/internal/api/dto"
	"github.com/unityvault/ticketflow/internal/auth"
	"github.com/unityvault/ticketflow/internal/service"
	apperrors "github.com/unityvault/ticketflow/pkg/errorutil"
)

// WorkflowHandler serves adapter calls that are not user commands and so skip
// the command router's throttling.
type WorkflowHandler struct {
	tickets *service.TicketService
	configs *service.ConfigService
}

// NewWorkflowHandler constructs handler.
func NewWorkflowHandler(tickets *service.TicketService, configs *service.ConfigService) *WorkflowHandler {
	return &WorkflowHandler{tickets: tickets, configs: configs}
}

// AttachTranscript POST /v1/tickets/:id/transcript.
func (h *WorkflowHandler) AttachTranscript(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	var req dto.TranscriptRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.AttachTranscript(c.UserContext(), c.Params("id"), actor, req.URL)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}

// OnboardingChannel GET /v1/communities/:community/onboarding-channel.
func (h *WorkflowHandler) OnboardingChannel(c *fiber.Ctx) error {
	channel, err := h.configs.OnboardingChannel(c.UserContext(), c.Params("community"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"community_id": c.Params("community"), "channel_id": channel}})
}
