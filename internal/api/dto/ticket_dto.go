package dto

import (
	"encoding/json"
	"time"

	"github.com/unityvault/ticketflow/internal/command"
	"github.com/unityvault/ticketflow/internal/domain"
)

// CommandRequest is the generic intent envelope.
type CommandRequest struct {
	Action      string          `json:"action"`
	CommunityID string          `json:"community_id"`
	Payload     json.RawMessage `json:"payload"`
}

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Type        string `json:"type"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

// TranscriptRequest attaches a transcript location to a closed ticket.
type TranscriptRequest struct {
	URL string `json:"url"`
}

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	ID            string              `json:"id"`
	CommunityID   string              `json:"community_id"`
	ChannelID     string              `json:"channel_id"`
	OpenerID      string              `json:"opener_id"`
	Number        uint64              `json:"number"`
	Type          domain.TicketType   `json:"type"`
	Subject       string              `json:"subject"`
	Description   string              `json:"description"`
	Status        domain.TicketStatus `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	EscalatedAt   *time.Time          `json:"escalated_at,omitempty"`
	ClosedAt      *time.Time          `json:"closed_at,omitempty"`
	ClosedBy      *string             `json:"closed_by,omitempty"`
	TranscriptURL *string             `json:"transcript_url,omitempty"`
}

// ConfigResponse is the public view of community settings.
type ConfigResponse struct {
	CommunityID       string    `json:"community_id"`
	LogChannel        *string   `json:"log_channel"`
	TicketCategory    *string   `json:"ticket_category"`
	SupportRoles      []string  `json:"support_roles"`
	OnboardingChannel *string   `json:"onboarding_channel"`
	TicketCounter     uint64    `json:"ticket_counter"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// OpenCountResponse reports a user's open tickets against the quota.
type OpenCountResponse struct {
	UserID string `json:"user_id"`
	Open   int    `json:"open"`
	Max    int    `json:"max"`
}

// TicketFromDomain maps the aggregate to its response.
func TicketFromDomain(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:            t.ID,
		CommunityID:   t.CommunityID,
		ChannelID:     t.ChannelID,
		OpenerID:      t.OpenerID,
		Number:        t.Number,
		Type:          t.Type,
		Subject:       t.Subject,
		Description:   t.Description,
		Status:        t.Status,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		EscalatedAt:   t.EscalatedAt,
		ClosedAt:      t.ClosedAt,
		ClosedBy:      t.ClosedBy,
		TranscriptURL: t.TranscriptURL,
	}
}

// ConfigFromDomain maps community settings to their response.
func ConfigFromDomain(c *domain.CommunityConfig) ConfigResponse {
	roles := c.SupportRoles
	if roles == nil {
		roles = []string{}
	}
	return ConfigResponse{
		CommunityID:       c.ID,
		LogChannel:        c.LogChannel,
		TicketCategory:    c.TicketCategory,
		SupportRoles:      roles,
		OnboardingChannel: c.OnboardingChannel,
		TicketCounter:     c.TicketCounter,
		UpdatedAt:         c.UpdatedAt,
	}
}

// ResultData picks the populated part of a router result.
func ResultData(res *command.Result) any {
	switch {
	case res.Ticket != nil:
		return TicketFromDomain(res.Ticket)
	case res.Config != nil:
		return ConfigFromDomain(res.Config)
	case res.OpenCount != nil:
		return OpenCountResponse{UserID: res.OpenCount.UserID, Open: res.OpenCount.Open, Max: res.OpenCount.Max}
	default:
		return nil
	}
}
