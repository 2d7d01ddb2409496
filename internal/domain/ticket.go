package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen      TicketStatus = "Open"
	TicketStatusReopened  TicketStatus = "Reopened"
	TicketStatusEscalated TicketStatus = "Escalated"
	TicketStatusClosed    TicketStatus = "Closed"
)

// OpenStatuses are the states counted against a user's open-ticket quota.
var OpenStatuses = []TicketStatus{TicketStatusOpen, TicketStatusReopened, TicketStatusEscalated}

// IsOpen reports whether the status counts toward the open-ticket quota.
func (s TicketStatus) IsOpen() bool {
	switch s {
	case TicketStatusOpen, TicketStatusReopened, TicketStatusEscalated:
		return true
	default:
		return false
	}
}

// TicketType classifies what the opener is asking for.
type TicketType string

const (
	TicketTypeSupport     TicketType = "support"
	TicketTypeReport      TicketType = "report"
	TicketTypePartnership TicketType = "partnership"
	TicketTypeSuggestion  TicketType = "suggestion"
)

// TicketTypes lists every accepted ticket type.
var TicketTypes = []TicketType{TicketTypeSupport, TicketTypeReport, TicketTypePartnership, TicketTypeSuggestion}

// ParseTicketType normalizes and validates a ticket type.
func ParseTicketType(raw string) (TicketType, bool) {
	t := TicketType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range TicketTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// Ticket is the aggregate for a per-user support request hosted in one channel.
type Ticket struct {
	ID            string
	CommunityID   string
	ChannelID     string
	OpenerID      string
	Number        uint64
	Type          TicketType
	Subject       string
	Description   string
	Status        TicketStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
	EscalatedAt   *time.Time
	ClosedAt      *time.Time
	ClosedBy      *string
	TranscriptURL *string
}
