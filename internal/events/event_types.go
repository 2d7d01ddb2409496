package events

import (
	"time"

	"github.com/unityvault/ticketflow/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventTicketClosed    EventType = "ticket_closed"
	EventTicketEscalated EventType = "ticket_escalated"
)

// EventTypes lists every lifecycle event.
var EventTypes = []EventType{EventTicketCreated, EventTicketClosed, EventTicketEscalated}

// Event is a ticket state change delivered to notification sinks.
type Event struct {
	ID          string            `json:"id"`
	Type        EventType         `json:"type"`
	CommunityID string            `json:"community_id"`
	TicketID    string            `json:"ticket_id"`
	ChannelID   string            `json:"channel_id"`
	ActorID     string            `json:"actor_id"`
	TicketType  domain.TicketType `json:"ticket_type"`
	// Number is the ticket's own number.
	Number uint64 `json:"number"`
	// CommunityCounter is the community's running counter when the event fired.
	CommunityCounter uint64    `json:"community_counter"`
	LogChannel       *string   `json:"log_channel,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}
