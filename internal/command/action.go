// Package command routes validated user intents to the ticket workflow.
package command

import (
	"fmt"
	"strings"

	apperrors "github.com/unityvault/ticketflow/pkg/errorutil"
)

// Action is one of the operations an intent can request.
type Action string

const (
	ActionTicketCreate    Action = "ticket.create"
	ActionTicketClose     Action = "ticket.close"
	ActionTicketEscalate  Action = "ticket.escalate"
	ActionTicketFind      Action = "ticket.find"
	ActionTicketOpenCount Action = "ticket.open_count"
	ActionConfigView      Action = "config.view"
	ActionConfigUpdate    Action = "config.update"
)

// Actions lists every routable action.
var Actions = []Action{
	ActionTicketCreate,
	ActionTicketClose,
	ActionTicketEscalate,
	ActionTicketFind,
	ActionTicketOpenCount,
	ActionConfigView,
	ActionConfigUpdate,
}

// ParseAction validates an action tag.
func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Actions {
		if a == known {
			return a, nil
		}
	}
	return "", apperrors.NewValidationError(fmt.Sprintf("Unknown action %q.", raw), map[string]any{"allowed": Actions})
}
