package service

import (
	"context"
	"fmt"

	"github.com/unityvault/ticketflow/internal/domain"
)

// ChannelRequest describes the channel a new ticket needs.
type ChannelRequest struct {
	CommunityID  string
	OpenerID     string
	Number       uint64
	Type         domain.TicketType
	Category     string
	SupportRoles []string
}

// ChannelProvisioner allocates the channel that hosts a ticket. It is called
// inside the creation transaction; returning an error aborts the creation and
// releases the allocated number.
type ChannelProvisioner interface {
	ProvisionChannel(ctx context.Context, req ChannelRequest) (string, error)
}

// DefaultChannelFormat yields ids like "g1:ticket-0007".
const DefaultChannelFormat = "%s:ticket-%04d"

// FormatProvisioner derives channel ids from the community and ticket number.
// Platform adapters create the real channel when they see ticket_created.
type FormatProvisioner struct {
	Format string
}

func (p FormatProvisioner) ProvisionChannel(_ context.Context, req ChannelRequest) (string, error) {
	format := p.Format
	if format == "" {
		format = DefaultChannelFormat
	}
	return fmt.Sprintf(format, req.CommunityID, req.Number), nil
}
