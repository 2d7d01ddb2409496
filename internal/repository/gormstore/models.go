package gormstore

import (
	"time"

	"github.com/unityvault/ticketflow/internal/domain"
)

type communityConfigModel struct {
	CommunityID       string `gorm:"column:community_id;primaryKey"`
	LogChannel        *string
	TicketCategory    *string
	SupportRoles      string `gorm:"not null;default:''"`
	OnboardingChannel *string
	TicketCounter     uint64    `gorm:"not null;default:0"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime:false"`
}

func (communityConfigModel) TableName() string { return "community_config" }

func (m *communityConfigModel) toDomain() *domain.CommunityConfig {
	return &domain.CommunityConfig{
		ID:                m.CommunityID,
		LogChannel:        m.LogChannel,
		TicketCategory:    m.TicketCategory,
		SupportRoles:      domain.SplitRoles(m.SupportRoles),
		OnboardingChannel: m.OnboardingChannel,
		TicketCounter:     m.TicketCounter,
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}

type ticketModel struct {
	ID            string     `gorm:"primaryKey"`
	CommunityID   string     `gorm:"not null;uniqueIndex:ticket_community_number_unique,priority:1;index:ticket_open_by_opener_idx,priority:1"`
	ChannelID     string     `gorm:"not null;uniqueIndex:ticket_channel_unique"`
	OpenerID      string     `gorm:"not null;index:ticket_open_by_opener_idx,priority:2"`
	Number        uint64     `gorm:"not null;uniqueIndex:ticket_community_number_unique,priority:2"`
	Type          string     `gorm:"not null"`
	Subject       string     `gorm:"not null"`
	Description   string     `gorm:"not null"`
	Status        string     `gorm:"not null;index:ticket_open_by_opener_idx,priority:3"`
	CreatedAt     time.Time  `gorm:"autoCreateTime:false"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime:false"`
	EscalatedAt   *time.Time
	ClosedAt      *time.Time
	ClosedBy      *string
	TranscriptURL *string `gorm:"column:transcript_url"`
}

func (ticketModel) TableName() string { return "ticket" }

func (m *ticketModel) toDomain() *domain.Ticket {
	return &domain.Ticket{
		ID:            m.ID,
		CommunityID:   m.CommunityID,
		ChannelID:     m.ChannelID,
		OpenerID:      m.OpenerID,
		Number:        m.Number,
		Type:          domain.TicketType(m.Type),
		Subject:       m.Subject,
		Description:   m.Description,
		Status:        domain.TicketStatus(m.Status),
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
		EscalatedAt:   utcPtr(m.EscalatedAt),
		ClosedAt:      utcPtr(m.ClosedAt),
		ClosedBy:      m.ClosedBy,
		TranscriptURL: m.TranscriptURL,
	}
}

type rateLimitEntryModel struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Count     uint32    `gorm:"not null"`
	WindowEnd time.Time `gorm:"not null;index"`
}

func (rateLimitEntryModel) TableName() string { return "rate_limit_entry" }

func (m *rateLimitEntryModel) toDomain() *domain.RateLimitEntry {
	return &domain.RateLimitEntry{Key: m.Key, Count: m.Count, WindowEnd: m.WindowEnd.UTC()}
}

// models lists every table the store migrates.
var models = []any{
	&communityConfigModel{},
	&ticketModel{},
	&rateLimitEntryModel{},
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
