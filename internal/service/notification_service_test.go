package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unityvault/ticketflow/internal/config"
	"github.com/unityvault/ticketflow/internal/domain"
	"github.com/unityvault/ticketflow/internal/events"
)

func TestNotificationServiceLogsEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(NotificationDependencies{
		Dispatcher: dispatcher,
		Logger:     zap.New(core),
	}).RegisterHandlers()

	logChannel := "logs"
	err := dispatcher.Publish(context.Background(), events.Event{
		ID:          "e1",
		Type:        events.EventTicketEscalated,
		CommunityID: "g1",
		TicketID:    "t1",
		Number:      3,
		LogChannel:  &logChannel,
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("ticket event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ticket_escalated", fields["event_type"])
	assert.Equal(t, uint64(3), fields["number"])
	assert.Equal(t, "logs", fields["log_channel"])
}

func TestNotificationServicePublishesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	dispatcher := events.NewInMemoryDispatcher()
	svc := NewNotificationService(NotificationDependencies{
		Dispatcher: dispatcher,
		Redis:      client,
		Config:     config.NotificationConfig{ChannelPrefix: "tf", PublishRedis: true},
	})
	svc.RegisterHandlers()
	assert.Equal(t, "tf:g1", svc.ChannelFor("g1"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub := client.Subscribe(ctx, svc.ChannelFor("g1"))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, dispatcher.Publish(ctx, events.Event{
		ID:          "e1",
		Type:        events.EventTicketCreated,
		CommunityID: "g1",
		TicketID:    "t1",
		TicketType:  domain.TicketTypeReport,
		Number:      1,
	}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got events.Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, events.EventTicketCreated, got.Type)
	assert.Equal(t, "t1", got.TicketID)
	assert.Equal(t, domain.TicketTypeReport, got.TicketType)
}

func TestNotificationServiceRedisFailureSurfacesToDispatcher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(NotificationDependencies{
		Dispatcher: dispatcher,
		Redis:      client,
		Config:     config.NotificationConfig{PublishRedis: true},
	}).RegisterHandlers()

	mr.Close()
	err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventTicketClosed, CommunityID: "g1"})
	assert.Error(t, err)
}
