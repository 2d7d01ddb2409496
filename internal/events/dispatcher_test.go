package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherDeliversToSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got []string
	d.Subscribe(EventTicketCreated, func(_ context.Context, e Event) error {
		got = append(got, "first:"+e.TicketID)
		return nil
	})
	d.Subscribe(EventTicketCreated, func(_ context.Context, e Event) error {
		got = append(got, "second:"+e.TicketID)
		return nil
	})
	d.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		t.Fatal("unrelated subscriber called")
		return nil
	})

	require.NoError(t, d.Notify(context.Background(), Event{Type: EventTicketCreated, TicketID: "t1"}))
	assert.Equal(t, []string{"first:t1", "second:t1"}, got)
}

func TestDispatcherJoinsHandlerErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")
	called := false
	d.Subscribe(EventTicketEscalated, func(context.Context, Event) error { return boom })
	d.Subscribe(EventTicketEscalated, func(context.Context, Event) error {
		called = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketEscalated})
	assert.ErrorIs(t, err, boom)
	assert.True(t, called, "later handlers still run")
}

func TestSinkFunc(t *testing.T) {
	var seen EventType
	var sink Sink = SinkFunc(func(_ context.Context, e Event) error {
		seen = e.Type
		return nil
	})
	require.NoError(t, sink.Notify(context.Background(), Event{Type: EventTicketClosed}))
	assert.Equal(t, EventTicketClosed, seen)
}
