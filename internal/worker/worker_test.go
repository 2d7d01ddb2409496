package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/unityvault/ticketflow/internal/events"
	"github.com/unityvault/ticketflow/internal/observability"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
	fail   bool
	block  chan struct{}
}

func (s *recordingSink) Notify(_ context.Context, e events.Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestNotificationWorkerDeliversAndDrains(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &recordingSink{}
	w := NewNotificationWorker(sink, 16, nil, observability.NewMetrics(prometheus.NewRegistry()))
	w.Start()

	for i := 0; i < 10; i++ {
		require.NoError(t, w.Notify(context.Background(), events.Event{Type: events.EventTicketCreated}))
	}
	require.NoError(t, w.Stop(context.Background()))
	assert.Equal(t, 10, sink.count())

	assert.ErrorIs(t, w.Notify(context.Background(), events.Event{}), ErrStopped)
	require.NoError(t, w.Stop(context.Background()), "stop is idempotent")
}

func TestNotificationWorkerQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &recordingSink{block: make(chan struct{})}
	w := NewNotificationWorker(sink, 1, nil, nil)
	w.Start()

	// one event in flight, one queued, the next is rejected
	require.NoError(t, w.Notify(context.Background(), events.Event{}))
	assert.Eventually(t, func() bool {
		return w.Notify(context.Background(), events.Event{}) == nil
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, w.Notify(context.Background(), events.Event{}), ErrQueueFull)

	close(sink.block)
	require.NoError(t, w.Stop(context.Background()))
	assert.Equal(t, 2, sink.count())
}

func TestNotificationWorkerSinkFailureDoesNotStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &recordingSink{fail: true}
	w := NewNotificationWorker(sink, 4, nil, nil)
	w.Start()
	require.NoError(t, w.Notify(context.Background(), events.Event{}))
	require.NoError(t, w.Notify(context.Background(), events.Event{}))
	require.NoError(t, w.Stop(context.Background()))
	assert.Equal(t, 2, sink.count())
}

func TestNotificationWorkerStopWithoutStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &recordingSink{}
	w := NewNotificationWorker(sink, 4, nil, nil)
	require.NoError(t, w.Notify(context.Background(), events.Event{}))
	require.NoError(t, w.Stop(context.Background()))
	assert.Equal(t, 1, sink.count())
}

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpired(context.Context, time.Time) (int64, error) {
	p.calls.Add(1)
	return 3, p.err
}

func TestRateLimitJanitor(t *testing.T) {
	defer goleak.VerifyNone(t)

	purger := &countingPurger{}
	j := NewRateLimitJanitor(purger, 5*time.Millisecond, nil)
	j.Start(context.Background())
	j.Start(context.Background())

	assert.Eventually(t, func() bool { return purger.calls.Load() >= 2 }, time.Second, time.Millisecond)
	j.Stop()
	j.Stop()

	purger.err = errors.New("db down")
	assert.NotPanics(t, func() { j.RunOnce(context.Background()) })
}
