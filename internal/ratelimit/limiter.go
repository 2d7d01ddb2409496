// Package ratelimit implements fixed-window throttling keyed by action and actor.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unityvault/ticketflow/internal/config"
	"github.com/unityvault/ticketflow/internal/domain"
	"github.com/unityvault/ticketflow/internal/observability"
	apperrors "github.com/unityvault/ticketflow/pkg/errorutil"
)

// Kind names a rate-limit policy.
type Kind string

const (
	KindCommand      Kind = "command"
	KindTicketCreate Kind = "ticket_create"
	KindButton       Kind = "button"
)

// Policy allows Limit attempts per Window. A zero policy disables limiting.
type Policy struct {
	Limit  uint32
	Window time.Duration
}

func (p Policy) disabled() bool {
	return p.Limit == 0 || p.Window <= 0
}

// Key identifies one counter.
type Key struct {
	Kind  Kind
	Value string
}

func (k Key) String() string { return k.Value }

// CommandKey throttles a slash command per user.
func CommandKey(command, userID string) Key {
	return Key{Kind: KindCommand, Value: fmt.Sprintf("slash:%s:%s", command, userID)}
}

// TicketCreateKey throttles ticket creation per user and community.
func TicketCreateKey(communityID, userID string) Key {
	return Key{Kind: KindTicketCreate, Value: fmt.Sprintf("ticket:create:%s:%s", communityID, userID)}
}

// ButtonKey throttles a button action per user.
func ButtonKey(action, userID string) Key {
	return Key{Kind: KindButton, Value: fmt.Sprintf("btn:%s:%s", action, userID)}
}

// Store counts one attempt against key and returns the entry after the hit.
// The count saturates at limit+1.
type Store interface {
	Hit(ctx context.Context, key string, limit uint32, window time.Duration, now time.Time) (*domain.RateLimitEntry, error)
}

// Decision is the outcome of a check.
type Decision struct {
	Allowed    bool
	Count      uint32
	WindowEnd  time.Time
	RetryAfter time.Duration
}

// Limiter applies per-kind policies against a Store.
type Limiter struct {
	store    Store
	policies map[Kind]Policy
	now      func() time.Time
	logger   *zap.Logger
	metrics  *observability.Metrics
	timeout  time.Duration
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithMetrics records decisions.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithTimeout bounds each store round trip. A stalled store then fails the
// check with STORAGE_UNAVAILABLE. Zero leaves the caller's deadline alone.
func WithTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.timeout = d }
}

// NewLimiter builds a limiter. Kinds without a policy are not limited.
func NewLimiter(store Store, policies map[Kind]Policy, opts ...Option) *Limiter {
	l := &Limiter{
		store:    store,
		policies: policies,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

// PoliciesFromConfig maps configuration onto policy kinds.
func PoliciesFromConfig(cfg config.RateLimitConfig) map[Kind]Policy {
	return map[Kind]Policy{
		KindCommand:      {Limit: cfg.Command.Limit, Window: cfg.Command.Window},
		KindTicketCreate: {Limit: cfg.TicketCreate.Limit, Window: cfg.TicketCreate.Window},
		KindButton:       {Limit: cfg.Button.Limit, Window: cfg.Button.Window},
	}
}

// Check counts one attempt against key.
func (l *Limiter) Check(ctx context.Context, key Key) (Decision, error) {
	policy, ok := l.policies[key.Kind]
	if !ok || policy.disabled() {
		return Decision{Allowed: true}, nil
	}
	if l.store == nil {
		return Decision{}, apperrors.NewStorageError(fmt.Errorf("rate limit store not configured"))
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	now := l.now().UTC()
	entry, err := l.store.Hit(ctx, key.Value, policy.Limit, policy.Window, now)
	if err != nil {
		l.logger.Error("rate limit check failed", zap.String("key", key.Value), zap.Error(err))
		return Decision{}, apperrors.NewStorageError(err)
	}

	d := Decision{
		Allowed:   entry.Count <= policy.Limit,
		Count:     entry.Count,
		WindowEnd: entry.WindowEnd,
	}
	if !d.Allowed {
		d.RetryAfter = entry.WindowEnd.Sub(now)
		l.logger.Debug("rate limited",
			zap.String("key", key.Value),
			zap.Duration("retry_after", d.RetryAfter),
		)
	}
	l.metrics.RecordRateLimit(string(key.Kind), d.Allowed)
	return d, nil
}

// Allow is Check that returns a RATE_LIMITED error when the attempt is denied.
func (l *Limiter) Allow(ctx context.Context, key Key) error {
	d, err := l.Check(ctx, key)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return apperrors.NewRateLimited(d.RetryAfter)
	}
	return nil
}
