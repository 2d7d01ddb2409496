package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Purger deletes rate-limit entries whose window has ended.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// RateLimitJanitor periodically removes expired rate-limit entries. Expired
// entries are already ignored by the limiter; this only bounds table growth.
type RateLimitJanitor struct {
	purger   Purger
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRateLimitJanitor builds a janitor running every interval.
func NewRateLimitJanitor(purger Purger, interval time.Duration, logger *zap.Logger) *RateLimitJanitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitJanitor{purger: purger, interval: interval, now: time.Now, logger: logger}
}

// Start launches the background loop. It is a no-op if already running.
func (j *RateLimitJanitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}
	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go j.loop(ctx)
}

// Stop ends the loop and waits for it.
func (j *RateLimitJanitor) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}

func (j *RateLimitJanitor) loop(ctx context.Context) {
	defer j.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce purges expired entries once.
func (j *RateLimitJanitor) RunOnce(ctx context.Context) {
	deleted, err := j.purger.PurgeExpired(ctx, j.now().UTC())
	if err != nil {
		j.logger.Warn("rate limit purge failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		j.logger.Debug("purged expired rate limits", zap.Int64("deleted", deleted))
	}
}
