package domain

import "time"

// RateLimitEntry is a fixed-window counter. Count is only meaningful while now < WindowEnd.
type RateLimitEntry struct {
	Key       string
	Count     uint32
	WindowEnd time.Time
}

// Expired reports whether the window has ended at now.
func (e RateLimitEntry) Expired(now time.Time) bool {
	return !now.Before(e.WindowEnd)
}
