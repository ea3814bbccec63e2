package repository

import "time"

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithTTL sets the expiry window refreshed on every upsert.
func WithTTL(ttl time.Duration) Option {
	return func(s *TreapStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithJanitorInterval sets how often expired boards are reclaimed.
func WithJanitorInterval(interval time.Duration) Option {
	return func(s *TreapStore) {
		if interval > 0 {
			s.janitorInterval = interval
		}
	}
}

// WithClock overrides the time source. Tests use this to drive expiry.
func WithClock(now func() time.Time) Option {
	return func(s *TreapStore) {
		if now != nil {
			s.now = now
		}
	}
}
