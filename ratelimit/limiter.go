// Package ratelimit implements a sliding-window message limiter. There is no
// counter state to reset or leak: the window is computed by counting existing
// message rows newer than now minus the window.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/pawsly/pawsly-chat/config"
	"github.com/pawsly/pawsly-chat/persistence"
	"github.com/pawsly/pawsly-chat/types"
)

type Limiter struct {
	persister persistence.Persister
	cfg       config.RateLimitConfig

	// Now is the clock used for the window computation, overridable in tests.
	Now func() time.Time
}

func NewLimiter(persister persistence.Persister, cfg *config.Config) *Limiter {
	return &Limiter{
		persister: persister,
		cfg:       cfg.RateLimitConfig,
		Now:       time.Now,
	}
}

func (l *Limiter) limits(kind types.ChannelKind) (max, windowSeconds int) {
	switch kind {
	case types.ChannelDirect:
		return l.cfg.DMMax, l.cfg.DMWindowSeconds
	default:
		return l.cfg.RoomMax, l.cfg.RoomWindowSeconds
	}
}

// Check counts the user's own messages in the channel's trailing window. At
// or above the limit it rejects with a coarse retry-after hint of the whole
// window, deliberately not an exact next-available-slot calculation. The
// caller is responsible for performing the write that the next Check call
// will count.
func (l *Limiter) Check(userId string, kind types.ChannelKind) error {
	max, windowSeconds := l.limits(kind)
	if max <= 0 || windowSeconds <= 0 {
		return nil // limiting disabled
	}
	since := l.Now().UTC().Add(-time.Duration(windowSeconds) * time.Second)
	count, err := l.persister.CountMessagesSince(userId, kind, since)
	if err != nil {
		return fmt.Errorf("could not count messages: %w", err)
	}
	if count >= int64(max) {
		return &types.RateLimitedError{RetryAfterSeconds: windowSeconds}
	}
	return nil
}
