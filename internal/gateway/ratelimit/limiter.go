package ratelimit

import (
	"context"
	"math"
	"time"

	"interpharma-gateway/internal/common/errors"
	"interpharma-gateway/internal/common/logger"
)

const (
	DefaultMax    = 30
	DefaultWindow = 60 * time.Second
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	Remaining  int64
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up, with a floor of one second.
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

type Limiter struct {
	store  Store
	max    int64
	window time.Duration
	prefix string
	log    logger.Logger
}

type Option func(*Limiter)

func WithLimit(max int, window time.Duration) Option {
	return func(l *Limiter) {
		if max > 0 {
			l.max = int64(max)
		}
		if window > 0 {
			l.window = window
		}
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(l *Limiter) { l.prefix = prefix }
}

func NewLimiter(store Store, log logger.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		max:    DefaultMax,
		window: DefaultWindow,
		prefix: "ratelimit:",
		log:    log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records a hit for clientID. Store failures let the request through.
func (l *Limiter) Allow(ctx context.Context, clientID string) Decision {
	count, resetIn, err := l.store.Increment(ctx, l.prefix+clientID, l.window)
	if err != nil {
		l.log.Warn("rate store unavailable, allowing request", map[string]interface{}{
			"clientId": clientID,
			"error":    errors.NewRateStoreUnavailableError(err).Error(),
		})
		return Decision{Allowed: true, Remaining: l.max}
	}

	d := Decision{Count: count, Allowed: count <= l.max}
	if d.Allowed {
		d.Remaining = l.max - count
	} else {
		d.RetryAfter = resetIn
	}
	return d
}

func (l *Limiter) Max() int64 { return l.max }
