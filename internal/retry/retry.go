package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/imtaco/liveroom/internal/log"
)

type Retry interface {
	Do(ctx context.Context, operation func() error) error
}

type Option func(*retryImpl)

// WithMaxRetries bounds the number of retries after the first attempt.
func WithMaxRetries(n uint64) Option {
	return func(r *retryImpl) {
		r.maxRetries = n
		r.bounded = true
	}
}

// WithRetryIf stops retrying as soon as an error does not match.
func WithRetryIf(fn func(error) bool) Option {
	return func(r *retryImpl) {
		r.retryIf = fn
	}
}

func New(logger *log.Logger, initialInterval, maxInterval, maxElapsedTime time.Duration, opts ...Option) Retry {
	r := &retryImpl{
		logger:          logger,
		initialInterval: initialInterval,
		maxInterval:     maxInterval,
		maxElapsedTime:  maxElapsedTime,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type retryImpl struct {
	logger          *log.Logger
	initialInterval time.Duration
	maxInterval     time.Duration
	maxElapsedTime  time.Duration
	maxRetries      uint64
	bounded         bool
	retryIf         func(error) bool
}

func (r *retryImpl) Do(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxInterval = r.maxInterval
	b.MaxElapsedTime = r.maxElapsedTime

	var policy backoff.BackOff = b
	if r.bounded {
		policy = backoff.WithMaxRetries(b, r.maxRetries)
	}

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := operation()
		if err == nil {
			return nil
		}
		if r.retryIf != nil && !r.retryIf(err) {
			return backoff.Permanent(err)
		}
		r.logger.Warn("Retry attempt failed",
			log.Int("attempt", attempt),
			log.Error(err))
		return err
	}, backoff.WithContext(policy, ctx))
}
