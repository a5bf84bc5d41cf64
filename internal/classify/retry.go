package classify

import (
	"context"
	"time"

	"github.com/ppiankov/thumbsieve/internal/model"
	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts is the total number of calls made on a rate-limited question
	DefaultMaxAttempts = 2

	// DefaultBaseDelay is the wait before the first retry; it doubles after each one
	DefaultBaseDelay = 2 * time.Second
)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Retrying retries rate-limited calls with exponential backoff.
// Any other failure is returned immediately.
type Retrying struct {
	next        Classifier
	maxAttempts int
	baseDelay   time.Duration
	sleep       SleepFunc
	logger      *zap.Logger
}

// RetryOption configures Retrying
type RetryOption func(*Retrying)

// WithSleep replaces the backoff sleep, for tests
func WithSleep(sleep SleepFunc) RetryOption {
	return func(r *Retrying) {
		r.sleep = sleep
	}
}

// WithRetryLogger sets the logger used for retry notices
func WithRetryLogger(logger *zap.Logger) RetryOption {
	return func(r *Retrying) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRetrying wraps next. Non-positive values fall back to the defaults.
func NewRetrying(next Classifier, maxAttempts int, baseDelay time.Duration, opts ...RetryOption) *Retrying {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	r := &Retrying{
		next:        next,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       sleepContext,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrying) CheckMultiplicity(ctx context.Context, img Image) (Multiplicity, error) {
	var out Multiplicity
	err := r.do(ctx, PurposeMultiplicity, func() error {
		var err error
		out, err = r.next.CheckMultiplicity(ctx, img)
		return err
	})
	return out, err
}

func (r *Retrying) ExtractAttributes(ctx context.Context, img Image) (model.AttributeSet, error) {
	var out model.AttributeSet
	err := r.do(ctx, PurposeAttributes, func() error {
		var err error
		out, err = r.next.ExtractAttributes(ctx, img)
		return err
	})
	return out, err
}

func (r *Retrying) do(ctx context.Context, purpose Purpose, call func() error) error {
	delay := r.baseDelay
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = call()
		if err == nil || KindOf(err) != KindRateLimit {
			return err
		}
		if attempt == r.maxAttempts {
			break
		}

		r.logger.Debug("rate limited, backing off",
			zap.String("purpose", string(purpose)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))

		if serr := r.sleep(ctx, delay); serr != nil {
			return APIError(serr)
		}
		delay *= 2
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
