package classify

import (
	"context"

	"github.com/ppiankov/thumbsieve/internal/model"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limited bounds how many classifier calls run at once and how fast they start
type Limited struct {
	next    Classifier
	sem     *semaphore.Weighted // nil = unbounded
	limiter *rate.Limiter       // nil = unlimited
}

// NewLimited wraps next. maxConcurrent <= 0 and rps <= 0 disable the respective bound.
func NewLimited(next Classifier, maxConcurrent int, rps float64) *Limited {
	l := &Limited{next: next}
	if maxConcurrent > 0 {
		l.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return l
}

func (l *Limited) CheckMultiplicity(ctx context.Context, img Image) (Multiplicity, error) {
	release, err := l.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	return l.next.CheckMultiplicity(ctx, img)
}

func (l *Limited) ExtractAttributes(ctx context.Context, img Image) (model.AttributeSet, error) {
	release, err := l.acquire(ctx)
	if err != nil {
		return model.AttributeSet{}, err
	}
	defer release()
	return l.next.ExtractAttributes(ctx, img)
}

func (l *Limited) acquire(ctx context.Context) (func(), error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, APIError(err)
		}
	}
	if l.sem == nil {
		return func() {}, nil
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, APIError(err)
	}
	return func() { l.sem.Release(1) }, nil
}
