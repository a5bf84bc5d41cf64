package classify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ppiankov/thumbsieve/internal/cache"
	"github.com/ppiankov/thumbsieve/internal/model"
	"go.uber.org/zap"
)

// Cached answers from the verdict cache when the same image bytes were
// classified before. Only successful verdicts are stored.
type Cached struct {
	next   Classifier
	cache  cache.Cache
	scope  string // provider and model; verdicts from different models never mix
	ttl    time.Duration
	logger *zap.Logger
}

type verdict struct {
	Multiplicity Multiplicity        `json:"multiplicity,omitempty"`
	Attributes   *model.AttributeSet `json:"attributes,omitempty"`
}

// NewCached wraps next with c
func NewCached(next Classifier, c cache.Cache, scope string, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{next: next, cache: c, scope: scope, ttl: ttl, logger: logger}
}

func (c *Cached) CheckMultiplicity(ctx context.Context, img Image) (Multiplicity, error) {
	key := c.key(PurposeMultiplicity, img)
	if v, ok := c.lookup(key); ok && v.Multiplicity != "" {
		return v.Multiplicity, nil
	}

	m, err := c.next.CheckMultiplicity(ctx, img)
	if err != nil {
		return "", err
	}
	c.store(key, verdict{Multiplicity: m})
	return m, nil
}

func (c *Cached) ExtractAttributes(ctx context.Context, img Image) (model.AttributeSet, error) {
	key := c.key(PurposeAttributes, img)
	if v, ok := c.lookup(key); ok && v.Attributes != nil {
		if err := v.Attributes.Validate(); err == nil {
			return *v.Attributes, nil
		}
		// incomplete verdict
		c.forget(key)
	}

	attrs, err := c.next.ExtractAttributes(ctx, img)
	if err != nil {
		return model.AttributeSet{}, err
	}
	c.store(key, verdict{Attributes: &attrs})
	return attrs, nil
}

func (c *Cached) key(purpose Purpose, img Image) string {
	return cache.Key(string(purpose), c.scope, cache.ContentDigest(img.Data))
}

func (c *Cached) lookup(key string) (verdict, bool) {
	data, ok := c.cache.Get(key)
	if !ok {
		return verdict{}, false
	}
	var v verdict
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Debug("discarding unreadable verdict", zap.String("key", key), zap.Error(err))
		c.forget(key)
		return verdict{}, false
	}
	return v, true
}

func (c *Cached) forget(key string) {
	if err := c.cache.Delete(key); err != nil {
		c.logger.Debug("verdict cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cached) store(key string, v verdict) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(key, data, c.ttl); err != nil {
		c.logger.Warn("verdict cache write failed", zap.String("key", key), zap.Error(err))
	}
}
