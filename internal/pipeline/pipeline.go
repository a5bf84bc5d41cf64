// Package pipeline runs one candidate thumbnail through the dedup gates:
// download, image hash, multiplicity, attributes, fingerprint.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/thumbsieve/internal/classify"
	"github.com/ppiankov/thumbsieve/internal/metrics"
	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/ppiankov/thumbsieve/internal/phash"
	"github.com/ppiankov/thumbsieve/internal/store"
	"go.uber.org/zap"
)

// ImageSource downloads and decodes thumbnails
type ImageSource interface {
	FetchImage(ctx context.Context, rawURL string) (*FetchedImage, error)
}

// Store is the part of the fingerprint store the pipeline reads and counts against
type Store interface {
	LookupHash(hash model.ImageHash) (string, bool)
	RecordOccurrence(fp model.FingerprintKey) (store.FingerprintEntry, bool)
}

// Result is the terminal state of one item
type Result struct {
	Item    model.CandidateItem
	Outcome model.Outcome
	Detail  string // error detail for error outcomes

	Hash        model.ImageHash
	Fingerprint model.FingerprintKey
	Attributes  model.AttributeSet

	// OriginalURL is the first-seen thumbnail for duplicate_phash
	OriginalURL string
	// Occurrences is the updated count for duplicate_fingerprint
	Occurrences int

	Record   *model.UniqueRecord // set only for unique
	Duration time.Duration
}

// Label renders the outcome with its detail, e.g. "api_error: 403 forbidden"
func (r Result) Label() string {
	if r.Detail == "" {
		return string(r.Outcome)
	}
	return fmt.Sprintf("%s: %s", r.Outcome, r.Detail)
}

// Pipeline evaluates candidate items. It is safe for concurrent use.
type Pipeline struct {
	images     ImageSource
	classifier classify.Classifier
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a pipeline. m and logger may be nil.
func New(images ImageSource, classifier classify.Classifier, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		images:     images,
		classifier: classifier,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Process runs item through every gate and returns its terminal outcome.
// It never panics and never mutates the store except for the occurrence
// count of a duplicate fingerprint; inserting unique items is the caller's job.
func (p *Pipeline) Process(ctx context.Context, item model.CandidateItem, st Store) (res Result) {
	start := p.now()
	res.Item = item

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = model.OutcomeProcessingError
			res.Detail = fmt.Sprint(r)
			res.Record = nil
			p.logger.Error("panic while processing item",
				zap.String("url", item.ImageURL),
				zap.Any("panic", r))
		}
		res.Duration = p.now().Sub(start)
	}()

	log := p.logger.With(zap.String("url", item.ImageURL))

	// 1. Download
	img, err := p.images.FetchImage(ctx, item.ImageURL)
	if err != nil {
		log.Debug("download failed", zap.Error(err))
		return p.fail(res, model.OutcomeDownloadFailed, err.Error())
	}

	// 2. Image hash gate
	hash, err := phash.Compute(img.Image)
	if err != nil {
		log.Debug("hash failed", zap.Error(err))
		return p.fail(res, model.OutcomePHashFailed, err.Error())
	}
	res.Hash = hash

	if dup, original := phash.NewGate(st).Check(hash); dup {
		log.Debug("image hash already seen", zap.String("hash", string(hash)), zap.String("original", original))
		res.Outcome = model.OutcomeDuplicatePHash
		res.OriginalURL = original
		return res
	}

	cimg := classify.Image{Data: img.Data, MIMEType: img.MIMEType}

	// 3. Multiplicity gate
	multiplicity, err := p.classifier.CheckMultiplicity(ctx, cimg)
	p.observeCall(classify.PurposeMultiplicity, err)
	if err != nil {
		return p.classifierFailure(res, err)
	}
	if multiplicity != classify.Single {
		log.Debug("not a single product", zap.String("multiplicity", string(multiplicity)))
		res.Outcome = model.OutcomeMultipleProducts
		return res
	}

	// 4. Attribute extraction
	attrs, err := p.classifier.ExtractAttributes(ctx, cimg)
	p.observeCall(classify.PurposeAttributes, err)
	if err != nil {
		return p.classifierFailure(res, err)
	}
	if err := attrs.Validate(); err != nil {
		return p.fail(res, model.OutcomeIncompleteAttributes, err.Error())
	}
	res.Attributes = attrs

	// 5. Fingerprint gate
	fp := model.Fingerprint(attrs)
	res.Fingerprint = fp
	if entry, seen := st.RecordOccurrence(fp); seen {
		log.Debug("design already seen",
			zap.String("fingerprint", string(fp)),
			zap.Int("count", entry.Count))
		res.Outcome = model.OutcomeDuplicateFingerprint
		res.OriginalURL = entry.ThumbnailURL
		res.Occurrences = entry.Count
		return res
	}

	// 6. Accept
	res.Outcome = model.OutcomeUnique
	res.Record = &model.UniqueRecord{
		Item:        item,
		Hash:        hash,
		Fingerprint: fp,
		Attributes:  attrs,
	}
	return res
}

func (p *Pipeline) fail(res Result, outcome model.Outcome, detail string) Result {
	res.Outcome = outcome
	res.Detail = detail
	return res
}

func (p *Pipeline) classifierFailure(res Result, err error) Result {
	var ce *classify.Error
	if errors.As(err, &ce) {
		return p.fail(res, ce.Kind.Outcome(), ce.Detail)
	}
	return p.fail(res, model.OutcomeAPIError, err.Error())
}

func (p *Pipeline) observeCall(purpose classify.Purpose, err error) {
	result := "ok"
	if err != nil {
		result = classify.KindOf(err).String()
	}
	p.metrics.ObserveClassifierCall(string(purpose), result)
}
