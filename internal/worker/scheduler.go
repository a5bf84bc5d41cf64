package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/thumbsieve/internal/metrics"
	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/ppiankov/thumbsieve/internal/pipeline"
	"github.com/ppiankov/thumbsieve/internal/store"
	"go.uber.org/zap"
)

const (
	// DefaultWorkers is the number of items processed concurrently
	DefaultWorkers = 50

	// DefaultItemTimeout bounds the processing of one item
	DefaultItemTimeout = 30 * time.Second

	// errorRatioWarn is the share of error outcomes above which a run is flagged
	errorRatioWarn = 0.5
)

// Processor runs one item to a terminal outcome
type Processor interface {
	Process(ctx context.Context, item model.CandidateItem, st pipeline.Store) pipeline.Result
}

// Store is the fingerprint store as seen by the scheduler
type Store interface {
	pipeline.Store
	LookupFingerprint(fp model.FingerprintKey) (store.FingerprintEntry, bool)
	InsertUnique(hash model.ImageHash, fp model.FingerprintKey, thumbnailURL string, now time.Time) (store.FingerprintEntry, bool)
	Len() (hashes int, fingerprints int)
}

// ProgressFunc is called once per finished item, from the collecting goroutine
type ProgressFunc func(done, total int, res pipeline.Result)

// SchedulerConfig holds the optional scheduler settings
type SchedulerConfig struct {
	Workers     int
	ItemTimeout time.Duration
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	OnResult    ProgressFunc
}

// Scheduler fans a batch of candidates out over a worker pool
type Scheduler struct {
	proc        Processor
	store       Store
	workers     int
	itemTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
	onResult    ProgressFunc
	now         func() time.Time
}

// RunReport summarises one batch
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Stats      model.RunStats

	// Unique and Results follow candidate order, not completion order
	Unique  []model.UniqueRecord
	Results []pipeline.Result
}

// Duration returns the wall time of the run
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// NewScheduler creates a scheduler over proc and st
func NewScheduler(proc Processor, st Store, cfg SchedulerConfig) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = DefaultItemTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Scheduler{
		proc:        proc,
		store:       st,
		workers:     cfg.Workers,
		itemTimeout: cfg.ItemTimeout,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		onResult:    cfg.OnResult,
		now:         time.Now,
	}
}

// Run processes every item and returns the report.
// If ctx is cancelled the report covers the items finished so far and the
// error wraps ctx.Err().
func (s *Scheduler) Run(ctx context.Context, items []model.CandidateItem) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
		Stats:     model.NewRunStats(len(items)),
	}

	s.logger.Info("run started",
		zap.String("run_id", report.RunID),
		zap.Int("items", len(items)),
		zap.Int("workers", s.workers),
		zap.Duration("item_timeout", s.itemTimeout))

	pool := NewPool(ctx, s.workers)
	pool.Start()

	go func() {
		defer pool.Close()
		for i, item := range items {
			if !pool.Submit(&itemJob{index: i, item: item, s: s}) {
				return
			}
		}
	}()

	results := make([]*pipeline.Result, len(items))
	done := 0
	for r := range pool.Results() {
		ir, ok := r.(*itemResult)
		if !ok {
			continue
		}
		res := ir.res
		results[ir.index] = &res
		done++

		report.Stats.Add(res.Outcome)
		s.metrics.ObserveItem(string(res.Outcome), res.Duration)
		s.logItem(done, len(items), res)
		if s.onResult != nil {
			s.onResult(done, len(items), res)
		}
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		report.Results = append(report.Results, *res)
		if res.Outcome == model.OutcomeUnique && res.Record != nil {
			report.Unique = append(report.Unique, *res.Record)
		}
	}
	report.FinishedAt = s.now()

	hashes, fingerprints := s.store.Len()
	s.metrics.SetStoreEntries(hashes, fingerprints)

	if err := ctx.Err(); err != nil {
		s.logger.Warn("run cancelled",
			zap.String("run_id", report.RunID),
			zap.Int("finished", done),
			zap.Int("items", len(items)))
		return report, fmt.Errorf("run cancelled after %d of %d items: %w", done, len(items), err)
	}

	if ratio := report.Stats.ErrorRatio(); ratio > errorRatioWarn {
		s.logger.Warn("most items failed",
			zap.Float64("error_ratio", ratio),
			zap.Int("errors", report.Stats.Errors()),
			zap.Int("items", len(items)))
	}

	s.logger.Info("run finished",
		zap.String("run_id", report.RunID),
		zap.Int("unique", len(report.Unique)),
		zap.Int("errors", report.Stats.Errors()),
		zap.Duration("took", report.Duration()))

	return report, nil
}

func (s *Scheduler) logItem(done, total int, res pipeline.Result) {
	fields := []zap.Field{
		zap.Int("done", done),
		zap.Int("total", total),
		zap.String("outcome", string(res.Outcome)),
		zap.String("url", res.Item.ImageURL),
	}
	if res.Item.RankHint > 0 {
		fields = append(fields, zap.Int("rank", res.Item.RankHint))
	}
	if res.Outcome.IsError() {
		s.logger.Warn("item failed", append(fields, zap.String("detail", res.Detail))...)
		return
	}
	s.logger.Info("item done", fields...)
}

// process runs one item under the per-item timeout and applies the
// store insert for unique results
func (s *Scheduler) process(ctx context.Context, item model.CandidateItem) pipeline.Result {
	start := s.now()
	itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
	defer cancel()

	st := &guardedStore{Store: s.store, ctx: itemCtx}
	ch := make(chan pipeline.Result, 1)
	go func() {
		ch <- s.proc.Process(itemCtx, item, st)
	}()

	var res pipeline.Result
	select {
	case res = <-ch:
	case <-itemCtx.Done():
		res = pipeline.Result{
			Item:     item,
			Outcome:  model.OutcomeTimeout,
			Detail:   timeoutDetail(itemCtx.Err(), s.itemTimeout),
			Duration: s.now().Sub(start),
		}
		return res
	}

	if res.Outcome != model.OutcomeUnique {
		return res
	}

	entry, inserted := s.store.InsertUnique(res.Hash, res.Fingerprint, item.ImageURL, s.now())
	if !inserted {
		res.Outcome = model.OutcomeDuplicateFingerprint
		res.OriginalURL = entry.ThumbnailURL
		res.Occurrences = entry.Count
		res.Record = nil
	}
	return res
}

func timeoutDetail(err error, limit time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("exceeded %s", limit)
	}
	return err.Error()
}

// guardedStore stops an abandoned item from counting an occurrence
// after its timeout fired
type guardedStore struct {
	Store
	ctx context.Context
}

func (g *guardedStore) RecordOccurrence(fp model.FingerprintKey) (store.FingerprintEntry, bool) {
	if g.ctx.Err() != nil {
		entry, ok := g.Store.LookupFingerprint(fp)
		return entry, ok
	}
	return g.Store.RecordOccurrence(fp)
}

// itemJob adapts one candidate to the pool's Job interface
type itemJob struct {
	index int
	item  model.CandidateItem
	s     *Scheduler
}

func (j *itemJob) Execute(ctx context.Context) Result {
	return &itemResult{index: j.index, res: j.s.process(ctx, j.item)}
}

type itemResult struct {
	index int
	res   pipeline.Result
}

func (r *itemResult) GetError() error {
	if r.res.Outcome.IsError() {
		return errors.New(r.res.Label())
	}
	return nil
}
