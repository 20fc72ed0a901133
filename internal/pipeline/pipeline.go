package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
	"github.com/couchcryptid/climate-daily-etl/internal/observability"
)

var (
	// ErrNoLocation is returned when a run is requested without a location.
	ErrNoLocation = errors.New("no location specified")
	// ErrEmptyPage marks a target whose page yielded no usable rows.
	ErrEmptyPage = errors.New("page contained no usable rows")
)

// Fetcher downloads one page. It must honor ctx cancellation and deadlines.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// PageLocator maps a fetch target to the URL of the page covering it.
type PageLocator interface {
	PageURL(target domain.FetchTarget) (string, error)
}

// ParseFunc extracts the raw rows of one page, reporting row defects to sink.
type ParseFunc func(page []byte, sink domain.DefectSink) iter.Seq[domain.RawRow]

// Store is the persistence the pipeline writes to and reads gap state from.
type Store interface {
	UpsertBatch(ctx context.Context, obs []domain.Observation) error
	LatestDate(ctx context.Context, location string) (domain.Date, bool, error)
}

// Publisher announces observations after they are committed.
type Publisher interface {
	Publish(ctx context.Context, obs []domain.Observation) error
}

// Pipeline orchestrates gap analysis, fetch, parse, normalize and upsert for
// one location at a time. Failures are isolated per target and collected in
// the returned Summary.
type Pipeline struct {
	fetcher   Fetcher
	pages     PageLocator
	parse     ParseFunc
	store     Store
	publisher Publisher
	sink      domain.DefectSink
	logger    *slog.Logger
	metrics   *observability.Metrics

	fetchTimeout time.Duration
	storeTimeout time.Duration

	ready atomic.Bool
}

// Option configures optional Pipeline behavior.
type Option func(*Pipeline)

// WithPublisher publishes each committed page of observations.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithDefectSink forwards every defect to sink as it occurs.
func WithDefectSink(sink domain.DefectSink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// WithTimeouts bounds each page fetch and each store commit. Zero leaves the
// corresponding operation bounded only by the caller's context.
func WithTimeouts(fetch, store time.Duration) Option {
	return func(p *Pipeline) {
		p.fetchTimeout = fetch
		p.storeTimeout = store
	}
}

// New creates a Pipeline with the given stages and observability.
func New(f Fetcher, pages PageLocator, parse ParseFunc, s Store, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher: f,
		pages:   pages,
		parse:   parse,
		store:   s,
		sink:    domain.DiscardDefects,
		logger:  logger,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once at least one ingestion run has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no ingestion run has completed yet")
	}
	return nil
}

// Download fetches every month page from January of startYear through the
// current month (or December of endYear, whichever is earlier).
func (p *Pipeline) Download(ctx context.Context, location string, startYear, endYear int) (Summary, error) {
	if err := p.checkLocation(location); err != nil {
		return Summary{Location: location, Mode: ModeBulk}, err
	}
	targets := domain.MonthTargets(location, startYear, endYear, domain.Today())
	return p.run(ctx, ModeBulk, location, targets)
}

// Update fills the gap between the latest stored day and today. When nothing
// is stored for location the returned Summary has NeedsBulk set and no
// targets are processed.
func (p *Pipeline) Update(ctx context.Context, location string) (Summary, error) {
	summary := Summary{Location: location, Mode: ModeIncremental}
	if err := p.checkLocation(location); err != nil {
		return summary, err
	}

	// Read fresh every run; earlier runs may have advanced it.
	latest, ok, err := p.latestDate(ctx, location)
	if err != nil {
		return summary, fmt.Errorf("read latest date for %s: %w", location, err)
	}

	var last *domain.Date
	if ok {
		last = &latest
	}
	days, hasBaseline := domain.TargetsSinceLast(location, last, domain.Today())
	if !hasBaseline {
		summary.NeedsBulk = true
		p.logger.Info("no stored observations, bulk download required", "location", location)
		return summary, nil
	}

	return p.run(ctx, ModeIncremental, location, CollapsePages(days))
}

// Sync runs Update and, when no baseline exists, falls back to a bulk
// Download starting at bootstrapYear.
func (p *Pipeline) Sync(ctx context.Context, location string, bootstrapYear int) (Summary, error) {
	summary, err := p.Update(ctx, location)
	if err != nil || !summary.NeedsBulk {
		return summary, err
	}
	return p.Download(ctx, location, bootstrapYear, domain.Today().Year)
}

func (p *Pipeline) checkLocation(location string) error {
	if location == "" {
		return ErrNoLocation
	}
	today := domain.Today()
	if _, err := p.pages.PageURL(domain.FetchTarget{Location: location, Year: today.Year, Month: int(today.Month)}); err != nil {
		return fmt.Errorf("invalid location: %w", err)
	}
	return nil
}

func (p *Pipeline) latestDate(ctx context.Context, location string) (domain.Date, bool, error) {
	ctx, cancel := withOptionalTimeout(ctx, p.storeTimeout)
	defer cancel()
	return p.store.LatestDate(ctx, location)
}

// run processes targets in order. Caller cancellation is checked between
// targets; an in-flight target either commits fully or not at all.
func (p *Pipeline) run(ctx context.Context, mode Mode, location string, targets []domain.FetchTarget) (Summary, error) {
	summary := Summary{
		RunID:    uuid.NewString(),
		Location: location,
		Mode:     mode,
		Targets:  len(targets),
		Started:  time.Now(),
	}
	logger := p.logger.With("run_id", summary.RunID, "location", location, "mode", string(mode))

	p.metrics.PipelineRunning.Inc()
	defer p.metrics.PipelineRunning.Dec()

	logger.Info("ingestion started", "targets", len(targets))
	sink := observability.Tee(domain.DefectSinkFunc(summary.record), p.sink)

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return p.finish(logger, summary.cancelled()), err
		}

		stored, err := p.ingest(ctx, target, sink)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("target abandoned on cancellation", "target", target.String())
				return p.finish(logger, summary.cancelled()), ctx.Err()
			}
			logger.Warn("target failed", "target", target.String(), "error", err)
			summary.Failed = append(summary.Failed, TargetFailure{Target: target, Err: err})
			p.metrics.TargetsProcessed.WithLabelValues(string(mode), "failed").Inc()
			continue
		}

		logger.Debug("target stored", "target", target.String(), "observations", stored)
		summary.Succeeded = append(summary.Succeeded, target)
		summary.Stored += stored
		p.metrics.TargetsProcessed.WithLabelValues(string(mode), "succeeded").Inc()
	}

	if len(summary.Failed) == 0 {
		p.metrics.LastSuccessTimestamp.WithLabelValues(location).SetToCurrentTime()
	}
	p.ready.Store(true)
	return p.finish(logger, summary), nil
}

func (p *Pipeline) finish(logger *slog.Logger, s Summary) Summary {
	s.Finished = time.Now()
	logger.Info("ingestion finished",
		"succeeded", len(s.Succeeded),
		"failed", len(s.Failed),
		"defects", len(s.Defects),
		"stored", s.Stored,
		"cancelled", s.Cancelled,
		"duration", s.Finished.Sub(s.Started),
	)
	return s
}

// ingest runs fetch -> parse -> normalize -> upsert for one page target and
// returns how many observations were committed.
func (p *Pipeline) ingest(ctx context.Context, target domain.FetchTarget, sink domain.DefectSink) (int, error) {
	report := func(kind domain.DefectKind, err error) {
		sink.Report(domain.Defect{Target: target, Kind: kind, Message: err.Error()})
	}

	url, err := p.pages.PageURL(target)
	if err != nil {
		report(domain.FetchFailure, err)
		return 0, err
	}

	page, err := p.fetch(ctx, url)
	if err != nil {
		if ctx.Err() == nil {
			report(domain.FetchFailure, err)
		}
		return 0, err
	}

	obs := p.extract(target, page, sink)
	if len(obs) == 0 {
		report(domain.ParseDefect, ErrEmptyPage)
		return 0, ErrEmptyPage
	}

	if err := p.commit(ctx, obs); err != nil {
		if ctx.Err() == nil {
			report(domain.StoreFailure, err)
		}
		return 0, err
	}
	p.metrics.ObservationsStored.Add(float64(len(obs)))

	p.publish(ctx, target, obs)
	return len(obs), nil
}

func (p *Pipeline) fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := withOptionalTimeout(ctx, p.fetchTimeout)
	defer cancel()
	return p.fetcher.Fetch(ctx, url)
}

func (p *Pipeline) commit(ctx context.Context, obs []domain.Observation) error {
	ctx, cancel := withOptionalTimeout(ctx, p.storeTimeout)
	defer cancel()

	start := time.Now()
	err := p.store.UpsertBatch(ctx, obs)
	p.metrics.StoreCommitDuration.Observe(time.Since(start).Seconds())
	return err
}

// publish is best effort: the store is the source of truth.
func (p *Pipeline) publish(ctx context.Context, target domain.FetchTarget, obs []domain.Observation) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, obs); err != nil {
		p.logger.Warn("publish observations failed", "target", target.String(), "error", err)
	}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
