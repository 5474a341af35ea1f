// Package pipeline orchestrates one ingestion run: every configured
// source fetches concurrently, each source's records land in its own
// table, and per-source failures degrade the run summary instead of
// aborting the run.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ortiz-cia/precios-cli/internal/model"
	"github.com/ortiz-cia/precios-cli/internal/normalize"
	"github.com/ortiz-cia/precios-cli/internal/source"
	"github.com/ortiz-cia/precios-cli/internal/store"
)

// Notifier receives the summary of a finished run. The default is a
// no-op; deployments hang alerting off it.
type Notifier interface {
	RunCompleted(ctx context.Context, summary *model.RunSummary)
}

type nopNotifier struct{}

func (nopNotifier) RunCompleted(context.Context, *model.RunSummary) {}

// Backfiller is a source that can also replay its historical series.
type Backfiller interface {
	Table() store.Table
	Backfill(ctx context.Context, day time.Time) ([]model.PriceRecord, model.SourceReport)
}

// Orchestrator runs the acquisition sources and persists their yield.
type Orchestrator struct {
	store    store.Store
	sources  []source.Source
	notifier Notifier
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier installs a run-completion notifier.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// New creates an Orchestrator over the given store and sources.
func New(st store.Store, sources []source.Source, opts ...Option) *Orchestrator {
	o := &Orchestrator{store: st, sources: sources, notifier: nopNotifier{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run ingests one day from every source concurrently. Source and write
// failures are folded into the summary; the returned error is reserved
// for context cancellation.
func (o *Orchestrator) Run(ctx context.Context, day time.Time) (*model.RunSummary, error) {
	day = normalize.Day(day)
	summary := &model.RunSummary{
		RunID:     uuid.NewString(),
		Day:       day,
		StartedAt: time.Now().UTC(),
		Sources:   make([]model.SourceReport, len(o.sources)),
	}

	log := zap.L().With(zap.String("run_id", summary.RunID), zap.Time("day", day))
	log.Info("ingestion run started", zap.Int("sources", len(o.sources)))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range o.sources {
		g.Go(func() error {
			summary.Sources[i] = o.ingest(gctx, src, day)
			return nil
		})
	}
	_ = g.Wait()

	summary.DurationMS = time.Since(summary.StartedAt).Milliseconds()
	log.Info("ingestion run finished", zap.Int64("duration_ms", summary.DurationMS))

	o.notifier.RunCompleted(ctx, summary)
	return summary, ctx.Err()
}

// RunBackfill replays a source's historical series into its table.
func (o *Orchestrator) RunBackfill(ctx context.Context, b Backfiller, day time.Time) (*model.RunSummary, error) {
	day = normalize.Day(day)
	summary := &model.RunSummary{
		RunID:     uuid.NewString(),
		Day:       day,
		StartedAt: time.Now().UTC(),
	}

	records, report := b.Backfill(ctx, day)
	o.persist(ctx, b.Table(), records, &report)
	summary.Sources = []model.SourceReport{report}

	summary.DurationMS = time.Since(summary.StartedAt).Milliseconds()
	o.notifier.RunCompleted(ctx, summary)
	return summary, ctx.Err()
}

// RunRange replays one source day by day over [from, to]. The market
// only publishes Tuesday through Friday; other days are skipped. Each
// day runs the same fetch-and-persist path as Run, so the write policy
// keeps the replay idempotent. Days that fail or come back with a
// changed structure are listed as failed units; the replay continues
// with the next day.
func (o *Orchestrator) RunRange(ctx context.Context, src source.Source, from, to time.Time) (*model.RunSummary, error) {
	from = normalize.Day(from)
	to = normalize.Day(to)
	summary := &model.RunSummary{
		RunID:     uuid.NewString(),
		Day:       to,
		StartedAt: time.Now().UTC(),
	}

	report := model.SourceReport{Source: src.Name()}
	log := zap.L().With(zap.String("run_id", summary.RunID), zap.String("source", report.Source))
	log.Info("range replay started", zap.Time("from", from), zap.Time("to", to))

	for day := from; !day.After(to) && ctx.Err() == nil; day = day.AddDate(0, 0, 1) {
		if !publishingDay(day) {
			continue
		}
		dayReport := o.ingest(ctx, src, day)
		report.Extracted += dayReport.Extracted
		report.Written += dayReport.Written
		if dayReport.Error != "" || dayReport.StructuralMismatch {
			report.FailedUnits = append(report.FailedUnits, day.Format("2006-01-02"))
		}
		if dayReport.StructuralMismatch {
			report.StructuralMismatch = true
			report.MissingFields = dayReport.MissingFields
		}
	}
	summary.Sources = []model.SourceReport{report}

	summary.DurationMS = time.Since(summary.StartedAt).Milliseconds()
	log.Info("range replay finished",
		zap.Int("extracted", report.Extracted),
		zap.Int("written", report.Written),
		zap.Int("failed_days", len(report.FailedUnits)),
	)

	o.notifier.RunCompleted(ctx, summary)
	return summary, ctx.Err()
}

// publishingDay reports whether the market auctions on day.
func publishingDay(day time.Time) bool {
	wd := day.Weekday()
	return wd >= time.Tuesday && wd <= time.Friday
}

func (o *Orchestrator) ingest(ctx context.Context, src source.Source, day time.Time) model.SourceReport {
	records, report := src.Fetch(ctx, day)
	o.persist(ctx, src.Table(), records, &report)
	return report
}

func (o *Orchestrator) persist(ctx context.Context, table store.Table, records []model.PriceRecord, report *model.SourceReport) {
	log := zap.L().With(zap.String("source", report.Source))

	if report.Error != "" {
		log.Warn("source failed", zap.String("error", report.Error))
	}
	if report.StructuralMismatch {
		log.Error("source structure changed upstream", zap.Strings("missing", report.MissingFields))
	}
	if len(records) == 0 {
		log.Info("source yielded no records")
		return
	}

	written, err := o.store.UpsertBatch(ctx, table, records)
	if err != nil {
		log.Error("batch write failed", zap.Error(err))
		report.Error = err.Error()
		return
	}
	report.Written = written
	log.Info("source persisted",
		zap.Int("extracted", report.Extracted),
		zap.Int("written", written),
	)
}
