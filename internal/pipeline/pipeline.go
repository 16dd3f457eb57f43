// Package pipeline sequences the merge-and-analyze stages into a single
// full rebuild of the index: normalize → clean → merge → resolve → metrics
// → index. A run either completes or fails with a stage-tagged error; there
// is no partial resume and no retry inside the core.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/papapumpkin/pulsar/internal/clean"
	"github.com/papapumpkin/pulsar/internal/depgraph"
	"github.com/papapumpkin/pulsar/internal/merge"
	"github.com/papapumpkin/pulsar/internal/normalize"
	"github.com/papapumpkin/pulsar/internal/source"
	"github.com/papapumpkin/pulsar/internal/store"
	"github.com/papapumpkin/pulsar/internal/telemetry"
)

// DefaultBatchSize is the backfill commit cadence used when the caller does
// not configure one.
const DefaultBatchSize = 100

// Options configures a pipeline run.
type Options struct {
	// BatchSize bounds how many backfill updates share one transaction.
	BatchSize int
	// Events receives the structured run log; nil disables telemetry.
	Events *telemetry.Emitter
	// ReportDir, when non-empty, is where the TOML run report is written.
	ReportDir string
}

// Pipeline drives one full index rebuild against a store.
type Pipeline struct {
	store *store.Store
	opts  Options
}

// New creates a Pipeline over an open store. The store handle is passed in
// explicitly; nothing in the pipeline reaches for ambient globals.
func New(s *store.Store, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Pipeline{store: s, opts: opts}
}

// Run executes every stage in order and returns the per-stage row counts.
// The store is cleared first: each run rebuilds the whole index.
func (p *Pipeline) Run(ctx context.Context, set *source.Set) (*Report, error) {
	report := newReport()
	emit := p.opts.Events

	emit.Emit(telemetry.Event{Kind: telemetry.KindRunStart}) //nolint:errcheck

	if age, ok := set.Ager().Age(); ok {
		log.Printf("pipeline: extract age %s", age.Round(time.Second))
		emit.Emit(telemetry.Event{ //nolint:errcheck
			Kind: telemetry.KindSourceAge,
			Data: map[string]int64{"age_ns": int64(age)},
		})
	}

	err := p.stage(ctx, report, StageReset, func(ctx context.Context) (int, error) {
		if err := p.store.Reset(ctx); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return 0, nil
	})
	if err != nil {
		return report, err
	}

	err = p.stage(ctx, report, StageNormalize, func(ctx context.Context) (int, error) {
		counts, err := normalize.Run(ctx, p.store, set)
		if err != nil {
			var missing source.ErrMissingSource
			if errors.As(err, &missing) {
				return 0, fmt.Errorf("%w: %s", ErrMissingExtract, string(missing))
			}
			return 0, err
		}
		logAbsent(counts)
		return counts.Total(), nil
	})
	if err != nil {
		return report, err
	}

	err = p.stage(ctx, report, StageClean, func(ctx context.Context) (int, error) {
		repaired, err := clean.StagedRequires(ctx, p.store)
		if err != nil {
			return 0, err
		}
		emit.Emit(telemetry.Event{ //nolint:errcheck
			Kind:  telemetry.KindRepair,
			Stage: StageClean,
			Data:  map[string]int{"repaired": repaired},
		})
		return repaired, nil
	})
	if err != nil {
		return report, err
	}

	err = p.stage(ctx, report, StageMerge, func(ctx context.Context) (int, error) {
		res, err := merge.Run(ctx, p.store, p.opts.BatchSize)
		if err != nil {
			return 0, err
		}
		emit.Emit(telemetry.Event{ //nolint:errcheck
			Kind:  telemetry.KindBackfill,
			Stage: StageMerge,
			Data:  map[string]int{"ratings": res.RatingsApplied, "metas": res.MetasApplied},
		})
		return res.Authors + res.Distributions + res.Modules + res.Tickets, nil
	})
	if err != nil {
		return report, err
	}

	err = p.stage(ctx, report, StageResolve, func(ctx context.Context) (int, error) {
		_, deps, err := depgraph.Resolve(ctx, p.store)
		return deps, err
	})
	if err != nil {
		return report, err
	}

	err = p.stage(ctx, report, StageMetrics, func(ctx context.Context) (int, error) {
		g, err := depgraph.LoadGraph(ctx, p.store)
		if err != nil {
			return 0, err
		}
		n, err := depgraph.Backfill(ctx, p.store, g.Compute(), p.opts.BatchSize)
		if err != nil {
			return n, err
		}
		emit.Emit(telemetry.Event{ //nolint:errcheck
			Kind:  telemetry.KindBackfill,
			Stage: StageMetrics,
			Data:  map[string]int{"distributions": n},
		})
		return n, nil
	})
	if err != nil {
		return report, err
	}

	err = p.stage(ctx, report, StageIndex, func(ctx context.Context) (int, error) {
		return 0, p.store.CreateIndexes(ctx)
	})
	if err != nil {
		return report, err
	}

	report.finish()
	emit.Emit(telemetry.Event{ //nolint:errcheck
		Kind: telemetry.KindRunDone,
		Data: telemetry.StageResult{Rows: report.TotalRows(), DurationNs: int64(report.Duration)},
	})

	if p.opts.ReportDir != "" {
		if err := SaveReport(p.opts.ReportDir, report); err != nil {
			// The index itself is complete; a report write failure is not
			// worth discarding the run over.
			log.Printf("pipeline: save report: %v", err)
		}
	}
	return report, nil
}

// stage runs one pipeline step, timing it and emitting telemetry. Any error
// is wrapped into a StageError naming the stage.
func (p *Pipeline) stage(ctx context.Context, report *Report, name string, fn func(context.Context) (int, error)) error {
	emit := p.opts.Events
	emit.Emit(telemetry.Event{Kind: telemetry.KindStageStart, Stage: name}) //nolint:errcheck

	start := time.Now()
	rows, err := fn(ctx)
	elapsed := time.Since(start)
	if err != nil {
		return stageErr(name, "", err)
	}

	report.addStage(name, rows, elapsed)
	log.Printf("pipeline: %s done (%d rows, %s)", name, rows, elapsed.Round(time.Millisecond))
	emit.Emit(telemetry.Event{ //nolint:errcheck
		Kind:  telemetry.KindStageDone,
		Stage: name,
		Data:  telemetry.StageResult{Rows: rows, DurationNs: int64(elapsed)},
	})
	return nil
}

// logAbsent notes optional extracts that were missing; their columns stay
// null and the run continues.
func logAbsent(c normalize.Counts) {
	absent := []struct {
		name string
		n    int
	}{
		{"uploads", c.Uploads}, {"testers", c.Testers}, {"ratings", c.Ratings},
		{"meta", c.Metas}, {"tickets", c.Tickets},
	}
	for _, a := range absent {
		if a.n < 0 {
			log.Printf("pipeline: optional extract %s absent, columns stay null", a.name)
		}
	}
}
