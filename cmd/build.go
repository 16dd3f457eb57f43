package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/config"
	"github.com/papapumpkin/pulsar/internal/pipeline"
	"github.com/papapumpkin/pulsar/internal/source"
	"github.com/papapumpkin/pulsar/internal/store"
	"github.com/papapumpkin/pulsar/internal/telemetry"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the index from the extract directory",
	Long: `Runs the full pipeline: load the JSONL extracts, clean and merge them,
resolve the dependency graph, compute weight and volatility, and write the
SQLite index.

With --watch, pulsar stays running and rebuilds whenever an extract file
changes.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().String("extracts", "", "override extract directory")
	buildCmd.Flags().String("db", "", "override database path")
	buildCmd.Flags().Int("batch-size", 0, "override backfill batch size")
	buildCmd.Flags().BoolP("watch", "w", false, "rebuild when extract files change")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyBuildFlags(cmd, &cfg)

	ctx, cancel := signalContext()
	defer cancel()

	p, cleanup, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := rebuild(ctx, p, cfg.ExtractDir); err != nil {
		return err
	}

	if watch, _ := cmd.Flags().GetBool("watch"); !watch {
		return nil
	}
	return watchAndRebuild(ctx, p, cfg.ExtractDir)
}

// applyBuildFlags applies CLI flag values to the loaded config.
func applyBuildFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("extracts"); v != "" {
		cfg.ExtractDir = v
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DBPath = v
	}
	if v, _ := cmd.Flags().GetInt("batch-size"); v > 0 {
		cfg.BatchSize = v
	}
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		cfg.Verbose = true
	}
}

// buildPipeline opens the store and telemetry sink and wires the pipeline.
// The returned cleanup closes both.
func buildPipeline(ctx context.Context, cfg config.Config) (*pipeline.Pipeline, func(), error) {
	s, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store %s: %w", cfg.DBPath, err)
	}

	var events *telemetry.Emitter
	if cfg.TelemetryPath != "" {
		events, err = telemetry.NewEmitter(cfg.TelemetryPath)
		if err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("open telemetry %s: %w", cfg.TelemetryPath, err)
		}
	}

	cleanup := func() {
		events.Close()
		s.Close()
	}
	p := pipeline.New(s, pipeline.Options{
		BatchSize: cfg.BatchSize,
		Events:    events,
		ReportDir: cfg.ReportDir,
	})
	return p, cleanup, nil
}

func rebuild(ctx context.Context, p *pipeline.Pipeline, extractDir string) error {
	set, err := source.OpenDir(extractDir)
	if err != nil {
		return fmt.Errorf("open extracts %s: %w", extractDir, err)
	}
	report, err := p.Run(ctx, set)
	if err != nil {
		return err
	}
	log.Printf("build: done (%d rows, %s)", report.TotalRows(), report.Duration.Round(time.Millisecond))
	return nil
}

// watchAndRebuild blocks, rerunning the pipeline each time an extract file
// settles, until the context is canceled.
func watchAndRebuild(ctx context.Context, p *pipeline.Pipeline, extractDir string) error {
	w, err := source.NewWatcher(extractDir)
	if err != nil {
		return fmt.Errorf("watch extracts %s: %w", extractDir, err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("watch extracts %s: %w", extractDir, err)
	}
	defer w.Stop()

	log.Printf("build: watching %s for changes", extractDir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case changed, ok := <-w.Changes:
			if !ok {
				return nil
			}
			log.Printf("build: %s changed, rebuilding", changed)
			if err := rebuild(ctx, p, extractDir); err != nil {
				// Keep watching; the next extract drop may be complete.
				log.Printf("build: rebuild failed: %v", err)
			}
		}
	}
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
