package cmd

import (
	"context"
	"fmt"
	"time"

	"databinding/core/config"
	"databinding/core/database"
	"databinding/core/flush"
	"databinding/core/logger"
	"databinding/core/query"
	"databinding/core/wire"
	"databinding/feature/grid"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the simulate command
	simRows     int
	simViewport int
	simStep     int
	simSteps    int
	simMinAge   int
	simSortBy   string
	simEstimate bool
	simAsync    bool
)

// simulateCmd scrolls a client through generated rows and reports what
// every round trip sends.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Scroll a simulated client through generated rows",
	Long: `Opens a grid session over generated in-memory rows, scrolls the viewport
and reports the update batches, size changes and pending keys of every round
trip. Useful to tune page size and sizing mode before pointing clients at a
real backend.

Examples:
  # Scroll 5 times by half a viewport
  simulate --rows 500 --viewport 40 --step 20 --steps 5

  # Estimated sizing, filtered and sorted
  simulate --estimate --min-age 40 --sort-by name`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simRows, "rows", 1000, "Number of generated rows")
	simulateCmd.Flags().IntVar(&simViewport, "viewport", 50, "Viewport length")
	simulateCmd.Flags().IntVar(&simStep, "step", 25, "Rows scrolled per round trip")
	simulateCmd.Flags().IntVar(&simSteps, "steps", 10, "Number of scroll round trips")
	simulateCmd.Flags().IntVar(&simMinAge, "min-age", 0, "Only keep rows with age >= min-age (0 disables)")
	simulateCmd.Flags().StringVar(&simSortBy, "sort-by", "", "Sort column (id, name, city, age)")
	simulateCmd.Flags().BoolVar(&simEstimate, "estimate", false, "Use estimated instead of exact sizing")
	simulateCmd.Flags().BoolVar(&simAsync, "async", false, "Fetch rows on background workers")

	RootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	binding := cfg.Binding
	binding.DefinedSize = !simEstimate
	binding.Async = simAsync

	var exec flush.Executor
	if simAsync {
		pool := flush.NewPoolExecutor(cfg.Flush.Workers, cfg.Flush.QueueSize)
		defer pool.Close()
		exec = pool
	}

	gridCfg := cfg.Grid
	gridCfg.MaxViewport = max(gridCfg.MaxViewport, simViewport)
	svc := grid.NewService(grid.NewMemoryBackend(grid.GenerateRows(simRows)), gridCfg, binding, l, nil, exec)

	created, err := svc.Create(ctx)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	id := created.Session
	defer svc.Close(id)
	printUpdate(l, "create", created)

	if simMinAge > 0 {
		u, err := svc.SetFilter(ctx, id, []database.Where{{Column: "age", Op: ">=", Value: simMinAge}})
		if err != nil {
			return fmt.Errorf("failed to set filter: %w", err)
		}
		printUpdate(l, "filter", u)
	}
	if simSortBy != "" {
		u, err := svc.SetSort(ctx, id, []query.SortOrder{query.Asc(simSortBy)})
		if err != nil {
			return fmt.Errorf("failed to set sort: %w", err)
		}
		printUpdate(l, "sort", u)
	}

	for i := range simSteps {
		u, err := svc.SetViewport(ctx, id, i*simStep, simViewport)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if simAsync {
			if u, err = svc.Poll(ctx, id, time.Second); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
		printUpdate(l, fmt.Sprintf("scroll %d", i), u)

		// the simulated client applies everything it received
		if u.LastUpdateID > 0 {
			if _, err := svc.Acknowledge(ctx, id, u.LastUpdateID); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
	}

	n, err := svc.Count(ctx, id)
	if err != nil {
		return err
	}
	l.Info("Simulation finished", zap.Int("size", n), zap.Int("steps", simSteps))
	return nil
}

// printUpdate reports an update using logger.
func printUpdate(l *zap.Logger, step string, u *grid.Update) {
	batches, _ := u.Batches.([]wire.Batch[database.Row])

	var sets, clears, rows int
	for _, b := range batches {
		for _, op := range b.Ops {
			switch op.Kind {
			case wire.OpSet:
				sets++
				rows += len(op.Entries)
			case wire.OpClear:
				clears++
			}
		}
	}

	fields := []zap.Field{
		zap.String("step", step),
		zap.Int("batches", len(batches)),
		zap.Int("set_ops", sets),
		zap.Int("clear_ops", clears),
		zap.Int("rows_sent", rows),
		zap.Uint64("last_update_id", u.LastUpdateID),
		zap.Int("pending_keys", u.PendingKeys),
	}
	if u.Count != nil {
		fields = append(fields, zap.Int("size", u.Count.Count), zap.Bool("estimated", u.Count.Estimated))
	}
	l.Info("Round trip", fields...)
}
