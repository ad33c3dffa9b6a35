// Package batch recomputes the average daily distance of every vehicle.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/02loveslollipop/patio/internal/logging"
	"github.com/02loveslollipop/patio/internal/metrics"
	"github.com/02loveslollipop/patio/internal/mileage"
)

// Source lists vehicles and recomputes one at a time.
type Source interface {
	VehicleIDs(ctx context.Context) ([]int64, error)
	Recompute(ctx context.Context, vehicleID int64, write bool) (mileage.Estimate, error)
}

// Options control a batch run.
type Options struct {
	Concurrency    int
	VehicleTimeout time.Duration
	DryRun         bool
}

// Summary counts the outcome of a run.
type Summary struct {
	Total     int     `json:"total"`
	Estimated int     `json:"estimated"`
	Absent    int     `json:"absent"`
	Failed    int     `json:"failed"`
	FailedIDs []int64 `json:"failed_ids,omitempty"`
}

// Succeeded is the number of vehicles recomputed without error.
func (s Summary) Succeeded() int {
	return s.Estimated + s.Absent
}

// Run recomputes every vehicle Source lists. A failing vehicle is logged and
// counted; the rest of the batch carries on. Only listing failures and
// context cancellation abort the run.
func Run(ctx context.Context, src Source, opts Options) (Summary, error) {
	ids, err := src.VehicleIDs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list vehicles: %w", err)
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = 1
	}

	var (
		mu  sync.Mutex
		sum = Summary{Total: len(ids)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			est, err := recomputeOne(gctx, src, id, opts)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				sum.Failed++
				sum.FailedIDs = append(sum.FailedIDs, id)
			case est.Present():
				sum.Estimated++
			default:
				sum.Absent++
			}
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

func recomputeOne(ctx context.Context, src Source, vehicleID int64, opts Options) (mileage.Estimate, error) {
	if opts.VehicleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.VehicleTimeout)
		defer cancel()
	}

	start := time.Now()
	est, err := src.Recompute(ctx, vehicleID, !opts.DryRun)
	metrics.RecordRecompute(metrics.TriggerBatch, est.Present(), err, time.Since(start))

	if err != nil {
		logging.Error().Err(err).Int64("vehicle_id", vehicleID).Msg("recompute failed")
		return est, err
	}

	logging.Debug().
		Int64("vehicle_id", vehicleID).
		Bool("dry_run", opts.DryRun).
		Str("reason", string(est.Reason)).
		Str("avg_daily_km", FormatAverage(est.AvgDailyKM)).
		Msg("vehicle recomputed")
	return est, nil
}

// FormatAverage prints an optional average for logs and terminal output.
func FormatAverage(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%.3f", *v)
}
