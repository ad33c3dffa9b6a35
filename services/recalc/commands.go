package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/02loveslollipop/patio/internal/logging"
	"github.com/02loveslollipop/patio/internal/mileage"
	"github.com/02loveslollipop/patio/services/recalc/internal/batch"
	"github.com/02loveslollipop/patio/services/recalc/internal/config"
	"github.com/02loveslollipop/patio/services/recalc/internal/db"
)

var (
	allDryRun      bool
	allConcurrency int
)

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Recompute every vehicle that has service executions",
	Args:  cobra.NoArgs,
	RunE:  runAll,
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <vehicle-id>",
	Short: "Show how a vehicle's average is derived, step by step",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagnose,
}

func init() {
	allCmd.Flags().BoolVar(&allDryRun, "dry-run", false, "Compute and log without writing")
	allCmd.Flags().IntVar(&allConcurrency, "concurrency", 0, "Vehicles recomputed in parallel (default RECALC_CONCURRENCY or 4)")

	rootCmd.AddCommand(allCmd)
	rootCmd.AddCommand(diagnoseCmd)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = allDryRun
	}
	if cmd.Flags().Changed("concurrency") {
		if allConcurrency <= 0 {
			return cfg, fmt.Errorf("invalid --concurrency: %d", allConcurrency)
		}
		cfg.Concurrency = allConcurrency
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return cfg, nil
}

func runAll(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	logging.Info().Int("concurrency", cfg.Concurrency).Bool("dry_run", cfg.DryRun).Msg("recompute started")

	sum, err := batch.Run(ctx, db.Source{Pool: pool}, batch.Options{
		Concurrency:    cfg.Concurrency,
		VehicleTimeout: cfg.VehicleTimeout,
		DryRun:         cfg.DryRun,
	})
	if err != nil {
		return err
	}

	logging.Info().
		Int("total", sum.Total).
		Int("succeeded", sum.Succeeded()).
		Int("estimated", sum.Estimated).
		Int("absent", sum.Absent).
		Int("failed", sum.Failed).
		Bool("dry_run", cfg.DryRun).
		Msg("recompute finished")

	fmt.Fprintf(cmd.OutOrStdout(), "vehicles: %d  succeeded: %d  failed: %d\n", sum.Total, sum.Succeeded(), sum.Failed)
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d vehicles failed: %v", sum.Failed, sum.Total, sum.FailedIDs)
	}
	return nil
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	vehicleID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || vehicleID <= 0 {
		return fmt.Errorf("invalid vehicle id %q", args[0])
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	visits, err := db.FinalizedVisits(ctx, pool, vehicleID)
	if err != nil {
		return err
	}
	return printDiagnosis(cmd.OutOrStdout(), vehicleID, mileage.Diagnose(visits))
}

func printDiagnosis(w io.Writer, vehicleID int64, d mileage.Diagnosis) error {
	fmt.Fprintf(w, "vehicle %d: %d finalized visits, %d after removing repeated readings\n",
		vehicleID, len(d.Raw), len(d.Deduplicated))
	for _, c := range d.Checks {
		verdict := "discarded"
		if c.Accepted {
			verdict = "accepted"
		}
		fmt.Fprintf(w, "  #%d  %s  %8d km  (highest so far %d)  %s\n",
			c.Visit.ID, c.Visit.FinishedAt.Format("2006-01-02"), c.Visit.OdometerKM, c.LastValidKM, verdict)
	}
	fmt.Fprintf(w, "valid visits: %d  delta: %d km over %d days  average: %s km/day (%s)\n",
		len(d.Estimate.Valid), d.Estimate.DeltaKM, d.Estimate.DeltaDays,
		batch.FormatAverage(d.Estimate.AvgDailyKM), d.Estimate.Reason)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d.Estimate)
}
