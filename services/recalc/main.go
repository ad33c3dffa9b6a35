package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/02loveslollipop/patio/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "recalc",
	Short: "Recompute vehicle average daily distance from visit history",
	Long: `recalc rebuilds patio.vehicles.avg_daily_km from finalized service
executions. Use it after bulk imports or manual database fixes.`,
	SilenceUsage: true,
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Error().Err(err).Msg("recalc failed")
		cancel()
		os.Exit(1)
	}
}
