package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/batch-admission/internal/app"
)

var sweepBatch uint64

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire lapsed seat holds",
	Long: `sweep moves HELD seat holds whose expiry has passed to EXPIRED. The
server does this lazily on every reservation; run sweep to make the
availability figures exact between reservations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.Services.Sweeper.Run(ctx, sweepBatch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d hold(s)\n", n)
			return nil
		})
	},
}

func init() {
	sweepCmd.Flags().Uint64Var(&sweepBatch, "batch", 0, "Only sweep this batch id (default: all batches)")
}
