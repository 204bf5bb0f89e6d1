package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iliyamo/batch-admission/internal/app"
	"github.com/iliyamo/batch-admission/internal/model"
)

var (
	reconcileStatus string
	reconcileLimit  int
	resolveNote     string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Work through validated payments that found no seat or were duplicates",
}

var reconcileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reconciliation cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		status := model.ReconciliationStatus(strings.ToUpper(reconcileStatus))
		if status == "ALL" {
			status = ""
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			cases, err := a.Services.Reconciliation.List(ctx, status, reconcileLimit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTRAN_ID\tAPPLICATION\tBATCH\tREASON\tSTATUS\tCREATED")
			for _, c := range cases {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\t%s\n",
					c.ID, c.TranID, c.ApplicationID, c.BatchID, c.Reason, c.Status, c.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		})
	},
}

var reconcileResolveCmd = &cobra.Command{
	Use:   "resolve <case_id>",
	Short: "Mark a reconciliation case resolved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid case id %q", args[0])
		}
		if strings.TrimSpace(resolveNote) == "" {
			return errors.New("--note is required")
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Services.Reconciliation.Resolve(ctx, id, resolveNote); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "case %d resolved\n", id)
			return nil
		})
	},
}

func init() {
	reconcileListCmd.Flags().StringVar(&reconcileStatus, "status", "OPEN", "OPEN, RESOLVED or ALL")
	reconcileListCmd.Flags().IntVar(&reconcileLimit, "limit", 100, "Maximum number of cases")
	reconcileResolveCmd.Flags().StringVar(&resolveNote, "note", "", "What was done (refund, manual seat)")
	reconcileCmd.AddCommand(reconcileListCmd)
	reconcileCmd.AddCommand(reconcileResolveCmd)
}
