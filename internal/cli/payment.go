package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iliyamo/batch-admission/internal/app"
	"github.com/iliyamo/batch-admission/internal/model"
	"github.com/iliyamo/batch-admission/internal/service"
)

var paymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "Inspect and finalize payments",
}

var paymentStatusCmd = &cobra.Command{
	Use:   "status <tran_id>",
	Short: "Show a payment and its seat hold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			v, err := a.Services.Finalization.PaymentStatus(ctx, args[0])
			if err != nil {
				return err
			}
			p := v.Payment
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "tran_id\t%s\n", p.TranID)
			fmt.Fprintf(w, "status\t%s\n", p.Status)
			fmt.Fprintf(w, "application\t%d\n", p.ApplicationID)
			fmt.Fprintf(w, "batch\t%d\n", p.Context.BatchID)
			fmt.Fprintf(w, "amount\t%s %s\n", model.FormatMinor(p.AmountMinor), p.Currency)
			fmt.Fprintf(w, "gateway\t%s\n", p.Gateway)
			if p.ValID != "" {
				fmt.Fprintf(w, "val_id\t%s\n", p.ValID)
			}
			if p.ValidatedAt != nil {
				fmt.Fprintf(w, "validated_at\t%s\n", p.ValidatedAt.Format("2006-01-02 15:04:05Z07:00"))
			}
			if v.Hold != nil {
				fmt.Fprintf(w, "hold\t%s (expires %s)\n", v.Hold.Status, v.Hold.ExpiresAt.Format("2006-01-02 15:04:05Z07:00"))
			}
			return w.Flush()
		})
	},
}

var paymentFinalizeCmd = &cobra.Command{
	Use:   "finalize <tran_id> [val_id]",
	Short: "Re-run gateway validation for a payment",
	Long: `finalize asks the gateway about a payment again, for example after an
IPN was lost while the validator was unavailable. Without val_id the one
recorded on the payment is used.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := ""
		if len(args) == 2 {
			ref = args[1]
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			settled, err := a.Services.Finalization.Finalize(ctx, args[0], service.Assertion{Reference: ref})
			if err != nil {
				return err
			}
			if settled {
				fmt.Fprintln(cmd.OutOrStdout(), "payment settled")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "payment already settled")
			}
			return nil
		})
	},
}

func init() {
	paymentCmd.AddCommand(paymentStatusCmd)
	paymentCmd.AddCommand(paymentFinalizeCmd)
}
