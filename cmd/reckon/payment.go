package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/reckon"
	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/types"
)

func newPaymentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Apply and void payments",
	}
	cmd.AddCommand(newPaymentApplyCmd(a), newPaymentVoidCmd(a))
	return cmd
}

func newPaymentApplyCmd(a *app) *cobra.Command {
	var (
		currency  string
		method    string
		reference string
		key       string
		received  string
	)

	cmd := &cobra.Command{
		Use:   "apply INVOICE_ID AMOUNT",
		Short: "Apply a payment to an invoice",
		Long: `Apply AMOUNT to the invoice. Pass --key to make the call safe to retry:
a repeated call with the same key and arguments returns the original
payment instead of paying twice.`,
		Example: `  reckon payment apply inv_01h455vb4pex5vsknk084sn02q 500.00 --currency NZD --key 7c1e`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			invID, err := id.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			amount, err := types.Parse(args[1], currency)
			if err != nil {
				return err
			}

			req := reckon.ApplyPaymentRequest{
				InvoiceID:      invID,
				Amount:         amount,
				Method:         method,
				Reference:      reference,
				IdempotencyKey: key,
			}
			if received != "" {
				if req.ReceivedAt, err = time.Parse(time.RFC3339, received); err != nil {
					return fmt.Errorf("received %q: want RFC 3339", received)
				}
			}

			r, err := a.engine.ApplyPayment(cmd.Context(), a.actor(), req)
			if err != nil {
				return err
			}
			return a.print(r)
		},
	}

	cmd.Flags().StringVar(&currency, "currency", "", "payment currency; must match the invoice (required)")
	cmd.Flags().StringVar(&method, "method", "", "payment method, e.g. bank_transfer")
	cmd.Flags().StringVar(&reference, "reference", "", "external reference")
	cmd.Flags().StringVar(&key, "key", "", "idempotency key")
	cmd.Flags().StringVar(&received, "received", "", "when the money arrived, RFC 3339 (default: now)")
	_ = cmd.MarkFlagRequired("currency")
	return cmd
}

func newPaymentVoidCmd(a *app) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "void PAYMENT_ID",
		Short: "Void a payment and recompute its invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payID, err := id.ParsePaymentID(args[0])
			if err != nil {
				return err
			}
			r, err := a.engine.VoidPayment(cmd.Context(), a.actor(), payID, reason)
			if err != nil {
				return err
			}
			return a.print(r)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the payment is voided (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}
