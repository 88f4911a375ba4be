package main

import (
	"github.com/spf13/cobra"

	"github.com/xraph/reckon"
	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/invoice"
	"github.com/xraph/reckon/payment"
)

func newInvoiceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Create, send and inspect invoices",
	}
	cmd.AddCommand(
		newInvoiceCreateCmd(a),
		newInvoiceSendCmd(a),
		newInvoiceShowCmd(a),
		newInvoiceListCmd(a),
		newInvoiceWriteOffCmd(a),
		newInvoiceOverdueCmd(a),
	)
	return cmd
}

func newInvoiceCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create [file]",
		Short: "Create a draft invoice from a JSON request",
		Long: `Read an invoice request as JSON from file (or stdin with "-"), calculate it
and store it as a draft. Totals are computed here; metadata may not carry
monetary fields.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req reckon.CreateInvoiceRequest
			if err := readJSON(args[0], &req); err != nil {
				return err
			}
			inv, err := a.engine.CreateInvoice(cmd.Context(), a.actor(), req)
			if err != nil {
				return err
			}
			return a.print(inv)
		},
	}
}

func newInvoiceSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send INVOICE_ID",
		Short: "Mark a draft invoice as sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invID, err := id.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			inv, err := a.engine.SendInvoice(cmd.Context(), a.actor(), invID)
			if err != nil {
				return err
			}
			return a.print(inv)
		},
	}
}

// invoiceView is an invoice with its payments.
type invoiceView struct {
	*invoice.Invoice
	Payments []*payment.Payment `json:"payments"`
}

func newInvoiceShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show INVOICE_ID",
		Short: "Show an invoice and its payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invID, err := id.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			inv, err := a.engine.GetInvoice(cmd.Context(), a.actor(), invID)
			if err != nil {
				return err
			}
			payments, err := a.engine.ListPayments(cmd.Context(), a.actor(), invID)
			if err != nil {
				return err
			}
			return a.print(invoiceView{Invoice: inv, Payments: payments})
		},
	}
}

func newInvoiceListCmd(a *app) *cobra.Command {
	var (
		status  string
		overdue bool
		limit   int
		offset  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the organization's invoices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := invoice.ListOpts{
				Status: invoice.Status(status),
				Limit:  limit,
				Offset: offset,
			}
			if cmd.Flags().Changed("overdue") {
				opts.Overdue = &overdue
			}
			list, err := a.engine.ListInvoices(cmd.Context(), a.actor(), opts)
			if err != nil {
				return err
			}
			return a.print(list)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only invoices in this status")
	cmd.Flags().BoolVar(&overdue, "overdue", false, "only overdue (or, with =false, not overdue) invoices")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum invoices to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "invoices to skip")
	return cmd
}

func newInvoiceWriteOffCmd(a *app) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "write-off INVOICE_ID",
		Short: "Write off the outstanding balance of an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invID, err := id.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			inv, err := a.engine.WriteOffInvoice(cmd.Context(), a.actor(), invID, reason)
			if err != nil {
				return err
			}
			return a.print(inv)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the balance will not be collected (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newInvoiceOverdueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-overdue",
		Short: "Recompute the overdue flag of open invoices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.engine.RefreshOverdue(cmd.Context(), a.actor())
			if err != nil {
				return err
			}
			return a.print(map[string]int{"changed": n})
		},
	}
}
