package main

import (
	"github.com/spf13/cobra"

	"github.com/xraph/reckon"
)

func newQuoteCmd(a *app) *cobra.Command {
	var (
		debug     bool
		reporting string
	)

	cmd := &cobra.Command{
		Use:   "quote [file]",
		Short: "Price a document without persisting it",
		Long: `Read a quote request as JSON from file (or stdin with "-") and print the
priced lines and totals. Nothing is written to the store.`,
		Example: `  # Price a document
  reckon quote quote.json

  # Include the tax breakdown and the step-by-step trace
  reckon quote quote.json --debug

  # Also show the grand total in USD
  echo '{"currency":"NZD","lines":[{"quantity":"1","unit_price":"172.50","tax_inclusive":true,"tax_rate":"0.15"}]}' |
    reckon quote - --reporting USD`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req reckon.QuoteRequest
			if err := readJSON(args[0], &req); err != nil {
				return err
			}
			if debug {
				req.Debug = true
			}
			if reporting != "" {
				req.ReportingCurrency = reporting
			}

			q, err := a.engine.CalculateQuote(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.print(q)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "include the tax breakdown and calculation trace")
	cmd.Flags().StringVar(&reporting, "reporting", "", "currency to convert the grand total into")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the store schema and seed currencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.engine.Store().Migrate(cmd.Context()); err != nil {
				return err
			}
			currencies, err := a.engine.ListCurrencies(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(map[string]any{
				"driver":     a.cfg.Store.Driver,
				"currencies": len(currencies),
			})
		},
	}
}

func newPurgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-idempotency",
		Short: "Delete idempotency records past their replay window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.engine.PurgeExpiredIdempotency(cmd.Context(), a.actor())
			if err != nil {
				return err
			}
			return a.print(map[string]int64{"deleted": n})
		},
	}
}
