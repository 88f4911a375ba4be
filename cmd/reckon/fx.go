package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/xraph/reckon/fxrate"
)

func newFXCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fx",
		Short: "Manage historical exchange rates",
	}
	cmd.AddCommand(newFXAddCmd(a), newFXResolveCmd(a), newFXListCmd(a))
	return cmd
}

// parseDate reads YYYY-MM-DD, defaulting to today (UTC).
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return fxrate.Date(time.Now()), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func newFXAddCmd(a *app) *cobra.Command {
	var (
		date     string
		source   string
		verified bool
	)

	cmd := &cobra.Command{
		Use:     "add BASE QUOTE RATE",
		Short:   "Store the price of one BASE in QUOTE from a date",
		Example: `  reckon fx add USD NZD 1.6342 --date 2026-03-01 --source ecb`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("rate %q: %w", args[2], err)
			}
			from, err := parseDate(date)
			if err != nil {
				return err
			}

			r, err := a.engine.AddFXRate(cmd.Context(), a.actor(), &fxrate.Rate{
				Base:          args[0],
				Quote:         args[1],
				Rate:          rate,
				EffectiveFrom: from,
				Source:        source,
				Verified:      verified,
			})
			if err != nil {
				return err
			}
			return a.print(r)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "effective date, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&source, "source", "manual", "where the rate came from")
	cmd.Flags().BoolVar(&verified, "verified", false, "mark the rate as verified")
	return cmd
}

func newFXResolveCmd(a *app) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "resolve BASE QUOTE",
		Short: "Show the rate in force on a date, using the inverse pair if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseDate(date)
			if err != nil {
				return err
			}
			r, err := a.engine.ResolveFXRate(cmd.Context(), args[0], args[1], asOf)
			if err != nil {
				return err
			}
			return a.print(r)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "as-of date, YYYY-MM-DD (default: today)")
	return cmd
}

func newFXListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [BASE QUOTE]",
		Short: "List stored rates",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("want no arguments or BASE QUOTE, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var base, quote string
			if len(args) == 2 {
				base, quote = args[0], args[1]
			}
			rates, err := a.engine.ListFXRates(cmd.Context(), base, quote)
			if err != nil {
				return err
			}
			return a.print(rates)
		},
	}
}
