package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xraph/reckon"
	"github.com/xraph/reckon/config"
	"github.com/xraph/reckon/observability"
	"github.com/xraph/reckon/store/dial"
)

var version = "0.1.0"

// app is the state shared by all subcommands. It is built once in the
// root's PersistentPreRunE.
type app struct {
	cfgPath string
	orgID   string
	userID  string

	cfg    config.Config
	logger *zap.Logger
	engine *reckon.Engine
	out    io.Writer
}

func (a *app) actor() reckon.Actor {
	return reckon.Actor{OrganizationID: a.orgID, UserID: a.userID}
}

func newRootCmd() *cobra.Command {
	a := &app{out: os.Stdout}

	root := &cobra.Command{
		Use:   "reckon",
		Short: "Quoting, invoicing and payment-ledger engine",
		Long: `reckon calculates quotes, issues invoices and applies payments with
exact decimal arithmetic, historical exchange rates and idempotent retries.

Settings come from an optional YAML file (--config), a .env file and
RECKON_* environment variables, in that order.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&a.orgID, "org", "default", "organization the command acts for")
	root.PersistentFlags().StringVar(&a.userID, "user", "cli", "user the command acts as")

	root.AddCommand(
		newQuoteCmd(a),
		newMigrateCmd(a),
		newFXCmd(a),
		newInvoiceCmd(a),
		newPaymentCmd(a),
		newPurgeCmd(a),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.logger = logger

	s, err := dial.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}

	opts := []reckon.Option{
		reckon.WithConfig(cfg),
		reckon.WithLogger(logger),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, reckon.WithMetrics(observability.NewPrometheusFactory(nil, prometheus.Labels{
			"namespace": cfg.Metrics.Namespace,
		})))
	}

	a.engine = reckon.New(s, opts...)
	if err := a.engine.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}
	return nil
}

func (a *app) close() error {
	if a.engine == nil {
		return nil
	}
	err := a.engine.Stop()
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
	return err
}

// print writes v as indented JSON.
func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readJSON decodes the file at path, or stdin for "-", into v.
func readJSON(path string, v any) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
