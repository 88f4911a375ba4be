package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), out.String())
	return out.Bytes()
}

func assertDecimal(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	assert.True(t, got.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got)
}

func TestQuoteCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("RECKON_STORE_DRIVER", "memory")
	t.Setenv("RECKON_LOG_LEVEL", "error")

	path := filepath.Join(dir, "quote.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"currency": "NZD",
		"lines": [{"quantity": "1", "unit_price": "172.50", "tax_inclusive": true, "tax_rate": "0.15"}]
	}`), 0o600))

	var got struct {
		Currency string `json:"currency"`
		Totals   struct {
			Subtotal   struct{ Amount decimal.Decimal } `json:"subtotal"`
			TaxAmount  struct{ Amount decimal.Decimal } `json:"tax_amount"`
			GrandTotal struct{ Amount decimal.Decimal } `json:"grand_total"`
		} `json:"totals"`
		Trace json.RawMessage `json:"trace"`
	}
	require.NoError(t, json.Unmarshal(run(t, "quote", path, "--debug"), &got))

	assert.Equal(t, "NZD", got.Currency)
	assertDecimal(t, got.Totals.Subtotal.Amount, "150.00")
	assertDecimal(t, got.Totals.TaxAmount.Amount, "22.50")
	assertDecimal(t, got.Totals.GrandTotal.Amount, "172.50")
	assert.NotEmpty(t, got.Trace)
}

func TestSQLiteLifecycle(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("RECKON_STORE_DRIVER", "sqlite")
	t.Setenv("RECKON_STORE_DSN", filepath.Join(dir, "reckon.db"))
	t.Setenv("RECKON_LOG_LEVEL", "error")

	run(t, "migrate")

	req := filepath.Join(dir, "invoice.json")
	require.NoError(t, os.WriteFile(req, []byte(`{
		"currency": "NZD",
		"lines": [{"quantity": "1", "unit_price": "1000.00"}]
	}`), 0o600))

	var inv struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(run(t, "invoice", "create", req), &inv))
	assert.Equal(t, "draft", inv.Status)

	var receipt struct {
		Replayed bool `json:"replayed"`
		Invoice  struct {
			Status string `json:"status"`
		} `json:"invoice"`
	}
	require.NoError(t, json.Unmarshal(run(t, "payment", "apply", inv.ID, "500.00", "--currency", "NZD", "--key", "k1"), &receipt))
	assert.False(t, receipt.Replayed)
	assert.Equal(t, "part_paid", receipt.Invoice.Status)

	require.NoError(t, json.Unmarshal(run(t, "payment", "apply", inv.ID, "500.00", "--currency", "NZD", "--key", "k1"), &receipt))
	assert.True(t, receipt.Replayed, "same key replays across processes")

	var shown struct {
		PaidAmount struct{ Amount decimal.Decimal } `json:"paid_amount"`
		Payments   []json.RawMessage       `json:"payments"`
	}
	require.NoError(t, json.Unmarshal(run(t, "invoice", "show", inv.ID), &shown))
	assertDecimal(t, shown.PaidAmount.Amount, "500.00")
	assert.Len(t, shown.Payments, 1)
}
