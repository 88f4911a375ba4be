// Package authz defines the permission oracle the engine consults before
// every mutation. The engine never decides permissions itself.
package authz

import "context"

// Permission keys checked by the engine.
const (
	InvoiceCreate   = "invoice.create"
	InvoiceSend     = "invoice.send"
	InvoiceWriteOff = "invoice.write_off"
	PaymentCreate   = "payment.create"
	PaymentVoid     = "payment.void"
	FXRateCreate    = "fxrate.create"
	CurrencyManage  = "currency.manage"
	MaintenanceRun  = "maintenance.run"
)

// Gate answers whether a user holds a permission.
type Gate interface {
	Allowed(ctx context.Context, userID, permission string) (bool, error)
}

// GateFunc is an adapter to use a plain function as a Gate.
type GateFunc func(ctx context.Context, userID, permission string) (bool, error)

// Allowed implements Gate.
func (f GateFunc) Allowed(ctx context.Context, userID, permission string) (bool, error) {
	return f(ctx, userID, permission)
}

// AllowAll grants every permission. Use it for tools and tests only.
func AllowAll() Gate {
	return GateFunc(func(context.Context, string, string) (bool, error) { return true, nil })
}

// Static grants the listed permissions per user.
type Static map[string][]string

// Allowed implements Gate.
func (s Static) Allowed(_ context.Context, userID, permission string) (bool, error) {
	for _, p := range s[userID] {
		if p == permission || p == "*" {
			return true, nil
		}
	}
	return false, nil
}
