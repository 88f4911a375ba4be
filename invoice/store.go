package invoice

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/reckon/id"
)

// Store persists invoices. Mutations of an existing invoice go through the
// unit of work in the store package so they happen under the invoice lock.
type Store interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*Invoice, error)
	ListInvoices(ctx context.Context, orgID string, opts ListOpts) ([]*Invoice, error)
}

// ListOpts filters ListInvoices.
type ListOpts struct {
	Status   Status
	Currency string
	Overdue  *bool

	// Metadata matches values inside the schema-less metadata document.
	// Keys are dotted paths relative to metadata ("project.code").
	Metadata map[string]any

	Limit  int
	Offset int
}

// FilterKeys returns the fully-qualified filter keys for guard checks.
func (o ListOpts) FilterKeys() map[string]any {
	out := make(map[string]any, len(o.Metadata))
	for k, v := range o.Metadata {
		out["metadata."+k] = v
	}
	return out
}

// Matches reports whether inv satisfies every filter in o. Metadata values
// compare by their printed form so 5, 5.0 and "5" decoded from different
// sources agree.
func (o ListOpts) Matches(inv *Invoice) bool {
	if o.Status != "" && inv.Status != o.Status {
		return false
	}
	if o.Currency != "" && inv.Currency != o.Currency {
		return false
	}
	if o.Overdue != nil && inv.Overdue != *o.Overdue {
		return false
	}
	for path, want := range o.Metadata {
		got, ok := Lookup(inv.Metadata, path)
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// Lookup resolves a dotted path inside a metadata document.
func Lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}
