// Package id defines the identifiers of invoices, their lines, payments,
// exchange rates, idempotency records and quotes.
//
// An identifier is a TypeID: "inv_01h455vb4pex5vsknk084sn02q". The prefix
// names the entity, so a payment ID handed to an invoice lookup fails at
// parse time instead of at the store. Suffixes are UUIDv7, so IDs created
// later sort later.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix is the entity tag in front of the underscore.
type Prefix string

const (
	PrefixInvoice     Prefix = "inv"
	PrefixLineItem    Prefix = "li"
	PrefixPayment     Prefix = "pay"
	PrefixFXRate      Prefix = "fx"
	PrefixIdempotency Prefix = "idem"
	PrefixQuote       Prefix = "quote"
)

var entities = map[Prefix]string{
	PrefixInvoice:     "invoice",
	PrefixLineItem:    "invoice line",
	PrefixPayment:     "payment",
	PrefixFXRate:      "exchange rate",
	PrefixIdempotency: "idempotency record",
	PrefixQuote:       "quote",
}

// Entity returns the human name of the entity p identifies, or the prefix
// itself when it is not one of reckon's.
func (p Prefix) Entity() string {
	if name, ok := entities[p]; ok {
		return name
	}
	return string(p)
}

// ID identifies one reckon entity. The zero value is Nil and stores as NULL.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates an ID for the entity p. It panics on a malformed prefix.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse accepts any well-formed TypeID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and requires it to identify the expected entity.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != expected {
		return Nil, fmt.Errorf("id: %q has prefix %q (%s), want %q (%s)", s, got, got.Entity(), expected, expected.Entity())
	}
	return parsed, nil
}

// ParseOptional is ParseWithPrefix for nullable reference columns: the empty
// string is Nil.
func ParseOptional(s string, expected Prefix) (ID, error) {
	if s == "" {
		return Nil, nil
	}
	return ParseWithPrefix(s, expected)
}

// The aliases document which entity a field or parameter holds; they do not
// add type safety on their own. Prefix checks happen in the Parse helpers.
type (
	InvoiceID     = ID
	LineItemID    = ID
	PaymentID     = ID
	FXRateID      = ID
	IdempotencyID = ID
	QuoteID       = ID
)

func NewInvoiceID() ID     { return New(PrefixInvoice) }
func NewLineItemID() ID    { return New(PrefixLineItem) }
func NewPaymentID() ID     { return New(PrefixPayment) }
func NewFXRateID() ID      { return New(PrefixFXRate) }
func NewIdempotencyID() ID { return New(PrefixIdempotency) }
func NewQuoteID() ID       { return New(PrefixQuote) }

func ParseInvoiceID(s string) (ID, error)     { return ParseWithPrefix(s, PrefixInvoice) }
func ParseLineItemID(s string) (ID, error)    { return ParseWithPrefix(s, PrefixLineItem) }
func ParsePaymentID(s string) (ID, error)     { return ParseWithPrefix(s, PrefixPayment) }
func ParseFXRateID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixFXRate) }
func ParseIdempotencyID(s string) (ID, error) { return ParseWithPrefix(s, PrefixIdempotency) }
func ParseQuoteID(s string) (ID, error)       { return ParseWithPrefix(s, PrefixQuote) }

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the entity tag, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

func (i ID) IsNil() bool { return !i.valid }

// MarshalText encodes Nil as an empty string so JSON carries "" rather than
// a placeholder ID.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *ID) UnmarshalText(data []byte) error {
	return i.set(string(data))
}

// Value stores Nil as NULL so optional references such as an invoice's
// fx_rate_id stay unset.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.set(v)
	case []byte:
		return i.set(string(v))
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}

func (i *ID) set(s string) error {
	if s == "" {
		*i = Nil
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
