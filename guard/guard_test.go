package guard_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/reckon/guard"
	"github.com/xraph/reckon/types"
)

func requireForbidden(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.ErrorIs(t, err, types.ErrForbiddenField)

	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, field, ve.Field)
}

func TestNormalize(t *testing.T) {
	for _, k := range []string{"unit_price", "unitPrice", "Unit-Price", "UNIT PRICE"} {
		assert.Equal(t, "unitprice", guard.Normalize(k), k)
		assert.True(t, guard.IsForbidden(k), k)
	}
	assert.False(t, guard.IsForbidden("project_code"))
	assert.False(t, guard.IsForbidden("priceList"))
}

func TestCheckMetadata(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		field   string
	}{
		{"top level", map[string]any{"note": "x", "grandTotal": 10}, "metadata.grandTotal"},
		{"nested map", map[string]any{"project": map[string]any{"tax_amount": 1}}, "metadata.project.tax_amount"},
		{
			"inside array",
			map[string]any{"items": []any{
				map[string]any{"sku": "a"},
				map[string]any{"sku": "b"},
				map[string]any{"unitPrice": "12.00"},
			}},
			"metadata.items[2].unitPrice",
		},
		{"typed slice of maps", map[string]any{"rows": []map[string]string{{"Currency": "USD"}}}, "metadata.rows[0].Currency"},
		{"raw json", json.RawMessage(`{"a":{"b":[{"status":"paid"}]}}`), "metadata.a.b[0].status"},
		{
			"struct field",
			struct {
				Project string `json:"project"`
				Amount  string `json:"amount"`
			}{"x", "1"},
			"metadata.amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireForbidden(t, guard.CheckMetadata("metadata", tt.payload), tt.field)
		})
	}
}

func TestCheckMetadata_Allowed(t *testing.T) {
	ok := []any{
		nil,
		map[string]any{},
		map[string]any{"project": map[string]any{"code": "A1", "tags": []any{"x", 1, true}}},
		json.RawMessage(`{"client_ref":"c-1","notes":["paid by card"]}`),
		json.RawMessage(nil),
		[]byte("amount"),
	}
	for _, p := range ok {
		assert.NoError(t, guard.CheckMetadata("metadata", p))
	}

	err := guard.CheckMetadata("metadata", json.RawMessage(`{bad`))
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestCheckMetadata_DeterministicPath(t *testing.T) {
	payload := map[string]any{"b": map[string]any{"total": 1}, "a": map[string]any{"price": 2}}
	for range 20 {
		requireForbidden(t, guard.CheckMetadata("metadata", payload), "metadata.a.price")
	}
}

func TestCheckFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter map[string]any
		field  string
	}{
		{"dotted path", map[string]any{"metadata.total": 5}, "filter.metadata.total"},
		{"postgres arrow", map[string]any{"metadata->>'unit_price'": "1"}, "filter.metadata->>'unit_price'"},
		{"postgres path", map[string]any{"metadata #> '{items,0,price}'": "1"}, "filter.metadata #> '{items,0,price}'"},
		{"custom fields", map[string]any{"custom_fields.taxRate": "0.15"}, "filter.custom_fields.taxRate"},
		{"bracket index", map[string]any{"attributes.items[0].amount": 1}, "filter.attributes.items[0].amount"},
		{
			"logical or",
			map[string]any{"$or": []any{map[string]any{"status": "sent"}, map[string]any{"metadata.discount": 1}}},
			"filter.$or[1].metadata.discount",
		},
		{
			"nested document",
			map[string]any{"metadata": map[string]any{"project": map[string]any{"amount": map[string]any{"$gt": 5}}}},
			"filter.metadata.project.amount",
		},
		{
			"elemMatch under a path",
			map[string]any{"metadata.items": map[string]any{"$elemMatch": map[string]any{"price": 5}}},
			"filter.metadata.items.$elemMatch.price",
		},
		{
			"or inside a document",
			map[string]any{"metadata": map[string]any{"$or": []any{map[string]any{"amount": 5}}}},
			"filter.metadata.$or[0].amount",
		},
		{
			"not inside a document",
			map[string]any{"extra": map[string]any{"tier": map[string]any{"$not": map[string]any{"unit_price": 1}}}},
			"filter.extra.tier.$not.unit_price",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireForbidden(t, guard.CheckFilter(tt.filter), tt.field)
		})
	}
}

func TestCheckFilter_Allowed(t *testing.T) {
	ok := []map[string]any{
		nil,
		{"status": "sent", "currency": "USD", "total_amount": map[string]any{"$gt": 5}},
		{"metadata.project.code": "A1"},
		{"metadata->>'client'": "acme"},
		{"metadata.tags": map[string]any{"$elemMatch": map[string]any{"code": "A1"}}},
		{"metadata": map[string]any{"$or": []any{map[string]any{"region": "nz"}, map[string]any{"seats": map[string]any{"$gt": 5}}}}},
		{"$and": []map[string]any{{"metadata.region": "nz"}, {"status": "paid"}}},
	}
	for _, f := range ok {
		assert.NoError(t, guard.CheckFilter(f), "%v", f)
	}
}

func TestSegments(t *testing.T) {
	assert.Equal(t, []string{"metadata", "items", "0", "price"}, guard.Segments("metadata #> '{items,0,price}'"))
	assert.Equal(t, []string{"metadata", "a", "b"}, guard.Segments("metadata->'a'->>'b'"))
	assert.Equal(t, []string{"metadata", "items", "2", "sku"}, guard.Segments("metadata.items[2].sku"))
}
