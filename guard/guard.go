// Package guard keeps financial values out of schema-less fields.
//
// CheckMetadata rejects payloads that carry monetary-looking keys at any
// depth; CheckFilter rejects query filters that address such keys inside
// schema-less columns. Financial truth lives only in typed columns.
package guard

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/xraph/reckon/types"
)

// forbidden holds normalized keys: lower case with '_', '-' and spaces
// removed, so "unit_price", "unitPrice" and "Unit-Price" all match.
var forbidden = map[string]struct{}{
	"subtotal":       {},
	"taxtotal":       {},
	"tax":            {},
	"taxamount":      {},
	"taxrate":        {},
	"grandtotal":     {},
	"total":          {},
	"totalamount":    {},
	"unitprice":      {},
	"price":          {},
	"discount":       {},
	"discountamount": {},
	"discountvalue":  {},
	"currency":       {},
	"status":         {},
	"amount":         {},
	"quantity":       {},
	"paidamount":     {},
	"balanceamount":  {},
	"exchangerate":   {},
	"fxrate":         {},
}

// Normalize folds a key for comparison against the forbidden list.
func Normalize(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range strings.ToLower(key) {
		switch r {
		case '_', '-', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsForbidden reports whether key names a financial value.
func IsForbidden(key string) bool {
	_, ok := forbidden[Normalize(key)]
	return ok
}

// CheckMetadata walks payload and returns a ValidationError for the first
// forbidden key found, with the full path (e.g. "metadata.items[2].unitPrice")
// as the field. Maps are walked in sorted key order so the reported path is
// deterministic. payload may be a map, slice, struct, json.RawMessage or
// any nesting of them.
func CheckMetadata(field string, payload any) error {
	return walk(field, reflect.ValueOf(payload))
}

func walk(path string, v reflect.Value) error {
	if !v.IsValid() {
		return nil
	}

	if raw, ok := rawJSON(v); ok {
		if len(raw) == 0 {
			return nil
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return types.Invalid(path, "must be valid JSON")
		}
		return walk(path, reflect.ValueOf(decoded))
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return walk(path, v.Elem())

	case reflect.Map:
		keys := v.MapKeys()
		names := make([]string, len(keys))
		byName := make(map[string]reflect.Value, len(keys))
		for i, k := range keys {
			names[i] = fmt.Sprint(k.Interface())
			byName[names[i]] = k
		}
		sort.Strings(names)
		for _, name := range names {
			child := path + "." + name
			if IsForbidden(name) {
				return forbiddenError(child, name)
			}
			if err := walk(child, v.MapIndex(byName[name])); err != nil {
				return err
			}
		}

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := range v.Len() {
			if err := walk(fmt.Sprintf("%s[%d]", path, i), v.Index(i)); err != nil {
				return err
			}
		}

	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := jsonName(f)
			if name == "-" {
				continue
			}
			child := path + "." + name
			if IsForbidden(name) {
				return forbiddenError(child, name)
			}
			if err := walk(child, v.Field(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

var rawMessageType = reflect.TypeOf(json.RawMessage(nil))

func rawJSON(v reflect.Value) ([]byte, bool) {
	if v.Type() == rawMessageType {
		return v.Bytes(), true
	}
	return nil, false
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

func forbiddenError(path, key string) error {
	return &types.ValidationError{
		Field:   path,
		Message: fmt.Sprintf("financial field %q is not allowed in schema-less data", key),
		Cause:   types.ErrForbiddenField,
	}
}
