package guard

import (
	"fmt"
	"sort"
	"strings"
)

// schemaless are the column names holding free-form documents.
var schemaless = map[string]struct{}{
	"metadata":     {},
	"customfields": {},
	"attributes":   {},
	"extra":        {},
}

// pathReplacer turns JSON path operators and path literals into dots:
// metadata->>'unit_price', metadata#>'{items,0,price}' and
// metadata.items.0.price all split into the same segments.
var pathReplacer = strings.NewReplacer(
	"->>", ".",
	"->", ".",
	"#>>", ".",
	"#>", ".",
	"[", ".",
	"]", "",
	"{", "",
	"}", "",
	"'", "",
	"\"", "",
	",", ".",
)

// CheckFilter rejects filter keys that address monetary-looking paths inside
// schema-less columns. Logical operators ($and, $or, $nor) are descended
// into, and nested documents under a schema-less root are checked as
// sub-paths.
func CheckFilter(filter map[string]any) error {
	return checkFilter("filter", filter)
}

func checkFilter(path string, filter map[string]any) error {
	for _, key := range sortedKeys(filter) {
		value := filter[key]

		if strings.HasPrefix(key, "$") {
			if err := checkLogical(path+"."+key, value); err != nil {
				return err
			}
			continue
		}

		segments := Segments(key)
		if len(segments) == 0 {
			continue
		}
		if _, ok := schemaless[Normalize(segments[0])]; !ok {
			continue
		}
		for _, seg := range segments[1:] {
			if IsForbidden(seg) {
				return forbiddenError(path+"."+key, seg)
			}
		}
		if nested, ok := value.(map[string]any); ok {
			if err := checkNested(path+"."+key, nested); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkLogical(path string, value any) error {
	switch v := value.(type) {
	case []any:
		for i, e := range v {
			if m, ok := e.(map[string]any); ok {
				if err := checkFilter(fmt.Sprintf("%s[%d]", path, i), m); err != nil {
					return err
				}
			}
		}
	case []map[string]any:
		for i, m := range v {
			if err := checkFilter(fmt.Sprintf("%s[%d]", path, i), m); err != nil {
				return err
			}
		}
	case map[string]any:
		return checkFilter(path, v)
	}
	return nil
}

// checkNested checks a document-style filter value such as
// {"metadata": {"project": {"amount": {"$gt": 5}}}}. Operator values that
// hold documents ($or, $elemMatch, $not, ...) are checked as sub-paths of
// the same document.
func checkNested(path string, doc map[string]any) error {
	for _, key := range sortedKeys(doc) {
		value := doc[key]

		if strings.HasPrefix(key, "$") {
			if err := checkOperand(path+"."+key, value); err != nil {
				return err
			}
			continue
		}
		for _, seg := range Segments(key) {
			if IsForbidden(seg) {
				return forbiddenError(path+"."+key, seg)
			}
		}
		if nested, ok := value.(map[string]any); ok {
			if err := checkNested(path+"."+key, nested); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkOperand descends into the documents an operator carries. Scalar
// operands such as the 5 in {"$gt": 5} name no path.
func checkOperand(path string, value any) error {
	switch v := value.(type) {
	case map[string]any:
		return checkNested(path, v)
	case []map[string]any:
		for i, m := range v {
			if err := checkNested(fmt.Sprintf("%s[%d]", path, i), m); err != nil {
				return err
			}
		}
	case []any:
		for i, e := range v {
			if m, ok := e.(map[string]any); ok {
				if err := checkNested(fmt.Sprintf("%s[%d]", path, i), m); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Segments splits a filter key into path segments.
func Segments(key string) []string {
	parts := strings.Split(pathReplacer.Replace(key), ".")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
