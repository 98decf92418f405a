package fhirpath

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/iancoleman/strcase"
)

// Resource is a generic, schema-agnostic Value wrapping a decoded JSON
// object: the engine operates over any FHIR-shaped JSON tree without a
// generated Go struct per resource type. Children looks a field up by its
// JSON key and, when that key is absent, by a choice-type suffix (see
// fieldValues); the evaluator refines choice resolution through a
// ModelProvider when one is available. A FHIRPath engine can accept
// either a generated model struct or a bare map; this implementation
// always takes the map path.
type Resource struct {
	TypeName string
	Fields   map[string]any // decoded JSON, "resourceType" removed
	Bundle   *Resource       // enclosing Bundle, for Reference resolution; nil at the top
}

// ParseResource decodes raw FHIR JSON into a Resource tree. Numbers are
// kept as json.Number so Integer vs. Decimal can be told apart instead of
// collapsing through float64.
func ParseResource(raw []byte) (*Resource, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	return newResourceFromMap(m), nil
}

func newResourceFromMap(m map[string]any) *Resource {
	typeName, _ := m["resourceType"].(string)
	fields := make(map[string]any, len(m))
	for k, v := range m {
		if k == "resourceType" {
			continue
		}
		fields[k] = v
	}
	return &Resource{TypeName: typeName, Fields: fields}
}

func (r *Resource) Children(names ...string) Collection {
	if r == nil {
		return nil
	}
	if len(names) == 0 {
		keys := make([]string, 0, len(r.Fields))
		for k := range r.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out Collection
		for _, k := range keys {
			out = append(out, r.fieldValues(k)...)
		}
		return out
	}
	var out Collection
	for _, name := range names {
		out = append(out, r.fieldValues(name)...)
	}
	return out
}

// fieldValues returns name's value(s), also trying a choice-type suffix
// match (e.g. asking for "value" finds a raw "valueQuantity" key) when an
// exact key isn't present. A ModelProvider refines this further at the
// evaluator layer, but Resource itself degrades gracefully without one.
func (r *Resource) fieldValues(name string) Collection {
	if raw, ok := r.Fields[name]; ok {
		return r.toValues(raw, "")
	}
	for key, raw := range r.Fields {
		if strings.HasPrefix(key, name) && len(key) > len(name) &&
			strcase.ToCamel(key[len(name):]) == key[len(name):] {
			return r.toValues(raw, key[len(name):])
		}
	}
	return nil
}

// toValues converts raw into one or more Values. typeHint, when non-empty,
// is the choice-suffix type name (e.g. "Quantity" from a "valueQuantity"
// key) to stamp onto any resulting object Value, not the full field key.
func (r *Resource) toValues(raw any, typeHint string) Collection {
	switch v := raw.(type) {
	case []any:
		var out Collection
		for _, item := range v {
			out = append(out, r.toValue(item, typeHint))
		}
		return out
	default:
		return Collection{r.toValue(v, typeHint)}
	}
}

func (r *Resource) toValue(raw any, typeHint string) Value {
	switch v := raw.(type) {
	case nil:
		return nil
	case bool:
		return Boolean(v)
	case string:
		return String(v)
	case json.Number:
		if strings.ContainsAny(string(v), ".eE") {
			d, _, err := apd.NewFromString(string(v))
			if err == nil {
				return Decimal{Value: d}
			}
		}
		var i int64
		if n, err := v.Int64(); err == nil {
			i = n
			return Integer(i)
		}
		d, _, _ := apd.NewFromString(string(v))
		return Decimal{Value: d}
	case map[string]any:
		child := newResourceFromMap(v)
		child.Bundle = r.bundleRoot()
		if child.TypeName == "" && typeHint != "" {
			child.TypeName = strcase.ToCamel(typeHint)
		}
		return child
	default:
		return String(fmt.Sprintf("%v", v))
	}
}

func (r *Resource) bundleRoot() *Resource {
	if r.Bundle != nil {
		return r.Bundle
	}
	if r.TypeName == "Bundle" {
		return r
	}
	return nil
}

func (r *Resource) ToBoolean(explicit bool) (Boolean, bool, error) { return false, false, nil }
func (r *Resource) ToString(explicit bool) (String, bool, error)  { return "", false, nil }
func (r *Resource) ToInteger(explicit bool) (Integer, bool, error) { return 0, false, nil }
func (r *Resource) ToDecimal(explicit bool) (Decimal, bool, error) { return Decimal{}, false, nil }
func (r *Resource) ToDate(explicit bool) (Date, bool, error)       { return Date{}, false, nil }
func (r *Resource) ToTime(explicit bool) (Time, bool, error)       { return Time{}, false, nil }
func (r *Resource) ToDateTime(explicit bool) (DateTime, bool, error) { return DateTime{}, false, nil }
func (r *Resource) ToQuantity(explicit bool) (Quantity, bool, error) { return Quantity{}, false, nil }

func (r *Resource) Equal(other Value) (eq bool, ok bool) {
	o, isRes := other.(*Resource)
	if !isRes {
		return false, true
	}
	if r == o {
		return true, true
	}
	if r.TypeName != o.TypeName || len(r.Fields) != len(o.Fields) {
		return false, true
	}
	ra, _ := json.Marshal(r.Fields)
	rb, _ := json.Marshal(o.Fields)
	return bytes.Equal(ra, rb), true
}

func (r *Resource) Equivalent(other Value) bool {
	eq, ok := r.Equal(other)
	return ok && eq
}

func (r *Resource) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "FHIR", Name: r.TypeName}
}

func (r *Resource) String() string {
	if r.TypeName != "" {
		return r.TypeName
	}
	return "Resource"
}
