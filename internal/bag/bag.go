// Package bag implements the free-form option bags that ride on switch,
// link, host and component records. A bag maps option names to cty values;
// because cty values are immutable, copying the map is all that is needed to
// give two owners fully independent bags.
package bag

import (
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Bag is a set of named option values.
type Bag map[string]cty.Value

// New returns an empty bag.
func New() Bag {
	return make(Bag)
}

// Copy returns an independent copy of the bag. Mutating the copy never
// affects the original.
func (b Bag) Copy() Bag {
	out := make(Bag, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Merge returns a new bag holding base overlaid with override. Keys present
// in override always win; neither input is mutated.
func Merge(base, override Bag) Bag {
	out := base.Copy()
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Has reports whether the key is present with a non-null value.
func (b Bag) Has(key string) bool {
	v, ok := b[key]
	return ok && !v.IsNull()
}

// Keys returns the bag's keys in sorted order.
func (b Bag) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the value for key converted to a string.
func (b Bag) String(key string) (string, bool) {
	v, ok := b[key]
	if !ok || v.IsNull() {
		return "", false
	}
	v, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", false
	}
	return v.AsString(), true
}

// Bool returns the value for key converted to a bool.
func (b Bag) Bool(key string) (bool, bool) {
	v, ok := b[key]
	if !ok || v.IsNull() {
		return false, false
	}
	v, err := convert.Convert(v, cty.Bool)
	if err != nil {
		return false, false
	}
	return v.True(), true
}

// Int returns the value for key converted to an int.
func (b Bag) Int(key string) (int, bool) {
	v, ok := b[key]
	if !ok || v.IsNull() {
		return 0, false
	}
	v, err := convert.Convert(v, cty.Number)
	if err != nil {
		return 0, false
	}
	var n int
	if err := gocty.FromCtyValue(v, &n); err != nil {
		return 0, false
	}
	return n, true
}

// Strings returns the value for key as a list of strings.
func (b Bag) Strings(key string) ([]string, bool) {
	v, ok := b[key]
	if !ok || v.IsNull() || !v.CanIterateElements() {
		return nil, false
	}
	var out []string
	for it := v.ElementIterator(); it.Next(); {
		_, ev := it.Element()
		ev, err := convert.Convert(ev, cty.String)
		if err != nil {
			return nil, false
		}
		out = append(out, ev.AsString())
	}
	return out, true
}

// Child returns the nested bag stored under key, if the value there is an
// object or map.
func (b Bag) Child(key string) (Bag, bool) {
	v, ok := b[key]
	if !ok {
		return nil, false
	}
	return FromValue(v)
}

// Set stores a raw cty value under key.
func (b Bag) Set(key string, v cty.Value) {
	b[key] = v
}

// SetString stores a string option.
func (b Bag) SetString(key, v string) {
	b[key] = cty.StringVal(v)
}

// SetInt stores an integer option.
func (b Bag) SetInt(key string, v int) {
	b[key] = cty.NumberIntVal(int64(v))
}

// SetBool stores a boolean option.
func (b Bag) SetBool(key string, v bool) {
	b[key] = cty.BoolVal(v)
}

// FromValue converts an object or map value into a bag. Returns false for
// nulls and non-object values.
func FromValue(v cty.Value) (Bag, bool) {
	if v.IsNull() || !v.IsKnown() {
		return nil, false
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, false
	}
	out := New()
	for it := v.ElementIterator(); it.Next(); {
		k, ev := it.Element()
		out[k.AsString()] = ev
	}
	return out, true
}

// Value packs the bag back into a single object value, for serialization or
// for nesting inside another bag.
func (b Bag) Value() cty.Value {
	if len(b) == 0 {
		return cty.EmptyObjectVal
	}
	attrs := make(map[string]cty.Value, len(b))
	for k, v := range b {
		attrs[k] = v
	}
	return cty.ObjectVal(attrs)
}
