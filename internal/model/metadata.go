package model

import (
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Metadata holds the $metadata subtree attached to an EquationSet or
// Variable: arbitrary slash-delimited key paths mapped to cty.Value leaves
// (e.g. "backend/c/type" -> cty.StringVal("float")), the way original_source's
// JobC.java repeatedly calls model.getOrDefault(default, "$metadata",
// "backend", "c", "type") against the same underlying string tree. Leaves
// are gocty-typed rather than bare strings so a bool or numeric metadata
// value round-trips as that type instead of always degrading to text.
type Metadata struct {
	values map[string]cty.Value
}

// NewMetadata creates an empty metadata set.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]cty.Value)}
}

func key(path ...string) string {
	return strings.Join(path, "/")
}

// Set stores value, a plain string leaf, at the given key path.
func (m *Metadata) Set(value string, path ...string) {
	m.SetValue(cty.StringVal(value), path...)
}

// SetBool stores a bool leaf at path.
func (m *Metadata) SetBool(value bool, path ...string) {
	m.SetValue(cty.BoolVal(value), path...)
}

// SetValue stores an arbitrary cty.Value leaf at the given key path.
func (m *Metadata) SetValue(value cty.Value, path ...string) {
	if m.values == nil {
		m.values = make(map[string]cty.Value)
	}
	m.values[key(path...)] = value
}

func (m *Metadata) lookup(path ...string) (cty.Value, bool) {
	if m == nil {
		return cty.NilVal, false
	}
	v, ok := m.values[key(path...)]
	return v, ok
}

// GetOrDefault returns the string form of the value at path, converting a
// bool or number leaf through gocty, or def if path is unset.
func (m *Metadata) GetOrDefault(def string, path ...string) string {
	v, ok := m.lookup(path...)
	if !ok {
		return def
	}
	switch v.Type() {
	case cty.String:
		var s string
		if err := gocty.FromCtyValue(v, &s); err == nil {
			return s
		}
	case cty.Bool:
		var b bool
		if err := gocty.FromCtyValue(v, &b); err == nil {
			return strconv.FormatBool(b)
		}
	case cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err == nil {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
	}
	return def
}

// GetBool reads the value at path as a bool. A genuinely Bool-typed leaf
// converts directly through gocty; a string leaf falls back to the
// "1"/"true" truthy convention for metadata still sourced as plain text.
func (m *Metadata) GetBool(path ...string) bool {
	v, ok := m.lookup(path...)
	if !ok {
		return false
	}
	if v.Type() == cty.Bool {
		var b bool
		if err := gocty.FromCtyValue(v, &b); err == nil {
			return b
		}
	}
	s := m.GetOrDefault("", path...)
	return s == "1" || s == "true"
}

// Has reports whether any value is stored at path.
func (m *Metadata) Has(path ...string) bool {
	_, ok := m.lookup(path...)
	return ok
}

// NumericType is the project-wide backend/c/type selection from §6.
type NumericType int

const (
	NumericFloat NumericType = iota
	NumericDouble
	NumericInt // fixed-point
)

// NumericTypeOf reads backend/c/type from model metadata, defaulting to
// float and clamping any int width suffix to plain "int" the way
// JobC.java's JobC.run() does ("Only supported integer type is 'int', which
// is assumed to be signed 32-bit.").
func NumericTypeOf(m *Metadata) NumericType {
	t := m.GetOrDefault("float", "backend", "c", "type")
	switch {
	case strings.HasPrefix(t, "int"):
		return NumericInt
	case t == "double":
		return NumericDouble
	default:
		return NumericFloat
	}
}
