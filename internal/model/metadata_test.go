package model

import "testing"

func TestMetadataSetAndGetOrDefault(t *testing.T) {
	m := NewMetadata()
	m.Set("float", "backend", "c", "type")

	if got := m.GetOrDefault("double", "backend", "c", "type"); got != "float" {
		t.Errorf("expected stored value, got %q", got)
	}
	if got := m.GetOrDefault("double", "backend", "c", "missing"); got != "double" {
		t.Errorf("expected the default for an unset path, got %q", got)
	}
}

func TestMetadataNilReceiverIsReadSafe(t *testing.T) {
	var m *Metadata
	if got := m.GetOrDefault("float", "backend", "c", "type"); got != "float" {
		t.Errorf("expected a nil *Metadata to fall back to the default, got %q", got)
	}
	if m.Has("backend", "c", "type") {
		t.Errorf("expected a nil *Metadata to report Has as false")
	}
}

func TestNumericTypeOfDefaultsToFloat(t *testing.T) {
	if got := NumericTypeOf(nil); got != NumericFloat {
		t.Errorf("expected nil metadata to default to NumericFloat, got %v", got)
	}
}

func TestNumericTypeOfRecognizesIntAndDouble(t *testing.T) {
	intMeta := NewMetadata()
	intMeta.Set("int32", "backend", "c", "type")
	if got := NumericTypeOf(intMeta); got != NumericInt {
		t.Errorf("expected an int-prefixed type to select NumericInt, got %v", got)
	}

	doubleMeta := NewMetadata()
	doubleMeta.Set("double", "backend", "c", "type")
	if got := NumericTypeOf(doubleMeta); got != NumericDouble {
		t.Errorf("expected \"double\" to select NumericDouble, got %v", got)
	}
}

func TestMetadataGetBoolRecognizesTruthyStrings(t *testing.T) {
	m := NewMetadata()
	m.Set("true", "flag")
	if !m.GetBool("flag") {
		t.Errorf("expected GetBool to recognize \"true\"")
	}
	if NewMetadata().GetBool("unset") {
		t.Errorf("expected GetBool to default to false for an unset path")
	}
}

func TestMetadataSetBoolRoundTripsAsGoctyBool(t *testing.T) {
	m := NewMetadata()
	m.SetBool(true, "backend", "c", "vector")
	if !m.GetBool("backend", "c", "vector") {
		t.Errorf("expected a SetBool leaf to read back true through gocty")
	}
	if got := m.GetOrDefault("?", "backend", "c", "vector"); got != "true" {
		t.Errorf("expected a bool leaf's string form to be \"true\", got %q", got)
	}
}
