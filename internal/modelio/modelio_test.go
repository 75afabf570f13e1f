package modelio

import (
	"strings"
	"testing"
)

func TestParseTreeNestsByIndentation(t *testing.T) {
	src := "Leaky\n" +
		"\tV = 0\n" +
		"\tV' = V\n"

	root, diags := ParseTree(strings.NewReader(src), "leaky.n2a")
	if diags.HasErrors() {
		t.Fatalf("ParseTree: %v", diags)
	}
	if len(root.Children) != 1 {
		t.Fatalf("expected one top-level part, got %d", len(root.Children))
	}
	top := root.Children[0]
	if top.Key != "Leaky" {
		t.Errorf("expected top-level key %q, got %q", "Leaky", top.Key)
	}
	if len(top.Children) != 2 {
		t.Fatalf("expected 2 nested lines under Leaky, got %d: %v", len(top.Children), top.Children)
	}
}

func TestParseTreeRejectsInconsistentIndentation(t *testing.T) {
	src := "Leaky\n" +
		"  V = 0\n" +   // establishes a 2-space indent unit
		"   V2 = 1\n" // 3 spaces is not a multiple of that unit

	_, diags := ParseTree(strings.NewReader(src), "bad.n2a")
	if !diags.HasErrors() {
		t.Fatalf("expected inconsistent indentation to be reported as a diagnostic")
	}
}

func TestBuildSplitsDerivativeOrderFromName(t *testing.T) {
	src := "Leaky\n" +
		"\tV = 0\n" +
		"\tV' = V\n"

	tree, diags := ParseTree(strings.NewReader(src), "leaky.n2a")
	if diags.HasErrors() {
		t.Fatalf("ParseTree: %v", diags)
	}
	set, diags := Build(tree)
	if diags.HasErrors() {
		t.Fatalf("Build: %v", diags)
	}

	order0, ok := set.Variable("V")
	if !ok || order0.Order != 0 {
		t.Fatalf("expected an order-0 V, got %v, ok=%v", order0, ok)
	}
	order1, ok := set.Variable("V'")
	if !ok || order1.Order != 1 || order1.Name != "V" {
		t.Fatalf("expected an order-1 V (Name stripped of its prime), got %v, ok=%v", order1, ok)
	}
}

func TestBuildDistinguishesPartsFromVariables(t *testing.T) {
	// A is recognized as a nested part because it has a grandchild (B's
	// own child z=1) further nested below it; y stays a plain variable
	// since it has no children of its own.
	src := "Network\n" +
		"\tA\n" +
		"\t\tB\n" +
		"\t\t\tz = 1\n" +
		"\ty = 2\n"

	tree, diags := ParseTree(strings.NewReader(src), "network.n2a")
	if diags.HasErrors() {
		t.Fatalf("ParseTree: %v", diags)
	}
	set, diags := Build(tree)
	if diags.HasErrors() {
		t.Fatalf("Build: %v", diags)
	}

	if len(set.Parts) != 1 || set.Parts[0].Name != "A" {
		t.Fatalf("expected A to be lowered into a nested part, got parts: %v", set.Parts)
	}
	if _, ok := set.Variable("y"); !ok {
		t.Fatalf("expected y to be lowered into a plain variable on the root part")
	}
}

func TestBuildLowersMetadataBlock(t *testing.T) {
	src := "Leaky\n" +
		"\t$metadata\n" +
		"\t\tbackend.c.type: float\n" +
		"\tV = 0\n"

	tree, diags := ParseTree(strings.NewReader(src), "leaky.n2a")
	if diags.HasErrors() {
		t.Fatalf("ParseTree: %v", diags)
	}
	set, diags := Build(tree)
	if diags.HasErrors() {
		t.Fatalf("Build: %v", diags)
	}

	if set.Metadata == nil {
		t.Fatalf("expected $metadata to populate set.Metadata")
	}
	if got := set.Metadata.GetOrDefault("?", "backend", "c", "type"); got != "float" {
		t.Errorf("expected backend.c.type to read back %q, got %q", "float", got)
	}
}

func TestBuildMetadataInfersBoolAndNumericLeaves(t *testing.T) {
	src := "Leaky\n" +
		"\t$metadata\n" +
		"\t\tbackend.c.vector: true\n" +
		"\t\tbackend.c.width: 32\n" +
		"\tV = 0\n"

	tree, diags := ParseTree(strings.NewReader(src), "leaky.n2a")
	if diags.HasErrors() {
		t.Fatalf("ParseTree: %v", diags)
	}
	set, diags := Build(tree)
	if diags.HasErrors() {
		t.Fatalf("Build: %v", diags)
	}

	if !set.Metadata.GetBool("backend", "c", "vector") {
		t.Errorf("expected backend.c.vector to read back as a gocty bool")
	}
	if got := set.Metadata.GetOrDefault("?", "backend", "c", "width"); got != "32" {
		t.Errorf("expected backend.c.width to read back %q, got %q", "32", got)
	}
}
