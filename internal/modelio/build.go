package modelio

import (
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/jonsalaz/n2a/internal/model"
)

// Reserved top-level keys, per spec.md §6.
const (
	keyInherit  = "$inherit"
	keyInclude  = "$include"
	keyMetadata = "$metadata"
	keyReference = "$reference"
)

// specialVariables lists the language specials stage 3/4 of EquationDigest
// inject defaults for; they are always treated as variables even though
// their node has no value of its own yet.
var specialVariables = map[string]bool{
	"$connect": true, "$index": true, "$init": true, "$n": true,
	"$t": true, "$t'": true, "$type": true, "$p": true, "$xyz": true,
	"$project": true, "$up": true, "$live": true, "$max": true,
	"$min": true, "$k": true, "$radius": true,
}

// Build lowers a parsed Node tree into a *model.EquationSet rooted at the
// tree's sole top-level child (an N2A source file declares exactly one
// top-level model/part). Diagnostics accumulate rather than aborting
// eagerly, matching EquationDigest's own "collect then report" policy.
func Build(root *Node) (*model.EquationSet, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	var top *Node
	for _, child := range root.Children {
		if child.Key == keyMetadata {
			continue
		}
		top = child
		break
	}
	if top == nil {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "empty model source",
			Detail:   "expected exactly one top-level part declaration",
		})
		return nil, diags
	}

	set := model.NewEquationSet(top.Key, nil)
	diags = append(diags, buildPart(set, top)...)
	return set, diags
}

func buildPart(set *model.EquationSet, node *Node) hcl.Diagnostics {
	var diags hcl.Diagnostics

	for _, child := range node.Children {
		switch {
		case child.Key == keyMetadata:
			set.Metadata = buildMetadata(child)
		case child.Key == keyInherit:
			// Recorded as ordinary metadata under "inherit" so later
			// stages can read it without a second parse pass; no stage
			// expands the inherited part's contents.
			if set.Metadata == nil {
				set.Metadata = model.NewMetadata()
			}
			set.Metadata.Set(child.Value, "inherit")
		case child.Key == keyInclude:
			if set.Metadata == nil {
				set.Metadata = model.NewMetadata()
			}
			set.Metadata.Set(child.Value, "include")
		case child.Key == keyReference:
			if set.Metadata == nil {
				set.Metadata = model.NewMetadata()
			}
			set.Metadata.Set(child.Value, "reference")
		case isPart(child):
			sub := model.NewEquationSet(child.Key, set)
			set.AddPart(sub)
			diags = append(diags, buildPart(sub, child)...)
		default:
			v, vdiags := buildVariable(child)
			diags = append(diags, vdiags...)
			if v != nil {
				set.AddVariable(v)
			}
		}
	}

	return diags
}

// isPart decides whether a node denotes a nested compartment/connection
// rather than a variable: its key does not start with "$", and it has a
// child with children of its own, or a child that has no value and does not
// look like an equation fragment.
func isPart(node *Node) bool {
	if specialVariables[node.Key] {
		return false
	}
	if strings.HasPrefix(node.Key, "$") {
		return false
	}
	if len(node.Children) == 0 {
		return false
	}
	for _, child := range node.Children {
		if len(child.Children) > 0 {
			return true
		}
		if !looksLikeEquationFragment(child.Key) && !child.HasValue {
			return true
		}
	}
	return false
}

func looksLikeEquationFragment(s string) bool {
	if s == "" {
		return false
	}
	if strings.ContainsAny(s, "+-*/<>=!@;?") {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return false
}

// buildVariable lowers a node (and, when present, its equation-alternative
// children) into a *model.Variable. Expression parsing of each equation's
// text happens in expr_parse.go; VariableReference resolution happens only
// during EquationDigest stage 5, not here.
func buildVariable(node *Node) (*model.Variable, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	v := model.NewVariable(node.Key, 0)

	order, base := countPrimes(node.Key)
	if order > 0 {
		v.Name = base
		v.Order = order
	}

	addEquation := func(text string) {
		eq, err := ParseEquationText(text)
		if err != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "malformed equation",
				Detail:   err.Error(),
				Subject:  &hcl.Range{},
			})
			return
		}
		v.Assignment = eq.Assignment
		v.AddEquation(&model.Equation{Condition: eq.Condition, Expression: eq.Expression})
	}

	if node.HasValue {
		addEquation(node.Value)
	}
	for _, child := range node.Children {
		addEquation(child.Key)
	}

	return v, diags
}

// countPrimes strips trailing "'" marks from a variable name, returning the
// derivative order they encode ($t' is order 1, x'' is order 2, ...).
func countPrimes(name string) (order int, base string) {
	trimmed := name
	for strings.HasSuffix(trimmed, "'") {
		trimmed = trimmed[:len(trimmed)-1]
		order++
	}
	return order, trimmed
}

// buildMetadata lowers a $metadata subtree into a model.Metadata. A leaf
// that parses as a bool or number is stored with that cty type so later
// typed reads (Metadata.GetBool, NumericTypeOf) don't have to re-derive it
// from text; anything else is stored as a plain string leaf.
func buildMetadata(node *Node) *model.Metadata {
	m := model.NewMetadata()
	var walk func(n *Node, path []string)
	walk = func(n *Node, path []string) {
		for _, child := range n.Children {
			childPath := append(append([]string{}, path...), strings.Split(child.Key, ".")...)
			if len(child.Children) == 0 {
				m.SetValue(metadataLeaf(child.Value), childPath...)
			} else {
				walk(child, childPath)
			}
		}
	}
	walk(node, nil)
	return m
}

// metadataLeaf infers the gocty type of a raw $metadata leaf: "true"/"false"
// become cty.Bool, anything parsing as a float becomes cty.Number, and
// everything else stays cty.String.
func metadataLeaf(raw string) cty.Value {
	switch raw {
	case "true":
		return cty.BoolVal(true)
	case "false":
		return cty.BoolVal(false)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return cty.NumberFloatVal(f)
	}
	return cty.StringVal(raw)
}
