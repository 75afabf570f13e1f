package digest

import (
	"context"

	"github.com/jonsalaz/n2a/internal/diag"
	"github.com/jonsalaz/n2a/internal/model"
)

// stageResolveReferences implements stage 5: "Resolve LHS then RHS — every
// variable occurrence gets a VariableReference." LHS resolution is implicit
// (a Variable's own identity is its LHS); this stage walks every equation's
// Condition and Expression trees and binds each *model.AccessVariable to a
// VariableReference by searching outward from the variable's own part:
// first the local part, then ancestor parts, then (for connection parts)
// endpoint parts reachable by a binding alias matching a dotted prefix of
// the name (e.g. "A.x" inside a connection with an alias "A").
func stageResolveReferences(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	var errs []*diag.DigestError

	walkParts(root, func(set *model.EquationSet) {
		for _, v := range set.Variables() {
			for _, eq := range v.Equations {
				if eq.Condition != nil {
					errs = append(errs, resolveExpr(set, eq.Condition)...)
				}
				if eq.Expression != nil {
					errs = append(errs, resolveExpr(set, eq.Expression)...)
				}
			}
		}
	})

	return errs
}

func resolveExpr(scope *model.EquationSet, e model.Expr) []*diag.DigestError {
	var errs []*diag.DigestError

	if av, ok := e.(*model.AccessVariable); ok {
		ref, err := resolveName(scope, av.Name)
		if err != nil {
			errs = append(errs, err)
		} else {
			av.Reference = ref
		}
	}

	for _, child := range e.Children() {
		errs = append(errs, resolveExpr(scope, child)...)
	}

	return errs
}

// resolveName implements the search order described above, producing a
// VariableReference whose Steps record how resolveExpr's caller (and later
// CodeEmitter.resolve) should walk from scope to the target.
func resolveName(scope *model.EquationSet, name string) (*model.VariableReference, *diag.DigestError) {
	dotted := splitDotted(name)

	// Connection-endpoint-qualified name, e.g. "A.x" where "A" is a
	// binding alias on a connection part.
	if len(dotted) > 1 {
		if binding, ok := scope.Binding(dotted[0]); ok {
			rest := joinDotted(dotted[1:])
			inner, derr := resolveName(binding.Endpoint, rest)
			if derr != nil {
				return nil, derr
			}
			steps := append([]model.RefStep{{Kind: model.StepConnect, Name: dotted[0]}}, inner.Steps...)
			return &model.VariableReference{Steps: steps, Variable: inner.Variable}, nil
		}
	}

	// Local lookup, then ascend to container, accumulating ascend steps.
	current := scope
	var steps []model.RefStep
	for current != nil {
		if v, ok := current.Variable(name); ok {
			return &model.VariableReference{Steps: steps, Variable: v}, nil
		}
		// descend into a same-named child part's default variable is not
		// attempted here: bare identifiers only resolve within a part's
		// own variable set or by ascent, matching the "ambiguous
		// down-reference" rule that down-references must be explicit.
		if current.Container == nil {
			break
		}
		steps = append(steps, model.RefStep{Kind: model.StepAscend})
		current = current.Container
	}

	return nil, &diag.DigestError{
		Kind:     diag.UnresolvedReference,
		NodePath: scope.Path(),
		Message:  "unresolved variable reference \"" + name + "\"",
	}
}

func splitDotted(name string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			parts = append(parts, name[start:i])
			start = i + 1
		}
	}
	parts = append(parts, name[start:])
	return parts
}

func joinDotted(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "." + p
	}
	return out
}

// stageCreateIntegratedVariables implements stage 6: "for each Variable of
// order>0, synthesize its lower-order companion(s) with derivative links."
// A Variable named "x'" (order 1) requires a companion Variable "x" (order
// 0) to exist so the runtime's Euler/RK4 integrator has somewhere to
// accumulate into; if "x" is missing it is synthesized with a zero default
// and linked via Derivative.
func stageCreateIntegratedVariables(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	walkParts(root, func(set *model.EquationSet) {
		for _, v := range snapshot(set.Variables()) {
			if v.Order == 0 {
				continue
			}
			companion := synthesizeCompanionChain(set, v)
			companion.Derivative = v
		}
	})
	return nil
}

func snapshot(vs []*model.Variable) []*model.Variable {
	out := make([]*model.Variable, len(vs))
	copy(out, vs)
	return out
}

// synthesizeCompanionChain ensures every order from 0 up to v.Order-1
// exists in set, linked Derivative-to-Derivative, and returns the
// order-(v.Order-1) companion directly below v.
func synthesizeCompanionChain(set *model.EquationSet, v *model.Variable) *model.Variable {
	lowerOrder := v.Order - 1
	lower, ok := set.Variable(variableKeyFor(v.Name, lowerOrder))
	if !ok {
		lower = model.NewVariable(v.Name, lowerOrder)
		lower.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 0}})
		set.AddVariable(lower)
	}
	if lower.Order > 0 {
		below := synthesizeCompanionChain(set, lower)
		below.Derivative = lower
	}
	return lower
}

// variableKeyFor builds the literal reference text EquationSet.Variable
// expects for the given base name and order: a trailing "'" per order,
// matching the text a model author would have written by hand.
func variableKeyFor(name string, order int) string {
	for i := 0; i < order; i++ {
		name += "'"
	}
	return name
}
