package digest

import (
	"context"

	"github.com/jonsalaz/n2a/internal/diag"
	"github.com/jonsalaz/n2a/internal/model"
)

// stagePromoteTemporaries implements stage 13: connection $p and $project
// become temporary where their users allow — i.e. where every read of the
// variable happens within the same evaluation pass it is written, so the
// emitter can hold it in a local rather than persisting it on the instance.
// A connection's $p is promotable when no other Variable of the same part
// reads it (references from other parts are not checked); $project is
// promotable under the same rule, grounded on the same reasoning since
// Population.java's getProject() caches its result on the instance only
// when callers span more than one evaluation pass.
func stagePromoteTemporaries(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	walkParts(root, func(set *model.EquationSet) {
		if !set.IsConnection() {
			return
		}
		for _, name := range []string{"$p", "$project"} {
			v, ok := set.Variable(name)
			if !ok {
				continue
			}
			if isPromotable(set, v) {
				v.SetAttribute(model.AttrTemporary)
			}
		}
	})
	return nil
}

// isPromotable reports whether v is read only from within its own
// equations' conditions (self-reference for multiconditional chains is
// ignored) — i.e. no other Variable in set references it.
func isPromotable(set *model.EquationSet, v *model.Variable) bool {
	for _, other := range set.Variables() {
		if other == v {
			continue
		}
		for _, eq := range other.Equations {
			if referencesVariable(eq.Condition, v) || referencesVariable(eq.Expression, v) {
				return false
			}
		}
	}
	return true
}

func referencesVariable(e model.Expr, target *model.Variable) bool {
	if e == nil {
		return false
	}
	if av, ok := e.(*model.AccessVariable); ok {
		if av.Reference != nil && av.Reference.Variable == target {
			return true
		}
	}
	for _, child := range e.Children() {
		if referencesVariable(child, target) {
			return true
		}
	}
	return false
}

// stageDetermineOrder implements stage 14: topological sort of Variables
// within each part, respecting read-before-write for non-buffered
// variables and write-before-read for buffered ones (a buffered variable's
// readers within the same pass must see the previous pass's value, so the
// write that will become "current" next pass may be ordered after them).
func stageDetermineOrder(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	var errs []*diag.DigestError

	walkParts(root, func(set *model.EquationSet) {
		order, err := topoSortVariables(set)
		if err != nil {
			errs = append(errs, err)
			order = set.Variables() // fall back to source order
		}
		set.Ordered = order
	})

	return errs
}

func topoSortVariables(set *model.EquationSet) ([]*model.Variable, *diag.DigestError) {
	vars := set.Variables()
	deps := make(map[*model.Variable][]*model.Variable, len(vars))

	for _, v := range vars {
		var d []*model.Variable
		for _, eq := range v.Equations {
			d = append(d, localDeps(set, eq.Condition)...)
			if v.IsBuffered() {
				// buffered readers depend on the PREVIOUS pass's write,
				// which is always satisfied already; only non-buffered
				// dependencies of the write expression itself matter for
				// ordering within this pass.
				continue
			}
			d = append(d, localDeps(set, eq.Expression)...)
		}
		deps[v] = d
	}

	visited := make(map[*model.Variable]bool)
	visiting := make(map[*model.Variable]bool)
	var order []*model.Variable
	var cycleErr *diag.DigestError

	var visit func(*model.Variable)
	visit = func(v *model.Variable) {
		if visited[v] || cycleErr != nil {
			return
		}
		if visiting[v] {
			cycleErr = &diag.DigestError{
				Kind:     diag.TypeInconsistency,
				NodePath: set.Path() + "." + v.Name,
				Message:  "cyclic non-buffered dependency",
			}
			return
		}
		visiting[v] = true
		for _, dep := range deps[v] {
			visit(dep)
		}
		visiting[v] = false
		visited[v] = true
		order = append(order, v)
	}

	for _, v := range vars {
		visit(v)
		if cycleErr != nil {
			return nil, cycleErr
		}
	}

	return order, nil
}

// localDeps collects the Variables referenced by e that belong to set
// itself (cross-part reads via connection endpoints don't participate in
// this part's intra-pass ordering).
func localDeps(set *model.EquationSet, e model.Expr) []*model.Variable {
	if e == nil {
		return nil
	}
	var out []*model.Variable
	if av, ok := e.(*model.AccessVariable); ok {
		if av.Reference != nil && av.Reference.Variable != nil && av.Reference.Variable.Container == set && !av.Reference.Variable.IsBuffered() {
			out = append(out, av.Reference.Variable)
		}
	}
	for _, child := range e.Children() {
		out = append(out, localDeps(set, child)...)
	}
	return out
}
