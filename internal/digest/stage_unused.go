package digest

import (
	"context"

	"github.com/jonsalaz/n2a/internal/diag"
	"github.com/jonsalaz/n2a/internal/model"
)

// sideEffectFunctions names the built-ins whose evaluation has an effect
// beyond their return value, so a Variable computing one of them must be
// kept even if nothing reads its result.
var sideEffectFunctions = map[string]bool{
	"output": true,
	"event":  true,
	"mfile":  true,
}

// stageRemoveUnused implements stage 12. A Variable is live if it is a
// special ($-prefixed), carries an external/accessor/cli attribute, has a
// Derivative link in either direction, evaluates a side-effecting function,
// or is transitively reachable from some other live Variable's equations.
// Everything else is dead weight the emitter would otherwise have to skip
// over at every multiconditional call site, so it is dropped here instead.
func stageRemoveUnused(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	walkParts(root, func(set *model.EquationSet) {
		live := make(map[*model.Variable]bool)
		for _, v := range set.Variables() {
			if isAlwaysLive(v) {
				markLive(live, v)
			}
		}
		// transitive closure: anything referenced from within a live
		// variable's equations (locally, i.e. not descending into another
		// part's scope) is also live.
		changed := true
		for changed {
			changed = false
			for _, v := range set.Variables() {
				if !live[v] {
					continue
				}
				for _, eq := range v.Equations {
					if markReferenced(live, set, eq.Condition) {
						changed = true
					}
					if markReferenced(live, set, eq.Expression) {
						changed = true
					}
				}
			}
		}

		for _, v := range snapshot(set.Variables()) {
			if !live[v] {
				set.RemoveVariable(v)
			}
		}
	})

	return nil
}

func isAlwaysLive(v *model.Variable) bool {
	if len(v.Name) > 0 && v.Name[0] == '$' {
		return true
	}
	if v.HasAny(model.AttrExternalRead, model.AttrExternalWrite, model.AttrAccessor, model.AttrCli, model.AttrReference) {
		return true
	}
	if v.Derivative != nil {
		return true
	}
	for _, eq := range v.Equations {
		if callsSideEffect(eq.Expression) {
			return true
		}
	}
	return false
}

func callsSideEffect(e model.Expr) bool {
	if e == nil {
		return false
	}
	if fc, ok := e.(*model.FunctionCall); ok && sideEffectFunctions[fc.Name] {
		return true
	}
	for _, child := range e.Children() {
		if callsSideEffect(child) {
			return true
		}
	}
	return false
}

func markLive(live map[*model.Variable]bool, v *model.Variable) bool {
	if live[v] {
		return false
	}
	live[v] = true
	if v.Derivative != nil {
		markLive(live, v.Derivative)
	}
	return true
}

// markReferenced marks every AccessVariable target within e that resolves
// to a variable of the same part as live, returning whether any new
// variable became live.
func markReferenced(live map[*model.Variable]bool, scope *model.EquationSet, e model.Expr) bool {
	if e == nil {
		return false
	}

	changed := false
	if av, ok := e.(*model.AccessVariable); ok {
		if av.Reference != nil && av.Reference.Variable != nil && av.Reference.Variable.Container == scope {
			if markLive(live, av.Reference.Variable) {
				changed = true
			}
		}
	}
	for _, child := range e.Children() {
		if markReferenced(live, scope, child) {
			changed = true
		}
	}
	return changed
}
