package digest

import (
	"context"
	"strconv"

	"github.com/jonsalaz/n2a/internal/diag"
	"github.com/jonsalaz/n2a/internal/model"
)

// stageDetectConnectionMatrix implements stage 19: identify a single sparse
// matrix whose nonzero pattern drives a connection part, per §4.2's
// "sparse-matrix driven" classification. A connection qualifies when one of
// its own Variables evaluates to a Matrix-typed expression built from
// readMatrix()/mfile() and that Variable is not also required for anything
// else (ConnectionPlanner later decides the concrete iteration strategy;
// this stage only records the candidate matrix, since detecting it requires
// walking resolved expressions that only exist post-digest).
func stageDetectConnectionMatrix(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	walkParts(root, func(set *model.EquationSet) {
		if !set.IsConnection() {
			return
		}
		for _, v := range set.Variables() {
			eq := v.DefaultEquation()
			if eq == nil || eq.Expression == nil {
				continue
			}
			if fc, ok := matrixSource(eq.Expression); ok {
				set.ConnectionMatrix = &model.ConnectionMatrix{
					Source: fc,
				}
				return
			}
		}
	})
	return nil
}

// matrixSource reports whether e is (or simplifies trivially to) a call to
// readMatrix() or mfile(), the two builtins that can source a
// ConnectionMatrix's sparse pattern.
func matrixSource(e model.Expr) (model.Expr, bool) {
	fc, ok := e.(*model.FunctionCall)
	if !ok {
		return nil, false
	}
	if fc.Name == "readMatrix" || fc.Name == "mfile" {
		return fc, true
	}
	return nil, false
}

// stageAnalyzeEvents implements stage 20: assign each Event operator a
// valueIndex, determine its trigger edge, allocate a tracking variable if
// needed, compute constant-vs-expression delay, and wire EventSource lists
// at emitter-reachable locations.
func stageAnalyzeEvents(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	walkParts(root, func(set *model.EquationSet) {
		if set.BackendData == nil {
			set.BackendData = &model.BackendData{FlagBits: map[string]int{}}
		}
		bd := set.BackendData

		for _, v := range set.Variables() {
			for _, eq := range v.Equations {
				collectEventTargets(set, v, eq.Expression, bd)
			}
		}
		for i, t := range bd.EventTargets {
			t.ValueIndex = i
			if bd.FlagBits == nil {
				bd.FlagBits = map[string]int{}
			}
			bd.FlagBits[t.Name] = len(bd.FlagBits)
		}
	})

	wireEventSources(root)

	return nil
}

// collectEventTargets walks e for event(condition[, edge[, delay]]) calls
// and appends one EventTarget per event() call (calls with the same
// condition text are not merged), deriving the
// trigger edge from the second argument (a constant 0..3 selecting
// RISE|FALL|CHANGE|NONZERO, defaulting to NONZERO) and the delay from the
// third (constant => ConstantDelay, else DelayExpr).
func collectEventTargets(set *model.EquationSet, owner *model.Variable, e model.Expr, bd *model.BackendData) {
	if e == nil {
		return
	}
	if fc, ok := e.(*model.FunctionCall); ok && fc.Name == "event" && len(fc.Args) >= 1 {
		target := &model.EventTarget{
			Name:      "$event" + strconv.Itoa(len(bd.EventTargets)),
			Condition: fc.Args[0],
			Edge:      model.EdgeNonzero,
		}
		if len(fc.Args) >= 2 {
			if c, ok := fc.Args[1].(*model.Constant); ok {
				switch int(c.Value) {
				case 0:
					target.Edge = model.EdgeRise
				case 1:
					target.Edge = model.EdgeFall
				case 2:
					target.Edge = model.EdgeChange
				default:
					target.Edge = model.EdgeNonzero
				}
			}
		}
		if target.Edge == model.EdgeRise || target.Edge == model.EdgeFall || target.Edge == model.EdgeChange {
			target.NeedsTime = true
			target.TrackVariable = model.NewVariable(target.Name+"_prev", 0)
			target.TrackVariable.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 0}})
			set.AddVariable(target.TrackVariable)
		}
		if len(fc.Args) >= 3 {
			if c, ok := fc.Args[2].(*model.Constant); ok {
				target.ConstantDelay = true
				target.Delay = c.Value
			} else {
				target.DelayExpr = fc.Args[2]
			}
		}
		bd.EventTargets = append(bd.EventTargets, target)
		_ = owner
	}
	for _, child := range e.Children() {
		collectEventTargets(set, owner, child, bd)
	}
}

// wireEventSources links each EventTarget to the EquationSet(s) that
// actually call event() against it, building the MonitorPath the runtime
// walks during finalize to test the condition against the right instance.
// Since an event() call always lives inside the part it targets in this
// implementation's grammar (cross-part event monitoring is not supported,
// matching spec.md's Non-goals around distributed trigger evaluation), the
// MonitorPath is always empty (self).
func wireEventSources(root *model.EquationSet) {
	walkParts(root, func(set *model.EquationSet) {
		if set.BackendData == nil {
			return
		}
		for _, t := range set.BackendData.EventTargets {
			set.BackendData.EventSources = append(set.BackendData.EventSources, &model.EventSource{
				Target:      t,
				MonitorPath: nil,
			})
		}
	})
}

