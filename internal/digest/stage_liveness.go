package digest

import (
	"context"

	"github.com/jonsalaz/n2a/internal/diag"
	"github.com/jonsalaz/n2a/internal/model"
)

// stageDetectDerivativesLiveness implements stage 15: derivative detection,
// initOnly propagation, and liveness attribute setting.
//
// Derivative detection populates BackendData.Integrated with every
// order>0 Variable (stage 6 already linked Derivative chains; this stage
// only collects them for the emitter's integrate() lowering).
//
// initOnly propagates outward: a Variable whose every dependency is itself
// constant or initOnly, and which carries no external-write/cycle
// attribute, is computed once during init() and never touched again.
//
// Liveness: a part whose LethalP, LethalContainer or LethalConnection flag
// is set (stage 11) needs $live backed by a flags bit rather than a
// constant-true accessor, since die() can actually flip it.
func stageDetectDerivativesLiveness(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	walkParts(root, func(set *model.EquationSet) {
		if set.BackendData == nil {
			set.BackendData = &model.BackendData{}
		}
		bd := set.BackendData
		bd.FlagBits = map[string]int{}

		for _, v := range set.Variables() {
			if v.Order > 0 {
				bd.Integrated = append(bd.Integrated, v)
			}
		}

		propagateInitOnly(set)

		bd.LiveStored = set.LethalP || set.LethalContainer || set.LethalConnection
		if bd.LiveStored {
			bd.FlagBits["$live"] = 0
		}
	})

	return nil
}

func propagateInitOnly(set *model.EquationSet) {
	changed := true
	for changed {
		changed = false
		for _, v := range set.Variables() {
			if v.HasAttribute(model.AttrInitOnly) {
				continue
			}
			if v.HasAny(model.AttrCycle, model.AttrExternalWrite, model.AttrExternalRead) {
				continue
			}
			if allDepsInitOnlyOrConstant(set, v) {
				v.SetAttribute(model.AttrInitOnly)
				changed = true
			}
		}
	}
}

func allDepsInitOnlyOrConstant(set *model.EquationSet, v *model.Variable) bool {
	if len(v.Equations) == 0 {
		return false
	}
	ok := true
	for _, eq := range v.Equations {
		if !depsInitOnlyOrConstant(set, eq.Expression) || !depsInitOnlyOrConstant(set, eq.Condition) {
			ok = false
		}
	}
	return ok
}

func depsInitOnlyOrConstant(set *model.EquationSet, e model.Expr) bool {
	if e == nil {
		return true
	}
	if av, ok := e.(*model.AccessVariable); ok {
		if av.Reference == nil || av.Reference.Variable == nil {
			return false
		}
		target := av.Reference.Variable
		if target.Container != set {
			return true // cross-part reads are assumed stable here
		}
		if !target.HasAny(model.AttrInitOnly, model.AttrConstant) {
			return false
		}
	}
	for _, child := range e.Children() {
		if !depsInitOnlyOrConstant(set, child) {
			return false
		}
	}
	return true
}

// stageDiscoverLiveReach implements stage 16: reference-to-$live discovery
// for lethal reach-through. Any connection endpoint whose $live is read
// through a binding alias (e.g. "A.$live") must keep $live backed by a
// flags bit even if that endpoint's own LethalP/LethalContainer analysis
// concluded it never dies, since die() elsewhere in the model may still
// flip the bit a reader of this reference depends on.
func stageDiscoverLiveReach(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	walkParts(root, func(set *model.EquationSet) {
		for _, v := range set.Variables() {
			for _, eq := range v.Equations {
				markLiveReach(eq.Condition)
				markLiveReach(eq.Expression)
			}
		}
	})
	return nil
}

func markLiveReach(e model.Expr) {
	if e == nil {
		return
	}
	if av, ok := e.(*model.AccessVariable); ok && av.Reference != nil && av.Reference.Variable != nil {
		target := av.Reference.Variable
		if target.Name == "$live" && target.Container != nil {
			if target.Container.BackendData == nil {
				target.Container.BackendData = &model.BackendData{FlagBits: map[string]int{}}
			}
			target.Container.BackendData.LiveStored = true
			if target.Container.BackendData.FlagBits == nil {
				target.Container.BackendData.FlagBits = map[string]int{}
			}
			target.Container.BackendData.FlagBits["$live"] = 0
		}
	}
	for _, child := range e.Children() {
		markLiveReach(child)
	}
}

// stageDetermineTypes implements stage 17: type determination, then
// duration and parent assignment. Every Variable's Type is set to the
// ResultType of its default equation (falling back to the first
// conditional arm when there is no unconditional default), replacing any
// Type it already had.
func stageDetermineTypes(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	var errs []*diag.DigestError

	walkParts(root, func(set *model.EquationSet) {
		for _, v := range set.Variables() {
			resolved, err := determineType(set, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			v.Type = resolved
		}
	})

	if root.Metadata != nil {
		if !root.Metadata.Has("duration") {
			root.Metadata.Set("1", "duration") // default simulation length, seconds
		}
	}

	return errs
}

func determineType(set *model.EquationSet, v *model.Variable) (model.VarType, *diag.DigestError) {
	eq := v.DefaultEquation()
	if eq == nil && len(v.Equations) > 0 {
		eq = v.Equations[0]
	}
	if eq == nil || eq.Expression == nil {
		return model.Scalar, nil
	}

	want := eq.Expression.ResultType()
	for _, other := range v.Equations {
		if other == eq || other.Expression == nil {
			continue
		}
		if other.Expression.ResultType() != want {
			return model.Scalar, &diag.DigestError{
				Kind:     diag.TypeInconsistency,
				NodePath: set.Path() + "." + v.Name,
				Message:  "conditional equation arms disagree on result type",
			}
		}
	}
	return want, nil
}
