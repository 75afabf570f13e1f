package digest

import (
	"context"

	"github.com/jonsalaz/n2a/internal/diag"
	"github.com/jonsalaz/n2a/internal/model"
)

// stageCollectSplits implements stage 11: "determine lethalP,
// lethalContainer, lethalConnection, per-part splits (the $type targets)."
//
// A part is lethalP when some equation assigns to $p with a condition that
// can reach zero — approximated here (conservatively, since the only
// consumer is CodeEmitter's die() call site, which is safe to call even
// when $p can never actually reach zero) as: $p is not AttrConstant and has
// either a conditional equation or more than one equation, i.e. $p is
// written beyond a single default. lethalContainer is always true for every
// non-root part, and lethalConnection for every non-root connection part:
// the teacher's chiplet model treats every child as capable of dying with
// its container, and every connection endpoint reference as capable of
// dying with its endpoint. A constant $p does not change either flag.
func stageCollectSplits(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	walkParts(root, func(set *model.EquationSet) {
		if set.Container == nil {
			return
		}

		if p, ok := set.Variable("$p"); ok {
			set.LethalP = !p.HasAttribute(model.AttrConstant) && writesBeyondDefault(p)
		}
		set.LethalContainer = true
		if set.IsConnection() {
			set.LethalConnection = true
		}

		set.Splits = collectSplits(set)
	})

	return nil
}

func writesBeyondDefault(v *model.Variable) bool {
	for _, eq := range v.Equations {
		if eq.Condition != nil {
			return true
		}
	}
	return len(v.Equations) > 1
}

// collectSplits scans $type's equations for Split expressions (a $type
// write naming a combination of sibling parts to convert into) and returns
// the distinct target combinations, in source order, matching the original
// renderer's from_2_to edge enumeration.
func collectSplits(set *model.EquationSet) []*model.Conversion {
	typeVar, ok := set.Variable("$type")
	if !ok {
		return nil
	}

	var splits []*model.Conversion
	seen := make(map[string]bool)

	for _, eq := range typeVar.Equations {
		s, ok := eq.Expression.(*model.Split)
		if !ok {
			continue
		}
		key := splitKey(s.Parts)
		if seen[key] {
			continue
		}
		seen[key] = true
		splits = append(splits, &model.Conversion{Parts: s.Parts})
	}

	return splits
}

func splitKey(parts []*model.EquationSet) string {
	key := ""
	for _, p := range parts {
		key += p.Path() + ";"
	}
	return key
}
