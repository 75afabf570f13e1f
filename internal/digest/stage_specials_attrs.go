package digest

import (
	"context"

	"github.com/jonsalaz/n2a/internal/diag"
	"github.com/jonsalaz/n2a/internal/model"
)

// specialDefault describes one injected language special: its name and the
// default-equation expression text to give it when the source model didn't
// already declare one.
type specialDefault struct {
	name       string
	defaultVal float64
	isText     bool
	textVal    string
}

// globalSpecials are injected into every part by stage 3. $p's default of
// 1 on connection parts is made explicit here per SPEC_FULL.md's resolution
// of the under-specified default noted while expanding spec.md (grounded on
// original_source JobC.java's multiconditional, which hardcodes "1" as $p's
// default for connect parts).
var globalSpecials = []specialDefault{
	{name: "$index", defaultVal: 0},
	{name: "$init", defaultVal: 0},
	{name: "$n", defaultVal: 1},
	{name: "$t", defaultVal: 0},
	{name: "$t'", defaultVal: 0.0001},
}

// stageAddSpecials implements stage 3: "Add global constants and specials —
// inject $connect, $index, $init, $n, $t, $t', $type with correct default
// equations."
func stageAddSpecials(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	walkParts(root, func(set *model.EquationSet) {
		for _, sd := range globalSpecials {
			ensureSpecial(set, sd.name, sd.defaultVal)
		}
		ensureSpecial(set, "$connect", boolOf(set.IsConnection()))
		ensureSpecial(set, "$type", 0)

		if set.IsConnection() {
			ensureSpecial(set, "$p", 1)
		}
	})

	return nil
}

func boolOf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func ensureSpecial(set *model.EquationSet, name string, defaultVal float64) {
	if _, ok := set.Variable(name); ok {
		return
	}
	v := model.NewVariable(name, 0)
	v.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: defaultVal}})
	set.AddVariable(v)
}

// stageSeedAttributes implements stage 4: "$max,$min,$k,$radius global
// init-only; $n global; $index,$t',$t preexistent."
func stageSeedAttributes(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	walkParts(root, func(set *model.EquationSet) {
		for _, name := range []string{"$max", "$min", "$k", "$radius"} {
			if v, ok := set.Variable(name); ok {
				v.SetAttribute(model.AttrGlobal)
				v.SetAttribute(model.AttrInitOnly)
			}
		}
		if v, ok := set.Variable("$n"); ok {
			v.SetAttribute(model.AttrGlobal)
		}
		for _, name := range []string{"$index", "$t'", "$t"} {
			if v, ok := set.Variable(name); ok {
				v.SetAttribute(model.AttrPreexistent)
			}
		}
	})

	return nil
}
