package emitter

import (
	"strings"

	"github.com/jonsalaz/n2a/internal/model"
)

// resolve implements §4.3's "Resolution" contract: given a VariableReference
// at an emission site within from, produce a Go access expression by
// chaining container up-steps, descent-to-subpart steps and
// connection-endpoint hops. $live and $t/$t' get the special paths spec.md
// calls out; everything else walks ref.Steps literally.
func resolve(from *model.EquationSet, ref *model.VariableReference) string {
	if ref == nil || ref.Variable == nil {
		return "/* unresolved */"
	}

	path := "this"
	for _, step := range ref.Steps {
		switch step.Kind {
		case model.StepAscend:
			path += ".container"
		case model.StepDescend:
			path += "." + exportField(step.Name)
		case model.StepConnect:
			path += "." + exportField(step.Name)
		}
	}

	// $t/$t' read the Simulator's clock through whichever part's now()/dt()
	// helper the walk above landed on, rather than threading a dt/event
	// parameter through every lifecycle method.
	if ref.Variable.Name == "$t" {
		return path + ".now()"
	}
	if ref.Variable.Name == "$t'" {
		return path + ".dt()"
	}

	if ref.Variable.Name == "$live" {
		if ref.Variable.Container != nil && ref.Variable.Container.BackendData != nil && ref.Variable.Container.BackendData.LiveStored {
			return path + ".getLive()"
		}
		return "true"
	}

	return path + "." + fieldName(ref.Variable)
}

// fieldName is the Go struct field a Variable is stored under: buffered
// variables are read through their current (non-next_) field from any
// resolve() call site, since next_ is only ever written to and swapped in
// at finalize. Order>0 companions (derivatives) share their base Name with
// their order-0 value, so the order is folded back into a trailing run of
// primes before mangling, the same way the source text would have spelled
// "V'" for order 1 — otherwise a state variable and its own derivative
// would collide on the same struct field.
func fieldName(v *model.Variable) string {
	if v.Order == 0 {
		return exportField(v.Name)
	}
	return exportField(v.Name + strings.Repeat("'", v.Order))
}

// variableKeyFor builds the literal reference text EquationSet.Variable
// expects for the given base name and order: a trailing "'" per order,
// matching the text a model author would have written by hand. Used to
// look up a derivative's order-(N-1) companion directly, since the
// Derivative back-link set by digest stage 6 only points up (from the
// lower-order companion to its derivative), never down.
func variableKeyFor(name string, order int) string {
	if order <= 0 {
		return name
	}
	return name + strings.Repeat("'", order)
}

// lowerCompanion returns deriv's order-(N-1) companion variable (the value
// integrate() and the RungeKutta stages advance), falling back to deriv
// itself if no lower-order companion was synthesized.
func lowerCompanion(set *model.EquationSet, deriv *model.Variable) *model.Variable {
	if lower, ok := set.Variable(variableKeyFor(deriv.Name, deriv.Order-1)); ok {
		return lower
	}
	return deriv
}
