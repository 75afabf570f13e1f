package digest

import (
	"context"
	"strconv"

	"github.com/jonsalaz/n2a/internal/diag"
	"github.com/jonsalaz/n2a/internal/model"
)

// stageCollectPins implements spec.md §4.1 stage 1: "Collect pins, fill
// auto-pins, resolve pins, purge pins". A pin with exactly one opposite-
// direction, same-named candidate among its part's siblings is bound; a pin
// with more than one candidate is an AmbiguousPin DigestError, whether or
// not the owning part is singleton; a pin with zero candidates is purged
// silently.
func stageCollectPins(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	var errs []*diag.DigestError

	walkParts(root, func(set *model.EquationSet) {
		if set.Container == nil || len(set.Pins) == 0 {
			return
		}
		siblings := set.Container.Parts

		for _, pin := range set.Pins {
			var candidates []*model.Pin
			for _, sib := range siblings {
				if sib == set {
					continue
				}
				for _, other := range sib.Pins {
					if other.Name == pin.Name && other.Direction != pin.Direction {
						candidates = append(candidates, other)
					}
				}
			}
			switch len(candidates) {
			case 0:
				// purged: leave pin.Bound nil.
			case 1:
				pin.Bound = candidates[0]
				candidates[0].Bound = pin
			default:
				errs = append(errs, &diag.DigestError{
					Kind:     diag.AmbiguousPin,
					NodePath: set.Path(),
					Message:  "pin \"" + pin.Name + "\" has " + strconv.Itoa(len(candidates)) + " candidate partners",
				})
			}
		}
	})

	return errs
}

// stageResolveConnectionBindings implements stage 2: every ConnectionBinding
// alias is bound to the EquationSet it names. The parser (internal/modelio)
// leaves ConnectionBinding.Endpoint to be filled here, by resolving
// Resolution against the connection part's scope; a binding whose path
// cannot be walked is an UnresolvedReference.
func stageResolveConnectionBindings(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	var errs []*diag.DigestError

	walkParts(root, func(set *model.EquationSet) {
		if !set.IsConnection() {
			return
		}
		for _, binding := range set.ConnectionBindings {
			if binding.Endpoint != nil {
				continue // already resolved by the builder
			}
			ref := &model.VariableReference{Steps: binding.Resolution}
			target, ok := ref.Resolve(set)
			if !ok {
				errs = append(errs, &diag.DigestError{
					Kind:     diag.UnresolvedReference,
					NodePath: set.Path(),
					Message:  "connection alias \"" + binding.Alias + "\" does not resolve to a part",
				})
				continue
			}
			binding.Endpoint = target
		}
	})

	return errs
}
