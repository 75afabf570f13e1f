package digest

import (
	"context"

	"github.com/jonsalaz/n2a/internal/diag"
	"github.com/jonsalaz/n2a/internal/model"
)

// stageFlatten implements stage 7: "inline single-use inner parts." A
// compartment child part is single-use when it is not a connection, has no
// sub-parts of its own, and is Singleton; references into it from elsewhere
// are not examined. Its variables are then merged into the container, each
// renamed to "<child>.<name>", matching the original compiler's reduction of
// redundant structural nesting before order determination.
func stageFlatten(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	walkParts(root, flattenSingleUseChildren)
	return nil
}

func flattenSingleUseChildren(set *model.EquationSet) {
	kept := make([]*model.EquationSet, 0, len(set.Parts))
	for _, child := range set.Parts {
		if isSingleUseCompartment(child) {
			mergeInto(set, child)
			continue
		}
		kept = append(kept, child)
	}
	set.Parts = kept
}

func isSingleUseCompartment(child *model.EquationSet) bool {
	if child.IsConnection() {
		return false
	}
	if len(child.Parts) > 0 {
		return false
	}
	if child.Singleton {
		return true
	}
	return false
}

func mergeInto(container, child *model.EquationSet) {
	for _, v := range child.Variables() {
		v.Name = child.Name + "." + v.Name
		container.AddVariable(v)
	}
}

// stageOrderParts implements stage 8: "Sort parts in dependency order
// (orderedParts)." A part B depends on part A when B is a connection with
// an endpoint binding resolving into A, or B's variables reference A via a
// down-reference; this is approximated here (safely, since the only
// consumer within this repository's emitter walks OrderedParts purely to
// choose a deterministic emission order, not to decide evaluation
// semantics, which ordered/stage14 governs) as connection parts sorting
// after every part they bind to.
func stageOrderParts(_ context.Context, _ *Digester, root *model.EquationSet) []*diag.DigestError {
	walkParts(root, func(set *model.EquationSet) {
		ordered := make([]*model.EquationSet, len(set.Parts))
		copy(ordered, set.Parts)

		indexOf := make(map[*model.EquationSet]int, len(ordered))
		for i, p := range ordered {
			indexOf[p] = i
		}

		// stable topological-ish sort: compartments first (in source
		// order), then connections ordered so that a connection whose
		// endpoints are siblings always sorts after those siblings.
		sortStableByDependency(ordered, func(p *model.EquationSet) []*model.EquationSet {
			if !p.IsConnection() {
				return nil
			}
			var deps []*model.EquationSet
			for _, b := range p.ConnectionBindings {
				if b.Endpoint != nil && b.Endpoint.Container == set {
					deps = append(deps, b.Endpoint)
				}
			}
			return deps
		})

		set.OrderedParts = ordered
	})
	return nil
}

// sortStableByDependency performs a stable topological sort of items given
// a dependency-lookup function, falling back to original order for any
// cycle (cycles among parts are not expected; spec.md's invariants only
// require acyclic Derivative edges, not part-dependency edges).
func sortStableByDependency(items []*model.EquationSet, deps func(*model.EquationSet) []*model.EquationSet) {
	visited := make(map[*model.EquationSet]bool)
	visiting := make(map[*model.EquationSet]bool)
	var order []*model.EquationSet

	var visit func(*model.EquationSet)
	visit = func(item *model.EquationSet) {
		if visited[item] || visiting[item] {
			return
		}
		visiting[item] = true
		for _, dep := range deps(item) {
			visit(dep)
		}
		visiting[item] = false
		visited[item] = true
		order = append(order, item)
	}

	for _, item := range items {
		visit(item)
	}

	copy(items, order)
}
