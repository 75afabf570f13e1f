// Package digest implements EquationDigest: the staged transform from a
// raw parsed model tree into a decorated, ordered, type-attributed form the
// emitter can translate mechanically (spec.md §4.1). The orchestration
// shape — a sequence of named stages run in fixed order, each able to
// contribute errors that are collected and reported together rather than
// aborting the whole run on the first failure — is grounded on teacher's
// src/compiler/compiler.go Init/Build/Compile staging, generalized from
// three stages to twenty.
package digest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jonsalaz/n2a/internal/diag"
	"github.com/jonsalaz/n2a/internal/model"
)

// Digester runs the EquationDigest pipeline over one model tree. It is not
// reentrant on a given EquationSet (spec.md §5, "digest is not reentrant on
// a given EquationSet"), matching teacher's Compiler which holds mutable
// per-run state directly on the struct rather than threading it through
// every call.
type Digester struct {
	logger *slog.Logger

	// FixedPoint forces stage 18 (exponent inference) to run even when
	// model metadata doesn't request backend/c/type=int; used by tests.
	FixedPoint bool
}

// New creates a Digester that logs to slog.Default.
func New() *Digester {
	return &Digester{logger: slog.Default()}
}

// WithLogger returns a copy of d that logs to logger instead.
func (d *Digester) WithLogger(logger *slog.Logger) *Digester {
	clone := *d
	clone.logger = logger
	return &clone
}

type stage struct {
	name string
	run  func(ctx context.Context, d *Digester, root *model.EquationSet) []*diag.DigestError
}

// Digest runs all twenty stages over root in order and returns the same
// tree, decorated in place, or an *diag.AbortRun wrapping every collected
// DigestError if any stage reported one. Stages after a hard-blocking
// failure (unresolved structural references) are skipped because later
// stages assume earlier ones succeeded, per spec.md §4.1's pipeline
// preamble ("each stage assumes earlier completions").
func (d *Digester) Digest(ctx context.Context, root *model.EquationSet) (*model.EquationSet, error) {
	var collected []*diag.DigestError

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d.logger.Debug("digest stage", "stage", st.name, "model", root.Name)
		errs := st.run(ctx, d, root)
		collected = append(collected, errs...)
		if hasBlocking(errs) {
			break
		}
	}

	if len(collected) > 0 {
		var joined error
		for _, e := range collected {
			joined = errors.Join(joined, e)
		}
		return nil, diag.NewAbortRun("digest failed for "+root.Name, joined)
	}

	return root, nil
}

func hasBlocking(errs []*diag.DigestError) bool {
	for _, e := range errs {
		switch e.Kind {
		case diag.UnresolvedReference, diag.AmbiguousDownReference:
			return true
		}
	}
	return false
}

var stages = []stage{
	{"collect-pins", stageCollectPins},
	{"resolve-connection-bindings", stageResolveConnectionBindings},
	{"add-specials", stageAddSpecials},
	{"seed-attributes", stageSeedAttributes},
	{"resolve-references", stageResolveReferences},
	{"create-integrated-variables", stageCreateIntegratedVariables},
	{"flatten", stageFlatten},
	{"order-parts", stageOrderParts},
	{"check-units", stageCheckUnits},
	{"fold-constants", stageFoldConstants},
	{"collect-splits", stageCollectSplits},
	{"remove-unused", stageRemoveUnused},
	{"promote-temporaries", stagePromoteTemporaries},
	{"determine-order", stageDetermineOrder},
	{"detect-derivatives-liveness", stageDetectDerivativesLiveness},
	{"discover-live-reach", stageDiscoverLiveReach},
	{"determine-types", stageDetermineTypes},
	{"determine-exponents", stageDetermineExponents},
	{"detect-connection-matrix", stageDetectConnectionMatrix},
	{"analyze-events", stageAnalyzeEvents},
}

// walkParts visits set and every descendant part, depth-first, pre-order.
func walkParts(set *model.EquationSet, fn func(*model.EquationSet)) {
	fn(set)
	for _, p := range set.Parts {
		walkParts(p, fn)
	}
}
