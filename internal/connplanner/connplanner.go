// Package connplanner implements ConnectionPlanner (spec.md §4.2): for each
// connection part it classifies the binding at each alias as sparse-matrix
// driven, nearest-neighbor, or enumerative, and produces the ConnectionHolder
// list CodeEmitter and the runtime consume.
//
// The classification walk mirrors teacher's chiplet.BuildTopology, which
// likewise turns a flat config into a decorated placement/distance structure
// consumed by later stages without re-deriving it; ManhattanDistance's
// coordinate-pair distance idiom is adapted here into the nearest-neighbor
// classification's $xyz inspection (Euclidean rather than Manhattan, since
// $xyz is a continuous 3-vector rather than a mesh coordinate).
package connplanner

import (
	"log/slog"

	"github.com/jonsalaz/n2a/internal/model"
)

// Planner classifies connection parts. It holds no per-run state beyond an
// optional logger, matching the stateless-struct style of chiplet's
// BuildTopology (a function, not a method on mutable state) generalized
// just enough to carry a logger the way the rest of this module does.
type Planner struct {
	logger *slog.Logger
}

// New creates a Planner that logs to slog.Default.
func New() *Planner {
	return &Planner{logger: slog.Default()}
}

// WithLogger returns a copy of p that logs to logger instead.
func (p *Planner) WithLogger(logger *slog.Logger) *Planner {
	clone := *p
	clone.logger = logger
	return &clone
}

// Plan classifies every connection part reachable from root, populating
// each part's BackendData.ConnectionKind and BackendData.Holders in place.
func (p *Planner) Plan(root *model.EquationSet) {
	p.walk(root)
}

func (p *Planner) walk(set *model.EquationSet) {
	if set.IsConnection() {
		p.planConnection(set)
	}
	for _, child := range set.Parts {
		p.walk(child)
	}
}

func (p *Planner) planConnection(set *model.EquationSet) {
	if set.BackendData == nil {
		set.BackendData = &model.BackendData{}
	}
	bd := set.BackendData

	switch {
	case set.ConnectionMatrix != nil:
		bd.ConnectionKind = model.ConnectionMatrixDriven
	case hasNearestNeighborHint(set):
		bd.ConnectionKind = model.ConnectionNearestNeighbor
	default:
		bd.ConnectionKind = model.ConnectionEnumerative
	}

	holders := make([]*model.ConnectionHolder, 0, len(set.ConnectionBindings))
	byKey := make(map[string]*model.ConnectionHolder)

	for _, binding := range set.ConnectionBindings {
		h := &model.ConnectionHolder{
			Endpoint:   binding.Endpoint,
			Resolution: binding.Resolution,
		}
		applyHints(set, binding, h)

		if _, ok := byKey[h.Key()]; ok {
			continue // coalesced: an earlier binding already produced an equal holder
		}
		byKey[h.Key()] = h
		holders = append(holders, h)
	}

	for i, h := range holders {
		h.Index = i
	}

	bd.Holders = holders

	if p.logger != nil {
		p.logger.Debug("connection planned",
			"part", set.Path(),
			"kind", connectionKindString(bd.ConnectionKind),
			"holders", len(holders))
	}
}

func hasNearestNeighborHint(set *model.EquationSet) bool {
	if _, ok := set.Variable("$k"); ok {
		return true
	}
	if _, ok := set.Variable("$radius"); ok {
		return true
	}
	return false
}

func applyHints(set *model.EquationSet, _ *model.ConnectionBinding, h *model.ConnectionHolder) {
	if v, ok := set.Variable("$k"); ok {
		h.K = intFromDefault(v)
	}
	if v, ok := set.Variable("$min"); ok {
		h.Min = intFromDefault(v)
	}
	if v, ok := set.Variable("$max"); ok {
		h.Max = intFromDefault(v)
	}
	if v, ok := set.Variable("$radius"); ok {
		h.Radius = floatFromDefault(v)
	}
	if _, ok := set.Variable("$project"); ok {
		h.HasProject = true
	}
}

func intFromDefault(v *model.Variable) int {
	return int(floatFromDefault(v))
}

func floatFromDefault(v *model.Variable) float64 {
	eq := v.DefaultEquation()
	if eq == nil {
		return 0
	}
	c, ok := eq.Expression.(*model.Constant)
	if !ok {
		return 0
	}
	return c.Value
}

func connectionKindString(k model.ConnectionKind) string {
	switch k {
	case model.ConnectionMatrixDriven:
		return "matrix-driven"
	case model.ConnectionNearestNeighbor:
		return "nearest-neighbor"
	default:
		return "enumerative"
	}
}
