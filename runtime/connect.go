package runtime

import (
	"math"
	"sort"
)

// EndpointLimit bounds how many realized connections a single endpoint
// instance may participate in, per the $min/$max a connection part can
// declare on each binding (spec.md §4.2's "optionally filtered by $max
// (per-endpoint cap) and $min (minimum count)"). Zero means unrestricted.
type EndpointLimit struct {
	Min int
	Max int
}

// FormConnections realizes a connection part's candidates per §4.4.3: for
// each combination of endpoint instances the iterator tree produces, it
// creates a connection instance, binds the endpoints with setPart, and
// keeps it only when uniform() falls under the candidate's own $p (a
// constant 1 when the part defines no $p, so every candidate is kept) and
// when every endpoint's realized degree still sits under its limits' Max.
// After the main pass, for two-endpoint parts only, any endpoint instance
// whose degree falls short of its limits' Min is topped up against
// whatever candidates its own Max still allows. NearestNeighbor-kind iterators additionally restrict the
// last endpoint to the k nearest (or those within radius) candidates by
// $xyz distance from the first; anything else walks the full cartesian
// product. limits may be nil (no endpoint declares $min/$max) or shorter
// than endpointCount; a missing entry is treated as EndpointLimit{}.
func FormConnections(
	conn *ConnectIterator,
	endpointCount int,
	k int,
	radius float64,
	limits []EndpointLimit,
	create func() any,
	setPart func(inst any, i int, endpoint any),
	getP func(inst any) float64,
	getXYZ func(inst any) ([3]float64, bool),
	add func(inst any),
) {
	if conn.Kind == ConnectNearestNeighbor && endpointCount == 2 && getXYZ != nil {
		formConnectionsNN(conn, k, radius, limits, create, setPart, getP, getXYZ, add)
		return
	}
	formConnectionsEnumerative(conn, endpointCount, limits, create, setPart, getP, add)
}

func limitFor(limits []EndpointLimit, i int) EndpointLimit {
	if i < 0 || i >= len(limits) {
		return EndpointLimit{}
	}
	return limits[i]
}

func formConnectionsEnumerative(
	conn *ConnectIterator,
	n int,
	limits []EndpointLimit,
	create func() any,
	setPart func(inst any, i int, endpoint any),
	getP func(inst any) float64,
	add func(inst any),
) {
	iters := make([]Iterator, n)
	for i := 0; i < n; i++ {
		iters[i] = conn.Endpoints(i)
		if iters[i] == nil {
			return
		}
	}

	degree := make([]map[any]int, n)
	for i := range degree {
		degree[i] = make(map[any]int)
	}

	picked := make([]any, n)
	var walk func(i int)
	walk = func(i int) {
		if i == n {
			for j, p := range picked {
				if max := limitFor(limits, j).Max; max > 0 && degree[j][p] >= max {
					return
				}
			}
			inst := create()
			for j, p := range picked {
				setPart(inst, j, p)
			}
			if Uniform() < getP(inst) {
				add(inst)
				for j, p := range picked {
					degree[j][p]++
				}
			}
			return
		}
		iters[i].Reset()
		for {
			v, ok := iters[i].Next()
			if !ok {
				break
			}
			picked[i] = v
			walk(i + 1)
		}
	}
	walk(0)

	if n != 2 {
		return
	}
	sides := [2][]any{collect(iters[0]), collect(iters[1])}
	fillMinimumDegree(limits, sides, degree, create, setPart, add)
}

func formConnectionsNN(
	conn *ConnectIterator,
	k int,
	radius float64,
	limits []EndpointLimit,
	create func() any,
	setPart func(inst any, i int, endpoint any),
	getP func(inst any) float64,
	getXYZ func(inst any) ([3]float64, bool),
	add func(inst any),
) {
	outer := conn.Endpoints(0)
	inner := conn.Endpoints(1)
	if outer == nil || inner == nil {
		return
	}

	candidates := collect(inner)
	outerAll := collect(outer)

	type scored struct {
		inst any
		dist float64
	}

	degree := []map[any]int{make(map[any]int), make(map[any]int)}

	for _, a := range outerAll {
		posA, okA := getXYZ(a)

		near := make([]scored, 0, len(candidates))
		for _, b := range candidates {
			dist := 0.0
			if posB, okB := getXYZ(b); okA && okB {
				dist = distance3(posA, posB)
			}
			if radius > 0 && dist > radius {
				continue
			}
			near = append(near, scored{inst: b, dist: dist})
		}
		sort.Slice(near, func(i, j int) bool { return near[i].dist < near[j].dist })
		if k > 0 && len(near) > k {
			near = near[:k]
		}

		for _, cand := range near {
			if max := limitFor(limits, 0).Max; max > 0 && degree[0][a] >= max {
				break
			}
			if max := limitFor(limits, 1).Max; max > 0 && degree[1][cand.inst] >= max {
				continue
			}
			inst := create()
			setPart(inst, 0, a)
			setPart(inst, 1, cand.inst)
			if Uniform() < getP(inst) {
				add(inst)
				degree[0][a]++
				degree[1][cand.inst]++
			}
		}
	}

	fillMinimumDegree(limits, [2][]any{outerAll, candidates}, degree, create, setPart, add)
}

// collect drains it into a slice via Reset+Next, leaving it freshly reset.
func collect(it Iterator) []any {
	var out []any
	it.Reset()
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

// fillMinimumDegree forces extra connections for any endpoint-0 or
// endpoint-1 instance whose realized degree still falls short of its Min
// after the main pass, pairing it with whatever opposite-endpoint candidate
// is still available under its own Max. Applies only to the two-endpoint
// case, the same simplification nearest-neighbor formation already makes
// for endpoint counts beyond two.
func fillMinimumDegree(
	limits []EndpointLimit,
	sides [2][]any,
	degree []map[any]int,
	create func() any,
	setPart func(inst any, i int, endpoint any),
	add func(inst any),
) {
	for side := 0; side < 2; side++ {
		min := limitFor(limits, side).Min
		if min <= 0 {
			continue
		}
		other := 1 - side
		for _, self := range sides[side] {
			for degree[side][self] < min {
				partner := pickUnderCap(sides[other], other, limits, degree)
				if partner == nil {
					break
				}
				inst := create()
				setPart(inst, side, self)
				setPart(inst, other, partner)
				add(inst)
				degree[side][self]++
				degree[other][partner]++
			}
		}
	}
}

func pickUnderCap(candidates []any, endpoint int, limits []EndpointLimit, degree []map[any]int) any {
	max := limitFor(limits, endpoint).Max
	for _, cand := range candidates {
		if max > 0 && degree[endpoint][cand] >= max {
			continue
		}
		return cand
	}
	return nil
}

func distance3(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// XYZOf reads a $xyz Matrix's first three rows as a plain coordinate,
// reporting false for a nil matrix (the "no position" case an endpoint
// that never set $xyz leaves getXYZ returning).
func XYZOf(m *Matrix) ([3]float64, bool) {
	if m == nil {
		return [3]float64{}, false
	}
	return [3]float64{m.AtV(0), m.AtV(1), m.AtV(2)}, true
}

// FormConnectionsMatrix drives a matrix-driven connection part's formation
// off the nonzero pattern of matrix: each nonzero (row, col) picks the
// row-endpoint's instance at index row and the col-endpoint's instance at
// index col through getEndpointAt, exactly as NewConnectMatrix's emitted
// getIterators() tags the part but formConnectionsEnumerative has no way to
// walk without dense-vs-sparse endpoint shape information. $min/$max are
// not threaded here: a matrix-driven part's degree is already fixed by the
// matrix's own nonzero pattern, not by formation-time acceptance.
func FormConnectionsMatrix(
	matrix *Matrix,
	rowEndpoint, colEndpoint int,
	getEndpointAt func(endpoint, idx int) any,
	create func() any,
	setPart func(inst any, i int, endpoint any),
	getP func(inst any) float64,
	add func(inst any),
) {
	if matrix == nil {
		return
	}
	it := matrix.IteratorNonzero()
	for {
		row, col, _, ok := it.Next()
		if !ok {
			break
		}
		rowInst := getEndpointAt(rowEndpoint, row)
		colInst := getEndpointAt(colEndpoint, col)
		if rowInst == nil || colInst == nil {
			continue
		}
		inst := create()
		setPart(inst, rowEndpoint, rowInst)
		setPart(inst, colEndpoint, colInst)
		if Uniform() < getP(inst) {
			add(inst)
		}
	}
}
