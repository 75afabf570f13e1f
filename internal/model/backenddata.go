package model

// EventEdge is the trigger condition an EventTarget watches for.
type EventEdge int

const (
	EdgeRise EventEdge = iota
	EdgeFall
	EdgeChange
	EdgeNonzero
)

// EventTarget is a condition expression monitored for a trigger edge,
// emitted as one bit in an Instance's flags word plus, when timing
// disambiguation is needed, an eventTime# field.
type EventTarget struct {
	Name          string
	ValueIndex    int // position in the owning part's event-target table
	Edge          EventEdge
	Condition     Expr
	TrackVariable *Variable // allocated when Edge needs a "before" value
	NeedsTime     bool      // true => emit eventTime# field
	ConstantDelay bool
	Delay         float64 // meaningful when ConstantDelay
	DelayExpr     Expr    // meaningful when !ConstantDelay
}

// EventSource owns a monitor list of instances scanned during finalize to
// detect EventTarget transitions.
type EventSource struct {
	Target      *EventTarget
	MonitorPath []RefStep // how to reach the monitored part from the source
}

// DelayPipeline records one use of the Delay() operator: a fixed-depth
// shift register of past values.
type DelayPipeline struct {
	Depth    int
	Variable *Variable // the value being delayed
}

// BackendData is the per-part analysis output produced during emission
// planning (ConnectionPlanner + the late digest stages) and consumed only
// by CodeEmitter; it never participates in EquationDigest's own semantic
// checks.
type BackendData struct {
	// LocalVariables are those stored at Instance scope.
	LocalVariables []*Variable
	// GlobalVariables are those stored at Population scope (AttrGlobal).
	GlobalVariables []*Variable
	// Buffered lists variables needing a next_ shadow field.
	Buffered []*Variable
	// Integrated lists order>0 variables requiring `v += v' * dt`.
	Integrated []*Variable

	// LiveStored indicates $live is backed by a flags bit rather than a
	// computed accessor.
	LiveStored bool

	// EventTargets/EventSources are populated by digest stage 20.
	EventTargets []*EventTarget
	EventSources []*EventSource

	// Delays lists pipelined Delay() operator usages.
	Delays []*DelayPipeline

	// LocalColumns/GlobalColumns name the computed output columns this
	// part contributes, in emission order.
	LocalColumns  []string
	GlobalColumns []string

	// FlagBits maps a named bit ($live, newborn, or an event target name)
	// to its position within the Instance flags word.
	FlagBits map[string]int

	// NeedsIndex/NeedsRefcount/NeedsLastT mirror the optional Instance
	// fields from spec.md §4.3.
	NeedsIndex    bool
	NeedsRefcount bool
	NeedsLastT    bool

	// Connection-only: set when ConnectionPlanner classifies this part.
	ConnectionKind ConnectionKind
	Holders        []*ConnectionHolder
}

// ConnectionKind classifies how a connection part enumerates endpoint
// instances, per spec.md §4.2.
type ConnectionKind int

const (
	ConnectionEnumerative ConnectionKind = iota
	ConnectionNearestNeighbor
	ConnectionMatrixDriven
)

// ConnectionHolder is ConnectionPlanner's per-binding output.
type ConnectionHolder struct {
	Index      int
	K          int
	Min        int
	Max        int
	Radius     float64
	HasProject bool
	Endpoint   *EquationSet
	Resolution []RefStep
}

// Key returns a canonical string used to coalesce value-equal holders into
// one shared ConnectionHolder/index.
func (h *ConnectionHolder) Key() string {
	b := make([]byte, 0, 64)
	b = append(b, h.Endpoint.Path()...)
	b = appendInt(b, h.K)
	b = appendInt(b, h.Min)
	b = appendInt(b, h.Max)
	b = appendFloat(b, h.Radius)
	if h.HasProject {
		b = append(b, 'P')
	}
	for _, step := range h.Resolution {
		b = appendInt(b, int(step.Kind))
		b = append(b, step.Name...)
	}
	return string(b)
}
