package model

// StepKind enumerates the three ways a VariableReference moves through the
// part hierarchy to reach a target variable.
type StepKind int

const (
	StepAscend StepKind = iota // move to Container
	StepDescend                // move to a named child part
	StepConnect                // follow a connection endpoint alias
)

// RefStep is one hop of a resolution path.
type RefStep struct {
	Kind  StepKind
	Name  string // child part name (StepDescend) or endpoint alias (StepConnect)
}

// VariableReference is a resolution path "[EquationSet|ConnectionBinding, ...]"
// describing how to reach a Variable from the part where the expression
// lives, per spec.md §3.
type VariableReference struct {
	Steps    []RefStep
	Variable *Variable // resolved target; nil until digest stage 5 runs
}

// NewVariableReference builds an unresolved reference along the given path.
func NewVariableReference(steps ...RefStep) *VariableReference {
	return &VariableReference{Steps: steps}
}

// Resolved reports whether digest has bound this reference to a Variable.
func (r *VariableReference) Resolved() bool {
	return r.Variable != nil
}

// Resolve walks r.Steps starting at origin and returns the part reached,
// or (nil, false) if a step cannot be taken (missing child, missing
// binding, or an ascent past the model root).
func (r *VariableReference) Resolve(origin *EquationSet) (*EquationSet, bool) {
	current := origin
	for _, step := range r.Steps {
		switch step.Kind {
		case StepAscend:
			if current.Container == nil {
				return nil, false
			}
			current = current.Container
		case StepDescend:
			child, ok := current.Part(step.Name)
			if !ok {
				return nil, false
			}
			current = child
		case StepConnect:
			binding, ok := current.Binding(step.Name)
			if !ok {
				return nil, false
			}
			current = binding.Endpoint
		}
	}
	return current, true
}

// ConnectionBinding names one endpoint of a connection part: an alias bound
// to the EquationSet it reaches, the endpoint's slot index within the
// connection, and the resolution path ConnectionPlanner uses to enumerate
// endpoint instances.
type ConnectionBinding struct {
	Alias      string
	Endpoint   *EquationSet
	Index      int
	Resolution []RefStep
}

// ConnectionMatrix names the sparse matrix expression that drives a
// matrix-driven connection, plus the user-supplied coordinate mappings used
// to turn matrix (row,col) pairs into endpoint indices (see ConnectionPlanner
// and runtime ConnectMatrix).
type ConnectionMatrix struct {
	// Source is the expression (typically a FunctionCall to "readMatrix" or
	// a reference to a precomputed Matrix-typed Variable) whose nonzero
	// pattern drives connection formation.
	Source Expr

	// RowMapping/ColMapping hold an expression per endpoint describing how
	// to convert a matrix row/column coordinate into that endpoint's
	// instance index; nil means identity (direct indexing).
	RowMapping Expr
	ColMapping Expr

	// RowEndpointAlias/ColEndpointAlias name which ConnectionBinding alias
	// the row/column axis addresses.
	RowEndpointAlias string
	ColEndpointAlias string
}
