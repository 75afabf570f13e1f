// Package model holds the decorated equation-hierarchy data model that
// EquationDigest consumes and produces: EquationSet, Variable,
// VariableReference, ConnectionBinding and BackendData.
package model

import "strings"

// EquationSet is a node in the part hierarchy. A part with non-nil
// ConnectionBindings is a connection; otherwise it is a compartment.
type EquationSet struct {
	Name      string
	Container *EquationSet // back-link, not owning
	Parts     []*EquationSet

	variables     []*Variable
	variableIndex map[string]*Variable

	ConnectionBindings []*ConnectionBinding // non-nil => this part is a connection
	ConnectionMatrix   *ConnectionMatrix

	Singleton bool

	Pins []*Pin

	Metadata *Metadata

	// OrderedParts is populated by digest stage 8 (dependency-order sort).
	OrderedParts []*EquationSet
	// Ordered is populated by digest stage 14 (per-part evaluation order).
	Ordered []*Variable

	// Splits holds the distinct $type targets reachable from this part,
	// in source order; multiconditional resolves a $type write to
	// index+1 into this slice.
	Splits []*Conversion

	// Death-propagation flags, set in digest stage 11.
	LethalP          bool // $p reaching zero kills this instance
	LethalContainer   bool // death of the container kills this instance
	LethalConnection  bool // death of a connection endpoint kills this instance

	BackendData *BackendData
}

// NewEquationSet creates an empty part owned by container (container may be
// nil for the root of a model).
func NewEquationSet(name string, container *EquationSet) *EquationSet {
	return &EquationSet{
		Name:          name,
		Container:     container,
		variableIndex: make(map[string]*Variable),
	}
}

// IsConnection reports whether this part binds one or more endpoints.
func (s *EquationSet) IsConnection() bool {
	return len(s.ConnectionBindings) > 0
}

// IsCompartment is the complement of IsConnection.
func (s *EquationSet) IsCompartment() bool {
	return !s.IsConnection()
}

// AddPart appends a child part, taking ownership of it.
func (s *EquationSet) AddPart(child *EquationSet) {
	child.Container = s
	s.Parts = append(s.Parts, child)
}

// Variables returns the set of variables in source order.
func (s *EquationSet) Variables() []*Variable {
	return s.variables
}

// variableKey is the index key for v: its base Name with one trailing "'"
// appended per derivative order, so a part can hold an order-0 "V" and its
// order-1 companion (also Name "V", per modelio's prime-stripping
// convention) as two distinct entries rather than one colliding on Name.
func variableKey(name string, order int) string {
	if order == 0 {
		return name
	}
	return name + strings.Repeat("'", order)
}

// AddVariable inserts v into this part's variable set, indexed by
// (name, order). Re-adding a variable at the same (name, order) replaces
// the prior one in the index but preserves slice position, matching the
// "at most one default equation" collapsing behavior used when digest
// merges redeclarations.
func (s *EquationSet) AddVariable(v *Variable) {
	v.Container = s
	key := variableKey(v.Name, v.Order)
	if existing, ok := s.variableIndex[key]; ok {
		for i, candidate := range s.variables {
			if candidate == existing {
				s.variables[i] = v
				break
			}
		}
	} else {
		s.variables = append(s.variables, v)
	}
	s.variableIndex[key] = v
}

// Variable looks up a variable by name within this part only (no ascent).
// name is the raw reference text as written in an equation, which may
// carry trailing "'" marks denoting derivative order ("V'" finds the
// order-1 companion of "V"); a bare name implies order 0.
func (s *EquationSet) Variable(name string) (*Variable, bool) {
	v, ok := s.variableIndex[name]
	return v, ok
}

// RemoveVariable deletes v from this part (used by digest stage 12,
// removal of unused variables).
func (s *EquationSet) RemoveVariable(v *Variable) {
	delete(s.variableIndex, variableKey(v.Name, v.Order))
	for i, candidate := range s.variables {
		if candidate == v {
			s.variables = append(s.variables[:i], s.variables[i+1:]...)
			return
		}
	}
}

// Part looks up an immediate child part by name.
func (s *EquationSet) Part(name string) (*EquationSet, bool) {
	for _, p := range s.Parts {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Binding looks up a connection binding by alias.
func (s *EquationSet) Binding(alias string) (*ConnectionBinding, bool) {
	for _, b := range s.ConnectionBindings {
		if b.Alias == alias {
			return b, true
		}
	}
	return nil, false
}

// Depth returns the number of ascents from s to the model root.
func (s *EquationSet) Depth() int {
	depth := 0
	for c := s.Container; c != nil; c = c.Container {
		depth++
	}
	return depth
}

// Path renders the dotted container path to this part, used in DigestError
// node paths.
func (s *EquationSet) Path() string {
	if s.Container == nil {
		return s.Name
	}
	return s.Container.Path() + "." + s.Name
}

// Conversion records a single $type split target: the destination part
// combination this compartment may transition into.
type Conversion struct {
	Parts []*EquationSet
}
