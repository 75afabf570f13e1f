package model

import "math"

// Assignment is the combiner tag associated with a Variable's writes.
type Assignment int

const (
	REPLACE Assignment = iota
	ADD
	MULTIPLY
	DIVIDE
	MIN
	MAX
)

func (a Assignment) String() string {
	switch a {
	case ADD:
		return "+="
	case MULTIPLY:
		return "*="
	case DIVIDE:
		return "/="
	case MIN:
		return "<<="
	case MAX:
		return ">>="
	default:
		return "="
	}
}

// Combined reports whether this assignment requires cross-writer reduction
// (anything but REPLACE).
func (a Assignment) Combined() bool {
	return a != REPLACE
}

// VarType is the storage type of a Variable.
type VarType int

const (
	Scalar VarType = iota
	Matrix
	Text
)

// Recognized string attribute tags, per spec.md §3.
const (
	AttrConstant      = "constant"
	AttrInitOnly      = "initOnly"
	AttrTemporary     = "temporary"
	AttrAccessor      = "accessor"
	AttrPreexistent   = "preexistent"
	AttrGlobal        = "global"
	AttrExternalRead  = "externalRead"
	AttrExternalWrite = "externalWrite"
	AttrCycle         = "cycle"
	AttrMatrixPointer = "MatrixPointer"
	AttrDummy         = "dummy"
	AttrParam         = "param"
	AttrCli           = "cli"
	AttrReference     = "reference"
)

// Equation is one conditional arm of a Variable's definition. A nil
// Condition marks the default (unconditional) arm; at most one per Variable
// may have a nil Condition.
type Equation struct {
	Condition  Expr
	Expression Expr
}

// Variable is a named quantity in a part.
type Variable struct {
	Name      string
	Order     int // derivative order; 0 is value
	Equations []*Equation

	Assignment Assignment
	Type       VarType

	Derivative *Variable // the next-order-up variable (this one's derivative), if any
	Reference  *VariableReference // resolved alias target, if this name aliases another part's variable

	Container *EquationSet // owning part, set by EquationSet.AddVariable

	attributes map[string]bool

	// Exponent is meaningful only in fixed-point mode (backend/c/type=int).
	Exponent int
}

// NewVariable creates a Variable with no equations and no attributes.
func NewVariable(name string, order int) *Variable {
	return &Variable{
		Name:       name,
		Order:      order,
		attributes: make(map[string]bool),
	}
}

// DefaultEquation returns the Equation with a nil Condition, if any.
func (v *Variable) DefaultEquation() *Equation {
	for _, e := range v.Equations {
		if e.Condition == nil {
			return e
		}
	}
	return nil
}

// AddEquation appends a conditional equation arm.
func (v *Variable) AddEquation(e *Equation) {
	v.Equations = append(v.Equations, e)
}

// SetAttribute marks v with the given tag.
func (v *Variable) SetAttribute(tag string) {
	v.attributes[tag] = true
}

// ClearAttribute removes the given tag.
func (v *Variable) ClearAttribute(tag string) {
	delete(v.attributes, tag)
}

// HasAttribute reports whether v carries the given tag.
func (v *Variable) HasAttribute(tag string) bool {
	return v.attributes[tag]
}

// HasAny reports whether v carries any of the given tags.
func (v *Variable) HasAny(tags ...string) bool {
	for _, t := range tags {
		if v.attributes[t] {
			return true
		}
	}
	return false
}

// Attributes returns a defensive copy of the attribute set, primarily for
// the digest-idempotence test (§8 "Digest is idempotent ... up to attribute
// set equality").
func (v *Variable) Attributes() map[string]bool {
	out := make(map[string]bool, len(v.attributes))
	for k := range v.attributes {
		out[k] = true
	}
	return out
}

// IsBuffered reports whether writes to v go through a next_ shadow field,
// resolved at finalize (the "Buffering" glossary term).
func (v *Variable) IsBuffered() bool {
	return v.HasAny(AttrCycle, AttrExternalRead, AttrExternalWrite)
}

// IsLocal reports whether v is stored at instance scope rather than
// population scope. A variable is local unless marked global.
func (v *Variable) IsLocal() bool {
	return !v.HasAttribute(AttrGlobal)
}

// CombinerIdentity returns the reset value a combined Variable's buffer
// takes after each finalize, per §8's universal invariant.
func (v *Variable) CombinerIdentity() float64 {
	switch v.Assignment {
	case ADD:
		return 0
	case MULTIPLY, DIVIDE:
		return 1
	case MIN:
		return math.Inf(1)
	case MAX:
		return math.Inf(-1)
	default:
		return 0
	}
}
