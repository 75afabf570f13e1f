package digest

import (
	"context"
	"math"

	"github.com/jonsalaz/n2a/internal/diag"
	"github.com/jonsalaz/n2a/internal/model"
)

// msb is the bit position of a fixed-point T's most significant bit,
// fixed for a 32-bit signed backing type (bit 31 is sign), matching the
// layout discipline of the teacher's fp16.go fixed-point helper.
const msb = 30

// stageDetermineExponents implements §4.1.1's fixed-point inference pass,
// run only when backend/c/type is "int". It propagates known exponents
// (from literal constants, $t', and per-variable "exponent"/<name> metadata
// annotations) through every expression tree to a fixed point, assigning
// each Variable's Exponent from whichever of its equations has an inferable
// exponent (the last one wins when several do).
func stageDetermineExponents(_ context.Context, d *Digester, root *model.EquationSet) []*diag.DigestError {
	if model.NumericTypeOf(root.Metadata) != model.NumericInt && !d.FixedPoint {
		return nil
	}

	var errs []*diag.DigestError

	walkParts(root, func(set *model.EquationSet) {
		if set.Metadata == nil {
			return
		}
		for _, v := range set.Variables() {
			// an explicit exponent annotation, when present, seeds
			// inference rather than being overwritten by it.
			if s := set.Metadata.GetOrDefault("", "exponent", v.Name); s != "" {
				if e, ok := parseIntAnnotation(s); ok {
					v.Exponent = e
				}
			}
		}
	})

	// iterate until no expression's exponent changes, or a fixed pass
	// budget is exhausted (expression depth is finite and small in
	// practice, so non-convergence signals a genuine underdetermined
	// operator rather than a slow converging chain).
	for pass := 0; pass < 64; pass++ {
		changed := false
		walkParts(root, func(set *model.EquationSet) {
			for _, v := range set.Variables() {
				for _, eq := range v.Equations {
					if eq.Expression != nil {
						if e, ok := inferExponent(eq.Expression); ok {
							if v.Exponent != e {
								v.Exponent = e
							}
						}
						changed = propagateExponentPass(eq.Expression) || changed
					}
				}
			}
		})
		if !changed {
			break
		}
	}

	walkParts(root, func(set *model.EquationSet) {
		for _, v := range set.Variables() {
			for _, eq := range v.Equations {
				if eq.Expression != nil {
					if _, ok := inferExponent(eq.Expression); !ok {
						errs = append(errs, &diag.DigestError{
							Kind:     diag.ExponentUnderdetermined,
							NodePath: set.Path() + "." + v.Name,
							Message:  "fixed-point exponent could not be determined",
						})
					}
				}
			}
		}
	})

	return errs
}

func parseIntAnnotation(s string) (int, bool) {
	neg := false
	i := 0
	if len(s) > 0 && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		i = 1
	}
	if i >= len(s) {
		return 0, false
	}
	n := 0
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}

// propagateExponentPass writes any newly-inferable exponent onto the node
// it belongs to and reports whether anything changed this pass.
func propagateExponentPass(e model.Expr) bool {
	changed := false
	for _, child := range e.Children() {
		if propagateExponentPass(child) {
			changed = true
		}
	}
	switch n := e.(type) {
	case *model.BinaryOp:
		if exp, ok := inferExponent(n); ok && n.Exponent != exp {
			n.Exponent = exp
			changed = true
		}
	case *model.UnaryOp:
		if exp, ok := inferExponent(n); ok && n.Exponent != exp {
			n.Exponent = exp
			changed = true
		}
	case *model.FunctionCall:
		if exp, ok := inferExponent(n); ok && n.Exponent != exp {
			n.Exponent = exp
			changed = true
		}
	case *model.AccessVariable:
		if exp, ok := inferExponent(n); ok && n.Exponent != exp {
			n.Exponent = exp
			changed = true
		}
	}
	return changed
}

// inferExponent computes e's result exponent from its children, returning
// ok=false when an operand's exponent is not yet known.
func inferExponent(e model.Expr) (int, bool) {
	switch n := e.(type) {
	case *model.Constant:
		if n.Kind != model.Scalar {
			return 0, false
		}
		return exponentOfLiteral(n.Value), true
	case *model.AccessVariable:
		if n.Reference == nil || n.Reference.Variable == nil {
			return 0, false
		}
		target := n.Reference.Variable
		// Exponent 0 is ambiguous between "unset" and "genuinely zero";
		// a Variable is treated as having a known exponent once it is
		// constant, initOnly or preexistent, since those are exactly
		// the categories this pass seeds or resolves before any
		// general Variable gets a chance to.
		known := target.HasAny(model.AttrConstant, model.AttrInitOnly, model.AttrPreexistent) || target.Exponent != 0
		return target.Exponent, known
	case *model.UnaryOp:
		return inferExponent(n.Operand)
	case *model.BinaryOp:
		le, lok := inferExponent(n.Left)
		re, rok := inferExponent(n.Right)
		if !lok || !rok {
			return 0, false
		}
		switch n.Op {
		case model.OpAdd, model.OpSub:
			if le > re {
				return le, true
			}
			return re, true
		case model.OpMul:
			return le + re - msb, true
		case model.OpDiv:
			return le - re + msb, true
		case model.OpEQ, model.OpNE, model.OpGT, model.OpGE, model.OpLT, model.OpLE, model.OpAnd, model.OpOr:
			return 0, true // booleans are represented at exponent 0 (values 0/1)
		default:
			return 0, false
		}
	case *model.FunctionCall:
		// built-ins that preserve their first argument's exponent
		// (abs, min, max); anything else is underdetermined without an
		// explicit annotation.
		switch n.Name {
		case "abs", "min", "max":
			if len(n.Args) > 0 {
				return inferExponent(n.Args[0])
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

// exponentOfLiteral returns floor(log2(|v|)) for a nonzero literal, or 0
// for zero (an all-zero bit pattern carries no magnitude information).
func exponentOfLiteral(v float64) int {
	if v == 0 {
		return 0
	}
	return int(math.Floor(math.Log2(math.Abs(v))))
}
