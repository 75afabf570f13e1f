package emitter

import "github.com/jonsalaz/n2a/internal/model"

// lowerVariable renders one Variable's equations as the if/else-if chain
// §4.3's multiconditional contract describes: arms run in source-declared
// order, the default (condition-less) arm emits last as the final else, a
// temporary variable with no default falls through to zeroing, and an
// external-write combiner with no default simply leaves its buffered field
// untouched (its next_ value already carries the identity-reduced result
// from the prior cycle).
func (r *exprRenderer) lowerVariable(v *model.Variable) []string {
	target := r.lvalue(v)

	var conditional []*model.Equation
	var def *model.Equation
	for _, eq := range v.Equations {
		if eq.Condition == nil {
			def = eq
			continue
		}
		conditional = append(conditional, eq)
	}

	var lines []string
	if len(conditional) == 0 && def == nil {
		return lines
	}

	keyword := "if"
	for _, eq := range conditional {
		lines = append(lines, keyword+" "+r.render(eq.Condition)+" {")
		lines = append(lines, "\t"+writeStmt(target, v, r.render(eq.Expression)))
		lines = append(lines, "}")
		keyword = "else if"
	}

	switch {
	case def != nil:
		if len(conditional) == 0 {
			lines = append(lines, writeStmt(target, v, r.render(def.Expression)))
		} else {
			// Rejoin the trailing "}" with "else {" so the chain reads as a
			// single if/else-if/else statement rather than separate ifs.
			lines[len(lines)-1] = "} else {"
			lines = append(lines, "\t"+writeStmt(target, v, r.render(def.Expression)))
			lines = append(lines, "}")
		}
	case v.HasAttribute(model.AttrTemporary):
		if len(conditional) == 0 {
			lines = append(lines, target+" = "+zeroValue(v.Type))
		} else {
			lines[len(lines)-1] = "} else {"
			lines = append(lines, "\t"+target+" = "+zeroValue(v.Type))
			lines = append(lines, "}")
		}
	default:
		// No default, not temporary: a combined external write (or any
		// plain variable) simply keeps whatever it already holds when no
		// condition fires this cycle.
	}

	return lines
}

// writeStmt renders the statement that combines exprText into target per
// v's Assignment combiner. ADD/MULTIPLY/DIVIDE map onto Go's compound
// assignment operators directly; MIN/MAX have no Go operator spelling, so
// they lower to the builtin min/max call instead.
func writeStmt(target string, v *model.Variable, exprText string) string {
	switch v.Assignment {
	case model.MIN:
		return target + " = min(" + target + ", " + exprText + ")"
	case model.MAX:
		return target + " = max(" + target + ", " + exprText + ")"
	default:
		return target + " " + assignOp(v) + " " + exprText
	}
}

// lvalue returns the Go field a Variable's equations write into: buffered
// variables write their next_ shadow, everything else writes its field
// directly.
func (r *exprRenderer) lvalue(v *model.Variable) string {
	field := fieldName(v)
	if v.IsBuffered() {
		return "this.next_" + field
	}
	return "this." + field
}

// assignOp is the Go operator a Variable's equations use to write its
// target: a combined Variable (anything but REPLACE) keeps accumulating
// into its existing value, a plain Variable overwrites it.
func assignOp(v *model.Variable) string {
	if v.Assignment.Combined() {
		return v.Assignment.String()
	}
	return "="
}

func zeroValue(t model.VarType) string {
	switch t {
	case model.Text:
		return `""`
	case model.Matrix:
		return "nil"
	default:
		return "0"
	}
}
