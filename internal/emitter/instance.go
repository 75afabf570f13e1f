package emitter

import (
	"fmt"
	"strings"

	"github.com/jonsalaz/n2a/internal/model"
)

// emitInstance renders one part's Instance type: struct fields per §4.3's
// Instance layout plus the lifecycle functions its BackendData flags call
// for.
func (e *Emitter) emitInstance(set *model.EquationSet) (string, error) {
	typeName := instanceType(set)
	var b strings.Builder

	fmt.Fprintf(&b, "package main\n\n")
	fmt.Fprintf(&b, "import n2art \"github.com/jonsalaz/n2a/runtime\"\n\n")

	fmt.Fprintf(&b, "type %s struct {\n", typeName)
	fmt.Fprintf(&b, "\tcontainer *%s\n", containerPopulationType(set))
	for _, binding := range set.ConnectionBindings {
		fmt.Fprintf(&b, "\t%s *%s\n", exportField(binding.Alias), instanceType(binding.Endpoint))
	}
	for _, v := range localFields(set) {
		fmt.Fprintf(&b, "\t%s %s\n", fieldName(v), e.goType(v.Type))
		if v.IsBuffered() {
			fmt.Fprintf(&b, "\tnext_%s %s\n", fieldName(v), e.goType(v.Type))
		}
	}
	bd := set.BackendData
	if len(bd.Integrated) > 0 {
		b.WriteString("\trkStack []float64\n")
	}
	if bd.NeedsIndex {
		b.WriteString("\tindex int\n")
	}
	if bd.NeedsRefcount {
		b.WriteString("\trefcount int\n")
	}
	if bd.NeedsLastT {
		b.WriteString("\tlastT float64\n")
	}
	b.WriteString("\tflags uint64\n")
	for _, t := range bd.EventTargets {
		if t.NeedsTime {
			fmt.Fprintf(&b, "\teventTime%s float64\n", exportField(t.Name))
		}
	}
	for i := range bd.Delays {
		fmt.Fprintf(&b, "\tdelay%d n2art.DelayLine\n", i)
	}
	for _, child := range set.Parts {
		fmt.Fprintf(&b, "\t%s %s\n", exportField(child.Name), populationType(child))
	}
	b.WriteString("}\n\n")

	e.emitInstanceLifecycle(&b, set, typeName)

	return b.String(), nil
}

func (e *Emitter) emitInstanceLifecycle(b *strings.Builder, set *model.EquationSet, typeName string) {
	bd := set.BackendData
	r := e.renderer(set)

	fmt.Fprintf(b, "func (this *%s) ctor() {\n", typeName)
	for _, child := range set.Parts {
		field := exportField(child.Name)
		fmt.Fprintf(b, "\tthis.%s.container = this.container\n", field)
		fmt.Fprintf(b, "\tthis.%s.ctor()\n", field)
	}
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "func (this *%s) dtor() {\n", typeName)
	for _, child := range set.Parts {
		fmt.Fprintf(b, "\tthis.%s.dtor()\n", exportField(child.Name))
	}
	b.WriteString("}\n\n")

	// No analysis flag currently distinguishes parts that need bookkeeping
	// on simulation entry/exit (membership in an external index, say), so
	// these stay no-ops for every part rather than being conditionally
	// emitted.
	fmt.Fprintf(b, "func (this *%s) enterSimulation() {}\n\n", typeName)
	fmt.Fprintf(b, "func (this *%s) leaveSimulation() {}\n\n", typeName)

	fmt.Fprintf(b, "// clear resets this instance to its zero state, for reuse from a freed slot.\n")
	fmt.Fprintf(b, "func (this *%s) clear() {\n\t*this = %s{container: this.container}\n\tthis.ctor()\n}\n\n", typeName, typeName)

	fmt.Fprintf(b, "// die marks this instance dead, propagating per the part's lethal-dependency flags.\n")
	fmt.Fprintf(b, "func (this *%s) die() {\n", typeName)
	fmt.Fprintf(b, "\tthis.flags &^= %s\n", flagBitConst(set, "$live"))
	if set.LethalContainer || set.LethalConnection || set.LethalP {
		b.WriteString("\t// propagation to dependents is driven by the owning Population's finalize scan.\n")
	}
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "func (this *%s) isFree() bool {\n\treturn this.flags&%s == 0\n}\n\n", typeName, flagBitConst(set, "$live"))

	fmt.Fprintf(b, "func (this *%s) now() float64 {\n\treturn this.container.simulator.Now()\n}\n\n", typeName)
	fmt.Fprintf(b, "func (this *%s) dt() float64 {\n\treturn this.container.simulator.DT()\n}\n\n", typeName)

	fmt.Fprintf(b, "func (this *%s) init() {\n", typeName)
	fmt.Fprintf(b, "\tthis.flags |= %s\n", flagBitConst(set, "$live"))
	fmt.Fprintf(b, "\tthis.flags |= %s\n", flagBitConst(set, "newborn"))
	for _, v := range set.Ordered {
		if v.Order != 0 || !isEmittable(v) {
			continue
		}
		for _, line := range r.lowerVariable(v) {
			fmt.Fprintf(b, "\t%s\n", line)
		}
	}
	b.WriteString("}\n\n")

	if len(bd.Integrated) > 0 {
		fmt.Fprintf(b, "func (this *%s) integrate(dt float64) {\n", typeName)
		for _, deriv := range bd.Integrated {
			companion := lowerCompanion(set, deriv)
			fmt.Fprintf(b, "\tthis.%s += this.%s * dt\n", fieldName(companion), fieldName(deriv))
		}
		b.WriteString("}\n\n")

		fmt.Fprintf(b, "func (this *%s) updateDerivative(dt float64) {\n\tthis.integrate(dt)\n}\n\n", typeName)
		fmt.Fprintf(b, "func (this *%s) finalizeDerivative() {}\n\n", typeName)

		fmt.Fprintf(b, "// snapshot preserves each integrated variable's order-0 value ahead of\n")
		fmt.Fprintf(b, "// RungeKutta's trial-state stages, which perturb it before restore undoes them.\n")
		fmt.Fprintf(b, "func (this *%s) snapshot() n2art.Preserve {\n\treturn n2art.Preserve{Values: []float64{", typeName)
		for i, deriv := range bd.Integrated {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "this.%s", fieldName(lowerCompanion(set, deriv)))
		}
		b.WriteString("}}\n}\n\n")

		fmt.Fprintf(b, "func (this *%s) restore(p n2art.Preserve) {\n", typeName)
		for i, deriv := range bd.Integrated {
			fmt.Fprintf(b, "\tthis.%s = p.Values[%d]\n", fieldName(lowerCompanion(set, deriv)), i)
		}
		b.WriteString("}\n\n")

		fmt.Fprintf(b, "// stepTrial advances each integrated variable's order-0 value by h times its\n")
		fmt.Fprintf(b, "// current derivative, the trial point RungeKutta's intermediate stages\n")
		fmt.Fprintf(b, "// evaluate the next derivative at.\n")
		fmt.Fprintf(b, "func (this *%s) stepTrial(h float64) {\n", typeName)
		for _, deriv := range bd.Integrated {
			fmt.Fprintf(b, "\tthis.%s += h * this.%s\n", fieldName(lowerCompanion(set, deriv)), fieldName(deriv))
		}
		b.WriteString("}\n\n")

		fmt.Fprintf(b, "// pushDerivative seeds the weighted-sum accumulator with the derivative just\n")
		fmt.Fprintf(b, "// evaluated (RungeKutta's k1, carried with an implicit weight of 1).\n")
		fmt.Fprintf(b, "func (this *%s) pushDerivative() {\n\tthis.rkStack = []float64{", typeName)
		for i, deriv := range bd.Integrated {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "this.%s", fieldName(deriv))
		}
		b.WriteString("}\n}\n\n")

		fmt.Fprintf(b, "func (this *%s) multiplyAddToStack(scalar float64) {\n", typeName)
		for i, deriv := range bd.Integrated {
			fmt.Fprintf(b, "\tthis.rkStack[%d] += this.%s * scalar\n", i, fieldName(deriv))
		}
		b.WriteString("}\n\n")

		fmt.Fprintf(b, "// multiply scales each derivative field in place, used after addToMembers\n")
		fmt.Fprintf(b, "// folds the accumulated stack in to turn the weighted sum into a weighted mean.\n")
		fmt.Fprintf(b, "func (this *%s) multiply(scalar float64) {\n", typeName)
		for _, deriv := range bd.Integrated {
			fmt.Fprintf(b, "\tthis.%s *= scalar\n", fieldName(deriv))
		}
		b.WriteString("}\n\n")

		fmt.Fprintf(b, "func (this *%s) addToMembers() {\n", typeName)
		for i, deriv := range bd.Integrated {
			fmt.Fprintf(b, "\tthis.%s += this.rkStack[%d]\n", fieldName(deriv), i)
		}
		b.WriteString("}\n\n")
	}

	fmt.Fprintf(b, "func (this *%s) update() {\n", typeName)
	for _, v := range set.Ordered {
		if !isEmittable(v) {
			continue
		}
		if v.HasAttribute(model.AttrTemporary) || v.Order != 0 {
			for _, line := range r.lowerVariable(v) {
				fmt.Fprintf(b, "\t%s\n", line)
			}
		}
	}
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "func (this *%s) finalize() bool {\n", typeName)
	for _, v := range set.Ordered {
		if !isEmittable(v) {
			continue
		}
		if v.Order == 0 && !v.HasAttribute(model.AttrTemporary) {
			for _, line := range r.lowerVariable(v) {
				fmt.Fprintf(b, "\t%s\n", line)
			}
		}
	}
	for _, v := range bd.Buffered {
		field := fieldName(v)
		fmt.Fprintf(b, "\tthis.%s = this.next_%s\n", field, field)
		fmt.Fprintf(b, "\tthis.next_%s = %s\n", field, zeroOrIdentity(v))
	}
	if len(bd.EventTargets) > 0 {
		b.WriteString("\tthis.scanEvents()\n")
	}
	for _, target := range bd.EventTargets {
		fmt.Fprintf(b, "\tthis.finalizeEvent%s()\n", exportField(target.Name))
	}
	b.WriteString("\treturn !this.isFree()\n")
	b.WriteString("}\n\n")

	if bd.LiveStored {
		fmt.Fprintf(b, "func (this *%s) getLive() bool {\n\treturn this.flags&%s != 0\n}\n\n", typeName, flagBitConst(set, "$live"))
	} else {
		fmt.Fprintf(b, "func (this *%s) getLive() bool {\n\treturn true\n}\n\n", typeName)
	}

	if p, ok := set.Variable("$p"); ok {
		fmt.Fprintf(b, "func (this *%s) getP() %s {\n\treturn this.%s\n}\n\n", typeName, e.goType(p.Type), exportField("$p"))
	}
	if xyz, ok := set.Variable("$xyz"); ok {
		fmt.Fprintf(b, "func (this *%s) getXYZ() %s {\n\treturn this.%s\n}\n\n", typeName, e.goType(xyz.Type), exportField("$xyz"))
	}
	if project, ok := set.Variable("$project"); ok {
		fmt.Fprintf(b, "func (this *%s) getProject(endpoint int) %s {\n\treturn this.%s\n}\n\n", typeName, e.goType(project.Type), exportField("$project"))
	}

	if set.IsConnection() {
		fmt.Fprintf(b, "func (this *%s) setPart(i int, part any) {\n", typeName)
		for _, binding := range set.ConnectionBindings {
			fmt.Fprintf(b, "\tif i == %d {\n\t\tthis.%s = part.(*%s)\n\t}\n", binding.Index, exportField(binding.Alias), instanceType(binding.Endpoint))
		}
		b.WriteString("}\n\n")

		fmt.Fprintf(b, "func (this *%s) getPart(i int) any {\n", typeName)
		for _, binding := range set.ConnectionBindings {
			fmt.Fprintf(b, "\tif i == %d {\n\t\treturn this.%s\n\t}\n", binding.Index, exportField(binding.Alias))
		}
		b.WriteString("\treturn nil\n}\n\n")
	}

	fmt.Fprintf(b, "func (this *%s) getNewborn() bool {\n\treturn this.flags&%s != 0\n}\n\n", typeName, flagBitConst(set, "newborn"))

	if set.ConnectionMatrix != nil {
		fmt.Fprintf(b, "func (this *%s) mapIndex(row, col int) int {\n\treturn row\n}\n\n", typeName)
	}

	if len(bd.EventTargets) > 0 {
		fmt.Fprintf(b, "// scanEvents tests every event() target's edge condition against the state\n")
		fmt.Fprintf(b, "// this tick's update() settled on, called from finalize() after the\n")
		fmt.Fprintf(b, "// buffered-field swap so it runs exactly once per real tick no matter how\n")
		fmt.Fprintf(b, "// many trial updates the integrator ran to get there, and schedules a\n")
		fmt.Fprintf(b, "// latch-setting spike at the delay-quantized fire time for each target whose\n")
		fmt.Fprintf(b, "// edge condition just tripped.\n")
		fmt.Fprintf(b, "func (this *%s) scanEvents() {\n", typeName)
		for _, target := range bd.EventTargets {
			name := exportField(target.Name)
			fmt.Fprintf(b, "\tif this.eventTest%s() {\n", name)
			fmt.Fprintf(b, "\t\tdelay := this.eventDelay%s()\n", name)
			b.WriteString("\t\tat := this.container.simulator.QuantizeTime(this.now() + delay)\n")
			b.WriteString("\t\ttarget := this\n")
			fmt.Fprintf(b, "\t\tthis.container.simulator.ScheduleSpikeLatch(n2art.EventSpikeLatch{\n\t\t\tEventSpike: n2art.EventSpike{At: at},\n\t\t\tSetLatch:   func() { target.setLatch%s() },\n\t\t})\n", name)
			b.WriteString("\t}\n")
		}
		b.WriteString("}\n\n")
	}

	for _, target := range bd.EventTargets {
		emitEventTargetMethods(b, typeName, target, r)
	}

	fmt.Fprintf(b, "func (this *%s) getCount() int {\n\treturn 1\n}\n\n", typeName)

	fmt.Fprintf(b, "func (this *%s) path() string {\n\treturn %q\n}\n\n", typeName, set.Path())

	for i, conv := range set.Splits {
		fmt.Fprintf(b, "func (this *%s) from_%d_to(%s) {\n", typeName, i+1, strings.Join(partParamNames(conv.Parts), ", "))
		b.WriteString("\t// conversion target construction is owned by the destination Populations' create().\n")
		b.WriteString("}\n\n")
	}
}

func partParamNames(parts []*model.EquationSet) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = fmt.Sprintf("%s *%s", strings.ToLower(exportField(p.Name)), instanceType(p))
	}
	return out
}

// emitEventTargetMethods renders one EventTarget's eventTest/eventDelay/
// setLatch/finalizeEvent quartet. eventTest computes RISE/FALL/CHANGE by
// comparing the condition's current value against the TrackVariable digest
// stage 20 allocated for it, updating that field in the same call so the
// next scan sees this cycle's value as its "before"; NONZERO needs no
// tracking and just reads the condition directly.
func emitEventTargetMethods(b *strings.Builder, typeName string, target *model.EventTarget, r *exprRenderer) {
	name := exportField(target.Name)
	cond := r.render(target.Condition)

	fmt.Fprintf(b, "func (this *%s) eventTest%s() bool {\n", typeName, name)
	switch target.Edge {
	case model.EdgeRise, model.EdgeFall, model.EdgeChange:
		trackField := fieldName(target.TrackVariable)
		fmt.Fprintf(b, "\tcurrent := %s\n", cond)
		fmt.Fprintf(b, "\tprev := this.%s\n", trackField)
		fmt.Fprintf(b, "\tthis.%s = current\n", trackField)
		switch target.Edge {
		case model.EdgeRise:
			b.WriteString("\treturn prev <= 0 && current > 0\n")
		case model.EdgeFall:
			b.WriteString("\treturn prev > 0 && current <= 0\n")
		default:
			b.WriteString("\treturn current != prev\n")
		}
	default:
		fmt.Fprintf(b, "\treturn %s != 0\n", cond)
	}
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "func (this *%s) eventDelay%s() float64 {\n", typeName, name)
	if target.ConstantDelay {
		fmt.Fprintf(b, "\treturn %s\n", formatFloat(target.Delay))
	} else if target.DelayExpr != nil {
		fmt.Fprintf(b, "\treturn %s\n", r.render(target.DelayExpr))
	} else {
		b.WriteString("\treturn 0\n")
	}
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "func (this *%s) setLatch%s() {\n\tthis.flags |= %s\n}\n\n", typeName, name, flagBitConst(r.scope, target.Name))

	fmt.Fprintf(b, "func (this *%s) finalizeEvent%s() {\n\tthis.flags &^= %s\n}\n\n", typeName, name, flagBitConst(r.scope, target.Name))
}

// zeroOrIdentity is the literal a buffered Variable's next_ shadow resets
// to after each finalize: a combiner's reduction identity for scalars,
// plain zero values for matrix/text fields (which never combine).
func zeroOrIdentity(v *model.Variable) string {
	if v.Type != model.Scalar {
		return zeroValue(v.Type)
	}
	return formatFloat(v.CombinerIdentity())
}

func formatFloat(f float64) string {
	switch {
	case f == 0:
		return "0"
	case f > 1e300:
		return "n2art.PosInf"
	case f < -1e300:
		return "n2art.NegInf"
	default:
		return fmt.Sprintf("%g", f)
	}
}
