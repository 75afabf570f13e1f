package emitter

import (
	"fmt"
	"strings"

	"github.com/jonsalaz/n2a/internal/model"
)

// emitPopulation renders one part's Population type: the per-population
// struct fields from §4.3's Population layout plus its lifecycle
// functions.
func (e *Emitter) emitPopulation(set *model.EquationSet) (string, error) {
	typeName := populationType(set)
	var b strings.Builder

	fmt.Fprintf(&b, "package main\n\n")
	fmt.Fprintf(&b, "import n2art \"github.com/jonsalaz/n2a/runtime\"\n\n")

	fmt.Fprintf(&b, "type %s struct {\n", typeName)
	if set.Container != nil {
		fmt.Fprintf(&b, "\tcontainer *%s\n", populationType(set.Container))
	}
	for _, v := range globalFields(set) {
		fmt.Fprintf(&b, "\t%s %s\n", fieldName(v), e.goType(v.Type))
		if v.IsBuffered() {
			fmt.Fprintf(&b, "\tnext_%s %s\n", fieldName(v), e.goType(v.Type))
		}
	}
	b.WriteString("\tinstances []*" + instanceType(set) + "\n")
	b.WriteString("\tn int\n")
	b.WriteString("\tnextIndex int\n")
	b.WriteString("\tfirstborn int\n")
	b.WriteString("\tflags uint64\n")
	b.WriteString("\tsimulator *n2art.Simulator\n")
	b.WriteString("}\n\n")

	e.emitPopulationLifecycle(&b, set, typeName)

	return b.String(), nil
}

func (e *Emitter) emitPopulationLifecycle(b *strings.Builder, set *model.EquationSet, typeName string) {
	r := e.renderer(set)
	instType := instanceType(set)

	fmt.Fprintf(b, "func (this *%s) ctor() {\n", typeName)
	b.WriteString("\tthis.instances = nil\n\tthis.firstborn = -1\n")
	if set.Container != nil {
		b.WriteString("\tthis.simulator = this.container.simulator\n")
	}
	b.WriteString("}\n\n")
	fmt.Fprintf(b, "func (this *%s) dtor() {\n\tfor _, inst := range this.instances {\n\t\tif inst != nil {\n\t\t\tinst.dtor()\n\t\t}\n\t}\n}\n\n", typeName)

	fmt.Fprintf(b, "// create allocates a new instance, reusing a freed slot when available.\n")
	fmt.Fprintf(b, "func (this *%s) create() *%s {\n", typeName, instType)
	b.WriteString("\tfor i, inst := range this.instances {\n")
	b.WriteString("\t\tif inst == nil || inst.isFree() {\n")
	fmt.Fprintf(b, "\t\t\tnew_ := &%s{container: this}\n", instType)
	b.WriteString("\t\t\tthis.instances[i] = new_\n")
	b.WriteString("\t\t\treturn new_\n")
	b.WriteString("\t\t}\n\t}\n")
	fmt.Fprintf(b, "\tnew_ := &%s{container: this}\n", instType)
	b.WriteString("\tthis.instances = append(this.instances, new_)\n")
	b.WriteString("\treturn new_\n")
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "func (this *%s) add(inst *%s) {\n", typeName, instType)
	b.WriteString("\tthis.instances = append(this.instances, inst)\n\tthis.n++\n")
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "func (this *%s) remove(inst *%s) {\n", typeName, instType)
	b.WriteString("\tfor i, candidate := range this.instances {\n\t\tif candidate == inst {\n\t\t\tthis.instances[i] = nil\n\t\t\tthis.n--\n\t\t\treturn\n\t\t}\n\t}\n")
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "func (this *%s) init() {\n", typeName)
	for _, v := range set.Ordered {
		if v.IsLocal() || !isEmittable(v) {
			continue
		}
		if v.Order == 0 {
			for _, line := range r.lowerVariable(v) {
				fmt.Fprintf(b, "\t%s\n", line)
			}
		}
	}
	b.WriteString("\tfor _, inst := range this.instances {\n\t\tif inst != nil {\n\t\t\tinst.init()\n\t\t}\n\t}\n")
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "func (this *%s) now() float64 {\n\treturn this.simulator.Now()\n}\n\n", typeName)
	fmt.Fprintf(b, "func (this *%s) dt() float64 {\n\treturn this.simulator.DT()\n}\n\n", typeName)

	bd := set.BackendData
	if len(bd.Integrated) > 0 {
		fmt.Fprintf(b, "func (this *%s) integrate(dt float64) {\n\tfor _, inst := range this.instances {\n\t\tif inst != nil {\n\t\t\tinst.integrate(dt)\n\t\t}\n\t}\n}\n\n", typeName)
		fmt.Fprintf(b, "func (this *%s) updateDerivative(dt float64) {\n\tfor _, inst := range this.instances {\n\t\tif inst != nil {\n\t\t\tinst.updateDerivative(dt)\n\t\t}\n\t}\n}\n\n", typeName)
		fmt.Fprintf(b, "func (this *%s) finalizeDerivative() {\n\tfor _, inst := range this.instances {\n\t\tif inst != nil {\n\t\t\tinst.finalizeDerivative()\n\t\t}\n\t}\n}\n\n", typeName)
		fmt.Fprintf(b, "func (this *%s) snapshot() []n2art.Preserve {\n\tout := make([]n2art.Preserve, len(this.instances))\n\tfor i, inst := range this.instances {\n\t\tif inst != nil {\n\t\t\tout[i] = inst.snapshot()\n\t\t}\n\t}\n\treturn out\n}\n\n", typeName)
		fmt.Fprintf(b, "func (this *%s) restore(snap []n2art.Preserve) {\n\tfor i, inst := range this.instances {\n\t\tif inst != nil && i < len(snap) {\n\t\t\tinst.restore(snap[i])\n\t\t}\n\t}\n}\n\n", typeName)
		fmt.Fprintf(b, "func (this *%s) stepTrial(h float64) {\n\tfor _, inst := range this.instances {\n\t\tif inst != nil {\n\t\t\tinst.stepTrial(h)\n\t\t}\n\t}\n}\n\n", typeName)
		fmt.Fprintf(b, "func (this *%s) pushDerivative() {\n\tfor _, inst := range this.instances {\n\t\tif inst != nil {\n\t\t\tinst.pushDerivative()\n\t\t}\n\t}\n}\n\n", typeName)
		fmt.Fprintf(b, "func (this *%s) multiplyAddToStack(scalar float64) {\n\tfor _, inst := range this.instances {\n\t\tif inst != nil {\n\t\t\tinst.multiplyAddToStack(scalar)\n\t\t}\n\t}\n}\n\n", typeName)
		fmt.Fprintf(b, "func (this *%s) multiply(scalar float64) {\n\tfor _, inst := range this.instances {\n\t\tif inst != nil {\n\t\t\tinst.multiply(scalar)\n\t\t}\n\t}\n}\n\n", typeName)
		fmt.Fprintf(b, "func (this *%s) addToMembers() {\n\tfor _, inst := range this.instances {\n\t\tif inst != nil {\n\t\t\tinst.addToMembers()\n\t\t}\n\t}\n}\n\n", typeName)
	}

	fmt.Fprintf(b, "func (this *%s) update() {\n", typeName)
	for _, v := range set.Ordered {
		if v.IsLocal() || !isEmittable(v) {
			continue
		}
		if v.HasAttribute(model.AttrTemporary) || v.Order != 0 {
			for _, line := range r.lowerVariable(v) {
				fmt.Fprintf(b, "\t%s\n", line)
			}
		}
	}
	b.WriteString("\tfor _, inst := range this.instances {\n\t\tif inst != nil {\n\t\t\tinst.update()\n\t\t}\n\t}\n")
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "func (this *%s) finalize() {\n", typeName)
	b.WriteString("\tfor _, inst := range this.instances {\n\t\tif inst != nil && !inst.finalize() {\n\t\t\tthis.remove(inst)\n\t\t}\n\t}\n")
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "func (this *%s) resize(n int) {\n", typeName)
	b.WriteString("\tfor this.n < n {\n\t\tinst := this.create()\n\t\tinst.ctor()\n\t\tinst.init()\n\t\tthis.add(inst)\n\t}\n")
	b.WriteString("\tfor this.n > n {\n\t\tfor _, inst := range this.instances {\n\t\t\tif inst != nil {\n\t\t\t\tinst.die()\n\t\t\t\tthis.remove(inst)\n\t\t\t\tbreak\n\t\t\t}\n\t\t}\n\t}\n")
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "func (this *%s) getN() int {\n\treturn this.n\n}\n\n", typeName)

	fmt.Fprintf(b, "func (this *%s) clearNew() {\n", typeName)
	fmt.Fprintf(b, "\tfor _, inst := range this.instances {\n\t\tif inst != nil {\n\t\t\tinst.flags &^= %s\n\t\t}\n\t}\n", flagBitConst(set, "newborn"))
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "// wireConnections realizes this part's own connection formation (if it\n")
	fmt.Fprintf(b, "// binds endpoints) and then recurses into every child population.\n")
	fmt.Fprintf(b, "func (this *%s) wireConnections() {\n", typeName)
	if set.IsConnection() {
		b.WriteString("\tthis.formConnections()\n")
	}
	for _, child := range set.Parts {
		fmt.Fprintf(b, "\tthis.%s.wireConnections()\n", exportField(child.Name))
	}
	b.WriteString("}\n\n")

	if set.IsConnection() {
		fmt.Fprintf(b, "func (this *%s) getIterators() *n2art.ConnectIterator {\n", typeName)
		switch set.BackendData.ConnectionKind {
		case model.ConnectionMatrixDriven:
			b.WriteString("\treturn n2art.NewConnectMatrix(this.getIterator)\n")
		case model.ConnectionNearestNeighbor:
			b.WriteString("\treturn n2art.NewConnectPopulationNN(this.getIterator)\n")
		default:
			b.WriteString("\treturn n2art.NewConnectPopulation(this.getIterator)\n")
		}
		b.WriteString("}\n\n")

		fmt.Fprintf(b, "func (this *%s) getIterator(endpoint int) n2art.Iterator {\n", typeName)
		for _, binding := range set.ConnectionBindings {
			fmt.Fprintf(b, "\tif endpoint == %d {\n\t\treturn this.container.%s.newIterator()\n\t}\n", binding.Index, exportField(binding.Endpoint.Name))
		}
		b.WriteString("\treturn nil\n}\n\n")

		fmt.Fprintf(b, "func (this *%s) getEndpointAt(endpoint, idx int) any {\n", typeName)
		for _, binding := range set.ConnectionBindings {
			fmt.Fprintf(b, "\tif endpoint == %d {\n\t\treturn this.container.%s.getInstance(idx)\n\t}\n", binding.Index, exportField(binding.Endpoint.Name))
		}
		b.WriteString("\treturn nil\n}\n\n")

		e.emitFormConnections(b, set, typeName, instType, r)
	}

	fmt.Fprintf(b, "func (this *%s) newIterator() n2art.Iterator {\n", typeName)
	b.WriteString("\treturn n2art.NewInstanceIterator(this.instances)\n")
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "func (this *%s) getInstance(i int) any {\n", typeName)
	b.WriteString("\tif i < 0 || i >= len(this.instances) {\n\t\treturn nil\n\t}\n")
	b.WriteString("\treturn this.instances[i]\n")
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "func (this *%s) path() string {\n\treturn %q\n}\n\n", typeName, set.Path())
}

// emitFormConnections renders the connection-formation driver a Population's
// owning container calls once the populations it binds are sized: for a
// matrix-driven part it walks the driving matrix's nonzero pattern, for
// everything else it hands the endpoint iterator tree to runtime
// FormConnections, which also applies the nearest-neighbor restriction when
// ConnectionKind calls for it.
func (e *Emitter) emitFormConnections(b *strings.Builder, set *model.EquationSet, typeName, instType string, r *exprRenderer) {
	bd := set.BackendData

	if bd.ConnectionKind == model.ConnectionMatrixDriven && set.ConnectionMatrix != nil {
		rowIdx := bindingIndexByAlias(set, set.ConnectionMatrix.RowEndpointAlias)
		colIdx := bindingIndexByAlias(set, set.ConnectionMatrix.ColEndpointAlias)

		fmt.Fprintf(b, "func (this *%s) formConnections() {\n", typeName)
		fmt.Fprintf(b, "\tmatrix := %s\n", r.render(set.ConnectionMatrix.Source))
		fmt.Fprintf(b, "\tn2art.FormConnectionsMatrix(matrix, %d, %d, this.getEndpointAt,\n", rowIdx, colIdx)
		b.WriteString("\t\tfunc() any { return this.create() },\n")
		fmt.Fprintf(b, "\t\tfunc(inst any, i int, endpoint any) { inst.(*%s).setPart(i, endpoint) },\n", instType)
		writeGetP(b, set, instType)
		b.WriteString(",\n")
		fmt.Fprintf(b, "\t\tfunc(inst any) { this.add(inst.(*%s)) },\n", instType)
		b.WriteString("\t)\n}\n\n")
		return
	}

	k, radius := 0, 0.0
	if len(bd.Holders) > 0 {
		k, radius = bd.Holders[0].K, bd.Holders[0].Radius
	}

	fmt.Fprintf(b, "func (this *%s) formConnections() {\n", typeName)
	b.WriteString("\tconn := this.getIterators()\n")
	fmt.Fprintf(b, "\tn2art.FormConnections(conn, %d, %d, %s, %s,\n", len(set.ConnectionBindings), k, formatFloat(radius), endpointLimitsLiteral(set))
	b.WriteString("\t\tfunc() any { return this.create() },\n")
	fmt.Fprintf(b, "\t\tfunc(inst any, i int, endpoint any) { inst.(*%s).setPart(i, endpoint) },\n", instType)
	writeGetP(b, set, instType)
	b.WriteString(",\n")
	fmt.Fprintf(b, "\t\tfunc(inst any) ([3]float64, bool) {\n")
	for _, binding := range set.ConnectionBindings {
		if _, ok := binding.Endpoint.Variable("$xyz"); ok {
			fmt.Fprintf(b, "\t\t\tif v, ok := inst.(*%s); ok {\n\t\t\t\treturn n2art.XYZOf(v.getXYZ())\n\t\t\t}\n", instanceType(binding.Endpoint))
		}
	}
	b.WriteString("\t\t\treturn [3]float64{}, false\n\t\t},\n")
	fmt.Fprintf(b, "\t\tfunc(inst any) { this.add(inst.(*%s)) },\n", instType)
	b.WriteString("\t)\n}\n\n")
}

// writeGetP emits the acceptance-probability closure FormConnections/
// FormConnectionsMatrix weighs each candidate against: a constant $p is
// inlined as its literal value, any other $p is read through the instance's
// getP(), and a part with no $p gets a constant 1 (always accept).
func writeGetP(b *strings.Builder, set *model.EquationSet, instType string) {
	if p, ok := set.Variable("$p"); ok {
		if eq := p.DefaultEquation(); p.HasAttribute(model.AttrConstant) && eq != nil {
			if c, ok := eq.Expression.(*model.Constant); ok && c.Kind == model.Scalar {
				fmt.Fprintf(b, "\t\tfunc(inst any) float64 { return %s }", formatFloat(c.Value))
				return
			}
		}
		fmt.Fprintf(b, "\t\tfunc(inst any) float64 { return inst.(*%s).getP() }", instType)
	} else {
		b.WriteString("\t\tfunc(inst any) float64 { return 1 }")
	}
}

// endpointLimitsLiteral renders a []n2art.EndpointLimit literal, one entry
// per binding slot ordered by ConnectionBinding.Index, carrying the $min/
// $max each binding's coalesced ConnectionHolder recorded (zero for a
// binding with neither set).
func endpointLimitsLiteral(set *model.EquationSet) string {
	n := len(set.ConnectionBindings)
	entries := make([]string, n)
	for _, binding := range set.ConnectionBindings {
		if binding.Index < 0 || binding.Index >= n {
			continue
		}
		min, max := 0, 0
		if h := holderForEndpoint(set.BackendData, binding.Endpoint); h != nil {
			min, max = h.Min, h.Max
		}
		if min == 0 && max == 0 {
			entries[binding.Index] = "{}"
		} else {
			entries[binding.Index] = fmt.Sprintf("{Min: %d, Max: %d}", min, max)
		}
	}
	for i, e := range entries {
		if e == "" {
			entries[i] = "{}"
		}
	}
	return fmt.Sprintf("[]n2art.EndpointLimit{%s}", strings.Join(entries, ", "))
}

// holderForEndpoint finds the ConnectionHolder ConnectionPlanner produced
// for endpoint, matched by identity rather than position since coalescing
// value-equal holders can make a binding's own index diverge from its
// holder's.
func holderForEndpoint(bd *model.BackendData, endpoint *model.EquationSet) *model.ConnectionHolder {
	for _, h := range bd.Holders {
		if h.Endpoint == endpoint {
			return h
		}
	}
	return nil
}

// bindingIndexByAlias looks up a ConnectionBinding's slot index by alias,
// falling back to 0 when alias is empty (an identity row/col mapping that
// names no explicit endpoint).
func bindingIndexByAlias(set *model.EquationSet, alias string) int {
	if alias == "" {
		return 0
	}
	if binding, ok := set.Binding(alias); ok {
		return binding.Index
	}
	return 0
}
