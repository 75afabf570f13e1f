package emitter

import (
	"context"
	"strings"
	"testing"

	"github.com/jonsalaz/n2a/internal/connplanner"
	"github.com/jonsalaz/n2a/internal/digest"
	"github.com/jonsalaz/n2a/internal/model"
)

// buildLeakyIntegrator assembles a tiny single-part model (one state
// variable integrated by its own derivative) and runs it through the real
// digest + connection-planning pipeline, the way a hand-rolled
// BackendData stub would otherwise have to fake every stage leaves behind.
func buildLeakyIntegrator(t *testing.T) *model.EquationSet {
	t.Helper()

	root := model.NewEquationSet("Leaky", nil)

	v := model.NewVariable("V", 0)
	v.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 0}})
	root.AddVariable(v)

	dv := model.NewVariable("V", 1)
	dv.AddEquation(&model.Equation{Expression: &model.AccessVariable{Name: "V"}})
	root.AddVariable(dv)

	if _, err := digest.New().Digest(context.Background(), root); err != nil {
		t.Fatalf("digest: %v", err)
	}
	connplanner.New().Plan(root)

	return root
}

func TestEmitInstanceOmitsPreexistentFields(t *testing.T) {
	root := buildLeakyIntegrator(t)

	src, err := New().emitInstance(root)
	if err != nil {
		t.Fatalf("emitInstance: %v", err)
	}

	for _, bad := range []string{"DollarT", "DollarIndex"} {
		if strings.Contains(src, bad) {
			t.Errorf("expected no struct field for preexistent special, found %q in:\n%s", bad, src)
		}
	}
	if !strings.Contains(src, "type LeakyInstance struct") {
		t.Errorf("expected a LeakyInstance struct declaration, got:\n%s", src)
	}
	if !strings.Contains(src, "container *LeakyPopulation") {
		t.Errorf("expected root instance to carry a container field pointing at its own population, got:\n%s", src)
	}
}

func TestEmitInstanceEmitsClockAccessors(t *testing.T) {
	root := buildLeakyIntegrator(t)

	src, err := New().emitInstance(root)
	if err != nil {
		t.Fatalf("emitInstance: %v", err)
	}

	if !strings.Contains(src, "func (this *LeakyInstance) now() float64") {
		t.Errorf("expected a now() accessor, got:\n%s", src)
	}
	if !strings.Contains(src, "func (this *LeakyInstance) dt() float64") {
		t.Errorf("expected a dt() accessor, got:\n%s", src)
	}
}

func TestEmitInstanceIntegratesDerivative(t *testing.T) {
	root := buildLeakyIntegrator(t)

	src, err := New().emitInstance(root)
	if err != nil {
		t.Fatalf("emitInstance: %v", err)
	}

	if !strings.Contains(src, "func (this *LeakyInstance) integrate(dt float64)") {
		t.Errorf("expected an integrate method, got:\n%s", src)
	}
	if !strings.Contains(src, "this.V += this.VPrime * dt") {
		t.Errorf("expected V's order-0 field to accumulate its distinct order-1 derivative field, got:\n%s", src)
	}
	if strings.Contains(src, "\tV float64\n\tV float64\n") {
		t.Errorf("expected V and V' to occupy distinct struct fields, got a duplicate declaration in:\n%s", src)
	}
}

func TestEmitPopulationWiresSimulator(t *testing.T) {
	root := buildLeakyIntegrator(t)

	src, err := New().emitPopulation(root)
	if err != nil {
		t.Fatalf("emitPopulation: %v", err)
	}

	if !strings.Contains(src, "simulator *n2art.Simulator") {
		t.Errorf("expected a simulator field, got:\n%s", src)
	}
	if !strings.Contains(src, "inst.ctor()") {
		t.Errorf("expected resize to wire new instances via ctor before init, got:\n%s", src)
	}
}

func TestEmitProducesOneFilePairPerPart(t *testing.T) {
	root := model.NewEquationSet("Leaky", nil)
	v := model.NewVariable("V", 0)
	v.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 0}})
	root.AddVariable(v)

	child := model.NewEquationSet("Child", nil)
	cv := model.NewVariable("y", 0)
	cv.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 1}})
	child.AddVariable(cv)
	root.AddPart(child)

	if _, err := digest.New().Digest(context.Background(), root); err != nil {
		t.Fatalf("digest: %v", err)
	}
	connplanner.New().Plan(root)

	files, err := New().Emit(root)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	for _, want := range []string{"leaky_instance.go", "leaky_population.go", "child_instance.go", "child_population.go", "main.go"} {
		if _, ok := files[want]; !ok {
			t.Errorf("expected output file %q, got files: %v", want, keysOf(files))
		}
	}
}

func keysOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestEmitMainEmitsRunLoop(t *testing.T) {
	root := buildLeakyIntegrator(t)

	src := New().emitMain(root)

	if !strings.Contains(src, "sim.Run(context.Background()") {
		t.Errorf("expected main to drive the simulator's Run loop, got:\n%s", src)
	}
	if !strings.Contains(src, "root.integrate(dt)") {
		t.Errorf("expected main to call integrate since the model has an integrated state, got:\n%s", src)
	}
	if !strings.Contains(src, "Exception:") {
		t.Errorf("expected main to report runtime failures with the Exception: prefix, got:\n%s", src)
	}
	if !strings.Contains(src, "root.wireConnections()") {
		t.Errorf("expected main to form connections once after the initial resize, got:\n%s", src)
	}
}

func TestEmitMainSelectsRungeKuttaFromBackendMetadata(t *testing.T) {
	root := buildLeakyIntegrator(t)
	root.Metadata = model.NewMetadata()
	root.Metadata.Set("RungeKutta", "backend", "all", "integrator")

	src := New().emitMain(root)

	for _, want := range []string{"root.snapshot()", "root.pushDerivative()", "root.stepTrial(dt / 2)", "root.multiplyAddToStack(2)", "root.addToMembers()", "root.multiply(1.0 / 6.0)"} {
		if !strings.Contains(src, want) {
			t.Errorf("expected the RungeKutta integrator metadata to emit %q, got:\n%s", want, src)
		}
	}
}

func TestEmitMainDefaultsToEulerIntegrator(t *testing.T) {
	root := buildLeakyIntegrator(t)

	src := New().emitMain(root)

	if strings.Contains(src, "root.pushDerivative()") {
		t.Errorf("expected the unset-metadata default to stay plain Euler, got:\n%s", src)
	}
}

// buildConnection assembles a two-endpoint connection part (a trivial
// synapse wiring a presynaptic and postsynaptic compartment) through the
// real digest + connection-planning pipeline, the way buildLeakyIntegrator
// does for a single compartment.
func buildConnection(t *testing.T) (*model.EquationSet, *model.EquationSet) {
	t.Helper()

	root := model.NewEquationSet("Net", nil)

	a := model.NewEquationSet("A", nil)
	av := model.NewVariable("x", 0)
	av.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 0}})
	a.AddVariable(av)
	root.AddPart(a)

	b := model.NewEquationSet("B", nil)
	bv := model.NewVariable("y", 0)
	bv.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 0}})
	b.AddVariable(bv)
	root.AddPart(b)

	c := model.NewEquationSet("C", nil)
	cv := model.NewVariable("w", 0)
	cv.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 1}})
	c.AddVariable(cv)
	c.ConnectionBindings = []*model.ConnectionBinding{
		{Alias: "A", Endpoint: a, Index: 0},
		{Alias: "B", Endpoint: b, Index: 1},
	}
	root.AddPart(c)

	if _, err := digest.New().Digest(context.Background(), root); err != nil {
		t.Fatalf("digest: %v", err)
	}
	connplanner.New().Plan(root)

	return root, c
}

// buildEventModel assembles a single-part model whose "fire" variable wraps
// a RISE-edge event() call on "V", the way buildLeakyIntegrator builds a
// plain integrator.
func buildEventModel(t *testing.T) *model.EquationSet {
	t.Helper()

	root := model.NewEquationSet("Spiker", nil)

	v := model.NewVariable("V", 0)
	v.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 0}})
	root.AddVariable(v)

	fire := model.NewVariable("fire", 0)
	fire.AddEquation(&model.Equation{Expression: &model.FunctionCall{
		Name: "event",
		Args: []model.Expr{
			&model.AccessVariable{Name: "V"},
			&model.Constant{Kind: model.Scalar, Value: 0},
		},
	}})
	root.AddVariable(fire)

	if _, err := digest.New().Digest(context.Background(), root); err != nil {
		t.Fatalf("digest: %v", err)
	}
	connplanner.New().Plan(root)

	return root
}

func TestEmitPopulationWiresMaxDegreeLimit(t *testing.T) {
	root := model.NewEquationSet("Net", nil)

	a := model.NewEquationSet("A", nil)
	av := model.NewVariable("x", 0)
	av.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 0}})
	a.AddVariable(av)
	root.AddPart(a)

	b := model.NewEquationSet("B", nil)
	bv := model.NewVariable("y", 0)
	bv.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 0}})
	b.AddVariable(bv)
	root.AddPart(b)

	c := model.NewEquationSet("C", nil)
	cv := model.NewVariable("w", 0)
	cv.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 1}})
	c.AddVariable(cv)
	maxVar := model.NewVariable("$max", 0)
	maxVar.AddEquation(&model.Equation{Expression: &model.Constant{Kind: model.Scalar, Value: 3}})
	c.AddVariable(maxVar)
	c.ConnectionBindings = []*model.ConnectionBinding{
		{Alias: "A", Endpoint: a, Index: 0},
		{Alias: "B", Endpoint: b, Index: 1},
	}
	root.AddPart(c)

	if _, err := digest.New().Digest(context.Background(), root); err != nil {
		t.Fatalf("digest: %v", err)
	}
	connplanner.New().Plan(root)

	src, err := New().emitPopulation(c)
	if err != nil {
		t.Fatalf("emitPopulation: %v", err)
	}

	if !strings.Contains(src, "n2art.FormConnections(conn, 2, 0, 0, []n2art.EndpointLimit{{Min: 0, Max: 3}, {Min: 0, Max: 3}},") {
		t.Errorf("expected a $max=3 connection to pass that cap through to both endpoint limits, got:\n%s", src)
	}
}

func TestEmitInstanceScansEventsFromFinalizeNotUpdate(t *testing.T) {
	root := buildEventModel(t)

	src, err := New().emitInstance(root)
	if err != nil {
		t.Fatalf("emitInstance: %v", err)
	}

	updateBody := bodyOf(t, src, "func (this *SpikerInstance) update()")
	if strings.Contains(updateBody, "scanEvents") {
		t.Errorf("expected update() not to call scanEvents (it can run several times per tick under RungeKutta), got body:\n%s", updateBody)
	}

	finalizeBody := bodyOf(t, src, "func (this *SpikerInstance) finalize()")
	swapIdx := strings.Index(finalizeBody, "this.next_")
	scanIdx := strings.Index(finalizeBody, "this.scanEvents()")
	if scanIdx < 0 {
		t.Fatalf("expected finalize() to call scanEvents(), got body:\n%s", finalizeBody)
	}
	if swapIdx >= 0 && scanIdx < swapIdx {
		t.Errorf("expected scanEvents() to run after the buffered-field swap, got body:\n%s", finalizeBody)
	}
}

// bodyOf extracts the body of the first function whose signature matches
// sig, from its opening brace to its matching closing brace.
func bodyOf(t *testing.T, src, sig string) string {
	t.Helper()
	start := strings.Index(src, sig)
	if start < 0 {
		t.Fatalf("expected to find %q in:\n%s", sig, src)
	}
	open := strings.Index(src[start:], "{")
	if open < 0 {
		t.Fatalf("expected an opening brace after %q", sig)
	}
	depth := 0
	for i := start + open; i < len(src); i++ {
		switch src[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return src[start+open : i+1]
			}
		}
	}
	t.Fatalf("unterminated function body for %q", sig)
	return ""
}

func TestEmitPopulationWiresConnectionFormation(t *testing.T) {
	root, c := buildConnection(t)

	src, err := New().emitPopulation(c)
	if err != nil {
		t.Fatalf("emitPopulation: %v", err)
	}

	if !strings.Contains(src, "func (this *CPopulation) formConnections()") {
		t.Errorf("expected a formConnections method on the connection's Population, got:\n%s", src)
	}
	if !strings.Contains(src, "n2art.FormConnections(conn, 2, 0, 0, []n2art.EndpointLimit{{}, {}},") {
		t.Errorf("expected formConnections to drive runtime FormConnections over both endpoints with no $min/$max set, got:\n%s", src)
	}
	if !strings.Contains(src, "func(inst any) float64 { return 1 }") {
		t.Errorf("expected a part with no $p to default its acceptance weight to 1, got:\n%s", src)
	}

	rootSrc, err := New().emitPopulation(root)
	if err != nil {
		t.Fatalf("emitPopulation(root): %v", err)
	}
	if !strings.Contains(rootSrc, "func (this *NetPopulation) wireConnections()") {
		t.Errorf("expected the root population to carry a wireConnections driver, got:\n%s", rootSrc)
	}
	if !strings.Contains(rootSrc, "this.C.wireConnections()") {
		t.Errorf("expected wireConnections to recurse into the child connection population, got:\n%s", rootSrc)
	}
}
