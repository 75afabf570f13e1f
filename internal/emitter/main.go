package emitter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonsalaz/n2a/internal/model"
)

// rootDuration reads the model's "duration" metadata key as the simulated
// run length, falling back to 10 when unset or unparsable.
func rootDuration(root *model.EquationSet) float64 {
	s := root.Metadata.GetOrDefault("10", "duration")
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d <= 0 {
		return 10
	}
	return d
}

// emitMain renders the package's main.go: it builds the root Population,
// applies command-line parameter overrides, runs the fixed-step simulation
// loop, and tears down I/O holders on exit, following §6's generated-binary
// CLI contract (key=value arguments plus -include files, exit 1 on runtime
// exception).
func (e *Emitter) emitMain(root *model.EquationSet) string {
	var b strings.Builder

	popType := populationType(root)
	dt := rootDT(root)
	duration := formatFloat(rootDuration(root))

	b.WriteString("package main\n\n")
	b.WriteString("import (\n")
	b.WriteString("\t\"bufio\"\n")
	b.WriteString("\t\"context\"\n")
	b.WriteString("\t\"fmt\"\n")
	b.WriteString("\t\"os\"\n")
	b.WriteString("\t\"strconv\"\n")
	b.WriteString("\t\"strings\"\n\n")
	b.WriteString("\tn2art \"github.com/jonsalaz/n2a/runtime\"\n")
	b.WriteString(")\n\n")

	fmt.Fprintf(&b, "func main() {\n")
	b.WriteString("\toverrides := parseArgs(os.Args[1:])\n\n")
	b.WriteString("\tholders := n2art.NewHolders()\n")
	fmt.Fprintf(&b, "\tsim := n2art.NewSimulator(holders).WithDT(%s)", formatFloat(dt))
	if format := root.Metadata.GetOrDefault("", "backend", "c", "outputFormat"); format != "" {
		fmt.Fprintf(&b, ".WithOutputFormat(%q)", format)
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "\troot := &%s{}\n", popType)
	b.WriteString("\troot.simulator = sim\n")
	b.WriteString("\troot.ctor()\n")
	applyOverrides(&b, root)
	fmt.Fprintf(&b, "\troot.resize(%d)\n", rootN(root))
	b.WriteString("\troot.wireConnections()\n\n")

	fmt.Fprintf(&b, "\tif err := sim.Run(context.Background(), %s, func(now, dt float64) {\n", duration)
	if len(root.BackendData.Integrated) > 0 {
		if usesRungeKutta(root) {
			b.WriteString("\t\troot.update()\n")
			b.WriteString("\t\tsnap := root.snapshot()\n")
			b.WriteString("\t\troot.pushDerivative()\n")
			b.WriteString("\t\troot.stepTrial(dt / 2)\n")
			b.WriteString("\t\troot.update()\n")
			b.WriteString("\t\troot.multiplyAddToStack(2)\n")
			b.WriteString("\t\troot.restore(snap)\n")
			b.WriteString("\t\troot.stepTrial(dt / 2)\n")
			b.WriteString("\t\troot.update()\n")
			b.WriteString("\t\troot.multiplyAddToStack(2)\n")
			b.WriteString("\t\troot.restore(snap)\n")
			b.WriteString("\t\troot.stepTrial(dt)\n")
			b.WriteString("\t\troot.update()\n")
			b.WriteString("\t\troot.addToMembers()\n")
			b.WriteString("\t\troot.multiply(1.0 / 6.0)\n")
			b.WriteString("\t\troot.restore(snap)\n")
			b.WriteString("\t\troot.integrate(dt)\n")
		} else {
			b.WriteString("\t\troot.integrate(dt)\n")
		}
	}
	b.WriteString("\t\troot.update()\n")
	b.WriteString("\t\troot.finalize()\n")
	b.WriteString("\t}); err != nil {\n")
	b.WriteString("\t\tfmt.Fprintf(os.Stderr, \"Exception: %v\\n\", err)\n")
	b.WriteString("\t\tholders.Finish()\n")
	b.WriteString("\t\tos.Exit(1)\n")
	b.WriteString("\t}\n\n")

	b.WriteString("\tif err := holders.Finish(); err != nil {\n")
	b.WriteString("\t\tfmt.Fprintf(os.Stderr, \"Exception: %v\\n\", err)\n")
	b.WriteString("\t\tos.Exit(1)\n")
	b.WriteString("\t}\n")
	b.WriteString("}\n\n")

	b.WriteString(parseArgsSource)

	return b.String()
}

// parseArgsSource is emitted verbatim into every generated main.go: key=value
// arguments override Variables tagged cli or param, -include <file> loads
// more of the same recursively, matching spec.md §6's generated binary CLI.
const parseArgsSource = `// parseArgs reads os.Args-style key=value pairs plus "-include <file>"
// directives into a flat override map.
func parseArgs(args []string) map[string]string {
	overrides := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "-include" && i+1 < len(args) {
			i++
			loadIncludeFile(args[i], overrides)
			continue
		}
		if eq := strings.IndexByte(arg, '='); eq > 0 {
			overrides[arg[:eq]] = arg[eq+1:]
		}
	}
	return overrides
}

func loadIncludeFile(path string, overrides map[string]string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Exception: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	pendingInclude := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if pendingInclude {
			pendingInclude = false
			loadIncludeFile(line, overrides)
			continue
		}
		if line == "-include" {
			pendingInclude = true
			continue
		}
		if strings.HasPrefix(line, "-include ") {
			loadIncludeFile(strings.TrimSpace(strings.TrimPrefix(line, "-include ")), overrides)
			continue
		}
		if eq := strings.IndexByte(line, '='); eq > 0 {
			overrides[line[:eq]] = line[eq+1:]
		}
	}
}

func overrideFloat(overrides map[string]string, name string, dst *float64) {
	if v, ok := overrides[name]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func overrideString(overrides map[string]string, name string, dst *string) {
	if v, ok := overrides[name]; ok {
		*dst = v
	}
}
`

// applyOverrides emits one overrideFloat/overrideString call per root-level
// Variable tagged cli or param, wiring os.Args overrides directly into the
// root Population's global fields before the first resize/init.
func applyOverrides(b *strings.Builder, root *model.EquationSet) {
	for _, v := range globalFields(root) {
		if !v.HasAny(model.AttrCli, model.AttrParam) {
			continue
		}
		field := "root." + fieldName(v)
		if v.Type == model.Text {
			fmt.Fprintf(b, "\toverrideString(overrides, %q, &%s)\n", v.Name, field)
		} else if v.Type == model.Scalar {
			fmt.Fprintf(b, "\toverrideFloat(overrides, %q, &%s)\n", v.Name, field)
		}
	}
}

// rootDT reads $t''s default equation as the fixed cycle period, including
// the value digest seeds when the model sets none, falling back to 0.01 when
// $t' is absent or its default equation isn't a plain positive constant.
func rootDT(root *model.EquationSet) float64 {
	v, ok := root.Variable("$t'")
	if !ok {
		return 0.01
	}
	eq := v.DefaultEquation()
	if eq == nil {
		return 0.01
	}
	c, ok := eq.Expression.(*model.Constant)
	if !ok || c.Kind != model.Scalar {
		return 0.01
	}
	if c.Value <= 0 {
		return 0.01
	}
	return c.Value
}

// usesRungeKutta reads backend/all/integrator to select between the two
// integrators of §4.4.2: "RungeKutta" selects the four-stage weighted-mean
// derivative, anything else (including unset) keeps the plain Euler step,
// matching JobC.run()'s own integrator.equalsIgnoreCase("RungeKutta") check.
func usesRungeKutta(root *model.EquationSet) bool {
	integrator := root.Metadata.GetOrDefault("Euler", "backend", "all", "integrator")
	return strings.EqualFold(integrator, "RungeKutta")
}

// rootN reads $n's default equation as the root part's initial instance
// count, falling back to 1 (the common "there's just one of these" case).
func rootN(root *model.EquationSet) int {
	v, ok := root.Variable("$n")
	if !ok {
		return 1
	}
	eq := v.DefaultEquation()
	if eq == nil {
		return 1
	}
	c, ok := eq.Expression.(*model.Constant)
	if !ok || c.Kind != model.Scalar || c.Value < 1 {
		return 1
	}
	return int(c.Value)
}
