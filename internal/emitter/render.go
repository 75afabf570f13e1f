package emitter

import (
	"fmt"
	"strconv"

	"github.com/jonsalaz/n2a/internal/emitter/extregistry"
	"github.com/jonsalaz/n2a/internal/model"
)

// exprRenderer renders an Expr tree into Go source text. It carries the
// part the expression lives in (for resolve()) and an optional extregistry
// for operators the built-in switch doesn't know.
type exprRenderer struct {
	scope *model.EquationSet
	ext   *extregistry.Registry
}

func (r *exprRenderer) render(e model.Expr) string {
	switch n := e.(type) {
	case *model.Constant:
		return renderConstant(n)
	case *model.AccessVariable:
		return resolve(r.scope, n.Reference)
	case *model.AccessElement:
		if n.Col != nil {
			return r.render(n.Target) + ".At(" + r.render(n.Row) + ", " + r.render(n.Col) + ")"
		}
		return r.render(n.Target) + ".AtV(" + r.render(n.Row) + ")"
	case *model.BinaryOp:
		return r.renderBinary(n)
	case *model.UnaryOp:
		return r.renderUnary(n)
	case *model.FunctionCall:
		return r.renderCall(n)
	case *model.BuildMatrix:
		return r.renderMatrix(n)
	case *model.Split:
		return strconv.Itoa(splitIndex(r.scope, n))
	default:
		return "/* unsupported expression */"
	}
}

func renderConstant(c *model.Constant) string {
	switch c.Kind {
	case model.Text:
		return strconv.Quote(c.Text)
	case model.Matrix:
		return "nil /* empty matrix literal */"
	default:
		return strconv.FormatFloat(c.Value, 'g', -1, 64)
	}
}

func (r *exprRenderer) renderBinary(b *model.BinaryOp) string {
	op, ok := binaryOpText[b.Op]
	if !ok {
		return "/* unsupported operator */"
	}
	return "(" + r.render(b.Left) + " " + op + " " + r.render(b.Right) + ")"
}

var binaryOpText = map[model.OpKind]string{
	model.OpAdd: "+",
	model.OpSub: "-",
	model.OpMul: "*",
	model.OpDiv: "/",
	model.OpMod: "%",
	model.OpEQ:  "==",
	model.OpNE:  "!=",
	model.OpGT:  ">",
	model.OpGE:  ">=",
	model.OpLT:  "<",
	model.OpLE:  "<=",
	model.OpAnd: "&&",
	model.OpOr:  "||",
}

func (r *exprRenderer) renderUnary(u *model.UnaryOp) string {
	switch u.Op {
	case model.OpNeg:
		return "(-" + r.render(u.Operand) + ")"
	case model.OpNot:
		return "(!" + r.render(u.Operand) + ")"
	default:
		return "/* unsupported unary operator */"
	}
}

func (r *exprRenderer) renderMatrix(m *model.BuildMatrix) string {
	out := "n2art.NewMatrix([][]float64{"
	for _, row := range m.Rows {
		out += "{"
		for i, elem := range row {
			if i > 0 {
				out += ", "
			}
			out += r.render(elem)
		}
		out += "}, "
	}
	out += "})"
	return out
}

// builtinMathFuncs names the N2A built-in math functions that pass straight
// through to runtime wrappers, keeping every emitted file's import list at
// a fixed "n2art" rather than conditionally needing "math" too.
var builtinMathFuncs = map[string]string{
	"sin": "n2art.Sin", "cos": "n2art.Cos", "tan": "n2art.Tan",
	"exp": "n2art.Exp", "log": "n2art.Log", "sqrt": "n2art.Sqrt",
	"abs": "n2art.Abs", "floor": "n2art.Floor", "ceil": "n2art.Ceil",
	"round": "n2art.Round", "atan": "n2art.Atan", "atan2": "n2art.Atan2",
	"min": "n2art.Min", "max": "n2art.Max", "pow": "n2art.Pow",
}

func (r *exprRenderer) renderCall(f *model.FunctionCall) string {
	if goFn, ok := builtinMathFuncs[f.Name]; ok {
		return goFn + "(" + r.renderArgs(f.Args) + ")"
	}

	switch f.Name {
	case "uniform":
		return "n2art.Uniform(" + r.renderArgs(f.Args) + ")"
	case "gaussian", "normal":
		return "n2art.Gaussian(" + r.renderArgs(f.Args) + ")"
	case "event":
		return r.render(f.Args[0]) // the condition itself; latch bookkeeping happens in the instance's scanEvents/setLatch/finalizeEvent methods
	case "delay":
		// delay(value, depth): depth picks which of the part's DelayLine
		// fields backs this call site.
		field := fmt.Sprintf("this.delay%d", delayIndex(r.scope, f))
		return field + ".Delay(" + r.render(f.Args[1]) + ", " + r.render(f.Args[0]) + ")"
	case "output":
		return "this.container.simulator.Output(" + r.renderArgs(f.Args) + ")"
	case "input":
		return "this.container.simulator.Input(" + r.renderArgs(f.Args) + ")"
	case "mfile", "readMatrix":
		return "this.container.simulator.ReadMatrix(" + r.renderArgs(f.Args) + ")"
	case "pulse":
		return "n2art.Pulse(" + r.renderArgs(f.Args) + ")"
	case "norm":
		return "n2art.Norm(" + r.renderArgs(f.Args) + ")"
	}

	if renderer, ok := r.ext.Lookup(f.Name); ok {
		return renderer(f, r.render)
	}

	return "n2art.Call(" + strconv.Quote(f.Name) + func() string {
		if len(f.Args) == 0 {
			return ""
		}
		return ", " + r.renderArgs(f.Args)
	}() + ")"
}

func (r *exprRenderer) renderArgs(args []model.Expr) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += ", "
		}
		out += r.render(a)
	}
	return out
}

// splitIndex returns the 1-based index of s's target combination within
// scope.Splits, matching CodeEmitter.multiconditional's "$type writes
// select an integer split index" rule (0 is reserved for "no transition").
func splitIndex(scope *model.EquationSet, s *model.Split) int {
	for i, c := range scope.Splits {
		if sameParts(c.Parts, s.Parts) {
			return i + 1
		}
	}
	return 0
}

// delayIndex returns which of scope.BackendData.Delays this call's
// value argument is backed by, matching the call's referenced Variable
// against each DelayPipeline's recorded Variable. Falls back to 0 when the
// value expression isn't a direct variable access (digest stage analysis
// only records the pipeline, not a back-reference to each call site).
func delayIndex(scope *model.EquationSet, call *model.FunctionCall) int {
	access, ok := call.Args[0].(*model.AccessVariable)
	if !ok || access.Reference == nil {
		return 0
	}
	for i, d := range scope.BackendData.Delays {
		if d.Variable == access.Reference.Variable {
			return i
		}
	}
	return 0
}

func sameParts(a, b []*model.EquationSet) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
