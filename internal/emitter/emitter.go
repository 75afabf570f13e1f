// Package emitter is CodeEmitter: it walks an analyzed EquationSet tree and
// renders one Go source file pair (Instance + Population) per part, plus a
// main.go wiring the whole thing to the runtime library, following §4.3's
// layout and lifecycle-function contract.
package emitter

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jonsalaz/n2a/internal/emitter/extregistry"
	"github.com/jonsalaz/n2a/internal/model"
)

// Emitter renders an analyzed model tree into a package's worth of Go
// source files.
type Emitter struct {
	ext    *extregistry.Registry
	logger *slog.Logger

	// numericType selects the Go storage type used for Scalar fields.
	numericType model.NumericType
}

// New creates an Emitter targeting floating-point output.
func New() *Emitter {
	return &Emitter{logger: slog.Default()}
}

// WithRegistry attaches the operator-renderer plugin registry.
func (e *Emitter) WithRegistry(r *extregistry.Registry) *Emitter {
	e.ext = r
	return e
}

// WithLogger overrides the default logger.
func (e *Emitter) WithLogger(l *slog.Logger) *Emitter {
	e.logger = l
	return e
}

// WithNumericType selects the scalar storage type (float, double or int
// for fixed-point) written into emitted field declarations.
func (e *Emitter) WithNumericType(t model.NumericType) *Emitter {
	e.numericType = t
	return e
}

// Emit renders root's part tree into a map of relative file path to Go
// source text: one "<part>_instance.go" and "<part>_population.go" per
// part, plus "main.go" driving the top-level population.
func (e *Emitter) Emit(root *model.EquationSet) (map[string]string, error) {
	files := make(map[string]string)

	var parts []*model.EquationSet
	var walk func(*model.EquationSet)
	walk = func(s *model.EquationSet) {
		parts = append(parts, s)
		for _, child := range s.Parts {
			walk(child)
		}
	}
	walk(root)

	for _, part := range parts {
		if part.BackendData == nil {
			return nil, fmt.Errorf("emit %s: part has no BackendData; run ConnectionPlanner and EquationDigest first", part.Path())
		}
		instanceSrc, err := e.emitInstance(part)
		if err != nil {
			return nil, fmt.Errorf("emit %s instance: %w", part.Path(), err)
		}
		populationSrc, err := e.emitPopulation(part)
		if err != nil {
			return nil, fmt.Errorf("emit %s population: %w", part.Path(), err)
		}
		base := snakeCase(part.Name)
		files[base+"_instance.go"] = instanceSrc
		files[base+"_population.go"] = populationSrc
	}

	files["main.go"] = e.emitMain(root)
	return files, nil
}

func (e *Emitter) renderer(scope *model.EquationSet) *exprRenderer {
	return &exprRenderer{scope: scope, ext: e.ext}
}

// goType is the field type a Variable of the given VarType is stored as.
func (e *Emitter) goType(t model.VarType) string {
	switch t {
	case model.Text:
		return "string"
	case model.Matrix:
		return "*n2art.Matrix"
	default:
		if e.numericType == model.NumericInt {
			return "int32"
		}
		return "float64"
	}
}

func instanceType(set *model.EquationSet) string { return exportField(set.Name) + "Instance" }
func populationType(set *model.EquationSet) string {
	return exportField(set.Name) + "Population"
}

// containerPopulationType is the type of an Instance's container field: the
// parent part's Population, or the part's own Population at the root, since
// digest's reference resolution never lets a valid model ascend past root.
func containerPopulationType(set *model.EquationSet) string {
	if set.Container != nil {
		return populationType(set.Container)
	}
	return populationType(set)
}

func snakeCase(name string) string {
	field := exportField(name)
	var b strings.Builder
	for i, r := range field {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(toLowerRune(r))
	}
	if b.Len() == 0 {
		return "part"
	}
	return b.String()
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r - 'A' + 'a'
	}
	return r
}

// localFields returns the Variables emitted as Instance struct fields:
// every local (non-global) variable that survived digest's unused-variable
// elimination, excluding constants (inlined at use) and preexistent
// specials (see isEmittable); temporaries are not excluded.
func localFields(set *model.EquationSet) []*model.Variable {
	var out []*model.Variable
	for _, v := range set.Variables() {
		if !v.IsLocal() {
			continue
		}
		if !isEmittable(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func globalFields(set *model.EquationSet) []*model.Variable {
	var out []*model.Variable
	for _, v := range set.Variables() {
		if v.IsLocal() {
			continue
		}
		if !isEmittable(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// isEmittable reports whether v gets a struct field and combiner-write
// lowering at all: constants are inlined at use, and preexistent specials
// ($index, $t, $t') are backed by runtime accessors instead of a stored
// field, per digest stage 4's attribute seeding.
func isEmittable(v *model.Variable) bool {
	return !v.HasAttribute(model.AttrConstant) && !v.HasAttribute(model.AttrPreexistent)
}

// flagBit returns the bit position the named flag ($live, newborn, or an
// event target name) occupies in this part's flags word, assigning the
// next free bit on first use. digest pre-assigns the $live bit (stages
// 15-16) and event target bits (stage 20); "newborn" is always needed by the
// emitter itself, so it is reserved here if digest didn't already place it.
func flagBit(set *model.EquationSet, name string) int {
	bd := set.BackendData
	if bd.FlagBits == nil {
		bd.FlagBits = make(map[string]int)
	}
	if bit, ok := bd.FlagBits[name]; ok {
		return bit
	}
	bit := len(bd.FlagBits)
	bd.FlagBits[name] = bit
	return bit
}

// flagBitConst renders the named flags-word bit as a Go shift expression.
func flagBitConst(set *model.EquationSet, name string) string {
	return "1 << " + strconv.Itoa(flagBit(set, name))
}
