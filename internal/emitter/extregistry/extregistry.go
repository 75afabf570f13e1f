// Package extregistry is the plugin point CodeEmitter consults when an
// equation calls a function it doesn't have a built-in renderer for,
// restoring the original system's ProvideOperator extension point (JobC.java's
// this.extensions / this.extensionNames) dropped by the distilled spec.
//
// Grounded on burstgridgo's internal/registry: a package-level Registry with
// panic-on-duplicate-registration and slog.Debug on every registration.
package extregistry

import (
	"fmt"
	"log/slog"

	"github.com/jonsalaz/n2a/internal/model"
)

// OperatorRenderer renders a FunctionCall whose Name isn't one of
// CodeEmitter's built-ins into a Go expression string. resolveOperand
// renders one of the call's own arguments via the emitter's normal
// expression renderer, so a custom renderer can recurse into its own
// arguments without reimplementing expression rendering.
type OperatorRenderer func(call *model.FunctionCall, resolveOperand func(model.Expr) string) string

// Registry holds the operator renderers registered for one emission run.
type Registry struct {
	renderers map[string]OperatorRenderer
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{renderers: make(map[string]OperatorRenderer)}
}

// Register adds a renderer for the named operator. Registering the same
// name twice is a programming error, matching RegisterRunner's
// panic-on-duplicate-registration discipline: plugin name collisions should
// fail loudly at startup, not silently shadow one another mid-emission.
func (r *Registry) Register(name string, renderer OperatorRenderer) {
	if _, exists := r.renderers[name]; exists {
		panic(fmt.Sprintf("operator renderer %q already registered", name))
	}
	slog.Debug("registering operator renderer", "name", name)
	r.renderers[name] = renderer
}

// Lookup returns the renderer registered for name, if any.
func (r *Registry) Lookup(name string) (OperatorRenderer, bool) {
	if r == nil {
		return nil, false
	}
	renderer, ok := r.renderers[name]
	return renderer, ok
}
