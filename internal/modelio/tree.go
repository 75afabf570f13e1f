// Package modelio parses the N2A input model format (spec.md §6): an
// indentation-delimited tree of "key" or "key: value" lines, where reserved
// keys begin with "$". Parsing happens in two passes, grounded on teacher's
// src/misc/config_loader.go line-oriented scanning idiom: pass one builds a
// generic Node tree (this file); pass two (build.go) lowers that tree into
// an *model.EquationSet hierarchy plus per-part/per-variable Metadata.
package modelio

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// Node is one line of the input tree: a key, an optional value, and the
// children nested one indentation level deeper.
type Node struct {
	Key      string
	Value    string
	HasValue bool
	Children []*Node
	Line     int
}

// ParseTree reads the indentation tree format from r. Indentation must use
// a consistent unit (tabs or a fixed run of spaces) within one file; a line
// indented by an amount that is not a multiple of the unit, or that skips a
// level, is reported as a diagnostic rather than panicking, the way
// bggohcl.FindUniqueBlock returns hcl.Diagnostics instead of erroring hard.
func ParseTree(r io.Reader, filename string) (*Node, hcl.Diagnostics) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	root := &Node{Key: "", Children: nil}
	stack := []*Node{root}
	indents := []int{-1}

	var diags hcl.Diagnostics
	lineNo := 0
	unit := 0 // indentation width in spaces, discovered from first indented line

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		trimmed := strings.TrimRight(raw, " \t\r")
		if strings.TrimSpace(trimmed) == "" {
			continue // blank lines are insignificant
		}
		if strings.HasPrefix(strings.TrimSpace(trimmed), "#") {
			continue // comment line
		}

		indentChars := leadingSpaces(trimmed)
		content := trimmed[indentChars:]

		level, ok := indentLevel(indentChars, &unit)
		if !ok {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "inconsistent indentation",
				Detail:   fmt.Sprintf("%s:%d: indentation of %d spaces does not align to the file's indent unit of %d", filename, lineNo, indentChars, unit),
			})
			continue
		}

		for level >= len(indents) {
			// A jump of more than one level is malformed; clamp to a
			// single extra level and note it so the tree stays usable.
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagWarning,
				Summary:  "indentation skips a level",
				Detail:   fmt.Sprintf("%s:%d: treating as a single nested level", filename, lineNo),
			})
			level = len(indents) - 1
		}

		for len(indents) > 0 && indents[len(indents)-1] >= level {
			indents = indents[:len(indents)-1]
			stack = stack[:len(stack)-1]
		}

		key, value, hasValue := splitKeyValue(content)
		node := &Node{Key: key, Value: value, HasValue: hasValue, Line: lineNo}
		parent := stack[len(stack)-1]
		parent.Children = append(parent.Children, node)

		stack = append(stack, node)
		indents = append(indents, level)
	}

	if err := scanner.Err(); err != nil {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "error reading model source",
			Detail:   err.Error(),
		})
	}

	return root, diags
}

func leadingSpaces(s string) int {
	n := 0
	for n < len(s) && (s[n] == ' ' || s[n] == '\t') {
		n++
	}
	return n
}

// indentLevel converts a raw indentation width into a nesting level,
// inferring the file's indent unit from the first indented line seen.
func indentLevel(width int, unit *int) (int, bool) {
	if width == 0 {
		return 0, true
	}
	if *unit == 0 {
		*unit = width
	}
	if width%*unit != 0 {
		return 0, false
	}
	return width / *unit, true
}

// splitKeyValue separates "key" or "key: value" / "key=value" content.
// The N2A format allows either separator; ":" is preferred when both could
// apply because equation expressions frequently contain "=" themselves.
func splitKeyValue(content string) (key, value string, hasValue bool) {
	if idx := strings.Index(content, ":"); idx >= 0 {
		return strings.TrimSpace(content[:idx]), strings.TrimSpace(content[idx+1:]), true
	}
	if idx := strings.Index(content, "="); idx >= 0 {
		return strings.TrimSpace(content[:idx]), strings.TrimSpace(content[idx+1:]), true
	}
	return strings.TrimSpace(content), "", false
}
