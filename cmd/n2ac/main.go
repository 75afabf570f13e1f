// Command n2ac is the N2A compiler frontend: it parses a model source
// file, runs EquationDigest and ConnectionPlanner over the result, and
// emits a Go package implementing the simulation, following spec.md §6's
// CLI contract. The parse/digest/plan/emit/write staging mirrors teacher's
// src/main.go validate-compile-link-assemble-simulate chain, generalized
// from a fixed five-stage pipeline to this compiler's four stages plus a
// file-write step.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sugawarayuuta/sonnet"

	"github.com/jonsalaz/n2a/internal/connplanner"
	"github.com/jonsalaz/n2a/internal/diag"
	"github.com/jonsalaz/n2a/internal/digest"
	"github.com/jonsalaz/n2a/internal/emitter"
	"github.com/jonsalaz/n2a/internal/model"
	"github.com/jonsalaz/n2a/internal/modelio"
)

func main() {
	modelPath := flag.String("model", "", "path to the N2A model source file")
	outDir := flag.String("out", "build", "output directory for the generated Go package")
	backendType := flag.String("backend-type", "float", "numeric backend: float|double|int")
	verbose := flag.Bool("v", false, "enable debug logging")
	dumpJSON := flag.String("dump-json", "", "write the digested model tree as JSON to this path, for inspection")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*modelPath, *outDir, *backendType, *dumpJSON, logger); err != nil {
		var abort *diag.AbortRun
		if errors.As(err, &abort) {
			fmt.Fprintf(os.Stderr, "Exception: %s\n", abort.Error())
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Exception: %v\n", err)
		os.Exit(1)
	}
}

func run(modelPath, outDir, backendType, dumpJSONPath string, logger *slog.Logger) error {
	if modelPath == "" {
		return fmt.Errorf("-model is required")
	}

	root, err := parseModel(modelPath)
	if err != nil {
		return err
	}
	if root.Metadata == nil {
		root.Metadata = model.NewMetadata()
	}
	root.Metadata.Set(backendType, "backend", "c", "type")

	ctx := context.Background()
	d := digest.New().WithLogger(logger)
	if _, err := d.Digest(ctx, root); err != nil {
		return err
	}

	connplanner.New().WithLogger(logger).Plan(root)

	numericType := model.NumericTypeOf(root.Metadata)
	files, err := emitter.New().WithLogger(logger).WithNumericType(numericType).Emit(root)
	if err != nil {
		return err
	}

	if dumpJSONPath != "" {
		if err := dumpModelJSON(root, dumpJSONPath); err != nil {
			return fmt.Errorf("dump-json: %w", err)
		}
	}

	if err := writeFiles(outDir, files); err != nil {
		return err
	}

	logger.Info("compiled model", "model", root.Name, "files", len(files), "out", outDir)
	return nil
}

func parseModel(path string) (*model.EquationSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	tree, diags := modelio.ParseTree(f, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %s", path, diags.Error())
	}

	root, diags := modelio.Build(tree)
	if diags.HasErrors() {
		return nil, fmt.Errorf("build %s: %s", path, diags.Error())
	}
	return root, nil
}

func writeFiles(outDir string, files map[string]string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for name, src := range files {
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// modelSummary is the shape -dump-json writes: a flattened, JSON-friendly
// view of the digested part tree, since EquationSet itself carries
// unexported fields and back-links that don't marshal cleanly.
type modelSummary struct {
	Name      string          `json:"name"`
	Path      string          `json:"path"`
	Variables []string        `json:"variables"`
	Parts     []*modelSummary `json:"parts"`
}

func dumpModelJSON(root *model.EquationSet, path string) error {
	summary := summarize(root)
	data, err := sonnet.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func summarize(set *model.EquationSet) *modelSummary {
	s := &modelSummary{Name: set.Name, Path: set.Path()}
	for _, v := range set.Variables() {
		s.Variables = append(s.Variables, v.Name)
	}
	for _, child := range set.Parts {
		s.Parts = append(s.Parts, summarize(child))
	}
	return s
}
