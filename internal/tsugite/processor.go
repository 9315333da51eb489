package tsugite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Processor runs the whole pipeline for manifest files: decode, merge,
// finalize, and per-root build/validate/optimize/plan. Files are
// independent compositions and process concurrently; everything within
// one composition is sequential.
type Processor struct {
	// DryRun validates and plans without writing output files.
	DryRun bool
	// Oracle overrides the manifest-declared shape oracle when set.
	Oracle TypeOracle
}

func NewProcessor() *Processor {
	return &Processor{}
}

// ProcessFiles processes the given manifest files.
func (p *Processor) ProcessFiles(ctx context.Context, files []string) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, filename := range files {
		eg.Go(func() error {
			return p.processFile(ctx, filename)
		})
	}
	return eg.Wait()
}

func (p *Processor) processFile(ctx context.Context, filename string) error {
	slog.Debug("processing manifest", "file", filename)

	manifest, err := LoadManifest(filename)
	if err != nil {
		return err
	}

	result, err := BuildComposition(ctx, manifest, p.Oracle)
	if err != nil {
		return fmt.Errorf("composition %s: %w", filename, err)
	}

	for _, diag := range result.Diagnostics.Reports() {
		logDiagnostic(filename, diag)
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("composition %s: %w", filename, errors.Join(result.Errors...))
	}
	if p.DryRun {
		return nil
	}

	outputPath := outputFileName(filename)
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outputPath, err)
	}
	defer f.Close()

	for i, plan := range result.Plans {
		if i > 0 {
			if _, err := f.WriteString("\n"); err != nil {
				return err
			}
		}
		if err := WritePlan(f, plan); err != nil {
			return fmt.Errorf("write plan: %w", err)
		}
	}

	slog.Info("plans written", "file", filename, "output", outputPath, "roots", len(result.Plans))
	return nil
}

// CompositionResult bundles a composition's plans and diagnostics.
// Per-root failures land in Errors; roots that built successfully keep
// their plans regardless.
type CompositionResult struct {
	Name        string
	Plans       []*Plan
	Graphs      []*DependencyGraph
	Diagnostics *Diagnostics
	Errors      []error
}

// BuildComposition runs the sequential passes for one composition.
// Metadata and binding-shape errors abort before any per-root work; an
// error in one root's graph aborts only that root.
func BuildComposition(ctx context.Context, m *Manifest, override TypeOracle) (*CompositionResult, error) {
	name, compType, setups, hints, shapeOracle, err := m.Build()
	if err != nil {
		return nil, err
	}

	var oracle TypeOracle = shapeOracle
	if override != nil {
		oracle = override
	}

	meta, err := MergeSetups(name, compType, setups, hints)
	if err != nil {
		return nil, err
	}
	if err := meta.Finalize(oracle); err != nil {
		return nil, err
	}

	diags := &Diagnostics{}
	reg := NewRegistry(meta, oracle, diags)
	builder := NewGraphBuilder(meta, reg, oracle)
	vars := NewVarMap(NewVarPool())

	result := &CompositionResult{Name: name, Diagnostics: diags}

	for _, root := range meta.Roots {
		plan, graph, err := buildRoot(ctx, builder, vars, root)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			reportRootError(diags, err)
			result.Errors = append(result.Errors, fmt.Errorf("root %s: %w", root.Name, err))
			continue
		}
		result.Plans = append(result.Plans, plan)
		result.Graphs = append(result.Graphs, graph)
	}

	// Unused bindings are a cross-root property; report them only after
	// every root had its chance to reach them.
	reg.ReportUnused()

	return result, nil
}

func buildRoot(ctx context.Context, builder *GraphBuilder, vars *VarMap, root Root) (*Plan, *DependencyGraph, error) {
	graph, err := builder.Build(ctx, root)
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateCycles(graph); err != nil {
		return nil, nil, err
	}
	Optimize(graph)

	plan, err := NewPlanner(graph, vars).Plan(ctx)
	if err != nil {
		return nil, nil, err
	}
	return plan, graph, nil
}

type diagnosable interface {
	Diagnostic() Diagnostic
}

func reportRootError(diags *Diagnostics, err error) {
	var d diagnosable
	if errors.As(err, &d) {
		diags.Report(d.Diagnostic())
	}
}

func logDiagnostic(filename string, diag Diagnostic) {
	attrs := []any{"file", filename, "code", diag.Code}
	if len(diag.Bindings) > 0 {
		attrs = append(attrs, "bindings", diag.Bindings)
	}
	if !diag.Contract.Type.IsZero() {
		attrs = append(attrs, "contract", diag.Contract.Key())
	}
	if diag.Location.Setup != "" {
		attrs = append(attrs, "location", diag.Location.String())
	}
	if diag.Detail != "" {
		attrs = append(attrs, "detail", diag.Detail)
	}

	switch diag.Severity {
	case SeverityError:
		slog.Error("diagnostic", attrs...)
	case SeverityWarning:
		slog.Warn("diagnostic", attrs...)
	default:
		slog.Info("diagnostic", attrs...)
	}
}

func outputFileName(filename string) string {
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filename, ext) + ".plan.txt"
}
