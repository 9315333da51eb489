package tsugite

import (
	"fmt"
	"strings"
)

// DiagCode identifies a diagnostic kind. Codes are stable; the external
// diagnostics layer renders human-readable text from them.
type DiagCode string

const (
	CodeDependencyNotResolved        DiagCode = "DependencyNotResolved"
	CodeBindingOverridden            DiagCode = "BindingOverridden"
	CodeInvalidBindingShape          DiagCode = "InvalidBindingShape"
	CodeCyclicDependencyNotSupported DiagCode = "CyclicDependencyNotSupported"
	CodeGraphTooLarge                DiagCode = "GraphTooLarge"
	CodeUnusedBinding                DiagCode = "UnusedBinding"
	CodeSetupCycle                   DiagCode = "SetupCycle"
)

// Severity of a diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Diagnostic is one structured report: code plus enough context for the
// external formatting layer to render a precise message.
type Diagnostic struct {
	Code     DiagCode
	Severity Severity
	Bindings []BindingID
	Contract Contract
	Location Location
	Detail   string
}

// Diagnostics collects reports in emission order.
type Diagnostics struct {
	reports []Diagnostic
}

func (d *Diagnostics) Report(diag Diagnostic) {
	d.reports = append(d.reports, diag)
}

func (d *Diagnostics) Reports() []Diagnostic {
	return d.reports
}

func (d *Diagnostics) HasErrors() bool {
	for _, r := range d.reports {
		if r.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ShapeError is a fatal binding-shape violation, surfaced at finalization
// before graph building starts.
type ShapeError struct {
	Binding  BindingID
	Location Location
	Reason   string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: binding %d at %s: %s", CodeInvalidBindingShape, e.Binding, e.Location, e.Reason)
}

func (e *ShapeError) Diagnostic() Diagnostic {
	return Diagnostic{
		Code:     CodeInvalidBindingShape,
		Severity: SeverityError,
		Bindings: []BindingID{e.Binding},
		Location: e.Location,
		Detail:   e.Reason,
	}
}

// ResolveError is a fatal unresolved contract for a specific root.
type ResolveError struct {
	Contract Contract
	Consumer Contract
	Root     string
}

func (e *ResolveError) Error() string {
	if e.Consumer.Type.IsZero() {
		return fmt.Sprintf("%s: %s (root %s)", CodeDependencyNotResolved, e.Contract, e.Root)
	}
	return fmt.Sprintf("%s: %s required by %s (root %s)", CodeDependencyNotResolved, e.Contract, e.Consumer, e.Root)
}

func (e *ResolveError) Diagnostic() Diagnostic {
	return Diagnostic{
		Code:     CodeDependencyNotResolved,
		Severity: SeverityError,
		Contract: e.Contract,
		Detail:   e.Root,
	}
}

// CycleError is a fatal dependency cycle with no deferred injection site.
type CycleError struct {
	Nodes    []Contract
	Bindings []BindingID
	Lifetime Lifetime
}

func (e *CycleError) Error() string {
	if len(e.Nodes) == 0 {
		return string(CodeCyclicDependencyNotSupported)
	}

	parts := make([]string, 0, len(e.Nodes)+1)
	for _, c := range e.Nodes {
		parts = append(parts, c.Key())
	}
	parts = append(parts, e.Nodes[0].Key())

	return fmt.Sprintf("%s: %s cycle: %s", CodeCyclicDependencyNotSupported, e.Lifetime, strings.Join(parts, " -> "))
}

func (e *CycleError) Diagnostic() Diagnostic {
	return Diagnostic{
		Code:     CodeCyclicDependencyNotSupported,
		Severity: SeverityError,
		Bindings: e.Bindings,
		Detail:   string(e.Lifetime),
	}
}

// TooLargeError reports exceeding the configured expansion cap; an
// explicit limit distinguishes it from a correctness bug.
type TooLargeError struct {
	Limit int
	Root  string
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("%s: expansion exceeded %d iterations (root %s)", CodeGraphTooLarge, e.Limit, e.Root)
}

func (e *TooLargeError) Diagnostic() Diagnostic {
	return Diagnostic{
		Code:     CodeGraphTooLarge,
		Severity: SeverityError,
		Detail:   fmt.Sprintf("limit=%d root=%s", e.Limit, e.Root),
	}
}

// SetupCycleError reports a cycle in the setup depends-on graph.
type SetupCycleError struct {
	Setups []string
}

func (e *SetupCycleError) Error() string {
	return fmt.Sprintf("%s: %s", CodeSetupCycle, strings.Join(e.Setups, " -> "))
}
