package tsugite

import (
	"fmt"
	"io"
	"strings"
)

// WritePlan renders a plan as one instruction per line. The rendering is
// deterministic: identical metadata input yields byte-identical output,
// which the golden tests rely on.
func WritePlan(w io.Writer, plan *Plan) error {
	var b strings.Builder

	fmt.Fprintf(&b, "root %s: %s", plan.Root.Name, plan.Root.Contract.Key())
	if plan.IsThreadSafe {
		b.WriteString(" [threadSafe]")
	}
	b.WriteString("\n")

	depth := 1
	indent := func() string { return strings.Repeat("  ", depth) }

	for _, instr := range plan.Instructions {
		switch in := instr.(type) {
		case DeclareVariable:
			fmt.Fprintf(&b, "%svar %s %s\n", indent(), in.Var, in.Type.Key())
		case EnterScope:
			if in.Var != "" {
				fmt.Fprintf(&b, "%s%s %s {\n", indent(), in.Kind, in.Var)
			} else {
				fmt.Fprintf(&b, "%s%s {\n", indent(), in.Kind)
			}
			depth++
		case ExitScope:
			depth--
			fmt.Fprintf(&b, "%s}\n", indent())
		case AssignFromNewInstance:
			fmt.Fprintf(&b, "%s%s = new %s(%s)%s\n",
				indent(), in.Var, in.Impl.Key(), strings.Join(in.Args, ", "), renderMembers(in.Members))
		case AssignFromFactory:
			fmt.Fprintf(&b, "%s%s = factory %s(%s)%s\n",
				indent(), in.Var, in.Result.Key(), strings.Join(in.Resolvers, ", "), renderMembers(in.Initializers))
		case AssignFromConstruct:
			fmt.Fprintf(&b, "%s%s = %s<%s>(%s)%s\n",
				indent(), in.Var, in.Kind, in.Type.Key(), strings.Join(in.Sources, ", "), renderDefault(in.Default))
		case RegisterDisposable:
			fmt.Fprintf(&b, "%sregister disposable %s (%s)\n", indent(), in.Var, in.Lifetime)
		default:
			return fmt.Errorf("unknown instruction %T", instr)
		}
	}

	fmt.Fprintf(&b, "  return %s\n", plan.ResultVar)

	_, err := io.WriteString(w, b.String())
	return err
}

func renderMembers(members []MemberInit) string {
	if len(members) == 0 {
		return ""
	}
	parts := make([]string, 0, len(members))
	for _, m := range members {
		parts = append(parts, fmt.Sprintf("%s=%s", m.Name, m.Var))
	}
	return " { " + strings.Join(parts, ", ") + " }"
}

func renderDefault(def string) string {
	if def == "" {
		return ""
	}
	return " default=" + def
}

// RenderPlan renders to a string; convenience for tests and diagnostics.
func RenderPlan(plan *Plan) string {
	var b strings.Builder
	_ = WritePlan(&b, plan)
	return b.String()
}
