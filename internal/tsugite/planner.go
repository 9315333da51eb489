package tsugite

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Injection emission weights. The comparer is a contract: generated code
// and order-sensitive tests depend on these exact values, so they are
// preserved as given rather than cleaned up.
const (
	weightArg                 = 10
	weightNonCyclicWithCycle  = 11
	weightPerBlockImpl        = 12
	weightSingletonImpl       = 13
	weightScopedImpl          = 20
	weightPerResolveImpl      = 21
	weightOtherImpl           = 22
	weightLeadingConstructs   = 28
	weightAggregateConstructs = 29
	weightTrailingConstructs  = 30
	weightFactoryBase         = 100
	weightFactoryInitializer  = 100
	weightFactoryOverrides    = 1000
)

// Planner turns one validated, optimized graph into an ordered
// construction plan. Traversal uses an explicit frame stack so the
// interleaving of "build dependency, then emit enclosing statement" is
// under the comparer's control rather than the call stack's.
type Planner struct {
	graph      *DependencyGraph
	vars       *VarMap
	plan       *Plan
	inProgress map[NodeID]bool
	hasCycle   bool
}

func NewPlanner(g *DependencyGraph, vars *VarMap) *Planner {
	p := &Planner{
		graph:      g,
		vars:       vars,
		inProgress: make(map[NodeID]bool),
	}
	for _, n := range g.Nodes {
		if n.HasCycle {
			p.hasCycle = true
			break
		}
	}
	return p
}

type depRef struct {
	edge Edge
	orig int
}

type planFrame struct {
	node        *DependencyNode
	v           *Var
	deps        []depRef
	depVars     []*Var
	idx         int
	scope       ScopeKind
	initialized bool
	// exitOnly frames just close a scope once the frame above completed.
	exitOnly ScopeKind
}

// Plan builds the instruction stream for the graph's root.
func (p *Planner) Plan(ctx context.Context) (*Plan, error) {
	p.vars.BeginRoot(p.graph)
	p.plan = &Plan{Root: p.graph.Root}

	root := p.graph.Nodes[p.graph.RootNode]
	rootVar := p.vars.Get(root)
	p.plan.ResultVar = rootVar.Name

	stack := []*planFrame{{node: root, v: rootVar}}

	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		f := stack[len(stack)-1]

		if f.exitOnly != "" {
			p.emit(ExitScope{Kind: f.exitOnly})
			p.vars.Exit()
			stack = stack[:len(stack)-1]
			continue
		}

		if !f.initialized {
			if done := p.openFrame(f); done {
				stack = stack[:len(stack)-1]
				continue
			}
		}

		if f.idx < len(f.deps) {
			d := f.deps[f.idx]
			f.idx++

			child := p.graph.Nodes[d.edge.To]
			cv := p.vars.Get(child)
			f.depVars[d.orig] = cv

			switch {
			case cv.IsCreated:
				// Already available on this path.
			case d.edge.Site.Deferred:
				// A deferred site always gets its lazy boundary, even when
				// it closes a cycle: the pushed frame then reduces to the
				// forward-declared placeholder inside the scope.
				p.emit(EnterScope{Kind: ScopeLazy, Var: cv.Name})
				p.vars.Enter(ScopeLazy, child.BindingID)
				stack = append(stack,
					&planFrame{exitOnly: ScopeLazy},
					&planFrame{node: child, v: cv},
				)
			case p.inProgress[child.ID]:
				// Cycle re-entry: reference the forward-declared
				// placeholder instead of recursing.
				if !cv.IsDeclared {
					p.emit(DeclareVariable{Var: cv.Name, Type: varType(child), Node: child.ID})
					cv.IsDeclared = true
				}
			default:
				stack = append(stack, &planFrame{node: child, v: cv})
			}
			continue
		}

		if err := p.emitAssign(f); err != nil {
			return nil, err
		}
		f.v.IsCreated = true

		if f.node.Binding != nil && f.node.Binding.Disposable {
			switch eff := p.graph.EffectiveLifetime(f.node.ID); eff {
			case LifetimeSingleton, LifetimeScoped:
				p.emit(RegisterDisposable{Var: f.v.Name, Lifetime: eff})
			}
		}

		if f.scope != "" {
			p.emit(ExitScope{Kind: f.scope})
			p.vars.Exit()
		}
		p.inProgress[f.node.ID] = false
		stack = stack[:len(stack)-1]
	}

	p.plan.IsThreadSafe = p.vars.IsThreadSafe() && p.graph.meta.Hints.ThreadSafe
	slog.Debug("plan built", "root", p.graph.Root.Name, "instructions", len(p.plan.Instructions), "threadSafe", p.plan.IsThreadSafe)
	return p.plan, nil
}

// openFrame prepares a node's frame: skips already-created variables,
// declares cycle placeholders, opens the node's scope and sorts its
// dependencies into emission order. Returns true when the frame is
// already satisfied.
func (p *Planner) openFrame(f *planFrame) bool {
	f.initialized = true

	if f.v.IsCreated {
		return true
	}
	if p.inProgress[f.node.ID] {
		if !f.v.IsDeclared {
			p.emit(DeclareVariable{Var: f.v.Name, Type: varType(f.node), Node: f.node.ID})
			f.v.IsDeclared = true
		}
		return true
	}
	p.inProgress[f.node.ID] = true

	if f.node.HasCycle && !f.v.IsDeclared {
		p.emit(DeclareVariable{Var: f.v.Name, Type: varType(f.node), Node: f.node.ID})
		f.v.IsDeclared = true
	}

	switch eff := p.graph.EffectiveLifetime(f.node.ID); {
	case eff == LifetimeSingleton || eff == LifetimeScoped:
		f.scope = ScopeLocalFunction
	case eff == LifetimePerResolve || f.node.HasCycle:
		f.scope = ScopeBlock
	}
	if f.scope != "" {
		if !f.v.IsDeclared {
			p.emit(DeclareVariable{Var: f.v.Name, Type: varType(f.node), Node: f.node.ID})
			f.v.IsDeclared = true
		}
		p.emit(EnterScope{Kind: f.scope, Var: f.v.Name})
		p.vars.Enter(f.scope, f.node.BindingID)
	}

	out := p.graph.Out[f.node.ID]
	f.deps = make([]depRef, len(out))
	for i, e := range out {
		f.deps[i] = depRef{edge: e, orig: i}
	}
	f.depVars = make([]*Var, len(out))
	p.sortDeps(f.deps)

	return false
}

// sortDeps applies the total injection order: non-cyclic before cyclic,
// then the fixed cheap-first weights, with binding ordinal and site
// ordinal as explicit tie-breaks for determinism.
func (p *Planner) sortDeps(deps []depRef) {
	sort.SliceStable(deps, func(i, j int) bool {
		a, b := deps[i], deps[j]
		wa, wb := p.injectionWeight(a.edge), p.injectionWeight(b.edge)
		if wa != wb {
			return wa < wb
		}
		na, nb := p.graph.Nodes[a.edge.To], p.graph.Nodes[b.edge.To]
		if na.BindingID != nb.BindingID {
			return na.BindingID < nb.BindingID
		}
		return a.orig < b.orig
	})
}

func (p *Planner) injectionWeight(e Edge) int {
	n := p.graph.Nodes[e.To]
	eff := p.graph.EffectiveLifetime(e.To)

	if eff == LifetimeArg {
		return weightArg
	}
	if !n.HasCycle && p.hasCycle {
		return weightNonCyclicWithCycle
	}

	if n.Binding != nil && n.Binding.Factory != nil {
		w := weightFactoryBase + len(n.Binding.Factory.Resolvers) +
			weightFactoryInitializer*len(n.Binding.Factory.Initializers)
		if n.Binding.Factory.UsesOverrides() {
			w += weightFactoryOverrides
		}
		return w
	}

	if n.Construct != nil {
		switch n.Construct.Kind {
		case ConstructAccumulator, ConstructExplicitDefaultValue:
			return weightLeadingConstructs
		case ConstructEnumerable, ConstructAsyncEnumerable, ConstructArray, ConstructSpan, ConstructLazy:
			return weightAggregateConstructs
		case ConstructOverride, ConstructOnCannotResolve, ConstructComposition:
			return weightTrailingConstructs
		}
	}

	switch eff {
	case LifetimePerBlock:
		return weightPerBlockImpl
	case LifetimeSingleton:
		return weightSingletonImpl
	case LifetimeScoped:
		return weightScopedImpl
	case LifetimePerResolve:
		return weightPerResolveImpl
	default:
		return weightOtherImpl
	}
}

func (p *Planner) emitAssign(f *planFrame) error {
	n := f.node

	depName := func(orig int) string {
		if f.depVars[orig] == nil {
			return "_"
		}
		return f.depVars[orig].Name
	}

	switch {
	case n.Binding != nil && n.Binding.Arg != nil:
		// Arguments are pre-created; nothing to emit.
		return nil

	case n.Binding != nil && n.Binding.Impl != nil:
		impl := n.Binding.Impl
		instr := AssignFromNewInstance{Var: f.v.Name, Impl: impl.Type, Node: n.ID}
		for i := range impl.Params {
			instr.Args = append(instr.Args, depName(i))
		}
		for i, m := range impl.Members {
			instr.Members = append(instr.Members, MemberInit{
				Kind: m.Kind,
				Name: m.Name,
				Var:  depName(len(impl.Params) + i),
			})
		}
		p.emit(instr)
		return nil

	case n.Binding != nil && n.Binding.Factory != nil:
		fac := n.Binding.Factory
		instr := AssignFromFactory{Var: f.v.Name, Result: fac.Result, Node: n.ID}
		for i := range fac.Resolvers {
			instr.Resolvers = append(instr.Resolvers, depName(i))
		}
		for i, m := range fac.Initializers {
			instr.Initializers = append(instr.Initializers, MemberInit{
				Kind: m.Kind,
				Name: m.Name,
				Var:  depName(len(fac.Resolvers) + i),
			})
		}
		p.emit(instr)
		return nil

	case n.Construct != nil:
		instr := AssignFromConstruct{
			Var:     f.v.Name,
			Kind:    n.Construct.Kind,
			Type:    n.Contract.Type,
			Default: n.Construct.Default,
			Node:    n.ID,
		}
		// Source order is the edge (declaration) order, not emission order.
		for i := range p.graph.Out[n.ID] {
			instr.Sources = append(instr.Sources, depName(i))
		}
		p.emit(instr)
		return nil

	default:
		return fmt.Errorf("node %d has neither binding nor construct", n.ID)
	}
}

func (p *Planner) emit(instr Instruction) {
	p.plan.Instructions = append(p.plan.Instructions, instr)
}
