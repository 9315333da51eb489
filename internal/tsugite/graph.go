package tsugite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mazrean/tsugite/internal/pkg/collection"
)

// NodeID indexes a node within one graph's arena.
type NodeID int

// DependencyNode is a resolved vertex: a binding plus annotations, or a
// synthetic construct. Immutable after building except for the HasCycle
// mark and the effective-lifetime arena kept on the graph.
type DependencyNode struct {
	ID        NodeID
	BindingID BindingID
	Contract  Contract
	Binding   *Binding
	Construct *Construct
	HasCycle  bool
}

// DeclaredLifetime is the lifetime before optimization. Constructs are
// transient shapes except the composition self-reference, which behaves
// like an argument: always already available.
func (n *DependencyNode) DeclaredLifetime() Lifetime {
	if n.Binding != nil {
		return n.Binding.Lifetime
	}
	if n.Construct != nil && n.Construct.Kind == ConstructComposition {
		return LifetimeArg
	}
	return LifetimeTransient
}

// Edge is one dependency: consumer From requires To at the given site.
type Edge struct {
	From NodeID
	To   NodeID
	Site InjectionSite
}

// DependencyGraph is the finalized node/edge set for one root.
type DependencyGraph struct {
	Root     Root
	RootNode NodeID
	Nodes    []*DependencyNode
	// Out holds each consumer's dependency edges in declared site order.
	Out [][]Edge
	// In holds reverse edges, filled after expansion completes.
	In [][]Edge
	// Effective is the lifetime arena written by Optimize; indexed by
	// NodeID. Empty until the optimization pass runs.
	Effective []Lifetime

	meta *MetaData
}

// EffectiveLifetime returns the optimized lifetime of a node, falling
// back to the declared one before Optimize has run.
func (g *DependencyGraph) EffectiveLifetime(id NodeID) Lifetime {
	if int(id) < len(g.Effective) && g.Effective[id] != "" {
		return g.Effective[id]
	}
	return g.Nodes[id].DeclaredLifetime()
}

// GraphBuilder expands root requests into dependency graphs by querying
// the registry.
type GraphBuilder struct {
	meta   *MetaData
	reg    *Registry
	oracle TypeOracle
}

func NewGraphBuilder(meta *MetaData, reg *Registry, oracle TypeOracle) *GraphBuilder {
	return &GraphBuilder{meta: meta, reg: reg, oracle: oracle}
}

type graphExpansion struct {
	*GraphBuilder
	graph      *DependencyGraph
	root       Root
	queue      *collection.Queue[*DependencyNode]
	byBinding  map[BindingID]*DependencyNode
	constructs map[string]*DependencyNode
	nextSynth  BindingID
	iterations int
}

// Build expands one declared root into a full dependency graph. Every
// loop step checks ctx so external cancellation aborts promptly, and an
// iteration cap turns runaway generic expansion into a GraphTooLarge
// error instead of silent truncation.
func (gb *GraphBuilder) Build(ctx context.Context, root Root) (*DependencyGraph, error) {
	e := &graphExpansion{
		GraphBuilder: gb,
		graph:        &DependencyGraph{Root: root, meta: gb.meta},
		root:         root,
		queue:        collection.NewQueue[*DependencyNode](),
		byBinding:    make(map[BindingID]*DependencyNode),
		constructs:   make(map[string]*DependencyNode),
		// Synthetic construct nodes share the binding-id space beyond any
		// id the registry can allocate.
		nextSynth: BindingID(len(gb.meta.Bindings) + gb.meta.Hints.MaxIterations),
	}

	rootNode, err := e.resolve(ctx, root.Contract, InjectionSite{}, Contract{})
	if err != nil {
		return nil, err
	}
	e.graph.RootNode = rootNode.ID

	for n := range e.queue.Iter {
		if err := e.expand(ctx, n); err != nil {
			return nil, err
		}
	}

	e.graph.In = make([][]Edge, len(e.graph.Nodes))
	for _, edges := range e.graph.Out {
		for _, edge := range edges {
			e.graph.In[edge.To] = append(e.graph.In[edge.To], edge)
		}
	}

	slog.Debug("graph built", "root", root.Name, "nodes", len(e.graph.Nodes), "iterations", e.iterations)
	return e.graph, nil
}

func (e *graphExpansion) step(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	e.iterations++
	if e.iterations > e.meta.Hints.MaxIterations {
		return &TooLargeError{Limit: e.meta.Hints.MaxIterations, Root: e.root.Name}
	}
	return nil
}

// resolve returns the node satisfying a contract, creating and enqueuing
// it on first sight. Nodes memoize per binding id: a diamond reuses one
// node, never two.
func (e *graphExpansion) resolve(ctx context.Context, c Contract, site InjectionSite, consumer Contract) (*DependencyNode, error) {
	if err := e.step(ctx); err != nil {
		return nil, err
	}

	if site.Override {
		return e.constructNode(&Construct{Kind: ConstructOverride, Type: c.Type, Elem: c}, c), nil
	}

	if construct, ok := constructShape(e.meta, c); ok {
		return e.constructNode(construct, c), nil
	}

	if b, ok := e.reg.Lookup(c); ok {
		return e.bindingNode(b, c), nil
	}

	if site.Optional {
		return e.constructNode(&Construct{
			Kind:    ConstructExplicitDefaultValue,
			Type:    c.Type,
			Default: site.Default,
		}, c), nil
	}

	if e.meta.Hints.OnCannotResolve {
		return e.constructNode(&Construct{Kind: ConstructOnCannotResolve, Type: c.Type, Elem: c}, c), nil
	}

	return nil, &ResolveError{Contract: c, Consumer: consumer, Root: e.root.Name}
}

func (e *graphExpansion) bindingNode(b *Binding, c Contract) *DependencyNode {
	if n, ok := e.byBinding[b.ID]; ok {
		return n
	}

	n := &DependencyNode{
		ID:        NodeID(len(e.graph.Nodes)),
		BindingID: b.ID,
		Contract:  c,
		Binding:   b,
	}
	e.graph.Nodes = append(e.graph.Nodes, n)
	e.graph.Out = append(e.graph.Out, nil)
	e.byBinding[b.ID] = n
	e.reg.MarkUsed(b)
	e.queue.Push(n)
	return n
}

func (e *graphExpansion) constructNode(construct *Construct, c Contract) *DependencyNode {
	key := string(construct.Kind) + "|" + c.Key()
	if n, ok := e.constructs[key]; ok {
		return n
	}

	n := &DependencyNode{
		ID:        NodeID(len(e.graph.Nodes)),
		BindingID: e.nextSynth,
		Contract:  c,
		Construct: construct,
	}
	e.nextSynth++
	e.graph.Nodes = append(e.graph.Nodes, n)
	e.graph.Out = append(e.graph.Out, nil)
	e.constructs[key] = n
	e.queue.Push(n)
	return n
}

func (e *graphExpansion) expand(ctx context.Context, n *DependencyNode) error {
	switch {
	case n.Binding != nil:
		return e.expandBinding(ctx, n)
	case n.Construct != nil:
		return e.expandConstruct(ctx, n)
	default:
		return fmt.Errorf("invalid node %d", n.ID)
	}
}

func (e *graphExpansion) expandBinding(ctx context.Context, n *DependencyNode) error {
	for _, site := range n.Binding.Sites() {
		dep, err := e.resolve(ctx, site.Contract, site, n.Contract)
		if err != nil {
			return err
		}
		e.addEdge(n, dep, site)
	}
	return nil
}

func (e *graphExpansion) expandConstruct(ctx context.Context, n *DependencyNode) error {
	construct := n.Construct
	switch {
	case construct.leaf():
		return nil
	case construct.Kind == ConstructLazy:
		dep, err := e.resolve(ctx, construct.Elem, InjectionSite{Deferred: true}, n.Contract)
		if err != nil {
			return err
		}
		e.addEdge(n, dep, InjectionSite{
			Kind:     InjectElement,
			Contract: construct.Elem,
			Deferred: true,
		})
		return nil
	case construct.aggregates():
		return e.expandAggregate(ctx, n)
	default:
		return fmt.Errorf("unhandled construct kind %s", construct.Kind)
	}
}

// expandAggregate wires every matching binding in declaration order.
// Content order is ordinal order; only code emission order is the
// injection comparer's business.
func (e *graphExpansion) expandAggregate(ctx context.Context, n *DependencyNode) error {
	construct := n.Construct

	var candidates []*Binding
	if construct.Kind == ConstructAccumulator {
		candidates = e.accumulatorCandidates(construct)
	} else {
		candidates = e.reg.Candidates(construct.Elem.Type)
		if !construct.Elem.Tag.IsDefault() {
			filtered := candidates[:0:0]
			for _, b := range candidates {
				for _, bc := range b.Contracts {
					if bc.Tag.Matches(construct.Elem.Tag) {
						filtered = append(filtered, b)
						break
					}
				}
			}
			candidates = filtered
		}
	}

	for i, b := range candidates {
		if err := e.step(ctx); err != nil {
			return err
		}

		dep := e.bindingNode(b, Contract{Type: construct.Elem.Type, Tag: b.Contracts[0].Tag})
		e.addEdge(n, dep, InjectionSite{
			Kind:     InjectElement,
			Contract: construct.Elem,
			Ordinal:  i,
		})
	}

	if construct.Kind == ConstructSpan && len(candidates) != construct.Len {
		return &ResolveError{Contract: n.Contract, Root: e.root.Name}
	}

	return nil
}

func (e *graphExpansion) accumulatorCandidates(construct *Construct) []*Binding {
	var spec *AccumulatorSpec
	for i := range e.meta.Accumulators {
		if e.meta.Accumulators[i].Type.Equal(construct.Type) {
			spec = &e.meta.Accumulators[i]
			break
		}
	}
	if spec == nil {
		return nil
	}

	var candidates []*Binding
	for _, b := range e.meta.Bindings {
		if b.Arg != nil {
			continue
		}
		if !oracleAssignable(e.oracle, b.ImplType(), spec.Elem) {
			continue
		}
		if len(spec.Lifetimes) > 0 {
			match := false
			for _, l := range spec.Lifetimes {
				if b.Lifetime == l {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		candidates = append(candidates, b)
	}
	return candidates
}

func (e *graphExpansion) addEdge(from, to *DependencyNode, site InjectionSite) {
	e.graph.Out[from.ID] = append(e.graph.Out[from.ID], Edge{From: from.ID, To: to.ID, Site: site})
}
