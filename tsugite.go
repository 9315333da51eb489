// Package tsugite provides a declarative builder for dependency injection
// compositions and emits deterministic construction plans for their roots.
//
// A composition collects setup fragments, each contributing bindings,
// roots, and accumulators. Calling Plan resolves every root into an
// ordered construction plan:
//
//	comp := tsugite.NewComposition("App", "app.Composition")
//	setup := comp.Setup("base")
//	setup.Bind("app.Service").To("*app.Service", tsugite.Dep("app.Config"))
//	setup.Bind("app.Config").Arg("cfg")
//	setup.Root("Service", "app.Service")
//	plans, err := comp.Plan(context.Background())
package tsugite

import (
	"context"
	"fmt"
	"strings"

	core "github.com/mazrean/tsugite/internal/tsugite"
)

// Lifetime controls how instances are shared between injection sites.
type Lifetime = core.Lifetime

const (
	Transient  = core.LifetimeTransient
	PerBlock   = core.LifetimePerBlock
	PerResolve = core.LifetimePerResolve
	Scoped     = core.LifetimeScoped
	Singleton  = core.LifetimeSingleton
)

// Composition accumulates setup fragments and hints. Construction errors
// are deferred and surface from Plan or Check.
type Composition struct {
	name   string
	typ    string
	hints  core.Hints
	shapes *core.ShapeTable
	setups []*SetupBuilder
	errs   []error
}

// NewComposition creates a composition named name. compositionType is the
// self-referential composition type; empty disables composition
// injection.
func NewComposition(name, compositionType string) *Composition {
	return &Composition{
		name:   name,
		typ:    compositionType,
		hints:  core.DefaultHints(),
		shapes: core.NewShapeTable(),
	}
}

// ThreadSafe toggles the thread safety hint.
func (c *Composition) ThreadSafe(v bool) *Composition {
	c.hints.ThreadSafe = v
	return c
}

// AutoBinding toggles automatic binding of unregistered concrete types.
func (c *Composition) AutoBinding(v bool) *Composition {
	c.hints.AutoBinding = v
	return c
}

// OnCannotResolve installs a fallback for unresolvable contracts.
func (c *Composition) OnCannotResolve() *Composition {
	c.hints.OnCannotResolve = true
	return c
}

// MaxIterations caps dependency graph expansion.
func (c *Composition) MaxIterations(n int) *Composition {
	c.hints.MaxIterations = n
	return c
}

// ResolveMethods enables injection into declared method arguments.
// Method-argument sites are ignored otherwise.
func (c *Composition) ResolveMethods() *Composition {
	c.hints.ResolveMethods = true
	return c
}

// Declare registers that impl satisfies the listed contracts. Plans built
// without a Go type oracle rely on these declarations for assignability.
func (c *Composition) Declare(impl string, contracts ...string) *Composition {
	implRef := c.parseType(impl)
	refs := make([]core.TypeRef, 0, len(contracts))
	for _, contract := range contracts {
		refs = append(refs, c.parseType(contract))
	}
	c.shapes.Declare(implRef, refs...)
	return c
}

// Setup adds a named fragment and returns its builder.
func (c *Composition) Setup(name string) *SetupBuilder {
	sb := &SetupBuilder{comp: c, name: name}
	c.setups = append(c.setups, sb)
	return sb
}

// Plan resolves every root and renders the construction plans, one per
// root in declaration order.
func (c *Composition) Plan(ctx context.Context) (string, error) {
	result, err := c.build(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, plan := range result.Plans {
		if i > 0 {
			sb.WriteString("\n")
		}
		if err := core.WritePlan(&sb, plan); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// Check validates the composition without rendering plans.
func (c *Composition) Check(ctx context.Context) error {
	_, err := c.build(ctx)
	return err
}

func (c *Composition) build(ctx context.Context) (*core.CompositionResult, error) {
	if len(c.errs) > 0 {
		return nil, c.errs[0]
	}

	setups := make([]*core.Setup, 0, len(c.setups))
	for _, sb := range c.setups {
		setups = append(setups, sb.setup())
	}

	var compType core.TypeRef
	if c.typ != "" {
		compType = c.parseType(c.typ)
		if len(c.errs) > 0 {
			return nil, c.errs[0]
		}
	}

	meta, err := core.MergeSetups(c.name, compType, setups, c.hints)
	if err != nil {
		return nil, err
	}
	if err := meta.Finalize(c.shapes); err != nil {
		return nil, err
	}

	diags := &core.Diagnostics{}
	reg := core.NewRegistry(meta, c.shapes, diags)
	builder := core.NewGraphBuilder(meta, reg, c.shapes)
	vars := core.NewVarMap(core.NewVarPool())

	result := &core.CompositionResult{Name: c.name, Diagnostics: diags}
	for _, root := range meta.Roots {
		graph, err := builder.Build(ctx, root)
		if err != nil {
			return nil, err
		}
		if err := core.ValidateCycles(graph); err != nil {
			return nil, err
		}
		core.Optimize(graph)
		plan, err := core.NewPlanner(graph, vars).Plan(ctx)
		if err != nil {
			return nil, err
		}
		result.Plans = append(result.Plans, plan)
		result.Graphs = append(result.Graphs, graph)
	}
	reg.ReportUnused()

	return result, nil
}

func (c *Composition) parseType(s string) core.TypeRef {
	ref, err := core.ParseTypeRef(s)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("type %q: %w", s, err))
	}
	return ref
}

// SetupBuilder builds one setup fragment.
type SetupBuilder struct {
	comp      *Composition
	name      string
	global    bool
	dependsOn []string
	bindings  []*BindingBuilder
	roots     []core.Root
	accums    []core.AccumulatorSpec
}

// Global merges this fragment before all non-global fragments.
func (s *SetupBuilder) Global() *SetupBuilder {
	s.global = true
	return s
}

// DependsOn merges the named fragments before this one.
func (s *SetupBuilder) DependsOn(names ...string) *SetupBuilder {
	s.dependsOn = append(s.dependsOn, names...)
	return s
}

// Bind starts a binding for the given contract type.
func (s *SetupBuilder) Bind(contract string) *BindingBuilder {
	bb := &BindingBuilder{setup: s, contracts: []coreContract{{typ: contract}}}
	s.bindings = append(s.bindings, bb)
	return bb
}

// Root exposes a named root resolving the given contract.
func (s *SetupBuilder) Root(name, contract string) *SetupBuilder {
	s.roots = append(s.roots, core.Root{
		Name:     name,
		Contract: core.Contract{Type: s.comp.parseType(contract)},
	})
	return s
}

// TaggedRoot exposes a named root resolving the contract under a tag.
func (s *SetupBuilder) TaggedRoot(name, contract, tag string) *SetupBuilder {
	s.roots = append(s.roots, core.Root{
		Name:     name,
		Contract: core.Contract{Type: s.comp.parseType(contract), Tag: core.ValueTag(tag)},
	})
	return s
}

// Accumulate registers an accumulator type collecting instances
// assignable to elem with one of the given lifetimes.
func (s *SetupBuilder) Accumulate(accType, elem string, lifetimes ...Lifetime) *SetupBuilder {
	s.accums = append(s.accums, core.AccumulatorSpec{
		Type:      s.comp.parseType(accType),
		Elem:      s.comp.parseType(elem),
		Lifetimes: lifetimes,
	})
	return s
}

func (s *SetupBuilder) setup() *core.Setup {
	bindings := make([]*core.Binding, 0, len(s.bindings))
	for _, bb := range s.bindings {
		bindings = append(bindings, bb.binding())
	}
	return &core.Setup{
		Name:         s.name,
		Global:       s.global,
		DependsOn:    s.dependsOn,
		Bindings:     bindings,
		Roots:        s.roots,
		Accumulators: s.accums,
	}
}

type coreContract struct {
	typ string
	tag core.Tag
}

// BindingBuilder builds one binding. Exactly one of To, Factory, or Arg
// must be called.
type BindingBuilder struct {
	setup      *SetupBuilder
	contracts  []coreContract
	lifetime   Lifetime
	impl       *core.ImplSpec
	factory    *core.FactorySpec
	arg        *core.ArgSpec
	disposable bool
}

// As adds an additional contract satisfied by the same binding.
func (b *BindingBuilder) As(contract string) *BindingBuilder {
	b.contracts = append(b.contracts, coreContract{typ: contract})
	return b
}

// Tagged applies a literal tag to the most recently added contract.
func (b *BindingBuilder) Tagged(tag string) *BindingBuilder {
	b.contracts[len(b.contracts)-1].tag = core.ValueTag(tag)
	return b
}

// AnyTag makes the most recent contract match every requested tag.
func (b *BindingBuilder) AnyTag() *BindingBuilder {
	b.contracts[len(b.contracts)-1].tag = core.Tag{Kind: core.TagAny}
	return b
}

// Unique gives the most recent contract a tag no site can request
// explicitly; the binding stays reachable only through aggregations.
func (b *BindingBuilder) Unique() *BindingBuilder {
	b.contracts[len(b.contracts)-1].tag = core.Tag{Kind: core.TagUnique}
	return b
}

// TypeTagged derives the most recent contract's tag from the
// implementation type.
func (b *BindingBuilder) TypeTagged() *BindingBuilder {
	b.contracts[len(b.contracts)-1].tag = core.Tag{Kind: core.TagType}
	return b
}

// Lifetime sets the binding lifetime. The default is transient.
func (b *BindingBuilder) Lifetime(l Lifetime) *BindingBuilder {
	b.lifetime = l
	return b
}

// Disposable marks instances of this binding for disposal registration.
func (b *BindingBuilder) Disposable() *BindingBuilder {
	b.disposable = true
	return b
}

// To binds a constructable implementation type with the given
// constructor dependencies.
func (b *BindingBuilder) To(impl string, deps ...Site) *BindingBuilder {
	spec := &core.ImplSpec{Type: b.setup.comp.parseType(impl)}
	for i, d := range deps {
		spec.Params = append(spec.Params, d.site(b.setup.comp, core.InjectCtorParam, i))
	}
	b.impl = spec
	return b
}

// Member adds a field injection performed after construction.
func (b *BindingBuilder) Member(d Site) *BindingBuilder {
	if b.impl == nil {
		b.setup.comp.errs = append(b.setup.comp.errs, fmt.Errorf("binding %s: Member requires To", b.contracts[0].typ))
		return b
	}
	b.impl.Members = append(b.impl.Members, d.site(b.setup.comp, core.InjectField, len(b.impl.Members)))
	return b
}

// MethodArg adds an injected method argument, resolved only when the
// composition enables ResolveMethods.
func (b *BindingBuilder) MethodArg(d Site) *BindingBuilder {
	if b.impl == nil {
		b.setup.comp.errs = append(b.setup.comp.errs, fmt.Errorf("binding %s: MethodArg requires To", b.contracts[0].typ))
		return b
	}
	b.impl.Members = append(b.impl.Members, d.site(b.setup.comp, core.InjectMethodArg, len(b.impl.Members)))
	return b
}

// Factory binds a user factory producing result. Resolver slots and
// initializers are declared through Resolve and Initialize.
func (b *BindingBuilder) Factory(result string, resolvers ...Site) *BindingBuilder {
	spec := &core.FactorySpec{Result: b.setup.comp.parseType(result)}
	for i, r := range resolvers {
		spec.Resolvers = append(spec.Resolvers, r.site(b.setup.comp, core.InjectResolver, i))
	}
	b.factory = spec
	return b
}

// Initialize adds a post-construction injection performed by the factory.
func (b *BindingBuilder) Initialize(d Site) *BindingBuilder {
	if b.factory == nil {
		b.setup.comp.errs = append(b.setup.comp.errs, fmt.Errorf("binding %s: Initialize requires Factory", b.contracts[0].typ))
		return b
	}
	b.factory.Initializers = append(b.factory.Initializers, d.site(b.setup.comp, core.InjectInitializer, len(b.factory.Initializers)))
	return b
}

// Arg binds the contract to a composition argument with the given name.
func (b *BindingBuilder) Arg(name string) *BindingBuilder {
	b.arg = &core.ArgSpec{Name: name, Type: b.setup.comp.parseType(b.contracts[0].typ)}
	return b
}

func (b *BindingBuilder) binding() *core.Binding {
	contracts := make([]core.Contract, 0, len(b.contracts))
	for _, c := range b.contracts {
		contracts = append(contracts, core.Contract{
			Type: b.setup.comp.parseType(c.typ),
			Tag:  c.tag,
		})
	}
	return &core.Binding{
		Contracts:  contracts,
		Lifetime:   b.lifetime,
		Impl:       b.impl,
		Factory:    b.factory,
		Arg:        b.arg,
		Disposable: b.disposable,
	}
}

// Site declares one dependency of an implementation or factory.
type Site struct {
	name     string
	contract string
	tag      core.Tag
	deferred bool
	optional bool
	def      string
	override bool
}

// Dep declares a dependency on the given contract type.
func Dep(contract string) Site {
	return Site{contract: contract}
}

// Named sets the parameter or member name.
func (s Site) Named(name string) Site {
	s.name = name
	return s
}

// Tagged requests the contract under a literal tag.
func (s Site) Tagged(tag string) Site {
	s.tag = core.ValueTag(tag)
	return s
}

// Deferred marks the dependency as consumed after construction, which
// makes cycles through this site legal.
func (s Site) Deferred() Site {
	s.deferred = true
	return s
}

// Optional falls back to the default expression when the contract
// cannot be resolved.
func (s Site) Optional(def string) Site {
	s.optional = true
	s.def = def
	return s
}

// Override marks a factory resolver slot whose value the factory body
// supplies itself.
func (s Site) Override() Site {
	s.override = true
	return s
}

func (s Site) site(c *Composition, kind core.InjectionKind, ordinal int) core.InjectionSite {
	return core.InjectionSite{
		Kind:     kind,
		Name:     s.name,
		Contract: core.Contract{Type: c.parseType(s.contract), Tag: s.tag},
		Ordinal:  ordinal,
		Deferred: s.deferred,
		Optional: s.optional,
		Default:  s.def,
		Override: s.override,
	}
}
