// Package tsugite resolves declarative binding metadata into per-root
// dependency graphs and ordered construction plans.
package tsugite

import (
	"fmt"
	"strings"
)

// TypeKind discriminates the structural shape of a TypeRef.
type TypeKind string

const (
	// KindNamed is a (possibly generic) named type, e.g. pkg.Service.
	KindNamed TypeKind = "named"
	// KindPointer is a pointer to the element type.
	KindPointer TypeKind = "pointer"
	// KindSlice is a slice of the element type; requesting one aggregates
	// every matching binding of the element contract.
	KindSlice TypeKind = "slice"
	// KindArray is a fixed-length array of the element type.
	KindArray TypeKind = "array"
	// KindSeq is an iter.Seq-shaped enumerable of the element type.
	KindSeq TypeKind = "seq"
	// KindChan is a receive channel of the element type (async enumerable).
	KindChan TypeKind = "chan"
	// KindFunc is a nullary function returning the element type (lazy).
	KindFunc TypeKind = "func"
)

// TypeRef is a structural, language-neutral type symbol. Named types carry
// a fully qualified name and optional type arguments; the remaining kinds
// wrap an element ref.
type TypeRef struct {
	Kind TypeKind
	Name string
	Args []TypeRef
	Elem *TypeRef
	Len  int
}

// Named returns a named TypeRef for a fully qualified symbol.
func Named(name string, args ...TypeRef) TypeRef {
	return TypeRef{Kind: KindNamed, Name: name, Args: args}
}

// Key returns the canonical string form used for map keys and diagnostics.
func (t TypeRef) Key() string {
	switch t.Kind {
	case KindNamed, "":
		if len(t.Args) == 0 {
			return t.Name
		}
		args := make([]string, 0, len(t.Args))
		for _, a := range t.Args {
			args = append(args, a.Key())
		}
		return t.Name + "[" + strings.Join(args, ",") + "]"
	case KindPointer:
		return "*" + t.Elem.Key()
	case KindSlice:
		return "[]" + t.Elem.Key()
	case KindArray:
		return fmt.Sprintf("[%d]%s", t.Len, t.Elem.Key())
	case KindSeq:
		return "seq[" + t.Elem.Key() + "]"
	case KindChan:
		return "chan " + t.Elem.Key()
	case KindFunc:
		return "func() " + t.Elem.Key()
	default:
		return string(t.Kind) + ":" + t.Name
	}
}

func (t TypeRef) Equal(other TypeRef) bool {
	return t.Key() == other.Key()
}

// IsZero reports whether t is the absent type.
func (t TypeRef) IsZero() bool {
	return t.Name == "" && t.Elem == nil
}

// TagKind discriminates contract tags.
type TagKind string

const (
	TagNone TagKind = ""
	// TagValue is a literal tag value.
	TagValue TagKind = "value"
	// TagAny on a binding matches every contract tag, including the default.
	TagAny TagKind = "any"
	// TagUnique gives the binding a synthetic tag that never collides with
	// user tags; such bindings are only reachable through aggregation.
	TagUnique TagKind = "unique"
	// TagType derives the tag from the binding's implementation type symbol.
	TagType TagKind = "type"
)

// Tag qualifies a contract. The zero value is the default (absent) tag.
type Tag struct {
	Kind  TagKind
	Value string
}

func ValueTag(v string) Tag { return Tag{Kind: TagValue, Value: v} }

// TypeTag is a contract-side tag carrying a type identity.
func TypeTag(t TypeRef) Tag { return Tag{Kind: TagValue, Value: "type:" + t.Key()} }

func (t Tag) IsDefault() bool { return t.Kind == TagNone }

func (t Tag) Key() string {
	if t.Kind == TagNone {
		return ""
	}
	return string(t.Kind) + ":" + t.Value
}

// Matches reports whether a binding declared with tag t satisfies a lookup
// for the contract tag want. Unique tags only match themselves, which makes
// them unreachable from explicit lookups while still eligible for
// aggregation.
func (t Tag) Matches(want Tag) bool {
	switch t.Kind {
	case TagAny:
		return true
	case TagNone:
		return want.Kind == TagNone
	default:
		return t.Kind == want.Kind && t.Value == want.Value
	}
}

// Contract is the (type, tag) pair a consumer requests.
type Contract struct {
	Type TypeRef
	Tag  Tag
}

func (c Contract) Key() string {
	if c.Tag.IsDefault() {
		return c.Type.Key()
	}
	return c.Type.Key() + "#" + c.Tag.Key()
}

func (c Contract) String() string { return c.Key() }

// Lifetime is the sharing scope of a constructed instance.
type Lifetime string

const (
	// LifetimeTransient creates a fresh instance at every injection site.
	LifetimeTransient Lifetime = "transient"
	// LifetimePerBlock shares one instance within a single block or local
	// function, never across them.
	LifetimePerBlock Lifetime = "perBlock"
	// LifetimePerResolve shares one instance within one root resolution.
	LifetimePerResolve Lifetime = "perResolve"
	// LifetimeScoped shares one instance per scope object.
	LifetimeScoped Lifetime = "scoped"
	// LifetimeSingleton shares one instance per composition.
	LifetimeSingleton Lifetime = "singleton"
	// LifetimeArg marks composition arguments: always available, never
	// constructed.
	LifetimeArg Lifetime = "arg"
)

// Persistent reports whether variables of this lifetime survive nested
// scope exits.
func (l Lifetime) Persistent() bool {
	switch l {
	case LifetimeSingleton, LifetimeScoped, LifetimePerResolve, LifetimeArg:
		return true
	default:
		return false
	}
}

// Shared reports whether one variable serves every injection site within
// the lifetime's scope.
func (l Lifetime) Shared() bool {
	return l != LifetimeTransient && l != ""
}

// BindingID is the ordinal identity of a binding. Later-registered bindings
// win precedence for the same contract.
type BindingID int

// InjectionKind discriminates injection sites.
type InjectionKind string

const (
	InjectCtorParam InjectionKind = "param"
	InjectField     InjectionKind = "field"
	InjectSetter    InjectionKind = "setter"
	// InjectMethodArg is an injected method argument; resolved only when
	// the resolveMethods hint is on, stripped at finalization otherwise.
	InjectMethodArg InjectionKind = "methodArg"
	// InjectResolver is an explicit resolve slot inside a factory body.
	InjectResolver InjectionKind = "resolver"
	// InjectInitializer is a post-construction member injection declared by
	// a factory.
	InjectInitializer InjectionKind = "initializer"
	// InjectElement is a synthetic slot of an aggregation or lazy
	// construct node.
	InjectElement InjectionKind = "element"
)

// InjectionSite describes one required injection of a consumer.
type InjectionSite struct {
	Kind     InjectionKind
	Name     string
	Contract Contract
	Ordinal  int
	// Deferred marks sites reached only through an indirection invoked
	// later than construction. Cycles are legal only through such sites.
	Deferred bool
	// Optional sites that cannot be resolved fall back to Default instead
	// of failing.
	Optional bool
	Default  string
	// Override marks factory resolver slots whose value is supplied by the
	// factory body itself.
	Override bool
}

// ImplSpec describes a constructable implementation type.
type ImplSpec struct {
	Type    TypeRef
	Params  []InjectionSite
	Members []InjectionSite
}

// FactorySpec describes a user factory with explicit resolve slots and
// post-construction initializers, in declared order.
type FactorySpec struct {
	Result       TypeRef
	Resolvers    []InjectionSite
	Initializers []InjectionSite
}

// UsesOverrides reports whether any resolver slot is supplied by the
// factory body.
func (f *FactorySpec) UsesOverrides() bool {
	for _, r := range f.Resolvers {
		if r.Override {
			return true
		}
	}
	return false
}

// ArgSpec describes a composition argument binding.
type ArgSpec struct {
	Name string
	Type TypeRef
}

// Location points back at the declaring setup for diagnostics.
type Location struct {
	Setup string
	Index int
}

func (l Location) String() string { return fmt.Sprintf("%s[%d]", l.Setup, l.Index) }

// Binding associates contracts with exactly one construction kind plus a
// lifetime and the ordinal id used for precedence.
type Binding struct {
	ID        BindingID
	Contracts []Contract
	Lifetime  Lifetime
	Impl      *ImplSpec
	Factory   *FactorySpec
	Arg       *ArgSpec
	Location  Location
	// Origin is the user binding this one precedes from: itself for user
	// bindings, the generic marker binding for instantiated ones, and the
	// requesting site's binding is never recorded for auto-bindings.
	Origin BindingID
	// Disposable marks bindings whose instances implement the disposal
	// contract; singleton/scoped instances get RegisterDisposable markers.
	Disposable bool
}

// Kind returns a short identifier of the construction kind for diagnostics.
func (b *Binding) Kind() string {
	switch {
	case b.Impl != nil:
		return "implementation"
	case b.Factory != nil:
		return "factory"
	case b.Arg != nil:
		return "arg"
	default:
		return "invalid"
	}
}

// ImplType returns the concrete type a binding produces.
func (b *Binding) ImplType() TypeRef {
	switch {
	case b.Impl != nil:
		return b.Impl.Type
	case b.Factory != nil:
		return b.Factory.Result
	case b.Arg != nil:
		return b.Arg.Type
	default:
		return TypeRef{}
	}
}

// Sites returns every injection site of the binding in declared order.
func (b *Binding) Sites() []InjectionSite {
	switch {
	case b.Impl != nil:
		sites := make([]InjectionSite, 0, len(b.Impl.Params)+len(b.Impl.Members))
		sites = append(sites, b.Impl.Params...)
		sites = append(sites, b.Impl.Members...)
		return sites
	case b.Factory != nil:
		sites := make([]InjectionSite, 0, len(b.Factory.Resolvers)+len(b.Factory.Initializers))
		sites = append(sites, b.Factory.Resolvers...)
		sites = append(sites, b.Factory.Initializers...)
		return sites
	default:
		return nil
	}
}

// Root is a top-level contract exposed by the generated composition.
type Root struct {
	Name     string
	Contract Contract
}

// AccumulatorSpec configures an accumulator type collecting instances
// assignable to Elem with one of the listed lifetimes.
type AccumulatorSpec struct {
	Type      TypeRef
	Elem      TypeRef
	Lifetimes []Lifetime
}

const defaultMaxIterations = 1024

// Hints are composition-level settings.
type Hints struct {
	ThreadSafe      bool
	AutoBinding     bool
	OnCannotResolve bool
	ResolveMethods  bool
	MaxIterations   int
}

// DefaultHints mirrors the defaults of the declarative API.
func DefaultHints() Hints {
	return Hints{
		ThreadSafe:    true,
		AutoBinding:   true,
		MaxIterations: defaultMaxIterations,
	}
}

// MetaData is one normalized composition document: the merged, validated
// binding metadata the resolver consumes. Read-only after Finalize.
type MetaData struct {
	Name         string
	Composition  TypeRef
	Bindings     []*Binding
	Roots        []Root
	Accumulators []AccumulatorSpec
	Hints        Hints
	// Markers are the generic marker type names recognized during
	// generic-binding instantiation.
	Markers map[string]bool
}

// Finalize validates binding shapes and normalizes tags. It must succeed
// before any graph work starts.
func (m *MetaData) Finalize(oracle TypeOracle) error {
	if m.Hints.MaxIterations <= 0 {
		m.Hints.MaxIterations = defaultMaxIterations
	}
	if m.Markers == nil {
		m.Markers = map[string]bool{"T": true, "T1": true, "T2": true, "T3": true}
	}

	for i, b := range m.Bindings {
		b.ID = BindingID(i)
		b.Origin = b.ID

		kinds := 0
		if b.Impl != nil {
			kinds++
		}
		if b.Factory != nil {
			kinds++
		}
		if b.Arg != nil {
			kinds++
		}
		if kinds != 1 {
			return &ShapeError{
				Binding:  b.ID,
				Location: b.Location,
				Reason:   fmt.Sprintf("binding must have exactly one construction kind, got %d", kinds),
			}
		}

		if b.Impl != nil && !m.Hints.ResolveMethods {
			b.Impl.Members = dropMethodArgs(b.Impl.Members)
		}

		if b.Arg != nil {
			b.Lifetime = LifetimeArg
			if len(b.Contracts) == 0 {
				b.Contracts = []Contract{{Type: b.Arg.Type}}
			}
		}
		if b.Lifetime == "" {
			b.Lifetime = LifetimeTransient
		}

		if len(b.Contracts) == 0 {
			return &ShapeError{
				Binding:  b.ID,
				Location: b.Location,
				Reason:   "binding declares no contracts",
			}
		}

		for j := range b.Contracts {
			c := &b.Contracts[j]
			switch c.Tag.Kind {
			case TagType:
				// Normalize to the implementation's type identity so
				// contract-side type tags compare by value.
				c.Tag = Tag{Kind: TagValue, Value: "type:" + b.ImplType().Key()}
			case TagUnique:
				c.Tag = Tag{Kind: TagUnique, Value: fmt.Sprintf("u%d", b.ID)}
			}

			if b.Arg == nil && !m.isMarkerType(c.Type) && !oracleAssignable(oracle, b.ImplType(), c.Type) {
				return &ShapeError{
					Binding:  b.ID,
					Location: b.Location,
					Reason:   fmt.Sprintf("%s does not satisfy contract %s", b.ImplType().Key(), c.Type.Key()),
				}
			}
		}
	}

	return nil
}

// dropMethodArgs filters method-argument sites out of a member list,
// leaving the input slice untouched.
func dropMethodArgs(members []InjectionSite) []InjectionSite {
	kept := make([]InjectionSite, 0, len(members))
	for _, s := range members {
		if s.Kind != InjectMethodArg {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(members) {
		return members
	}
	return kept
}

// isMarkerType reports whether t mentions a generic marker anywhere; such
// contracts are matched by instantiation, not by the oracle.
func (m *MetaData) isMarkerType(t TypeRef) bool {
	if t.Kind == KindNamed || t.Kind == "" {
		if m.Markers[t.Name] {
			return true
		}
		for _, a := range t.Args {
			if m.isMarkerType(a) {
				return true
			}
		}
		return false
	}
	if t.Elem != nil {
		return m.isMarkerType(*t.Elem)
	}
	return false
}

func oracleAssignable(oracle TypeOracle, impl, contract TypeRef) bool {
	if impl.Equal(contract) {
		return true
	}
	if oracle == nil {
		return true
	}
	return oracle.AssignableTo(impl, contract)
}
