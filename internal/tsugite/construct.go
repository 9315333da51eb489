package tsugite

// ConstructKind is the closed set of synthetic node shapes. Matched
// exhaustively wherever construct nodes branch; adding an aggregation
// kind means adding one variant here.
type ConstructKind string

const (
	// ConstructEnumerable aggregates every matching binding of the element
	// contract behind an iter.Seq-shaped value.
	ConstructEnumerable ConstructKind = "enumerable"
	// ConstructAsyncEnumerable aggregates behind a receive channel.
	ConstructAsyncEnumerable ConstructKind = "asyncEnumerable"
	// ConstructArray aggregates into a slice.
	ConstructArray ConstructKind = "array"
	// ConstructSpan aggregates into a fixed-length array.
	ConstructSpan ConstructKind = "span"
	// ConstructLazy defers construction of the element behind a nullary
	// function; its single in-edge is a deferred injection site.
	ConstructLazy ConstructKind = "lazy"
	// ConstructComposition is the composition self-reference.
	ConstructComposition ConstructKind = "composition"
	// ConstructOnCannotResolve defers an unresolved contract to the
	// configured runtime fallback hook.
	ConstructOnCannotResolve ConstructKind = "onCannotResolve"
	// ConstructExplicitDefaultValue materializes an optional injection
	// site's declared default.
	ConstructExplicitDefaultValue ConstructKind = "explicitDefault"
	// ConstructAccumulator collects instances assignable to the
	// accumulator's element type.
	ConstructAccumulator ConstructKind = "accumulator"
	// ConstructOverride wraps a value the factory body supplies itself.
	ConstructOverride ConstructKind = "override"
)

// Construct describes a synthetic node not backed by a user binding.
type Construct struct {
	Kind ConstructKind
	// Type is the construct's own type as requested.
	Type TypeRef
	// Elem is the element contract for aggregation and lazy kinds.
	Elem Contract
	// Default is the literal for explicit-default constructs.
	Default string
	// Len is the required length for span constructs.
	Len int
}

// aggregates reports whether the construct's in-edges are every matching
// binding of the element rather than a single dependency.
func (c *Construct) aggregates() bool {
	switch c.Kind {
	case ConstructEnumerable, ConstructAsyncEnumerable, ConstructArray, ConstructSpan, ConstructAccumulator:
		return true
	default:
		return false
	}
}

// leaf reports whether the construct has no in-edges at all.
func (c *Construct) leaf() bool {
	switch c.Kind {
	case ConstructComposition, ConstructOnCannotResolve, ConstructExplicitDefaultValue, ConstructOverride:
		return true
	default:
		return false
	}
}

// constructShape recognizes contract types that synthesize a construct
// node instead of resolving to a single binding. The accumulator table is
// consulted first so a named accumulator type wins over plain resolution.
func constructShape(meta *MetaData, c Contract) (*Construct, bool) {
	for _, acc := range meta.Accumulators {
		if c.Type.Equal(acc.Type) {
			return &Construct{
				Kind: ConstructAccumulator,
				Type: c.Type,
				Elem: Contract{Type: acc.Elem},
			}, true
		}
	}

	if !meta.Composition.IsZero() && c.Type.Equal(meta.Composition) {
		return &Construct{Kind: ConstructComposition, Type: c.Type}, true
	}

	switch c.Type.Kind {
	case KindSlice:
		return &Construct{
			Kind: ConstructArray,
			Type: c.Type,
			Elem: Contract{Type: *c.Type.Elem, Tag: c.Tag},
		}, true
	case KindArray:
		return &Construct{
			Kind: ConstructSpan,
			Type: c.Type,
			Elem: Contract{Type: *c.Type.Elem, Tag: c.Tag},
			Len:  c.Type.Len,
		}, true
	case KindSeq:
		return &Construct{
			Kind: ConstructEnumerable,
			Type: c.Type,
			Elem: Contract{Type: *c.Type.Elem, Tag: c.Tag},
		}, true
	case KindChan:
		return &Construct{
			Kind: ConstructAsyncEnumerable,
			Type: c.Type,
			Elem: Contract{Type: *c.Type.Elem, Tag: c.Tag},
		}, true
	case KindFunc:
		return &Construct{
			Kind: ConstructLazy,
			Type: c.Type,
			Elem: Contract{Type: *c.Type.Elem, Tag: c.Tag},
		}, true
	default:
		return nil, false
	}
}
