package tsugite

// TypeOracle answers type-compatibility questions the resolver cannot
// decide from metadata alone. Implementations are language-specific; the
// engine stays agnostic of where the answers come from.
type TypeOracle interface {
	// AssignableTo reports whether impl implements, derives from or
	// converts to contract.
	AssignableTo(impl, contract TypeRef) bool
	// ConcreteShape returns the accessible constructor shape of a concrete
	// type, for auto-binding. ok is false when the type is not
	// constructable.
	ConcreteShape(t TypeRef) (*ImplSpec, bool)
}

// ShapeTable is a metadata-declared oracle: assignability edges and
// constructor shapes supplied by the manifest front-end. It lets the
// engine run without loading host packages.
type ShapeTable struct {
	assignable map[string]map[string]bool
	shapes     map[string]*ImplSpec
}

func NewShapeTable() *ShapeTable {
	return &ShapeTable{
		assignable: make(map[string]map[string]bool),
		shapes:     make(map[string]*ImplSpec),
	}
}

// Declare records that impl satisfies each of the given contracts.
func (s *ShapeTable) Declare(impl TypeRef, contracts ...TypeRef) {
	key := impl.Key()
	m, ok := s.assignable[key]
	if !ok {
		m = make(map[string]bool)
		s.assignable[key] = m
	}
	for _, c := range contracts {
		m[c.Key()] = true
	}
}

// DeclareShape records the constructor shape of a concrete type.
func (s *ShapeTable) DeclareShape(spec *ImplSpec) {
	s.shapes[spec.Type.Key()] = spec
}

func (s *ShapeTable) AssignableTo(impl, contract TypeRef) bool {
	if impl.Equal(contract) {
		return true
	}
	// A pointer implementation satisfies its element's contracts.
	if impl.Kind == KindPointer && s.AssignableTo(*impl.Elem, contract) {
		return true
	}
	return s.assignable[impl.Key()][contract.Key()]
}

func (s *ShapeTable) ConcreteShape(t TypeRef) (*ImplSpec, bool) {
	key := t.Key()
	if t.Kind == KindPointer {
		key = t.Elem.Key()
	}
	spec, ok := s.shapes[key]
	return spec, ok
}
