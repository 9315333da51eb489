package tsugite

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk form of one composition's normalized binding
// metadata: setup fragments, roots, hints and the declared type shapes
// that feed the metadata-backed oracle.
type Manifest struct {
	Composition     string          `yaml:"composition"`
	CompositionType string          `yaml:"compositionType,omitempty"`
	Hints           *manifestHints  `yaml:"hints,omitempty"`
	Types           []manifestShape `yaml:"types,omitempty"`
	Setups          []manifestSetup `yaml:"setups"`
}

type manifestHints struct {
	ThreadSafe      *bool `yaml:"threadSafe,omitempty"`
	AutoBinding     *bool `yaml:"autoBinding,omitempty"`
	OnCannotResolve bool  `yaml:"onCannotResolve,omitempty"`
	ResolveMethods  bool  `yaml:"resolveMethods,omitempty"`
	MaxIterations   int   `yaml:"maxIterations,omitempty"`
}

type manifestShape struct {
	Type         string         `yaml:"type"`
	AssignableTo []string       `yaml:"assignableTo,omitempty"`
	Params       []manifestSite `yaml:"params,omitempty"`
	Fields       []manifestSite `yaml:"fields,omitempty"`
	Setters      []manifestSite `yaml:"setters,omitempty"`
	MethodArgs   []manifestSite `yaml:"methodArgs,omitempty"`
}

type manifestSetup struct {
	Name         string                `yaml:"name"`
	Global       bool                  `yaml:"global,omitempty"`
	DependsOn    []string              `yaml:"dependsOn,omitempty"`
	Bindings     []manifestBinding     `yaml:"bindings,omitempty"`
	Roots        []manifestRoot        `yaml:"roots,omitempty"`
	Accumulators []manifestAccumulator `yaml:"accumulators,omitempty"`
}

type manifestBinding struct {
	Contracts  []manifestContract `yaml:"contracts,omitempty"`
	Lifetime   string             `yaml:"lifetime,omitempty"`
	Disposable bool               `yaml:"disposable,omitempty"`
	Impl       *manifestImpl      `yaml:"impl,omitempty"`
	Factory    *manifestFactory   `yaml:"factory,omitempty"`
	Arg        *manifestArg       `yaml:"arg,omitempty"`
}

type manifestContract struct {
	Type string      `yaml:"type"`
	Tag  manifestTag `yaml:"tag,omitempty"`
}

// manifestTag decodes either a scalar literal tag or one of the wildcard
// markers: {any: true}, {unique: true}, {type: pkg.X}.
type manifestTag struct {
	tag Tag
}

func (t *manifestTag) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			t.tag = Tag{}
			return nil
		}
		t.tag = ValueTag(node.Value)
		return nil
	case yaml.MappingNode:
		var m struct {
			Any    bool   `yaml:"any"`
			Unique bool   `yaml:"unique"`
			Type   string `yaml:"type"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		switch {
		case m.Any:
			t.tag = Tag{Kind: TagAny}
		case m.Unique:
			t.tag = Tag{Kind: TagUnique}
		case m.Type != "":
			ref, err := ParseTypeRef(m.Type)
			if err != nil {
				return err
			}
			t.tag = TypeTag(ref)
		}
		return nil
	default:
		return fmt.Errorf("tag must be a scalar or mapping, got %v", node.Kind)
	}
}

type manifestImpl struct {
	Type       string         `yaml:"type"`
	Params     []manifestSite `yaml:"params,omitempty"`
	Fields     []manifestSite `yaml:"fields,omitempty"`
	Setters    []manifestSite `yaml:"setters,omitempty"`
	MethodArgs []manifestSite `yaml:"methodArgs,omitempty"`
}

type manifestFactory struct {
	Result       string         `yaml:"result"`
	Resolvers    []manifestSite `yaml:"resolvers,omitempty"`
	Initializers []manifestSite `yaml:"initializers,omitempty"`
}

type manifestArg struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type manifestSite struct {
	Name     string      `yaml:"name,omitempty"`
	Type     string      `yaml:"type"`
	Tag      manifestTag `yaml:"tag,omitempty"`
	Deferred bool        `yaml:"deferred,omitempty"`
	Optional bool        `yaml:"optional,omitempty"`
	Default  string      `yaml:"default,omitempty"`
	Override bool        `yaml:"override,omitempty"`
}

type manifestRoot struct {
	Name string      `yaml:"name"`
	Type string      `yaml:"type"`
	Tag  manifestTag `yaml:"tag,omitempty"`
}

type manifestAccumulator struct {
	Type      string   `yaml:"type"`
	Elem      string   `yaml:"elem"`
	Lifetimes []string `yaml:"lifetimes,omitempty"`
}

// LoadManifest reads and decodes one manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if m.Composition == "" {
		return nil, fmt.Errorf("manifest %s: composition name is required", path)
	}
	return &m, nil
}

// Build converts the manifest into the engine's inputs: the setup
// fragments, hints and the declared-shape oracle.
func (m *Manifest) Build() (name string, composition TypeRef, setups []*Setup, hints Hints, oracle *ShapeTable, err error) {
	name = m.Composition
	hints = DefaultHints()
	if m.Hints != nil {
		if m.Hints.ThreadSafe != nil {
			hints.ThreadSafe = *m.Hints.ThreadSafe
		}
		if m.Hints.AutoBinding != nil {
			hints.AutoBinding = *m.Hints.AutoBinding
		}
		hints.OnCannotResolve = m.Hints.OnCannotResolve
		hints.ResolveMethods = m.Hints.ResolveMethods
		if m.Hints.MaxIterations > 0 {
			hints.MaxIterations = m.Hints.MaxIterations
		}
	}

	if m.CompositionType != "" {
		composition, err = ParseTypeRef(m.CompositionType)
		if err != nil {
			return "", TypeRef{}, nil, hints, nil, err
		}
	}

	oracle = NewShapeTable()
	for _, shape := range m.Types {
		t, err := ParseTypeRef(shape.Type)
		if err != nil {
			return "", TypeRef{}, nil, hints, nil, err
		}
		contracts := make([]TypeRef, 0, len(shape.AssignableTo))
		for _, c := range shape.AssignableTo {
			ref, err := ParseTypeRef(c)
			if err != nil {
				return "", TypeRef{}, nil, hints, nil, err
			}
			contracts = append(contracts, ref)
		}
		oracle.Declare(t, contracts...)

		spec, err := buildImplSpec(shape.Type, shape.Params, shape.Fields, shape.Setters, shape.MethodArgs)
		if err != nil {
			return "", TypeRef{}, nil, hints, nil, err
		}
		oracle.DeclareShape(spec)
	}

	for _, s := range m.Setups {
		setup, err := buildSetup(s)
		if err != nil {
			return "", TypeRef{}, nil, hints, nil, fmt.Errorf("setup %s: %w", s.Name, err)
		}
		setups = append(setups, setup)
	}

	return name, composition, setups, hints, oracle, nil
}

func buildSetup(s manifestSetup) (*Setup, error) {
	setup := &Setup{
		Name:      s.Name,
		Global:    s.Global,
		DependsOn: s.DependsOn,
	}

	for i, mb := range s.Bindings {
		b, err := buildBinding(mb)
		if err != nil {
			return nil, fmt.Errorf("binding %d: %w", i, err)
		}
		setup.Bindings = append(setup.Bindings, b)
	}

	for _, r := range s.Roots {
		t, err := ParseTypeRef(r.Type)
		if err != nil {
			return nil, err
		}
		setup.Roots = append(setup.Roots, Root{
			Name:     r.Name,
			Contract: Contract{Type: t, Tag: r.Tag.tag},
		})
	}

	for _, a := range s.Accumulators {
		t, err := ParseTypeRef(a.Type)
		if err != nil {
			return nil, err
		}
		elem, err := ParseTypeRef(a.Elem)
		if err != nil {
			return nil, err
		}
		spec := AccumulatorSpec{Type: t, Elem: elem}
		for _, l := range a.Lifetimes {
			spec.Lifetimes = append(spec.Lifetimes, Lifetime(l))
		}
		setup.Accumulators = append(setup.Accumulators, spec)
	}

	return setup, nil
}

func buildBinding(mb manifestBinding) (*Binding, error) {
	b := &Binding{
		Lifetime:   Lifetime(mb.Lifetime),
		Disposable: mb.Disposable,
	}

	for _, c := range mb.Contracts {
		t, err := ParseTypeRef(c.Type)
		if err != nil {
			return nil, err
		}
		b.Contracts = append(b.Contracts, Contract{Type: t, Tag: c.Tag.tag})
	}

	switch {
	case mb.Impl != nil:
		impl, err := buildImplSpec(mb.Impl.Type, mb.Impl.Params, mb.Impl.Fields, mb.Impl.Setters, mb.Impl.MethodArgs)
		if err != nil {
			return nil, err
		}
		b.Impl = impl
	case mb.Factory != nil:
		t, err := ParseTypeRef(mb.Factory.Result)
		if err != nil {
			return nil, err
		}
		fac := &FactorySpec{Result: t}
		fac.Resolvers, err = buildSites(mb.Factory.Resolvers, InjectResolver)
		if err != nil {
			return nil, err
		}
		fac.Initializers, err = buildSites(mb.Factory.Initializers, InjectInitializer)
		if err != nil {
			return nil, err
		}
		b.Factory = fac
	case mb.Arg != nil:
		t, err := ParseTypeRef(mb.Arg.Type)
		if err != nil {
			return nil, err
		}
		b.Arg = &ArgSpec{Name: mb.Arg.Name, Type: t}
	}

	return b, nil
}

// buildImplSpec assembles an implementation shape: constructor params,
// then members in field, setter, method-argument order.
func buildImplSpec(typeName string, params, fields, setters, methodArgs []manifestSite) (*ImplSpec, error) {
	t, err := ParseTypeRef(typeName)
	if err != nil {
		return nil, err
	}

	spec := &ImplSpec{Type: t}
	spec.Params, err = buildSites(params, InjectCtorParam)
	if err != nil {
		return nil, err
	}

	fieldSites, err := buildSites(fields, InjectField)
	if err != nil {
		return nil, err
	}
	setterSites, err := buildSites(setters, InjectSetter)
	if err != nil {
		return nil, err
	}
	methodSites, err := buildSites(methodArgs, InjectMethodArg)
	if err != nil {
		return nil, err
	}
	spec.Members = append(append(fieldSites, setterSites...), methodSites...)
	return spec, nil
}

func buildSites(sites []manifestSite, kind InjectionKind) ([]InjectionSite, error) {
	out := make([]InjectionSite, 0, len(sites))
	for i, s := range sites {
		t, err := ParseTypeRef(s.Type)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", s.Name, err)
		}
		out = append(out, InjectionSite{
			Kind:     kind,
			Name:     s.Name,
			Contract: Contract{Type: t, Tag: s.Tag.tag},
			Ordinal:  i,
			Deferred: s.Deferred,
			Optional: s.Optional,
			Default:  s.Default,
			Override: s.Override,
		})
	}
	return out, nil
}

// ParseTypeRef parses the manifest's compact type syntax: named types
// with optional [args], and the shape prefixes *T, []T, [N]T, seq[T],
// chan T, func() T.
func ParseTypeRef(s string) (TypeRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeRef{}, fmt.Errorf("empty type")
	}

	switch {
	case strings.HasPrefix(s, "*"):
		elem, err := ParseTypeRef(s[1:])
		if err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Kind: KindPointer, Elem: &elem}, nil

	case strings.HasPrefix(s, "[]"):
		elem, err := ParseTypeRef(s[2:])
		if err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Kind: KindSlice, Elem: &elem}, nil

	case strings.HasPrefix(s, "["):
		end := strings.Index(s, "]")
		if end < 0 {
			return TypeRef{}, fmt.Errorf("malformed array type %q", s)
		}
		n, err := strconv.Atoi(s[1:end])
		if err != nil {
			return TypeRef{}, fmt.Errorf("malformed array length in %q", s)
		}
		elem, err := ParseTypeRef(s[end+1:])
		if err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Kind: KindArray, Len: n, Elem: &elem}, nil

	case strings.HasPrefix(s, "seq[") && strings.HasSuffix(s, "]"):
		elem, err := ParseTypeRef(s[4 : len(s)-1])
		if err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Kind: KindSeq, Elem: &elem}, nil

	case strings.HasPrefix(s, "chan "):
		elem, err := ParseTypeRef(s[5:])
		if err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Kind: KindChan, Elem: &elem}, nil

	case strings.HasPrefix(s, "func() "):
		elem, err := ParseTypeRef(s[7:])
		if err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Kind: KindFunc, Elem: &elem}, nil
	}

	if open := strings.Index(s, "["); open >= 0 {
		if !strings.HasSuffix(s, "]") {
			return TypeRef{}, fmt.Errorf("malformed generic type %q", s)
		}
		name := s[:open]
		var args []TypeRef
		for _, part := range splitTopLevel(s[open+1 : len(s)-1]) {
			arg, err := ParseTypeRef(part)
			if err != nil {
				return TypeRef{}, err
			}
			args = append(args, arg)
		}
		return TypeRef{Kind: KindNamed, Name: name, Args: args}, nil
	}

	return TypeRef{Kind: KindNamed, Name: s}, nil
}

// splitTopLevel splits on commas not nested inside brackets.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if strings.TrimSpace(s[start:]) != "" || len(parts) > 0 {
		parts = append(parts, s[start:])
	}
	return parts
}
