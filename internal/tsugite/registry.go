package tsugite

import (
	"log/slog"
	"sort"
)

// Registry indexes bindings by contract type and answers lookups with the
// matching rules: exact type and tag first, then Any-tagged bindings, then
// generic-marker instantiation, then auto-binding via the oracle. Within
// one rule the highest ordinal (most recently declared) wins.
type Registry struct {
	meta    *MetaData
	oracle  TypeOracle
	diags   *Diagnostics
	byType  map[string][]*Binding
	generic []*Binding

	instantiated map[string]*Binding
	auto         map[string]*Binding
	nextID       BindingID

	used       map[BindingID]bool
	overridden map[BindingID]bool
}

func NewRegistry(meta *MetaData, oracle TypeOracle, diags *Diagnostics) *Registry {
	r := &Registry{
		meta:         meta,
		oracle:       oracle,
		diags:        diags,
		byType:       make(map[string][]*Binding),
		instantiated: make(map[string]*Binding),
		auto:         make(map[string]*Binding),
		nextID:       BindingID(len(meta.Bindings)),
		used:         make(map[BindingID]bool),
		overridden:   make(map[BindingID]bool),
	}

	for _, b := range meta.Bindings {
		isGeneric := false
		for _, c := range b.Contracts {
			if meta.isMarkerType(c.Type) {
				isGeneric = true
				continue
			}
			r.byType[c.Type.Key()] = append(r.byType[c.Type.Key()], b)
		}
		if isGeneric {
			r.generic = append(r.generic, b)
		}
	}

	return r
}

// Lookup resolves a contract to the winning binding. Losing candidates of
// the same rule are reported as overridden, once each.
func (r *Registry) Lookup(c Contract) (*Binding, bool) {
	// (a) exact type, exact tag.
	if b, ok := r.pickWinner(r.exactMatches(c), c); ok {
		return b, true
	}

	// (b) exact type, Any-tagged binding.
	if b, ok := r.pickWinner(r.anyTagMatches(c), c); ok {
		return b, true
	}

	// (c) generic-marker binding instantiated against the request.
	if b, ok := r.instantiateGeneric(c); ok {
		return b, true
	}

	// (d) auto-binding from a concrete constructable type. Only default-
	// tagged requests qualify; a tagged miss must not mint a binding.
	if r.meta.Hints.AutoBinding && c.Tag.IsDefault() {
		if b, ok := r.autoBind(c.Type); ok {
			return b, true
		}
	}

	return nil, false
}

// Candidates returns every binding matching the contract type regardless
// of tag, in declaration order. Aggregation content order is declaration
// order; the injection comparer never reorders it.
func (r *Registry) Candidates(elem TypeRef) []*Binding {
	candidates := append([]*Binding(nil), r.byType[elem.Key()]...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ID < candidates[j].ID
	})
	return candidates
}

// MarkUsed records that a binding was materialized in some root's graph.
func (r *Registry) MarkUsed(b *Binding) {
	r.used[b.ID] = true
	if b.Origin != b.ID {
		r.used[b.Origin] = true
	}
}

// ReportUnused emits UnusedBinding warnings for user bindings no root
// reached. Called once per composition after all roots are built.
func (r *Registry) ReportUnused() {
	for _, b := range r.meta.Bindings {
		if r.used[b.ID] || r.overridden[b.ID] {
			continue
		}
		r.diags.Report(Diagnostic{
			Code:     CodeUnusedBinding,
			Severity: SeverityWarning,
			Bindings: []BindingID{b.ID},
			Location: b.Location,
		})
	}
}

func (r *Registry) exactMatches(c Contract) []*Binding {
	var matches []*Binding
	for _, b := range r.byType[c.Type.Key()] {
		for _, bc := range b.Contracts {
			if bc.Type.Equal(c.Type) && bc.Tag.Kind != TagAny && bc.Tag.Matches(c.Tag) {
				matches = append(matches, b)
				break
			}
		}
	}
	return matches
}

func (r *Registry) anyTagMatches(c Contract) []*Binding {
	var matches []*Binding
	for _, b := range r.byType[c.Type.Key()] {
		for _, bc := range b.Contracts {
			if bc.Type.Equal(c.Type) && bc.Tag.Kind == TagAny {
				matches = append(matches, b)
				break
			}
		}
	}
	return matches
}

// pickWinner applies ordinal precedence and reports losers.
func (r *Registry) pickWinner(matches []*Binding, c Contract) (*Binding, bool) {
	if len(matches) == 0 {
		return nil, false
	}

	winner := matches[0]
	for _, b := range matches[1:] {
		if b.ID > winner.ID {
			winner = b
		}
	}

	for _, b := range matches {
		if b == winner || r.overridden[b.ID] {
			continue
		}
		r.overridden[b.ID] = true
		r.diags.Report(Diagnostic{
			Code:     CodeBindingOverridden,
			Severity: SeverityWarning,
			Bindings: []BindingID{b.ID, winner.ID},
			Contract: c,
			Location: b.Location,
		})
	}

	return winner, true
}

func (r *Registry) instantiateGeneric(c Contract) (*Binding, bool) {
	type match struct {
		binding *Binding
		subst   map[string]TypeRef
	}

	var matches []match
	for _, g := range r.generic {
		for _, gc := range g.Contracts {
			if !gc.Tag.Matches(c.Tag) && gc.Tag.Kind != TagAny {
				continue
			}
			subst := make(map[string]TypeRef)
			if unifyType(gc.Type, c.Type, r.meta.Markers, subst) {
				matches = append(matches, match{binding: g, subst: subst})
				break
			}
		}
	}

	if len(matches) == 0 {
		return nil, false
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.binding.ID > best.binding.ID {
			best = m
		}
	}

	key := c.Key() + "@" + best.binding.Location.String()
	if b, ok := r.instantiated[key]; ok {
		return b, true
	}

	b := instantiateBinding(best.binding, best.subst, r.allocID())
	r.instantiated[key] = b
	slog.Debug("instantiated generic binding", "contract", c.Key(), "origin", best.binding.ID, "id", b.ID)
	return b, true
}

// autoBind synthesizes a transient binding for a concrete, constructable
// type. Synthesized bindings are memoized so a diamond still shares one
// binding identity.
func (r *Registry) autoBind(t TypeRef) (*Binding, bool) {
	if b, ok := r.auto[t.Key()]; ok {
		return b, true
	}
	if r.oracle == nil {
		return nil, false
	}

	shape, ok := r.oracle.ConcreteShape(t)
	if !ok {
		return nil, false
	}
	if !r.meta.Hints.ResolveMethods {
		// Oracle shapes bypass finalization, so the method-arg strip
		// happens here.
		shape = &ImplSpec{
			Type:    shape.Type,
			Params:  shape.Params,
			Members: dropMethodArgs(shape.Members),
		}
	}

	b := &Binding{
		ID:        r.allocID(),
		Contracts: []Contract{{Type: t}},
		Lifetime:  LifetimeTransient,
		Impl:      shape,
		Location:  Location{Setup: "auto"},
	}
	b.Origin = b.ID
	r.auto[t.Key()] = b
	slog.Debug("auto-bound concrete type", "type", t.Key(), "id", b.ID)
	return b, true
}

func (r *Registry) allocID() BindingID {
	id := r.nextID
	r.nextID++
	return id
}

// unifyType matches a marker pattern against a concrete type, accumulating
// marker substitutions. Non-marker structure must match exactly.
func unifyType(pattern, concrete TypeRef, markers map[string]bool, subst map[string]TypeRef) bool {
	if (pattern.Kind == KindNamed || pattern.Kind == "") && markers[pattern.Name] {
		if prev, ok := subst[pattern.Name]; ok {
			return prev.Equal(concrete)
		}
		subst[pattern.Name] = concrete
		return true
	}

	if pattern.Kind != concrete.Kind {
		return false
	}

	switch pattern.Kind {
	case KindNamed, "":
		if pattern.Name != concrete.Name || len(pattern.Args) != len(concrete.Args) {
			return false
		}
		for i := range pattern.Args {
			if !unifyType(pattern.Args[i], concrete.Args[i], markers, subst) {
				return false
			}
		}
		return true
	case KindArray:
		if pattern.Len != concrete.Len {
			return false
		}
		return unifyType(*pattern.Elem, *concrete.Elem, markers, subst)
	default:
		if pattern.Elem == nil || concrete.Elem == nil {
			return pattern.Elem == concrete.Elem
		}
		return unifyType(*pattern.Elem, *concrete.Elem, markers, subst)
	}
}

func substituteType(t TypeRef, subst map[string]TypeRef) TypeRef {
	if (t.Kind == KindNamed || t.Kind == "") && len(t.Args) == 0 {
		if rep, ok := subst[t.Name]; ok {
			return rep
		}
		return t
	}

	out := t
	if len(t.Args) > 0 {
		out.Args = make([]TypeRef, len(t.Args))
		for i, a := range t.Args {
			out.Args[i] = substituteType(a, subst)
		}
	}
	if t.Elem != nil {
		elem := substituteType(*t.Elem, subst)
		out.Elem = &elem
	}
	return out
}

func substituteSites(sites []InjectionSite, subst map[string]TypeRef) []InjectionSite {
	if sites == nil {
		return nil
	}
	out := make([]InjectionSite, len(sites))
	for i, s := range sites {
		s.Contract.Type = substituteType(s.Contract.Type, subst)
		out[i] = s
	}
	return out
}

func instantiateBinding(g *Binding, subst map[string]TypeRef, id BindingID) *Binding {
	b := &Binding{
		ID:         id,
		Origin:     g.ID,
		Lifetime:   g.Lifetime,
		Location:   g.Location,
		Disposable: g.Disposable,
	}

	b.Contracts = make([]Contract, len(g.Contracts))
	for i, c := range g.Contracts {
		c.Type = substituteType(c.Type, subst)
		b.Contracts[i] = c
	}

	switch {
	case g.Impl != nil:
		b.Impl = &ImplSpec{
			Type:    substituteType(g.Impl.Type, subst),
			Params:  substituteSites(g.Impl.Params, subst),
			Members: substituteSites(g.Impl.Members, subst),
		}
	case g.Factory != nil:
		b.Factory = &FactorySpec{
			Result:       substituteType(g.Factory.Result, subst),
			Resolvers:    substituteSites(g.Factory.Resolvers, subst),
			Initializers: substituteSites(g.Factory.Initializers, subst),
		}
	case g.Arg != nil:
		b.Arg = &ArgSpec{Name: g.Arg.Name, Type: substituteType(g.Arg.Type, subst)}
	}

	return b
}
