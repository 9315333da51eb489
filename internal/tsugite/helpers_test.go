package tsugite

import (
	"context"
	"testing"
)

func ptrTo(t TypeRef) TypeRef {
	return TypeRef{Kind: KindPointer, Elem: &t}
}

func sliceOf(t TypeRef) TypeRef {
	return TypeRef{Kind: KindSlice, Elem: &t}
}

func funcTo(t TypeRef) TypeRef {
	return TypeRef{Kind: KindFunc, Elem: &t}
}

func param(ordinal int, contract TypeRef) InjectionSite {
	return InjectionSite{Kind: InjectCtorParam, Contract: Contract{Type: contract}, Ordinal: ordinal}
}

func implBinding(contract, impl TypeRef, params ...InjectionSite) *Binding {
	return &Binding{
		Contracts: []Contract{{Type: contract}},
		Impl:      &ImplSpec{Type: impl, Params: params},
	}
}

func argBinding(name string, t TypeRef) *Binding {
	return &Binding{Arg: &ArgSpec{Name: name, Type: t}}
}

// declareImpl registers the pointer implementation and its contract edge
// on the shape oracle so finalization accepts the binding.
func declareImpl(oracle *ShapeTable, b *Binding) {
	for _, c := range b.Contracts {
		oracle.Declare(b.ImplType(), c.Type)
	}
}

func finalizeMeta(t *testing.T, oracle TypeOracle, setup *Setup, mutate func(*Hints)) *MetaData {
	t.Helper()

	hints := DefaultHints()
	if mutate != nil {
		mutate(&hints)
	}

	meta, err := MergeSetups("Test", TypeRef{}, []*Setup{setup}, hints)
	if err != nil {
		t.Fatalf("merge setups: %v", err)
	}
	if err := meta.Finalize(oracle); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return meta
}

type testEngine struct {
	meta    *MetaData
	oracle  TypeOracle
	diags   *Diagnostics
	reg     *Registry
	builder *GraphBuilder
}

func newTestEngine(t *testing.T, oracle TypeOracle, setup *Setup, mutate func(*Hints)) *testEngine {
	t.Helper()

	meta := finalizeMeta(t, oracle, setup, mutate)
	diags := &Diagnostics{}
	reg := NewRegistry(meta, oracle, diags)
	return &testEngine{
		meta:    meta,
		oracle:  oracle,
		diags:   diags,
		reg:     reg,
		builder: NewGraphBuilder(meta, reg, oracle),
	}
}

func (e *testEngine) mustBuild(t *testing.T, root Root) *DependencyGraph {
	t.Helper()

	g, err := e.builder.Build(context.Background(), root)
	if err != nil {
		t.Fatalf("build graph for root %s: %v", root.Name, err)
	}
	return g
}

func (e *testEngine) mustPlan(t *testing.T, vars *VarMap, root Root) *Plan {
	t.Helper()

	g := e.mustBuild(t, root)
	if err := ValidateCycles(g); err != nil {
		t.Fatalf("validate cycles: %v", err)
	}
	Optimize(g)

	plan, err := NewPlanner(g, vars).Plan(context.Background())
	if err != nil {
		t.Fatalf("plan root %s: %v", root.Name, err)
	}
	return plan
}
