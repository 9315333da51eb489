package tsugite

import (
	"errors"
	"testing"
)

func TestTypeRefKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ref      TypeRef
		expected string
	}{
		{
			name:     "named type",
			ref:      Named("svc.Service"),
			expected: "svc.Service",
		},
		{
			name:     "generic named type",
			ref:      Named("box.Box", Named("svc.A"), Named("svc.B")),
			expected: "box.Box[svc.A,svc.B]",
		},
		{
			name:     "pointer",
			ref:      ptrTo(Named("svc.Service")),
			expected: "*svc.Service",
		},
		{
			name:     "slice",
			ref:      sliceOf(Named("svc.Handler")),
			expected: "[]svc.Handler",
		},
		{
			name:     "array",
			ref:      TypeRef{Kind: KindArray, Len: 3, Elem: &TypeRef{Kind: KindNamed, Name: "svc.Handler"}},
			expected: "[3]svc.Handler",
		},
		{
			name:     "seq",
			ref:      TypeRef{Kind: KindSeq, Elem: &TypeRef{Kind: KindNamed, Name: "svc.Handler"}},
			expected: "seq[svc.Handler]",
		},
		{
			name:     "chan",
			ref:      TypeRef{Kind: KindChan, Elem: &TypeRef{Kind: KindNamed, Name: "svc.Event"}},
			expected: "chan svc.Event",
		},
		{
			name:     "func",
			ref:      funcTo(Named("svc.Service")),
			expected: "func() svc.Service",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.ref.Key(); got != tt.expected {
				t.Errorf("Key() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestTagMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		binding  Tag
		want     Tag
		expected bool
	}{
		{
			name:     "default matches default",
			binding:  Tag{},
			want:     Tag{},
			expected: true,
		},
		{
			name:     "default does not match value",
			binding:  Tag{},
			want:     ValueTag("primary"),
			expected: false,
		},
		{
			name:     "value matches same value",
			binding:  ValueTag("primary"),
			want:     ValueTag("primary"),
			expected: true,
		},
		{
			name:     "value does not match other value",
			binding:  ValueTag("primary"),
			want:     ValueTag("replica"),
			expected: false,
		},
		{
			name:     "value does not match default",
			binding:  ValueTag("primary"),
			want:     Tag{},
			expected: false,
		},
		{
			name:     "any matches default",
			binding:  Tag{Kind: TagAny},
			want:     Tag{},
			expected: true,
		},
		{
			name:     "any matches value",
			binding:  Tag{Kind: TagAny},
			want:     ValueTag("primary"),
			expected: true,
		},
		{
			name:     "unique does not match default",
			binding:  Tag{Kind: TagUnique, Value: "u3"},
			want:     Tag{},
			expected: false,
		},
		{
			name:     "unique matches itself",
			binding:  Tag{Kind: TagUnique, Value: "u3"},
			want:     Tag{Kind: TagUnique, Value: "u3"},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.binding.Matches(tt.want); got != tt.expected {
				t.Errorf("Matches() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFinalizeShapeValidation(t *testing.T) {
	t.Parallel()

	api := Named("svc.API")
	service := ptrTo(Named("svc.Service"))

	tests := []struct {
		name    string
		binding *Binding
		oracle  func(*ShapeTable)
		wantErr bool
	}{
		{
			name:    "valid implementation binding",
			binding: implBinding(api, service),
			oracle: func(s *ShapeTable) {
				s.Declare(service, api)
			},
		},
		{
			name:    "no construction kind",
			binding: &Binding{Contracts: []Contract{{Type: api}}},
			wantErr: true,
		},
		{
			name: "two construction kinds",
			binding: &Binding{
				Contracts: []Contract{{Type: api}},
				Impl:      &ImplSpec{Type: service},
				Factory:   &FactorySpec{Result: service},
			},
			wantErr: true,
		},
		{
			name:    "no contracts",
			binding: &Binding{Impl: &ImplSpec{Type: service}},
			wantErr: true,
		},
		{
			name:    "implementation not assignable to contract",
			binding: implBinding(api, service),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			oracle := NewShapeTable()
			if tt.oracle != nil {
				tt.oracle(oracle)
			}

			meta := &MetaData{Bindings: []*Binding{tt.binding}}
			err := meta.Finalize(oracle)

			if tt.wantErr {
				var shapeErr *ShapeError
				if !errors.As(err, &shapeErr) {
					t.Fatalf("expected ShapeError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestFinalizeNormalization(t *testing.T) {
	t.Parallel()

	config := Named("svc.Config")
	api := Named("svc.API")
	service := ptrTo(Named("svc.Service"))

	oracle := NewShapeTable()
	oracle.Declare(service, api)

	arg := argBinding("cfg", config)
	unique := implBinding(api, service)
	unique.Contracts[0].Tag = Tag{Kind: TagUnique}
	byType := implBinding(api, service)
	byType.Contracts[0].Tag = Tag{Kind: TagType}

	meta := &MetaData{Bindings: []*Binding{arg, unique, byType}}
	if err := meta.Finalize(oracle); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if arg.Lifetime != LifetimeArg {
		t.Errorf("arg lifetime = %s, want %s", arg.Lifetime, LifetimeArg)
	}
	if len(arg.Contracts) != 1 || !arg.Contracts[0].Type.Equal(config) {
		t.Errorf("arg contracts = %v, want the argument type", arg.Contracts)
	}

	if unique.Lifetime != LifetimeTransient {
		t.Errorf("default lifetime = %s, want %s", unique.Lifetime, LifetimeTransient)
	}
	if got := unique.Contracts[0].Tag; got.Kind != TagUnique || got.Value != "u1" {
		t.Errorf("unique tag = %+v, want kind %s value u1", got, TagUnique)
	}

	if got := byType.Contracts[0].Tag; got.Kind != TagValue || got.Value != "type:*svc.Service" {
		t.Errorf("type tag = %+v, want normalized value tag", got)
	}
}

func TestFinalizeGenericContractSkipsOracle(t *testing.T) {
	t.Parallel()

	box := Named("box.Box", Named("T"))
	impl := ptrTo(Named("box.Box", Named("T")))

	meta := &MetaData{Bindings: []*Binding{implBinding(box, impl)}}
	if err := meta.Finalize(NewShapeTable()); err != nil {
		t.Fatalf("marker contract must skip assignability, got %v", err)
	}
}

func TestFinalizeMethodArgGating(t *testing.T) {
	t.Parallel()

	api := Named("svc.API")
	logger := Named("svc.Logger")

	makeBinding := func() *Binding {
		b := implBinding(api, ptrTo(api))
		b.Impl.Members = []InjectionSite{
			{Kind: InjectField, Name: "Name", Contract: Contract{Type: Named("string")}},
			{Kind: InjectMethodArg, Name: "SetLogger", Contract: Contract{Type: logger}},
		}
		return b
	}

	oracle := NewShapeTable()
	oracle.Declare(ptrTo(api), api)

	meta := finalizeMeta(t, oracle, &Setup{Name: "base", Bindings: []*Binding{makeBinding()}}, nil)
	members := meta.Bindings[0].Impl.Members
	if len(members) != 1 || members[0].Kind != InjectField {
		t.Fatalf("method args must be stripped when resolveMethods is off, got %+v", members)
	}

	meta = finalizeMeta(t, oracle, &Setup{Name: "base", Bindings: []*Binding{makeBinding()}}, func(h *Hints) {
		h.ResolveMethods = true
	})
	members = meta.Bindings[0].Impl.Members
	if len(members) != 2 || members[1].Kind != InjectMethodArg {
		t.Fatalf("method args must survive when resolveMethods is on, got %+v", members)
	}
}
