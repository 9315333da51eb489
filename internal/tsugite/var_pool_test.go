package tsugite

import (
	"testing"
)

func TestVarPoolGetBaseName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ref      TypeRef
		expected string
	}{
		{
			name:     "named type",
			ref:      Named("svc.Service"),
			expected: "service",
		},
		{
			name:     "pointer unwraps",
			ref:      ptrTo(Named("svc.Service")),
			expected: "service",
		},
		{
			name:     "slice pluralizes",
			ref:      sliceOf(Named("svc.Handler")),
			expected: "handlers",
		},
		{
			name:     "seq pluralizes",
			ref:      TypeRef{Kind: KindSeq, Elem: &TypeRef{Kind: KindNamed, Name: "svc.Handler"}},
			expected: "handlers",
		},
		{
			name:     "func gets suffix",
			ref:      funcTo(Named("svc.Service")),
			expected: "serviceFn",
		},
		{
			name:     "reserved keyword escaped",
			ref:      Named("svc.Type"),
			expected: "typeValue",
		},
		{
			name:     "unqualified name",
			ref:      Named("Config"),
			expected: "config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pool := NewVarPool()
			if got := pool.Get(tt.ref); got != tt.expected {
				t.Errorf("Get() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestVarPoolCollisionSuffix(t *testing.T) {
	t.Parallel()

	pool := NewVarPool()
	ref := ptrTo(Named("svc.Service"))

	names := []string{pool.Get(ref), pool.Get(ref), pool.Get(ref)}
	expected := []string{"service", "service0", "service1"}
	for i, want := range expected {
		if names[i] != want {
			t.Fatalf("names = %v, want %v", names, expected)
		}
	}
}

func TestVarPoolRegisterReservesName(t *testing.T) {
	t.Parallel()

	pool := NewVarPool()
	pool.Register("service")

	if got := pool.Get(ptrTo(Named("svc.Service"))); got != "service0" {
		t.Errorf("Get() = %q, want service0 after Register", got)
	}
}
