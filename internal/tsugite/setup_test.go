package tsugite

import (
	"errors"
	"strings"
	"testing"
)

func TestMergeSetupsOrder(t *testing.T) {
	t.Parallel()

	handler := Named("svc.Handler")
	makeBinding := func() *Binding {
		return implBinding(handler, ptrTo(Named("svc.Handler")))
	}

	base := &Setup{Name: "base", Bindings: []*Binding{makeBinding()}}
	feature := &Setup{Name: "feature", DependsOn: []string{"base"}, Bindings: []*Binding{makeBinding()}}
	global := &Setup{Name: "global", Global: true, Bindings: []*Binding{makeBinding()}}

	// Declaration order lists the global last; merge order must still put
	// it first so later fragments override it by ordinal.
	meta, err := MergeSetups("Test", TypeRef{}, []*Setup{feature, base, global}, DefaultHints())
	if err != nil {
		t.Fatalf("merge setups: %v", err)
	}

	locations := make([]string, 0, len(meta.Bindings))
	for _, b := range meta.Bindings {
		locations = append(locations, b.Location.Setup)
	}

	expected := []string{"global", "base", "feature"}
	for i, want := range expected {
		if locations[i] != want {
			t.Fatalf("merge order = %v, want %v", locations, expected)
		}
	}
}

func TestMergeSetupsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setups    []*Setup
		wantCycle bool
		contains  string
	}{
		{
			name: "duplicate fragment names",
			setups: []*Setup{
				{Name: "base"},
				{Name: "base"},
			},
			contains: "duplicate",
		},
		{
			name: "unknown dependency",
			setups: []*Setup{
				{Name: "base", DependsOn: []string{"missing"}},
			},
			contains: "unknown setup",
		},
		{
			name: "dependency cycle",
			setups: []*Setup{
				{Name: "a", DependsOn: []string{"b"}},
				{Name: "b", DependsOn: []string{"a"}},
			},
			wantCycle: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := MergeSetups("Test", TypeRef{}, tt.setups, DefaultHints())
			if err == nil {
				t.Fatal("expected error")
			}

			if tt.wantCycle {
				var cycleErr *SetupCycleError
				if !errors.As(err, &cycleErr) {
					t.Fatalf("expected SetupCycleError, got %v", err)
				}
				return
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not mention %q", err, tt.contains)
			}
		})
	}
}

func TestMergeSetupsCollectsRootsAndAccumulators(t *testing.T) {
	t.Parallel()

	setups := []*Setup{
		{
			Name:  "base",
			Roots: []Root{{Name: "API", Contract: Contract{Type: Named("svc.API")}}},
			Accumulators: []AccumulatorSpec{{
				Type: Named("svc.Collector"),
				Elem: Named("svc.Plugin"),
			}},
		},
		{
			Name:  "extra",
			Roots: []Root{{Name: "Admin", Contract: Contract{Type: Named("svc.Admin")}}},
		},
	}

	meta, err := MergeSetups("Test", TypeRef{}, setups, DefaultHints())
	if err != nil {
		t.Fatalf("merge setups: %v", err)
	}

	if len(meta.Roots) != 2 || meta.Roots[0].Name != "API" || meta.Roots[1].Name != "Admin" {
		t.Errorf("roots = %v, want API then Admin", meta.Roots)
	}
	if len(meta.Accumulators) != 1 {
		t.Errorf("accumulators = %d, want 1", len(meta.Accumulators))
	}
}
