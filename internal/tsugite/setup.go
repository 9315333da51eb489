package tsugite

import (
	"fmt"
	"log/slog"
)

// Setup is one named configuration fragment. Fragments reference each
// other through DependsOn and are merged into a single normalized
// MetaData document before the resolver runs; no global mutable
// configuration state reaches the graph builder.
type Setup struct {
	Name         string
	Global       bool
	DependsOn    []string
	Bindings     []*Binding
	Roots        []Root
	Accumulators []AccumulatorSpec
}

// MergeSetups produces the one normalized metadata document for a
// composition. Fragments merge dependencies-first; a depends-on cycle is
// fatal. Global fragments merge before everything else, so later
// (more specific) bindings keep ordinal precedence over them.
func MergeSetups(name string, composition TypeRef, setups []*Setup, hints Hints) (*MetaData, error) {
	byName := make(map[string]*Setup, len(setups))
	for _, s := range setups {
		if _, ok := byName[s.Name]; ok {
			return nil, fmt.Errorf("duplicate setup fragment %q", s.Name)
		}
		byName[s.Name] = s
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(setups))
	var order []*Setup

	var visit func(s *Setup, path []string) error
	visit = func(s *Setup, path []string) error {
		switch state[s.Name] {
		case visited:
			return nil
		case visiting:
			return &SetupCycleError{Setups: append(path, s.Name)}
		}
		state[s.Name] = visiting

		for _, dep := range s.DependsOn {
			target, ok := byName[dep]
			if !ok {
				return fmt.Errorf("setup %q depends on unknown setup %q", s.Name, dep)
			}
			if err := visit(target, append(path, s.Name)); err != nil {
				return err
			}
		}

		state[s.Name] = visited
		order = append(order, s)
		return nil
	}

	// Globals first, then the rest in declaration order; visit resolves
	// depends-on chains within both groups.
	for _, s := range setups {
		if !s.Global {
			continue
		}
		if err := visit(s, nil); err != nil {
			return nil, err
		}
	}
	for _, s := range setups {
		if err := visit(s, nil); err != nil {
			return nil, err
		}
	}

	meta := &MetaData{
		Name:        name,
		Composition: composition,
		Hints:       hints,
	}

	for _, s := range order {
		slog.Debug("merging setup fragment", "composition", name, "fragment", s.Name)
		for i, b := range s.Bindings {
			if b.Location == (Location{}) {
				b.Location = Location{Setup: s.Name, Index: i}
			}
			meta.Bindings = append(meta.Bindings, b)
		}
		meta.Roots = append(meta.Roots, s.Roots...)
		meta.Accumulators = append(meta.Accumulators, s.Accumulators...)
	}

	return meta, nil
}
