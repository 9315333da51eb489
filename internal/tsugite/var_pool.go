package tsugite

import (
	"fmt"
	stdstrings "strings"

	"github.com/mazrean/tsugite/internal/pkg/strings"
)

// VarPool hands out collision-free variable names for plan emission.
type VarPool struct {
	vars map[string]int
}

func NewVarPool() *VarPool {
	return &VarPool{
		vars: make(map[string]int),
	}
}

// Register reserves an existing name so generated variables never shadow it.
func (p *VarPool) Register(name string) {
	if name == "" || name == "_" {
		return
	}
	if count, ok := p.vars[name]; !ok || count == 0 {
		p.vars[name] = 1
	}
}

// Get returns a fresh name derived from the type, suffixed on collision.
func (p *VarPool) Get(t TypeRef) string {
	name := p.getBaseName(t)

	count := p.vars[name]
	p.vars[name] = count + 1

	if count == 0 {
		return name
	}

	return fmt.Sprintf("%s%d", name, count-1)
}

// getBaseName extracts a lowerCamel base name from a type ref.
func (p *VarPool) getBaseName(t TypeRef) string {
	switch t.Kind {
	case KindPointer:
		return p.getBaseName(*t.Elem)
	case KindSlice, KindArray, KindSeq, KindChan:
		return p.getBaseName(*t.Elem) + "s"
	case KindFunc:
		return p.getBaseName(*t.Elem) + "Fn"
	default:
		name := t.Name
		if idx := stdstrings.LastIndex(name, "."); idx >= 0 {
			name = name[idx+1:]
		}
		if name == "" {
			return "val"
		}
		return strings.SafeIdent(strings.ToLowerCamel(name))
	}
}
