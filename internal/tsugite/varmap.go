package tsugite

// Var is the generated-code-facing representation of a node instance. Its
// declaration and creation flags are path state: they describe what the
// emission path currently being planned has already done, and are saved
// and restored around nested scopes.
type Var struct {
	Node *DependencyNode
	Name string
	// Lifetime is the effective lifetime under the graph the Var was
	// last requested from. Scope bookkeeping reads it from here: a Var
	// kept across roots still carries a Node from the previous root's
	// graph, so its NodeID must never index the current one.
	Lifetime   Lifetime
	IsDeclared bool
	IsCreated  bool
	Expr       string
}

func (v *Var) resetPathState() {
	v.IsDeclared = false
	v.IsCreated = false
	v.Expr = ""
}

// ScopeKind identifies a nesting boundary during planning.
type ScopeKind string

const (
	ScopeRoot          ScopeKind = "root"
	ScopeLocalFunction ScopeKind = "localFunction"
	ScopeLazy          ScopeKind = "lazy"
	ScopeBlock         ScopeKind = "block"
)

type varState struct {
	declared bool
	created  bool
	expr     string
}

type scopeFrame struct {
	kind        ScopeKind
	enteredFor  BindingID
	saved       map[BindingID]varState
	preexisting map[BindingID]struct{}
	// stashed holds per-block vars removed on LocalFunction entry; they
	// are reinstated wholesale on exit.
	stashed map[BindingID]*Var
}

// VarMap is the stack-scoped table from binding id to Var, exclusively
// owned by one root's planning and discarded afterward (singleton, scoped
// and argument vars survive into the next root of the same composition).
type VarMap struct {
	graph        *DependencyGraph
	pool         *VarPool
	vars         map[BindingID]*Var
	order        []BindingID
	frames       []*scopeFrame
	isThreadSafe bool
}

func NewVarMap(pool *VarPool) *VarMap {
	return &VarMap{
		pool: pool,
		vars: make(map[BindingID]*Var),
	}
}

// BeginRoot points the map at the next root's graph. Vars registered by
// earlier roots persist only for singleton, scoped and argument nodes.
func (m *VarMap) BeginRoot(g *DependencyGraph) {
	m.graph = g
	m.frames = m.frames[:0]

	kept := m.order[:0:0]
	for _, id := range m.order {
		v := m.vars[id]
		switch v.Node.DeclaredLifetime() {
		case LifetimeSingleton, LifetimeScoped:
			// Declared once per composition; each root re-checks creation.
			v.IsCreated = false
			v.Expr = ""
			kept = append(kept, id)
		case LifetimeArg:
			// Arguments stay available as-is.
			kept = append(kept, id)
		default:
			delete(m.vars, id)
		}
	}
	m.order = kept
}

// IsThreadSafe reports whether the emitter must guard single-instance
// checks with a lock in the generated code's own runtime.
func (m *VarMap) IsThreadSafe() bool { return m.isThreadSafe }

// Get returns the variable for a node: one shared Var per binding id for
// shared effective lifetimes, a fresh Var per call for transient nodes.
func (m *VarMap) Get(n *DependencyNode) *Var {
	effective := m.graph.EffectiveLifetime(n.ID)
	m.latchThreadSafety(n, effective)

	if !effective.Shared() {
		return &Var{Node: n, Lifetime: effective, Name: m.pool.Get(varType(n))}
	}

	if v, ok := m.vars[n.BindingID]; ok {
		// Rebind to the current graph's node; the memoized Var may date
		// from an earlier root.
		v.Node = n
		v.Lifetime = effective
		return v
	}

	v := &Var{Node: n, Lifetime: effective, Name: m.pool.Get(varType(n))}
	if effective == LifetimeArg {
		// Arguments are always already available.
		v.IsDeclared = true
		v.IsCreated = true
		v.Expr = argExpr(n)
	}
	m.vars[n.BindingID] = v
	m.order = append(m.order, n.BindingID)
	return v
}

func (m *VarMap) latchThreadSafety(n *DependencyNode, effective Lifetime) {
	switch effective {
	case LifetimeSingleton, LifetimeScoped, LifetimePerResolve, LifetimeArg:
		m.isThreadSafe = true
	}
	if n.Construct != nil && n.Construct.Kind == ConstructAccumulator {
		m.isThreadSafe = true
	}
}

// Enter opens a nested scope for the given node: it snapshots the current
// path state of every registered variable except the entered node's own
// (a self-referential reset would clobber the variable mid-construction),
// and on LocalFunction entry removes per-block variables entirely, since
// per-block sharing must not cross local-function boundaries.
func (m *VarMap) Enter(kind ScopeKind, enteredFor BindingID) {
	frame := &scopeFrame{
		kind:        kind,
		enteredFor:  enteredFor,
		saved:       make(map[BindingID]varState),
		preexisting: make(map[BindingID]struct{}),
	}

	for _, id := range m.order {
		frame.preexisting[id] = struct{}{}
		if id == enteredFor {
			continue
		}
		v := m.vars[id]
		frame.saved[id] = varState{declared: v.IsDeclared, created: v.IsCreated, expr: v.Expr}
	}

	if kind == ScopeLocalFunction {
		frame.stashed = make(map[BindingID]*Var)
		kept := m.order[:0:0]
		for _, id := range m.order {
			v := m.vars[id]
			if v.Lifetime == LifetimePerBlock {
				frame.stashed[id] = v
				delete(m.vars, id)
				delete(frame.preexisting, id)
				continue
			}
			kept = append(kept, id)
		}
		m.order = kept
	}

	m.frames = append(m.frames, frame)
}

// Exit closes the innermost scope: variables first seen inside it are
// dropped when non-persistent or reset to defaults when persistent (so
// the parent path re-triggers their construction check), pre-existing
// variables get their snapshotted path state back, and per-block
// variables stashed by a LocalFunction entry are reinstated.
func (m *VarMap) Exit() {
	frame := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]

	kept := m.order[:0:0]
	for _, id := range m.order {
		v := m.vars[id]
		if _, ok := frame.preexisting[id]; ok {
			if state, saved := frame.saved[id]; saved {
				v.IsDeclared = state.declared
				v.IsCreated = state.created
				v.Expr = state.expr
			}
			kept = append(kept, id)
			continue
		}

		if v.Lifetime.Persistent() {
			v.resetPathState()
			kept = append(kept, id)
			continue
		}

		delete(m.vars, id)
	}
	m.order = kept

	for _, id := range m.orderOfStash(frame) {
		m.vars[id] = frame.stashed[id]
		m.order = append(m.order, id)
	}
}

// orderOfStash reinstates stashed vars deterministically by binding id.
func (m *VarMap) orderOfStash(frame *scopeFrame) []BindingID {
	if len(frame.stashed) == 0 {
		return nil
	}
	ids := make([]BindingID, 0, len(frame.stashed))
	for id := range frame.stashed {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// Lookup reports whether a binding currently has a registered variable.
func (m *VarMap) Lookup(id BindingID) (*Var, bool) {
	v, ok := m.vars[id]
	return v, ok
}

func varType(n *DependencyNode) TypeRef {
	if n.Binding != nil {
		return n.Binding.ImplType()
	}
	return n.Contract.Type
}

func argExpr(n *DependencyNode) string {
	if n.Binding != nil && n.Binding.Arg != nil {
		return n.Binding.Arg.Name
	}
	if n.Construct != nil && n.Construct.Kind == ConstructComposition {
		return "composition"
	}
	return ""
}
