package tsugite

// nodeColor represents the DFS state of a node during cycle validation.
type nodeColor int

const (
	white nodeColor = iota // unvisited
	gray                   // currently being processed
	black                  // completely processed
)

// ValidateCycles walks the graph and decides, for every cycle, whether it
// is resolvable. A cycle closed entirely through at least one deferred
// injection site is legal: its nodes are marked HasCycle and code
// generation emits a forward-declared placeholder. A cycle with only
// eager edges is fatal.
func ValidateCycles(g *DependencyGraph) error {
	v := &cycleValidator{
		graph:  g,
		colors: make([]nodeColor, len(g.Nodes)),
		index:  make(map[NodeID]int, len(g.Nodes)),
	}

	if err := v.visit(g.RootNode); err != nil {
		return err
	}
	for _, n := range g.Nodes {
		if v.colors[n.ID] == white {
			if err := v.visit(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

type cycleValidator struct {
	graph  *DependencyGraph
	colors []nodeColor
	// path is the current gray chain; index maps a gray node to its
	// position in it.
	path  []Edge
	stack []NodeID
	index map[NodeID]int
}

func (v *cycleValidator) visit(id NodeID) error {
	v.colors[id] = gray
	v.index[id] = len(v.stack)
	v.stack = append(v.stack, id)

	for _, edge := range v.graph.Out[id] {
		switch v.colors[edge.To] {
		case gray:
			if err := v.handleCycle(edge); err != nil {
				return err
			}
		case white:
			v.path = append(v.path, edge)
			err := v.visit(edge.To)
			v.path = v.path[:len(v.path)-1]
			if err != nil {
				return err
			}
		}
	}

	v.stack = v.stack[:len(v.stack)-1]
	delete(v.index, id)
	v.colors[id] = black
	return nil
}

// handleCycle inspects the back edge closing a cycle. The cycle's edges
// are the path suffix starting at the re-entered node plus the closing
// edge itself.
func (v *cycleValidator) handleCycle(closing Edge) error {
	start := v.index[closing.To]
	cycleNodes := v.stack[start:]
	cycleEdges := append(append([]Edge(nil), v.path[start:]...), closing)

	deferred := false
	for _, e := range cycleEdges {
		if e.Site.Deferred {
			deferred = true
			break
		}
	}

	if !deferred {
		head := v.graph.Nodes[closing.To]
		err := &CycleError{Lifetime: head.DeclaredLifetime()}
		for _, id := range cycleNodes {
			n := v.graph.Nodes[id]
			err.Nodes = append(err.Nodes, n.Contract)
			err.Bindings = append(err.Bindings, n.BindingID)
		}
		return err
	}

	for _, id := range cycleNodes {
		v.graph.Nodes[id].HasCycle = true
	}
	return nil
}
