package tsugite

import "log/slog"

// Optimize computes the effective lifetime of every node in the graph and
// writes it into the graph's lifetime arena, leaving declared lifetimes
// untouched for diagnostics.
//
// Lifetimes only move downward in sharing scope, and only when the node
// is provably constructed at most once per resolve. A raw in-edge count
// is not enough for that proof: a single consumer that is itself
// transient and multiply injected constructs its dependency once per
// consumer construction. The one upward move is for correctness: a
// transient node on a cycle is structurally shared by the placeholder
// that breaks the cycle, so it gets per-block sharing. Every decision
// derives from static reachability counts alone.
func Optimize(g *DependencyGraph) {
	g.Effective = make([]Lifetime, len(g.Nodes))
	counts := newConstructionCounts(g)

	for _, n := range g.Nodes {
		declared := n.DeclaredLifetime()
		effective := declared
		demand := counts.demand(n.ID)

		switch declared {
		case LifetimeSingleton, LifetimeScoped, LifetimeArg:
			// Shared across roots or always available; never demoted.
		case LifetimePerResolve, LifetimePerBlock:
			if demand <= 1 {
				if n.HasCycle {
					effective = LifetimePerBlock
				} else {
					effective = LifetimeTransient
				}
			}
		case LifetimeTransient:
			if n.HasCycle {
				effective = LifetimePerBlock
			}
		}

		if effective != declared {
			slog.Debug("lifetime optimized", "node", n.Contract.Key(), "declared", declared, "effective", effective, "demand", demand)
		}
		g.Effective[n.ID] = effective
	}
}

// constructionCounts bounds how many times each node is constructed
// during one resolve: shared-lifetime nodes at most once, transient
// nodes once per construction of each consumer. Counts are capped at 2;
// the optimizer only distinguishes "at most once" from "more".
type constructionCounts struct {
	g     *DependencyGraph
	memo  []int
	state []byte
}

const (
	countUnvisited = iota
	countVisiting
	countDone
)

func newConstructionCounts(g *DependencyGraph) *constructionCounts {
	return &constructionCounts{
		g:     g,
		memo:  make([]int, len(g.Nodes)),
		state: make([]byte, len(g.Nodes)),
	}
}

// demand sums the construction counts of a node's consumers.
func (c *constructionCounts) demand(id NodeID) int {
	total := 0
	for _, e := range c.g.In[id] {
		total += c.constructions(e.From)
		if total > 1 {
			return 2
		}
	}
	return total
}

func (c *constructionCounts) constructions(id NodeID) int {
	switch c.state[id] {
	case countVisiting:
		// On a cycle; assume repeated construction.
		return 2
	case countDone:
		return c.memo[id]
	}
	c.state[id] = countVisiting

	var count int
	switch {
	case id == c.g.RootNode:
		count = 1
	case c.g.Nodes[id].DeclaredLifetime().Shared():
		count = 1
	default:
		count = c.demand(id)
	}

	c.state[id] = countDone
	c.memo[id] = count
	return count
}
