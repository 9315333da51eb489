package tsugite

import (
	"testing"
)

func TestOptimizeSingleUseDemotion(t *testing.T) {
	t.Parallel()

	api := Named("svc.API")
	service := ptrTo(Named("svc.Service"))
	cache := Named("svc.Cache")
	cacheImpl := ptrTo(Named("svc.Cache"))

	oracle := NewShapeTable()
	b := implBinding(api, service, param(0, cache))
	c := implBinding(cache, cacheImpl)
	c.Lifetime = LifetimePerResolve
	declareImpl(oracle, b)
	declareImpl(oracle, c)

	e := newTestEngine(t, oracle, &Setup{Name: "base", Bindings: []*Binding{b, c}}, nil)
	g := e.mustBuild(t, Root{Name: "API", Contract: Contract{Type: api}})
	Optimize(g)

	for _, n := range g.Nodes {
		if n.Binding == c {
			if got := g.EffectiveLifetime(n.ID); got != LifetimeTransient {
				t.Errorf("single-use perResolve = %s, want transient", got)
			}
			if n.Binding.Lifetime != LifetimePerResolve {
				t.Error("declared lifetime must stay untouched")
			}
		}
	}
}

func TestOptimizeMultiUseKeepsSharing(t *testing.T) {
	t.Parallel()

	app := Named("app.App")
	left := Named("svc.Left")
	right := Named("svc.Right")
	cache := Named("svc.Cache")

	oracle := NewShapeTable()
	appBinding := implBinding(app, ptrTo(app), param(0, left), param(1, right))
	leftBinding := implBinding(left, ptrTo(left), param(0, cache))
	rightBinding := implBinding(right, ptrTo(right), param(0, cache))
	cacheBinding := implBinding(cache, ptrTo(cache))
	cacheBinding.Lifetime = LifetimePerResolve
	bindings := []*Binding{appBinding, leftBinding, rightBinding, cacheBinding}
	for _, b := range bindings {
		declareImpl(oracle, b)
	}

	e := newTestEngine(t, oracle, &Setup{Name: "base", Bindings: bindings}, nil)
	g := e.mustBuild(t, Root{Name: "App", Contract: Contract{Type: app}})
	Optimize(g)

	for _, n := range g.Nodes {
		if n.Binding == cacheBinding {
			if got := g.EffectiveLifetime(n.ID); got != LifetimePerResolve {
				t.Errorf("shared perResolve = %s, want perResolve", got)
			}
		}
	}
}

func TestOptimizeKeepsPerResolveUnderRepeatedTransientConsumer(t *testing.T) {
	t.Parallel()

	app := Named("app.App")
	worker := Named("svc.Worker")
	data := Named("svc.Data")

	// The per-resolve node has a single static in-edge, but its sole
	// consumer is transient and injected twice, so it is constructed
	// twice per resolve. Demotion would split the shared instance.
	oracle := NewShapeTable()
	appBinding := implBinding(app, ptrTo(app), param(0, worker), param(1, worker))
	workerBinding := implBinding(worker, ptrTo(worker), param(0, data))
	dataBinding := implBinding(data, ptrTo(data))
	dataBinding.Lifetime = LifetimePerResolve
	bindings := []*Binding{appBinding, workerBinding, dataBinding}
	for _, b := range bindings {
		declareImpl(oracle, b)
	}

	e := newTestEngine(t, oracle, &Setup{Name: "base", Bindings: bindings}, nil)
	g := e.mustBuild(t, Root{Name: "App", Contract: Contract{Type: app}})
	Optimize(g)

	for _, n := range g.Nodes {
		if n.Binding == dataBinding {
			if got := g.EffectiveLifetime(n.ID); got != LifetimePerResolve {
				t.Errorf("perResolve under repeated transient consumer = %s, want perResolve", got)
			}
		}
	}
}

func TestOptimizeCyclePromotesTransient(t *testing.T) {
	t.Parallel()

	e := cyclePair(t, true)
	g := e.mustBuild(t, Root{Name: "A", Contract: Contract{Type: Named("svc.A")}})
	if err := ValidateCycles(g); err != nil {
		t.Fatalf("validate: %v", err)
	}
	Optimize(g)

	for _, n := range g.Nodes {
		if !n.HasCycle {
			continue
		}
		if got := g.EffectiveLifetime(n.ID); got != LifetimePerBlock {
			t.Errorf("cyclic transient %s = %s, want perBlock", n.Contract, got)
		}
	}
}

func TestOptimizeNeverDemotesPersistentLifetimes(t *testing.T) {
	t.Parallel()

	api := Named("svc.API")
	logger := Named("svc.Logger")

	oracle := NewShapeTable()
	b := implBinding(api, ptrTo(api), param(0, logger))
	l := implBinding(logger, ptrTo(logger))
	l.Lifetime = LifetimeSingleton
	declareImpl(oracle, b)
	declareImpl(oracle, l)

	e := newTestEngine(t, oracle, &Setup{Name: "base", Bindings: []*Binding{b, l}}, nil)
	g := e.mustBuild(t, Root{Name: "API", Contract: Contract{Type: api}})
	Optimize(g)

	for _, n := range g.Nodes {
		if n.Binding == l {
			if got := g.EffectiveLifetime(n.ID); got != LifetimeSingleton {
				t.Errorf("single-use singleton = %s, want singleton", got)
			}
		}
	}
}
