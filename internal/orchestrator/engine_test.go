package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/learnloop/ecosync/internal/domain"
	"github.com/learnloop/ecosync/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(g *DependencyGraph, registry ports.HandlerRegistry, moduleTimeout time.Duration) *Engine {
	return NewEngine(g, registry, nopMetrics{}, nil, zap.NewNop(), 0, moduleTimeout)
}

func planFor(p *Planner, modules ...domain.ModuleName) *domain.IntegrationPlan {
	return p.Plan("user-1", "test", modules)
}

func TestExecuteEmptyPlan(t *testing.T) {
	g := buildGraph(t)
	e := newTestEngine(g, mapRegistry{}, time.Second)

	plan := planFor(NewPlanner(g, nil, 10))
	results := e.Execute(context.Background(), plan, domain.IntegrationTrigger{UserID: "user-1"})
	assert.Empty(t, results)
}

func TestExecuteAllSucceed(t *testing.T) {
	g := buildGraph(t, edge("a", "b", true))
	registry := mapRegistry{
		"a": succeedHandler(3),
		"b": succeedHandler(2),
	}
	e := newTestEngine(g, registry, time.Second)

	plan := planFor(NewPlanner(g, nil, 10), "a", "b")
	results := e.Execute(context.Background(), plan, domain.IntegrationTrigger{UserID: "user-1"})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, domain.StatusSuccess, r.Status)
	}
	a, _ := resultByModule(results, "a")
	assert.Equal(t, 3, a.ItemsProcessed)
}

func TestExecuteRequiredUpstreamFailureSkips(t *testing.T) {
	g := buildGraph(t, edge("a", "b", true))
	rec := &recorder{}
	registry := mapRegistry{
		"a": failHandler("boom"),
		"b": rec.recording("b", succeedHandler(1)),
	}
	e := newTestEngine(g, registry, time.Second)

	plan := planFor(NewPlanner(g, nil, 10), "a", "b")
	results := e.Execute(context.Background(), plan, domain.IntegrationTrigger{UserID: "user-1"})

	a, ok := resultByModule(results, "a")
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, a.Status)

	b, ok := resultByModule(results, "b")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSkipped, b.Status)
	assert.Contains(t, b.SkipReason, "a")
	assert.Contains(t, b.SkipReason, "failed")

	// The skipped handler must never have been invoked.
	assert.Empty(t, rec.calls())
}

func TestExecuteSkipPropagates(t *testing.T) {
	// a fails -> b skipped -> c (requires b) skipped too.
	g := buildGraph(t,
		edge("a", "b", true),
		edge("b", "c", true),
	)
	registry := mapRegistry{
		"a": failHandler("boom"),
		"b": succeedHandler(1),
		"c": succeedHandler(1),
	}
	e := newTestEngine(g, registry, time.Second)

	plan := planFor(NewPlanner(g, nil, 10), "a", "b", "c")
	results := e.Execute(context.Background(), plan, domain.IntegrationTrigger{UserID: "user-1"})

	c, ok := resultByModule(results, "c")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSkipped, c.Status)
	assert.Contains(t, c.SkipReason, "b")
}

func TestExecuteNonRequiredUpstreamFailureRuns(t *testing.T) {
	g := buildGraph(t, edge("a", "b", false))
	registry := mapRegistry{
		"a": failHandler("boom"),
		"b": succeedHandler(1),
	}
	e := newTestEngine(g, registry, time.Second)

	plan := planFor(NewPlanner(g, nil, 10), "a", "b")
	results := e.Execute(context.Background(), plan, domain.IntegrationTrigger{UserID: "user-1"})

	b, ok := resultByModule(results, "b")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSuccess, b.Status)
}

func TestExecuteFailureIsolation(t *testing.T) {
	// A panicking sibling must not affect other modules in its layer.
	g := buildGraph(t)
	registry := mapRegistry{
		"a": ports.HandlerFunc(func(ctx context.Context, mctx ports.ModuleContext) (ports.HandlerResult, error) {
			panic("handler exploded")
		}),
		"b": succeedHandler(1),
		"c": ports.HandlerFunc(func(ctx context.Context, mctx ports.ModuleContext) (ports.HandlerResult, error) {
			return ports.HandlerResult{}, errors.New("network down")
		}),
	}
	e := newTestEngine(g, registry, time.Second)

	plan := planFor(NewPlanner(g, nil, 10), "a", "b", "c")
	results := e.Execute(context.Background(), plan, domain.IntegrationTrigger{UserID: "user-1"})
	require.Len(t, results, 3)

	a, _ := resultByModule(results, "a")
	assert.Equal(t, domain.StatusFailed, a.Status)
	assert.Contains(t, a.Details["error"], "handler panic")

	b, _ := resultByModule(results, "b")
	assert.Equal(t, domain.StatusSuccess, b.Status)

	c, _ := resultByModule(results, "c")
	assert.Equal(t, domain.StatusFailed, c.Status)
	assert.Equal(t, "network down", c.Details["error"])
}

func TestExecuteModuleTimeout(t *testing.T) {
	g := buildGraph(t)
	registry := mapRegistry{
		"a": ports.HandlerFunc(func(ctx context.Context, mctx ports.ModuleContext) (ports.HandlerResult, error) {
			select {
			case <-ctx.Done():
				return ports.HandlerResult{}, ctx.Err()
			case <-time.After(5 * time.Second):
				return ports.HandlerResult{Success: true}, nil
			}
		}),
	}
	e := newTestEngine(g, registry, 20*time.Millisecond)

	plan := planFor(NewPlanner(g, nil, 10), "a")
	results := e.Execute(context.Background(), plan, domain.IntegrationTrigger{UserID: "user-1"})

	a, ok := resultByModule(results, "a")
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, a.Status)
	assert.Equal(t, domain.SkipReasonTimeout, a.SkipReason)
}

func TestExecuteCancellationSkipsPendingLayers(t *testing.T) {
	g := buildGraph(t, edge("a", "b", false))
	ctx, cancel := context.WithCancel(context.Background())

	registry := mapRegistry{
		"a": ports.HandlerFunc(func(hctx context.Context, mctx ports.ModuleContext) (ports.HandlerResult, error) {
			cancel() // run is aborted while the first layer executes
			return ports.HandlerResult{Success: true}, nil
		}),
		"b": succeedHandler(1),
	}
	e := newTestEngine(g, registry, time.Second)

	plan := planFor(NewPlanner(g, nil, 10), "a", "b")
	results := e.Execute(ctx, plan, domain.IntegrationTrigger{UserID: "user-1"})

	b, ok := resultByModule(results, "b")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSkipped, b.Status)
	assert.Equal(t, domain.SkipReasonCancelled, b.SkipReason)
}

func TestExecuteMissingHandler(t *testing.T) {
	g := buildGraph(t)
	e := newTestEngine(g, mapRegistry{}, time.Second)

	plan := planFor(NewPlanner(g, nil, 10), "ghost")
	results := e.Execute(context.Background(), plan, domain.IntegrationTrigger{UserID: "user-1"})

	r, ok := resultByModule(results, "ghost")
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, r.Status)
	assert.Equal(t, "no handler registered", r.Details["error"])
}

func TestExecuteLayerBarrier(t *testing.T) {
	// Layer 1 must not start until every layer 0 module is terminal.
	g := buildGraph(t,
		edge("a", "c", true),
		edge("b", "c", true),
	)

	var layer0Done int32
	slow := func(m domain.ModuleName) ports.ModuleHandler {
		return ports.HandlerFunc(func(ctx context.Context, mctx ports.ModuleContext) (ports.HandlerResult, error) {
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&layer0Done, 1)
			return ports.HandlerResult{Success: true}, nil
		})
	}

	registry := mapRegistry{
		"a": slow("a"),
		"b": slow("b"),
		"c": ports.HandlerFunc(func(ctx context.Context, mctx ports.ModuleContext) (ports.HandlerResult, error) {
			if atomic.LoadInt32(&layer0Done) != 2 {
				return ports.HandlerResult{
					Success: false,
					Details: map[string]interface{}{"error": "started before upstream layer finished"},
				}, nil
			}
			return ports.HandlerResult{Success: true}, nil
		}),
	}
	e := newTestEngine(g, registry, time.Second)

	plan := planFor(NewPlanner(g, nil, 10), "a", "b", "c")
	results := e.Execute(context.Background(), plan, domain.IntegrationTrigger{UserID: "user-1"})

	c, ok := resultByModule(results, "c")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSuccess, c.Status, "details: %v", c.Details)
}

func TestExecuteCyclicBestEffort(t *testing.T) {
	g := buildGraph(t,
		edge("x", "y", true),
		edge("y", "x", true),
	)
	registry := mapRegistry{
		"x": succeedHandler(1),
		"y": failHandler("boom"),
	}
	e := newTestEngine(g, registry, time.Second)

	plan := planFor(NewPlanner(g, nil, 10), "x", "y")
	require.NotEmpty(t, plan.CyclicModules)

	// Both cyclic modules are attempted and record whatever their
	// handlers return.
	results := e.Execute(context.Background(), plan, domain.IntegrationTrigger{UserID: "user-1"})
	require.Len(t, results, 2)

	x, _ := resultByModule(results, "x")
	assert.Equal(t, domain.StatusSuccess, x.Status)
	y, _ := resultByModule(results, "y")
	assert.Equal(t, domain.StatusFailed, y.Status)
}

func TestExecuteUpstreamResultsVisible(t *testing.T) {
	g := buildGraph(t, edge("a", "b", true))

	registry := mapRegistry{
		"a": succeedHandler(7),
		"b": ports.HandlerFunc(func(ctx context.Context, mctx ports.ModuleContext) (ports.HandlerResult, error) {
			up, ok := mctx.Upstream["a"]
			if !ok || up.ItemsProcessed != 7 {
				return ports.HandlerResult{
					Success: false,
					Details: map[string]interface{}{"error": "upstream result missing"},
				}, nil
			}
			return ports.HandlerResult{Success: true}, nil
		}),
	}
	e := newTestEngine(g, registry, time.Second)

	plan := planFor(NewPlanner(g, nil, 10), "a", "b")
	results := e.Execute(context.Background(), plan, domain.IntegrationTrigger{UserID: "user-1"})

	b, ok := resultByModule(results, "b")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSuccess, b.Status, "details: %v", b.Details)
}
