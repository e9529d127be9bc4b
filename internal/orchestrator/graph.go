package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/learnloop/ecosync/internal/domain"
	"github.com/learnloop/ecosync/internal/ports"
)

// DependencyGraph is the adjacency model over integration modules. It is
// read-mostly: edge registration happens at startup or rarely afterwards, so
// a coarse RWMutex is enough.
type DependencyGraph struct {
	mu sync.RWMutex

	// dependents maps source -> targets (modules that depend on source).
	dependents map[domain.ModuleName][]domain.ModuleName

	// edges keyed by (source,target) for idempotent registration.
	edges map[edgeKey]domain.DependencyEdge

	store ports.GraphStore
}

type edgeKey struct {
	source, target domain.ModuleName
}

// NewDependencyGraph returns an empty graph. If store is non-nil every
// accepted edge is written through to it.
func NewDependencyGraph(store ports.GraphStore) *DependencyGraph {
	return &DependencyGraph{
		dependents: make(map[domain.ModuleName][]domain.ModuleName),
		edges:      make(map[edgeKey]domain.DependencyEdge),
		store:      store,
	}
}

// LoadFromStore rebuilds the in-memory adjacency from persisted edges.
func (g *DependencyGraph) LoadFromStore(ctx context.Context) error {
	if g.store == nil {
		return nil
	}

	edges, err := g.store.Edges(ctx)
	if err != nil {
		return fmt.Errorf("failed to load graph edges: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range edges {
		g.insertLocked(e)
	}
	return nil
}

// AddEdge registers an edge. A duplicate (source,target) registration is a
// no-op returning the existing edge unchanged; it never errors on duplicates.
func (g *DependencyGraph) AddEdge(ctx context.Context, edge domain.DependencyEdge) (domain.DependencyEdge, error) {
	g.mu.Lock()
	key := edgeKey{edge.Source, edge.Target}
	if existing, ok := g.edges[key]; ok {
		g.mu.Unlock()
		return existing, nil
	}
	g.insertLocked(edge)
	g.mu.Unlock()

	if g.store != nil {
		if _, err := g.store.PutEdge(ctx, edge); err != nil {
			return edge, fmt.Errorf("failed to persist edge %s->%s: %w", edge.Source, edge.Target, err)
		}
	}
	return edge, nil
}

func (g *DependencyGraph) insertLocked(edge domain.DependencyEdge) {
	key := edgeKey{edge.Source, edge.Target}
	if _, ok := g.edges[key]; ok {
		return
	}
	g.edges[key] = edge
	g.dependents[edge.Source] = append(g.dependents[edge.Source], edge.Target)
}

// Edge returns the registered edge from source to target, if any.
func (g *DependencyGraph) Edge(source, target domain.ModuleName) (domain.DependencyEdge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[edgeKey{source, target}]
	return e, ok
}

// DirectDependents returns the modules that depend on module, in lexical
// order for reproducibility.
func (g *DependencyGraph) DirectDependents(module domain.ModuleName) []domain.ModuleName {
	g.mu.RLock()
	out := append([]domain.ModuleName(nil), g.dependents[module]...)
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TransitiveDependents expands DirectDependents breadth-first. The visited
// set makes it cycle-safe; maxDepth is a defensive termination bound for
// accidentally cyclic graphs, not a business rule.
func (g *DependencyGraph) TransitiveDependents(module domain.ModuleName, maxDepth int) []domain.ModuleName {
	if maxDepth < 1 {
		maxDepth = 1
	}

	visited := map[domain.ModuleName]bool{module: true}
	var result []domain.ModuleName

	frontier := []domain.ModuleName{module}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []domain.ModuleName
		for _, m := range frontier {
			for _, dep := range g.DirectDependents(m) {
				if visited[dep] {
					continue
				}
				visited[dep] = true
				result = append(result, dep)
				next = append(next, dep)
			}
		}
		frontier = next
	}

	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// RequiredSources returns the sources of required edges into module,
// restricted to the given module set. Lexically ordered.
func (g *DependencyGraph) RequiredSources(module domain.ModuleName, within map[domain.ModuleName]bool) []domain.ModuleName {
	g.mu.RLock()
	var out []domain.ModuleName
	for key, e := range g.edges {
		if key.target != module || !e.Required {
			continue
		}
		if within != nil && !within[key.source] {
			continue
		}
		out = append(out, key.source)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultEdges is the edge set of the learning ecosystem: the study plan is
// derived from the curriculum, assignments require the study plan, and
// targets and recommendations refresh from their upstream artifacts.
func DefaultEdges() []domain.DependencyEdge {
	return []domain.DependencyEdge{
		{Source: domain.ModuleCurriculum, Target: domain.ModuleStudyPlan, Kind: domain.EdgeKindData, Strength: 0.9, Required: true},
		{Source: domain.ModuleStudyPlan, Target: domain.ModuleAssignments, Kind: domain.EdgeKindData, Strength: 0.8, Required: true},
		{Source: domain.ModuleAssignments, Target: domain.ModuleTargets, Kind: domain.EdgeKindTrigger, Strength: 0.6, Required: false},
		{Source: domain.ModuleCurriculum, Target: domain.ModuleRecommendations, Kind: domain.EdgeKindData, Strength: 0.5, Required: false},
		{Source: domain.ModuleTargets, Target: domain.ModuleRecommendations, Kind: domain.EdgeKindSequence, Strength: 0.4, Required: false},
	}
}
