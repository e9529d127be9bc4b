package orchestrator

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/learnloop/ecosync/internal/domain"
)

// Trigger types recognized by the default planner table.
const (
	TriggerCourseEnrollment = "course_enrollment"
	TriggerCourseCompletion = "course_completion"
	TriggerAssessmentResult = "assessment_result"
	TriggerGoalUpdated      = "goal_updated"
	TriggerProfileUpdated   = "profile_updated"
)

// TriggerTable maps trigger types to the modules they directly require.
// Business mappings are configuration loaded at startup, not core logic.
type TriggerTable map[string][]domain.ModuleName

// DefaultTriggerTable is the mapping shipped with the platform.
func DefaultTriggerTable() TriggerTable {
	return TriggerTable{
		TriggerCourseEnrollment: {
			domain.ModuleCurriculum,
			domain.ModuleStudyPlan,
			domain.ModuleAssignments,
			domain.ModuleRecommendations,
		},
		TriggerCourseCompletion: {
			domain.ModuleTargets,
			domain.ModuleRecommendations,
		},
		TriggerAssessmentResult: {
			domain.ModuleStudyPlan,
			domain.ModuleTargets,
		},
		TriggerGoalUpdated: {
			domain.ModuleTargets,
			domain.ModuleStudyPlan,
		},
		TriggerProfileUpdated: {
			domain.ModuleRecommendations,
		},
	}
}

// moduleDurations is the per-module duration table used for plan estimates.
// Values reflect observed p50 handler latencies, dominated by LLM calls.
var moduleDurations = map[domain.ModuleName]time.Duration{
	domain.ModuleCurriculum:      8 * time.Second,
	domain.ModuleStudyPlan:       6 * time.Second,
	domain.ModuleAssignments:     5 * time.Second,
	domain.ModuleTargets:         2 * time.Second,
	domain.ModuleRecommendations: 3 * time.Second,
}

const defaultModuleDuration = 4 * time.Second

// Planner translates triggers into dependency-respecting execution plans.
type Planner struct {
	graph    *DependencyGraph
	triggers TriggerTable
	maxDepth int
}

// NewPlanner creates a planner over the given graph and trigger table.
// maxDepth bounds transitive dependent expansion.
func NewPlanner(graph *DependencyGraph, triggers TriggerTable, maxDepth int) *Planner {
	if triggers == nil {
		triggers = DefaultTriggerTable()
	}
	if maxDepth < 1 {
		maxDepth = 10
	}
	return &Planner{graph: graph, triggers: triggers, maxDepth: maxDepth}
}

// RequiredModules resolves a trigger type to its direct module set closed
// under transitive dependents, so anything the direct set feeds is refreshed
// too. Returns domain.ErrUnknownTrigger for unregistered trigger types.
func (p *Planner) RequiredModules(triggerType string) ([]domain.ModuleName, error) {
	direct, ok := p.triggers[triggerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTrigger, triggerType)
	}

	set := make(map[domain.ModuleName]bool, len(direct))
	for _, m := range direct {
		set[m] = true
		for _, dep := range p.graph.TransitiveDependents(m, p.maxDepth) {
			set[dep] = true
		}
	}

	out := make([]domain.ModuleName, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Plan computes the layered execution order for the required module set.
// Modules caught in a dependency cycle land in a final best-effort layer and
// are flagged on the plan rather than failing it.
func (p *Planner) Plan(userID, triggerType string, required []domain.ModuleName) *domain.IntegrationPlan {
	layers, cyclic := p.layer(required)

	var estimated time.Duration
	for _, m := range required {
		d, ok := moduleDurations[m]
		if !ok {
			d = defaultModuleDuration
		}
		estimated += d
	}

	return &domain.IntegrationPlan{
		OrchestrationID:   uuid.New().String(),
		UserID:            userID,
		Trigger:           triggerType,
		RequiredModules:   append([]domain.ModuleName(nil), required...),
		ExecutionLayers:   layers,
		CyclicModules:     cyclic,
		EstimatedDuration: estimated,
		Confidence:        planConfidence(len(required), len(cyclic)),
		CreatedAt:         time.Now(),
	}
}

// layer performs the layered topological sort restricted to the given set.
// Edges touching modules outside the set are ignored.
func (p *Planner) layer(required []domain.ModuleName) ([][]domain.ModuleName, []domain.ModuleName) {
	inSet := make(map[domain.ModuleName]bool, len(required))
	for _, m := range required {
		inSet[m] = true
	}

	// In-degree counts predecessors within the restricted graph.
	indegree := make(map[domain.ModuleName]int, len(required))
	successors := make(map[domain.ModuleName][]domain.ModuleName, len(required))
	for _, m := range required {
		indegree[m] = 0
	}
	for _, m := range required {
		for _, dep := range p.graph.DirectDependents(m) {
			if !inSet[dep] {
				continue
			}
			successors[m] = append(successors[m], dep)
			indegree[dep]++
		}
	}

	var layers [][]domain.ModuleName
	remaining := len(required)

	for remaining > 0 {
		var layer []domain.ModuleName
		for m, deg := range indegree {
			if deg == 0 {
				layer = append(layer, m)
			}
		}
		if len(layer) == 0 {
			break // cycle: nothing left with in-degree 0
		}

		sort.Slice(layer, func(i, j int) bool { return layer[i] < layer[j] })
		layers = append(layers, layer)

		for _, m := range layer {
			delete(indegree, m)
			remaining--
			for _, dep := range successors[m] {
				if _, ok := indegree[dep]; ok {
					indegree[dep]--
				}
			}
		}
	}

	// Whatever never reached in-degree 0 is cyclic. It still runs, in a
	// final best-effort layer, but without ordering guarantees.
	var cyclic []domain.ModuleName
	for m := range indegree {
		cyclic = append(cyclic, m)
	}
	if len(cyclic) > 0 {
		sort.Slice(cyclic, func(i, j int) bool { return cyclic[i] < cyclic[j] })
		layers = append(layers, append([]domain.ModuleName(nil), cyclic...))
	}

	return layers, cyclic
}

// planConfidence is a bounded heuristic, not a statistical model: larger
// plans and unresolved cycles derate it. Consumers may ignore it.
func planConfidence(moduleCount, cyclicCount int) float64 {
	c := 0.85 - 0.01*float64(moduleCount)
	if cyclicCount > 0 {
		c -= 0.15
	}
	if c < 0.3 {
		c = 0.3
	}
	if c > 0.95 {
		c = 0.95
	}
	return c
}
