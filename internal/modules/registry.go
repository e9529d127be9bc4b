// Package modules ships the built-in integration module handlers of the
// learning platform: curriculum synthesis, study plan and assignment
// generation, target adjustment and recommendation refresh. Each handler
// wraps a call to the LLM port and translates every internal failure into
// the boundary result shape; nothing here panics outward.
package modules

import (
	"sort"
	"sync"

	"github.com/learnloop/ecosync/internal/domain"
	"github.com/learnloop/ecosync/internal/ports"
	"go.uber.org/zap"
)

// Registry maps module names to handlers. Registration happens at startup;
// lookups dominate afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.ModuleName]ports.ModuleHandler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.ModuleName]ports.ModuleHandler)}
}

// Register binds a handler to a module name, replacing any previous binding.
func (r *Registry) Register(module domain.ModuleName, handler ports.ModuleHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[module] = handler
}

// Handler implements ports.HandlerRegistry.
func (r *Registry) Handler(module domain.ModuleName) (ports.ModuleHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[module]
	return h, ok
}

// Modules implements ports.HandlerRegistry, in lexical order.
func (r *Registry) Modules() []domain.ModuleName {
	r.mu.RLock()
	out := make([]domain.ModuleName, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultRegistry returns a registry with every built-in handler bound.
func DefaultRegistry(llm ports.LLMClient, cfg GeneratorConfig, logger *zap.Logger) *Registry {
	r := NewRegistry()
	r.Register(domain.ModuleCurriculum, NewCurriculumHandler(llm, cfg, logger))
	r.Register(domain.ModuleStudyPlan, NewStudyPlanHandler(llm, cfg, logger))
	r.Register(domain.ModuleAssignments, NewAssignmentsHandler(llm, cfg, logger))
	r.Register(domain.ModuleTargets, NewTargetsHandler(logger))
	r.Register(domain.ModuleRecommendations, NewRecommendationsHandler(llm, cfg, logger))
	return r
}
