package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/learnloop/ecosync/internal/domain"
	"github.com/learnloop/ecosync/internal/ports"
)

// nopMetrics satisfies the metrics port without recording anything.
type nopMetrics struct{}

func (nopMetrics) RecordRunStarted(string)                                                    {}
func (nopMetrics) RecordRunCompleted(string, float64, time.Duration)                          {}
func (nopMetrics) RecordModuleExecuted(domain.ModuleName, domain.ExecutionStatus, time.Duration) {}
func (nopMetrics) SetActiveRuns(int)                                                          {}

// mapRegistry is a minimal handler registry for engine tests.
type mapRegistry map[domain.ModuleName]ports.ModuleHandler

func (r mapRegistry) Handler(module domain.ModuleName) (ports.ModuleHandler, bool) {
	h, ok := r[module]
	return h, ok
}

func (r mapRegistry) Modules() []domain.ModuleName {
	out := make([]domain.ModuleName, 0, len(r))
	for m := range r {
		out = append(out, m)
	}
	return out
}

func succeedHandler(items int) ports.ModuleHandler {
	return ports.HandlerFunc(func(ctx context.Context, mctx ports.ModuleContext) (ports.HandlerResult, error) {
		return ports.HandlerResult{Success: true, ItemsProcessed: items}, nil
	})
}

func failHandler(msg string) ports.ModuleHandler {
	return ports.HandlerFunc(func(ctx context.Context, mctx ports.ModuleContext) (ports.HandlerResult, error) {
		return ports.HandlerResult{
			Success: false,
			Details: map[string]interface{}{"error": msg},
		}, nil
	})
}

// recorder tracks handler invocations so tests can assert which modules ran.
type recorder struct {
	mu      sync.Mutex
	invoked []domain.ModuleName
}

func (r *recorder) record(m domain.ModuleName) {
	r.mu.Lock()
	r.invoked = append(r.invoked, m)
	r.mu.Unlock()
}

func (r *recorder) calls() []domain.ModuleName {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ModuleName(nil), r.invoked...)
}

func (r *recorder) recording(m domain.ModuleName, inner ports.ModuleHandler) ports.ModuleHandler {
	return ports.HandlerFunc(func(ctx context.Context, mctx ports.ModuleContext) (ports.HandlerResult, error) {
		r.record(m)
		return inner.Run(ctx, mctx)
	})
}

func resultByModule(results []domain.ExecutionResult, module domain.ModuleName) (domain.ExecutionResult, bool) {
	for _, r := range results {
		if r.Module == module {
			return r, true
		}
	}
	return domain.ExecutionResult{}, false
}
