package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/learnloop/ecosync/internal/domain"
	"github.com/learnloop/ecosync/internal/ports"
	"go.uber.org/zap"
)

// Engine runs an IntegrationPlan to completion, one layer at a time. Each
// layer is a barrier: every module in it reaches a terminal state before the
// next layer starts. Failures never cross module boundaries; the engine
// itself holds no durable state between runs.
type Engine struct {
	graph         *DependencyGraph
	registry      ports.HandlerRegistry
	metrics       ports.MetricsCollector
	bus           ports.EventBus
	logger        *zap.Logger
	workerLimit   int
	moduleTimeout time.Duration
}

// NewEngine creates an execution engine. workerLimit bounds concurrent
// handlers within a layer; 0 means the layer size is the bound.
func NewEngine(
	graph *DependencyGraph,
	registry ports.HandlerRegistry,
	metrics ports.MetricsCollector,
	bus ports.EventBus,
	logger *zap.Logger,
	workerLimit int,
	moduleTimeout time.Duration,
) *Engine {
	return &Engine{
		graph:         graph,
		registry:      registry,
		metrics:       metrics,
		bus:           bus,
		logger:        logger,
		workerLimit:   workerLimit,
		moduleTimeout: moduleTimeout,
	}
}

// Execute runs every layer of the plan and returns one ExecutionResult per
// module, ordered by layer then module name. It never returns an error for
// module failures; those are captured in the results.
func (e *Engine) Execute(ctx context.Context, plan *domain.IntegrationPlan, trigger domain.IntegrationTrigger) []domain.ExecutionResult {
	completed := make(map[domain.ModuleName]domain.ExecutionResult)
	var results []domain.ExecutionResult

	inSet := make(map[domain.ModuleName]bool, len(plan.RequiredModules))
	for _, m := range plan.RequiredModules {
		inSet[m] = true
	}

	for layerIdx, layer := range plan.ExecutionLayers {
		layerResults := e.executeLayer(ctx, plan, trigger, layer, layerIdx, inSet, completed)
		for _, r := range layerResults {
			completed[r.Module] = r
			results = append(results, r)
		}
	}

	return results
}

// executeLayer runs one layer's modules concurrently and waits for all of
// them. Results come back in the layer's (lexical) module order.
func (e *Engine) executeLayer(
	ctx context.Context,
	plan *domain.IntegrationPlan,
	trigger domain.IntegrationTrigger,
	layer []domain.ModuleName,
	layerIdx int,
	inSet map[domain.ModuleName]bool,
	completed map[domain.ModuleName]domain.ExecutionResult,
) []domain.ExecutionResult {
	results := make([]domain.ExecutionResult, len(layer))

	limit := e.workerLimit
	if limit <= 0 || limit > len(layer) {
		limit = len(layer)
	}
	sem := make(chan struct{}, limit)

	// Upstream results are frozen for the whole layer; completed is only
	// written between layers.
	upstream := snapshotUpstream(completed)

	var wg sync.WaitGroup
	for i, module := range layer {
		// Skip decisions are taken before dispatch so a module whose
		// required upstream did not succeed never reaches its handler.
		if r, skip := e.skipResult(ctx, module, inSet, completed); skip {
			results[i] = r
			e.finishModule(ctx, plan, r, layerIdx)
			continue
		}

		wg.Add(1)
		go func(i int, module domain.ModuleName) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			r := e.runModule(ctx, plan, trigger, module, upstream)
			results[i] = r
			e.finishModule(ctx, plan, r, layerIdx)
		}(i, module)
	}
	wg.Wait()

	return results
}

// skipResult decides whether a module must be skipped without invoking its
// handler: run cancellation, or a required upstream that did not succeed.
func (e *Engine) skipResult(
	ctx context.Context,
	module domain.ModuleName,
	inSet map[domain.ModuleName]bool,
	completed map[domain.ModuleName]domain.ExecutionResult,
) (domain.ExecutionResult, bool) {
	if ctx.Err() != nil {
		return domain.ExecutionResult{
			Module:     module,
			Status:     domain.StatusSkipped,
			SkipReason: domain.SkipReasonCancelled,
		}, true
	}

	for _, src := range e.graph.RequiredSources(module, inSet) {
		up, ok := completed[src]
		if !ok {
			// Source is in the same or a later layer (cyclic plans);
			// best-effort modules run regardless.
			continue
		}
		if !up.Succeeded() {
			return domain.ExecutionResult{
				Module:     module,
				Status:     domain.StatusSkipped,
				SkipReason: fmt.Sprintf("required dependency %s %s", src, up.Status),
			}, true
		}
	}

	return domain.ExecutionResult{}, false
}

// runModule invokes the module handler with a bounded timeout, translating
// every failure mode (error, timeout, panic, missing handler) into a result.
func (e *Engine) runModule(
	ctx context.Context,
	plan *domain.IntegrationPlan,
	trigger domain.IntegrationTrigger,
	module domain.ModuleName,
	upstream map[domain.ModuleName]domain.ExecutionResult,
) (result domain.ExecutionResult) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("module handler panicked",
				zap.String("orchestration_id", plan.OrchestrationID),
				zap.String("module", string(module)),
				zap.Any("panic", rec))
			result = domain.ExecutionResult{
				Module:   module,
				Status:   domain.StatusFailed,
				Duration: time.Since(start),
				Details:  map[string]interface{}{"error": fmt.Sprintf("handler panic: %v", rec)},
			}
		}
	}()

	handler, ok := e.registry.Handler(module)
	if !ok {
		return domain.ExecutionResult{
			Module:   module,
			Status:   domain.StatusFailed,
			Duration: time.Since(start),
			Details:  map[string]interface{}{"error": "no handler registered"},
		}
	}

	e.publishEvent(ctx, plan, domain.EventModuleStarted, module, nil)

	mctx := ports.ModuleContext{
		OrchestrationID: plan.OrchestrationID,
		UserID:          plan.UserID,
		Trigger:         plan.Trigger,
		CourseIDs:       trigger.CourseIDs,
		Metadata:        trigger.Metadata,
		Upstream:        upstream,
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if e.moduleTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.moduleTimeout)
		defer cancel()
	}

	hr, err := handler.Run(runCtx, mctx)
	elapsed := time.Since(start)

	switch {
	case runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		return domain.ExecutionResult{
			Module:     module,
			Status:     domain.StatusFailed,
			Duration:   elapsed,
			SkipReason: domain.SkipReasonTimeout,
			Details:    map[string]interface{}{"error": "module execution timed out"},
		}
	case err != nil:
		return domain.ExecutionResult{
			Module:   module,
			Status:   domain.StatusFailed,
			Duration: elapsed,
			Details:  map[string]interface{}{"error": err.Error()},
		}
	case !hr.Success:
		details := hr.Details
		if details == nil {
			details = map[string]interface{}{"error": "handler reported failure"}
		}
		return domain.ExecutionResult{
			Module:         module,
			Status:         domain.StatusFailed,
			Duration:       elapsed,
			ItemsProcessed: hr.ItemsProcessed,
			Details:        details,
		}
	default:
		return domain.ExecutionResult{
			Module:         module,
			Status:         domain.StatusSuccess,
			Duration:       elapsed,
			ItemsProcessed: hr.ItemsProcessed,
			Details:        hr.Details,
		}
	}
}

// finishModule records metrics, logs and publishes the terminal event for a
// module result.
func (e *Engine) finishModule(ctx context.Context, plan *domain.IntegrationPlan, r domain.ExecutionResult, layerIdx int) {
	e.metrics.RecordModuleExecuted(r.Module, r.Status, r.Duration)

	e.logger.Info("module execution finished",
		zap.String("orchestration_id", plan.OrchestrationID),
		zap.String("user_id", plan.UserID),
		zap.String("module", string(r.Module)),
		zap.String("status", string(r.Status)),
		zap.Int("layer", layerIdx),
		zap.Duration("duration", r.Duration))

	eventType := domain.EventModuleCompleted
	switch r.Status {
	case domain.StatusFailed:
		eventType = domain.EventModuleFailed
	case domain.StatusSkipped:
		eventType = domain.EventModuleSkipped
	}

	data := map[string]interface{}{
		"status":      string(r.Status),
		"duration_ms": r.Duration.Milliseconds(),
	}
	if r.SkipReason != "" {
		data["skip_reason"] = r.SkipReason
	}
	e.publishEvent(ctx, plan, eventType, r.Module, data)
}

func (e *Engine) publishEvent(ctx context.Context, plan *domain.IntegrationPlan, eventType string, module domain.ModuleName, data map[string]interface{}) {
	if e.bus == nil {
		return
	}
	event := ports.Event{
		ID:              uuid.New().String(),
		Type:            eventType,
		OrchestrationID: plan.OrchestrationID,
		UserID:          plan.UserID,
		Module:          module,
		Timestamp:       time.Now(),
		Data:            data,
	}
	if err := e.bus.Publish(ctx, TopicModuleEvents, event); err != nil {
		e.logger.Error("failed to publish module event",
			zap.String("event_type", eventType),
			zap.String("module", string(module)),
			zap.Error(err))
	}
}

func snapshotUpstream(completed map[domain.ModuleName]domain.ExecutionResult) map[domain.ModuleName]domain.ExecutionResult {
	out := make(map[domain.ModuleName]domain.ExecutionResult, len(completed))
	for k, v := range completed {
		out[k] = v
	}
	return out
}
