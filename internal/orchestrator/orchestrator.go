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

// Event bus topics published by the orchestrator.
const (
	TopicRunEvents    = "run.events"
	TopicModuleEvents = "module.events"
)

// RunStore retains orchestration summaries so callers can look a run up
// after Orchestrate returns.
type RunStore interface {
	SaveSummary(ctx context.Context, summary *domain.OrchestrationSummary) error
	GetSummary(ctx context.Context, orchestrationID string) (*domain.OrchestrationSummary, error)
}

// Manager coordinates orchestration runs: planning, execution, state
// synchronization, performance feedback and audit. It tracks in-flight runs
// so they can be cancelled.
type Manager struct {
	planner      *Planner
	engine       *Engine
	synchronizer *Synchronizer
	analyzer     *Analyzer
	decisionLog  *DecisionLog
	runs         RunStore
	bus          ports.EventBus
	metrics      ports.MetricsCollector
	logger       *zap.Logger
	runTimeout   time.Duration

	// Track active runs: orchestrationID -> *runContext
	active      sync.Map
	activeCount int64
	countMu     sync.Mutex
}

// runContext holds cancellation state for a single in-flight run.
type runContext struct {
	orchestrationID string
	userID          string
	startedAt       time.Time
	cancelFunc      context.CancelFunc

	mu        sync.Mutex
	cancelled bool
	done      bool
}

// NewManager creates an orchestration manager.
func NewManager(
	planner *Planner,
	engine *Engine,
	synchronizer *Synchronizer,
	analyzer *Analyzer,
	decisionLog *DecisionLog,
	runs RunStore,
	bus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	runTimeout time.Duration,
) *Manager {
	return &Manager{
		planner:      planner,
		engine:       engine,
		synchronizer: synchronizer,
		analyzer:     analyzer,
		decisionLog:  decisionLog,
		runs:         runs,
		bus:          bus,
		metrics:      metrics,
		logger:       logger,
		runTimeout:   runTimeout,
	}
}

// Orchestrate runs the full cycle for one trigger and always returns a
// complete summary with partial-success information, even when every module
// failed. The only error conditions are an unregistered trigger type and an
// exhausted state-synchronization retry (in which case the summary is still
// returned alongside the error).
func (m *Manager) Orchestrate(ctx context.Context, trigger domain.IntegrationTrigger) (*domain.OrchestrationSummary, error) {
	plan, err := m.plan(trigger)
	if err != nil {
		return nil, err
	}
	return m.run(ctx, plan, trigger)
}

// Submit plans the run, starts it in the background and returns its
// orchestration ID immediately. The summary is retained in the run store
// once the run finishes.
func (m *Manager) Submit(ctx context.Context, trigger domain.IntegrationTrigger) (string, error) {
	plan, err := m.plan(trigger)
	if err != nil {
		return "", err
	}

	go func() {
		if _, err := m.run(context.Background(), plan, trigger); err != nil {
			m.logger.Error("background orchestration failed",
				zap.String("orchestration_id", plan.OrchestrationID),
				zap.String("user_id", trigger.UserID),
				zap.Error(err))
		}
	}()

	return plan.OrchestrationID, nil
}

// IsActive reports whether a run is currently in flight.
func (m *Manager) IsActive(orchestrationID string) bool {
	_, ok := m.active.Load(orchestrationID)
	return ok
}

func (m *Manager) plan(trigger domain.IntegrationTrigger) (*domain.IntegrationPlan, error) {
	required, err := m.planner.RequiredModules(trigger.Type)
	if err != nil {
		m.logger.Warn("orchestration rejected",
			zap.String("user_id", trigger.UserID),
			zap.String("trigger", trigger.Type),
			zap.Error(err))
		return nil, err
	}
	return m.planner.Plan(trigger.UserID, trigger.Type, required), nil
}

// run executes a planned orchestration: module execution, state
// synchronization, performance analysis, audit and summary retention.
func (m *Manager) run(ctx context.Context, plan *domain.IntegrationPlan, trigger domain.IntegrationTrigger) (*domain.OrchestrationSummary, error) {
	startedAt := time.Now()

	m.logger.Info("orchestration started",
		zap.String("orchestration_id", plan.OrchestrationID),
		zap.String("user_id", trigger.UserID),
		zap.String("trigger", trigger.Type),
		zap.Int("modules", len(plan.RequiredModules)),
		zap.Int("layers", len(plan.ExecutionLayers)),
		zap.Float64("confidence", plan.Confidence))

	if len(plan.CyclicModules) > 0 {
		m.logger.Warn("plan contains cyclic modules, executing best-effort",
			zap.String("orchestration_id", plan.OrchestrationID),
			zap.Any("cyclic_modules", plan.CyclicModules))
	}

	runCtx, cancel := context.WithTimeout(ctx, m.runTimeout)
	defer cancel()

	rc := &runContext{
		orchestrationID: plan.OrchestrationID,
		userID:          trigger.UserID,
		startedAt:       startedAt,
		cancelFunc:      cancel,
	}
	m.active.Store(plan.OrchestrationID, rc)
	defer func() {
		rc.mu.Lock()
		rc.done = true
		rc.mu.Unlock()
		m.active.Delete(plan.OrchestrationID)
		m.adjustActive(-1)
	}()
	m.adjustActive(1)

	m.metrics.RecordRunStarted(trigger.Type)
	m.publishRunEvent(ctx, plan, domain.EventRunStarted, map[string]interface{}{
		"required_modules": moduleNames(plan.RequiredModules),
		"layers":           len(plan.ExecutionLayers),
	})

	results := m.engine.Execute(runCtx, plan, trigger)

	// Synchronization and audit run on the parent context: a cancelled or
	// timed-out run still has valid results to fold in and record.
	state, syncErr := m.synchronizer.Synchronize(ctx, trigger.UserID, results)
	if syncErr != nil {
		m.logger.Error("state synchronization failed",
			zap.String("orchestration_id", plan.OrchestrationID),
			zap.String("user_id", trigger.UserID),
			zap.Error(syncErr))
	} else if state != nil {
		m.logger.Debug("ecosystem state updated",
			zap.String("user_id", trigger.UserID),
			zap.Int64("version", state.Version))
	}

	report := m.analyzer.Analyze(results)
	m.decisionLog.Record(ctx, trigger, plan, results, report)

	summary := m.buildSummary(plan, trigger, results, report, startedAt, syncErr)

	if m.runs != nil {
		if err := m.runs.SaveSummary(ctx, summary); err != nil {
			m.logger.Error("failed to retain run summary",
				zap.String("orchestration_id", plan.OrchestrationID),
				zap.Error(err))
		}
	}

	eventType := domain.EventRunCompleted
	if rc.wasCancelled() {
		eventType = domain.EventRunCancelled
	}
	m.publishRunEvent(ctx, plan, eventType, map[string]interface{}{
		"success_rate_percent": summary.SuccessRatePercent,
		"total_duration_ms":    summary.TotalDuration.Milliseconds(),
	})
	m.metrics.RecordRunCompleted(trigger.Type, report.SuccessRate, summary.TotalDuration)

	m.logger.Info("orchestration completed",
		zap.String("orchestration_id", plan.OrchestrationID),
		zap.String("user_id", trigger.UserID),
		zap.Int("executed", summary.IntegrationsExecuted),
		zap.Float64("success_rate_percent", summary.SuccessRatePercent),
		zap.Duration("duration", summary.TotalDuration))

	if syncErr != nil {
		return summary, syncErr
	}
	return summary, nil
}

// CancelRun aborts an in-flight run. Modules already executing finish their
// bounded timeout; modules not yet started are recorded as skipped.
func (m *Manager) CancelRun(orchestrationID string) error {
	val, ok := m.active.Load(orchestrationID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, orchestrationID)
	}

	rc := val.(*runContext)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.done {
		return fmt.Errorf("%w: %s", domain.ErrRunTerminal, orchestrationID)
	}
	rc.cancelled = true
	rc.cancelFunc()

	m.logger.Info("orchestration run cancelled",
		zap.String("orchestration_id", orchestrationID),
		zap.String("user_id", rc.userID))
	return nil
}

// GetSummary returns the retained summary of a finished run.
func (m *Manager) GetSummary(ctx context.Context, orchestrationID string) (*domain.OrchestrationSummary, error) {
	if m.runs == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, orchestrationID)
	}
	return m.runs.GetSummary(ctx, orchestrationID)
}

// Shutdown cancels every in-flight run.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestration manager")

	m.active.Range(func(key, value interface{}) bool {
		rc := value.(*runContext)
		rc.cancelFunc()
		return true
	})

	m.logger.Info("orchestration manager shut down complete")
	return nil
}

func (m *Manager) buildSummary(
	plan *domain.IntegrationPlan,
	trigger domain.IntegrationTrigger,
	results []domain.ExecutionResult,
	report domain.FeedbackReport,
	startedAt time.Time,
	syncErr error,
) *domain.OrchestrationSummary {
	sequence := make([]domain.ModuleName, 0, len(results))
	executed := 0
	for _, r := range results {
		sequence = append(sequence, r.Module)
		if r.Status != domain.StatusSkipped {
			executed++
		}
	}

	summary := &domain.OrchestrationSummary{
		OrchestrationID:      plan.OrchestrationID,
		UserID:               trigger.UserID,
		Trigger:              trigger.Type,
		IntegrationsExecuted: executed,
		ExecutionSequence:    sequence,
		Results:              results,
		TotalDuration:        time.Since(startedAt),
		SuccessRatePercent:   report.SuccessRate * 100,
		Optimizations:        report.Suggestions,
		CyclicModules:        plan.CyclicModules,
		StartedAt:            startedAt,
		CompletedAt:          time.Now(),
	}
	if syncErr != nil {
		summary.SyncError = syncErr.Error()
	}
	return summary
}

func (m *Manager) publishRunEvent(ctx context.Context, plan *domain.IntegrationPlan, eventType string, data map[string]interface{}) {
	if m.bus == nil {
		return
	}
	event := ports.Event{
		ID:              uuid.New().String(),
		Type:            eventType,
		OrchestrationID: plan.OrchestrationID,
		UserID:          plan.UserID,
		Timestamp:       time.Now(),
		Data:            data,
	}
	if err := m.bus.Publish(ctx, TopicRunEvents, event); err != nil {
		m.logger.Error("failed to publish run event",
			zap.String("event_type", eventType),
			zap.String("orchestration_id", plan.OrchestrationID),
			zap.Error(err))
	}
}

func (m *Manager) adjustActive(delta int64) {
	m.countMu.Lock()
	m.activeCount += delta
	count := m.activeCount
	m.countMu.Unlock()
	m.metrics.SetActiveRuns(int(count))
}

func (rc *runContext) wasCancelled() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.cancelled
}
