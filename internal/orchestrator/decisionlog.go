package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/learnloop/ecosync/internal/domain"
	"github.com/learnloop/ecosync/internal/ports"
	"go.uber.org/zap"
)

// engineName tags decision log entries with the producing engine.
const engineName = "integration-orchestrator"

// DecisionLog is the append-only audit trail of orchestration runs. Entries
// are written through a DecisionStore and mirrored on the event bus for
// external analytics. The core never updates or deletes them.
type DecisionLog struct {
	store  ports.DecisionStore
	bus    ports.EventBus
	logger *zap.Logger
}

// NewDecisionLog creates a decision log over the given store.
func NewDecisionLog(store ports.DecisionStore, bus ports.EventBus, logger *zap.Logger) *DecisionLog {
	return &DecisionLog{store: store, bus: bus, logger: logger}
}

// Record appends one entry summarizing a run's plan and outcome. A failed
// append is logged, not propagated: the audit trail must never fail a run
// whose results are already in hand.
func (d *DecisionLog) Record(
	ctx context.Context,
	trigger domain.IntegrationTrigger,
	plan *domain.IntegrationPlan,
	results []domain.ExecutionResult,
	report domain.FeedbackReport,
) {
	statuses := make(map[string]string, len(results))
	for _, r := range results {
		statuses[string(r.Module)] = string(r.Status)
	}

	layers := make([][]string, len(plan.ExecutionLayers))
	for i, layer := range plan.ExecutionLayers {
		for _, m := range layer {
			layers[i] = append(layers[i], string(m))
		}
	}

	entry := &domain.DecisionLogEntry{
		ID:      uuid.New().String(),
		UserID:  trigger.UserID,
		Trigger: trigger.Type,
		Engine:  engineName,
		InputSummary: map[string]interface{}{
			"course_ids":       trigger.CourseIDs,
			"required_modules": moduleNames(plan.RequiredModules),
		},
		Decision: map[string]interface{}{
			"orchestration_id": plan.OrchestrationID,
			"execution_layers": layers,
			"cyclic_modules":   moduleNames(plan.CyclicModules),
		},
		Confidence: plan.Confidence,
		Result: map[string]interface{}{
			"module_statuses":   statuses,
			"success_rate":      report.SuccessRate,
			"total_duration_ms": report.TotalDuration.Milliseconds(),
		},
		CreatedAt: time.Now(),
	}

	if err := d.store.Append(ctx, entry); err != nil {
		d.logger.Error("failed to append decision log entry",
			zap.String("orchestration_id", plan.OrchestrationID),
			zap.String("user_id", trigger.UserID),
			zap.Error(err))
		return
	}

	d.logger.Debug("decision log entry recorded",
		zap.String("orchestration_id", plan.OrchestrationID),
		zap.String("entry_id", entry.ID))
}

// ListByUser returns the most recent entries for a user.
func (d *DecisionLog) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.DecisionLogEntry, error) {
	entries, err := d.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decision log entries: %w", err)
	}
	return entries, nil
}

func moduleNames(modules []domain.ModuleName) []string {
	out := make([]string, len(modules))
	for i, m := range modules {
		out[i] = string(m)
	}
	return out
}
