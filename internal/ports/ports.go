// Package ports defines the interfaces between the orchestration core and
// its adapters: storage, events, metrics, LLM access and module handlers.
// Production backends live under pkg/adapters; in-memory implementations
// back the tests.
package ports

import (
	"context"
	"time"

	"github.com/learnloop/ecosync/internal/domain"
)

// GraphStore persists dependency edges. Registration is rare and idempotent;
// reads dominate.
type GraphStore interface {
	// PutEdge inserts an edge if no edge with the same (source,target)
	// exists, returning the stored edge either way.
	PutEdge(ctx context.Context, edge domain.DependencyEdge) (domain.DependencyEdge, error)

	// Edges returns every stored edge.
	Edges(ctx context.Context) ([]domain.DependencyEdge, error)
}

// StateStore persists per-user ecosystem state with optimistic versioning.
type StateStore interface {
	// GetState returns the state for a user, or domain.ErrStateNotFound.
	GetState(ctx context.Context, userID string) (*domain.EcosystemState, error)

	// SaveState writes the state if expectedVersion matches the stored
	// version (0 for a first write), returning domain.ErrVersionMismatch
	// when the write loses a race. The stored version becomes
	// state.Version.
	SaveState(ctx context.Context, state *domain.EcosystemState, expectedVersion int64) error
}

// DecisionStore is the append-only sink for orchestration audit entries.
// The core exposes no update or delete; retention is external.
type DecisionStore interface {
	Append(ctx context.Context, entry *domain.DecisionLogEntry) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.DecisionLogEntry, error)
}

// Event is a run-lifecycle notification published on the bus.
type Event struct {
	ID              string                 `json:"id"`
	Type            string                 `json:"type"`
	OrchestrationID string                 `json:"orchestration_id"`
	UserID          string                 `json:"user_id"`
	Module          domain.ModuleName      `json:"module,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
	Data            map[string]interface{} `json:"data,omitempty"`
}

// EventHandler processes a single event.
type EventHandler func(ctx context.Context, event Event) error

// EventBus decouples the orchestrator from event consumers (websocket
// streaming, external analytics).
type EventBus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// MetricsCollector records orchestration metrics.
type MetricsCollector interface {
	RecordRunStarted(trigger string)
	RecordRunCompleted(trigger string, successRate float64, duration time.Duration)
	RecordModuleExecuted(module domain.ModuleName, status domain.ExecutionStatus, duration time.Duration)
	SetActiveRuns(count int)
}

// ModuleContext carries the trigger context into a module handler.
type ModuleContext struct {
	OrchestrationID string
	UserID          string
	Trigger         string
	CourseIDs       []string
	Metadata        map[string]interface{}

	// Upstream holds the results of already-completed modules this run,
	// keyed by module. Handlers may read, never write.
	Upstream map[domain.ModuleName]domain.ExecutionResult
}

// HandlerResult is the boundary shape module handlers return. Handlers must
// translate every internal failure into Success=false rather than panicking;
// the engine treats an escaped panic identically to a failure.
type HandlerResult struct {
	Success        bool
	ItemsProcessed int
	Details        map[string]interface{}
}

// ModuleHandler performs the actual integration work for one module.
// Implementations must be safe to retry and must honor ctx cancellation.
type ModuleHandler interface {
	Run(ctx context.Context, mctx ModuleContext) (HandlerResult, error)
}

// HandlerFunc adapts a function to the ModuleHandler interface.
type HandlerFunc func(ctx context.Context, mctx ModuleContext) (HandlerResult, error)

// Run implements ModuleHandler.
func (f HandlerFunc) Run(ctx context.Context, mctx ModuleContext) (HandlerResult, error) {
	return f(ctx, mctx)
}

// HandlerRegistry resolves modules to their handlers.
type HandlerRegistry interface {
	Handler(module domain.ModuleName) (ModuleHandler, bool)
	Modules() []domain.ModuleName
}

// LLMMessage is a single turn of an LLM conversation.
type LLMMessage struct {
	Role    string
	Content string
}

// LLMRequest is a provider-neutral completion request.
type LLMRequest struct {
	Model       string
	System      string
	Messages    []LLMMessage
	Temperature float64
	MaxTokens   int
}

// LLMResponse is a provider-neutral completion response.
type LLMResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// LLMClient generates text completions. Module handlers depend on this port
// rather than a concrete provider SDK.
type LLMClient interface {
	GenerateCompletion(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
}
