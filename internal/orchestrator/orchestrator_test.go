package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/learnloop/ecosync/internal/domain"
	"github.com/learnloop/ecosync/internal/ports"
	eventsmemory "github.com/learnloop/ecosync/pkg/adapters/events/memory"
	"github.com/learnloop/ecosync/pkg/adapters/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type managerFixture struct {
	manager *Manager
	store   *memory.Store
	bus     *eventsmemory.Bus

	mu     sync.Mutex
	events []ports.Event
}

// newManagerFixture wires a manager over in-memory adapters. The graph has
// a -> b (required) and the "enroll" trigger pulls in module a.
func newManagerFixture(t *testing.T, registry ports.HandlerRegistry) *managerFixture {
	t.Helper()

	store := memory.NewStore()
	bus := eventsmemory.NewBus()
	logger := zap.NewNop()

	graph := NewDependencyGraph(store)
	_, err := graph.AddEdge(context.Background(), edge("a", "b", true))
	require.NoError(t, err)

	planner := NewPlanner(graph, TriggerTable{"enroll": {"a"}}, 10)
	engine := NewEngine(graph, registry, nopMetrics{}, bus, logger, 0, time.Second)
	synchronizer := NewSynchronizer(store, logger, 3)
	analyzer := NewAnalyzer(DefaultFeedbackThresholds())
	decisionLog := NewDecisionLog(store, bus, logger)

	f := &managerFixture{
		store: store,
		bus:   bus,
	}
	f.manager = NewManager(planner, engine, synchronizer, analyzer, decisionLog,
		store, bus, nopMetrics{}, logger, 5*time.Second)

	require.NoError(t, bus.Subscribe(context.Background(), TopicRunEvents, func(ctx context.Context, event ports.Event) error {
		f.mu.Lock()
		f.events = append(f.events, event)
		f.mu.Unlock()
		return nil
	}))

	return f
}

func (f *managerFixture) runEvents() []ports.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.Event(nil), f.events...)
}

func TestOrchestrateEndToEnd(t *testing.T) {
	f := newManagerFixture(t, mapRegistry{
		"a": succeedHandler(4),
		"b": succeedHandler(2),
	})

	trigger := domain.IntegrationTrigger{Type: "enroll", UserID: "user-1"}
	summary, err := f.manager.Orchestrate(context.Background(), trigger)
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, "user-1", summary.UserID)
	assert.Equal(t, "enroll", summary.Trigger)
	assert.Equal(t, 2, summary.IntegrationsExecuted)
	assert.Equal(t, []domain.ModuleName{"a", "b"}, summary.ExecutionSequence)
	assert.Equal(t, 100.0, summary.SuccessRatePercent)
	assert.Empty(t, summary.SyncError)

	// State was synchronized for both modules.
	state, err := f.store.GetState(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.Version)
	assert.True(t, state.SynchronizationStatus["a"])
	assert.True(t, state.SynchronizationStatus["b"])

	// The audit trail holds one entry for the run.
	entries, err := f.store.ListByUser(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, summary.OrchestrationID, entries[0].Decision["orchestration_id"])

	// Run lifecycle events were published.
	events := f.runEvents()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventRunStarted, events[0].Type)
	assert.Equal(t, domain.EventRunCompleted, events[1].Type)

	// The summary is retained for later lookup.
	got, err := f.manager.GetSummary(context.Background(), summary.OrchestrationID)
	require.NoError(t, err)
	assert.Equal(t, summary.OrchestrationID, got.OrchestrationID)
}

func TestOrchestrateAllFailedStillReturnsSummary(t *testing.T) {
	f := newManagerFixture(t, mapRegistry{
		"a": failHandler("upstream boom"),
		"b": succeedHandler(1),
	})

	summary, err := f.manager.Orchestrate(context.Background(),
		domain.IntegrationTrigger{Type: "enroll", UserID: "user-1"})
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, 0.0, summary.SuccessRatePercent)
	a, _ := resultByModule(summary.Results, "a")
	assert.Equal(t, domain.StatusFailed, a.Status)
	b, _ := resultByModule(summary.Results, "b")
	assert.Equal(t, domain.StatusSkipped, b.Status)

	// Only executed modules count; the skip is excluded.
	assert.Equal(t, 1, summary.IntegrationsExecuted)
}

func TestOrchestrateUnknownTrigger(t *testing.T) {
	f := newManagerFixture(t, mapRegistry{})

	_, err := f.manager.Orchestrate(context.Background(),
		domain.IntegrationTrigger{Type: "no_such_trigger", UserID: "user-1"})
	assert.ErrorIs(t, err, domain.ErrUnknownTrigger)
}

func TestOrchestrateSyncConflictReturnsSummaryWithError(t *testing.T) {
	f := newManagerFixture(t, mapRegistry{
		"a": succeedHandler(1),
		"b": succeedHandler(1),
	})

	// Replace the synchronizer's store with one that always conflicts.
	broken := &conflictStore{Store: memory.NewStore(), conflicts: 1 << 20}
	f.manager.synchronizer = NewSynchronizer(broken, zap.NewNop(), 2)

	summary, err := f.manager.Orchestrate(context.Background(),
		domain.IntegrationTrigger{Type: "enroll", UserID: "user-1"})

	// The conflict surfaces as an error, but the results are not lost.
	require.ErrorIs(t, err, domain.ErrSyncConflict)
	require.NotNil(t, summary)
	assert.Equal(t, 100.0, summary.SuccessRatePercent)
	assert.NotEmpty(t, summary.SyncError)
}

func TestSubmitRunsInBackground(t *testing.T) {
	f := newManagerFixture(t, mapRegistry{
		"a": succeedHandler(1),
		"b": succeedHandler(1),
	})

	id, err := f.manager.Submit(context.Background(),
		domain.IntegrationTrigger{Type: "enroll", UserID: "user-1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	summary := waitForSummary(t, f.manager, id)
	assert.Equal(t, 100.0, summary.SuccessRatePercent)
}

func TestCancelRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	f := newManagerFixture(t, mapRegistry{
		"a": ports.HandlerFunc(func(ctx context.Context, mctx ports.ModuleContext) (ports.HandlerResult, error) {
			once.Do(func() { close(started) })
			select {
			case <-ctx.Done():
				return ports.HandlerResult{}, ctx.Err()
			case <-release:
				return ports.HandlerResult{Success: true}, nil
			}
		}),
		"b": succeedHandler(1),
	})
	defer close(release)

	id, err := f.manager.Submit(context.Background(),
		domain.IntegrationTrigger{Type: "enroll", UserID: "user-1"})
	require.NoError(t, err)

	<-started
	require.True(t, f.manager.IsActive(id))
	require.NoError(t, f.manager.CancelRun(id))

	summary := waitForSummary(t, f.manager, id)

	a, _ := resultByModule(summary.Results, "a")
	assert.Equal(t, domain.StatusFailed, a.Status)
	b, _ := resultByModule(summary.Results, "b")
	assert.Equal(t, domain.StatusSkipped, b.Status)
	assert.Equal(t, domain.SkipReasonCancelled, b.SkipReason)

	// The final lifecycle event reflects the cancellation.
	events := f.runEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventRunCancelled, events[len(events)-1].Type)

	assert.False(t, f.manager.IsActive(id))
}

func TestCancelRunUnknown(t *testing.T) {
	f := newManagerFixture(t, mapRegistry{})

	err := f.manager.CancelRun("no-such-run")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestGetSummaryUnknown(t *testing.T) {
	f := newManagerFixture(t, mapRegistry{})

	_, err := f.manager.GetSummary(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func waitForSummary(t *testing.T, m *Manager, orchestrationID string) *domain.OrchestrationSummary {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		summary, err := m.GetSummary(context.Background(), orchestrationID)
		if err == nil {
			return summary
		}
		if !errors.Is(err, domain.ErrRunNotFound) {
			t.Fatalf("unexpected error waiting for summary: %v", err)
		}
		select {
		case <-deadline:
			t.Fatalf("summary for %s never appeared", orchestrationID)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
