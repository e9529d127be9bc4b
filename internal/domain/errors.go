package domain

import "errors"

// Error taxonomy of the orchestration core. Handler failures, timeouts and
// upstream skips are recovered into ExecutionResults and never escape the
// engine; the sentinels below cover the conditions that do reach callers.
var (
	// ErrUnknownTrigger means the trigger type has no registered module set.
	ErrUnknownTrigger = errors.New("unknown trigger type")

	// ErrRunNotFound means the orchestration ID is not tracked or retained.
	ErrRunNotFound = errors.New("orchestration run not found")

	// ErrRunTerminal means a cancel was requested for an already-finished run.
	ErrRunTerminal = errors.New("orchestration run already in terminal state")

	// ErrSyncConflict means the state synchronizer exhausted its retries
	// against concurrent EcosystemState writers. The run's results are
	// still valid and returned alongside it.
	ErrSyncConflict = errors.New("ecosystem state write conflict")

	// ErrStateNotFound is returned by state stores for users with no state.
	ErrStateNotFound = errors.New("ecosystem state not found")

	// ErrVersionMismatch is returned by state stores when a versioned write
	// loses a race. The synchronizer retries with a fresh read.
	ErrVersionMismatch = errors.New("ecosystem state version mismatch")
)

// Skip reasons recorded on ExecutionResults the engine never ran.
const (
	SkipReasonCancelled = "cancelled"
	SkipReasonTimeout   = "timeout"
)

// Event types published on the bus during a run.
const (
	EventRunStarted      = "run.started"
	EventRunCompleted    = "run.completed"
	EventRunCancelled    = "run.cancelled"
	EventModuleStarted   = "module.started"
	EventModuleCompleted = "module.completed"
	EventModuleFailed    = "module.failed"
	EventModuleSkipped   = "module.skipped"
)
