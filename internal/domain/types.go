package domain

import "time"

// ModuleName identifies a downstream integration target.
type ModuleName string

// Well-known modules of the learning ecosystem. The set is open: new modules
// can be registered at runtime through the graph and handler registry.
const (
	ModuleCurriculum      ModuleName = "curriculum"
	ModuleStudyPlan       ModuleName = "studyPlan"
	ModuleAssignments     ModuleName = "assignments"
	ModuleTargets         ModuleName = "targets"
	ModuleRecommendations ModuleName = "aiRecommendations"
)

// EdgeKind classifies why one module depends on another.
type EdgeKind string

const (
	EdgeKindData     EdgeKind = "data"
	EdgeKindTrigger  EdgeKind = "trigger"
	EdgeKindSequence EdgeKind = "sequence"
)

// DependencyEdge declares that Target depends on Source. Edges are created
// once and never mutated. Required means Target must not run unless Source
// succeeded in the same orchestration.
type DependencyEdge struct {
	Source   ModuleName `json:"source"`
	Target   ModuleName `json:"target"`
	Kind     EdgeKind   `json:"kind"`
	Strength float64    `json:"strength"`
	Required bool       `json:"required"`
}

// IntegrationTrigger describes why an orchestration run is requested.
// Immutable; consumed by exactly one run.
type IntegrationTrigger struct {
	Type      string                 `json:"type"`
	UserID    string                 `json:"user_id"`
	CourseIDs []string               `json:"course_ids,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// IntegrationPlan is the planner's output: which modules must run and in
// which dependency-respecting layers. Modules within a layer have no required
// edge between them and may run concurrently.
type IntegrationPlan struct {
	OrchestrationID string       `json:"orchestration_id"`
	UserID          string       `json:"user_id"`
	Trigger         string       `json:"trigger"`
	RequiredModules []ModuleName `json:"required_modules"`

	// ExecutionLayers is ordered; earlier layers complete before later
	// layers start. If CyclicModules is non-empty the final layer is a
	// best-effort layer whose ordering could not be resolved.
	ExecutionLayers [][]ModuleName `json:"execution_layers"`
	CyclicModules   []ModuleName   `json:"cyclic_modules,omitempty"`

	EstimatedDuration time.Duration `json:"estimated_duration_ms"`

	// Confidence is a bounded heuristic in [0,1], not a calibrated
	// probability. Consumers may ignore it.
	Confidence float64 `json:"confidence"`

	CreatedAt time.Time `json:"created_at"`
}

// ExecutionStatus is the terminal state of one module in one run.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusFailed  ExecutionStatus = "failed"
	StatusSkipped ExecutionStatus = "skipped"
)

// ExecutionResult records the outcome of one module in one orchestration run.
type ExecutionResult struct {
	Module         ModuleName             `json:"module"`
	Status         ExecutionStatus        `json:"status"`
	Duration       time.Duration          `json:"duration_ms"`
	ItemsProcessed int                    `json:"items_processed"`
	Details        map[string]interface{} `json:"details,omitempty"`
	SkipReason     string                 `json:"skip_reason,omitempty"`
}

// Succeeded reports whether the module completed its handler successfully.
func (r ExecutionResult) Succeeded() bool { return r.Status == StatusSuccess }

// EcosystemState is the long-lived per-user snapshot of which modules are in
// sync with the latest orchestration outcome. Created lazily on a user's
// first run, then read-modified-written on every subsequent run.
type EcosystemState struct {
	UserID                string                 `json:"user_id"`
	ActiveCourses         []string               `json:"active_courses,omitempty"`
	CurrentCurriculum     string                 `json:"current_curriculum,omitempty"`
	ActiveStudyPlan       string                 `json:"active_study_plan,omitempty"`
	PendingAssignments    int                    `json:"pending_assignments"`
	ActiveTargets         int                    `json:"active_targets"`
	AIRecommendations     []string               `json:"ai_recommendations,omitempty"`
	SynchronizationStatus map[ModuleName]bool    `json:"synchronization_status"`
	Metadata              map[string]interface{} `json:"metadata,omitempty"`
	Version               int64                  `json:"version"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

// NewEcosystemState returns the initial state for a user with no prior runs.
func NewEcosystemState(userID string) *EcosystemState {
	return &EcosystemState{
		UserID:                userID,
		SynchronizationStatus: make(map[ModuleName]bool),
		Version:               0,
		UpdatedAt:             time.Now(),
	}
}

// Clone returns a deep copy so callers can mutate without racing readers.
func (s *EcosystemState) Clone() *EcosystemState {
	cp := *s
	cp.ActiveCourses = append([]string(nil), s.ActiveCourses...)
	cp.AIRecommendations = append([]string(nil), s.AIRecommendations...)
	cp.SynchronizationStatus = make(map[ModuleName]bool, len(s.SynchronizationStatus))
	for k, v := range s.SynchronizationStatus {
		cp.SynchronizationStatus[k] = v
	}
	if s.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// DecisionLogEntry is the append-only audit record of one orchestration run.
// The core never updates or deletes entries; retention is an external
// data-lifecycle concern.
type DecisionLogEntry struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Trigger      string                 `json:"trigger"`
	Engine       string                 `json:"engine"`
	InputSummary map[string]interface{} `json:"input_summary,omitempty"`
	Decision     map[string]interface{} `json:"decision,omitempty"`
	Confidence   float64                `json:"confidence"`
	Result       map[string]interface{} `json:"result,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Suggestion is an actionable optimization hint from post-run analysis.
type Suggestion struct {
	Type    string     `json:"type"`
	Module  ModuleName `json:"module,omitempty"`
	Message string     `json:"message"`
}

// Suggestion types emitted by the performance analyzer.
const (
	SuggestionParallelize      = "parallelize"
	SuggestionReviewDependency = "review_dependencies"
	SuggestionCacheModule      = "cache_module_inputs"
)

// FeedbackReport is the output of post-run performance analysis.
type FeedbackReport struct {
	TotalDuration time.Duration `json:"total_duration_ms"`
	SuccessRate   float64       `json:"success_rate"`
	Suggestions   []Suggestion  `json:"suggestions,omitempty"`
}

// OrchestrationSummary is what callers of Orchestrate receive. It is always
// returned, even when every module failed.
type OrchestrationSummary struct {
	OrchestrationID      string            `json:"orchestration_id"`
	UserID               string            `json:"user_id"`
	Trigger              string            `json:"trigger"`
	IntegrationsExecuted int               `json:"integrations_executed"`
	ExecutionSequence    []ModuleName      `json:"execution_sequence"`
	Results              []ExecutionResult `json:"results"`
	TotalDuration        time.Duration     `json:"total_duration_ms"`
	SuccessRatePercent   float64           `json:"success_rate_percent"`
	Optimizations        []Suggestion      `json:"optimizations,omitempty"`
	CyclicModules        []ModuleName      `json:"cyclic_modules,omitempty"`
	SyncError            string            `json:"sync_error,omitempty"`
	StartedAt            time.Time         `json:"started_at"`
	CompletedAt          time.Time         `json:"completed_at"`
}
