// Package domain defines the core types of the integration orchestration
// engine: modules, dependency edges, triggers, plans, execution results,
// the per-user ecosystem state and the decision log entry.
//
// Types here are pure data. Behavior lives in internal/orchestrator and the
// adapters under pkg/adapters.
package domain
