// Package orchestrator implements the integration orchestration engine.
//
// A trigger (a platform event such as a course enrollment) is translated by
// the planner into a dependency-respecting execution plan over the module
// graph. The execution engine runs the plan layer by layer, isolating module
// failures, and the resulting records feed the state synchronizer, the
// performance analyzer and the decision log.
package orchestrator
