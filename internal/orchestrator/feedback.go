package orchestrator

import (
	"fmt"
	"time"

	"github.com/learnloop/ecosync/internal/domain"
)

// FeedbackThresholds tune the post-run analyzer. They are operational
// configuration, not business rules.
type FeedbackThresholds struct {
	// HighLatency is the total run duration above which more concurrency
	// is suggested.
	HighLatency time.Duration

	// MinSuccessRate is the rate below which a dependency review is
	// suggested.
	MinSuccessRate float64

	// SlowModule is the per-module duration above which input caching is
	// suggested for that module.
	SlowModule time.Duration
}

// DefaultFeedbackThresholds mirror the config package defaults.
func DefaultFeedbackThresholds() FeedbackThresholds {
	return FeedbackThresholds{
		HighLatency:    10 * time.Second,
		MinSuccessRate: 0.8,
		SlowModule:     5 * time.Second,
	}
}

// Analyzer turns a run's result set into duration and success metrics plus
// actionable suggestions. It has no side effects on core state.
type Analyzer struct {
	thresholds FeedbackThresholds
}

// NewAnalyzer creates a performance analyzer with the given thresholds.
func NewAnalyzer(thresholds FeedbackThresholds) *Analyzer {
	return &Analyzer{thresholds: thresholds}
}

// Analyze computes the feedback report for one run. Skipped modules count
// against the success rate: a skip means the ecosystem did not converge.
func (a *Analyzer) Analyze(results []domain.ExecutionResult) domain.FeedbackReport {
	report := domain.FeedbackReport{}
	if len(results) == 0 {
		report.SuccessRate = 1
		return report
	}

	succeeded := 0
	for _, r := range results {
		report.TotalDuration += r.Duration
		if r.Succeeded() {
			succeeded++
		}
	}
	report.SuccessRate = float64(succeeded) / float64(len(results))

	if report.TotalDuration > a.thresholds.HighLatency {
		report.Suggestions = append(report.Suggestions, domain.Suggestion{
			Type: domain.SuggestionParallelize,
			Message: fmt.Sprintf("total duration %s exceeds %s; consider raising the engine worker limit",
				report.TotalDuration.Round(time.Millisecond), a.thresholds.HighLatency),
		})
	}

	if report.SuccessRate < a.thresholds.MinSuccessRate {
		report.Suggestions = append(report.Suggestions, domain.Suggestion{
			Type: domain.SuggestionReviewDependency,
			Message: fmt.Sprintf("success rate %.0f%% is below %.0f%%; review module dependencies and upstream failures",
				report.SuccessRate*100, a.thresholds.MinSuccessRate*100),
		})
	}

	for _, r := range results {
		if r.Duration > a.thresholds.SlowModule {
			report.Suggestions = append(report.Suggestions, domain.Suggestion{
				Type:   domain.SuggestionCacheModule,
				Module: r.Module,
				Message: fmt.Sprintf("module %s took %s; consider caching its inputs",
					r.Module, r.Duration.Round(time.Millisecond)),
			})
		}
	}

	return report
}
