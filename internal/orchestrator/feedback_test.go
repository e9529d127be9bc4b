package orchestrator

import (
	"testing"
	"time"

	"github.com/learnloop/ecosync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func suggestionTypes(report domain.FeedbackReport) []string {
	out := make([]string, 0, len(report.Suggestions))
	for _, s := range report.Suggestions {
		out = append(out, s.Type)
	}
	return out
}

func TestAnalyzeEmptyResults(t *testing.T) {
	a := NewAnalyzer(DefaultFeedbackThresholds())

	report := a.Analyze(nil)
	assert.Equal(t, 1.0, report.SuccessRate)
	assert.Zero(t, report.TotalDuration)
	assert.Empty(t, report.Suggestions)
}

func TestAnalyzeHealthyRun(t *testing.T) {
	a := NewAnalyzer(DefaultFeedbackThresholds())

	report := a.Analyze([]domain.ExecutionResult{
		{Module: domain.ModuleCurriculum, Status: domain.StatusSuccess, Duration: 2 * time.Second},
		{Module: domain.ModuleStudyPlan, Status: domain.StatusSuccess, Duration: 3 * time.Second},
	})

	assert.Equal(t, 1.0, report.SuccessRate)
	assert.Equal(t, 5*time.Second, report.TotalDuration)
	assert.Empty(t, report.Suggestions)
}

func TestAnalyzeHighLatencySuggestsParallelism(t *testing.T) {
	a := NewAnalyzer(FeedbackThresholds{
		HighLatency:    time.Second,
		MinSuccessRate: 0.5,
		SlowModule:     time.Hour,
	})

	report := a.Analyze([]domain.ExecutionResult{
		{Module: domain.ModuleCurriculum, Status: domain.StatusSuccess, Duration: 900 * time.Millisecond},
		{Module: domain.ModuleStudyPlan, Status: domain.StatusSuccess, Duration: 800 * time.Millisecond},
	})

	assert.Contains(t, suggestionTypes(report), domain.SuggestionParallelize)
}

func TestAnalyzeLowSuccessRateSuggestsDependencyReview(t *testing.T) {
	a := NewAnalyzer(DefaultFeedbackThresholds())

	// Skips count against the rate, not just failures.
	report := a.Analyze([]domain.ExecutionResult{
		{Module: domain.ModuleCurriculum, Status: domain.StatusSuccess},
		{Module: domain.ModuleStudyPlan, Status: domain.StatusFailed},
		{Module: domain.ModuleAssignments, Status: domain.StatusSkipped},
		{Module: domain.ModuleTargets, Status: domain.StatusSkipped},
	})

	assert.Equal(t, 0.25, report.SuccessRate)
	assert.Contains(t, suggestionTypes(report), domain.SuggestionReviewDependency)
}

func TestAnalyzeSlowModuleSuggestsCaching(t *testing.T) {
	a := NewAnalyzer(FeedbackThresholds{
		HighLatency:    time.Hour,
		MinSuccessRate: 0.5,
		SlowModule:     time.Second,
	})

	report := a.Analyze([]domain.ExecutionResult{
		{Module: domain.ModuleCurriculum, Status: domain.StatusSuccess, Duration: 100 * time.Millisecond},
		{Module: domain.ModuleRecommendations, Status: domain.StatusSuccess, Duration: 4 * time.Second},
	})

	require.Len(t, report.Suggestions, 1)
	assert.Equal(t, domain.SuggestionCacheModule, report.Suggestions[0].Type)
	assert.Equal(t, domain.ModuleRecommendations, report.Suggestions[0].Module)
}

func TestAnalyzeAllThresholdsBreached(t *testing.T) {
	a := NewAnalyzer(FeedbackThresholds{
		HighLatency:    time.Second,
		MinSuccessRate: 0.9,
		SlowModule:     time.Second,
	})

	report := a.Analyze([]domain.ExecutionResult{
		{Module: domain.ModuleCurriculum, Status: domain.StatusFailed, Duration: 2 * time.Second},
		{Module: domain.ModuleStudyPlan, Status: domain.StatusSuccess, Duration: 500 * time.Millisecond},
	})

	types := suggestionTypes(report)
	assert.Contains(t, types, domain.SuggestionParallelize)
	assert.Contains(t, types, domain.SuggestionReviewDependency)
	assert.Contains(t, types, domain.SuggestionCacheModule)
}
