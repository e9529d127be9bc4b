package modules

import (
	"context"
	"fmt"
	"strings"

	"github.com/learnloop/ecosync/internal/domain"
	"github.com/learnloop/ecosync/internal/ports"
	"go.uber.org/zap"
)

// GeneratorConfig carries the LLM settings shared by the generative handlers.
type GeneratorConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// llmHandler is the shared shape of the generative module handlers.
type llmHandler struct {
	module domain.ModuleName
	llm    ports.LLMClient
	cfg    GeneratorConfig
	logger *zap.Logger

	system string
	prompt func(mctx ports.ModuleContext) string
}

// Run invokes the LLM and maps the outcome into the boundary result shape.
// Errors are absorbed into Success=false; the engine isolates anything that
// still escapes.
func (h *llmHandler) Run(ctx context.Context, mctx ports.ModuleContext) (ports.HandlerResult, error) {
	req := &ports.LLMRequest{
		Model:       h.cfg.Model,
		System:      h.system,
		Temperature: h.cfg.Temperature,
		MaxTokens:   h.cfg.MaxTokens,
		Messages: []ports.LLMMessage{
			{Role: "user", Content: h.prompt(mctx)},
		},
	}

	resp, err := h.llm.GenerateCompletion(ctx, req)
	if err != nil {
		h.logger.Warn("module generation failed",
			zap.String("module", string(h.module)),
			zap.String("user_id", mctx.UserID),
			zap.Error(err))
		return ports.HandlerResult{
			Success: false,
			Details: map[string]interface{}{"error": err.Error()},
		}, nil
	}

	items := countItems(resp.Content)
	return ports.HandlerResult{
		Success:        true,
		ItemsProcessed: items,
		Details: map[string]interface{}{
			"content":       resp.Content,
			"input_tokens":  resp.InputTokens,
			"output_tokens": resp.OutputTokens,
		},
	}, nil
}

// NewCurriculumHandler synthesizes a curriculum outline for the user's
// active courses.
func NewCurriculumHandler(llm ports.LLMClient, cfg GeneratorConfig, logger *zap.Logger) ports.ModuleHandler {
	return &llmHandler{
		module: domain.ModuleCurriculum,
		llm:    llm,
		cfg:    cfg,
		logger: logger,
		system: "You are a curriculum designer for an online learning platform. Produce concise, structured curriculum outlines.",
		prompt: func(mctx ports.ModuleContext) string {
			return fmt.Sprintf(
				"Generate a curriculum outline for learner %s covering courses: %s. One module per line.",
				mctx.UserID, joinOr(mctx.CourseIDs, "their enrolled courses"))
		},
	}
}

// NewStudyPlanHandler derives a week-by-week study plan. It reads the
// curriculum result from upstream when available.
func NewStudyPlanHandler(llm ports.LLMClient, cfg GeneratorConfig, logger *zap.Logger) ports.ModuleHandler {
	return &llmHandler{
		module: domain.ModuleStudyPlan,
		llm:    llm,
		cfg:    cfg,
		logger: logger,
		system: "You are a study coach. Produce realistic week-by-week study plans.",
		prompt: func(mctx ports.ModuleContext) string {
			var b strings.Builder
			fmt.Fprintf(&b, "Create a study plan for learner %s for courses: %s.",
				mctx.UserID, joinOr(mctx.CourseIDs, "their enrolled courses"))
			if up, ok := mctx.Upstream[domain.ModuleCurriculum]; ok && up.Succeeded() {
				if content, ok := up.Details["content"].(string); ok {
					fmt.Fprintf(&b, " Base it on this curriculum:\n%s", content)
				}
			}
			b.WriteString(" One week per line.")
			return b.String()
		},
	}
}

// NewAssignmentsHandler generates practice assignments from the study plan.
func NewAssignmentsHandler(llm ports.LLMClient, cfg GeneratorConfig, logger *zap.Logger) ports.ModuleHandler {
	return &llmHandler{
		module: domain.ModuleAssignments,
		llm:    llm,
		cfg:    cfg,
		logger: logger,
		system: "You are an assessment author. Produce short practice assignments with clear acceptance criteria.",
		prompt: func(mctx ports.ModuleContext) string {
			var b strings.Builder
			fmt.Fprintf(&b, "Generate practice assignments for learner %s.", mctx.UserID)
			if up, ok := mctx.Upstream[domain.ModuleStudyPlan]; ok && up.Succeeded() {
				if content, ok := up.Details["content"].(string); ok {
					fmt.Fprintf(&b, " Align them with this study plan:\n%s", content)
				}
			}
			b.WriteString(" One assignment per line.")
			return b.String()
		},
	}
}

// NewRecommendationsHandler refreshes the learner's AI recommendations.
func NewRecommendationsHandler(llm ports.LLMClient, cfg GeneratorConfig, logger *zap.Logger) ports.ModuleHandler {
	return &llmHandler{
		module: domain.ModuleRecommendations,
		llm:    llm,
		cfg:    cfg,
		logger: logger,
		system: "You are a learning advisor. Recommend next steps and resources.",
		prompt: func(mctx ports.ModuleContext) string {
			return fmt.Sprintf(
				"Recommend up to five next learning actions for learner %s enrolled in: %s. One recommendation per line.",
				mctx.UserID, joinOr(mctx.CourseIDs, "their enrolled courses"))
		},
	}
}

// targetsHandler adjusts goal targets from upstream outcomes. It is pure
// bookkeeping: no LLM call.
type targetsHandler struct {
	logger *zap.Logger
}

// NewTargetsHandler creates the goal/target adjustment handler.
func NewTargetsHandler(logger *zap.Logger) ports.ModuleHandler {
	return &targetsHandler{logger: logger}
}

// Run recomputes target counts from the upstream assignment result.
func (h *targetsHandler) Run(ctx context.Context, mctx ports.ModuleContext) (ports.HandlerResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.HandlerResult{
			Success: false,
			Details: map[string]interface{}{"error": err.Error()},
		}, nil
	}

	adjusted := 1 // the overall course goal always exists
	if up, ok := mctx.Upstream[domain.ModuleAssignments]; ok && up.Succeeded() {
		adjusted += up.ItemsProcessed
	}

	h.logger.Debug("targets adjusted",
		zap.String("user_id", mctx.UserID),
		zap.Int("targets", adjusted))

	return ports.HandlerResult{
		Success:        true,
		ItemsProcessed: adjusted,
		Details:        map[string]interface{}{"targets_adjusted": adjusted},
	}, nil
}

// countItems counts non-empty lines of generated content.
func countItems(content string) int {
	n := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func joinOr(ids []string, fallback string) string {
	if len(ids) == 0 {
		return fallback
	}
	return strings.Join(ids, ", ")
}
