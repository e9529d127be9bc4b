package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/learnloop/ecosync/internal/domain"
	"go.uber.org/zap"
)

// TriggerRequest is the body of an orchestration submission.
type TriggerRequest struct {
	Type      string                 `json:"type" binding:"required"`
	UserID    string                 `json:"user_id" binding:"required"`
	CourseIDs []string               `json:"course_ids"`
	Metadata  map[string]interface{} `json:"metadata"`

	// Wait makes the request block until the run completes and returns
	// the full summary instead of just the orchestration ID.
	Wait bool `json:"wait"`
}

// SubmitResponse is returned for asynchronous submissions.
type SubmitResponse struct {
	OrchestrationID string `json:"orchestration_id"`
	Status          string `json:"status"`
}

// ErrorResponse wraps an API error.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{Code: "INVALID_REQUEST", Message: err.Error()},
		})
		return
	}

	trigger := domain.IntegrationTrigger{
		Type:      req.Type,
		UserID:    req.UserID,
		CourseIDs: req.CourseIDs,
		Metadata:  req.Metadata,
	}

	if req.Wait {
		summary, err := s.manager.Orchestrate(c.Request.Context(), trigger)
		switch {
		case errors.Is(err, domain.ErrUnknownTrigger):
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error: ErrorDetail{Code: "UNKNOWN_TRIGGER", Message: err.Error()},
			})
		case err != nil:
			// Sync conflict: results are still valid and returned.
			c.JSON(http.StatusOK, gin.H{"summary": summary, "warning": err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{"summary": summary})
		}
		return
	}

	id, err := s.manager.Submit(c.Request.Context(), trigger)
	if err != nil {
		s.logger.Error("failed to submit orchestration", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{Code: "SUBMISSION_FAILED", Message: err.Error()},
		})
		return
	}

	c.JSON(http.StatusAccepted, SubmitResponse{OrchestrationID: id, Status: "running"})
}

func (s *Server) handleGetRun(c *gin.Context) {
	id := c.Param("id")

	if s.manager.IsActive(id) {
		c.JSON(http.StatusOK, gin.H{"orchestration_id": id, "status": "running"})
		return
	}

	summary, err := s.manager.GetSummary(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{Code: "NOT_FOUND", Message: "orchestration not found"},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orchestration_id": id, "status": "completed", "summary": summary})
}

func (s *Server) handleCancelRun(c *gin.Context) {
	id := c.Param("id")

	if err := s.manager.CancelRun(id); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{Code: "CANCELLATION_FAILED", Message: err.Error()},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orchestration_id": id, "status": "cancelled"})
}

func (s *Server) handleGetEcosystem(c *gin.Context) {
	userID := c.Param("id")

	state, err := s.states.GetState(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrStateNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: ErrorDetail{Code: "NOT_FOUND", Message: "no ecosystem state for user"},
			})
			return
		}
		s.logger.Error("failed to load ecosystem state",
			zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{Code: "STORAGE_ERROR", Message: "failed to load ecosystem state"},
		})
		return
	}

	c.JSON(http.StatusOK, state)
}

func (s *Server) handleListDecisions(c *gin.Context) {
	userID := c.Param("id")

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := s.decisions.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		s.logger.Error("failed to list decisions",
			zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{Code: "STORAGE_ERROR", Message: "failed to list decision log"},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
