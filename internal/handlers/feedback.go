package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/internal/services"
	"github.com/scentmatch/engine/internal/validation"
	"github.com/scentmatch/engine/pkg/models"
)

type FeedbackHandler struct {
	processor *services.FeedbackProcessor
	metrics   *services.MetricsCollector
	validator *validation.SchemaValidator
	logger    *logrus.Logger
}

func NewFeedbackHandler(
	processor *services.FeedbackProcessor,
	metrics *services.MetricsCollector,
	validator *validation.SchemaValidator,
	logger *logrus.Logger,
) *FeedbackHandler {
	return &FeedbackHandler{
		processor: processor,
		metrics:   metrics,
		validator: validator,
		logger:    logger,
	}
}

// Submit handles POST /api/v1/feedback. The payload is schema-validated
// before any state changes.
func (h *FeedbackHandler) Submit(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondValidation(c, "body", "failed to read request body")
		return
	}

	if result := h.validator.ValidateFeedback(body); !result.Valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Feedback payload failed validation",
				"details": result.Errors,
			},
		})
		return
	}

	var req models.FeedbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondValidation(c, "body", "malformed JSON payload")
		return
	}

	ack, err := h.processor.Process(c.Request.Context(), &req)
	if err != nil {
		h.metrics.ObserveFeedback(req.FeedbackType, "error")
		h.respondError(c, &req, err)
		return
	}

	h.metrics.ObserveFeedback(req.FeedbackType, "processed")
	c.JSON(http.StatusOK, ack)
}

func (h *FeedbackHandler) respondError(c *gin.Context, req *models.FeedbackRequest, err error) {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		respondValidation(c, validationErr.Field, validationErr.Reason)
	case errors.Is(err, models.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "PROFILE_NOT_FOUND",
				"message": "No profile exists for this user",
			},
		})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error": gin.H{
				"code":    "UPDATE_CONFLICT",
				"message": "Profile was updated concurrently; retry the submission",
			},
		})
	default:
		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": req.UserID,
			"item_id": req.ItemID,
		}).Error("Failed to process feedback")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "FEEDBACK_PROCESSING_FAILED",
				"message": "Failed to process feedback",
			},
		})
	}
}
