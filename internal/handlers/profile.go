package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/internal/services"
	"github.com/scentmatch/engine/internal/validation"
	"github.com/scentmatch/engine/pkg/models"
)

type ProfileHandler struct {
	profiles  *services.ProfileService
	validator *validation.SchemaValidator
	logger    *logrus.Logger
}

func NewProfileHandler(profiles *services.ProfileService, validator *validation.SchemaValidator, logger *logrus.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles:  profiles,
		validator: validator,
		logger:    logger,
	}
}

// SubmitQuiz handles POST /api/v1/users/:userId/quiz, building or
// rebuilding the user's profile from questionnaire answers.
func (h *ProfileHandler) SubmitQuiz(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		respondValidation(c, "userId", "invalid user ID format")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondValidation(c, "body", "failed to read request body")
		return
	}

	if result := h.validator.ValidateQuiz(body); !result.Valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Quiz payload failed validation",
				"details": result.Errors,
			},
		})
		return
	}

	var submission models.QuizSubmission
	if err := json.Unmarshal(body, &submission); err != nil {
		respondValidation(c, "body", "malformed JSON payload")
		return
	}

	profile, err := h.profiles.BuildFromQuiz(c.Request.Context(), userID, &submission)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to build profile from quiz")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PROFILE_BUILD_FAILED",
				"message": "Failed to build profile",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, profile)
}

// GetSummary handles GET /api/v1/users/:userId/profile, the read-only
// projection of dominant traits and confidence.
func (h *ProfileHandler) GetSummary(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		respondValidation(c, "userId", "invalid user ID format")
		return
	}

	summary, err := h.profiles.Summary(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "PROFILE_NOT_FOUND",
					"message": "No profile exists for this user",
				},
			})
			return
		}
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to load profile summary")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PROFILE_LOAD_FAILED",
				"message": "Failed to load profile",
			},
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}
