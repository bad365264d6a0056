package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/internal/services"
	"github.com/scentmatch/engine/pkg/models"
)

type RecommendationHandler struct {
	orchestrator *services.RecommendationOrchestrator
	logger       *logrus.Logger
}

func NewRecommendationHandler(orchestrator *services.RecommendationOrchestrator, logger *logrus.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// Get handles GET /api/v1/recommendations/:userId. Season, occasion and
// price bounds are optional query parameters.
func (h *RecommendationHandler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_USER_ID",
				"message": "Invalid user ID format",
			},
		})
		return
	}

	count := 0
	if countStr := c.Query("count"); countStr != "" {
		if parsed, err := strconv.Atoi(countStr); err == nil && parsed > 0 {
			count = parsed
		}
	}

	var reqCtx *models.RequestContext
	season, occasion := c.Query("season"), c.Query("occasion")
	if season != "" || occasion != "" {
		if season != "" && !validSeason(season) {
			respondValidation(c, "season", "unknown season")
			return
		}
		if occasion != "" && !validOccasion(occasion) {
			respondValidation(c, "occasion", "unknown occasion")
			return
		}
		reqCtx = &models.RequestContext{Season: season, Occasion: occasion}
	}

	var filters *models.CandidateFilters
	minPrice := parsePrice(c.Query("min_price_cents"))
	maxPrice := parsePrice(c.Query("max_price_cents"))
	if minPrice > 0 || maxPrice > 0 {
		filters = &models.CandidateFilters{MinPriceCents: minPrice, MaxPriceCents: maxPrice}
	}

	list, err := h.orchestrator.GetRecommendations(c.Request.Context(), &services.RecommendationRequest{
		UserID:  userID,
		Count:   count,
		Context: reqCtx,
		Filters: filters,
	})
	if err != nil {
		h.respondError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *RecommendationHandler) respondError(c *gin.Context, userID uuid.UUID, err error) {
	switch {
	case errors.Is(err, models.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "PROFILE_NOT_FOUND",
				"message": "No profile exists for this user; submit the quiz first",
			},
		})
	case errors.Is(err, models.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"code":    "RECOMMENDATIONS_UNAVAILABLE",
				"message": "Recommendations are temporarily unavailable",
			},
		})
	default:
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to generate recommendations")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "RECOMMENDATION_GENERATION_FAILED",
				"message": "Failed to generate recommendations",
			},
		})
	}
}

func respondValidation(c *gin.Context, field, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": message,
			"field":   field,
		},
	})
}

func validSeason(s string) bool {
	switch s {
	case "spring", "summer", "autumn", "winter":
		return true
	}
	return false
}

func validOccasion(s string) bool {
	switch s {
	case "daily", "office", "evening", "date", "sport", "formal":
		return true
	}
	return false
}

func parsePrice(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
