package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/internal/services"
	"github.com/scentmatch/engine/internal/validation"
)

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Feedback       *FeedbackHandler
	Profile        *ProfileHandler
}

func New(logger *logrus.Logger, svcs *services.Services, validator *validation.SchemaValidator) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, svcs.Health),
		Recommendation: NewRecommendationHandler(svcs.Orchestrator, logger),
		Feedback:       NewFeedbackHandler(svcs.FeedbackProcessor, svcs.Metrics, validator, logger),
		Profile:        NewProfileHandler(svcs.Profile, validator, logger),
	}
}
