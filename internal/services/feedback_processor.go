package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/internal/config"
	"github.com/scentmatch/engine/pkg/models"
)

// feedbackEffect maps a feedback type to the magnitude and direction of
// the interaction it records. Direction is +1 for preference evidence and
// -1 for rejection evidence.
type feedbackEffect struct {
	interactionType string
	magnitude       float64
	direction       float64
}

// FeedbackProcessor turns explicit feedback into durable state: an
// append-only interaction record, an incremental profile update, a bandit
// outcome, and cache invalidation when the profile moved enough to make
// cached rankings stale.
type FeedbackProcessor struct {
	db        DatabaseQuerier
	profiles  *ProfileService
	items     ItemGetter
	graph     InteractionGraph
	bandit    *BanditService
	publisher EventPublisher
	lists     *RecommendationOrchestrator
	caches    *CacheTiers
	registry  *TraitRegistry
	cfg       *config.RecommendationConfig
	logger    *logrus.Logger
}

func NewFeedbackProcessor(
	db DatabaseQuerier,
	profiles *ProfileService,
	items ItemGetter,
	graph InteractionGraph,
	bandit *BanditService,
	publisher EventPublisher,
	lists *RecommendationOrchestrator,
	caches *CacheTiers,
	registry *TraitRegistry,
	cfg *config.RecommendationConfig,
	logger *logrus.Logger,
) *FeedbackProcessor {
	return &FeedbackProcessor{
		db:        db,
		profiles:  profiles,
		items:     items,
		graph:     graph,
		bandit:    bandit,
		publisher: publisher,
		lists:     lists,
		caches:    caches,
		registry:  registry,
		cfg:       cfg,
		logger:    logger,
	}
}

// Process validates and applies one feedback submission. Validation
// failures leave every store untouched.
func (p *FeedbackProcessor) Process(ctx context.Context, req *models.FeedbackRequest) (*models.FeedbackAck, error) {
	if err := validate.Struct(req); err != nil {
		return nil, models.NewValidationError("request", err.Error())
	}
	effect, err := p.resolveEffect(req)
	if err != nil {
		return nil, err
	}

	item, err := p.items.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, models.NewValidationError("item_id", "unknown catalog item")
	}

	reliability, err := p.reliability(ctx, req, effect)
	if err != nil {
		p.logger.WithError(err).Warn("Reliability lookup failed, assuming full reliability")
		reliability = 1.0
	}

	interaction := &models.Interaction{
		ID:              uuid.New(),
		UserID:          req.UserID,
		ItemID:          req.ItemID,
		InteractionType: effect.interactionType,
		Magnitude:       effect.magnitude,
		CreatedAt:       time.Now(),
	}
	if err := p.recordInteraction(ctx, interaction); err != nil {
		return nil, err
	}

	ack := &models.FeedbackAck{
		UserID:      req.UserID,
		ItemID:      req.ItemID,
		ProcessedAt: time.Now(),
	}

	profile, impact, err := p.updateProfile(ctx, req.UserID, item, effect, reliability)
	if err != nil {
		return nil, err
	}
	ack.LearningImpact = impact
	ack.PreferencesUpdated = true

	if impact > p.cfg.Feedback.InvalidationThreshold {
		p.invalidateDerived(ctx, req.UserID)
		ack.CacheInvalidated = true
	}

	success := effect.direction > 0
	dominant := p.dominantSignal(ctx, req.UserID, req.ItemID, profile.InteractionCount)
	if _, err := p.bandit.RecordOutcome(ctx, req.UserID, dominant, success); err != nil {
		p.logger.WithError(err).WithField("user_id", req.UserID).Warn("Bandit update failed")
	} else {
		ack.WeightsAdjusted = true
	}

	return ack, nil
}

// resolveEffect validates the feedback type and rating and maps them to an
// interaction magnitude.
func (p *FeedbackProcessor) resolveEffect(req *models.FeedbackRequest) (feedbackEffect, error) {
	switch req.FeedbackType {
	case models.FeedbackLove:
		return feedbackEffect{models.InteractionSave, 1.0, 1}, nil
	case models.FeedbackLike:
		return feedbackEffect{models.InteractionLike, 0.8, 1}, nil
	case models.FeedbackDislike:
		return feedbackEffect{models.InteractionDislike, 0.8, -1}, nil
	case models.FeedbackNotInterested:
		return feedbackEffect{models.InteractionRemove, 0.5, -1}, nil
	case models.FeedbackRate:
		if req.Rating == nil {
			return feedbackEffect{}, models.NewValidationError("rating", "required for rate feedback")
		}
		rating := *req.Rating
		if rating < 1 || rating > 5 {
			return feedbackEffect{}, models.NewValidationError("rating", "must be between 1 and 5")
		}
		direction := 1.0
		if rating < 3 {
			direction = -1
		}
		return feedbackEffect{models.InteractionRate, rating / 5.0, direction}, nil
	default:
		return feedbackEffect{}, models.NewValidationError("feedback_type", fmt.Sprintf("unknown type %q", req.FeedbackType))
	}
}

// reliability discounts repeated feedback. Each prior submission of the
// same kind for the same item inside the duplicate window halves the
// weight of this one, so hammering the like button converges instead of
// compounding.
func (p *FeedbackProcessor) reliability(ctx context.Context, req *models.FeedbackRequest, effect feedbackEffect) (float64, error) {
	var priors int
	row := p.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM interactions
		WHERE user_id = $1 AND item_id = $2 AND interaction_type = $3
			AND created_at > $4`,
		req.UserID, req.ItemID, effect.interactionType,
		time.Now().Add(-p.cfg.Feedback.DuplicateWindow))
	if err := row.Scan(&priors); err != nil {
		return 0, fmt.Errorf("duplicate check failed: %w", err)
	}

	reliability := 1.0
	for i := 0; i < priors; i++ {
		reliability /= 2
	}
	return reliability, nil
}

// recordInteraction appends to the interaction log, mirrors the edge into
// the graph, and publishes the event. Only the log write is mandatory.
func (p *FeedbackProcessor) recordInteraction(ctx context.Context, interaction *models.Interaction) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO interactions (id, user_id, item_id, interaction_type, magnitude, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		interaction.ID, interaction.UserID, interaction.ItemID,
		interaction.InteractionType, interaction.Magnitude, interaction.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}

	if err := p.graph.RecordInteraction(ctx, interaction); err != nil {
		p.logger.WithError(err).WithField("user_id", interaction.UserID).Warn("Failed to mirror interaction into graph")
	}
	if err := p.publisher.PublishInteraction(ctx, interaction); err != nil {
		p.logger.WithError(err).WithField("user_id", interaction.UserID).Warn("Failed to publish interaction event")
	}
	return nil
}

// updateProfile applies the exponential moving average update under
// optimistic concurrency, retrying on conflict with a fresh read. Returns
// the saved profile and the learning impact in [0,1], how far the update
// actually moved the profile.
func (p *FeedbackProcessor) updateProfile(ctx context.Context, userID uuid.UUID, item *models.CatalogItem, effect feedbackEffect, reliability float64) (*models.UserProfile, float64, error) {
	alpha := p.cfg.Feedback.BaseLearningRate * effect.magnitude * reliability * effect.direction

	for attempt := 0; attempt < p.cfg.Feedback.MaxUpdateRetries; attempt++ {
		profile, err := p.profiles.fetchProfile(ctx, userID)
		if err != nil {
			return nil, 0, err
		}
		seenUpdatedAt := profile.UpdatedAt

		before := profile.ProfileVector
		if len(item.MetadataVector) == len(before) && hasNonZero(item.MetadataVector) {
			profile.ProfileVector = blendVectors(before, item.MetadataVector, alpha)
		}
		p.adjustTraitWeights(profile, item, alpha)

		// Impact is the vector shift relative to the largest shift one
		// full-reliability update can produce, so the invalidation
		// threshold is reachable but repeated feedback stays below it.
		maxShift := 2 * p.cfg.Feedback.BaseLearningRate
		impact := clamp01(vectorDelta(before, profile.ProfileVector) / maxShift)

		profile.ConfidenceScore = clamp01(profile.ConfidenceScore +
			(1-profile.ConfidenceScore)*p.cfg.Feedback.BaseLearningRate*reliability)
		profile.InteractionCount++

		err = p.profiles.SaveLearned(ctx, profile, seenUpdatedAt)
		if err == nil {
			return profile, impact, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, 0, err
		}
		p.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"attempt": attempt + 1,
		}).Debug("Profile update conflict, retrying with fresh read")
	}
	return nil, 0, models.ErrConflict
}

// adjustTraitWeights nudges the weights of item tags that are known
// traits, in the feedback's direction, and renormalizes.
func (p *FeedbackProcessor) adjustTraitWeights(profile *models.UserProfile, item *models.CatalogItem, alpha float64) {
	registry := p.registry
	touched := false
	for _, tag := range item.Tags {
		trait := registry.Canonical(tag)
		if _, known := registry.Lookup(trait); !known {
			continue
		}
		weight := profile.TraitWeights[trait] + alpha
		if weight < 0 {
			weight = 0
		}
		profile.TraitWeights[trait] = weight
		touched = true
	}
	if touched {
		normalizeWeights(profile.TraitWeights)
	}
}

// dominantSignal attributes the feedback to the signal that contributed
// most to the item's cached score. Without a cached list, the user's
// current heaviest weight takes the credit. The interaction count keeps
// light users on the cohort defaults during attribution too.
func (p *FeedbackProcessor) dominantSignal(ctx context.Context, userID, itemID uuid.UUID, interactionCount int) string {
	if list, ok := p.lists.LatestList(ctx, userID); ok {
		for _, rec := range list.Recommendations {
			if rec.ItemID == itemID {
				weights := p.bandit.WeightsFor(ctx, userID, interactionCount)
				return dominantFromBreakdown(rec.Signals, weights)
			}
		}
	}

	weights := p.bandit.WeightsFor(ctx, userID, interactionCount)
	best, bestWeight := models.SignalSimilarity, -1.0
	for signal, w := range weights {
		if w > bestWeight || (w == bestWeight && signal < best) {
			best, bestWeight = signal, w
		}
	}
	return best
}

func dominantFromBreakdown(b models.SignalBreakdown, weights map[string]float64) string {
	contributions := map[string]float64{
		models.SignalSimilarity:    weights[models.SignalSimilarity] * b.Similarity,
		models.SignalCollaborative: weights[models.SignalCollaborative] * b.Collaborative,
		models.SignalContent:       weights[models.SignalContent] * b.Content,
		models.SignalContextual:    weights[models.SignalContextual] * b.Contextual,
	}
	best, bestValue := models.SignalSimilarity, -1.0
	for signal, v := range contributions {
		if v > bestValue || (v == bestValue && signal < best) {
			best, bestValue = signal, v
		}
	}
	return best
}

// invalidateDerived eagerly drops the user's cached rankings and
// explanations after a significant profile shift. The profile cache is
// already refreshed by SaveLearned.
func (p *FeedbackProcessor) invalidateDerived(ctx context.Context, userID uuid.UUID) {
	prefix := fmt.Sprintf("%s%s", rankedListKeyPrefix, userID)
	if err := p.caches.RankedList.Invalidate(ctx, prefix); err != nil {
		p.logger.WithError(err).Debug("Ranked list invalidation failed")
	}
	prefix = fmt.Sprintf("%s%s", explanationKeyPrefix, userID)
	if err := p.caches.Explanation.Invalidate(ctx, prefix); err != nil {
		p.logger.WithError(err).Debug("Explanation invalidation failed")
	}
}
