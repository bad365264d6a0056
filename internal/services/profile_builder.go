package services

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/scentmatch/engine/internal/config"
	"github.com/scentmatch/engine/pkg/models"
)

// ProfileBuilder turns questionnaire answers into a profile vector and
// trait-weight map. The encoding is structured and deterministic: no
// embedding provider is called, so building a profile costs nothing per
// user and the same answers always produce the same vector.
type ProfileBuilder struct {
	cfg      *config.RecommendationConfig
	registry *TraitRegistry
	logger   *logrus.Logger
}

func NewProfileBuilder(cfg *config.RecommendationConfig, registry *TraitRegistry, logger *logrus.Logger) *ProfileBuilder {
	return &ProfileBuilder{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
	}
}

// Build constructs a fresh UserProfile from a quiz submission. Unknown
// trait identifiers are dropped with a warning; an empty or entirely
// unknown answer set yields a cold profile with confidence 0, which the
// orchestrator routes through the cold-start resolver.
func (b *ProfileBuilder) Build(userID uuid.UUID, submission *models.QuizSubmission) *models.UserProfile {
	now := time.Now()
	profile := &models.UserProfile{
		UserID:         userID,
		ProfileVector:  make([]float32, models.ProfileVectorDim),
		TraitWeights:   make(map[string]float64),
		StatedAudience: submission.StatedAudience,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	traitsByTier := b.collectTraits(userID, submission.Answers)
	if len(traitsByTier) == 0 {
		return profile // cold profile, confidence 0
	}

	// Split each tier's weight evenly among its traits, then normalize the
	// whole map to 1.0 so partially answered tiers still satisfy the
	// sum-to-one invariant.
	for tier, traits := range traitsByTier {
		tierWeight := b.tierWeight(tier)
		share := tierWeight / float64(len(traits))
		for _, trait := range traits {
			profile.TraitWeights[trait] += share
		}
	}
	normalizeWeights(profile.TraitWeights)

	raw := make([]float64, models.ProfileVectorDim)
	for trait, weight := range profile.TraitWeights {
		dims, ok := b.registry.Lookup(trait)
		if !ok {
			continue
		}
		for d := dims.Start; d < dims.End; d++ {
			raw[d] += weight
		}
	}

	if n := floats.Norm(raw, 2); n > 0 {
		floats.Scale(1/n, raw)
	}
	for i, v := range raw {
		profile.ProfileVector[i] = float32(v)
	}

	profile.ConfidenceScore = b.initialConfidence(traitsByTier, len(submission.Answers))
	return profile
}

// collectTraits resolves and deduplicates valid trait identifiers per tier.
func (b *ProfileBuilder) collectTraits(userID uuid.UUID, answers []models.QuestionnaireAnswer) map[string][]string {
	traitsByTier := make(map[string][]string)
	seen := make(map[string]bool)

	for _, answer := range answers {
		for _, rawTrait := range answer.TraitIDs {
			trait := b.registry.Canonical(rawTrait)
			if _, ok := b.registry.Lookup(trait); !ok {
				b.logger.WithFields(logrus.Fields{
					"user_id":     userID,
					"question_id": answer.QuestionID,
					"trait":       rawTrait,
				}).Warn("Dropping unknown trait identifier")
				continue
			}
			if seen[trait] {
				continue
			}
			seen[trait] = true
			traitsByTier[answer.Tier] = append(traitsByTier[answer.Tier], trait)
		}
	}
	return traitsByTier
}

func (b *ProfileBuilder) tierWeight(tier string) float64 {
	switch tier {
	case "primary":
		return b.cfg.Profile.PrimaryTierWeight
	case "secondary":
		return b.cfg.Profile.SecondaryTierWeight
	case "tertiary":
		return b.cfg.Profile.TertiaryTierWeight
	default:
		return 0
	}
}

// initialConfidence is a tier-weighted completeness ratio: covering all
// three tiers with a full-length questionnaire approaches 1.0, a single
// sparse tier lands well below the cold-start threshold.
func (b *ProfileBuilder) initialConfidence(traitsByTier map[string][]string, answered int) float64 {
	tierCoverage := 0.0
	for tier := range traitsByTier {
		tierCoverage += b.tierWeight(tier)
	}

	questionRatio := math.Min(1.0, float64(answered)/float64(b.cfg.Profile.QuestionCountTarget))
	confidence := b.cfg.Profile.BaseConfidence*tierCoverage +
		(1-b.cfg.Profile.BaseConfidence)*tierCoverage*questionRatio
	return math.Min(confidence, 1.0)
}

// DominantTraits returns the top-n traits by weight, for the profile
// summary projection.
func (b *ProfileBuilder) DominantTraits(profile *models.UserProfile, n int) []models.WeightedTrait {
	traits := make([]models.WeightedTrait, 0, len(profile.TraitWeights))
	for trait, weight := range profile.TraitWeights {
		traits = append(traits, models.WeightedTrait{Trait: trait, Weight: weight})
	}
	sortWeightedTraits(traits)
	if len(traits) > n {
		traits = traits[:n]
	}
	return traits
}

// sortWeightedTraits orders by weight descending, trait name ascending on
// ties, so summaries are stable across calls.
func sortWeightedTraits(traits []models.WeightedTrait) {
	sort.Slice(traits, func(i, j int) bool {
		if traits[i].Weight != traits[j].Weight {
			return traits[i].Weight > traits[j].Weight
		}
		return traits[i].Trait < traits[j].Trait
	})
}

func normalizeWeights(weights map[string]float64) {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return
	}
	for trait := range weights {
		weights[trait] /= sum
	}
}
