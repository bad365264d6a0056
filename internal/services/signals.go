package services

import (
	"math"

	"github.com/google/uuid"

	"github.com/scentmatch/engine/pkg/models"
)

// ScoringInputs carries everything the signal computers need for one
// scoring pass. NeighborPreference is precomputed once per request from
// the interaction graph (decayed), including any cold-start boost.
type ScoringInputs struct {
	Profile            *models.UserProfile
	Context            *models.RequestContext
	NeighborPreference map[uuid.UUID]float64

	// CollaborativeAvailable is false when no sufficiently similar
	// neighbor exists; the scorer then redistributes the collaborative
	// weight over the remaining signals.
	CollaborativeAvailable bool
}

// SignalComputer scores one item on one relevance signal, normalized to
// [0,1]. ok is false when the signal cannot be computed for this item
// (e.g. missing metadata vector); the item is still scored on the rest.
type SignalComputer interface {
	Name() string
	Score(inputs *ScoringInputs, item *models.CatalogItem) (score float64, ok bool)
}

// SimilaritySignal is the cosine similarity between the profile vector
// and the item metadata vector, clamped to [0,1].
type SimilaritySignal struct{}

func (SimilaritySignal) Name() string { return models.SignalSimilarity }

func (SimilaritySignal) Score(inputs *ScoringInputs, item *models.CatalogItem) (float64, bool) {
	if len(item.MetadataVector) == 0 || !hasNonZero(inputs.Profile.ProfileVector) {
		return 0, false
	}
	cos := cosineSimilarity(inputs.Profile.ProfileVector, item.MetadataVector)
	return clamp01(cos), true
}

// CollaborativeSignal reads the precomputed decayed positive-interaction
// rate of similar profiles for this item: users like you also liked this.
type CollaborativeSignal struct{}

func (CollaborativeSignal) Name() string { return models.SignalCollaborative }

func (CollaborativeSignal) Score(inputs *ScoringInputs, item *models.CatalogItem) (float64, bool) {
	if !inputs.CollaborativeAvailable {
		return 0, false
	}
	if len(item.MetadataVector) == 0 {
		// Malformed item: keep it out of vector-derived signals.
		return 0, false
	}
	return clamp01(inputs.NeighborPreference[item.ID]), true
}

// ContentSignal is a trait-weighted Jaccard overlap between the profile's
// trait weights and the item's categorical tags.
type ContentSignal struct {
	Registry *TraitRegistry
}

func (ContentSignal) Name() string { return models.SignalContent }

func (s ContentSignal) Score(inputs *ScoringInputs, item *models.CatalogItem) (float64, bool) {
	if len(inputs.Profile.TraitWeights) == 0 || len(item.Tags) == 0 {
		return 0, true
	}

	tagWeight := 1.0 / float64(len(item.Tags))
	tagSet := make(map[string]bool, len(item.Tags))
	for _, tag := range item.Tags {
		tagSet[s.Registry.Canonical(tag)] = true
	}

	intersection := 0.0
	union := 0.0
	for trait, weight := range inputs.Profile.TraitWeights {
		if tagSet[trait] {
			intersection += math.Min(weight, tagWeight)
			union += math.Max(weight, tagWeight)
			delete(tagSet, trait)
		} else {
			union += weight
		}
	}
	union += float64(len(tagSet)) * tagWeight

	if union == 0 {
		return 0, true
	}
	return clamp01(intersection / union), true
}

// ContextualSignal boosts items whose tags match the request's season or
// occasion, up to 1.0 for matching both.
type ContextualSignal struct {
	Registry *TraitRegistry
}

func (ContextualSignal) Name() string { return models.SignalContextual }

func (s ContextualSignal) Score(inputs *ScoringInputs, item *models.CatalogItem) (float64, bool) {
	if inputs.Context == nil {
		return 0, true
	}

	tagSet := make(map[string]bool, len(item.Tags))
	for _, tag := range item.Tags {
		tagSet[s.Registry.Canonical(tag)] = true
	}

	boost := 0.0
	if inputs.Context.Season != "" {
		if tagSet["season_"+inputs.Context.Season] || tagSet[inputs.Context.Season] {
			boost += 0.5
		}
	}
	if inputs.Context.Occasion != "" {
		if tagSet["occasion_"+inputs.Context.Occasion] || tagSet[inputs.Context.Occasion] {
			boost += 0.5
		}
	}
	return clamp01(boost), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
