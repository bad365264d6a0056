package services

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/internal/config"
	"github.com/scentmatch/engine/pkg/models"
)

// HybridScorer ranks safety-filtered candidates by a weighted blend of
// the four relevance signals. Weights come from the user's bandit state;
// when the collaborative signal has no evidence its weight is
// redistributed proportionally over the remaining signals so scores stay
// comparable across users.
type HybridScorer struct {
	computers []SignalComputer
	bandit    BanditReader
	resolver  *ColdStartResolver
	cfg       *config.RecommendationConfig
	logger    *logrus.Logger
}

func NewHybridScorer(bandit BanditReader, resolver *ColdStartResolver, registry *TraitRegistry, cfg *config.RecommendationConfig, logger *logrus.Logger) *HybridScorer {
	return &HybridScorer{
		computers: []SignalComputer{
			SimilaritySignal{},
			CollaborativeSignal{},
			ContentSignal{Registry: registry},
			ContextualSignal{Registry: registry},
		},
		bandit:   bandit,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	}
}

// Score ranks the candidates for the profile and returns the top count,
// ordered by score descending with popularity then item id as
// deterministic tie-breaks.
func (s *HybridScorer) Score(ctx context.Context, profile *models.UserProfile, candidates []models.CatalogItem, reqCtx *models.RequestContext, count int) ([]models.Recommendation, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	itemIDs := make([]uuid.UUID, len(candidates))
	for i := range candidates {
		itemIDs[i] = candidates[i].ID
	}

	prefs, collabAvailable, err := s.resolver.NeighborPreferences(ctx, profile, itemIDs)
	if err != nil {
		// Collaborative evidence is optional; scoring proceeds without it.
		s.logger.WithError(err).WithField("user_id", profile.UserID).Warn("Neighbor preference lookup failed, scoring without collaborative signal")
		prefs, collabAvailable = nil, false
	}

	weights := s.bandit.WeightsFor(ctx, profile.UserID, profile.InteractionCount)
	if !collabAvailable {
		weights = redistributeWeight(weights, models.SignalCollaborative)
	}

	inputs := &ScoringInputs{
		Profile:                profile,
		Context:                reqCtx,
		NeighborPreference:     prefs,
		CollaborativeAvailable: collabAvailable,
	}

	recs := make([]models.Recommendation, len(candidates))
	workers := s.cfg.Scoring.WorkerCount
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				recs[i] = s.scoreItem(inputs, weights, &candidates[i])
			}
		}()
	}

	for i := range candidates {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	sortRecommendations(recs, candidates)

	if count > 0 && count < len(recs) {
		recs = recs[:count]
	}
	for i := range recs {
		recs[i].Position = i + 1
	}
	return recs, nil
}

func (s *HybridScorer) scoreItem(inputs *ScoringInputs, weights map[string]float64, item *models.CatalogItem) models.Recommendation {
	var breakdown models.SignalBreakdown
	total := 0.0
	dominant := ""
	dominantContribution := -1.0

	for _, computer := range s.computers {
		value, ok := computer.Score(inputs, item)
		if !ok {
			value = 0
		}

		switch computer.Name() {
		case models.SignalSimilarity:
			breakdown.Similarity = value
		case models.SignalCollaborative:
			breakdown.Collaborative = value
		case models.SignalContent:
			breakdown.Content = value
		case models.SignalContextual:
			breakdown.Contextual = value
		}

		contribution := weights[computer.Name()] * value
		total += contribution
		if ok && contribution > dominantContribution {
			dominant = computer.Name()
			dominantContribution = contribution
		}
	}

	return models.Recommendation{
		ItemID:      item.ID,
		Score:       total,
		Explanation: explanationFor(dominant, item),
		Signals:     breakdown,
		Item:        item,
	}
}

// sortRecommendations orders by score descending, then popularity
// descending, then item id ascending. The full chain makes ranking a
// pure function of its inputs.
func sortRecommendations(recs []models.Recommendation, candidates []models.CatalogItem) {
	popularity := make(map[uuid.UUID]int64, len(candidates))
	for i := range candidates {
		popularity[candidates[i].ID] = candidates[i].Popularity
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		pi, pj := popularity[recs[i].ItemID], popularity[recs[j].ItemID]
		if pi != pj {
			return pi > pj
		}
		return recs[i].ItemID.String() < recs[j].ItemID.String()
	})
}

// redistributeWeight removes one signal's weight and renormalizes the
// rest so they still sum to 1.
func redistributeWeight(weights map[string]float64, signal string) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for name, w := range weights {
		if name == signal {
			continue
		}
		out[name] = w
	}
	normalizeWeights(out)
	return out
}

func explanationFor(signal string, item *models.CatalogItem) string {
	switch signal {
	case models.SignalSimilarity:
		return "Closely matches your scent profile"
	case models.SignalCollaborative:
		return "Loved by users with similar taste"
	case models.SignalContent:
		return "Built around notes you favor"
	case models.SignalContextual:
		return "A strong fit for the moment you described"
	default:
		if item.Brand != "" {
			return "A popular pick from " + item.Brand
		}
		return "A popular pick right now"
	}
}
