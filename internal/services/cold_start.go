package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/internal/config"
	"github.com/scentmatch/engine/pkg/models"
)

// ColdStartResolver derives collaborative preference from the interaction
// graph of similar profiles. For cold profiles it restricts neighbors to
// those with high-magnitude interactions and applies an additive boost so
// that sparse users still get usable collaborative evidence.
type ColdStartResolver struct {
	profiles ProfileReader
	graph    InteractionGraph
	decay    *DecayEngine
	cfg      *config.RecommendationConfig
	logger   *logrus.Logger
}

func NewColdStartResolver(profiles ProfileReader, graph InteractionGraph, decay *DecayEngine, cfg *config.RecommendationConfig, logger *logrus.Logger) *ColdStartResolver {
	return &ColdStartResolver{
		profiles: profiles,
		graph:    graph,
		decay:    decay,
		cfg:      cfg,
		logger:   logger,
	}
}

// IsColdStart reports whether the profile has too little evidence for the
// regular collaborative path.
func (r *ColdStartResolver) IsColdStart(profile *models.UserProfile) bool {
	return profile.ConfidenceScore < r.cfg.ColdStart.ConfidenceThreshold ||
		profile.InteractionCount < r.cfg.ColdStart.MinInteractions
}

// NeighborPreferences computes a per-item preference rate in [0,1] from
// the decayed interactions similar profiles had with the candidate items.
// The second return is false when no sufficiently similar neighbor
// exists, in which case the caller redistributes the collaborative
// weight over the remaining signals.
func (r *ColdStartResolver) NeighborPreferences(ctx context.Context, profile *models.UserProfile, itemIDs []uuid.UUID) (map[uuid.UUID]float64, bool, error) {
	coldStart := r.IsColdStart(profile)

	threshold := r.cfg.Signals.NeighborSimilarityThreshold
	limit := r.cfg.Signals.NeighborLimit
	if coldStart {
		threshold = r.cfg.ColdStart.SimilarityThreshold
		limit = r.cfg.ColdStart.NeighborK
	}

	neighbors, err := r.profiles.SimilarProfiles(ctx, profile, threshold, limit)
	if err != nil {
		return nil, false, err
	}
	if len(neighbors) == 0 {
		r.logger.WithFields(logrus.Fields{
			"user_id":    profile.UserID,
			"cold_start": coldStart,
		}).Debug("No similar profiles above threshold")
		return nil, false, nil
	}

	if coldStart {
		// Cold profiles only trust strong signals from neighbors.
		neighbors, err = r.graph.FilterActiveNeighbors(ctx, neighbors, r.cfg.ColdStart.HighMagnitudeRating)
		if err != nil {
			return nil, false, err
		}
		if len(neighbors) == 0 {
			return nil, false, nil
		}
	}

	neighborIDs := make([]uuid.UUID, 0, len(neighbors))
	similarity := make(map[uuid.UUID]float64, len(neighbors))
	for _, n := range neighbors {
		neighborIDs = append(neighborIDs, n.UserID)
		similarity[n.UserID] = n.SimilarityScore
	}

	interactions, err := r.graph.NeighborInteractions(ctx, neighborIDs, itemIDs)
	if err != nil {
		return nil, false, err
	}
	if len(interactions) == 0 {
		return nil, false, nil
	}

	now := time.Now()
	weighted := make(map[uuid.UUID]float64)
	totals := make(map[uuid.UUID]float64)
	for _, in := range interactions {
		sim := similarity[in.UserID]
		magnitude := r.decay.EffectiveMagnitude(in.Magnitude, in.CreatedAt, now)
		if in.Type == models.InteractionDislike || in.Type == models.InteractionRemove {
			magnitude = -magnitude
		}
		weighted[in.ItemID] += sim * magnitude
		totals[in.ItemID] += sim
	}

	prefs := make(map[uuid.UUID]float64, len(weighted))
	for itemID, sum := range weighted {
		rate := clamp01(sum / totals[itemID])
		if coldStart {
			rate = clamp01(rate * (1 + r.cfg.ColdStart.MaxBoost))
		}
		prefs[itemID] = rate
	}

	return prefs, true, nil
}
