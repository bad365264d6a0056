package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentmatch/engine/internal/config"
	"github.com/scentmatch/engine/pkg/models"
)

type stubProfileReader struct {
	profile   *models.UserProfile
	neighbors []models.SimilarProfile
	err       error
}

func (s *stubProfileReader) GetProfile(context.Context, uuid.UUID) (*models.UserProfile, error) {
	if s.profile == nil {
		return nil, models.ErrProfileNotFound
	}
	return s.profile, s.err
}

func (s *stubProfileReader) SimilarProfiles(context.Context, *models.UserProfile, float64, int) ([]models.SimilarProfile, error) {
	return s.neighbors, s.err
}

type stubGraph struct {
	active       []models.SimilarProfile
	interactions []NeighborInteraction
	recorded     []*models.Interaction
	err          error
}

func (s *stubGraph) RecordInteraction(_ context.Context, in *models.Interaction) error {
	s.recorded = append(s.recorded, in)
	return s.err
}

func (s *stubGraph) FilterActiveNeighbors(context.Context, []models.SimilarProfile, float64) ([]models.SimilarProfile, error) {
	return s.active, s.err
}

func (s *stubGraph) NeighborInteractions(context.Context, []uuid.UUID, []uuid.UUID) ([]NeighborInteraction, error) {
	return s.interactions, s.err
}

type stubBandit struct {
	weights map[string]float64
}

func (s *stubBandit) WeightsFor(context.Context, uuid.UUID, int) map[string]float64 {
	out := make(map[string]float64, len(s.weights))
	for k, v := range s.weights {
		out[k] = v
	}
	return out
}

func defaultTestWeights() map[string]float64 {
	return map[string]float64{
		models.SignalSimilarity:    0.6,
		models.SignalCollaborative: 0.2,
		models.SignalContent:       0.15,
		models.SignalContextual:    0.05,
	}
}

func newScorerTest(profiles ProfileReader, graph InteractionGraph, bandit BanditReader) *HybridScorer {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	cfg := config.Default()
	decay := NewDecayEngine(&cfg.Decay)
	resolver := NewColdStartResolver(profiles, graph, decay, cfg, logger)
	return NewHybridScorer(bandit, resolver, NewTraitRegistry(), cfg, logger)
}

func warmProfile() *models.UserProfile {
	return &models.UserProfile{
		UserID:           uuid.New(),
		ProfileVector:    unitVector(16), // woody block
		TraitWeights:     map[string]float64{"woody": 1.0},
		ConfidenceScore:  0.8,
		StatedAudience:   models.AudienceMasculine,
		InteractionCount: 20,
	}
}

func TestHybridScorer_Score(t *testing.T) {
	ctx := context.Background()
	bandit := &stubBandit{weights: defaultTestWeights()}

	t.Run("orders by score with deterministic tie-breaks", func(t *testing.T) {
		scorer := newScorerTest(&stubProfileReader{}, &stubGraph{}, bandit)
		profile := warmProfile()

		best := models.CatalogItem{ID: uuid.New(), MetadataVector: unitVector(16), Popularity: 1}
		popular := models.CatalogItem{ID: uuid.New(), MetadataVector: unitVector(0), Popularity: 100}
		obscure := models.CatalogItem{ID: uuid.New(), MetadataVector: unitVector(0), Popularity: 5}

		recs, err := scorer.Score(ctx, profile, []models.CatalogItem{obscure, popular, best}, nil, 10)
		require.NoError(t, err)
		require.Len(t, recs, 3)

		assert.Equal(t, best.ID, recs[0].ItemID)
		// popular and obscure tie on score; popularity breaks it.
		assert.Equal(t, popular.ID, recs[1].ItemID)
		assert.Equal(t, obscure.ID, recs[2].ItemID)
		assert.Equal(t, []int{1, 2, 3}, []int{recs[0].Position, recs[1].Position, recs[2].Position})
	})

	t.Run("equal score and popularity falls back to item id", func(t *testing.T) {
		scorer := newScorerTest(&stubProfileReader{}, &stubGraph{}, bandit)
		profile := warmProfile()

		a := models.CatalogItem{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), MetadataVector: unitVector(0), Popularity: 5}
		b := models.CatalogItem{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), MetadataVector: unitVector(0), Popularity: 5}

		recs, err := scorer.Score(ctx, profile, []models.CatalogItem{b, a}, nil, 10)
		require.NoError(t, err)
		assert.Equal(t, a.ID, recs[0].ItemID)
		assert.Equal(t, b.ID, recs[1].ItemID)
	})

	t.Run("same inputs produce the same ranking", func(t *testing.T) {
		scorer := newScorerTest(&stubProfileReader{}, &stubGraph{}, bandit)
		profile := warmProfile()

		items := make([]models.CatalogItem, 0, 20)
		for i := 0; i < 20; i++ {
			items = append(items, models.CatalogItem{
				ID:             uuid.New(),
				MetadataVector: unitVector(i % models.ProfileVectorDim),
				Popularity:     int64(i % 3),
			})
		}

		first, err := scorer.Score(ctx, profile, items, nil, 20)
		require.NoError(t, err)
		second, err := scorer.Score(ctx, profile, items, nil, 20)
		require.NoError(t, err)

		for i := range first {
			assert.Equal(t, first[i].ItemID, second[i].ItemID)
			assert.Equal(t, first[i].Score, second[i].Score)
		}
	})

	t.Run("list length is the smaller of count and candidates", func(t *testing.T) {
		scorer := newScorerTest(&stubProfileReader{}, &stubGraph{}, bandit)
		profile := warmProfile()

		items := []models.CatalogItem{
			{ID: uuid.New(), MetadataVector: unitVector(0)},
			{ID: uuid.New(), MetadataVector: unitVector(1)},
			{ID: uuid.New(), MetadataVector: unitVector(2)},
		}

		recs, err := scorer.Score(ctx, profile, items, nil, 2)
		require.NoError(t, err)
		assert.Len(t, recs, 2)

		recs, err = scorer.Score(ctx, profile, items, nil, 10)
		require.NoError(t, err)
		assert.Len(t, recs, 3)
	})

	t.Run("missing metadata vector still scores on remaining signals", func(t *testing.T) {
		scorer := newScorerTest(&stubProfileReader{}, &stubGraph{}, bandit)
		profile := warmProfile()

		malformed := models.CatalogItem{ID: uuid.New(), Tags: []string{"woody"}}

		recs, err := scorer.Score(ctx, profile, []models.CatalogItem{malformed}, nil, 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)

		assert.Zero(t, recs[0].Signals.Similarity)
		assert.Greater(t, recs[0].Signals.Content, 0.0)
		assert.Greater(t, recs[0].Score, 0.0)
	})

	t.Run("collaborative weight is redistributed without neighbors", func(t *testing.T) {
		scorer := newScorerTest(&stubProfileReader{}, &stubGraph{}, bandit)
		profile := warmProfile()

		perfect := models.CatalogItem{ID: uuid.New(), MetadataVector: unitVector(16), Tags: []string{"woody"}}

		recs, err := scorer.Score(ctx, profile, []models.CatalogItem{perfect}, nil, 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)

		// Similarity 1.0 at redistributed weight 0.6/0.8 plus content 1.0
		// at 0.15/0.8.
		assert.InDelta(t, 0.9375, recs[0].Score, 1e-6)
	})

	t.Run("neighbor evidence feeds the collaborative signal", func(t *testing.T) {
		profile := warmProfile()
		liked := models.CatalogItem{ID: uuid.New(), MetadataVector: unitVector(0)}
		ignored := models.CatalogItem{ID: uuid.New(), MetadataVector: unitVector(0)}

		neighbor := models.SimilarProfile{UserID: uuid.New(), SimilarityScore: 0.9}
		graph := &stubGraph{
			interactions: []NeighborInteraction{{
				UserID:    neighbor.UserID,
				ItemID:    liked.ID,
				Type:      models.InteractionLike,
				Magnitude: 1.0,
				CreatedAt: time.Now(),
			}},
		}
		scorer := newScorerTest(&stubProfileReader{neighbors: []models.SimilarProfile{neighbor}}, graph, bandit)

		recs, err := scorer.Score(ctx, profile, []models.CatalogItem{liked, ignored}, nil, 10)
		require.NoError(t, err)
		require.Len(t, recs, 2)

		assert.Equal(t, liked.ID, recs[0].ItemID)
		assert.Greater(t, recs[0].Signals.Collaborative, recs[1].Signals.Collaborative)
	})

	t.Run("cancelled context aborts scoring", func(t *testing.T) {
		scorer := newScorerTest(&stubProfileReader{}, &stubGraph{}, bandit)
		profile := warmProfile()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		items := make([]models.CatalogItem, 100)
		for i := range items {
			items[i] = models.CatalogItem{ID: uuid.New(), MetadataVector: unitVector(0)}
		}

		_, err := scorer.Score(cancelled, profile, items, nil, 10)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("empty candidates yield empty list", func(t *testing.T) {
		scorer := newScorerTest(&stubProfileReader{}, &stubGraph{}, bandit)
		recs, err := scorer.Score(ctx, warmProfile(), nil, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}
