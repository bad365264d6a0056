package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentmatch/engine/internal/config"
	"github.com/scentmatch/engine/pkg/models"
)

type stubItems struct {
	item *models.CatalogItem
	err  error
}

func (s *stubItems) GetItem(context.Context, uuid.UUID) (*models.CatalogItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.item, nil
}

type capturePublisher struct {
	published []*models.Interaction
}

func (c *capturePublisher) PublishInteraction(_ context.Context, in *models.Interaction) error {
	c.published = append(c.published, in)
	return nil
}

type feedbackTestEnv struct {
	processor *FeedbackProcessor
	mockDB    pgxmock.PgxPoolIface
	caches    *CacheTiers
	graph     *stubGraph
	publisher *capturePublisher
	userID    uuid.UUID
	item      *models.CatalogItem
}

func newFeedbackTest(t *testing.T, item *models.CatalogItem) *feedbackTestEnv {
	t.Helper()
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	cfg := config.Default()
	registry := NewTraitRegistry()
	caches := NewMemoryCacheTiers(&cfg.Caching)
	builder := NewProfileBuilder(cfg, registry, logger)
	profiles := NewProfileService(mockDB, builder, caches, cfg, logger)
	bandit := NewBanditService(mockDB, cfg, logger)
	lists := NewRecommendationOrchestrator(profiles, nil, nil, caches, nil, cfg, logger)
	graph := &stubGraph{}
	publisher := &capturePublisher{}

	env := &feedbackTestEnv{
		mockDB:    mockDB,
		caches:    caches,
		graph:     graph,
		publisher: publisher,
		userID:    uuid.New(),
		item:      item,
	}
	env.processor = NewFeedbackProcessor(
		mockDB, profiles, &stubItems{item: item}, graph, bandit,
		publisher, lists, caches, registry, cfg, logger)
	return env
}

func profileColumns() []string {
	return []string{
		"user_id", "profile_vector", "trait_weights", "confidence_score",
		"stated_audience_preference", "interaction_count", "created_at", "updated_at",
	}
}

func (env *feedbackTestEnv) profileRow(updatedAt time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(profileColumns()).AddRow(
		env.userID, pgvector.NewVector(unitVector(16)),
		map[string]float64{"woody": 1.0}, 0.8, models.AudienceMasculine,
		20, updatedAt.Add(-time.Hour), updatedAt)
}

// expectLike queues the full store conversation for one successful "like":
// duplicate check, interaction insert, profile read and write, then the
// two bandit reads and the bandit upsert.
func (env *feedbackTestEnv) expectLike(t *testing.T, priors int) {
	t.Helper()
	updatedAt := time.Now().Add(-time.Minute)

	env.mockDB.ExpectQuery("SELECT COUNT").
		WithArgs(env.userID, env.item.ID, models.InteractionLike, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(priors))
	env.mockDB.ExpectExec("INSERT INTO interactions").
		WithArgs(pgxmock.AnyArg(), env.userID, env.item.ID, models.InteractionLike, 0.8, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	env.mockDB.ExpectQuery("SELECT user_id, profile_vector").
		WithArgs(env.userID).
		WillReturnRows(env.profileRow(updatedAt))
	env.mockDB.ExpectExec("UPDATE user_profiles").
		WithArgs(env.userID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			21, pgxmock.AnyArg(), updatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	// Signal attribution and the outcome update each read bandit state.
	env.mockDB.ExpectQuery("SELECT user_id, signal_weights").
		WithArgs(env.userID).
		WillReturnError(pgx.ErrNoRows)
	env.mockDB.ExpectQuery("SELECT user_id, signal_weights").
		WithArgs(env.userID).
		WillReturnError(pgx.ErrNoRows)
	env.mockDB.ExpectExec("INSERT INTO bandit_states").
		WithArgs(env.userID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func TestFeedbackProcessor_Process(t *testing.T) {
	ctx := context.Background()
	item := &models.CatalogItem{
		ID:             uuid.New(),
		Name:           "Bois Imaginaire",
		AudienceTarget: models.AudienceMasculine,
		MetadataVector: unitVector(0),
		Tags:           []string{"citrus"},
	}

	t.Run("like updates profile, bandit and caches", func(t *testing.T) {
		env := newFeedbackTest(t, item)
		env.expectLike(t, 0)

		ack, err := env.processor.Process(ctx, &models.FeedbackRequest{
			UserID: env.userID, ItemID: item.ID, FeedbackType: models.FeedbackLike,
		})
		require.NoError(t, err)

		assert.True(t, ack.PreferencesUpdated)
		assert.True(t, ack.WeightsAdjusted)
		// A full-reliability nudge moves the vector past the staleness
		// threshold, so derived caches are dropped eagerly.
		assert.Greater(t, ack.LearningImpact, env.processor.cfg.Feedback.InvalidationThreshold)
		assert.True(t, ack.CacheInvalidated)

		require.Len(t, env.graph.recorded, 1)
		assert.Equal(t, models.InteractionLike, env.graph.recorded[0].InteractionType)
		require.Len(t, env.publisher.published, 1)
		assert.NoError(t, env.mockDB.ExpectationsWereMet())
	})

	t.Run("repeated feedback carries diminishing weight", func(t *testing.T) {
		env := newFeedbackTest(t, item)
		env.expectLike(t, 2)

		ack, err := env.processor.Process(ctx, &models.FeedbackRequest{
			UserID: env.userID, ItemID: item.ID, FeedbackType: models.FeedbackLike,
		})
		require.NoError(t, err)

		// Two priors inside the window quarter the learning rate, which
		// keeps the shift below the invalidation threshold.
		assert.Less(t, ack.LearningImpact, env.processor.cfg.Feedback.InvalidationThreshold)
		assert.False(t, ack.CacheInvalidated)
		assert.NoError(t, env.mockDB.ExpectationsWereMet())
	})

	t.Run("light users attribute outcomes with cohort defaults", func(t *testing.T) {
		env := newFeedbackTest(t, item)
		updatedAt := time.Now().Add(-time.Minute)

		env.mockDB.ExpectQuery("SELECT COUNT").
			WithArgs(env.userID, item.ID, models.InteractionLike, pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
		env.mockDB.ExpectExec("INSERT INTO interactions").
			WithArgs(pgxmock.AnyArg(), env.userID, item.ID, models.InteractionLike, 0.8, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		env.mockDB.ExpectQuery("SELECT user_id, profile_vector").
			WithArgs(env.userID).
			WillReturnRows(pgxmock.NewRows(profileColumns()).AddRow(
				env.userID, pgvector.NewVector(unitVector(16)),
				map[string]float64{"woody": 1.0}, 0.2, models.AudienceMasculine,
				2, updatedAt.Add(-time.Hour), updatedAt))
		env.mockDB.ExpectExec("UPDATE user_profiles").
			WithArgs(env.userID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				3, pgxmock.AnyArg(), updatedAt).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		// Below the interaction floor only the outcome update reads
		// bandit state; attribution stays on the default weights.
		env.mockDB.ExpectQuery("SELECT user_id, signal_weights").
			WithArgs(env.userID).
			WillReturnError(pgx.ErrNoRows)
		env.mockDB.ExpectExec("INSERT INTO bandit_states").
			WithArgs(env.userID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		ack, err := env.processor.Process(ctx, &models.FeedbackRequest{
			UserID: env.userID, ItemID: item.ID, FeedbackType: models.FeedbackLike,
		})
		require.NoError(t, err)

		assert.True(t, ack.WeightsAdjusted)
		assert.NoError(t, env.mockDB.ExpectationsWereMet())
	})

	t.Run("write conflicts exhaust retries", func(t *testing.T) {
		env := newFeedbackTest(t, item)
		updatedAt := time.Now().Add(-time.Minute)

		env.mockDB.ExpectQuery("SELECT COUNT").
			WithArgs(env.userID, item.ID, models.InteractionLike, pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
		env.mockDB.ExpectExec("INSERT INTO interactions").
			WithArgs(pgxmock.AnyArg(), env.userID, item.ID, models.InteractionLike, 0.8, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		for i := 0; i < env.processor.cfg.Feedback.MaxUpdateRetries; i++ {
			env.mockDB.ExpectQuery("SELECT user_id, profile_vector").
				WithArgs(env.userID).
				WillReturnRows(env.profileRow(updatedAt))
			env.mockDB.ExpectExec("UPDATE user_profiles").
				WithArgs(env.userID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					21, pgxmock.AnyArg(), updatedAt).
				WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		}

		_, err := env.processor.Process(ctx, &models.FeedbackRequest{
			UserID: env.userID, ItemID: item.ID, FeedbackType: models.FeedbackLike,
		})

		assert.ErrorIs(t, err, models.ErrConflict)
		assert.NoError(t, env.mockDB.ExpectationsWereMet())
	})

	t.Run("unknown feedback type is rejected before any write", func(t *testing.T) {
		env := newFeedbackTest(t, item)

		_, err := env.processor.Process(ctx, &models.FeedbackRequest{
			UserID: env.userID, ItemID: item.ID, FeedbackType: "meh",
		})

		var validationErr *models.ValidationError
		assert.ErrorAs(t, err, &validationErr)
		assert.NoError(t, env.mockDB.ExpectationsWereMet())
	})

	t.Run("rate without a rating is rejected", func(t *testing.T) {
		env := newFeedbackTest(t, item)

		_, err := env.processor.Process(ctx, &models.FeedbackRequest{
			UserID: env.userID, ItemID: item.ID, FeedbackType: models.FeedbackRate,
		})

		var validationErr *models.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "rating", validationErr.Field)
		assert.NoError(t, env.mockDB.ExpectationsWereMet())
	})

	t.Run("unknown item is rejected", func(t *testing.T) {
		env := newFeedbackTest(t, item)
		env.processor.items = &stubItems{err: models.ErrUnavailable}

		_, err := env.processor.Process(ctx, &models.FeedbackRequest{
			UserID: env.userID, ItemID: uuid.New(), FeedbackType: models.FeedbackLike,
		})

		var validationErr *models.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "item_id", validationErr.Field)
		assert.NoError(t, env.mockDB.ExpectationsWereMet())
	})
}

func TestResolveEffect(t *testing.T) {
	p := &FeedbackProcessor{}
	rating := func(v float64) *float64 { return &v }

	tests := []struct {
		name      string
		req       *models.FeedbackRequest
		wantType  string
		magnitude float64
		direction float64
	}{
		{"love saves at full strength", &models.FeedbackRequest{FeedbackType: models.FeedbackLove}, models.InteractionSave, 1.0, 1},
		{"like is strong positive", &models.FeedbackRequest{FeedbackType: models.FeedbackLike}, models.InteractionLike, 0.8, 1},
		{"dislike is strong negative", &models.FeedbackRequest{FeedbackType: models.FeedbackDislike}, models.InteractionDislike, 0.8, -1},
		{"not interested is a soft removal", &models.FeedbackRequest{FeedbackType: models.FeedbackNotInterested}, models.InteractionRemove, 0.5, -1},
		{"high rating is positive", &models.FeedbackRequest{FeedbackType: models.FeedbackRate, Rating: rating(4)}, models.InteractionRate, 0.8, 1},
		{"low rating flips direction", &models.FeedbackRequest{FeedbackType: models.FeedbackRate, Rating: rating(2)}, models.InteractionRate, 0.4, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			effect, err := p.resolveEffect(tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, effect.interactionType)
			assert.InDelta(t, tt.magnitude, effect.magnitude, 1e-9)
			assert.Equal(t, tt.direction, effect.direction)
		})
	}

	t.Run("out of range rating is rejected", func(t *testing.T) {
		_, err := p.resolveEffect(&models.FeedbackRequest{
			FeedbackType: models.FeedbackRate, Rating: rating(6),
		})
		var validationErr *models.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})
}

func TestDominantFromBreakdown(t *testing.T) {
	weights := map[string]float64{
		models.SignalSimilarity:    0.6,
		models.SignalCollaborative: 0.2,
		models.SignalContent:       0.15,
		models.SignalContextual:    0.05,
	}

	t.Run("weighted contribution wins over raw value", func(t *testing.T) {
		// Contextual has the highest raw value but the lowest weight.
		breakdown := models.SignalBreakdown{Similarity: 0.5, Contextual: 1.0}
		assert.Equal(t, models.SignalSimilarity, dominantFromBreakdown(breakdown, weights))
	})

	t.Run("ties break lexicographically", func(t *testing.T) {
		breakdown := models.SignalBreakdown{Collaborative: 0.3, Content: 0.4}
		// Both contribute 0.06; collaborative sorts first.
		assert.Equal(t, models.SignalCollaborative, dominantFromBreakdown(breakdown, weights))
	})
}
