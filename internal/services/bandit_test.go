package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentmatch/engine/internal/config"
	"github.com/scentmatch/engine/pkg/models"
)

func newBanditTest(t *testing.T) (*BanditService, pgxmock.PgxPoolIface) {
	t.Helper()
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewBanditService(mockDB, config.Default(), logger), mockDB
}

func assertWeightsSumToOne(t *testing.T, weights map[string]float64) {
	t.Helper()
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestBanditService_WeightsFor(t *testing.T) {
	ctx := context.Background()

	t.Run("below interaction floor uses cohort defaults", func(t *testing.T) {
		bandit, mockDB := newBanditTest(t)
		userID := uuid.New()

		weights := bandit.WeightsFor(ctx, userID, 2)

		assert.InDelta(t, 0.6, weights[models.SignalSimilarity], 1e-6)
		assert.InDelta(t, 0.2, weights[models.SignalCollaborative], 1e-6)
		assertWeightsSumToOne(t, weights)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("missing state falls back to defaults", func(t *testing.T) {
		bandit, mockDB := newBanditTest(t)
		userID := uuid.New()

		mockDB.ExpectQuery("SELECT user_id, signal_weights").
			WithArgs(userID).
			WillReturnError(pgx.ErrNoRows)

		weights := bandit.WeightsFor(ctx, userID, 10)

		assert.InDelta(t, 0.6, weights[models.SignalSimilarity], 1e-6)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("stored weights are renormalized", func(t *testing.T) {
		bandit, mockDB := newBanditTest(t)
		userID := uuid.New()

		stored := map[string]float64{
			models.SignalSimilarity:    0.8,
			models.SignalCollaborative: 0.4,
			models.SignalContent:       0.2,
			models.SignalContextual:    0.2,
		}
		weightsJSON, _ := json.Marshal(stored)
		posteriorsJSON, _ := json.Marshal(map[string]models.SignalBandit{})

		mockDB.ExpectQuery("SELECT user_id, signal_weights").
			WithArgs(userID).
			WillReturnRows(pgxmock.NewRows([]string{
				"user_id", "signal_weights", "posteriors", "success_rate", "updated_at",
			}).AddRow(userID, weightsJSON, posteriorsJSON, 0.5, time.Now()))

		weights := bandit.WeightsFor(ctx, userID, 10)

		assertWeightsSumToOne(t, weights)
		assert.InDelta(t, 0.5, weights[models.SignalSimilarity], 1e-6)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestBanditService_RecordOutcome(t *testing.T) {
	ctx := context.Background()

	t.Run("success shifts weight toward the dominant signal", func(t *testing.T) {
		bandit, mockDB := newBanditTest(t)
		userID := uuid.New()

		mockDB.ExpectQuery("SELECT user_id, signal_weights").
			WithArgs(userID).
			WillReturnError(pgx.ErrNoRows)
		mockDB.ExpectExec("INSERT INTO bandit_states").
			WithArgs(userID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		state, err := bandit.RecordOutcome(ctx, userID, models.SignalCollaborative, true)
		require.NoError(t, err)

		assertWeightsSumToOne(t, state.SignalWeights)
		// Beta(2,1) mean beats the untouched Beta(1,1) signals.
		assert.Greater(t, state.SignalWeights[models.SignalCollaborative],
			state.SignalWeights[models.SignalSimilarity])
		assert.Equal(t, 2.0, state.Posteriors[models.SignalCollaborative].Alpha)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("failure shifts weight away from the dominant signal", func(t *testing.T) {
		bandit, mockDB := newBanditTest(t)
		userID := uuid.New()

		mockDB.ExpectQuery("SELECT user_id, signal_weights").
			WithArgs(userID).
			WillReturnError(pgx.ErrNoRows)
		mockDB.ExpectExec("INSERT INTO bandit_states").
			WithArgs(userID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		state, err := bandit.RecordOutcome(ctx, userID, models.SignalSimilarity, false)
		require.NoError(t, err)

		assertWeightsSumToOne(t, state.SignalWeights)
		assert.Less(t, state.SignalWeights[models.SignalSimilarity],
			state.SignalWeights[models.SignalContent])
		assert.Equal(t, 2.0, state.Posteriors[models.SignalSimilarity].Beta)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("unknown signal is rejected", func(t *testing.T) {
		bandit, mockDB := newBanditTest(t)
		userID := uuid.New()

		mockDB.ExpectQuery("SELECT user_id, signal_weights").
			WithArgs(userID).
			WillReturnError(pgx.ErrNoRows)

		_, err := bandit.RecordOutcome(ctx, userID, "astrology", true)

		var validationErr *models.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("success rate moves with smoothing", func(t *testing.T) {
		bandit, mockDB := newBanditTest(t)
		userID := uuid.New()

		mockDB.ExpectQuery("SELECT user_id, signal_weights").
			WithArgs(userID).
			WillReturnError(pgx.ErrNoRows)
		mockDB.ExpectExec("INSERT INTO bandit_states").
			WithArgs(userID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		state, err := bandit.RecordOutcome(ctx, userID, models.SignalSimilarity, true)
		require.NoError(t, err)

		// 0.8 * 0.5 + 0.2 * 1.0
		assert.InDelta(t, 0.6, state.SuccessRate, 1e-9)
	})
}
