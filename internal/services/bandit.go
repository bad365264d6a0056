package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/internal/config"
	"github.com/scentmatch/engine/pkg/models"
)

// BanditService learns per-user signal weights from feedback outcomes.
// Each signal carries a Beta(alpha, beta) posterior; the published
// weights are the normalized posterior means, so a liked recommendation
// always nudges weight toward the signal that argued loudest for it.
//
// Users below the interaction floor score with the cohort defaults
// until they have enough feedback to personalize safely.
type BanditService struct {
	db     DatabaseQuerier
	cfg    *config.RecommendationConfig
	logger *logrus.Logger
}

func NewBanditService(db DatabaseQuerier, cfg *config.RecommendationConfig, logger *logrus.Logger) *BanditService {
	return &BanditService{db: db, cfg: cfg, logger: logger}
}

// DefaultWeights returns the cohort weights from config, normalized.
func (s *BanditService) DefaultWeights() map[string]float64 {
	weights := map[string]float64{
		models.SignalSimilarity:    s.cfg.Signals.SimilarityWeight,
		models.SignalCollaborative: s.cfg.Signals.CollaborativeWeight,
		models.SignalContent:       s.cfg.Signals.ContentWeight,
		models.SignalContextual:    s.cfg.Signals.ContextualWeight,
	}
	normalizeWeights(weights)
	return weights
}

// WeightsFor returns the signal weights to score this user with. Any
// failure to load state falls back to the defaults; weight lookup must
// never fail a recommendation request.
func (s *BanditService) WeightsFor(ctx context.Context, userID uuid.UUID, interactionCount int) map[string]float64 {
	if interactionCount < s.cfg.Feedback.MinInteractionsForBandit {
		return s.DefaultWeights()
	}

	state, err := s.loadState(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load bandit state, using default weights")
		return s.DefaultWeights()
	}
	if state == nil || len(state.SignalWeights) == 0 {
		return s.DefaultWeights()
	}

	weights := make(map[string]float64, len(state.SignalWeights))
	for signal, w := range state.SignalWeights {
		weights[signal] = w
	}
	normalizeWeights(weights)
	return weights
}

// RecordOutcome updates the posterior of the dominant signal with one
// success or failure observation and republishes the weights.
func (s *BanditService) RecordOutcome(ctx context.Context, userID uuid.UUID, dominantSignal string, success bool) (*models.BanditState, error) {
	state, err := s.loadState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = s.freshState(userID)
	}

	posterior, ok := state.Posteriors[dominantSignal]
	if !ok {
		return nil, models.NewValidationError("signal", fmt.Sprintf("unknown signal %q", dominantSignal))
	}
	if success {
		posterior.Alpha++
	} else {
		posterior.Beta++
	}
	state.Posteriors[dominantSignal] = posterior

	weights := make(map[string]float64, len(state.Posteriors))
	for signal, p := range state.Posteriors {
		weights[signal] = p.Alpha / (p.Alpha + p.Beta)
	}
	normalizeWeights(weights)
	state.SignalWeights = weights

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	smoothing := s.cfg.Feedback.SuccessRateSmoothing
	state.SuccessRate = (1-smoothing)*state.SuccessRate + smoothing*outcome
	state.UpdatedAt = time.Now()

	if err := s.saveState(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// freshState seeds every signal with a uniform Beta(1,1) prior; the
// published weights start at the cohort defaults rather than uniform so
// a user's first update moves off a sane baseline.
func (s *BanditService) freshState(userID uuid.UUID) *models.BanditState {
	return &models.BanditState{
		UserID: userID,
		Posteriors: map[string]models.SignalBandit{
			models.SignalSimilarity:    {Alpha: 1, Beta: 1},
			models.SignalCollaborative: {Alpha: 1, Beta: 1},
			models.SignalContent:       {Alpha: 1, Beta: 1},
			models.SignalContextual:    {Alpha: 1, Beta: 1},
		},
		SignalWeights: s.DefaultWeights(),
		SuccessRate:   0.5,
		UpdatedAt:     time.Now(),
	}
}

func (s *BanditService) loadState(ctx context.Context, userID uuid.UUID) (*models.BanditState, error) {
	var (
		weightsJSON    []byte
		posteriorsJSON []byte
		state          models.BanditState
	)

	row := s.db.QueryRow(ctx, `
		SELECT user_id, signal_weights, posteriors, success_rate, updated_at
		FROM bandit_states
		WHERE user_id = $1`, userID)

	err := row.Scan(&state.UserID, &weightsJSON, &posteriorsJSON, &state.SuccessRate, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load bandit state: %w", err)
	}

	if err := json.Unmarshal(weightsJSON, &state.SignalWeights); err != nil {
		return nil, fmt.Errorf("corrupt signal weights for user %s: %w", userID, err)
	}
	if err := json.Unmarshal(posteriorsJSON, &state.Posteriors); err != nil {
		return nil, fmt.Errorf("corrupt posteriors for user %s: %w", userID, err)
	}
	return &state, nil
}

func (s *BanditService) saveState(ctx context.Context, state *models.BanditState) error {
	weightsJSON, err := json.Marshal(state.SignalWeights)
	if err != nil {
		return fmt.Errorf("failed to marshal signal weights: %w", err)
	}
	posteriorsJSON, err := json.Marshal(state.Posteriors)
	if err != nil {
		return fmt.Errorf("failed to marshal posteriors: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO bandit_states (user_id, signal_weights, posteriors, success_rate, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			signal_weights = EXCLUDED.signal_weights,
			posteriors = EXCLUDED.posteriors,
			success_rate = EXCLUDED.success_rate,
			updated_at = EXCLUDED.updated_at`,
		state.UserID, weightsJSON, posteriorsJSON, state.SuccessRate, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save bandit state: %w", err)
	}
	return nil
}
