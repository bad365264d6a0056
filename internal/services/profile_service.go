package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/internal/config"
	"github.com/scentmatch/engine/pkg/models"
)

// ProfileService owns UserProfile storage: quiz-driven creation, cached
// reads, optimistic-concurrency writes, and the pgvector similarity query
// behind neighbor lookups.
type ProfileService struct {
	db      DatabaseQuerier
	builder *ProfileBuilder
	caches  *CacheTiers
	cfg     *config.RecommendationConfig
	logger  *logrus.Logger
}

func NewProfileService(
	db DatabaseQuerier,
	builder *ProfileBuilder,
	caches *CacheTiers,
	cfg *config.RecommendationConfig,
	logger *logrus.Logger,
) *ProfileService {
	return &ProfileService{
		db:      db,
		builder: builder,
		caches:  caches,
		cfg:     cfg,
		logger:  logger,
	}
}

// BuildFromQuiz replaces the user's profile with one built from the
// submitted questionnaire answers and invalidates the user's caches.
func (s *ProfileService) BuildFromQuiz(ctx context.Context, userID uuid.UUID, submission *models.QuizSubmission) (*models.UserProfile, error) {
	if err := validate.Struct(submission); err != nil {
		return nil, models.NewValidationError("submission", err.Error())
	}
	profile := s.builder.Build(userID, submission)

	weightsJSON, err := json.Marshal(profile.TraitWeights)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trait weights: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO user_profiles
			(user_id, profile_vector, trait_weights, confidence_score,
			 stated_audience_preference, interaction_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			profile_vector = EXCLUDED.profile_vector,
			trait_weights = EXCLUDED.trait_weights,
			confidence_score = EXCLUDED.confidence_score,
			stated_audience_preference = EXCLUDED.stated_audience_preference,
			updated_at = EXCLUDED.updated_at`,
		profile.UserID, pgvector.NewVector(profile.ProfileVector), weightsJSON,
		profile.ConfidenceScore, profile.StatedAudience, profile.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store profile: %w", err)
	}

	if err := s.invalidateUser(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to invalidate caches after quiz")
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"traits":     len(profile.TraitWeights),
		"confidence": profile.ConfidenceScore,
	}).Info("Profile built from questionnaire")

	return profile, nil
}

// GetProfile reads a profile through the profile cache tier.
func (s *ProfileService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	cacheKey := profileKeyPrefix + userID.String()
	if data, ok, err := s.caches.Profile.Get(ctx, cacheKey); err == nil && ok {
		var profile models.UserProfile
		if err := json.Unmarshal(data, &profile); err == nil {
			return &profile, nil
		}
	}

	profile, err := s.fetchProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(profile); err == nil {
		if err := s.caches.Profile.Set(ctx, cacheKey, data, s.caches.ProfileTTL); err != nil {
			s.logger.WithError(err).Debug("Failed to cache profile")
		}
	}

	return profile, nil
}

func (s *ProfileService) fetchProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, profile_vector, trait_weights, confidence_score,
		       stated_audience_preference, interaction_count, created_at, updated_at
		FROM user_profiles
		WHERE user_id = $1`, userID)

	var profile models.UserProfile
	var vector pgvector.Vector
	if err := row.Scan(&profile.UserID, &vector, &profile.TraitWeights,
		&profile.ConfidenceScore, &profile.StatedAudience,
		&profile.InteractionCount, &profile.CreatedAt, &profile.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	profile.ProfileVector = vector.Slice()
	return &profile, nil
}

// SaveLearned persists a feedback-driven profile update, guarded by an
// optimistic check on updated_at. Returns models.ErrConflict when another
// writer got there first; the caller re-reads and retries.
func (s *ProfileService) SaveLearned(ctx context.Context, profile *models.UserProfile, seenUpdatedAt time.Time) error {
	weightsJSON, err := json.Marshal(profile.TraitWeights)
	if err != nil {
		return fmt.Errorf("failed to encode trait weights: %w", err)
	}
	profile.UpdatedAt = time.Now()

	tag, err := s.db.Exec(ctx, `
		UPDATE user_profiles SET
			profile_vector = $2,
			trait_weights = $3,
			confidence_score = $4,
			interaction_count = $5,
			updated_at = $6
		WHERE user_id = $1 AND updated_at = $7`,
		profile.UserID, pgvector.NewVector(profile.ProfileVector), weightsJSON,
		profile.ConfidenceScore, profile.InteractionCount, profile.UpdatedAt, seenUpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}

	// The cached copy is now stale regardless of learning impact.
	if err := s.caches.Profile.Invalidate(ctx, profileKeyPrefix+profile.UserID.String()); err != nil {
		s.logger.WithError(err).Debug("Failed to invalidate profile cache")
	}
	return nil
}

// SimilarProfiles runs the pgvector neighbor query: profiles whose cosine
// similarity to the given profile exceeds threshold, nearest first.
func (s *ProfileService) SimilarProfiles(ctx context.Context, profile *models.UserProfile, threshold float64, limit int) ([]models.SimilarProfile, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, 1 - (profile_vector <=> $1) AS similarity
		FROM user_profiles
		WHERE user_id != $2
			AND 1 - (profile_vector <=> $1) >= $3
		ORDER BY profile_vector <=> $1
		LIMIT $4`,
		pgvector.NewVector(profile.ProfileVector), profile.UserID, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("similar profile query failed: %w", err)
	}
	defer rows.Close()

	var neighbors []models.SimilarProfile
	for rows.Next() {
		var neighbor models.SimilarProfile
		if err := rows.Scan(&neighbor.UserID, &neighbor.SimilarityScore); err != nil {
			s.logger.WithError(err).Error("Failed to scan similar profile row")
			continue
		}
		neighbors = append(neighbors, neighbor)
	}
	return neighbors, rows.Err()
}

// Summary is the read-only projection for UI display. No mutation.
func (s *ProfileService) Summary(ctx context.Context, userID uuid.UUID) (*models.ProfileSummary, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.ProfileSummary{
		UserID:          profile.UserID,
		DominantTraits:  s.builder.DominantTraits(profile, 5),
		ConfidenceScore: profile.ConfidenceScore,
		StatedAudience:  profile.StatedAudience,
	}, nil
}

func (s *ProfileService) invalidateUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.caches.Profile.Invalidate(ctx, profileKeyPrefix+userID.String()); err != nil {
		return err
	}
	return s.caches.RankedList.Invalidate(ctx, rankedListKeyPrefix+userID.String())
}
