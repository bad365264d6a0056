package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/internal/config"
	"github.com/scentmatch/engine/pkg/models"
)

// RecommendationRequest is the resolved query for one ranked list.
type RecommendationRequest struct {
	UserID  uuid.UUID
	Count   int
	Context *models.RequestContext
	Filters *models.CandidateFilters
}

// RecommendationOrchestrator drives the full request path: cache lookup,
// candidate retrieval, scoring, the audience post-condition check, and the
// fallback ladder when a dependency is down. Audience safety is the one
// constraint that never degrades; every fallback stays inside the user's
// stated audience.
type RecommendationOrchestrator struct {
	profiles   *ProfileService
	candidates CandidateSource
	scorer     *HybridScorer
	caches     *CacheTiers
	metrics    *MetricsCollector
	cfg        *config.RecommendationConfig
	logger     *logrus.Logger
}

func NewRecommendationOrchestrator(
	profiles *ProfileService,
	candidates CandidateSource,
	scorer *HybridScorer,
	caches *CacheTiers,
	metrics *MetricsCollector,
	cfg *config.RecommendationConfig,
	logger *logrus.Logger,
) *RecommendationOrchestrator {
	return &RecommendationOrchestrator{
		profiles:   profiles,
		candidates: candidates,
		scorer:     scorer,
		caches:     caches,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
}

// GetRecommendations returns a ranked list for the user, serving from the
// ranked-list cache when possible. The audience post-condition runs on
// every return path, cached entries included; a list generated before the
// stated audience changed must not leak through the cache.
func (o *RecommendationOrchestrator) GetRecommendations(ctx context.Context, req *RecommendationRequest) (*models.RankedList, error) {
	started := time.Now()
	req.Count = o.clampCount(req.Count)

	profile, err := o.profiles.GetProfile(ctx, req.UserID)
	if err != nil {
		o.metrics.ObserveRequest("error", time.Since(started))
		return nil, err
	}

	cacheKey := rankedListKey(req)
	if cached, ok := o.cachedList(ctx, cacheKey); ok {
		cached.Recommendations = o.enforceAudience(cached.Recommendations, profile)
		cached.CacheHit = true
		o.metrics.ObserveRequest("cache_hit", time.Since(started))
		return cached, nil
	}

	scoringCtx, cancel := context.WithTimeout(ctx, o.cfg.Scoring.RequestTimeout)
	defer cancel()

	list, err := o.generate(scoringCtx, profile, req)
	if err != nil {
		o.logger.WithError(err).WithField("user_id", req.UserID).Warn("Recommendation generation failed, trying fallbacks")
		list, err = o.fallback(ctx, profile, req, cacheKey)
		if err != nil {
			o.metrics.ObserveRequest("error", time.Since(started))
			return nil, err
		}
		o.metrics.ObserveRequest("fallback_"+list.Fallback, time.Since(started))
		return list, nil
	}

	o.storeList(ctx, cacheKey, list)
	o.metrics.ObserveRequest("generated", time.Since(started))
	return list, nil
}

func (o *RecommendationOrchestrator) generate(ctx context.Context, profile *models.UserProfile, req *RecommendationRequest) (*models.RankedList, error) {
	candidates, err := o.retrieveWithRetry(ctx, profile, req)
	if err != nil {
		return nil, fmt.Errorf("candidate retrieval failed: %w", err)
	}

	recs, err := o.scorer.Score(ctx, profile, candidates, req.Context, req.Count)
	if err != nil {
		return nil, fmt.Errorf("scoring failed: %w", err)
	}

	recs = o.enforceAudience(recs, profile)
	o.applyExplanations(ctx, profile.UserID, recs)

	return &models.RankedList{
		UserID:          profile.UserID,
		Recommendations: recs,
		GeneratedAt:     time.Now(),
	}, nil
}

// retrieveWithRetry gives the candidate store one more chance after a
// short pause before the request degrades to the fallback ladder.
func (o *RecommendationOrchestrator) retrieveWithRetry(ctx context.Context, profile *models.UserProfile, req *RecommendationRequest) ([]models.CatalogItem, error) {
	candidates, err := o.candidates.Retrieve(ctx, profile, req.Filters, o.cfg.Scoring.CandidateLimit)
	if err == nil {
		return candidates, nil
	}
	o.logger.WithError(err).WithField("user_id", req.UserID).Warn("Candidate retrieval failed, retrying once")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(o.cfg.Scoring.RetryBackoff):
	}
	return o.candidates.Retrieve(ctx, profile, req.Filters, o.cfg.Scoring.CandidateLimit)
}

// enforceAudience is the post-condition recheck on the final list. The
// retriever already filters in SQL, so a violation here means a bug or a
// stale candidate; the item is dropped and the violation logged loudly.
func (o *RecommendationOrchestrator) enforceAudience(recs []models.Recommendation, profile *models.UserProfile) []models.Recommendation {
	safe := recs[:0]
	for _, rec := range recs {
		if rec.Item != nil && !AudienceEligible(rec.Item.AudienceTarget, profile.StatedAudience) {
			violation := &models.SafetyViolation{
				ItemID:         rec.ItemID.String(),
				ItemAudience:   rec.Item.AudienceTarget,
				StatedAudience: profile.StatedAudience,
			}
			o.logger.WithFields(logrus.Fields{
				"user_id": profile.UserID,
				"item_id": rec.ItemID,
			}).Error(violation.Error())
			o.metrics.IncSafetyViolation()
			continue
		}
		safe = append(safe, rec)
	}
	for i := range safe {
		safe[i].Position = i + 1
	}
	return safe
}

// fallback runs the degradation ladder: any cached list for the user,
// then a popularity-ranked list within the stated audience, then
// ErrUnavailable. Audience filtering holds on every rung.
func (o *RecommendationOrchestrator) fallback(ctx context.Context, profile *models.UserProfile, req *RecommendationRequest, cacheKey string) (*models.RankedList, error) {
	if cached, ok := o.cachedList(ctx, cacheKey); ok {
		cached.Recommendations = o.enforceAudience(cached.Recommendations, profile)
		cached.CacheHit = true
		cached.Fallback = "cached"
		return cached, nil
	}

	items, err := o.candidates.PopularityRanked(ctx, profile.StatedAudience, req.Count)
	if err != nil || len(items) == 0 {
		if err != nil {
			o.logger.WithError(err).WithField("user_id", req.UserID).Error("Popularity fallback failed")
		}
		return nil, models.ErrUnavailable
	}

	recs := make([]models.Recommendation, len(items))
	for i := range items {
		recs[i] = models.Recommendation{
			ItemID:      items[i].ID,
			Score:       0,
			Explanation: explanationFor("", &items[i]),
			Position:    i + 1,
			Item:        &items[i],
		}
	}
	o.applyExplanations(ctx, profile.UserID, recs)

	return &models.RankedList{
		UserID:          profile.UserID,
		Recommendations: recs,
		GeneratedAt:     time.Now(),
		Fallback:        "popularity",
	}, nil
}

func (o *RecommendationOrchestrator) cachedList(ctx context.Context, key string) (*models.RankedList, bool) {
	data, found, err := o.caches.RankedList.Get(ctx, key)
	if err != nil {
		o.logger.WithError(err).Debug("Ranked list cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var list models.RankedList
	if err := json.Unmarshal(data, &list); err != nil {
		o.logger.WithError(err).Warn("Corrupt ranked list cache entry, regenerating")
		return nil, false
	}
	return &list, true
}

func (o *RecommendationOrchestrator) storeList(ctx context.Context, key string, list *models.RankedList) {
	data, err := json.Marshal(list)
	if err != nil {
		o.logger.WithError(err).Error("Failed to marshal ranked list for cache")
		return
	}
	if err := o.caches.RankedList.Set(ctx, key, data, o.caches.RankedListTTL); err != nil {
		o.logger.WithError(err).Debug("Ranked list cache write failed")
	}
}

// applyExplanations serves each recommendation's explanation through the
// explanation cache tier, keyed per user and item. A hit keeps the text a
// user already saw stable across regenerations; feedback invalidation
// clears the user's entries so the next list explains itself afresh.
func (o *RecommendationOrchestrator) applyExplanations(ctx context.Context, userID uuid.UUID, recs []models.Recommendation) {
	for i := range recs {
		key := explanationKey(userID, recs[i].ItemID)
		if data, ok, err := o.caches.Explanation.Get(ctx, key); err == nil && ok {
			recs[i].Explanation = string(data)
			continue
		}
		if err := o.caches.Explanation.Set(ctx, key, []byte(recs[i].Explanation), o.caches.ExplanationTTL); err != nil {
			o.logger.WithError(err).Debug("Explanation cache write failed")
		}
	}
}

func explanationKey(userID, itemID uuid.UUID) string {
	return fmt.Sprintf("%s%s:%s", explanationKeyPrefix, userID, itemID)
}

// LatestList returns the most recent cached list for feedback signal
// attribution, regardless of the context it was generated under.
func (o *RecommendationOrchestrator) LatestList(ctx context.Context, userID uuid.UUID) (*models.RankedList, bool) {
	return o.cachedList(ctx, rankedListKey(&RecommendationRequest{UserID: userID, Count: o.cfg.Scoring.DefaultCount}))
}

func (o *RecommendationOrchestrator) clampCount(count int) int {
	if count <= 0 {
		return o.cfg.Scoring.DefaultCount
	}
	if count > o.cfg.Scoring.MaxCount {
		return o.cfg.Scoring.MaxCount
	}
	return count
}

// rankedListKey buckets cache entries by everything that changes ranking
// output, under a per-user prefix so feedback can invalidate all of a
// user's lists at once.
func rankedListKey(req *RecommendationRequest) string {
	season, occasion := "", ""
	if req.Context != nil {
		season, occasion = req.Context.Season, req.Context.Occasion
	}
	var minPrice, maxPrice int64
	if req.Filters != nil {
		minPrice, maxPrice = req.Filters.MinPriceCents, req.Filters.MaxPriceCents
	}
	return fmt.Sprintf("%s%s:%d:%s:%s:%d:%d",
		rankedListKeyPrefix, req.UserID, req.Count, season, occasion, minPrice, maxPrice)
}
