package models

import (
	"time"

	"github.com/google/uuid"
)

// Signal names used by the hybrid scorer and the bandit state.
const (
	SignalSimilarity    = "similarity"
	SignalCollaborative = "collaborative"
	SignalContent       = "content"
	SignalContextual    = "contextual"
)

// SignalBreakdown holds the raw [0,1] value of each signal for one scored
// item, before bandit weighting. Kept on the cached result so feedback can
// attribute an outcome to the signal that argued loudest for the item.
type SignalBreakdown struct {
	Similarity    float64 `json:"similarity"`
	Collaborative float64 `json:"collaborative"`
	Content       float64 `json:"content"`
	Contextual    float64 `json:"contextual"`
}

// Recommendation is one ranked entry in a result list.
type Recommendation struct {
	ItemID      uuid.UUID       `json:"item_id"`
	Score       float64         `json:"score"`
	Explanation string          `json:"explanation"`
	Signals     SignalBreakdown `json:"signals"`
	Position    int             `json:"position"`
	Item        *CatalogItem    `json:"item,omitempty"`
}

// RankedList is the response shape for getRecommendations and the cache
// entry for the ranked-list tier. Derived and disposable; regenerable at
// any time from the profile and catalog.
type RankedList struct {
	UserID          uuid.UUID        `json:"user_id"`
	Recommendations []Recommendation `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generated_at"`
	CacheHit        bool             `json:"cache_hit"`
	Fallback        string           `json:"fallback,omitempty"`
}

// RequestContext carries the optional season/occasion context used by the
// contextual signal.
type RequestContext struct {
	Season   string `json:"season,omitempty" validate:"omitempty,oneof=spring summer autumn winter"`
	Occasion string `json:"occasion,omitempty" validate:"omitempty,oneof=daily office evening date sport formal"`
}

// FeedbackRequest is the submitFeedback payload.
type FeedbackRequest struct {
	UserID       uuid.UUID       `json:"user_id" validate:"required"`
	ItemID       uuid.UUID       `json:"item_id" validate:"required"`
	FeedbackType string          `json:"feedback_type" validate:"required,oneof=like dislike rate love not_interested"`
	Rating       *float64        `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	Context      *RequestContext `json:"context,omitempty"`
}

// Feedback types accepted by the feedback processor.
const (
	FeedbackLike          = "like"
	FeedbackDislike       = "dislike"
	FeedbackRate          = "rate"
	FeedbackLove          = "love"
	FeedbackNotInterested = "not_interested"
)

// FeedbackAck reports what a feedback submission actually changed.
type FeedbackAck struct {
	UserID             uuid.UUID `json:"user_id"`
	ItemID             uuid.UUID `json:"item_id"`
	LearningImpact     float64   `json:"learning_impact"`
	PreferencesUpdated bool      `json:"preferences_updated"`
	CacheInvalidated   bool      `json:"cache_invalidated"`
	WeightsAdjusted    bool      `json:"weights_adjusted"`
	ProcessedAt        time.Time `json:"processed_at"`
}
