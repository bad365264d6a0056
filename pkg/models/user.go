package models

import (
	"time"

	"github.com/google/uuid"
)

// ProfileVectorDim is the fixed dimension of every profile and catalog
// metadata vector. Trait sub-ranges in the registry assume this value.
const ProfileVectorDim = 256

// Audience categories. stated_audience_preference on a profile and
// audience_target on a catalog item share the same closed set;
// AudienceAny is only valid on the item side.
const (
	AudienceMasculine = "masculine"
	AudienceFeminine  = "feminine"
	AudienceUnisex    = "unisex"
	AudienceAny       = "any"
)

// UserProfile is the stored preference model for one user. The vector and
// trait weights are created by the profile builder and incrementally
// mutated only by the feedback processor.
type UserProfile struct {
	UserID           uuid.UUID          `json:"user_id" db:"user_id"`
	ProfileVector    []float32          `json:"-" db:"profile_vector"`
	TraitWeights     map[string]float64 `json:"trait_weights" db:"trait_weights"`
	ConfidenceScore  float64            `json:"confidence_score" db:"confidence_score"`
	StatedAudience   string             `json:"stated_audience_preference" db:"stated_audience_preference"`
	InteractionCount int                `json:"interaction_count" db:"interaction_count"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" db:"updated_at"`
}

// QuestionnaireAnswer is one answered question from the quiz flow. Tier is
// decided by question design, not by the user.
type QuestionnaireAnswer struct {
	QuestionID string   `json:"question_id" validate:"required"`
	TraitIDs   []string `json:"selected_trait_ids" validate:"required,min=1"`
	Tier       string   `json:"tier" validate:"required,oneof=primary secondary tertiary"`
}

// QuizSubmission is the payload for building (or rebuilding) a profile.
type QuizSubmission struct {
	Answers        []QuestionnaireAnswer `json:"answers"`
	StatedAudience string                `json:"stated_audience_preference" validate:"omitempty,oneof=masculine feminine unisex"`
}

// ProfileSummary is the read-only projection exposed for UI display.
type ProfileSummary struct {
	UserID          uuid.UUID       `json:"user_id"`
	DominantTraits  []WeightedTrait `json:"dominant_traits"`
	ConfidenceScore float64         `json:"confidence_score"`
	StatedAudience  string          `json:"stated_audience_preference"`
}

// WeightedTrait pairs a trait name with its learned weight.
type WeightedTrait struct {
	Trait  string  `json:"trait"`
	Weight float64 `json:"weight"`
}

// Interaction is one immutable event in the append-only interaction log.
// Effective magnitude is always recomputed at read time with decay; the
// stored magnitude never changes.
type Interaction struct {
	ID              uuid.UUID `json:"id" db:"id"`
	UserID          uuid.UUID `json:"user_id" db:"user_id"`
	ItemID          uuid.UUID `json:"item_id" db:"item_id"`
	InteractionType string    `json:"interaction_type" db:"interaction_type"`
	Magnitude       float64   `json:"magnitude" db:"magnitude"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Interaction types recorded by the feedback processor.
const (
	InteractionView    = "view"
	InteractionLike    = "like"
	InteractionDislike = "dislike"
	InteractionRate    = "rate"
	InteractionSave    = "save"
	InteractionRemove  = "remove"
)

// SignalBandit holds the Beta posterior for one scoring signal.
type SignalBandit struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// BanditState is the per-user adaptive weighting over the four scoring
// signals. SignalWeights always sums to 1.0; Posteriors drive the
// Thompson-style updates that produce them.
type BanditState struct {
	UserID        uuid.UUID               `json:"user_id" db:"user_id"`
	SignalWeights map[string]float64      `json:"signal_weights" db:"signal_weights"`
	Posteriors    map[string]SignalBandit `json:"posteriors" db:"posteriors"`
	SuccessRate   float64                 `json:"success_rate" db:"success_rate"`
	UpdatedAt     time.Time               `json:"updated_at" db:"updated_at"`
}

// SimilarProfile is a neighbor found in the profile-similarity graph,
// used by the collaborative signal and the cold-start resolver.
type SimilarProfile struct {
	UserID          uuid.UUID `json:"user_id"`
	SimilarityScore float64   `json:"similarity_score"`
	SharedItems     int       `json:"shared_items"`
}
