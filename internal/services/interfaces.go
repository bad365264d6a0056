package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/scentmatch/engine/pkg/models"
)

// DatabaseQuerier is the slice of pgxpool the services need; pgxmock
// satisfies it in tests.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Cache is one tier of the result cache. Implementations must treat Get
// misses as (nil, false, nil), not errors.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, prefix string) error
}

// InteractionGraph is the Neo4j-backed view of who interacted with what,
// used by the collaborative signal and the cold-start resolver.
type InteractionGraph interface {
	RecordInteraction(ctx context.Context, interaction *models.Interaction) error
	FilterActiveNeighbors(ctx context.Context, neighbors []models.SimilarProfile, minRating float64) ([]models.SimilarProfile, error)
	NeighborInteractions(ctx context.Context, neighborIDs []uuid.UUID, itemIDs []uuid.UUID) ([]NeighborInteraction, error)
}

// NeighborInteraction is one decay-eligible event from a similar profile.
type NeighborInteraction struct {
	UserID    uuid.UUID
	ItemID    uuid.UUID
	Type      string
	Magnitude float64
	CreatedAt time.Time
}

// ProfileReader is the read side of profile storage, enough for scoring.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error)
	SimilarProfiles(ctx context.Context, profile *models.UserProfile, threshold float64, limit int) ([]models.SimilarProfile, error)
}

// CandidateSource retrieves safety-filtered catalog items for scoring.
type CandidateSource interface {
	Retrieve(ctx context.Context, profile *models.UserProfile, filters *models.CandidateFilters, limit int) ([]models.CatalogItem, error)
	PopularityRanked(ctx context.Context, statedAudience string, limit int) ([]models.CatalogItem, error)
}

// BanditReader exposes current signal weights to the scorer.
type BanditReader interface {
	WeightsFor(ctx context.Context, userID uuid.UUID, interactionCount int) map[string]float64
}

// EventPublisher emits interaction events to the message bus for
// downstream consumers. Publishing is best effort; a broker outage never
// fails the feedback request.
type EventPublisher interface {
	PublishInteraction(ctx context.Context, interaction *models.Interaction) error
}

// ItemGetter loads single catalog items for the feedback processor.
type ItemGetter interface {
	GetItem(ctx context.Context, itemID uuid.UUID) (*models.CatalogItem, error)
}
