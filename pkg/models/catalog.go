package models

import (
	"time"

	"github.com/google/uuid"
)

// CatalogItem is a fragrance record owned by the catalog subsystem. The
// engine only reads these; MetadataVector is produced at ingestion time by
// the external embedding provider and shares ProfileVectorDim.
type CatalogItem struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Brand          string    `json:"brand" db:"brand"`
	MetadataVector []float32 `json:"-" db:"metadata_vector"`
	Tags           []string  `json:"tags" db:"tags"`
	AudienceTarget string    `json:"audience_target" db:"audience_target"`
	Available      bool      `json:"available" db:"available"`
	Popularity     int64     `json:"popularity" db:"popularity"`
	PriceCents     int64     `json:"price_cents" db:"price_cents"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// CandidateFilters are the optional caller-supplied filters for candidate
// retrieval. The audience constraint is not a filter here; it is always
// applied and cannot be relaxed.
type CandidateFilters struct {
	MaxPriceCents int64 `json:"max_price_cents,omitempty"`
	MinPriceCents int64 `json:"min_price_cents,omitempty"`
}
