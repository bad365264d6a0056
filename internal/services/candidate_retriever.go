package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/internal/config"
	"github.com/scentmatch/engine/pkg/models"
)

// CandidateRetriever fetches catalog items eligible for scoring. The
// audience constraint is applied in the query itself, before any
// similarity work, and again by AudienceEligible as a post-condition on
// whatever the scorer produced. The filter is never relaxed to fill a
// short list.
type CandidateRetriever struct {
	db     DatabaseQuerier
	cfg    *config.RecommendationConfig
	logger *logrus.Logger
}

func NewCandidateRetriever(db DatabaseQuerier, cfg *config.RecommendationConfig, logger *logrus.Logger) *CandidateRetriever {
	return &CandidateRetriever{db: db, cfg: cfg, logger: logger}
}

// AudienceEligible is the single safety predicate for the whole engine:
// an item may be shown iff it targets everyone or exactly the stated
// audience. An empty or unrecognized stated audience admits only "any".
func AudienceEligible(itemAudience, statedAudience string) bool {
	if itemAudience == models.AudienceAny {
		return true
	}
	switch statedAudience {
	case models.AudienceMasculine, models.AudienceFeminine, models.AudienceUnisex:
		return itemAudience == statedAudience
	default:
		return false
	}
}

// Retrieve returns available, audience-eligible items nearest to the
// profile vector, with optional price filters. Fewer results than limit is
// not an error.
func (r *CandidateRetriever) Retrieve(ctx context.Context, profile *models.UserProfile, filters *models.CandidateFilters, limit int) ([]models.CatalogItem, error) {
	query := `
		SELECT id, name, brand, metadata_vector, tags, audience_target,
		       available, popularity, price_cents, updated_at
		FROM catalog_items
		WHERE available = true`

	args := []interface{}{}
	argIndex := 1

	stated := profile.StatedAudience
	switch stated {
	case models.AudienceMasculine, models.AudienceFeminine, models.AudienceUnisex:
		query += fmt.Sprintf(" AND (audience_target = 'any' OR audience_target = $%d)", argIndex)
		args = append(args, stated)
		argIndex++
	default:
		// No recognized preference yet: only audience-neutral items.
		query += " AND audience_target = 'any'"
	}

	if filters != nil {
		if filters.MinPriceCents > 0 {
			query += fmt.Sprintf(" AND price_cents >= $%d", argIndex)
			args = append(args, filters.MinPriceCents)
			argIndex++
		}
		if filters.MaxPriceCents > 0 {
			query += fmt.Sprintf(" AND price_cents <= $%d", argIndex)
			args = append(args, filters.MaxPriceCents)
			argIndex++
		}
	}

	if hasNonZero(profile.ProfileVector) {
		query += fmt.Sprintf(" ORDER BY metadata_vector <=> $%d", argIndex)
		args = append(args, pgvector.NewVector(profile.ProfileVector))
		argIndex++
	} else {
		// Cold profile: nearest-neighbor order is meaningless, take the
		// most popular eligible items instead.
		query += " ORDER BY popularity DESC, id ASC"
	}

	query += fmt.Sprintf(" LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("candidate query failed: %w", err)
	}
	defer rows.Close()

	var candidates []models.CatalogItem
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			r.logger.WithError(err).Error("Failed to scan candidate row")
			continue
		}
		// Defense in depth: the query already filtered, but a candidate
		// that slips through is dropped here rather than scored.
		if !AudienceEligible(item.AudienceTarget, stated) {
			r.logger.WithFields(logrus.Fields{
				"item_id":          item.ID,
				"audience_target":  item.AudienceTarget,
				"stated_audience":  stated,
			}).Error("Audience-ineligible item returned by candidate query")
			continue
		}
		candidates = append(candidates, item)
	}
	return candidates, rows.Err()
}

// PopularityRanked is the timeout/outage fallback: most popular available
// items, still behind the audience filter. Popularity is only ever a
// tie-break or a fallback, never a primary signal.
func (r *CandidateRetriever) PopularityRanked(ctx context.Context, statedAudience string, limit int) ([]models.CatalogItem, error) {
	query := `
		SELECT id, name, brand, metadata_vector, tags, audience_target,
		       available, popularity, price_cents, updated_at
		FROM catalog_items
		WHERE available = true`

	args := []interface{}{}
	switch statedAudience {
	case models.AudienceMasculine, models.AudienceFeminine, models.AudienceUnisex:
		query += " AND (audience_target = 'any' OR audience_target = $1)"
		args = append(args, statedAudience)
		query += " ORDER BY popularity DESC, id ASC LIMIT $2"
	default:
		query += " AND audience_target = 'any'"
		query += " ORDER BY popularity DESC, id ASC LIMIT $1"
	}
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("popularity query failed: %w", err)
	}
	defer rows.Close()

	var items []models.CatalogItem
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			r.logger.WithError(err).Error("Failed to scan popularity row")
			continue
		}
		if !AudienceEligible(item.AudienceTarget, statedAudience) {
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItem loads one catalog item, used by the feedback processor.
func (r *CandidateRetriever) GetItem(ctx context.Context, itemID uuid.UUID) (*models.CatalogItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, brand, metadata_vector, tags, audience_target,
		       available, popularity, price_cents, updated_at
		FROM catalog_items
		WHERE id = $1`, itemID)
	if err != nil {
		return nil, fmt.Errorf("item query failed: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("catalog item not found")
	}
	item, err := scanCatalogItem(rows)
	if err != nil {
		return nil, err
	}
	return &item, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCatalogItem(row rowScanner) (models.CatalogItem, error) {
	var item models.CatalogItem
	var vector pgvector.Vector
	err := row.Scan(&item.ID, &item.Name, &item.Brand, &vector, &item.Tags,
		&item.AudienceTarget, &item.Available, &item.Popularity,
		&item.PriceCents, &item.UpdatedAt)
	if err != nil {
		return item, err
	}
	item.MetadataVector = vector.Slice()
	return item, nil
}

func hasNonZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return true
		}
	}
	return false
}
