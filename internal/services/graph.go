package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/pkg/models"
)

// GraphService maintains the interaction graph in Neo4j. The graph is a
// secondary index over the append-only interaction log: user and fragrance
// nodes with typed edges carrying magnitude and timestamp.
type GraphService struct {
	driver neo4j.DriverWithContext
	logger *logrus.Logger
}

func NewGraphService(driver neo4j.DriverWithContext, logger *logrus.Logger) *GraphService {
	return &GraphService{driver: driver, logger: logger}
}

// RecordInteraction mirrors one interaction event into the graph. Events
// are merged per (user, item, type) keeping the newest magnitude, which
// matches the "superseded by a newer interaction" reading of the log.
func (s *GraphService) RecordInteraction(ctx context.Context, interaction *models.Interaction) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (u:User {user_id: $userId})
		MERGE (f:Fragrance {item_id: $itemId})
		MERGE (u)-[r:INTERACTED {type: $type}]->(f)
		SET r.magnitude = $magnitude,
		    r.created_at = $createdAt`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"userId":    interaction.UserID.String(),
		"itemId":    interaction.ItemID.String(),
		"type":      interaction.InteractionType,
		"magnitude": interaction.Magnitude,
		"createdAt": interaction.CreatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to record interaction edge: %w", err)
	}
	return nil
}

// FilterActiveNeighbors keeps only neighbors with at least one
// high-magnitude interaction (a rating at or above minRating, or a save).
// The cold-start resolver borrows signal only from such profiles.
func (s *GraphService) FilterActiveNeighbors(ctx context.Context, neighbors []models.SimilarProfile, minRating float64) ([]models.SimilarProfile, error) {
	if len(neighbors) == 0 {
		return nil, nil
	}

	ids := make([]string, len(neighbors))
	byID := make(map[string]models.SimilarProfile, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.UserID.String()
		byID[n.UserID.String()] = n
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (u:User)-[r:INTERACTED]->(:Fragrance)
		WHERE u.user_id IN $userIds
			AND ((r.type = 'rate' AND r.magnitude >= $minMagnitude) OR r.type = 'save')
		RETURN DISTINCT u.user_id AS user_id`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"userIds":      ids,
		"minMagnitude": minRating / 5.0,
	})
	if err != nil {
		return nil, fmt.Errorf("active neighbor query failed: %w", err)
	}

	var active []models.SimilarProfile
	for result.Next(ctx) {
		record := result.Record()
		userID, ok := record.Values[0].(string)
		if !ok {
			continue
		}
		if neighbor, exists := byID[userID]; exists {
			active = append(active, neighbor)
		}
	}
	return active, result.Err()
}

// NeighborInteractions returns every interaction the given neighbors had
// with the given items, newest data included; the caller applies decay.
func (s *GraphService) NeighborInteractions(ctx context.Context, neighborIDs []uuid.UUID, itemIDs []uuid.UUID) ([]NeighborInteraction, error) {
	if len(neighborIDs) == 0 || len(itemIDs) == 0 {
		return nil, nil
	}

	userIds := make([]string, len(neighborIDs))
	for i, id := range neighborIDs {
		userIds[i] = id.String()
	}
	items := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		items[i] = id.String()
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (u:User)-[r:INTERACTED]->(f:Fragrance)
		WHERE u.user_id IN $userIds AND f.item_id IN $itemIds
		RETURN u.user_id AS user_id, f.item_id AS item_id,
		       r.type AS type, r.magnitude AS magnitude, r.created_at AS created_at`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"userIds": userIds,
		"itemIds": items,
	})
	if err != nil {
		return nil, fmt.Errorf("neighbor interaction query failed: %w", err)
	}

	var interactions []NeighborInteraction
	for result.Next(ctx) {
		record := result.Record()
		interaction, err := parseNeighborInteraction(record.Values)
		if err != nil {
			s.logger.WithError(err).Debug("Skipping malformed interaction record")
			continue
		}
		interactions = append(interactions, interaction)
	}
	return interactions, result.Err()
}

func parseNeighborInteraction(values []interface{}) (NeighborInteraction, error) {
	var out NeighborInteraction
	if len(values) < 5 {
		return out, fmt.Errorf("short record: %d values", len(values))
	}

	userStr, ok := values[0].(string)
	if !ok {
		return out, fmt.Errorf("user_id is not a string")
	}
	itemStr, ok := values[1].(string)
	if !ok {
		return out, fmt.Errorf("item_id is not a string")
	}

	userID, err := uuid.Parse(userStr)
	if err != nil {
		return out, err
	}
	itemID, err := uuid.Parse(itemStr)
	if err != nil {
		return out, err
	}

	out.UserID = userID
	out.ItemID = itemID
	out.Type, _ = values[2].(string)
	out.Magnitude, _ = values[3].(float64)
	if unix, ok := values[4].(int64); ok {
		out.CreatedAt = time.Unix(unix, 0)
	}
	return out, nil
}
