package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/internal/config"
	"github.com/scentmatch/engine/pkg/models"
)

const DefaultInteractionTopic = "interaction-events"

// InteractionEvent is the wire shape published for every recorded
// interaction. Downstream consumers (analytics, catalog popularity
// rollups) key on the interaction type.
type InteractionEvent struct {
	Interaction models.Interaction `json:"interaction"`
	Timestamp   time.Time          `json:"timestamp"`
	Source      string             `json:"source"`
}

// MessageBus publishes interaction events to Kafka. Publishing is best
// effort; the engine never blocks a user-facing request on the broker.
type MessageBus struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	topic := cfg.Kafka.Topics.Interactions
	if topic == "" {
		topic = DefaultInteractionTopic
	}

	return &MessageBus{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // Key by user for per-user ordering
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		logger: logger,
	}, nil
}

func (mb *MessageBus) PublishInteraction(ctx context.Context, interaction *models.Interaction) error {
	event := InteractionEvent{
		Interaction: *interaction,
		Timestamp:   time.Now(),
		Source:      "feedback-processor",
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(interaction.UserID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "interaction_type", Value: []byte(interaction.InteractionType)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := mb.writer.WriteMessages(writeCtx, message); err != nil {
		return fmt.Errorf("failed to publish interaction event: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"user_id":          interaction.UserID,
		"item_id":          interaction.ItemID,
		"interaction_type": interaction.InteractionType,
	}).Debug("Published interaction event")
	return nil
}

func (mb *MessageBus) Close() error {
	return mb.writer.Close()
}

// NoopPublisher discards events, used when Kafka is not configured and in
// tests.
type NoopPublisher struct{}

func (NoopPublisher) PublishInteraction(context.Context, *models.Interaction) error { return nil }
