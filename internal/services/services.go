package services

import (
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/internal/config"
	"github.com/scentmatch/engine/internal/database"
	"github.com/scentmatch/engine/internal/messaging"
)

type Services struct {
	Health             *HealthService
	Metrics            *MetricsCollector
	Registry           *TraitRegistry
	ProfileBuilder     *ProfileBuilder
	Profile            *ProfileService
	Graph              *GraphService
	Candidates         *CandidateRetriever
	Bandit             *BanditService
	ColdStart          *ColdStartResolver
	Scorer             *HybridScorer
	Orchestrator       *RecommendationOrchestrator
	FeedbackProcessor  *FeedbackProcessor
	MessageBus         EventPublisher
	messageBusCloser   func() error
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	recCfg := &cfg.Recommendation

	healthService := NewHealthService(cfg, logger, db)
	metrics := NewMetricsCollector(logger)
	caches := NewCacheTiers(db.Redis, &recCfg.Caching, logger)

	registry := NewTraitRegistry()
	builder := NewProfileBuilder(recCfg, registry, logger)
	profileService := NewProfileService(db.PG, builder, caches, recCfg, logger)
	graphService := NewGraphService(db.Neo4j, logger)
	candidates := NewCandidateRetriever(db.PG, recCfg, logger)
	decay := NewDecayEngine(&recCfg.Decay)
	bandit := NewBanditService(db.PG, recCfg, logger)
	resolver := NewColdStartResolver(profileService, graphService, decay, recCfg, logger)
	scorer := NewHybridScorer(bandit, resolver, registry, recCfg, logger)

	orchestrator := NewRecommendationOrchestrator(
		profileService, candidates, scorer, caches, metrics, recCfg, logger,
	)

	var publisher EventPublisher
	var closer func() error
	messageBus, err := messaging.NewMessageBus(cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Kafka unavailable, interaction events will not be published")
		publisher = messaging.NoopPublisher{}
	} else {
		publisher = messageBus
		closer = messageBus.Close
	}

	feedbackProcessor := NewFeedbackProcessor(
		db.PG, profileService, candidates, graphService, bandit,
		publisher, orchestrator, caches, registry, recCfg, logger,
	)

	return &Services{
		Health:            healthService,
		Metrics:           metrics,
		Registry:          registry,
		ProfileBuilder:    builder,
		Profile:           profileService,
		Graph:             graphService,
		Candidates:        candidates,
		Bandit:            bandit,
		ColdStart:         resolver,
		Scorer:            scorer,
		Orchestrator:      orchestrator,
		FeedbackProcessor: feedbackProcessor,
		MessageBus:        publisher,
		messageBusCloser:  closer,
	}, nil
}

func (s *Services) Close() error {
	if s.messageBusCloser != nil {
		return s.messageBusCloser()
	}
	return nil
}
