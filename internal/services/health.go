package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/scentmatch/engine/internal/config"
	"github.com/scentmatch/engine/internal/database"
)

// HealthService checks the engine's dependencies. PostgreSQL and the hot
// Redis tier are critical; Neo4j and the other Redis tiers only degrade
// quality, so the service reports "degraded" rather than failing when
// they are down.
type HealthService struct {
	config *config.Config
	logger *logrus.Logger
	db     *database.Database

	checkStatus *prometheus.GaugeVec
}

type HealthStatus struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services"`
	Critical    []string          `json:"critical_failures,omitempty"`
	NonCritical []string          `json:"non_critical_failures,omitempty"`
}

func NewHealthService(cfg *config.Config, logger *logrus.Logger, db *database.Database) *HealthService {
	hs := &HealthService{
		config: cfg,
		logger: logger,
		db:     db,
	}

	hs.checkStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"})

	if err := prometheus.Register(hs.checkStatus); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			logger.WithError(err).Warn("Failed to register health_check_status metric")
		}
	}

	return hs
}

func (s *HealthService) CheckHealth() *HealthStatus {
	status := &HealthStatus{
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	critical := map[string]func() error{
		"postgresql": s.checkPostgreSQL,
		"redis_hot":  s.checkRedisHot,
	}
	nonCritical := map[string]func() error{
		"neo4j":      s.checkNeo4j,
		"redis_warm": s.checkRedisWarm,
		"redis_cold": s.checkRedisCold,
	}

	allCriticalHealthy := true
	for name, check := range critical {
		if err := check(); err != nil {
			status.Services[name] = "unhealthy"
			status.Critical = append(status.Critical, name)
			allCriticalHealthy = false
			s.logger.WithError(err).Errorf("Critical service %s is unhealthy", name)
			s.checkStatus.WithLabelValues(name).Set(0)
		} else {
			status.Services[name] = "healthy"
			s.checkStatus.WithLabelValues(name).Set(1)
		}
	}

	for name, check := range nonCritical {
		if err := check(); err != nil {
			status.Services[name] = "unhealthy"
			status.NonCritical = append(status.NonCritical, name)
			s.logger.WithError(err).Warnf("Non-critical service %s is unhealthy", name)
			s.checkStatus.WithLabelValues(name).Set(0)
		} else {
			status.Services[name] = "healthy"
			s.checkStatus.WithLabelValues(name).Set(1)
		}
	}

	switch {
	case !allCriticalHealthy:
		status.Status = "unhealthy"
	case len(status.NonCritical) > 0:
		status.Status = "degraded"
	default:
		status.Status = "healthy"
	}
	return status
}

func (s *HealthService) checkPostgreSQL() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.PG.Ping(ctx)
}

func (s *HealthService) checkNeo4j() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.Neo4j.VerifyConnectivity(ctx)
}

func (s *HealthService) checkRedisHot() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.Redis.Hot.Ping(ctx).Err()
}

func (s *HealthService) checkRedisWarm() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.Redis.Warm.Ping(ctx).Err()
}

func (s *HealthService) checkRedisCold() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.Redis.Cold.Ping(ctx).Err()
}
