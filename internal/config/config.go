package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Neo4j          Neo4jConfig          `mapstructure:"neo4j"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Hot  RedisInstanceConfig `mapstructure:"hot"`
	Warm RedisInstanceConfig `mapstructure:"warm"`
	Cold RedisInstanceConfig `mapstructure:"cold"`
}

type RedisInstanceConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Neo4jConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		Interactions string `mapstructure:"interactions"`
	} `mapstructure:"topics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RecommendationConfig groups every tuning constant of the engine. The
// shipped defaults are the calibrated values; they live in config so
// deployments can revisit them without structural changes.
type RecommendationConfig struct {
	Profile   ProfileConfig   `mapstructure:"profile"`
	Signals   SignalConfig    `mapstructure:"signals"`
	ColdStart ColdStartConfig `mapstructure:"cold_start"`
	Decay     DecayConfig     `mapstructure:"decay"`
	Feedback  FeedbackConfig  `mapstructure:"feedback"`
	Caching   CachingConfig   `mapstructure:"caching"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
}

type ProfileConfig struct {
	// Tier weights must sum to 1.0 across primary/secondary/tertiary.
	PrimaryTierWeight   float64 `mapstructure:"primary_tier_weight"`
	SecondaryTierWeight float64 `mapstructure:"secondary_tier_weight"`
	TertiaryTierWeight  float64 `mapstructure:"tertiary_tier_weight"`
	BaseConfidence      float64 `mapstructure:"base_confidence"`
	QuestionCountTarget int     `mapstructure:"question_count_target"`
}

type SignalConfig struct {
	// Default bandit weights, used until a user has their own state.
	SimilarityWeight    float64 `mapstructure:"similarity_weight"`
	CollaborativeWeight float64 `mapstructure:"collaborative_weight"`
	ContentWeight       float64 `mapstructure:"content_weight"`
	ContextualWeight    float64 `mapstructure:"contextual_weight"`

	// Minimum profile cosine similarity for a neighbor to contribute to
	// the collaborative signal.
	NeighborSimilarityThreshold float64 `mapstructure:"neighbor_similarity_threshold"`
	NeighborLimit               int     `mapstructure:"neighbor_limit"`
}

type ColdStartConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MinInteractions     int     `mapstructure:"min_interactions"`
	NeighborK           int     `mapstructure:"neighbor_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	HighMagnitudeRating float64 `mapstructure:"high_magnitude_rating"`
	MaxBoost            float64 `mapstructure:"max_boost"`
}

type DecayConfig struct {
	// Weekly multiplicative decay of interaction magnitude.
	Factor float64 `mapstructure:"factor"`
}

type FeedbackConfig struct {
	BaseLearningRate         float64       `mapstructure:"base_learning_rate"`
	InvalidationThreshold    float64       `mapstructure:"invalidation_threshold"`
	DuplicateWindow          time.Duration `mapstructure:"duplicate_window"`
	MaxUpdateRetries         int           `mapstructure:"max_update_retries"`
	MinInteractionsForBandit int           `mapstructure:"min_interactions_for_bandit"`
	SuccessRateSmoothing     float64       `mapstructure:"success_rate_smoothing"`
}

type CachingConfig struct {
	ProfileTTL     time.Duration `mapstructure:"profile_ttl"`
	RankedListTTL  time.Duration `mapstructure:"ranked_list_ttl"`
	ExplanationTTL time.Duration `mapstructure:"explanation_ttl"`
}

type ScoringConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	WorkerCount    int           `mapstructure:"worker_count"`
	CandidateLimit int           `mapstructure:"candidate_limit"`
	DefaultCount   int           `mapstructure:"default_count"`
	MaxCount       int           `mapstructure:"max_count"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the shipped recommendation tuning without touching viper,
// for tests and embedded use.
func Default() *RecommendationConfig {
	return &RecommendationConfig{
		Profile: ProfileConfig{
			PrimaryTierWeight:   0.5,
			SecondaryTierWeight: 0.3,
			TertiaryTierWeight:  0.2,
			BaseConfidence:      0.4,
			QuestionCountTarget: 8,
		},
		Signals: SignalConfig{
			SimilarityWeight:            0.6,
			CollaborativeWeight:         0.2,
			ContentWeight:               0.15,
			ContextualWeight:            0.05,
			NeighborSimilarityThreshold: 0.8,
			NeighborLimit:               50,
		},
		ColdStart: ColdStartConfig{
			ConfidenceThreshold: 0.3,
			MinInteractions:     3,
			NeighborK:           10,
			SimilarityThreshold: 0.8,
			HighMagnitudeRating: 4.0,
			MaxBoost:            0.5,
		},
		Decay: DecayConfig{Factor: 0.95},
		Feedback: FeedbackConfig{
			BaseLearningRate:         0.1,
			InvalidationThreshold:    0.15,
			DuplicateWindow:          24 * time.Hour,
			MaxUpdateRetries:         3,
			MinInteractionsForBandit: 5,
			SuccessRateSmoothing:     0.2,
		},
		Caching: CachingConfig{
			ProfileTTL:     time.Hour,
			RankedListTTL:  15 * time.Minute,
			ExplanationTTL: 24 * time.Hour,
		},
		Scoring: ScoringConfig{
			RequestTimeout: 2 * time.Second,
			RetryBackoff:   150 * time.Millisecond,
			WorkerCount:    8,
			CandidateLimit: 500,
			DefaultCount:   10,
			MaxCount:       100,
		},
	}
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.hot.max_retries", 3)
	viper.SetDefault("redis.hot.pool_size", 10)
	viper.SetDefault("redis.hot.timeout", "5s")
	viper.SetDefault("redis.warm.max_retries", 3)
	viper.SetDefault("redis.warm.pool_size", 5)
	viper.SetDefault("redis.warm.timeout", "10s")
	viper.SetDefault("redis.cold.max_retries", 3)
	viper.SetDefault("redis.cold.pool_size", 5)
	viper.SetDefault("redis.cold.timeout", "15s")

	// Kafka defaults
	viper.SetDefault("kafka.topics.interactions", "interaction-events")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Profile builder defaults
	viper.SetDefault("recommendation.profile.primary_tier_weight", 0.5)
	viper.SetDefault("recommendation.profile.secondary_tier_weight", 0.3)
	viper.SetDefault("recommendation.profile.tertiary_tier_weight", 0.2)
	viper.SetDefault("recommendation.profile.base_confidence", 0.4)
	viper.SetDefault("recommendation.profile.question_count_target", 8)

	// Signal defaults
	viper.SetDefault("recommendation.signals.similarity_weight", 0.6)
	viper.SetDefault("recommendation.signals.collaborative_weight", 0.2)
	viper.SetDefault("recommendation.signals.content_weight", 0.15)
	viper.SetDefault("recommendation.signals.contextual_weight", 0.05)
	viper.SetDefault("recommendation.signals.neighbor_similarity_threshold", 0.8)
	viper.SetDefault("recommendation.signals.neighbor_limit", 50)

	// Cold-start defaults
	viper.SetDefault("recommendation.cold_start.confidence_threshold", 0.3)
	viper.SetDefault("recommendation.cold_start.min_interactions", 3)
	viper.SetDefault("recommendation.cold_start.neighbor_k", 10)
	viper.SetDefault("recommendation.cold_start.similarity_threshold", 0.8)
	viper.SetDefault("recommendation.cold_start.high_magnitude_rating", 4.0)
	viper.SetDefault("recommendation.cold_start.max_boost", 0.5)

	// Decay defaults
	viper.SetDefault("recommendation.decay.factor", 0.95)

	// Feedback defaults
	viper.SetDefault("recommendation.feedback.base_learning_rate", 0.1)
	viper.SetDefault("recommendation.feedback.invalidation_threshold", 0.15)
	viper.SetDefault("recommendation.feedback.duplicate_window", "24h")
	viper.SetDefault("recommendation.feedback.max_update_retries", 3)
	viper.SetDefault("recommendation.feedback.min_interactions_for_bandit", 5)
	viper.SetDefault("recommendation.feedback.success_rate_smoothing", 0.2)

	// Caching defaults
	viper.SetDefault("recommendation.caching.profile_ttl", "1h")
	viper.SetDefault("recommendation.caching.ranked_list_ttl", "15m")
	viper.SetDefault("recommendation.caching.explanation_ttl", "24h")

	// Scoring defaults
	viper.SetDefault("recommendation.scoring.request_timeout", "2s")
	viper.SetDefault("recommendation.scoring.retry_backoff", "150ms")
	viper.SetDefault("recommendation.scoring.worker_count", 8)
	viper.SetDefault("recommendation.scoring.candidate_limit", 500)
	viper.SetDefault("recommendation.scoring.default_count", 10)
	viper.SetDefault("recommendation.scoring.max_count", 100)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
