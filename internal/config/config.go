// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat snake_case and map one-to-one to IDT_ environment variables.
// - Durations are stored as integer seconds or milliseconds and exposed as
//   time.Duration through accessor methods.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Store backends.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Similarity backends.
const (
	SimilarityHTTP = "http"
	SimilarityHNSW = "hnsw"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory sighting queue between ingestion and the worker.
	QueueSize int `koanf:"queue_size"`
	// DedupeSize bounds the emission guard.
	DedupeSize int `koanf:"dedupe_size"`
	// BroadcastQueueSize bounds the tracking update queue of the broadcast hub.
	BroadcastQueueSize int `koanf:"broadcast_queue_size"`

	// KafkaBootstrapServers is the comma separated broker list.
	KafkaBootstrapServers string `koanf:"kafka_bootstrap_servers"`
	KafkaConsumerTopic    string `koanf:"kafka_consumer_topic"`
	KafkaProducerTopic    string `koanf:"kafka_producer_topic"`
	KafkaGroupID          string `koanf:"kafka_group_id"`
	// KafkaEnabled turns the Kafka consumer and producer on. When false,
	// sightings arrive via POST /sightings only and identified events are logged.
	KafkaEnabled bool `koanf:"kafka_enabled"`

	// StoreBackend is redis or memory.
	StoreBackend  string `koanf:"store_backend"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	EmbeddingURL string `koanf:"embedding_url"`
	EmbeddingDim int    `koanf:"embedding_dim"`

	// SimilarityBackend is http or hnsw.
	SimilarityBackend     string `koanf:"similarity_backend"`
	SimilarityURL         string `koanf:"similarity_url"`
	SimilarityGalleryPath string `koanf:"similarity_gallery_path"`
	SimilarityTopK        int    `koanf:"similarity_top_k"`

	// CollaboratorTimeoutMS bounds each embedding or similarity call.
	CollaboratorTimeoutMS int `koanf:"collaborator_timeout_ms"`

	// ConfidenceThreshold is exclusive: a score must be strictly greater.
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
	SessionWindowSec    int     `koanf:"session_window_sec"`
	SessionTimeoutSec   int     `koanf:"session_timeout_sec"`
	TrackingTimeoutSec  int     `koanf:"tracking_timeout_sec"`

	TrackTimeWindowSec int     `koanf:"track_time_window_sec"`
	TrackRadius        float64 `koanf:"track_radius"`
	TrackRecentSamples int     `koanf:"track_recent_samples"`
	TrackHistoryLimit  int     `koanf:"track_history_limit"`

	PublishMaxAttempts      int `koanf:"publish_max_attempts"`
	PublishInitialBackoffMS int `koanf:"publish_initial_backoff_ms"`
	PublishTimeoutMS        int `koanf:"publish_timeout_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":8000",
		QueueSize:               10_000,
		DedupeSize:              100_000,
		BroadcastQueueSize:      1_000,
		KafkaBootstrapServers:   "localhost:9092",
		KafkaConsumerTopic:      "camera-sighting-events",
		KafkaProducerTopic:      "customer-identified",
		KafkaGroupID:            "identity-tracker-group",
		KafkaEnabled:            true,
		StoreBackend:            StoreRedis,
		RedisAddr:               "localhost:6379",
		EmbeddingURL:            "http://localhost:8001",
		EmbeddingDim:            512,
		SimilarityBackend:       SimilarityHTTP,
		SimilarityURL:           "http://localhost:8002",
		SimilarityTopK:          5,
		CollaboratorTimeoutMS:   10_000,
		ConfidenceThreshold:     95,
		SessionWindowSec:        60,
		SessionTimeoutSec:       300,
		TrackingTimeoutSec:      3600,
		TrackTimeWindowSec:      30,
		TrackRadius:             50,
		TrackRecentSamples:      10,
		TrackHistoryLimit:       100,
		PublishMaxAttempts:      3,
		PublishInitialBackoffMS: 1000,
		PublishTimeoutMS:        10_000,
	}
}

// Validate reports the first invalid field wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.BroadcastQueueSize <= 0:
		return fmt.Errorf("%w: broadcast_queue_size must be positive", ErrInvalidConfig)
	case c.StoreBackend != StoreRedis && c.StoreBackend != StoreMemory:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	case c.StoreBackend == StoreRedis && c.RedisAddr == "":
		return fmt.Errorf("%w: redis_addr required for redis store", ErrInvalidConfig)
	case c.SimilarityBackend != SimilarityHTTP && c.SimilarityBackend != SimilarityHNSW:
		return fmt.Errorf("%w: unknown similarity_backend %q", ErrInvalidConfig, c.SimilarityBackend)
	case c.SimilarityBackend == SimilarityHNSW && c.SimilarityGalleryPath == "":
		return fmt.Errorf("%w: similarity_gallery_path required for hnsw backend", ErrInvalidConfig)
	case c.EmbeddingDim <= 0:
		return fmt.Errorf("%w: embedding_dim must be positive", ErrInvalidConfig)
	case c.SimilarityTopK <= 0:
		return fmt.Errorf("%w: similarity_top_k must be positive", ErrInvalidConfig)
	case c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 100:
		return fmt.Errorf("%w: confidence_threshold must be within [0,100]", ErrInvalidConfig)
	case c.SessionWindowSec <= 0 || c.SessionTimeoutSec <= 0 || c.TrackingTimeoutSec <= 0:
		return fmt.Errorf("%w: session and tracking durations must be positive", ErrInvalidConfig)
	case c.TrackTimeWindowSec < 0 || c.TrackRadius < 0:
		return fmt.Errorf("%w: track window and radius must not be negative", ErrInvalidConfig)
	case c.TrackRecentSamples <= 0 || c.TrackHistoryLimit <= 0:
		return fmt.Errorf("%w: track sample limits must be positive", ErrInvalidConfig)
	case c.PublishMaxAttempts <= 0:
		return fmt.Errorf("%w: publish_max_attempts must be positive", ErrInvalidConfig)
	case c.KafkaEnabled && (c.KafkaBootstrapServers == "" || c.KafkaConsumerTopic == "" || c.KafkaProducerTopic == ""):
		return fmt.Errorf("%w: kafka servers and topics required when kafka is enabled", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) CollaboratorTimeout() time.Duration {
	return time.Duration(c.CollaboratorTimeoutMS) * time.Millisecond
}

func (c *Config) SessionWindow() time.Duration {
	return time.Duration(c.SessionWindowSec) * time.Second
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSec) * time.Second
}

func (c *Config) TrackingTimeout() time.Duration {
	return time.Duration(c.TrackingTimeoutSec) * time.Second
}

func (c *Config) TrackTimeWindow() time.Duration {
	return time.Duration(c.TrackTimeWindowSec) * time.Second
}

func (c *Config) PublishInitialBackoff() time.Duration {
	return time.Duration(c.PublishInitialBackoffMS) * time.Millisecond
}

func (c *Config) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutMS) * time.Millisecond
}
