// Package service wires the identity resolution pipeline and implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/sightline/internal/adapters/collab/embedding"
	"github.com/okian/sightline/internal/adapters/collab/similarity"
	"github.com/okian/sightline/internal/adapters/mq/kafka"
	"github.com/okian/sightline/internal/adapters/mq/queue"
	"github.com/okian/sightline/internal/adapters/mq/worker"
	"github.com/okian/sightline/internal/adapters/store"
	"github.com/okian/sightline/internal/config"
	"github.com/okian/sightline/internal/domain/broadcast"
	"github.com/okian/sightline/internal/domain/confidence"
	"github.com/okian/sightline/internal/domain/dedupe"
	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/internal/domain/resolver"
	"github.com/okian/sightline/internal/domain/tracking"
	"github.com/okian/sightline/pkg/logger"
	"github.com/okian/sightline/pkg/metrics"
)

const (
	pingTimeout       = 5 * time.Second
	sightingQueueName = "sightings"
)

// Service owns every pipeline component and their lifecycle.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	store      store.Store
	aggregator *confidence.Aggregator
	tracker    *tracking.Manager
	guard      dedupe.Deduper
	hub        *broadcast.Hub
	embedder   resolver.Embedder
	searcher   resolver.Searcher
	sink       resolver.Publisher
	resolver   *resolver.Resolver
	queue      *queue.InMemoryQueue[model.SightingEvent]
	worker     *worker.SequentialWorker
	consumer   *kafka.Consumer
	producer   *kafka.Producer

	// Lifecycle
	started        bool
	cancel         context.CancelFunc
	stopConsumer   context.CancelFunc
	consumerDone   chan struct{}
	hubDone        chan struct{}
	backgroundDone sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service from cfg. Components are created by Start.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.NamedOrNop("service")
	}
	return s
}

// Start builds the pipeline and launches its goroutines. The goroutines are
// detached from ctx cancellation; Stop shuts them down in order.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting identity tracker...")

	if err := s.build(ctx); err != nil {
		s.release()
		return err
	}

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.hubDone = make(chan struct{})
	go func() {
		defer close(s.hubDone)
		s.hub.Run(bg)
	}()

	go s.worker.Run(bg)

	s.backgroundDone.Add(1)
	go func() {
		defer s.backgroundDone.Done()
		metrics.RunSystemSampler(bg)
	}()

	if s.consumer != nil {
		consumerCtx, stop := context.WithCancel(bg)
		s.stopConsumer = stop
		s.consumerDone = make(chan struct{})
		go func() {
			defer close(s.consumerDone)
			if err := s.consumer.Run(consumerCtx); err != nil {
				s.logger.Error(consumerCtx, "kafka consumer stopped", logger.Error(err))
			}
		}()
	}

	s.started = true
	s.logger.Info(ctx, "identity tracker started",
		logger.String("store_backend", s.cfg.StoreBackend),
		logger.String("similarity_backend", s.cfg.SimilarityBackend),
		logger.Bool("kafka_enabled", s.cfg.KafkaEnabled),
		logger.Int("queue_size", s.cfg.QueueSize),
		logger.Int("dedupe_size", s.cfg.DedupeSize),
	)
	return nil
}

func (s *Service) build(ctx context.Context) error {
	cfg := s.cfg

	if err := s.openStore(ctx); err != nil {
		return err
	}

	s.aggregator = confidence.New(s.store,
		confidence.WithThreshold(cfg.ConfidenceThreshold),
		confidence.WithSessionTimeout(cfg.SessionTimeout()),
		confidence.WithLogger(s.logger.Named("confidence")),
	)
	s.tracker = tracking.New(s.store,
		tracking.WithTimeWindow(cfg.TrackTimeWindow()),
		tracking.WithRadius(cfg.TrackRadius),
		tracking.WithRecentSamples(cfg.TrackRecentSamples),
		tracking.WithHistoryLimit(cfg.TrackHistoryLimit),
		tracking.WithTrackingTimeout(cfg.TrackingTimeout()),
		tracking.WithLogger(s.logger.Named("tracking")),
	)
	s.guard = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
	s.hub = broadcast.New(
		broadcast.WithQueueSize(cfg.BroadcastQueueSize),
		broadcast.WithLogger(s.logger.Named("broadcast")),
	)

	if s.embedder == nil {
		s.embedder = embedding.New(cfg.EmbeddingURL,
			embedding.WithDimension(cfg.EmbeddingDim),
			embedding.WithTimeout(cfg.CollaboratorTimeout()),
		)
	}
	if err := s.openSearcher(ctx); err != nil {
		return err
	}
	if err := s.openPublisher(ctx); err != nil {
		return err
	}

	s.resolver = resolver.New(s.aggregator, s.tracker, s.embedder, s.searcher,
		resolver.NewRetryingPublisher(s.sink,
			resolver.WithMaxAttempts(cfg.PublishMaxAttempts),
			resolver.WithInitialBackoff(cfg.PublishInitialBackoff()),
			resolver.WithAttemptTimeout(cfg.PublishTimeout()),
			resolver.WithPublishLogger(s.logger.Named("publisher")),
		),
		resolver.WithBroadcaster(s.hub),
		resolver.WithEmissionGuard(s.guard),
		resolver.WithEmbeddingDim(cfg.EmbeddingDim),
		resolver.WithTopK(cfg.SimilarityTopK),
		resolver.WithSessionWindow(cfg.SessionWindow()),
		resolver.WithCallTimeout(cfg.CollaboratorTimeout()),
		resolver.WithLogger(s.logger.Named("resolver")),
	)

	s.queue = queue.NewInMemoryQueue[model.SightingEvent](
		queue.WithCapacity(cfg.QueueSize),
		queue.WithName(sightingQueueName),
	)
	s.worker = worker.NewSequentialWorker(s.queue, s.resolver,
		worker.WithName("resolver"),
		worker.WithLogger(s.logger.Named("worker")),
	)

	if cfg.KafkaEnabled {
		c, err := kafka.NewConsumer(cfg.KafkaBootstrapServers, cfg.KafkaGroupID, cfg.KafkaConsumerTopic, s.queue,
			kafka.WithConsumerLogger(s.logger.Named("kafka_consumer")),
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStartup, err)
		}
		s.consumer = c
	}
	return nil
}

func (s *Service) openStore(ctx context.Context) error {
	if s.store == nil {
		switch s.cfg.StoreBackend {
		case config.StoreMemory:
			s.store = store.NewMemoryStore(ctx)
		default:
			s.store = store.NewRedisStore(s.cfg.RedisAddr,
				store.WithPassword(s.cfg.RedisPassword),
				store.WithDB(s.cfg.RedisDB),
			)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.store.Ping(pingCtx); err != nil {
		return fmt.Errorf("%w: store: %w", ErrStartup, err)
	}
	return nil
}

func (s *Service) openSearcher(ctx context.Context) error {
	if s.searcher != nil {
		return nil
	}
	switch s.cfg.SimilarityBackend {
	case config.SimilarityHNSW:
		g, err := similarity.LoadGallery(s.cfg.SimilarityGalleryPath)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStartup, err)
		}
		s.logger.Info(ctx, "similarity gallery loaded",
			logger.String("path", s.cfg.SimilarityGalleryPath),
			logger.Int("identities", g.Len()),
		)
		s.searcher = g
	default:
		s.searcher = similarity.NewHTTPClient(s.cfg.SimilarityURL,
			similarity.WithTimeout(s.cfg.CollaboratorTimeout()),
		)
	}
	return nil
}

func (s *Service) openPublisher(ctx context.Context) error {
	if s.sink != nil {
		return nil
	}
	if !s.cfg.KafkaEnabled {
		s.logger.Warn(ctx, "kafka disabled; identified events are only logged")
		s.sink = resolver.NewLogPublisher(s.logger.Named("identified"))
		return nil
	}
	p, err := kafka.NewProducer(s.cfg.KafkaBootstrapServers, s.cfg.KafkaProducerTopic,
		kafka.WithProducerLogger(s.logger.Named("kafka_producer")),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}
	s.producer = p
	s.sink = p
	return nil
}

// Stop drains the pipeline: the Kafka poll stops first, the worker finishes
// everything already queued, then the hub and clients are closed.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping identity tracker...")

	if s.stopConsumer != nil {
		s.stopConsumer()
		<-s.consumerDone
	}

	var shutdownErr error
	if err := s.worker.Shutdown(ctx); err != nil {
		shutdownErr = err
	}

	_ = s.hub.Close()
	select {
	case <-s.hubDone:
	case <-ctx.Done():
	}

	s.cancel()
	s.backgroundDone.Wait()
	s.release()

	s.started = false
	s.logger.Info(ctx, "identity tracker stopped")
	return shutdownErr
}

// release closes the external clients that were opened.
func (s *Service) release() {
	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			s.logger.Warn(context.Background(), "closing kafka consumer", logger.Error(err))
		}
		s.consumer = nil
	}
	if s.producer != nil {
		s.producer.Close()
		s.producer = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(context.Background(), "closing store", logger.Error(err))
		}
	}
}

// Enqueue hands a sighting to the worker without blocking. It returns false
// when the queue is full or the service is stopped.
func (s *Service) Enqueue(ctx context.Context, e model.SightingEvent) bool {
	s.mu.RLock()
	q := s.queue
	started := s.started
	s.mu.RUnlock()

	if !started {
		return false
	}
	if !q.Enqueue(ctx, e) {
		s.logger.Debug(ctx, "sighting rejected", logger.String("camera_id", e.CameraID))
		return false
	}
	return true
}

// components returns the tracker, aggregator and hub, or false before Start.
func (s *Service) components() (*tracking.Manager, *confidence.Aggregator, *broadcast.Hub, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker, s.aggregator, s.hub, s.started
}

// Track returns the person track for personID.
func (s *Service) Track(ctx context.Context, personID string) (model.PersonTrack, error) {
	tracker, _, _, started := s.components()
	if !started {
		return model.PersonTrack{}, ErrNotStarted
	}
	return tracker.Get(ctx, personID)
}

// SessionConfidence returns the aggregated candidate scores of a session.
func (s *Service) SessionConfidence(ctx context.Context, sessionID string) (model.SessionConfidence, error) {
	_, aggregator, _, started := s.components()
	if !started {
		return model.SessionConfidence{}, ErrNotStarted
	}
	return aggregator.Scores(ctx, sessionID)
}

// ApplyTrackingUpdate records externally observed positions and broadcasts u.
// It is a no-op while the service is not running.
func (s *Service) ApplyTrackingUpdate(ctx context.Context, u model.TrackingUpdate) {
	tracker, _, hub, started := s.components()
	if !started {
		s.logger.Warn(ctx, "tracking update ignored, service not running",
			logger.Int("objects", len(u.Objects)))
		return
	}
	for _, o := range u.Objects {
		identityID := ""
		if o.CustomerID != nil {
			identityID = *o.CustomerID
		}
		tracker.Update(ctx, o.PersonID, o.CameraID, o.Timestamp, o.Position, identityID)
	}
	hub.Publish(ctx, u)
}

// Hub returns the broadcast hub live subscribers register with.
func (s *Service) Hub() *broadcast.Hub {
	return s.hub
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":            s.started,
		"store_backend":      s.cfg.StoreBackend,
		"similarity_backend": s.cfg.SimilarityBackend,
		"kafka_enabled":      s.cfg.KafkaEnabled,
		"queue_capacity":     s.cfg.QueueSize,
		"dedupe_capacity":    s.cfg.DedupeSize,
	}

	if s.started {
		stats["queue_length"] = s.queue.Len(context.Background())
		stats["subscribers"] = s.hub.Count()
		stats["emitted_sessions"] = s.guard.Size()
	}
	return stats
}
