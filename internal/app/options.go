package service

import (
	"github.com/okian/sightline/internal/adapters/store"
	"github.com/okian/sightline/internal/domain/resolver"
	"github.com/okian/sightline/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore replaces the configured store backend. The service owns it and
// closes it on Stop.
func WithStore(st store.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithEmbedder replaces the HTTP embedding client.
func WithEmbedder(e resolver.Embedder) Option {
	return func(s *Service) {
		if e != nil {
			s.embedder = e
		}
	}
}

// WithSearcher replaces the configured similarity backend.
func WithSearcher(sr resolver.Searcher) Option {
	return func(s *Service) {
		if sr != nil {
			s.searcher = sr
		}
	}
}

// WithPublisher replaces the Kafka producer as the destination of
// identified customer events. Retries still apply.
func WithPublisher(p resolver.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.sink = p
		}
	}
}
