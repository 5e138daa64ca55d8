package service

import (
	"github.com/andresmejia3/veriface/internal/logger"
	"github.com/andresmejia3/veriface/internal/metrics"
	"github.com/andresmejia3/veriface/internal/worker"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets the decision logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records outcomes on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Service) {
		s.metrics = r
	}
}

// WithMatchHook runs h after every accepted match.
func WithMatchHook(h MatchHook) Option {
	return func(s *Service) {
		s.hook = h
	}
}

// WithEmbedder enables the image-driven operations.
func WithEmbedder(e worker.Embedder) Option {
	return func(s *Service) {
		s.embedder = e
	}
}

// WithWorkers bounds parallel candidate scoring.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}
