// Package service is the caller-facing API over the biometric core: it loads
// the catalog, runs the decision, persists accepted enrollments, and reports
// what happened.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/veriface/internal/biometric"
	"github.com/andresmejia3/veriface/internal/logger"
	"github.com/andresmejia3/veriface/internal/metrics"
	"github.com/andresmejia3/veriface/internal/types"
	"github.com/andresmejia3/veriface/internal/worker"
)

// Store is the identity store the service needs.
type Store interface {
	LoadAllEnrolled(ctx context.Context) ([]types.EnrolledIdentity, error)
	LoadOneEnrolled(ctx context.Context, key types.IdentityKey) (*types.EnrolledIdentity, error)
	ReplaceDescriptors(ctx context.Context, key types.IdentityKey, set types.DescriptorSet) error
}

// MatchHook runs after an accepted match. Its error is logged and does not
// change the match result.
type MatchHook func(ctx context.Context, res biometric.MatchResult) error

// Service validates enrollments and matches queries against a Store.
type Service struct {
	store     Store
	validator *biometric.Validator
	matcher   *biometric.Matcher

	log      logger.Logger
	metrics  *metrics.Recorder
	hook     MatchHook
	embedder worker.Embedder
	workers  int
}

// New builds a Service for profile p.
func New(store Store, p biometric.Profile, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("service: store is required")
	}
	s := &Service{store: store, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	var bopts []biometric.Option
	if s.workers > 0 {
		bopts = append(bopts, biometric.WithWorkers(s.workers))
	}
	var err error
	if s.validator, err = biometric.NewValidator(p, bopts...); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	if s.matcher, err = biometric.NewMatcher(p, bopts...); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	s.log = s.log.Named("service")
	return s, nil
}

// Profile returns the profile decisions are made with.
func (s *Service) Profile() biometric.Profile { return s.matcher.Profile() }

// ValidateEnrollment checks whether capture may be enrolled as key. Nothing is stored.
func (s *Service) ValidateEnrollment(ctx context.Context, key types.IdentityKey, capture types.Capture) (types.DescriptorSet, error) {
	set, err := s.validate(ctx, key, capture)
	s.reportEnrollment(ctx, "enrollment validated", key, len(capture.Set), err)
	return set, err
}

// Enroll validates capture and, if accepted, replaces key's stored set with it.
func (s *Service) Enroll(ctx context.Context, key types.IdentityKey, capture types.Capture) (types.DescriptorSet, error) {
	set, err := s.validate(ctx, key, capture)
	if err == nil {
		if storeErr := s.store.ReplaceDescriptors(ctx, key, set); storeErr != nil {
			set, err = nil, biometric.Unavailable("store descriptors", storeErr)
		}
	}
	s.reportEnrollment(ctx, "identity enrolled", key, len(capture.Set), err)
	return set, err
}

func (s *Service) validate(ctx context.Context, key types.IdentityKey, capture types.Capture) (types.DescriptorSet, error) {
	if key == "" {
		return nil, biometric.InvalidInput("identity key is required")
	}
	catalog, err := s.store.LoadAllEnrolled(ctx)
	if err != nil {
		return nil, biometric.Unavailable("load enrolled identities", err)
	}
	return s.validator.Validate(ctx, key, capture.Set, catalog)
}

// MatchIdentity finds the enrolled identity query belongs to. A non-empty
// hint confirms that one identity instead of searching the catalog.
func (s *Service) MatchIdentity(ctx context.Context, query types.Descriptor, hint types.IdentityKey) (*biometric.MatchResult, error) {
	start := time.Now()

	candidates, err := s.candidates(ctx, hint)
	if err == nil {
		s.metrics.ObserveCandidates(len(candidates))
		var res *biometric.MatchResult
		res, err = s.matcher.Match(ctx, query, candidates, hint)
		if err == nil {
			s.metrics.ObserveVerification(metrics.OutcomeOK, time.Since(start))
			s.log.Info(ctx, "match accepted",
				logger.String("attempt_id", res.AttemptID),
				logger.String("identity", string(res.Identity)),
				logger.Float64("score", res.Score),
				logger.String("runner_up", string(res.RunnerUp)),
				logger.Float64("runner_up_score", res.RunnerUpScore),
				logger.Int("candidates", res.Candidates),
			)
			s.runHook(ctx, *res)
			return res, nil
		}
	}

	s.metrics.ObserveVerification(outcome(err), time.Since(start))
	s.log.Warn(ctx, "match rejected",
		logger.String("code", outcome(err)),
		logger.String("hint", string(hint)),
		logger.Error(err),
	)
	return nil, err
}

func (s *Service) candidates(ctx context.Context, hint types.IdentityKey) ([]types.EnrolledIdentity, error) {
	if hint == "" {
		all, err := s.store.LoadAllEnrolled(ctx)
		if err != nil {
			return nil, biometric.Unavailable("load enrolled identities", err)
		}
		return all, nil
	}
	one, err := s.store.LoadOneEnrolled(ctx, hint)
	if err != nil {
		return nil, biometric.Unavailable("load identity", err)
	}
	if one == nil {
		return nil, nil
	}
	return []types.EnrolledIdentity{*one}, nil
}

func (s *Service) runHook(ctx context.Context, res biometric.MatchResult) {
	if s.hook == nil {
		return
	}
	if err := s.hook(ctx, res); err != nil {
		s.log.Error(ctx, "match hook failed",
			logger.String("attempt_id", res.AttemptID),
			logger.String("identity", string(res.Identity)),
			logger.Error(err),
		)
	}
}

// EnrollImages embeds each image and enrolls the resulting set as key.
func (s *Service) EnrollImages(ctx context.Context, key types.IdentityKey, images [][]byte) (types.DescriptorSet, error) {
	set := make(types.DescriptorSet, 0, len(images))
	for i, img := range images {
		d, err := s.embed(ctx, img)
		if err != nil {
			var be *biometric.Error
			if errors.As(err, &be) {
				be.With("image", i)
			}
			s.reportEnrollment(ctx, "identity enrolled", key, len(images), err)
			return nil, err
		}
		set = append(set, d)
	}
	return s.Enroll(ctx, key, types.NewCapture(set...))
}

// VerifyImage embeds image and matches the largest face in it.
func (s *Service) VerifyImage(ctx context.Context, image []byte, hint types.IdentityKey) (*biometric.MatchResult, error) {
	d, err := s.embed(ctx, image)
	if err != nil {
		s.metrics.ObserveVerification(outcome(err), 0)
		s.log.Warn(ctx, "match rejected", logger.String("code", outcome(err)), logger.Error(err))
		return nil, err
	}
	return s.MatchIdentity(ctx, d, hint)
}

func (s *Service) embed(ctx context.Context, image []byte) (types.Descriptor, error) {
	if s.embedder == nil {
		return nil, biometric.Unavailable("no embedding source configured", nil)
	}
	d, err := s.embedder.Embed(ctx, image)
	switch {
	case err == nil:
		return d, nil
	case errors.Is(err, worker.ErrNoFace):
		return nil, biometric.InvalidInput("no face detected in image")
	case errors.Is(err, worker.ErrBadImage):
		return nil, biometric.InvalidInput("%v", err)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, biometric.Unavailable("embedding source failed", err)
	}
}

func (s *Service) reportEnrollment(ctx context.Context, msg string, key types.IdentityKey, samples int, err error) {
	s.metrics.ObserveEnrollment(outcome(err))
	if err == nil {
		s.log.Info(ctx, msg, logger.String("identity", string(key)), logger.Int("samples", samples))
		return
	}
	s.log.Warn(ctx, "enrollment rejected",
		logger.String("identity", string(key)),
		logger.String("code", outcome(err)),
		logger.Int("samples", samples),
		logger.Error(err),
	)
}

// outcome labels err for metrics and logs.
func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	if code := biometric.CodeOf(err); code != "" {
		return string(code)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CANCELED"
	}
	return "ERROR"
}
