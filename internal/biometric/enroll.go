package biometric

import (
	"context"
	"fmt"

	"github.com/andresmejia3/veriface/internal/types"
)

// Validator gates enrollment batches.
type Validator struct {
	profile Profile
	opts    options
}

// NewValidator returns a Validator bound to p.
func NewValidator(p Profile, opts ...Option) (*Validator, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %q: %w", p.Name, err)
	}
	return &Validator{profile: p, opts: buildOptions(opts)}, nil
}

// Profile returns the profile the validator was built with.
func (v *Validator) Profile() Profile { return v.profile }

// Validate runs the enrollment checks in order and stops at the first
// failure: sample count, shape, per-sample plausibility, pairwise diversity,
// then collision against every other identity in catalog. key is the identity
// being enrolled; its own entry in catalog is ignored so re-registration does
// not collide with itself.
//
// On success the returned set is a copy of samples, ready to replace the
// identity's stored set.
func (v *Validator) Validate(ctx context.Context, key types.IdentityKey, samples types.DescriptorSet, catalog []types.EnrolledIdentity) (types.DescriptorSet, error) {
	p := v.profile

	if len(samples) < p.MinSamples {
		return nil, newError(CodeInsufficientSamples, "got %d samples, need at least %d", len(samples), p.MinSamples).
			With("samples", len(samples))
	}

	if err := v.checkShapes(samples); err != nil {
		return nil, err
	}

	for i, d := range samples {
		if err := v.checkPlausible(d); err != nil {
			return nil, err.With("sample", i)
		}
	}

	if err := v.checkDiversity(samples); err != nil {
		return nil, err
	}

	if err := v.checkCollision(ctx, key, samples, catalog); err != nil {
		return nil, err
	}

	return samples.Clone(), nil
}

func (v *Validator) checkShapes(samples types.DescriptorSet) error {
	dim := v.profile.Dimensions
	if dim == 0 {
		dim = len(samples[0])
	}
	for i, d := range samples {
		if err := checkShape(d, dim); err != nil {
			return err.With("sample", i)
		}
	}
	return nil
}

func (v *Validator) checkPlausible(d types.Descriptor) *Error {
	p := v.profile
	if len(d) < p.MinDimension {
		return newError(CodeImplausibleDescriptor, "descriptor has %d elements, fewer than %d", len(d), p.MinDimension)
	}
	_, sd := Stats(d)
	if sd <= p.MinStdDev || sd >= p.MaxStdDev {
		return newError(CodeImplausibleDescriptor, "descriptor stddev %.4f outside (%g, %g)", sd, p.MinStdDev, p.MaxStdDev).
			With("stddev", sd)
	}
	return nil
}

func (v *Validator) checkDiversity(samples types.DescriptorSet) error {
	p := v.profile
	for i := 0; i < len(samples); i++ {
		for j := i + 1; j < len(samples); j++ {
			s := p.Metric.Similarity(samples[i], samples[j])
			if s >= p.NearDuplicateThreshold {
				return newError(CodeSamplesTooSimilar, "samples %d and %d are near-duplicates (%.4f >= %g)", i, j, s, p.NearDuplicateThreshold).
					With("similarity", s).
					With("pair", [2]int{i, j})
			}
		}
	}
	return nil
}

// checkCollision compares every sample in the batch against every other
// enrolled identity. Any aggregate score at or above the collision threshold
// rejects the batch.
func (v *Validator) checkCollision(ctx context.Context, key types.IdentityKey, samples types.DescriptorSet, catalog []types.EnrolledIdentity) error {
	others := make([]types.EnrolledIdentity, 0, len(catalog))
	for _, c := range enrolledOnly(catalog) {
		if c.Key != key {
			others = append(others, c)
		}
	}
	if len(others) == 0 {
		return nil
	}

	p := v.profile
	for i, d := range samples {
		scores, err := scoreCatalog(ctx, p, v.opts.workers, d, others)
		if err != nil {
			return err
		}
		for j, s := range scores {
			if s >= p.CollisionThreshold {
				return newError(CodeLikelyDuplicateIdentity, "sample %d scores %.4f against an enrolled identity", i, s).
					With("sample", i).
					With("score", s).
					With("identity", others[j].Key)
			}
		}
	}
	return nil
}
