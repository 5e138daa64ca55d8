package biometric

import (
	"errors"
	"fmt"
	"sort"
)

// Profile is the complete, named set of thresholds and metric choices that
// enrollment and matching are calibrated against. Thresholds only make sense
// for the metric and aggregator they were tuned with, so a Profile is copied
// by value into the Validator and Matcher and never mutated afterwards.
type Profile struct {
	Name string

	Metric     Metric
	Aggregator Aggregator

	// Dimensions is the expected descriptor length. 0 accepts any length.
	Dimensions int

	// AcceptThreshold must be strictly exceeded for a provisional match.
	AcceptThreshold float64
	// AmbiguityProximity is the fraction of AcceptThreshold at which a
	// runner-up forces the winner to clear StrictRatio·AcceptThreshold.
	AmbiguityProximity float64
	StrictRatio        float64
	// TieMargin rejects any winner whose runner-up is within this relative
	// distance of it, regardless of thresholds.
	TieMargin float64

	// CollisionThreshold is the aggregate score against another identity at
	// or above which an enrollment is rejected.
	CollisionThreshold float64
	// NearDuplicateThreshold is the pairwise score at or above which two
	// captures in one batch count as the same pose.
	NearDuplicateThreshold float64

	MinSamples   int
	MinDimension int
	// Captures must have an element-wise standard deviation strictly inside
	// (MinStdDev, MaxStdDev).
	MinStdDev float64
	MaxStdDev float64
}

// V1 is the default profile: discriminative Euclidean with a gated maximum.
var V1 = Profile{
	Name:                   "v1",
	Metric:                 Euclidean{Exponent: 1.5},
	Aggregator:             DefaultGatedMax,
	Dimensions:             128,
	AcceptThreshold:        0.70,
	AmbiguityProximity:     0.90,
	StrictRatio:            1.10,
	TieMargin:              0.02,
	CollisionThreshold:     0.70,
	NearDuplicateThreshold: 0.95,
	MinSamples:             3,
	MinDimension:           10,
	MinStdDev:              0.1,
	MaxStdDev:              0.5,
}

// V0 reproduces the first verification rules: baseline Euclidean, robust
// blend, and a lower acceptance threshold. Kept for comparison runs.
var V0 = Profile{
	Name:                   "v0",
	Metric:                 Euclidean{Exponent: 1},
	Aggregator:             DefaultRobustBlend,
	Dimensions:             128,
	AcceptThreshold:        0.60,
	AmbiguityProximity:     0.90,
	StrictRatio:            1.10,
	TieMargin:              0.02,
	CollisionThreshold:     0.70,
	NearDuplicateThreshold: 0.95,
	MinSamples:             3,
	MinDimension:           10,
	MinStdDev:              0.1,
	MaxStdDev:              0.5,
}

var profiles = map[string]Profile{
	V1.Name: V1,
	V0.Name: V0,
}

// DefaultProfile is used when no profile is configured.
const DefaultProfile = "v1"

// ProfileByName looks up a registered profile.
func ProfileByName(name string) (Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown matching profile %q (known: %v)", name, ProfileNames())
	}
	return p, nil
}

// ProfileNames returns the registered profile names, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// WithDimensions returns a copy of p expecting descriptors of length dim.
func (p Profile) WithDimensions(dim int) Profile {
	p.Dimensions = dim
	return p
}

// StrictThreshold is the score a winner must clear when a runner-up is near the threshold.
func (p Profile) StrictThreshold() float64 {
	return p.AcceptThreshold * p.StrictRatio
}

// Validate checks that the profile is internally consistent.
func (p Profile) Validate() error {
	var errs []error
	if p.Metric == nil {
		errs = append(errs, errors.New("metric is required"))
	}
	if p.Aggregator == nil {
		errs = append(errs, errors.New("aggregator is required"))
	}
	for name, v := range map[string]float64{
		"accept_threshold":         p.AcceptThreshold,
		"collision_threshold":      p.CollisionThreshold,
		"near_duplicate_threshold": p.NearDuplicateThreshold,
	} {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in (0, 1], got %g", name, v))
		}
	}
	if p.StrictRatio < 1 {
		errs = append(errs, fmt.Errorf("strict ratio must be >= 1, got %g", p.StrictRatio))
	}
	if p.AmbiguityProximity <= 0 || p.AmbiguityProximity > 1 {
		errs = append(errs, fmt.Errorf("ambiguity proximity must be in (0, 1], got %g", p.AmbiguityProximity))
	}
	if p.TieMargin < 0 || p.TieMargin >= 1 {
		errs = append(errs, fmt.Errorf("tie margin must be in [0, 1), got %g", p.TieMargin))
	}
	if p.MinSamples < 1 {
		errs = append(errs, fmt.Errorf("min samples must be >= 1, got %d", p.MinSamples))
	}
	if p.MinStdDev >= p.MaxStdDev {
		errs = append(errs, fmt.Errorf("stddev band (%g, %g) is empty", p.MinStdDev, p.MaxStdDev))
	}
	if p.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("dimensions must be >= 0, got %d", p.Dimensions))
	}
	return errors.Join(errs...)
}
