package biometric

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/andresmejia3/veriface/internal/types"
)

// MatchResult is a positive identification. Non-matches are returned as
// *Error with CodeNoEnrollments, CodeNoMatch, CodeAmbiguousMatch or
// CodeInvalidInput.
type MatchResult struct {
	AttemptID string
	Identity  types.IdentityKey
	Score     float64
	// RunnerUp is the best other identity, empty when only one was scored.
	RunnerUp      types.IdentityKey
	RunnerUpScore float64
	Candidates    int
	Profile       string
}

// Matcher identifies a query descriptor against a catalog snapshot.
type Matcher struct {
	profile Profile
	opts    options
}

// NewMatcher returns a Matcher bound to p.
func NewMatcher(p Profile, opts ...Option) (*Matcher, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %q: %w", p.Name, err)
	}
	return &Matcher{profile: p, opts: buildOptions(opts)}, nil
}

// Profile returns the profile the matcher was built with.
func (m *Matcher) Profile() Profile { return m.profile }

// Match scores query against every candidate and picks at most one winner.
//
// A non-empty hint restricts the search to that identity (1:1 confirmation).
// Candidates are scored concurrently; the decision is made only once every
// score is in. ctx is checked between candidates.
func (m *Matcher) Match(ctx context.Context, query types.Descriptor, candidates []types.EnrolledIdentity, hint types.IdentityKey) (*MatchResult, error) {
	p := m.profile

	if len(candidates) == 0 {
		return nil, newError(CodeNoEnrollments, "no identities enrolled")
	}
	if err := checkShape(query, p.Dimensions); err != nil {
		return nil, err
	}

	if hint != "" {
		candidates = restrict(candidates, hint)
	}
	candidates = enrolledOnly(candidates)
	if len(candidates) == 0 {
		if hint != "" {
			return nil, newError(CodeNoEnrollments, "identity has no enrolled descriptors").With("identity", hint)
		}
		return nil, newError(CodeNoEnrollments, "no identities have enrolled descriptors")
	}

	scores, err := scoreCatalog(ctx, p, m.opts.workers, query, candidates)
	if err != nil {
		return nil, err
	}
	return m.decide(candidates, scores)
}

func (m *Matcher) decide(candidates []types.EnrolledIdentity, scores []float64) (*MatchResult, error) {
	p := m.profile

	win := -1
	for i, s := range scores {
		if s > p.AcceptThreshold && (win < 0 || s > scores[win]) {
			win = i
		}
	}
	if win < 0 {
		best := maxOf(scores)
		return nil, newError(CodeNoMatch, "best score %.4f does not exceed %g", best, p.AcceptThreshold).
			With("best_score", best).
			With("candidates", len(candidates))
	}

	res := &MatchResult{
		AttemptID:  uuid.NewString(),
		Identity:   candidates[win].Key,
		Score:      scores[win],
		Candidates: len(candidates),
		Profile:    p.Name,
	}

	runner := -1
	for i, s := range scores {
		if candidates[i].Key == res.Identity {
			continue
		}
		if runner < 0 || s > scores[runner] {
			runner = i
		}
	}
	if runner < 0 {
		return res, nil
	}
	res.RunnerUp = candidates[runner].Key
	res.RunnerUpScore = scores[runner]

	if res.RunnerUpScore >= res.Score*(1-p.TieMargin) {
		return nil, ambiguous(res, "runner-up within %g%% of winner", p.TieMargin*100)
	}
	if res.RunnerUpScore >= p.AmbiguityProximity*p.AcceptThreshold && res.Score <= p.StrictThreshold() {
		return nil, ambiguous(res, "runner-up near threshold and winner below strict threshold %.4f", p.StrictThreshold())
	}
	return res, nil
}

func ambiguous(res *MatchResult, format string, args ...any) *Error {
	return newError(CodeAmbiguousMatch, format, args...).
		With("best_score", res.Score).
		With("runner_up_score", res.RunnerUpScore).
		With("candidates", res.Candidates)
}

func restrict(candidates []types.EnrolledIdentity, key types.IdentityKey) []types.EnrolledIdentity {
	for _, c := range candidates {
		if c.Key == key {
			return []types.EnrolledIdentity{c}
		}
	}
	return nil
}
