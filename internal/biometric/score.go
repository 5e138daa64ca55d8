package biometric

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/andresmejia3/veriface/internal/types"
)

// Option configures a Validator or Matcher.
type Option func(*options)

type options struct {
	workers int
}

// WithWorkers bounds how many candidates are scored concurrently.
// n <= 0 means one per CPU.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

func buildOptions(opts []Option) options {
	o := options{workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers <= 0 {
		o.workers = runtime.NumCPU()
	}
	return o
}

// scoreCatalog computes the aggregate score of query against every identity
// in catalog. Scores are in catalog order. All goroutines finish before it
// returns, so callers decide on a complete set.
func scoreCatalog(ctx context.Context, p Profile, workers int, query types.Descriptor, catalog []types.EnrolledIdentity) ([]float64, error) {
	scores := make([]float64, len(catalog))
	if len(catalog) == 1 || workers == 1 {
		for i, c := range catalog {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			scores[i] = Score(p.Metric, p.Aggregator, query, c.Descriptors)
		}
		return scores, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range catalog {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scores[i] = Score(p.Metric, p.Aggregator, query, c.Descriptors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// enrolledOnly drops identities with nothing on file.
func enrolledOnly(catalog []types.EnrolledIdentity) []types.EnrolledIdentity {
	out := make([]types.EnrolledIdentity, 0, len(catalog))
	for _, c := range catalog {
		if len(c.Descriptors) > 0 {
			out = append(out, c)
		}
	}
	return out
}
