package biometric

import (
	"sort"

	"github.com/andresmejia3/veriface/internal/types"
)

// Aggregator folds per-sample similarity scores into one confidence score.
// Implementations must return s unchanged for a single score s.
type Aggregator interface {
	Name() string
	Aggregate(scores []float64) float64
}

// Score computes the aggregate similarity of query against an enrolled set.
// An empty set scores 0.
func Score(m Metric, a Aggregator, query types.Descriptor, set types.DescriptorSet) float64 {
	if len(set) == 0 {
		return 0
	}
	scores := make([]float64, len(set))
	for i, d := range set {
		scores[i] = m.Similarity(query, d)
	}
	return a.Aggregate(scores)
}

// MaxOnly takes the best single-sample score.
type MaxOnly struct{}

// Name implements Aggregator.
func (MaxOnly) Name() string { return "max" }

// Aggregate implements Aggregator.
func (MaxOnly) Aggregate(scores []float64) float64 {
	return maxOf(scores)
}

// RobustBlend mixes the maximum, the mean of the top three, and the
// self-weighted mean Σs²/Σs, so one lucky sample cannot carry a set that
// otherwise disagrees.
type RobustBlend struct {
	MaxWeight, TopWeight, SelfWeight float64
}

// DefaultRobustBlend is 0.5·max + 0.3·top3 + 0.2·self-weighted.
var DefaultRobustBlend = RobustBlend{MaxWeight: 0.5, TopWeight: 0.3, SelfWeight: 0.2}

// Name implements Aggregator.
func (RobustBlend) Name() string { return "robust-blend" }

// Aggregate implements Aggregator.
func (b RobustBlend) Aggregate(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sorted := append([]float64(nil), scores...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	top := sorted[:min(3, len(sorted))]
	var topSum float64
	for _, s := range top {
		topSum += s
	}
	topMean := topSum / float64(len(top))

	var sum, sq float64
	for _, s := range sorted {
		sum += s
		sq += s * s
	}
	self := 0.0
	if sum != 0 {
		self = sq / sum
	}

	total := b.MaxWeight + b.TopWeight + b.SelfWeight
	if total == 0 {
		return sorted[0]
	}
	return (b.MaxWeight*sorted[0] + b.TopWeight*topMean + b.SelfWeight*self) / total
}

// GatedMax takes the maximum, but when fewer than half the samples clear
// Reasonable and the maximum is below HighConfidence the result is
// multiplied by Penalty. Single-sample sets are never penalized.
type GatedMax struct {
	Reasonable     float64
	HighConfidence float64
	Penalty        float64
}

// DefaultGatedMax is 0.7 / 0.85 / ×0.8.
var DefaultGatedMax = GatedMax{Reasonable: 0.7, HighConfidence: 0.85, Penalty: 0.8}

// Name implements Aggregator.
func (GatedMax) Name() string { return "gated-max" }

// Aggregate implements Aggregator.
func (g GatedMax) Aggregate(scores []float64) float64 {
	best := maxOf(scores)
	if len(scores) < 2 || best >= g.HighConfidence {
		return best
	}
	var above int
	for _, s := range scores {
		if s > g.Reasonable {
			above++
		}
	}
	if 2*above < len(scores) {
		return best * g.Penalty
	}
	return best
}

func maxOf(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s > best {
			best = s
		}
	}
	return best
}
