package biometric

import (
	"fmt"
	"math"

	"github.com/andresmejia3/veriface/internal/types"
)

// Metric scores two descriptors. Similarity is in [0,1] unless the metric
// documents otherwise, higher is more similar. Distance is >= 0, lower is
// more similar. Empty or mismatched inputs give similarity 0 and the
// metric's maximal distance.
type Metric interface {
	Name() string
	Similarity(a, b types.Descriptor) float64
	Distance(a, b types.Descriptor) float64
}

// kernel is the float64 core shared by Metric implementations, so Composite
// can feed them pre-normalized vectors.
type kernel interface {
	similarity64(a, b []float64) float64
}

// Euclidean converts L2 distance d into 1/(1+d^Exponent).
// Exponent 1 is the baseline curve; 1.5 separates near matches more sharply.
// The exponent changes threshold calibration, so it is fixed per Profile.
type Euclidean struct {
	Exponent float64
}

func (m Euclidean) exponent() float64 {
	if m.Exponent <= 0 {
		return 1
	}
	return m.Exponent
}

// Name implements Metric.
func (m Euclidean) Name() string {
	if e := m.exponent(); e != 1 {
		return fmt.Sprintf("euclidean^%g", e)
	}
	return "euclidean"
}

// Distance returns the L2 distance, or +Inf for incomparable inputs.
func (m Euclidean) Distance(a, b types.Descriptor) float64 {
	if !scorable(a, b) {
		return math.Inf(1)
	}
	return euclidean64(a.Float64(), b.Float64())
}

// Similarity implements Metric.
func (m Euclidean) Similarity(a, b types.Descriptor) float64 {
	if !scorable(a, b) {
		return 0
	}
	return m.similarity64(a.Float64(), b.Float64())
}

func (m Euclidean) similarity64(a, b []float64) float64 {
	d := euclidean64(a, b)
	if e := m.exponent(); e != 1 {
		d = math.Pow(d, e)
	}
	return 1 / (1 + d)
}

func euclidean64(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// Cosine is dot(a,b)/(|a||b|). The raw value is in [-1,1]; with Remap it is
// mapped to [0,1] via (x+1)/2. A zero-magnitude input scores 0 either way.
type Cosine struct {
	Remap bool
}

// Name implements Metric.
func (m Cosine) Name() string {
	if m.Remap {
		return "cosine01"
	}
	return "cosine"
}

// Distance returns 1 - cosine, in [0,2]. Incomparable inputs return 2.
func (m Cosine) Distance(a, b types.Descriptor) float64 {
	if !scorable(a, b) {
		return 2
	}
	c, ok := cosine64(a.Float64(), b.Float64())
	if !ok {
		return 2
	}
	return 1 - c
}

// Similarity implements Metric.
func (m Cosine) Similarity(a, b types.Descriptor) float64 {
	if !scorable(a, b) {
		return 0
	}
	return m.similarity64(a.Float64(), b.Float64())
}

func (m Cosine) similarity64(a, b []float64) float64 {
	c, ok := cosine64(a, b)
	if !ok {
		return 0
	}
	if m.Remap {
		return (c + 1) / 2
	}
	return c
}

func cosine64(a, b []float64) (float64, bool) {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	c := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp float error.
	if c > 1 {
		c = 1
	}
	if c < -1 {
		c = -1
	}
	return c, true
}

// Manhattan converts the mean absolute per-dimension difference m into 1/(1+m).
type Manhattan struct{}

// Name implements Metric.
func (Manhattan) Name() string { return "manhattan" }

// Distance returns the mean absolute difference, or +Inf for incomparable inputs.
func (Manhattan) Distance(a, b types.Descriptor) float64 {
	if !scorable(a, b) {
		return math.Inf(1)
	}
	return meanAbs64(a.Float64(), b.Float64())
}

// Similarity implements Metric.
func (m Manhattan) Similarity(a, b types.Descriptor) float64 {
	if !scorable(a, b) {
		return 0
	}
	return m.similarity64(a.Float64(), b.Float64())
}

func (Manhattan) similarity64(a, b []float64) float64 {
	return 1 / (1 + meanAbs64(a, b))
}

func meanAbs64(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum / float64(len(a))
}

// Region is a contiguous slice of the descriptor, given as fractions of its
// length so the same layout applies to any dimension.
type Region struct {
	From, To float64
	Weight   float64
}

// DefaultRegions splits the descriptor into quarters weighted 0.4/0.3/0.2/0.1.
// This is a heuristic that early dimensions carry more identity signal, not
// a mapping of embedding indices to facial features.
var DefaultRegions = []Region{
	{From: 0, To: 0.25, Weight: 0.4},
	{From: 0.25, To: 0.5, Weight: 0.3},
	{From: 0.5, To: 0.75, Weight: 0.2},
	{From: 0.75, To: 1, Weight: 0.1},
}

// RegionWeighted scores each region with the baseline Euclidean curve and
// combines them by weight. Regions that are empty at the given length are skipped.
type RegionWeighted struct {
	Regions []Region
}

func (m RegionWeighted) regions() []Region {
	if len(m.Regions) == 0 {
		return DefaultRegions
	}
	return m.Regions
}

// Name implements Metric.
func (RegionWeighted) Name() string { return "region-weighted" }

// Distance returns the weighted mean of per-region L2 distances.
func (m RegionWeighted) Distance(a, b types.Descriptor) float64 {
	if !scorable(a, b) {
		return math.Inf(1)
	}
	fa, fb := a.Float64(), b.Float64()
	var sum, total float64
	for _, r := range m.regions() {
		lo, hi := bounds(r, len(fa))
		if lo >= hi || r.Weight <= 0 {
			continue
		}
		sum += r.Weight * euclidean64(fa[lo:hi], fb[lo:hi])
		total += r.Weight
	}
	if total == 0 {
		return math.Inf(1)
	}
	return sum / total
}

// Similarity implements Metric.
func (m RegionWeighted) Similarity(a, b types.Descriptor) float64 {
	if !scorable(a, b) {
		return 0
	}
	return m.similarity64(a.Float64(), b.Float64())
}

func (m RegionWeighted) similarity64(a, b []float64) float64 {
	var sum, total float64
	for _, r := range m.regions() {
		lo, hi := bounds(r, len(a))
		if lo >= hi || r.Weight <= 0 {
			continue
		}
		sum += r.Weight / (1 + euclidean64(a[lo:hi], b[lo:hi]))
		total += r.Weight
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

func bounds(r Region, n int) (int, int) {
	lo := int(math.Floor(clamp01(r.From) * float64(n)))
	hi := int(math.Floor(clamp01(r.To) * float64(n)))
	return lo, hi
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// Term is one weighted component of a Composite.
type Term struct {
	Metric Metric
	Weight float64
}

// Composite is a frozen linear blend of built-in metrics. Cosine terms are
// always taken in their [0,1] form. With ZScore both inputs are
// standardized before any term is computed.
type Composite struct {
	Terms  []Term
	ZScore bool
}

// FourWayComposite is the 0.35 cosine + 0.25 euclidean + 0.15 manhattan +
// 0.25 region-weighted blend over z-scored descriptors.
var FourWayComposite = Composite{
	Terms: []Term{
		{Metric: Cosine{Remap: true}, Weight: 0.35},
		{Metric: Euclidean{Exponent: 1}, Weight: 0.25},
		{Metric: Manhattan{}, Weight: 0.15},
		{Metric: RegionWeighted{}, Weight: 0.25},
	},
	ZScore: true,
}

// Name implements Metric.
func (Composite) Name() string { return "composite" }

// Distance returns 1 - Similarity, so it stays in [0,1].
func (m Composite) Distance(a, b types.Descriptor) float64 {
	return 1 - m.Similarity(a, b)
}

// Similarity implements Metric.
func (m Composite) Similarity(a, b types.Descriptor) float64 {
	if !scorable(a, b) {
		return 0
	}
	var fa, fb []float64
	if m.ZScore {
		fa, fb = ZScore(a), ZScore(b)
	} else {
		fa, fb = a.Float64(), b.Float64()
	}
	return m.similarity64(fa, fb)
}

func (m Composite) similarity64(a, b []float64) float64 {
	var sum, total float64
	for _, t := range m.Terms {
		if t.Weight <= 0 {
			continue
		}
		var k kernel
		switch mt := t.Metric.(type) {
		case Cosine:
			k = Cosine{Remap: true}
		case kernel:
			k = mt
		default:
			continue
		}
		sum += t.Weight * k.similarity64(a, b)
		total += t.Weight
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// AllMetrics lists every built-in metric with its default settings.
func AllMetrics() []Metric {
	return []Metric{
		Euclidean{Exponent: 1},
		Euclidean{Exponent: 1.5},
		Cosine{},
		Cosine{Remap: true},
		Manhattan{},
		RegionWeighted{},
		FourWayComposite,
	}
}
