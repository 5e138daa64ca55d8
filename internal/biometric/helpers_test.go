package biometric

import (
	"math"
	"math/rand/v2"

	"github.com/andresmejia3/veriface/internal/types"
)

const epsilon = 1e-9

func approx(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

// synth builds a deterministic face-like descriptor: zero mean, stddev ~sd.
func synth(seed uint64, dim int, sd float64) types.Descriptor {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	d := make(types.Descriptor, dim)
	for i := range d {
		d[i] = float32(r.NormFloat64() * sd)
	}
	return d
}

// jitter returns a copy of d with gaussian noise added, simulating another
// capture of the same face.
func jitter(d types.Descriptor, seed uint64, sd float64) types.Descriptor {
	noise := synth(seed, len(d), sd)
	out := make(types.Descriptor, len(d))
	for i := range d {
		out[i] = d[i] + noise[i]
	}
	return out
}

// person returns n distinct captures of one synthetic face.
func person(seed uint64, n int) (types.Descriptor, types.DescriptorSet) {
	base := synth(seed, 128, 0.2)
	set := make(types.DescriptorSet, n)
	for i := range set {
		set[i] = jitter(base, seed*1000+uint64(i)+1, 0.02)
	}
	return base, set
}
