package biometric

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/andresmejia3/veriface/internal/types"
)

func TestStats(t *testing.T) {
	mean, sd := Stats(types.Descriptor{2, 4, 4, 4, 5, 5, 7, 9})
	if !approx(mean, 5) || !approx(sd, 2) {
		t.Errorf("mean=%v sd=%v, want 5, 2", mean, sd)
	}
	if m, s := Stats(nil); m != 0 || s != 0 {
		t.Errorf("empty stats = %v, %v", m, s)
	}
}

func TestZScoreAndNormalize(t *testing.T) {
	z := ZScore(types.Descriptor{2, 4, 4, 4, 5, 5, 7, 9})
	if !approx(z[0], -1.5) || !approx(z[7], 2) {
		t.Errorf("z = %v", z)
	}
	flat := ZScore(types.Descriptor{3, 3})
	if flat[0] != 3 || flat[1] != 3 {
		t.Errorf("constant input changed: %v", flat)
	}

	n := Normalize(types.Descriptor{3, 4})
	if !approx(n[0], 0.6) || !approx(n[1], 0.8) {
		t.Errorf("normalized = %v", n)
	}
	if zero := Normalize(types.Descriptor{0, 0}); zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}

func TestCheckShape(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		name string
		d    types.Descriptor
		dim  int
		ok   bool
	}{
		{"Valid any length", types.Descriptor{1, 2, 3}, 0, true},
		{"Valid exact length", types.Descriptor{1, 2, 3}, 3, true},
		{"Empty", nil, 0, false},
		{"Wrong length", types.Descriptor{1, 2}, 3, false},
		{"NaN element", types.Descriptor{1, nan}, 0, false},
		{"Inf element", types.Descriptor{float32(math.Inf(-1))}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkShape(tt.d, tt.dim)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && (err == nil || !errors.Is(err, ErrInvalidInput)) {
				t.Errorf("got %v, want INVALID_INPUT", err)
			}
		})
	}
}

func TestStorageRoundTripKeepsSimilarity(t *testing.T) {
	d := synth(30, 128, 0.2)

	blob, err := d.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var fromBlob types.Descriptor
	if err := fromBlob.UnmarshalBinary(blob); err != nil {
		t.Fatal(err)
	}

	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	var fromJSON types.Descriptor
	if err := json.Unmarshal(raw, &fromJSON); err != nil {
		t.Fatal(err)
	}

	for _, back := range []types.Descriptor{fromBlob, fromJSON} {
		if len(back) != len(d) {
			t.Fatalf("length %d, want %d", len(back), len(d))
		}
		for _, m := range AllMetrics() {
			if got := m.Similarity(d, back); math.Abs(got-1) > 1e-6 {
				t.Errorf("%s: similarity after round trip = %v", m.Name(), got)
			}
		}
	}
}
