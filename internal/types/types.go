package types

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// IdentityKey is the opaque key an enrollment is stored under (e.g. an account email).
type IdentityKey string

// Descriptor is a fixed-length face embedding as emitted by the embedding model.
type Descriptor []float32

// DescriptorSet is the enrollment set of one identity, one descriptor per capture.
type DescriptorSet []Descriptor

// EnrolledIdentity is an identity together with the descriptors it owns.
type EnrolledIdentity struct {
	Key         IdentityKey
	Descriptors DescriptorSet
	UpdatedAt   time.Time
}

// ErrShape is returned when a payload is not a descriptor or a list of descriptors.
var ErrShape = errors.New("descriptor payload must be a numeric array or an array of numeric arrays")

// Clone returns a deep copy of d.
func (d Descriptor) Clone() Descriptor {
	if d == nil {
		return nil
	}
	out := make(Descriptor, len(d))
	copy(out, d)
	return out
}

// Float64 widens d for arithmetic.
func (d Descriptor) Float64() []float64 {
	out := make([]float64, len(d))
	for i, v := range d {
		out[i] = float64(v)
	}
	return out
}

// MarshalBinary encodes d as little-endian IEEE-754 float32, 4 bytes per element.
func (d Descriptor) MarshalBinary() ([]byte, error) {
	buf := make([]byte, len(d)*4)
	for i, v := range d {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf, nil
}

// UnmarshalBinary decodes the format written by MarshalBinary.
func (d *Descriptor) UnmarshalBinary(data []byte) error {
	if len(data)%4 != 0 {
		return fmt.Errorf("descriptor blob length %d is not a multiple of 4", len(data))
	}
	out := make(Descriptor, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	*d = out
	return nil
}

// Clone returns a deep copy of s.
func (s DescriptorSet) Clone() DescriptorSet {
	if s == nil {
		return nil
	}
	out := make(DescriptorSet, len(s))
	for i, d := range s {
		out[i] = d.Clone()
	}
	return out
}

// Clone returns a deep copy of e.
func (e EnrolledIdentity) Clone() EnrolledIdentity {
	return EnrolledIdentity{Key: e.Key, Descriptors: e.Descriptors.Clone(), UpdatedAt: e.UpdatedAt}
}

// Capture is what a client submits: either one descriptor or a set of them.
// Decoding resolves the shape once; afterwards callers only see Set.
type Capture struct {
	Set DescriptorSet
	// Single reports that the payload was a flat array.
	Single bool
}

// NewCapture wraps descriptors that are already typed.
func NewCapture(ds ...Descriptor) Capture {
	return Capture{Set: DescriptorSet(ds), Single: len(ds) == 1}
}

// First returns the first descriptor of the capture, or nil.
func (c Capture) First() Descriptor {
	if len(c.Set) == 0 {
		return nil
	}
	return c.Set[0]
}

// UnmarshalJSON accepts `[0.1, ...]` or `[[0.1, ...], [...]]`.
func (c *Capture) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ErrShape
	}
	if len(raw) == 0 {
		return ErrShape
	}

	var nested bool
	switch firstByte(raw[0]) {
	case '[':
		nested = true
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
	default:
		return ErrShape
	}

	if !nested {
		var d Descriptor
		if err := json.Unmarshal(data, &d); err != nil {
			return ErrShape
		}
		*c = Capture{Set: DescriptorSet{d}, Single: true}
		return nil
	}

	set := make(DescriptorSet, 0, len(raw))
	for _, r := range raw {
		if firstByte(r) != '[' {
			return ErrShape
		}
		var d Descriptor
		if err := json.Unmarshal(r, &d); err != nil {
			return ErrShape
		}
		set = append(set, d)
	}
	*c = Capture{Set: set}
	return nil
}

// MarshalJSON writes the original shape back.
func (c Capture) MarshalJSON() ([]byte, error) {
	if c.Single && len(c.Set) == 1 {
		return json.Marshal(c.Set[0])
	}
	return json.Marshal(c.Set)
}

func firstByte(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return c
	}
	return 0
}

// FaceResult is one face reported by the embedding worker.
type FaceResult struct {
	Box     [4]int     `json:"box"` // [top, right, bottom, left]
	Vec     Descriptor `json:"vec"`
	Quality float64    `json:"quality"`
}

// Area returns the pixel area of the face box.
func (f FaceResult) Area() int {
	h := f.Box[2] - f.Box[0]
	w := f.Box[1] - f.Box[3]
	if h < 0 || w < 0 {
		return 0
	}
	return h * w
}

// IdentitySummary describes an enrolled identity without its descriptors.
type IdentitySummary struct {
	Key        IdentityKey
	Samples    int
	Dimensions int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AttendanceRecord is one attendance event logged after a successful match.
type AttendanceRecord struct {
	Identity  IdentityKey
	AttemptID string
	Status    string
	Score     float64
	At        time.Time
}
