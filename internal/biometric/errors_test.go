package biometric

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorKindsAreDistinguishable(t *testing.T) {
	err := fmt.Errorf("verify: %w", newError(CodeNoMatch, "best score %.2f", 0.4))

	if !errors.Is(err, ErrNoMatch) {
		t.Error("wrapped error should match ErrNoMatch")
	}
	if errors.Is(err, ErrAmbiguousMatch) {
		t.Error("NoMatch must not match ErrAmbiguousMatch")
	}
	if got := CodeOf(err); got != CodeNoMatch {
		t.Errorf("CodeOf = %q", got)
	}
	if got := CodeOf(io.EOF); got != "" {
		t.Errorf("CodeOf(io.EOF) = %q", got)
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{ErrNoEnrollments, "NO_ENROLLMENTS"},
		{InvalidInput("descriptor is empty"), "[INVALID_INPUT] descriptor is empty"},
		{Unavailable("load catalog", io.ErrUnexpectedEOF), "[DEPENDENCY_UNAVAILABLE] load catalog: unexpected EOF"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}

func TestUnavailableUnwraps(t *testing.T) {
	err := Unavailable("store", io.ErrClosedPipe)
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Error("cause not reachable through Unwrap")
	}
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Error("kind not matched")
	}
}

func TestWithContext(t *testing.T) {
	e := newError(CodeSamplesTooSimilar, "pair").With("similarity", 0.99)
	if e.Context["similarity"] != 0.99 {
		t.Errorf("context = %v", e.Context)
	}
}
