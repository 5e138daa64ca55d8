package utils

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/andresmejia3/veriface/internal/biometric"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	old := Output
	Output = buf
	t.Cleanup(func() { Output = old })
	return buf
}

func TestShowErrorIncludesCode(t *testing.T) {
	buf := captureOutput(t)

	ShowError("Verification failed", biometric.ErrAmbiguousMatch, nil)

	out := buf.String()
	if !strings.Contains(out, "VERIFACE ERROR: Verification failed") {
		t.Errorf("Missing headline in %q", out)
	}
	if !strings.Contains(out, "CODE: AMBIGUOUS_MATCH") {
		t.Errorf("Missing code in %q", out)
	}
}

func TestShowErrorPlain(t *testing.T) {
	buf := captureOutput(t)

	ShowError("Failed to read file", errors.New("permission denied"), nil)

	out := buf.String()
	if strings.Contains(out, "CODE:") {
		t.Errorf("Unexpected code line in %q", out)
	}
	if !strings.Contains(out, "DETAILS: permission denied") {
		t.Errorf("Missing details in %q", out)
	}
}

func TestSafeCommandCapturesStderr(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	buf := captureOutput(t)

	cmd := NewSafeCommand(context.Background(), "sh", "-c", "echo 'Traceback: boom' >&2; exit 3")
	if err := cmd.Run(); err == nil {
		t.Fatal("Expected non-zero exit")
	}
	if !strings.Contains(cmd.Logs(), "Traceback: boom") {
		t.Errorf("Stderr not captured: %q", cmd.Logs())
	}

	ShowError("Worker crashed", errors.New("exit status 3"), cmd)
	if !strings.Contains(buf.String(), "PYTHON CRASH LOGS:\nTraceback: boom") {
		t.Errorf("Crash logs not dumped: %q", buf.String())
	}
}

func TestNilSafeCommandLogs(t *testing.T) {
	var s *SafeCommand
	if s.Logs() != "" {
		t.Error("Expected empty logs for nil command")
	}
}
