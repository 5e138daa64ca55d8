package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/andresmejia3/veriface/internal/biometric"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (Python logs)
// This ensures we don't lose critical crash information if a worker dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe.
// The process is killed when ctx is cancelled. It does not start the command.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// Logs returns whatever the process wrote to stderr so far.
func (s *SafeCommand) Logs() string {
	if s == nil || s.Stderr == nil {
		return ""
	}
	return s.Stderr.String()
}

// --- 2. CLI Error Reporting ---

// Output is where error boxes are written.
var Output io.Writer = os.Stderr

// ShowError prints a formatted error box and dumps Python logs if a SafeCommand is provided.
// Biometric decisions are labelled with their code so callers can tell
// "does not match" from "system is broken".
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(Output, "\n---------------------------------------------------------\n")
	fmt.Fprintf(Output, "🚨 VERIFACE ERROR: %s\n", context)
	if err != nil {
		var be *biometric.Error
		if errors.As(err, &be) {
			fmt.Fprintf(Output, "CODE: %s\n", be.Code)
		}
		fmt.Fprintf(Output, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if logs := s.Logs(); logs != "" {
		fmt.Fprintf(Output, "\nPYTHON CRASH LOGS:\n%s\n", logs)
	}
	fmt.Fprintf(Output, "---------------------------------------------------------\n")
}

// Die is the unified exit strategy for fatal CLI errors.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}
