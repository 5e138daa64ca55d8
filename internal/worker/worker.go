package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/veriface/internal/types"
	"github.com/andresmejia3/veriface/internal/utils" // Using the SafeCommand wrapper
)

// ErrNoFace is returned by Embed when the image contains no detectable face.
var ErrNoFace = errors.New("no face detected in image")

// ErrClosed is returned when the worker process is gone.
var ErrClosed = errors.New("worker is closed")

// maxResponse bounds a single reply so a corrupt header cannot allocate gigabytes.
const maxResponse = 64 << 20

// Config describes how to launch the embedding process.
type Config struct {
	PythonBin string
	Script    string
	// DetectionThreshold is forwarded to the detector as its confidence cutoff.
	DetectionThreshold float64
	// ReadTimeout bounds one request/response round trip. 0 disables it.
	ReadTimeout time.Duration
	// MaxImageSize caps the longer side of an image before it is sent. 0 disables it.
	MaxImageSize int
}

// DefaultConfig runs python/embed.py with python3.
func DefaultConfig() Config {
	return Config{
		PythonBin:          "python3",
		Script:             "python/embed.py",
		DetectionThreshold: 0.5,
		ReadTimeout:        60 * time.Second,
		MaxImageSize:       1600,
	}
}

// PythonWorker talks to one long-lived embedding process.
//
// Request:  [uint32 len][image bytes] on stdin.
// Response: [uint32 len][payload] on FD 3, payload is
//
//	[0][uint32 faces] then per face [4]int32 box, uint32 dim, dim×float32, float32 quality
//	[1][uint32 msglen][msg]
//
// All integers and floats are big-endian.
type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	timeout  time.Duration
	maxImage int
	mu       sync.Mutex
	broken   bool
}

// NewPythonWorker starts the embedding process.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	py := utils.NewSafeCommand(ctx, cfg.PythonBin, "-u", cfg.Script,
		"--detection-threshold", fmt.Sprintf("%g", cfg.DetectionThreshold))

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		timeout:  cfg.ReadTimeout,
		maxImage: cfg.MaxImageSize,
	}, nil
}

// Communicate sends one framed request and reads one framed reply.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, fmt.Errorf("worker response of %d bytes exceeds limit", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessImage returns every face the worker found in the image.
func (w *PythonWorker) ProcessImage(ctx context.Context, image []byte) ([]types.FaceResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken {
		return nil, ErrClosed
	}

	type reply struct {
		body []byte
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		body, err := w.Communicate(image)
		done <- reply{body, err}
	}()

	var timeout <-chan time.Time
	if w.timeout > 0 {
		t := time.NewTimer(w.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case r := <-done:
		if r.err != nil {
			w.broken = true
			return nil, fmt.Errorf("worker %d: %w", w.ID, r.err)
		}
		return decodeFaces(r.body)
	case <-ctx.Done():
		w.kill()
		return nil, ctx.Err()
	case <-timeout:
		w.kill()
		return nil, fmt.Errorf("worker %d timed out after %s", w.ID, w.timeout)
	}
}

// Embed returns the descriptor of the largest face in the image.
func (w *PythonWorker) Embed(ctx context.Context, image []byte) (types.Descriptor, error) {
	image, err := PrepareImage(image, w.maxImage)
	if err != nil {
		return nil, err
	}
	faces, err := w.ProcessImage(ctx, image)
	if err != nil {
		return nil, err
	}
	best, ok := Largest(faces)
	if !ok {
		return nil, ErrNoFace
	}
	return best.Vec, nil
}

// Largest picks the face with the biggest box.
func Largest(faces []types.FaceResult) (types.FaceResult, bool) {
	if len(faces) == 0 {
		return types.FaceResult{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Area() > best.Area() {
			best = f
		}
	}
	return best, true
}

func decodeFaces(body []byte) ([]types.FaceResult, error) {
	r := bytes.NewReader(body)
	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty worker response")
	}

	if status != 0 {
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("truncated worker error: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("truncated worker error: %w", err)
		}
		return nil, fmt.Errorf("python worker error: %s", msg)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("read face count: %w", err)
	}

	faces := make([]types.FaceResult, 0, count)
	for i := uint32(0); i < count; i++ {
		var box [4]int32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("read face %d box: %w", i, err)
		}
		var dim uint32
		if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
			return nil, fmt.Errorf("read face %d dim: %w", i, err)
		}
		if int(dim)*4 > r.Len() {
			return nil, fmt.Errorf("face %d claims %d dimensions, only %d bytes left", i, dim, r.Len())
		}
		vec := make(types.Descriptor, dim)
		if err := binary.Read(r, binary.BigEndian, vec); err != nil {
			return nil, fmt.Errorf("read face %d vector: %w", i, err)
		}
		var quality float32
		if err := binary.Read(r, binary.BigEndian, &quality); err != nil {
			return nil, fmt.Errorf("read face %d quality: %w", i, err)
		}
		faces = append(faces, types.FaceResult{
			Box:     [4]int{int(box[0]), int(box[1]), int(box[2]), int(box[3])},
			Vec:     vec,
			Quality: float64(quality),
		})
	}
	return faces, nil
}

// kill terminates the process after a timeout. The pipe state is unknown
// afterwards, so the worker is unusable.
func (w *PythonWorker) kill() {
	w.broken = true
	if w.Cmd != nil && w.Cmd.Process != nil {
		w.Cmd.Process.Kill()
	}
	w.DataPipe.Close()
}

// Close shuts the worker down and waits for the process to exit.
func (w *PythonWorker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.broken = true
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil || w.Cmd.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}
