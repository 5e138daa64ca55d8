package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/veriface/internal/types"
	"github.com/andresmejia3/veriface/internal/utils"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

type fakeFace struct {
	box     [4]int32
	vec     []float32
	quality float32
}

// frame builds a framed OK response as the Python side would write it.
func frame(faces ...fakeFace) []byte {
	payload := new(bytes.Buffer)
	payload.WriteByte(0) // Status OK
	binary.Write(payload, binary.BigEndian, uint32(len(faces)))
	for _, f := range faces {
		binary.Write(payload, binary.BigEndian, f.box)
		binary.Write(payload, binary.BigEndian, uint32(len(f.vec)))
		binary.Write(payload, binary.BigEndian, f.vec)
		binary.Write(payload, binary.BigEndian, f.quality)
	}
	return withLength(payload.Bytes())
}

func errorFrame(msg string) []byte {
	payload := new(bytes.Buffer)
	payload.WriteByte(1) // Status ERROR
	binary.Write(payload, binary.BigEndian, uint32(len(msg)))
	payload.WriteString(msg)
	return withLength(payload.Bytes())
}

func withLength(body []byte) []byte {
	out := new(bytes.Buffer)
	binary.Write(out, binary.BigEndian, uint32(len(body)))
	out.Write(body)
	return out.Bytes()
}

func mockWorker(responses ...[]byte) (*PythonWorker, *MockCloser) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}
	for _, r := range responses {
		dataPipeMock.Write(r)
	}
	// Cmd is nil because we aren't testing process management, just the protocol
	return &PythonWorker{ID: 1, Stdin: stdinMock, DataPipe: dataPipeMock}, stdinMock
}

func TestProcessImage(t *testing.T) {
	vec := make([]float32, 128)
	vec[0] = 0.5
	w, stdin := mockWorker(frame(fakeFace{box: [4]int32{10, 30, 20, 10}, vec: vec, quality: 0.99}))

	inputImage := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	faces, err := w.ProcessImage(context.Background(), inputImage)
	if err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}

	// Verify Go sent the correct data TO Python
	sent := stdin.Bytes()
	if len(sent) != 4+len(inputImage) || binary.BigEndian.Uint32(sent) != 4 {
		t.Errorf("Unexpected request framing: %X", sent)
	}

	if len(faces) != 1 {
		t.Fatalf("Expected 1 face, got %d", len(faces))
	}
	if len(faces[0].Vec) != 128 || faces[0].Vec[0] != 0.5 {
		t.Errorf("Vector not decoded exactly: len %d, [0]=%v", len(faces[0].Vec), faces[0].Vec[0])
	}
	if faces[0].Box != [4]int{10, 30, 20, 10} || faces[0].Area() != 200 {
		t.Errorf("Unexpected box %v", faces[0].Box)
	}
}

func TestEmbedPicksLargestFace(t *testing.T) {
	small := fakeFace{box: [4]int32{0, 10, 10, 0}, vec: []float32{1, 1}, quality: 0.9}
	large := fakeFace{box: [4]int32{0, 50, 50, 0}, vec: []float32{2, 2}, quality: 0.5}
	w, _ := mockWorker(frame(small, large, small))

	vec, err := w.Embed(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if vec[0] != 2 {
		t.Errorf("Expected largest face vector, got %v", vec)
	}
}

func TestEmbedNoFace(t *testing.T) {
	w, _ := mockWorker(frame())
	if _, err := w.Embed(context.Background(), []byte("img")); !errors.Is(err, ErrNoFace) {
		t.Errorf("Expected ErrNoFace, got %v", err)
	}
}

func TestProcessImage_Error(t *testing.T) {
	errMsg := "Python Exception: Import Error"
	w, _ := mockWorker(errorFrame(errMsg))

	_, err := w.ProcessImage(context.Background(), []byte("frame"))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "python worker error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "python worker error: "+errMsg, err)
	}
}

func TestProcessImage_Corrupt(t *testing.T) {
	payload := new(bytes.Buffer)
	payload.WriteByte(0)
	binary.Write(payload, binary.BigEndian, uint32(1))
	binary.Write(payload, binary.BigEndian, [4]int32{})
	binary.Write(payload, binary.BigEndian, uint32(1<<20)) // claims a huge vector
	w, _ := mockWorker(withLength(payload.Bytes()))

	_, err := w.ProcessImage(context.Background(), []byte("frame"))
	if err == nil || !strings.Contains(err.Error(), "dimensions") {
		t.Errorf("Expected dimension error, got %v", err)
	}
}

func TestProcessImage_CrashMarksBroken(t *testing.T) {
	w, _ := mockWorker() // nothing to read: EOF
	if _, err := w.ProcessImage(context.Background(), []byte("frame")); !errors.Is(err, io.EOF) {
		t.Fatalf("Expected EOF, got %v", err)
	}
	if _, err := w.ProcessImage(context.Background(), []byte("frame")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed on reuse, got %v", err)
	}
}

func TestProcessImage_Timeout(t *testing.T) {
	r, pw := io.Pipe()
	defer pw.Close()
	w := &PythonWorker{
		ID:       2,
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: r, // never answers
		timeout:  50 * time.Millisecond,
	}

	start := time.Now()
	_, err := w.ProcessImage(context.Background(), []byte("frame"))
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("Expected timeout, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Timeout did not fire promptly")
	}
	if !w.isBroken() {
		t.Error("Worker should be unusable after a timeout")
	}
}

func TestProcessImage_ContextCancel(t *testing.T) {
	r, pw := io.Pipe()
	defer pw.Close()
	w := &PythonWorker{ID: 3, Stdin: &MockCloser{Buffer: new(bytes.Buffer)}, DataPipe: r}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := w.ProcessImage(ctx, []byte("frame")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestLargest(t *testing.T) {
	if _, ok := Largest(nil); ok {
		t.Error("Expected no face from empty slice")
	}
	faces := []types.FaceResult{
		{Box: [4]int{0, 5, 5, 0}},
		{Box: [4]int{0, 9, 9, 0}},
	}
	if f, _ := Largest(faces); f.Box[1] != 9 {
		t.Errorf("Picked %v", f.Box)
	}
}

func TestPoolRespawnsBrokenWorker(t *testing.T) {
	spawned := 0
	spawn := func(ctx context.Context, id int) (*PythonWorker, error) {
		spawned++
		if spawned == 1 {
			w, _ := mockWorker() // first process dies on the first request
			w.ID = id
			w.Cmd = &utils.SafeCommand{Stderr: bytes.NewBufferString("ModuleNotFoundError: No module named 'face_recognition'")}
			return w, nil
		}
		w, _ := mockWorker(frame(fakeFace{box: [4]int32{0, 1, 1, 0}, vec: []float32{7}}))
		w.ID = id
		return w, nil
	}

	p, err := newPool(context.Background(), 1, spawn)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if p.Crashed() != nil {
		t.Error("Expected no crashed worker before the first request")
	}
	if _, err := p.Embed(context.Background(), []byte("a")); err == nil {
		t.Fatal("Expected first request to fail")
	}
	if logs := p.Crashed().Logs(); !strings.Contains(logs, "ModuleNotFoundError") {
		t.Errorf("Crash logs not kept: %q", logs)
	}
	vec, err := p.Embed(context.Background(), []byte("b"))
	if err != nil {
		t.Fatalf("Expected respawned worker to succeed: %v", err)
	}
	if vec[0] != 7 || spawned != 2 {
		t.Errorf("vec=%v spawned=%d", vec, spawned)
	}
}

func TestPoolWaitsForIdleWorker(t *testing.T) {
	p := &Pool{idle: make(chan *PythonWorker), size: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Embed(ctx, []byte("a")); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
