package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/andresmejia3/veriface/internal/types"
	"github.com/andresmejia3/veriface/internal/utils"
)

// Embedder is anything that can turn one image into one descriptor.
type Embedder interface {
	Embed(ctx context.Context, image []byte) (types.Descriptor, error)
}

// Pool spreads Embed calls over several worker processes.
// A worker that breaks is replaced on its next use.
type Pool struct {
	idle  chan *PythonWorker
	spawn func(ctx context.Context, id int) (*PythonWorker, error)
	size  int

	mu      sync.Mutex
	crashed *utils.SafeCommand
}

// NewPool starts n workers with cfg.
func NewPool(ctx context.Context, n int, cfg Config) (*Pool, error) {
	return newPool(ctx, n, func(ctx context.Context, id int) (*PythonWorker, error) {
		return NewPythonWorker(ctx, id, cfg)
	})
}

func newPool(ctx context.Context, n int, spawn func(context.Context, int) (*PythonWorker, error)) (*Pool, error) {
	if n <= 0 {
		n = 1
	}
	p := &Pool{idle: make(chan *PythonWorker, n), spawn: spawn, size: n}
	for i := range n {
		w, err := spawn(ctx, i)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("start worker %d: %w", i, err)
		}
		p.idle <- w
	}
	return p, nil
}

// Size is the number of worker processes.
func (p *Pool) Size() int { return p.size }

// Embed waits for an idle worker and runs the request on it.
func (p *Pool) Embed(ctx context.Context, image []byte) (types.Descriptor, error) {
	var w *PythonWorker
	select {
	case w = <-p.idle:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	vec, err := w.Embed(ctx, image)
	if w.isBroken() {
		w.Close()
		p.mu.Lock()
		p.crashed = w.Cmd
		p.mu.Unlock()
		if nw, spawnErr := p.spawn(context.WithoutCancel(ctx), w.ID); spawnErr == nil {
			w = nw
		} else {
			err = errors.Join(err, fmt.Errorf("respawn worker %d: %w", w.ID, spawnErr))
		}
	}
	p.idle <- w
	return vec, err
}

// Crashed returns the command of the most recently broken worker, or nil.
// Its Logs hold whatever the process wrote to stderr before it died.
func (p *Pool) Crashed() *utils.SafeCommand {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.crashed
}

// Close stops every idle worker.
func (p *Pool) Close() {
	for {
		select {
		case w := <-p.idle:
			w.Close()
		default:
			return
		}
	}
}

func (w *PythonWorker) isBroken() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.broken
}
