package vision

import (
	"context"
	"fmt"
	"log/slog"
)

// Pool holds a fixed set of engines. Acquire blocks until one is free, so
// no two sessions ever run inference on the same ONNX session.
type Pool[E interface{ Close() }] struct {
	free chan E
	all  []E
}

func NewPool[E interface{ Close() }](size int, build func() (E, error)) (*Pool[E], error) {
	if size < 1 {
		size = 1
	}
	p := &Pool[E]{free: make(chan E, size)}
	for i := 0; i < size; i++ {
		e, err := build()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("build engine %d: %w", i, err)
		}
		p.all = append(p.all, e)
		p.free <- e
	}
	slog.Info("vision engine pool ready", "size", size)
	return p, nil
}

// Acquire takes an engine out of the pool. The caller must Release it.
func (p *Pool[E]) Acquire(ctx context.Context) (E, error) {
	select {
	case e := <-p.free:
		return e, nil
	case <-ctx.Done():
		var zero E
		return zero, ctx.Err()
	}
}

func (p *Pool[E]) Release(e E) {
	p.free <- e
}

// Available reports how many engines are idle.
func (p *Pool[E]) Available() int {
	return len(p.free)
}

func (p *Pool[E]) Close() {
	for _, e := range p.all {
		e.Close()
	}
}
