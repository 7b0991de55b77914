package chat

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Completer continues a fully assembled prompt. *inference.Client is the
// production implementation.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

var ErrBusy = errors.New("too many pending requests")

// Gate bounds inference calls: at most concurrent run at once and at most
// queue callers wait for a slot. Callers beyond that are turned away.
type Gate struct {
	sem      *semaphore.Weighted
	maxQueue int64
	waiting  atomic.Int64
}

func NewGate(concurrent, queue int) *Gate {
	return &Gate{sem: semaphore.NewWeighted(int64(concurrent)), maxQueue: int64(queue)}
}

// Acquire blocks until a slot is free, ctx is done, or fails at once with
// ErrBusy when the wait queue is full. release must be called exactly once.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	release = func() { g.sem.Release(1) }
	if g.sem.TryAcquire(1) {
		return release, nil
	}
	if g.waiting.Add(1) > g.maxQueue {
		g.waiting.Add(-1)
		return nil, ErrBusy
	}
	defer g.waiting.Add(-1)
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return release, nil
}

// Waiting reports how many callers are queued.
func (g *Gate) Waiting() int { return int(g.waiting.Load()) }
