package taskpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Handle tracks one submitted task.
type Handle struct {
	done chan struct{}
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}

// Done is closed when the task has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task finishes and returns its error, or until ctx
// ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAll blocks until every handle has finished and returns the first
// task error. A failed task does not cut the wait short.
func WaitAll(handles ...*Handle) error {
	var g errgroup.Group
	for _, h := range handles {
		g.Go(func() error {
			<-h.Done()
			return h.err
		})
	}
	return g.Wait()
}
