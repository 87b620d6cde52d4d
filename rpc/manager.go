package rpc

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// manager supervises the goroutines backing one Conn (the send loop, the
// receive loop, and the teardown routine) and gives every caller a single
// place to learn the connection's terminal error. It is grounded on the
// errgroup.Group pattern: one cancelable context shared by every worker,
// the first non-nil error wins, and Wait blocks until all workers exit.
type manager struct {
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	finish chan struct{}

	once    sync.Once
	mu      sync.Mutex
	failure error
}

func (m *manager) init() {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	m.group = g
	m.ctx = gctx
	m.cancel = cancel
	m.finish = make(chan struct{})
}

// do runs f as one of the manager's supervised goroutines.
func (m *manager) do(f func()) {
	m.group.Go(func() error {
		f()
		return nil
	})
}

// context returns the context workers should use for anything that should
// be canceled when the connection shuts down.
func (m *manager) context() context.Context { return m.ctx }

// shutdown records err (if the manager hasn't already recorded a failure)
// and cancels every worker's context. It returns false if shutdown had
// already been initiated by another caller.
func (m *manager) shutdown(err error) bool {
	first := false
	m.once.Do(func() {
		first = true
		m.mu.Lock()
		m.failure = err
		m.mu.Unlock()
		m.cancel()
		close(m.finish)
	})
	return first
}

// wait blocks until every supervised goroutine has returned.
func (m *manager) wait() {
	m.group.Wait()
}

// err returns the error passed to the shutdown call that actually fired,
// or nil if shutdown was never called.
func (m *manager) err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure
}
