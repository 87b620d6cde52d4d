// Package refcount provides a Client wrapper that only releases its
// underlying capability once every issued reference has been released,
// used to let a single long-lived capability (a connection's bootstrap
// interface, say) be handed out to many callers without any one of them
// being able to tear it down early.
package refcount

import (
	"context"
	"sync"

	"github.com/vatkit/capnrpc/capnp"
)

type shared struct {
	mu    sync.Mutex
	n     int
	inner capnp.Client
}

func (s *shared) release() {
	s.mu.Lock()
	s.n--
	n := s.n
	s.mu.Unlock()
	if n == 0 {
		s.inner.Release()
	}
}

// RefCount mints new references onto a single underlying Client.
type RefCount struct {
	s *shared
}

// New wraps c behind a refcount and returns the RefCount (for minting
// further references via Ref) along with the first reference.
func New(c capnp.Client) (*RefCount, capnp.Client) {
	s := &shared{n: 1, inner: c}
	return &RefCount{s: s}, &ref{s: s}
}

// Ref mints a new reference onto the same underlying client.
func (rc *RefCount) Ref() capnp.Client {
	rc.s.mu.Lock()
	rc.s.n++
	rc.s.mu.Unlock()
	return &ref{s: rc.s}
}

// ref is one issued handle onto a shared underlying Client.
type ref struct {
	s        *shared
	mu       sync.Mutex
	released bool
}

func (r *ref) RecvCall(ctx context.Context, cl *capnp.Call) capnp.Answer {
	return r.s.inner.RecvCall(ctx, cl)
}

func (r *ref) AddRef() capnp.Client {
	r.s.mu.Lock()
	r.s.n++
	r.s.mu.Unlock()
	return &ref{s: r.s}
}

func (r *ref) Release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	r.mu.Unlock()
	r.s.release()
}
