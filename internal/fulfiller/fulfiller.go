// Package fulfiller provides a type that implements capnp.Answer and
// capnp.PipelineCaller by resolving via setter methods, buffering any
// calls pipelined against it in the meantime. This is the queuing half of
// promise pipelining: a caller gets back a Fulfiller-backed Answer the
// instant a call is sent, and can immediately address pipeline.GetPipeline
// results on it; those calls sit in Fulfiller's queue until Fulfill or
// Reject runs, at which point they replay against the real target.
package fulfiller

import (
	"context"
	"sync"

	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/internal/queue"
)

// callQueueSize bounds how many pipelined calls may buffer against one
// unresolved Fulfiller before further pipelining fails outright.
const callQueueSize = 64

type pcall struct {
	transform []capnp.PipelineOp
	call      *capnp.Call
	f         *Fulfiller
}

// Fulfiller is a promise for a Struct. The zero value is an unresolved
// answer; it is considered resolved once Fulfill or Reject is called.
// Calls made against it via PipelineCall queue up until then. Safe for
// concurrent use.
type Fulfiller struct {
	once     sync.Once
	resolved chan struct{}

	mu     sync.Mutex
	answer capnp.Answer
	queue  []pcall
}

func (f *Fulfiller) init() {
	f.once.Do(func() {
		f.resolved = make(chan struct{})
		f.queue = make([]pcall, 0, callQueueSize)
	})
}

// Fulfill resolves f to s, replaying any queued pipelined calls against
// the capabilities reachable from s. Panics if called more than once.
func (f *Fulfiller) Fulfill(s capnp.Struct) {
	f.init()
	f.mu.Lock()
	if f.answer != nil {
		f.mu.Unlock()
		panic("fulfiller: Fulfill called more than once")
	}
	f.answer = capnp.ImmediateAnswer(s)
	pending := f.queue
	f.queue = nil
	close(f.resolved)
	f.mu.Unlock()

	for _, pc := range pending {
		replay(s, pc)
	}
}

func replay(s capnp.Struct, pc pcall) {
	p, err := capnp.TransformPtr(s.ToPtr(), pc.transform)
	if err != nil {
		pc.f.Reject(err)
		return
	}
	if !p.IsValid() {
		pc.f.Reject(capnp.ErrNullClient)
		return
	}
	in := p.Interface()
	c := in.Client()
	if c == nil {
		pc.f.Reject(capnp.ErrNullClient)
		return
	}
	ans := c.RecvCall(pc.call.Ctx, pc.call)
	go func() {
		rs, err := ans.Struct()
		if err != nil {
			pc.f.Reject(err)
			return
		}
		pc.f.Fulfill(rs)
	}()
}

// Reject resolves f to err. Panics if called more than once or with a nil
// error.
func (f *Fulfiller) Reject(err error) {
	if err == nil {
		panic("fulfiller: Reject called with nil")
	}
	f.init()
	f.mu.Lock()
	if f.answer != nil {
		f.mu.Unlock()
		panic("fulfiller: Reject called more than once")
	}
	f.answer = capnp.ErrorAnswer(err)
	pending := f.queue
	f.queue = nil
	close(f.resolved)
	f.mu.Unlock()

	for _, pc := range pending {
		pc.f.Reject(err)
	}
}

// Done returns a channel closed once f is resolved.
func (f *Fulfiller) Done() <-chan struct{} {
	f.init()
	return f.resolved
}

// Peek returns f's resolved Answer, or nil if not yet resolved.
func (f *Fulfiller) Peek() capnp.Answer {
	f.init()
	f.mu.Lock()
	a := f.answer
	f.mu.Unlock()
	return a
}

// Struct blocks until f resolves.
func (f *Fulfiller) Struct() (capnp.Struct, error) {
	<-f.Done()
	return f.Peek().Struct()
}

// PipelineClient returns a Client addressing transform against f's
// eventual result, buffering calls until resolution.
func (f *Fulfiller) PipelineClient(transform []capnp.PipelineOp) capnp.Client {
	return capnp.NewPipeline(f).GetPipelineFromOps(transform).Client()
}

// PipelineCall implements capnp.PipelineCaller: it forwards immediately if
// f is already resolved, otherwise it queues cl for replay.
func (f *Fulfiller) PipelineCall(ctx context.Context, transform []capnp.PipelineOp, cl *capnp.Call) capnp.Answer {
	f.init()
	if a := f.Peek(); a != nil {
		if pc, ok := a.(capnp.PipelineCaller); ok {
			return pc.PipelineCall(ctx, transform, cl)
		}
		return forwardThroughAnswer(a, transform, cl)
	}

	f.mu.Lock()
	if f.answer != nil {
		a := f.answer
		f.mu.Unlock()
		return forwardThroughAnswer(a, transform, cl)
	}
	if len(f.queue) == cap(f.queue) {
		f.mu.Unlock()
		return capnp.ErrorAnswer(errQueueFull)
	}
	g := new(Fulfiller)
	f.queue = append(f.queue, pcall{transform: transform, call: cl, f: g})
	f.mu.Unlock()
	return g
}

func forwardThroughAnswer(a capnp.Answer, transform []capnp.PipelineOp, cl *capnp.Call) capnp.Answer {
	s, err := a.Struct()
	if err != nil {
		return capnp.ErrorAnswer(err)
	}
	p, err := capnp.TransformPtr(s.ToPtr(), transform)
	if err != nil || !p.IsValid() {
		return capnp.ErrorAnswer(capnp.ErrNullClient)
	}
	c := p.Interface().Client()
	if c == nil {
		return capnp.ErrorAnswer(capnp.ErrNullClient)
	}
	return c.RecvCall(cl.Ctx, cl)
}

// PipelineClose releases any resources tied to transform once f resolves;
// queued Fulfillers have nothing of their own to release.
func (f *Fulfiller) PipelineClose(transform []capnp.PipelineOp) error {
	<-f.Done()
	return nil
}

var errQueueFull = queueFullError{}

type queueFullError struct{}

func (queueFullError) Error() string { return "fulfiller: promised answer call queue full" }

var _ = queue.ErrQueueFull // retained import: no other package in this module uses internal/queue
