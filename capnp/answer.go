package capnp

import "context"

// PipelineOp is one step of a promised-answer transform: so far this
// module only needs pointer-field projection (GetPointerField), matching
// the `noop | getPointerField(i)` transform vocabulary of the RPC
// protocol's PromisedAnswer.Op union.
type PipelineOp struct {
	Field uint16
}

// TransformPtr walks transform through p's struct pointer fields,
// returning the terminal pointer. A NULL intermediate pointer short-
// circuits to a NULL result, matching ordinary pointer-default semantics.
func TransformPtr(p Ptr, transform []PipelineOp) (Ptr, error) {
	cur := p
	for _, op := range transform {
		if !cur.IsValid() {
			return Ptr{}, nil
		}
		s := cur.Struct()
		if !s.IsValid() {
			return Ptr{}, nil
		}
		next, err := s.Ptr(int(op.Field))
		if err != nil {
			return Ptr{}, err
		}
		cur = next
	}
	return cur, nil
}

// Answer is the result of a (possibly still in-flight) method call:
// either a resolved struct, a resolved error, or a pending PipelineCaller
// that can be addressed before the call completes (promise pipelining).
type Answer interface {
	// Struct blocks until the answer resolves and returns its results, or
	// the error it resolved to.
	Struct() (Struct, error)
	// PipelineClient returns a Client addressing the capability found by
	// walking transform through the (possibly not-yet-resolved) results.
	PipelineClient(transform []PipelineOp) Client
}

type immediateAnswer struct{ s Struct }

// ImmediateAnswer wraps an already-resolved struct as an Answer.
func ImmediateAnswer(s Struct) Answer { return immediateAnswer{s: s} }

func (a immediateAnswer) Struct() (Struct, error) { return a.s, nil }

func (a immediateAnswer) PipelineClient(transform []PipelineOp) Client {
	p, err := TransformPtr(a.s.ToPtr(), transform)
	if err != nil {
		return ErrorClient(err)
	}
	if !p.IsValid() {
		return ErrorClient(ErrNullClient)
	}
	in := p.Interface()
	c := in.Client()
	if c == nil {
		return ErrorClient(ErrNullClient)
	}
	return c
}

type errorAnswer struct{ err error }

// ErrorAnswer wraps err as an already-failed Answer.
func ErrorAnswer(err error) Answer { return errorAnswer{err: err} }

func (a errorAnswer) Struct() (Struct, error)                    { return Struct{}, a.err }
func (a errorAnswer) PipelineClient(transform []PipelineOp) Client { return ErrorClient(a.err) }

// PipelineCaller lets a Client defer to an Answer's pipelining machinery:
// RecvCall on a pipeline client forwards through PipelineCall instead of
// dispatching immediately, so that calls made on a not-yet-resolved
// result still observe the eventual target's identity (and any ordering
// guarantees the peer provides).
type PipelineCaller interface {
	PipelineCall(ctx context.Context, transform []PipelineOp, cl *Call) Answer
	PipelineClose(transform []PipelineOp) error
}

// PromiseResolver is implemented by Answers whose resolution can be
// observed without blocking (currently only *fulfiller.Fulfiller),
// letting a Pipeline expose a Done channel to callers that need to know
// when a not-yet-resolved capability settles.
type PromiseResolver interface {
	Done() <-chan struct{}
}

// PromisePeeker is implemented by Answers that can report the Answer they
// resolved to without blocking, or nil if not yet resolved (currently only
// *fulfiller.Fulfiller).
type PromisePeeker interface {
	Peek() Answer
}

// errNotYetSettled is returned by Pipeline.Settled when the underlying
// answer hasn't resolved yet; callers are expected to check Done first.
var errNotYetSettled = errorString("capnp: pipeline not yet settled")

type errorString string

func (e errorString) Error() string { return string(e) }

// Pipeline adapts an Answer (or, for deeper transforms, a parent Pipeline)
// into a Client addressable before the underlying call resolves.
type Pipeline struct {
	answer    Answer
	transform []PipelineOp
}

var closedChan = func() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Done returns a channel closed once the pipeline's underlying answer
// resolves. An answer with no observable resolution (immediateAnswer,
// errorAnswer) is resolved by construction, so Done returns an
// already-closed channel for those.
func (p *Pipeline) Done() <-chan struct{} {
	if r, ok := p.answer.(PromiseResolver); ok {
		return r.Done()
	}
	return closedChan
}

// Settled returns the Client the pipeline's target resolves to, or the
// error it resolved to, without blocking. Callers should check Done first;
// calling Settled before the answer resolves returns errNotYetSettled.
func (p *Pipeline) Settled() (Client, error) {
	a := p.answer
	if peeker, ok := p.answer.(PromisePeeker); ok {
		resolved := peeker.Peek()
		if resolved == nil {
			return nil, errNotYetSettled
		}
		a = resolved
	}
	s, err := a.Struct()
	if err != nil {
		return nil, err
	}
	ptr, err := TransformPtr(s.ToPtr(), p.transform)
	if err != nil {
		return nil, err
	}
	if !ptr.IsValid() {
		return nil, ErrNullClient
	}
	cl := ptr.Interface().Client()
	if cl == nil {
		return nil, ErrNullClient
	}
	return cl, nil
}

// NewPipeline returns the root Pipeline for ans.
func NewPipeline(ans Answer) *Pipeline {
	return &Pipeline{answer: ans}
}

// GetPipeline returns the Pipeline reached by projecting field i from p.
func (p *Pipeline) GetPipeline(field uint16) *Pipeline {
	return p.GetPipelineFromOps([]PipelineOp{{Field: field}})
}

// GetPipelineFromOps returns the Pipeline reached by appending ops to p's
// existing transform.
func (p *Pipeline) GetPipelineFromOps(ops []PipelineOp) *Pipeline {
	t := make([]PipelineOp, len(p.transform)+len(ops))
	copy(t, p.transform)
	copy(t[len(p.transform):], ops)
	return &Pipeline{answer: p.answer, transform: t}
}

// Client returns a Client addressing this pipeline's target.
func (p *Pipeline) Client() Client {
	return pipelineClient{p: p}
}

// PromiseClient is implemented by Clients that are themselves a locally
// hosted, possibly-unresolved promise (currently only a Pipeline's
// Client()), letting a caller watch for resolution and retrieve the
// settled capability without issuing a call against it.
type PromiseClient interface {
	Client
	Done() <-chan struct{}
	Settled() (Client, error)
}

type pipelineClient struct{ p *Pipeline }

var _ PromiseClient = pipelineClient{}

func (c pipelineClient) Done() <-chan struct{}    { return c.p.Done() }
func (c pipelineClient) Settled() (Client, error) { return c.p.Settled() }

func (c pipelineClient) RecvCall(ctx context.Context, cl *Call) Answer {
	if pc, ok := c.p.answer.(PipelineCaller); ok {
		return pc.PipelineCall(ctx, c.p.transform, cl)
	}
	target := c.p.answer.PipelineClient(c.p.transform)
	if target == nil {
		return ErrorAnswer(ErrNullClient)
	}
	return target.RecvCall(ctx, cl)
}

func (c pipelineClient) AddRef() Client { return c }
func (c pipelineClient) Release() {
	if pc, ok := c.p.answer.(PipelineCaller); ok {
		pc.PipelineClose(c.p.transform)
	}
}
