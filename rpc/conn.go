// Package rpc implements the Cap'n Proto Level-3 RPC protocol: promise
// pipelining, embargoes/disembargoes, and three-party hand-offs
// (provide/accept/join) on top of the segment-framed wire codec in
// capnp and the typed message views in rpc/rpccp.
package rpc

import (
	"context"
	"sync"

	uatomic "go.uber.org/atomic"

	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/rpc/rpccp"
	"github.com/vatkit/capnrpc/rpc/rpcstats"
)

var connCounter uatomic.Uint64

// Conn is a connection to another Cap'n Proto vat. It is safe to use from
// multiple goroutines.
type Conn struct {
	transport  Transport
	mainFunc   func(context.Context) (capnp.Client, error)
	mainCloser closer
	log        *connLog

	manager manager
	out     chan rpccp.Message

	id    uint64
	stats rpcstats.Counters

	// mu serializes sends (and anything that must observe a consistent
	// view of the tables while deciding what to send), matching the
	// teacher's chanMutex idiom: a receive locks, a send unlocks.
	mu chanMutex

	// tablesMu guards the four RPC tables below; it is independent from mu
	// so that a handler blocked mid-dispatch doesn't stall unrelated table
	// lookups (e.g. another goroutine releasing an export).
	tablesMu sync.Mutex

	questions  []*question
	questionID idgen
	exports    []*export
	exportID   idgen
	embargoes  []*embargo
	embargoID  idgen
	answers    map[answerID]*answer
	imports    map[importID]*impent

	// provides tracks in-flight Provide introductions by the question id
	// that initiated them; joins tracks in-flight Join parts by join id.
	provides map[questionID]*provideState
	joins    map[uint32]*joinState
}

// chanMutex is a mutex backed by a channel so it can be used in a select.
type chanMutex chan struct{}

func newChanMutex() chanMutex {
	mu := make(chanMutex, 1)
	mu <- struct{}{}
	return mu
}

func (mu chanMutex) Lock()   { <-mu }
func (mu chanMutex) Unlock() { mu <- struct{}{} }

// NewConn creates a new connection that communicates on t. Closing the
// connection closes t.
func NewConn(t Transport, options ...ConnOption) *Conn {
	p := &connParams{sendBufferSize: 4}
	for _, o := range options {
		o.f(p)
	}
	id := connCounter.Inc()
	c := &Conn{
		transport:  t,
		out:        make(chan rpccp.Message, p.sendBufferSize),
		mainFunc:   p.mainFunc,
		mainCloser: p.mainCloser,
		mu:         newChanMutex(),
		log:        newConnLog(id),
		id:         id,
	}
	c.manager.init()
	c.manager.do(c.dispatchRecv)
	c.manager.do(c.dispatchSend)
	c.manager.do(func() {
		<-c.manager.finish
		c.releaseAllExports()
		if c.mainCloser != nil {
			if err := c.mainCloser.Close(); err != nil {
				c.log.Errorf("closing main interface: %v", err)
			}
		}
		c.log.Finish()
	})
	return c
}

// Wait waits until the connection is closed or aborted by the remote vat.
// It always returns an error, usually ErrConnClosed or an Abort.
func (c *Conn) Wait() error {
	c.manager.wait()
	return c.manager.err()
}

// Close closes the connection, sending a final Abort to the peer.
func (c *Conn) Close() error {
	if !c.manager.shutdown(ErrConnClosed) {
		return ErrConnClosed
	}
	c.manager.wait()
	ctx := context.Background()
	n := c.newOutgoingMessage()
	ab, _ := n.NewAbort()
	reason, _ := ab.NewReason()
	toExceptionReason(reason, errShutdown)
	werr := c.transport.SendMessage(ctx, n)
	cerr := c.transport.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

// Bootstrap returns the receiver's main interface.
func (c *Conn) Bootstrap(ctx context.Context) capnp.Client {
	select {
	case <-c.mu:
		defer c.mu.Unlock()
	case <-ctx.Done():
		return capnp.ErrorClient(ctx.Err())
	case <-c.manager.finish:
		return capnp.ErrorClient(c.manager.err())
	}

	q := c.newQuestion(nil)
	msg := c.newOutgoingMessage()
	boot, _ := msg.NewBootstrap()
	boot.SetQuestionId(uint32(q.id))
	select {
	case c.out <- msg:
		// A bootstrap result is always a bare capability on the wire, not a
		// struct field within one; it's wrapped into a single-pointer
		// envelope struct (see wrapBareCapability) so the rest of the
		// Answer/Pipeline machinery can treat it uniformly, and unwrapped
		// here by projecting field 0.
		return capnp.NewPipeline(q).GetPipeline(0).Client()
	case <-ctx.Done():
		c.popQuestion(q.id)
		return capnp.ErrorClient(ctx.Err())
	case <-c.manager.finish:
		c.popQuestion(q.id)
		return capnp.ErrorClient(c.manager.err())
	}
}

func (c *Conn) dispatchSend() {
	for {
		select {
		case m := <-c.out:
			ctx := c.manager.context()
			if err := c.transport.SendMessage(ctx, m); err != nil {
				c.manager.shutdown(err)
				return
			}
		case <-c.manager.finish:
			return
		}
	}
}

func (c *Conn) dispatchRecv() {
	ctx := c.manager.context()
	for {
		m, err := c.transport.RecvMessage(ctx)
		if err != nil {
			c.manager.shutdown(err)
			return
		}
		c.handleMessage(m)
		select {
		case <-c.manager.finish:
			return
		default:
		}
	}
}

// newOutgoingMessage allocates a fresh single-segment message and its root
// rpccp.Message.
func (c *Conn) newOutgoingMessage() rpccp.Message {
	_, seg := capnp.NewSingleSegmentMessage(nil)
	m, err := rpccp.NewRootMessage(seg)
	if err != nil {
		panic(err)
	}
	return m
}

func (c *Conn) sendMessage(m rpccp.Message) error {
	select {
	case c.out <- m:
		return nil
	case <-c.manager.finish:
		return c.manager.err()
	}
}

func (c *Conn) sendRelease(id importID, refs uint32) {
	m := c.newOutgoingMessage()
	r, _ := m.NewRelease()
	r.SetId(uint32(id))
	r.SetReferenceCount(refs)
	c.sendMessage(m)
}

func (c *Conn) abort(err error) {
	c.stats.AbortsOut.Inc()
	m := c.newOutgoingMessage()
	a, _ := m.NewAbort()
	reason, _ := a.NewReason()
	toExceptionReason(reason, err)
	c.sendMessage(m)
	c.manager.shutdown(err)
}

func toExceptionReason(e rpccp.Exception, err error) { toException(e, err) }

func (c *Conn) newContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(c.manager.context())
}

// Stats snapshots the connection's table sizes and cumulative message
// counters, suitable for a /debug handler or a rpcstats.Collector.
func (c *Conn) Stats() rpcstats.PeerStats {
	c.tablesMu.Lock()
	t := rpcstats.TableSizes{
		Questions: len(c.questions),
		Answers:   len(c.answers),
		Exports:   len(c.exports),
		Imports:   len(c.imports),
		Embargoes: len(c.embargoes),
	}
	c.tablesMu.Unlock()
	return rpcstats.Snapshot(c.id, t, &c.stats)
}
