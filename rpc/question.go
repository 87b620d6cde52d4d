package rpc

import (
	"sync"

	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/internal/fulfiller"
)

type questionState int

const (
	questionInProgress questionState = iota
	questionResolved
	questionCanceled
)

// question is the caller side of one outstanding Call: it is handed back
// to the application as a capnp.Answer (via its embedded Fulfiller) the
// instant the Call frame is queued, and resolves once the matching Return
// arrives.
type question struct {
	*fulfiller.Fulfiller

	id     questionID
	method *capnp.Method

	// paramCaps holds the export ids this question's own Call message
	// exported, so they can be released if the peer reports
	// releaseParamCaps on its Return.
	paramCaps []exportID

	mu    sync.RWMutex
	state questionState
}

func (c *Conn) newQuestion(method *capnp.Method) *question {
	q := &question{
		Fulfiller: new(fulfiller.Fulfiller),
		method:    method,
	}
	c.tablesMu.Lock()
	q.id = questionID(c.questionID.next())
	if int(q.id) == len(c.questions) {
		c.questions = append(c.questions, q)
	} else {
		c.questions[q.id] = q
	}
	c.tablesMu.Unlock()
	return q
}

// popQuestion removes id from the connection's question table and returns
// it, or nil if no such question is outstanding (already answered, or
// never existed).
func (c *Conn) popQuestion(id questionID) *question {
	c.tablesMu.Lock()
	defer c.tablesMu.Unlock()
	if int(id) >= len(c.questions) {
		return nil
	}
	q := c.questions[id]
	c.questions[id] = nil
	c.questionID.release(uint32(id))
	return q
}

// cancel marks q canceled; a later Return for q is treated as a no-op
// rather than a double-resolve.
func (q *question) cancel(err error) {
	q.mu.Lock()
	if q.state == questionInProgress {
		q.state = questionCanceled
	}
	q.mu.Unlock()
	q.Reject(err)
}

func (q *question) markResolved() {
	q.mu.Lock()
	q.state = questionResolved
	q.mu.Unlock()
}

func (q *question) currentState() questionState {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.state
}
