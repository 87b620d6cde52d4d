package rpc

import (
	"fmt"

	"github.com/vatkit/capnrpc/capnp"
	"github.com/vatkit/capnrpc/rpc/rpccp"
	"github.com/vatkit/capnrpc/rpc/rpcerr"
)

// ErrConnClosed is returned by Conn methods called after Close.
var ErrConnClosed = fmt.Errorf("rpc: connection closed")

var (
	errShutdown                = fmt.Errorf("rpc: connection closing")
	errNoMainInterface          = rpcerr.Failedf("rpc: no main interface")
	errQuestionReused           = rpcerr.Violationf("rpc: question/answer id reused while still live")
	errUnimplemented            = fmt.Errorf("rpc: peer does not implement received message")
	errBadTarget                = rpcerr.Failedf("rpc: invalid call target")
	errDisembargoNonImport      = rpcerr.Violationf("rpc: disembargo sender-loopback target is not a promised answer or imported capability")
	errDisembargoMissingAnswer  = rpcerr.Violationf("rpc: disembargo targets unknown answer")
	errDisembargoCapMismatch    = rpcerr.Violationf("rpc: disembargo target capability did not resolve locally")
)

// bootstrapError wraps a failed bootstrap request so the caller can tell
// it apart from an application-level method error.
type bootstrapError struct{ error }

// questionError decorates err with the question id and method (if any)
// that produced it, matching the style of capnp.MethodError for answers
// that failed for reasons outside the call itself (e.g. "receiver
// reported canceled").
type questionError struct {
	id     questionID
	method *capnp.Method
	err    error
}

func (qe *questionError) Error() string {
	if qe.method != nil {
		return fmt.Sprintf("rpc: question %d (%v): %v", qe.id, qe.method, qe.err)
	}
	return fmt.Sprintf("rpc: question %d: %v", qe.id, qe.err)
}

func (qe *questionError) Unwrap() error { return qe.err }

// Exception adapts an rpccp.Exception struct (read off the wire) into a Go
// error, so callers can treat it like any other error value.
type Exception struct{ rpccp.Exception }

func (e Exception) Error() string {
	reason, err := e.Reason()
	if err != nil {
		return "rpc: exception (unreadable reason)"
	}
	return reason
}

// toException fills an outgoing rpccp.Exception from a Go error, mapping
// to the most specific ExceptionType it can and otherwise defaulting to
// Failed.
func toException(e rpccp.Exception, err error) {
	switch v := err.(type) {
	case *rpcerr.Failed:
		e.SetType(toWireType(v.Type))
		e.SetReason(v.Reason)
	case *rpcerr.Violation:
		e.SetType(rpccp.ExceptionType_failed)
		e.SetReason(v.Reason)
	case *rpcerr.Disconnected:
		e.SetType(rpccp.ExceptionType_disconnected)
		e.SetReason(v.Reason)
	case *rpcerr.FrameTooLarge, *rpcerr.OutgoingQueueLimitExceeded:
		e.SetType(rpccp.ExceptionType_overloaded)
		e.SetReason(err.Error())
	default:
		e.SetType(rpccp.ExceptionType_failed)
		if err != nil {
			e.SetReason(err.Error())
		} else {
			e.SetReason("unknown error")
		}
	}
}

func toWireType(t rpcerr.Type) rpccp.ExceptionType {
	switch t {
	case rpcerr.TypeOverloaded:
		return rpccp.ExceptionType_overloaded
	case rpcerr.TypeDisconnected:
		return rpccp.ExceptionType_disconnected
	case rpcerr.TypeUnimplemented:
		return rpccp.ExceptionType_unimplemented
	default:
		return rpccp.ExceptionType_failed
	}
}
