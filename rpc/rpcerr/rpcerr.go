// Package rpcerr classifies the failures a peer can produce into the three
// kinds the protocol treats differently: a Violation aborts the connection
// outright, a Failed result completes one question with Return.exception,
// and Disconnected marks a peer/transport that is already gone. Reason
// strings for the capability-state-error family are fixed verbatim so
// other implementations (and the tests) can match on them.
package rpcerr

import "fmt"

// Type is the exception category carried on the wire (rpccp.ExceptionType),
// mirrored here so callers constructing a Failed/Violation don't need to
// import rpccp directly.
type Type int

const (
	TypeFailed Type = iota
	TypeOverloaded
	TypeDisconnected
	TypeUnimplemented
)

// Violation is a protocol-level error: the peer sent something the state
// machine cannot make sense of (malformed pointer, unknown tag, duplicate
// question id, missing call target, ...). Receiving one means the
// connection sends Abort(reason) and tears down.
type Violation struct {
	Reason string
}

func (v *Violation) Error() string { return "rpc protocol violation: " + v.Reason }

// Violationf builds a Violation with a formatted reason.
func Violationf(format string, args ...interface{}) *Violation {
	return &Violation{Reason: fmt.Sprintf(format, args...)}
}

// Failed is a per-question capability-state or application error: it
// completes one Return.exception without affecting the rest of the
// connection.
type Failed struct {
	Type   Type
	Reason string
}

func (f *Failed) Error() string { return f.Reason }

// Failedf builds a Failed of TypeFailed with a formatted reason.
func Failedf(format string, args ...interface{}) *Failed {
	return &Failed{Type: TypeFailed, Reason: fmt.Sprintf(format, args...)}
}

// Disconnected marks a peer, export, or transport that is already gone:
// further calls against it fail immediately rather than queuing.
type Disconnected struct {
	Reason string
}

func (d *Disconnected) Error() string { return d.Reason }

func Disconnectedf(format string, args ...interface{}) *Disconnected {
	return &Disconnected{Reason: fmt.Sprintf(format, args...)}
}

// The reason strings below are the stable, non-localized contract: other
// implementations and the test bridge match on these exact strings, so
// they are constructed once here rather than inlined at each call site.

func UnknownCapability() *Failed {
	return &Failed{Type: TypeFailed, Reason: "unknown capability"}
}

func UnknownPromisedCapability() *Failed {
	return &Failed{Type: TypeFailed, Reason: "unknown promised capability"}
}

func PromisedCapabilityUnresolved() *Failed {
	return &Failed{Type: TypeFailed, Reason: "promised capability unresolved"}
}

func PromiseBroken() *Failed {
	return &Failed{Type: TypeFailed, Reason: "promise broken"}
}

func MissingExportHandler() *Failed {
	return &Failed{Type: TypeFailed, Reason: "missing export handler"}
}

func MissingPromisedCapabilityHandler() *Failed {
	return &Failed{Type: TypeFailed, Reason: "missing promised capability handler"}
}

func UnknownProvision() *Failed {
	return &Failed{Type: TypeFailed, Reason: "unknown provision"}
}

func JoinTargetMismatch() *Failed {
	return &Failed{Type: TypeFailed, Reason: "join target mismatch"}
}

func DuplicateProvideQuestion() *Violation {
	return &Violation{Reason: "duplicate provide question"}
}

func DuplicateProvideRecipient() *Violation {
	return &Violation{Reason: "duplicate provide recipient"}
}

func DuplicateJoinQuestion() *Violation {
	return &Violation{Reason: "duplicate join question"}
}

func ProvideMissingRecipient() *Violation {
	return &Violation{Reason: "provide missing recipient"}
}

// BootstrapStub is the reason string rpctest's fixed bootstrap handler
// attaches to itself, so tests can assert they reached the stub and not a
// real application object.
func BootstrapStub() *Failed {
	return &Failed{Type: TypeFailed, Reason: "bootstrap stub"}
}

// FrameTooLarge is a Resource error: the transport refused to assemble a
// frame past its configured size limit (16 MiB on the test bridge).
type FrameTooLarge struct {
	Size, Limit int
}

func (e *FrameTooLarge) Error() string {
	return fmt.Sprintf("rpc: frame too large (%d bytes > %d byte limit)", e.Size, e.Limit)
}

// OutgoingQueueLimitExceeded is a Resource error for a send that would
// exceed outbound_count_limit (or outbound_bytes_limit). Package transport
// reports that case with its own OutgoingQueueLimitExceededError.
type OutgoingQueueLimitExceeded struct {
	Limit int
}

func (e *OutgoingQueueLimitExceeded) Error() string {
	return fmt.Sprintf("rpc: outgoing queue limit exceeded (limit=%d)", e.Limit)
}
