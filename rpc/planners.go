package rpc

// importPlan is the outcome of planImportedTarget: a tagged enum over a
// Call whose MessageTarget is importedCap, matching spec §4.5.2's
// plan ∈ {unknown_capability, queue_promise_export, promise_broken,
// handle_resolved, call_handler, missing_export_handler}.
type importPlan int

const (
	planUnknownCapability importPlan = iota
	planQueuePromiseExport
	planPromiseBroken
	planHandleResolved
	planCallHandler
	planMissingExportHandler
)

// planImportedTarget is a pure function over the export table's view of one
// id: hasExport reports whether anything is registered there at all;
// isPromise reports whether it was exported as senderPromise (whether or
// not it has settled since); resolvedCap reports whether (for a promise export) resolution
// has already happened; hasHandler reports whether a live, non-broken
// capability backs it. Kept free of *Conn and any I/O so it can be
// property-tested directly against every input combination, per spec §9's
// instruction that these planners stay pure tagged-enum functions.
func planImportedTarget(hasExport, isPromise, resolvedCap, hasHandler bool) importPlan {
	if !hasExport {
		return planUnknownCapability
	}
	if isPromise && !resolvedCap {
		return planQueuePromiseExport
	}
	if !hasHandler {
		if isPromise {
			return planPromiseBroken
		}
		return planMissingExportHandler
	}
	if isPromise {
		return planHandleResolved
	}
	return planCallHandler
}

// promisedPlan is the outcome of planPromisedTarget: a tagged enum over a
// Call whose MessageTarget is promisedAnswer, matching spec §4.5.3's
// plan ∈ {queue_promised_call, queue_export_promise, handle_resolved,
// send_exception}. queue_export_promise carries no payload here (unlike
// the abstract exportId-carrying variant) because this runtime's Client
// values already self-queue pipelined calls via internal/fulfiller, so the
// export id never needs to leave the planner.
type promisedPlan int

const (
	planSendException promisedPlan = iota
	planQueuePromisedCall
	planQueueExportPromise
	planPromisedHandleResolved
)

// planPromisedTarget is a pure function over one promisedAnswer target's
// state: hasAnswer reports whether the referenced question id still has a
// live answer record; selfTarget is the grandfather-paradox case of an
// answer targeting its own in-progress result; resolved/resolvedErr report
// whether (and how) the answer has already settled; hasCapAtTarget reports
// whether walking the transform through a successful resolution actually
// lands on a capability; exportIsPromise reports whether that capability
// is itself still an unresolved local senderPromise export.
func planPromisedTarget(hasAnswer, selfTarget, resolved bool, resolvedErr error, hasCapAtTarget, exportIsPromise bool) promisedPlan {
	if !hasAnswer || selfTarget {
		return planSendException
	}
	if !resolved {
		return planQueuePromisedCall
	}
	if resolvedErr != nil {
		return planSendException
	}
	if !hasCapAtTarget {
		return planSendException
	}
	if exportIsPromise {
		return planQueueExportPromise
	}
	return planPromisedHandleResolved
}
