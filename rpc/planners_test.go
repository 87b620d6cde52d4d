package rpc

import (
	"errors"
	"testing"
)

func TestPlanImportedTarget(t *testing.T) {
	tests := []struct {
		name                                           string
		hasExport, isPromise, resolvedCap, hasHandler bool
		want                                           importPlan
	}{
		{"no export", false, false, false, false, planUnknownCapability},
		{"unresolved promise export", true, true, false, false, planQueuePromiseExport},
		{"unresolved promise export, ignores hasHandler", true, true, false, true, planQueuePromiseExport},
		{"resolved promise, broken", true, true, true, false, planPromiseBroken},
		{"resolved promise, handler", true, true, true, true, planHandleResolved},
		{"plain export, no handler", true, false, false, false, planMissingExportHandler},
		{"plain export, handler", true, false, false, true, planCallHandler},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := planImportedTarget(tt.hasExport, tt.isPromise, tt.resolvedCap, tt.hasHandler)
			if got != tt.want {
				t.Errorf("planImportedTarget(%v,%v,%v,%v) = %v, want %v",
					tt.hasExport, tt.isPromise, tt.resolvedCap, tt.hasHandler, got, tt.want)
			}
		})
	}
}

func TestPlanPromisedTarget(t *testing.T) {
	errBroken := errors.New("broken")
	tests := []struct {
		name                             string
		hasAnswer, selfTarget, resolved  bool
		resolvedErr                      error
		hasCapAtTarget, exportIsPromise  bool
		want                             promisedPlan
	}{
		{"unknown answer", false, false, false, nil, false, false, planSendException},
		{"grandfather paradox", true, true, false, nil, false, false, planSendException},
		{"not yet resolved", true, false, false, nil, false, false, planQueuePromisedCall},
		{"resolved to error", true, false, true, errBroken, false, false, planSendException},
		{"resolved, no cap at target", true, false, true, nil, false, false, planSendException},
		{"resolved, cap is itself an unresolved export", true, false, true, nil, true, true, planQueueExportPromise},
		{"resolved, concrete cap", true, false, true, nil, true, false, planPromisedHandleResolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := planPromisedTarget(tt.hasAnswer, tt.selfTarget, tt.resolved, tt.resolvedErr, tt.hasCapAtTarget, tt.exportIsPromise)
			if got != tt.want {
				t.Errorf("planPromisedTarget(...) = %v, want %v", got, tt.want)
			}
		})
	}
}
