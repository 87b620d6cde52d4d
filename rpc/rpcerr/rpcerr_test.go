package rpcerr

import "testing"

// These strings are part of the wire contract (spec §7): other
// implementations assert on them directly, so they must never drift by
// accident.
func TestReasonStrings(t *testing.T) {
	cases := []struct {
		got  error
		want string
	}{
		{UnknownCapability(), "unknown capability"},
		{UnknownPromisedCapability(), "unknown promised capability"},
		{PromisedCapabilityUnresolved(), "promised capability unresolved"},
		{PromiseBroken(), "promise broken"},
		{MissingExportHandler(), "missing export handler"},
		{MissingPromisedCapabilityHandler(), "missing promised capability handler"},
		{UnknownProvision(), "unknown provision"},
		{JoinTargetMismatch(), "join target mismatch"},
		{DuplicateProvideQuestion(), "rpc protocol violation: duplicate provide question"},
		{DuplicateProvideRecipient(), "rpc protocol violation: duplicate provide recipient"},
		{DuplicateJoinQuestion(), "rpc protocol violation: duplicate join question"},
		{ProvideMissingRecipient(), "rpc protocol violation: provide missing recipient"},
		{BootstrapStub(), "bootstrap stub"},
	}
	for _, c := range cases {
		if got := c.got.Error(); got != c.want {
			t.Errorf("%T.Error() = %q, want %q", c.got, got, c.want)
		}
	}
}

func TestTypeHierarchy(t *testing.T) {
	if UnknownCapability().Type != TypeFailed {
		t.Errorf("UnknownCapability should be a Failed exception")
	}
	if _, ok := error(Violationf("x")).(*Violation); !ok {
		t.Errorf("Violationf should return *Violation")
	}
	if _, ok := error(Disconnectedf("x")).(*Disconnected); !ok {
		t.Errorf("Disconnectedf should return *Disconnected")
	}
}
