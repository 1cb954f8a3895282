package errorsx

import (
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonDeviceOpen)
	if Reason(err) != ReasonDeviceOpen {
		t.Fatalf("expected reason %s, got %s", ReasonDeviceOpen, Reason(err))
	}
	if !HasReason(err, ReasonDeviceOpen) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonWakeModel)
	second := Wrap(first, ReasonServiceHTTP)
	if Reason(second) != ReasonWakeModel {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestReasonSurvivesFmtWrapping(t *testing.T) {
	err := fmt.Errorf("open mic: %w", Wrap(assertErr{}, ReasonDeviceOpen))
	if Reason(err) != ReasonDeviceOpen {
		t.Fatalf("expected reason through fmt wrap, got %s", Reason(err))
	}
}

func TestIsInitFailure(t *testing.T) {
	for _, r := range []ReasonCode{ReasonWakeCredential, ReasonWakeModel, ReasonDeviceOpen} {
		if !IsInitFailure(r) {
			t.Fatalf("expected %s to be an init failure", r)
		}
	}
	if IsInitFailure(ReasonDeviceRead) {
		t.Fatalf("device read is a runtime failure")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
