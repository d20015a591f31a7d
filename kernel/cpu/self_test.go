package cpu

import "testing"

func TestSpinWaitMillsForReturnsTrueImmediatelyWhenConditionAlreadyMet(t *testing.T) {
	ok := SpinWaitMillsFor(func() uint64 { return 0 }, 100, func() bool { return true })
	if !ok {
		t.Fatalf("expected immediate success")
	}
}

func TestSpinWaitMillsForTimesOutWithoutPartialState(t *testing.T) {
	clock := uint64(0)
	now := func() uint64 {
		clock++
		return clock
	}
	ok := SpinWaitMillsFor(now, 3, func() bool { return false })
	if ok {
		t.Fatalf("expected timeout to report false")
	}
}

func TestSpinWaitMillsForObservesConditionBecomingTrueBeforeDeadline(t *testing.T) {
	clock := uint64(0)
	calls := 0
	now := func() uint64 {
		clock++
		return clock
	}
	cond := func() bool {
		calls++
		return calls == 3
	}
	if !SpinWaitMillsFor(now, 1000, cond) {
		t.Fatalf("expected condition to eventually succeed")
	}
}

func TestCurrentSelfReflectsSetCurrentSelf(t *testing.T) {
	SetCurrentSelf(Self{LAPICID: 7, LogicalID: 1, BootstrapProcessor: true})
	s := CurrentSelf()
	if s.LAPICID != 7 || !s.BootstrapProcessor {
		t.Fatalf("expected CurrentSelf to reflect the installed value, got %+v", s)
	}
}
