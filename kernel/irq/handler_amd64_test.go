package irq

import "testing"

func TestReserveInterruptSkipsExceptionRange(t *testing.T) {
	v, err := ReserveInterrupt()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v < reservedExceptionVectors {
		t.Fatalf("reserved vector %d falls inside the CPU exception range", v)
	}
	if v == softwareYieldVector {
		t.Fatalf("reserved vector %d collides with the reserved software-yield vector", v)
	}
	if err := ReleaseInterrupt(v); err != nil {
		t.Fatalf("unexpected error releasing vector: %v", err)
	}
}

func TestReserveInterruptDoesNotDoubleAllocate(t *testing.T) {
	seen := make(map[uint8]bool)
	var claimed []uint8
	for i := 0; i < 8; i++ {
		v, err := ReserveInterrupt()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[v] {
			t.Fatalf("vector %d reserved twice", v)
		}
		seen[v] = true
		claimed = append(claimed, v)
	}
	for _, v := range claimed {
		if err := ReleaseInterrupt(v); err != nil {
			t.Fatalf("unexpected error releasing vector %d: %v", v, err)
		}
	}
}

func TestReleaseInterruptRejectsUnreserved(t *testing.T) {
	v, err := ReserveInterrupt()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ReleaseInterrupt(v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ReleaseInterrupt(v); err == nil {
		t.Fatalf("expected error releasing an already-released vector")
	}
}

func TestReleaseInterruptRejectsExceptionVector(t *testing.T) {
	if err := ReleaseInterrupt(uint8(PageFaultException)); err == nil {
		t.Fatalf("expected error releasing a reserved CPU exception vector")
	}
}

func TestRegisterIRQRequiresReservation(t *testing.T) {
	if err := RegisterIRQ(250, func(*Frame, *Regs) {}); err == nil {
		t.Fatalf("expected error registering an unreserved vector")
	}
}

func TestRegisterIRQRejectsDoubleRegistration(t *testing.T) {
	v, err := ReserveInterrupt()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ReleaseInterrupt(v)

	if err := RegisterIRQ(v, func(*Frame, *Regs) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := RegisterIRQ(v, func(*Frame, *Regs) {}); err == nil {
		t.Fatalf("expected error on double registration")
	}
}

func TestHandleExceptionRegistersCallback(t *testing.T) {
	called := false
	HandleException(BoundRangeExceeded, func(*Frame, *Regs) { called = true })
	defer HandleException(BoundRangeExceeded, nil)

	exceptionHandlers[BoundRangeExceeded](nil, nil)
	if !called {
		t.Fatalf("expected handler to be invoked")
	}
}

func TestHandleExceptionWithCodeRegistersCallback(t *testing.T) {
	var gotCode uint64
	HandleExceptionWithCode(PageFaultException, func(code uint64, f *Frame, r *Regs) { gotCode = code })
	defer HandleExceptionWithCode(PageFaultException, nil)

	exceptionCodeHandlers[PageFaultException](0xdead, nil, nil)
	if gotCode != 0xdead {
		t.Fatalf("expected error code to be passed through, got %#x", gotCode)
	}
}
