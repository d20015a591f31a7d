package xhci

import "testing"

func TestDecidePortActionFreshConnection(t *testing.T) {
	action, ack := decidePortAction(portSnapshot{connected: true, connectChanged: true})
	if action != portActionStartReset {
		t.Fatalf("expected portActionStartReset, got %v", action)
	}
	if ack != portSCCSC {
		t.Fatalf("expected a Connect Status Change ack, got %#x", ack)
	}
}

func TestDecidePortActionDisconnect(t *testing.T) {
	action, ack := decidePortAction(portSnapshot{connected: false, connectChanged: true})
	if action != portActionDisconnect {
		t.Fatalf("expected portActionDisconnect, got %v", action)
	}
	if ack != portSCCSC {
		t.Fatalf("expected a Connect Status Change ack, got %#x", ack)
	}
}

func TestDecidePortActionResetCompleteOnEnabledPort(t *testing.T) {
	action, ack := decidePortAction(portSnapshot{resetChanged: true, enabled: true})
	if action != portActionEnumerate {
		t.Fatalf("expected portActionEnumerate, got %v", action)
	}
	if ack != portSCPRC {
		t.Fatalf("expected a Port Reset Change ack, got %#x", ack)
	}
}

func TestDecidePortActionResetCompleteOnDisabledPortIsIgnored(t *testing.T) {
	// A reset that failed to enable the port (a disconnected or faulty
	// device) must not be handed to enumeration.
	action, ack := decidePortAction(portSnapshot{resetChanged: true, enabled: false})
	if action != portActionNone {
		t.Fatalf("expected portActionNone, got %v", action)
	}
	if ack != 0 {
		t.Fatalf("expected no ack, got %#x", ack)
	}
}

func TestDecidePortActionNoChangeIsNoop(t *testing.T) {
	action, ack := decidePortAction(portSnapshot{connected: true, enabled: true})
	if action != portActionNone || ack != 0 {
		t.Fatalf("expected no action for an unchanged port, got %v/%#x", action, ack)
	}
}

func TestDecidePortActionConnectChangeTakesPriorityOverResetChange(t *testing.T) {
	// Both bits set simultaneously: the connect-status transition is the
	// more fundamental lifecycle event and must win.
	action, ack := decidePortAction(portSnapshot{connected: true, connectChanged: true, resetChanged: true, enabled: true})
	if action != portActionStartReset {
		t.Fatalf("expected portActionStartReset to take priority, got %v", action)
	}
	if ack != portSCCSC {
		t.Fatalf("expected a Connect Status Change ack, got %#x", ack)
	}
}
