package health

import "testing"

func TestEvaluateDownWhenNotRunning(t *testing.T) {
	got := Evaluate(Inputs{ProcessRunning: false, HandshakeReady: true})
	if got != StatusDown {
		t.Errorf("got %v, want Down", got)
	}
}

func TestEvaluateDegradedOnMissedPings(t *testing.T) {
	got := Evaluate(Inputs{ProcessRunning: true, MissedPings: 2, HandshakeReady: true})
	if got != StatusDegraded {
		t.Errorf("got %v, want Degraded", got)
	}
}

func TestEvaluateDownAfterFourMissedPings(t *testing.T) {
	got := Evaluate(Inputs{ProcessRunning: true, MissedPings: 4, HandshakeReady: true})
	if got != StatusDown {
		t.Errorf("got %v, want Down", got)
	}
}

func TestEvaluateDegradedOnRestartRate(t *testing.T) {
	got := Evaluate(Inputs{ProcessRunning: true, RestartsLast10m: 3, HandshakeReady: true})
	if got != StatusDegraded {
		t.Errorf("got %v, want Degraded", got)
	}
}

func TestEvaluateReady(t *testing.T) {
	got := Evaluate(Inputs{ProcessRunning: true, HandshakeReady: true})
	if got != StatusReady {
		t.Errorf("got %v, want Ready", got)
	}
}

func TestEvaluateHandshakeGateDowngradesReady(t *testing.T) {
	got := Evaluate(Inputs{ProcessRunning: true, HandshakeReady: false})
	if got != StatusDegraded {
		t.Errorf("got %v, want Degraded when handshake not yet observed", got)
	}
}

func TestEvaluateDownTakesPrecedenceOverHandshake(t *testing.T) {
	got := Evaluate(Inputs{ProcessRunning: false, HandshakeReady: false})
	if got != StatusDown {
		t.Errorf("got %v, want Down regardless of handshake state", got)
	}
}
