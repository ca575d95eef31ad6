package supervisor

import "testing"

func TestVerdictDebouncer_RequiresConsecutiveMatches(t *testing.T) {
	d := newVerdictDebouncer()

	if d.Observe("agent1", "idle", 3) {
		t.Fatalf("expected no gate on first observation")
	}
	if d.Observe("agent1", "idle", 3) {
		t.Fatalf("expected no gate on second observation")
	}
	if !d.Observe("agent1", "idle", 3) {
		t.Fatalf("expected gate to open on third matching observation")
	}
}

func TestVerdictDebouncer_DifferentVerdictResetsRun(t *testing.T) {
	d := newVerdictDebouncer()

	d.Observe("agent1", "idle", 3)
	d.Observe("agent1", "idle", 3)
	if d.Observe("agent1", "processing", 3) {
		t.Fatalf("expected a differing verdict to break the run")
	}
	if d.Observe("agent1", "processing", 3) {
		t.Fatalf("expected only two matching observations so far")
	}
}

func TestVerdictDebouncer_DifferentAgentsIndependent(t *testing.T) {
	d := newVerdictDebouncer()

	d.Observe("agent1", "idle", 2)
	if d.Observe("agent2", "idle", 2) {
		t.Fatalf("agent2 should not inherit agent1's history")
	}
}

func TestVerdictDebouncer_ResetClearsHistory(t *testing.T) {
	d := newVerdictDebouncer()

	d.Observe("agent1", "idle", 2)
	d.Reset("agent1")
	if d.Observe("agent1", "idle", 2) {
		t.Fatalf("expected history to have been cleared")
	}
}
