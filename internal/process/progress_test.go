package process

import "testing"

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker(3)
	if s := tr.Snapshot(); s.Status != StatusPending || s.TotalRows != 3 {
		t.Fatalf("fresh tracker: %+v", s)
	}

	tr.Start()
	if s := tr.Snapshot(); s.Status != StatusProcessing {
		t.Errorf("after Start: %v", s.Status)
	}

	tr.RowDone()
	tr.RowDone()
	if s := tr.Snapshot(); s.ProcessedRows != 2 {
		t.Errorf("ProcessedRows = %d, want 2", s.ProcessedRows)
	}

	tr.Complete()
	if s := tr.Snapshot(); s.Status != StatusCompleted {
		t.Errorf("after Complete: %v", s.Status)
	}
}

func TestTrackerRowDoneCappedAtTotal(t *testing.T) {
	tr := NewTracker(2)
	tr.Start()
	for i := 0; i < 5; i++ {
		tr.RowDone()
	}
	if s := tr.Snapshot(); s.ProcessedRows != 2 {
		t.Errorf("ProcessedRows = %d, want capped at 2", s.ProcessedRows)
	}
}

func TestTrackerTerminalStatesAreFinal(t *testing.T) {
	tr := NewTracker(1)
	tr.Start()
	tr.Fail()
	tr.Complete()
	if s := tr.Snapshot(); s.Status != StatusFailed {
		t.Errorf("Status = %v, want failed to stick", s.Status)
	}

	tr2 := NewTracker(1)
	tr2.Start()
	tr2.Complete()
	tr2.Fail()
	if s := tr2.Snapshot(); s.Status != StatusCompleted {
		t.Errorf("Status = %v, want completed to stick", s.Status)
	}
}
