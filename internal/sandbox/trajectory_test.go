package sandbox

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestTrajectoryAppendOrder(t *testing.T) {
	tr := NewTrajectory(0)
	now := time.Now()
	for i := 0; i < 3; i++ {
		idx := tr.Append(fmt.Sprintf("cmd-%d", i), "out", "", 0, false, now, now)
		if idx != i {
			t.Errorf("index = %d, want %d", idx, i)
		}
	}

	records, truncated := tr.Snapshot()
	if truncated {
		t.Error("unbounded trajectory reported truncation")
	}
	if len(records) != 3 {
		t.Fatalf("len = %d", len(records))
	}
	for i, rec := range records {
		if rec.Index != i || rec.Command != fmt.Sprintf("cmd-%d", i) {
			t.Errorf("records[%d] = %+v", i, rec)
		}
	}
}

func TestTrajectoryEviction(t *testing.T) {
	tr := NewTrajectory(2)
	now := time.Now()
	for i := 0; i < 5; i++ {
		tr.Append(fmt.Sprintf("cmd-%d", i), "", "", 0, false, now, now)
	}

	records, truncated := tr.Snapshot()
	if !truncated {
		t.Error("eviction not reported")
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
	// Oldest evicted first; surviving indices keep their original values.
	if records[0].Index != 3 || records[1].Index != 4 {
		t.Errorf("indices = %d, %d", records[0].Index, records[1].Index)
	}
	if tr.Len() != 5 {
		t.Errorf("Len = %d, want 5", tr.Len())
	}
}

func TestTrajectorySnapshotIsCopy(t *testing.T) {
	tr := NewTrajectory(0)
	now := time.Now()
	tr.Append("first", "", "", 0, false, now, now)

	records, _ := tr.Snapshot()
	records[0].Command = "mutated"

	fresh, _ := tr.Snapshot()
	if fresh[0].Command != "first" {
		t.Error("snapshot shares backing storage with trajectory")
	}
}

func TestTrajectoryConcurrentAppend(t *testing.T) {
	tr := NewTrajectory(0)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Append("cmd", "", "", 0, false, now, now)
		}()
	}
	wg.Wait()

	records, _ := tr.Snapshot()
	if len(records) != 20 {
		t.Fatalf("len = %d", len(records))
	}
	seen := make(map[int]bool)
	for _, rec := range records {
		if seen[rec.Index] {
			t.Errorf("duplicate index %d", rec.Index)
		}
		seen[rec.Index] = true
	}
}
