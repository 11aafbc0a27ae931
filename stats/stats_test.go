package stats

import (
	"testing"
	"time"
)

func TestCountersRecordSuccess(t *testing.T) {
	c := New(time.Unix(0, 0))
	c.RecordSuccess(100)
	c.RecordSuccess(50)
	snap := c.Snapshot(time.Unix(10, 0))
	if snap.JobsDone != 2 || snap.Bytes != 150 {
		t.Errorf("snap = %+v", snap)
	}
	if snap.Exit != ExitSuccess {
		t.Errorf("exit = %v, want success", snap.Exit)
	}
}

func TestCountersLowestNonZeroWins(t *testing.T) {
	c := New(time.Unix(0, 0))
	c.RecordFailure(CategoryHTTPClient) // exit 8
	if c.ExitCode() != ExitHTTPError {
		t.Fatalf("exit = %v, want 8", c.ExitCode())
	}
	c.RecordFailure(CategoryTransient) // exit 4, lower than 8
	if c.ExitCode() != ExitNetwork {
		t.Fatalf("exit = %v, want 4 (lowest wins)", c.ExitCode())
	}
	c.RecordFailure(CategoryHTTPClient) // exit 8 again, should not override 4
	if c.ExitCode() != ExitNetwork {
		t.Fatalf("exit = %v, want still 4", c.ExitCode())
	}
}

func TestCountersHardExitWins(t *testing.T) {
	c := New(time.Unix(0, 0))
	c.RecordFailure(CategoryTransient)
	c.SetHardExit()
	if c.ExitCode() != ExitGenericInit {
		t.Fatalf("exit = %v, want 1", c.ExitCode())
	}
	c.RecordFailure(CategoryFilesystem)
	if c.ExitCode() != ExitGenericInit {
		t.Fatalf("exit = %v, want still 1 (hard exit always wins)", c.ExitCode())
	}
}

func TestCountersByCategory(t *testing.T) {
	c := New(time.Unix(0, 0))
	c.RecordFailure(CategoryHTTPServer)
	c.RecordFailure(CategoryHTTPServer)
	c.RecordFailure(CategoryFilesystem)
	snap := c.Snapshot(time.Unix(1, 0))
	if snap.ByCat[CategoryHTTPServer] != 2 || snap.ByCat[CategoryFilesystem] != 1 {
		t.Errorf("byCat = %+v", snap.ByCat)
	}
	if snap.JobsFail != 3 {
		t.Errorf("jobsFail = %d, want 3", snap.JobsFail)
	}
}

func TestCountersElapsed(t *testing.T) {
	start := time.Unix(1000, 0)
	c := New(start)
	snap := c.Snapshot(start.Add(5 * time.Second))
	if snap.Elapsed != 5*time.Second {
		t.Errorf("elapsed = %v, want 5s", snap.Elapsed)
	}
}
