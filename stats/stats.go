// Package stats adapts the teacher's result package from a one-shot
// broken-link report into the running counters and exit-code taxonomy
// spec §7/§8 describe for a long-lived download: it tracks the
// lowest-nonzero-wins exit status across every job outcome and the
// aggregate byte/job counters the TUI dashboard and final summary read.
package stats

import (
	"sync"
	"time"
)

// ExitCode mirrors spec §6's exit status table.
type ExitCode int

const (
	ExitSuccess          ExitCode = 0
	ExitGenericInit      ExitCode = 1
	ExitReserved         ExitCode = 2
	ExitIOWrite          ExitCode = 3
	ExitNetwork          ExitCode = 4
	ExitTLS              ExitCode = 5
	ExitHTTPError        ExitCode = 8
)

// ErrorCategory classifies a job failure by cause, matching spec §7's
// taxonomy (by cause, not by carrier type). Grounded on, and keeping the
// name of, the teacher's result.ErrorCategory.
type ErrorCategory string

const (
	CategoryNone            ErrorCategory = ""
	CategoryPermanent       ErrorCategory = "permanent_request"
	CategoryTransient       ErrorCategory = "transient_network"
	CategoryHTTPClient      ErrorCategory = "http_4xx"
	CategoryHTTPServer      ErrorCategory = "http_5xx"
	CategoryBodyFraming     ErrorCategory = "body_framing"
	CategoryFilesystem      ErrorCategory = "filesystem"
	CategoryQuotaExceeded   ErrorCategory = "quota_exceeded"
	CategoryMemoryThrottled ErrorCategory = "memory_throttled"
)

// exitForCategory maps an error category to the exit code it sets, per
// spec §7's per-kind resolution rule. Categories that don't independently
// set an exit code (body framing, which resolves into either transient
// retry or a final transient/permanent outcome) return ExitSuccess here
// and are recorded only as counters.
func exitForCategory(cat ErrorCategory) ExitCode {
	switch cat {
	case CategoryPermanent:
		return ExitTLS
	case CategoryTransient:
		return ExitNetwork
	case CategoryHTTPClient:
		return ExitHTTPError
	case CategoryFilesystem:
		return ExitIOWrite
	default:
		return ExitSuccess
	}
}

// Counters is the aggregate state a crawl accumulates: jobs seen,
// bytes delivered, and a per-category tally for the TUI and final report.
type Counters struct {
	mu sync.Mutex

	started   time.Time
	jobsDone  int
	jobsFail  int
	bytesTot  int64
	byCat     map[ErrorCategory]int
	exit      ExitCode
	exitIsSet bool
}

// New returns a zeroed Counters with its start time set to now.
func New(now time.Time) *Counters {
	return &Counters{started: now, byCat: make(map[ErrorCategory]int)}
}

// RecordSuccess records one completed job and the bytes it delivered.
func (c *Counters) RecordSuccess(bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsDone++
	c.bytesTot += bytes
}

// RecordFailure records one failed job under cat, updating the exit code
// via the lowest-nonzero-wins rule from spec §6 ("If multiple distinct
// errors occur, the lowest non-zero code wins, except 1 which is a hard
// exit").
func (c *Counters) RecordFailure(cat ErrorCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsFail++
	c.byCat[cat]++
	c.setExitLocked(exitForCategory(cat))
}

// SetHardExit forces exit code 1 (generic init failure), which always
// wins over any other code once set.
func (c *Counters) SetHardExit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exit = ExitGenericInit
	c.exitIsSet = true
}

func (c *Counters) setExitLocked(code ExitCode) {
	if code == ExitSuccess {
		return
	}
	if c.exit == ExitGenericInit {
		return // hard exit always wins
	}
	if !c.exitIsSet || code < c.exit {
		c.exit = code
		c.exitIsSet = true
	}
}

// ExitCode returns the exit status accumulated so far.
func (c *Counters) ExitCode() ExitCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.exitIsSet {
		return ExitSuccess
	}
	return c.exit
}

// Snapshot is a point-in-time, lock-free copy of Counters for rendering.
type Snapshot struct {
	JobsDone int
	JobsFail int
	Bytes    int64
	ByCat    map[ErrorCategory]int
	Elapsed  time.Duration
	Exit     ExitCode
}

// Snapshot returns a copy of the current counters, safe to read without
// holding the underlying lock again.
func (c *Counters) Snapshot(now time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	byCat := make(map[ErrorCategory]int, len(c.byCat))
	for k, v := range c.byCat {
		byCat[k] = v
	}
	exit := ExitSuccess
	if c.exitIsSet {
		exit = c.exit
	}
	return Snapshot{
		JobsDone: c.jobsDone,
		JobsFail: c.jobsFail,
		Bytes:    c.bytesTot,
		ByCat:    byCat,
		Elapsed:  now.Sub(c.started),
		Exit:     exit,
	}
}
