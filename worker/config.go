// Package worker implements the per-job state machine from spec §4.7:
// claim a job off the queue, probe or fetch it, dispatch the body to an
// extractor, save it to disk, and retry transient failures with backoff —
// generalized from the teacher's CheckURL/CheckURLWithRetry pair
// (crawler/worker.go, crawler/retry.go) from a link-existence check into a
// full recursive download.
package worker

import (
	"time"

	"github.com/lukemcguire/retriever/wireproto"
)

// Config is the protocol/policy flag set a worker consults on every job,
// one field per spec §6 CLI group this package is responsible for.
type Config struct {
	Tries      int // spec calls this "tries"; 0 or 1 means no retry
	WaitRetry  time.Duration
	Wait       time.Duration
	RandomWait bool

	UserAgent string
	Referer   string
	KeepAlive bool
	NoCache   bool
	Headers   wireproto.Params

	PostData string
	PostFile string

	MaxRedirect       int
	ChunkSize         int64
	TrustServerNames  bool
	DoubleDecompress  bool // opt-in workaround, default false; see SPEC_FULL open question 3

	HTTPUser     string
	HTTPPassword string
	NetrcFile    string

	Spider bool

	RequestTimeout time.Duration
}

// DefaultConfig mirrors wget2's defaults for the options this package
// reads, matching the teacher's DefaultConfig-per-package convention.
func DefaultConfig() Config {
	return Config{
		Tries:          20,
		WaitRetry:      10 * time.Second,
		MaxRedirect:    20,
		UserAgent:      "retriever/1.0",
		RequestTimeout: 30 * time.Second,
	}
}
