// Package hostreg implements the host registry and robots gating
// described in spec §4.10: the first job for a host (when robots
// enforcement is on) synthesizes a robots.txt job, and every other job
// for that host waits on the host's deferred list until the robots
// response has been parsed (or the fetch failed with 404/5xx, which is
// treated as "no restrictions").
package hostreg

import (
	"fmt"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/lukemcguire/retriever/queue"
)

// Record is the per-host state: whether a robots fetch is outstanding,
// the parsed rules once it resolves, and jobs waiting on that resolution.
type Record struct {
	Host      string
	Pending   bool // a robots.txt job has been enqueued but not resolved
	Resolved  bool // robots.txt fetch completed (success, 404, or 5xx)
	Robots    *robotstxt.RobotsData
	RobotsJob *queue.Job
	Deferred  []*queue.Job
}

// Registry is the map of host records, guarded by one mutex. kirk-ai's
// requests_crawler.go single-flight-per-host fetch cache is the grounding
// for "one outstanding robots fetch per host, everyone else waits."
type Registry struct {
	mu      sync.Mutex
	hosts   map[string]*Record
	enabled bool
}

// New returns a host registry. enabled controls whether robots gating is
// applied at all; when false, EnsureHost never synthesizes a robots job
// and Allowed always returns true.
func New(enabled bool) *Registry {
	return &Registry{hosts: make(map[string]*Record), enabled: enabled}
}

// Enabled reports whether robots enforcement is active.
func (r *Registry) Enabled() bool { return r.enabled }

// EnsureHost returns the record for host, creating it if this is the
// first sighting. needsRobotsJob is true exactly once per host: the
// caller must synthesize and enqueue a robots.txt job when it is true.
func (r *Registry) EnsureHost(host string) (rec *Record, needsRobotsJob bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.hosts[host]
	if ok {
		return rec, false
	}
	rec = &Record{Host: host}
	r.hosts[host] = rec
	if !r.enabled {
		rec.Resolved = true
		return rec, false
	}
	rec.Pending = true
	return rec, true
}

// Defer appends a job to host's deferred list. The caller must have
// already confirmed the host is pending (EnsureHost returned
// needsRobotsJob, or a prior call observed Pending).
func (r *Registry) Defer(host string, j *queue.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.hosts[host]
	if !ok {
		rec = &Record{Host: host}
		r.hosts[host] = rec
	}
	rec.Deferred = append(rec.Deferred, j)
}

// IsPending reports whether host's robots fetch is still outstanding.
func (r *Registry) IsPending(host string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.hosts[host]
	return ok && rec.Pending
}

// ResolveRobots records a host's robots.txt outcome and releases every
// deferred job. statusCode 404 or any 5xx (or a parse failure) is treated
// as "no restrictions," matching wget2 and the broken-link checker's
// fail-open policy.
func (r *Registry) ResolveRobots(host string, statusCode int, body []byte) (released []*queue.Job, sitemaps []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.hosts[host]
	if !ok {
		rec = &Record{Host: host}
		r.hosts[host] = rec
	}

	if statusCode == 404 || statusCode >= 500 || statusCode < 200 {
		rec.Robots = nil
	} else {
		parsed, err := robotstxt.FromStatusAndBytes(statusCode, body)
		if err != nil {
			rec.Robots = nil
		} else {
			rec.Robots = parsed
			sitemaps = parsed.Sitemaps
		}
	}

	rec.Pending = false
	rec.Resolved = true
	released = rec.Deferred
	rec.Deferred = nil
	return released, sitemaps
}

// Allowed reports whether path may be fetched from host under userAgent's
// robots rules. A host with no resolved record, robots disabled, or an
// allow-all (nil) descriptor is always allowed.
func (r *Registry) Allowed(host, path, userAgent string) bool {
	if !r.enabled {
		return true
	}
	r.mu.Lock()
	rec, ok := r.hosts[host]
	r.mu.Unlock()
	if !ok || rec.Robots == nil {
		return true
	}
	return rec.Robots.TestAgent(path, userAgent)
}

// RobotsURL returns the robots.txt URL for a host under scheme.
func RobotsURL(scheme, host string) string {
	return fmt.Sprintf("%s://%s/robots.txt", scheme, host)
}

// IsRobotsPath reports whether path is the well-known robots.txt path, used
// by the worker to recognize a synthesized robots job without a dedicated
// Job flag.
func IsRobotsPath(path string) bool {
	return path == "/robots.txt"
}
