package atomicio

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// ThrottleLevel indicates memory pressure severity, adapted from the
// teacher's MemoryWatcher (crawler/memory.go). The engine polls Check on
// a ticker and gates new job admission on ThrottleCritical the same way
// it gates on a crossed byte Quota, so a crawl approaching its heap limit
// stops admitting new GETs before the OS starts killing the process.
type ThrottleLevel int

const (
	ThrottleNormal ThrottleLevel = iota
	ThrottleWarning
	ThrottleCritical
)

func (l ThrottleLevel) String() string {
	switch l {
	case ThrottleWarning:
		return "warning"
	case ThrottleCritical:
		return "critical"
	default:
		return "normal"
	}
}

// MemoryWatcher monitors heap pressure via runtime/debug.SetMemoryLimit
// and calls back when the throttle level changes. The bookkeeping is the
// teacher's; engine.Engine supplies the callback that actually flips a
// crawl-wide throttle flag workers consult before claiming a job.
type MemoryWatcher struct {
	mu         sync.RWMutex
	limitBytes int64
	callback   func(level ThrottleLevel)
	lastLevel  ThrottleLevel
}

// NewMemoryWatcher creates a memory watcher with the specified soft
// limit in MB, used alongside the byte Quota so --quota and a process
// memory ceiling both stop new fetches under the same soft-stop model.
func NewMemoryWatcher(limitMB int64) *MemoryWatcher {
	limitBytes := limitMB * 1024 * 1024
	debug.SetMemoryLimit(limitBytes)
	return &MemoryWatcher{limitBytes: limitBytes, lastLevel: ThrottleNormal}
}

// Check reads current heap usage and returns the percentage of the
// configured limit in use plus the resulting throttle level, invoking
// the registered callback exactly once per level transition.
func (m *MemoryWatcher) Check() (usedPercent float64, level ThrottleLevel) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	usedBytes := float64(memStats.HeapAlloc)
	limitBytes := float64(m.limitBytes)
	if limitBytes <= 0 {
		return 0, ThrottleNormal
	}
	usedPercent = (usedBytes / limitBytes) * 100

	switch {
	case usedPercent >= 90:
		level = ThrottleCritical
	case usedPercent >= 75:
		level = ThrottleWarning
	default:
		level = ThrottleNormal
	}

	m.mu.RLock()
	lastLevel := m.lastLevel
	callback := m.callback
	m.mu.RUnlock()

	if level != lastLevel && callback != nil {
		m.mu.Lock()
		m.lastLevel = level
		m.mu.Unlock()
		callback(level)
	}
	return usedPercent, level
}

// SetThrottleCallback registers cb to run whenever Check observes a
// throttle-level transition.
func (m *MemoryWatcher) SetThrottleCallback(cb func(level ThrottleLevel)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = cb
}
