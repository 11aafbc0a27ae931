package dedup

import "sync"

// KnownURLs is the raw-link-text set from spec §3/§4.5: inserting the
// literal text of an extracted href/src before it is resolved to an
// absolute URL, so the same link text seen twice on a page (or across
// pages) skips straight past resolution and canonicalization.
type KnownURLs struct {
	mu      sync.Mutex
	entries map[string]struct{}
}

// NewKnownURLs returns an empty known-URLs set.
func NewKnownURLs() *KnownURLs {
	return &KnownURLs{entries: make(map[string]struct{})}
}

// InsertIfNew reports whether text was not already recorded, recording it
// atomically with the test.
func (k *KnownURLs) InsertIfNew(text string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.entries[text]; exists {
		return false
	}
	k.entries[text] = struct{}{}
	return true
}

// Size returns the number of distinct raw link strings recorded.
func (k *KnownURLs) Size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
