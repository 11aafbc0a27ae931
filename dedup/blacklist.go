// Package dedup implements the two global sets described in spec §4.5:
// the canonical-URL blacklist (insert-once, rejects duplicates) and the
// known-URLs set of raw link text, which short-circuits relative-link
// resolution before a candidate is even canonicalized.
package dedup

import (
	"fmt"
	"sync"

	"github.com/lukemcguire/retriever/urlutil"
)

// Set is the insert-once membership test both the blacklist and the
// large-scale tracker implement, so the engine can swap backends without
// caring which one is in play.
type Set interface {
	// InsertIfNew reports whether key was not already present, inserting
	// it atomically with the test.
	InsertIfNew(key string) bool
	Size() int
	Close() error
}

// exactSet is a plain mutex-guarded map: exact membership, no false
// positives or negatives, the default backend and the one wget2's
// src/blacklist.c hashmap models directly.
type exactSet struct {
	mu      sync.Mutex
	entries map[string]struct{}
}

func newExactSet() *exactSet {
	return &exactSet{entries: make(map[string]struct{})}
}

func (s *exactSet) InsertIfNew(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; exists {
		return false
	}
	s.entries[key] = struct{}{}
	return true
}

func (s *exactSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *exactSet) Close() error { return nil }

// Blacklist is the canonical-URL dedup set keyed by urlutil.Canonical.Key
// (scheme, host, port, path, query — fragment ignored per spec §3).
// Ownership transfers into the blacklist on a successful insert; a
// duplicate candidate is simply dropped by the caller.
type Blacklist struct {
	set Set
}

// NewBlacklist returns a Blacklist backed by an exact in-memory set,
// suitable for crawls up to a few million URLs.
func NewBlacklist() *Blacklist {
	return &Blacklist{set: newExactSet()}
}

// NewBlacklistWithSet returns a Blacklist backed by a caller-supplied Set,
// used to plug in the bloom-filter-backed BloomTracker for --mirror-scale
// crawls where an exact map would outgrow memory.
func NewBlacklistWithSet(s Set) *Blacklist {
	return &Blacklist{set: s}
}

// Insert reports whether the canonical URL was newly added (true) or was
// already present (false, a duplicate to be dropped).
func (b *Blacklist) Insert(c urlutil.Canonical) bool {
	return b.set.InsertIfNew(c.Key())
}

// Size returns the number of distinct canonical URLs recorded so far.
func (b *Blacklist) Size() int {
	return b.set.Size()
}

// Close releases any resources (temp files, mmaps) held by the backing
// set.
func (b *Blacklist) Close() error {
	return b.set.Close()
}

// Print writes one canonical URL per line, mirroring wget2's
// blacklist_print diagnostic — useful with an exact backend only, since a
// bloom filter cannot enumerate its members.
func (b *Blacklist) Print(w interface{ WriteString(string) (int, error) }) error {
	es, ok := b.set.(*exactSet)
	if !ok {
		return fmt.Errorf("dedup: Print requires an exact-set backend")
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	for key := range es.entries {
		if _, err := w.WriteString(key + "\n"); err != nil {
			return err
		}
	}
	return nil
}
