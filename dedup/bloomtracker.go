package dedup

import (
	"errors"
	"fmt"
	"os"
	"sync"

	bloom "github.com/bits-and-blooms/bloom/v3"
	mmap "github.com/edsrzf/mmap-go"
)

// BloomTracker is a disk-backed bloom filter implementing Set, for crawls
// large enough that an exact in-memory map is the wrong trade: constant
// memory footprint at the cost of a small false-positive rate (a
// not-actually-seen URL is occasionally reported as seen, which under-
// crawls rather than duplicating work). Adapted from the broken-link
// checker's VisitedTracker: same mmap-backed persistence strategy,
// generalized from "visited" to the blacklist's InsertIfNew contract.
type BloomTracker struct {
	mu        sync.Mutex
	filter    *bloom.BloomFilter
	file      *os.File
	mmap      mmap.MMap
	tmpPath   string
	count     uint64
	syncEvery uint64
	lastErr   error
}

// NewBloomTracker creates a disk-backed bloom filter sized for
// expectedURLs entries at the given false-positive rate.
func NewBloomTracker(expectedURLs uint, falsePositiveRate float64) (*BloomTracker, error) {
	filter := bloom.NewWithEstimates(expectedURLs, falsePositiveRate)

	tmpFile, err := os.CreateTemp(os.TempDir(), "retriever-blacklist-*.bloom")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	filterSize := filter.Cap()
	if err := tmpFile.Truncate(int64(filterSize)); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("truncate temp file: %w", err)
	}

	mapped, err := mmap.MapRegion(tmpFile, int(filterSize), mmap.RDWR, 0, 0)
	if err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("mmap temp file: %w", err)
	}

	data, err := filter.MarshalBinary()
	if err != nil {
		_ = mapped.Unmap()
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("marshal bloom filter: %w", err)
	}
	if len(data) > len(mapped) {
		_ = mapped.Unmap()
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("filter data (%d) exceeds mmap size (%d)", len(data), len(mapped))
	}
	copy(mapped, data)

	return &BloomTracker{
		filter:    filter,
		file:      tmpFile,
		mmap:      mapped,
		tmpPath:   tmpPath,
		syncEvery: 1000,
	}, nil
}

// InsertIfNew reports whether key was not already present in the filter,
// adding it if so. A false positive here causes a real-but-unrecorded URL
// to be reported present, which the blacklist treats as a duplicate.
func (t *BloomTracker) InsertIfNew(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.filter.TestString(key) {
		return false
	}
	t.filter.AddString(key)
	t.count++
	if t.count >= t.syncEvery {
		if err := t.syncLocked(); err != nil {
			t.lastErr = err
		}
	}
	return true
}

// Size returns the filter's estimated cardinality (bloom filters do not
// track exact membership counts).
func (t *BloomTracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.filter.ApproximatedSize())
}

// LastError returns the most recent background sync error, if any.
func (t *BloomTracker) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *BloomTracker) syncLocked() error {
	data, err := t.filter.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal bloom filter: %w", err)
	}
	if len(data) <= len(t.mmap) {
		copy(t.mmap, data)
	}
	if err := t.mmap.Flush(); err != nil {
		return fmt.Errorf("flush mmap: %w", err)
	}
	t.count = 0
	return nil
}

// Close syncs any pending data and releases the mmap, file, and temp path.
func (t *BloomTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.lastErr != nil {
		errs = append(errs, t.lastErr)
	}
	if t.mmap != nil {
		if t.count > 0 {
			if err := t.syncLocked(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := t.mmap.Unmap(); err != nil {
			errs = append(errs, fmt.Errorf("unmap: %w", err))
		}
		t.mmap = nil
	}
	if t.file != nil {
		if err := t.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close file: %w", err))
		}
		t.file = nil
	}
	if t.tmpPath != "" {
		if err := os.Remove(t.tmpPath); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove temp file: %w", err))
		}
		t.tmpPath = ""
	}

	if len(errs) > 0 {
		return fmt.Errorf("close bloom tracker: %w", errors.Join(errs...))
	}
	return nil
}
