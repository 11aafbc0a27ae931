// Package atomicio implements the on-disk write rules from spec §4.9:
// directory creation with a file-blocks-directory fallback, clobber/
// backup rotation, append mode for partial-content resumes, timestamping
// from Last-Modified, and a process-wide byte quota — all serialized
// under one global mutex so concurrent workers racing on the same target
// path never interleave.
package atomicio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// savefileMu is the single global mutex spec §4.9 requires: every save
// operation, across every worker, executes under it.
var savefileMu sync.Mutex

// Quota is the shared cumulative byte counter. The zero value is usable;
// Limit <= 0 means unlimited.
type Quota struct {
	Limit     int64
	delivered int64
}

// Add performs the quota's atomic fetch-and-add and reports whether the
// running total has now crossed Limit (the current write still lands in
// full; only *subsequent* fetches should stop).
func (q *Quota) Add(n int64) (crossed bool) {
	total := atomic.AddInt64(&q.delivered, n)
	return q.Limit > 0 && total >= q.Limit
}

// Delivered returns the current cumulative byte count.
func (q *Quota) Delivered() int64 {
	return atomic.LoadInt64(&q.delivered)
}

// WriteMode selects how Save opens the target file.
type WriteMode int

const (
	ModeClobber   WriteMode = iota // default: back up existing file, then overwrite
	ModeNoClobber                  // exclusive create; fall back to name.N on collision
	ModeAppend                     // 206 Partial Content resume
)

// Options controls one Save call.
type Options struct {
	Mode       WriteMode
	Backups    int // number of rotated backups to keep (name.1..name.Backups)
	ModTime    time.Time
	SetModTime bool
	Quota      *Quota
}

// Save writes r to path under opts, applying the directory-blocks-file
// fallback, clobber/backup rotation, and quota accounting. It returns the
// number of bytes written and the final path actually used (which can
// differ from the input under --no-clobber's name.N fallback).
func Save(path string, r io.Reader, opts Options) (finalPath string, n int64, err error) {
	if path == "-" {
		savefileMu.Lock()
		defer savefileMu.Unlock()
		n, err = io.Copy(os.Stdout, r)
		return "-", n, err
	}

	savefileMu.Lock()
	defer savefileMu.Unlock()

	dir := filepath.Dir(path)
	if err := mkdirAllWithFallback(dir); err != nil {
		return "", 0, fmt.Errorf("atomicio: create directory %s: %w", dir, err)
	}

	target := path
	var f *os.File
	switch opts.Mode {
	case ModeAppend:
		f, err = os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	case ModeNoClobber:
		target, f, err = createExclusiveWithFallback(target)
	default:
		if err := rotateBackups(target, opts.Backups); err != nil {
			return "", 0, err
		}
		f, err = os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	}
	if err != nil {
		return "", 0, fmt.Errorf("atomicio: open %s: %w", target, err)
	}
	defer f.Close()

	n, err = io.Copy(f, r)
	if opts.Quota != nil {
		opts.Quota.Add(n)
	}
	if err != nil {
		return target, n, fmt.Errorf("atomicio: write %s: %w", target, err)
	}

	if opts.SetModTime {
		if err := os.Chtimes(target, opts.ModTime, opts.ModTime); err != nil {
			return target, n, fmt.Errorf("atomicio: set mtime on %s: %w", target, err)
		}
	}

	return target, n, nil
}

// mkdirAllWithFallback creates dir and its ancestors at mode 0755. If a
// regular file occupies a path component that needs to be a directory,
// it is renamed to "name.N" for the smallest free N in [1,999] and
// directory creation is retried, per spec §4.9.
func mkdirAllWithFallback(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err == nil {
		return nil
	}

	parts := strings.Split(filepath.ToSlash(dir), "/")
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}
	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = filepath.Join(cur, p)
		info, err := os.Stat(cur)
		if err != nil {
			if os.IsNotExist(err) {
				if mkErr := os.Mkdir(cur, 0755); mkErr != nil {
					return mkErr
				}
				continue
			}
			return err
		}
		if info.IsDir() {
			continue
		}
		if _, err := renameToFreeSlot(cur); err != nil {
			return err
		}
		if err := os.Mkdir(cur, 0755); err != nil {
			return err
		}
	}
	return nil
}

// renameToFreeSlot renames path to "path.N" for the smallest free
// N ∈ [1,999], returning the new name.
func renameToFreeSlot(path string) (string, error) {
	for n := 1; n <= 999; n++ {
		candidate := fmt.Sprintf("%s.%d", path, n)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			if err := os.Rename(path, candidate); err != nil {
				return "", err
			}
			return candidate, nil
		}
	}
	return "", fmt.Errorf("atomicio: no free backup slot for %s", path)
}

// rotateBackups shifts name.i to name.i+1 for i in [backups-1 .. 1], then
// name to name.1, freeing name for the new write. A backups count of 0
// disables rotation (the existing file, if any, is simply overwritten).
func rotateBackups(path string, backups int) error {
	if backups <= 0 {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	top := fmt.Sprintf("%s.%d", path, backups)
	if _, err := os.Stat(top); err == nil {
		os.Remove(top)
	}
	for i := backups - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", path, i)
		to := fmt.Sprintf("%s.%d", path, i+1)
		if _, err := os.Stat(from); err == nil {
			if err := os.Rename(from, to); err != nil {
				return fmt.Errorf("atomicio: rotate %s to %s: %w", from, to, err)
			}
		}
	}
	return os.Rename(path, path+".1")
}

// createExclusiveWithFallback implements --no-clobber: attempt an
// exclusive create at path, and on EEXIST fall back to path.N for
// successive N.
func createExclusiveWithFallback(path string) (string, *os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err == nil {
		return path, f, nil
	}
	if !os.IsExist(err) {
		return "", nil, err
	}
	for n := 1; n <= 999; n++ {
		candidate := fmt.Sprintf("%s.%d", path, n)
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return candidate, f, nil
		}
		if !os.IsExist(err) {
			return "", nil, err
		}
	}
	return "", nil, fmt.Errorf("atomicio: no free no-clobber slot for %s", path)
}
