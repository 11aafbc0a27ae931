// Package queue implements the job FIFO described in spec §4.4: a single
// mutex-guarded list plus two condition variables, workerCond signaled
// when work is added and mainCond signaled when a worker finishes a job.
package queue

import "github.com/lukemcguire/retriever/urlutil"

// Part is one byte range of a chunked parallel download, owned by its
// parent Job. Workers claim a part under the queue's mutex before
// downloading it independently of the job's other parts.
type Part struct {
	ID     int
	Offset int64
	Length int64
	Done   bool
	InUse  bool
}

// Metalink groups the parts of a chunked download and the digest used to
// verify the assembled file once every part completes.
type Metalink struct {
	Parts          []*Part
	ExpectedDigest string // empty when the server supplied no verifiable digest
}

// Job is one unit of recursion work: a URL that passed the recursion
// filter, plus the bookkeeping needed to process and re-filter it.
type Job struct {
	URL            urlutil.Canonical
	RefererURL     string
	RedirectDepth  int
	RecursionDepth int
	LocalPath      string
	HeadFirst      bool
	IsSitemap      bool
	HostKey        string
	Metalink       *Metalink

	next *Job // intrusive FIFO link, valid only while queued
}

// NewMetalinkParts splits a totalSize-byte download into chunkSize-byte
// parts (the last part taking the remainder), per spec §4.9's chunked
// parallel download supplement. chunkSize <= 0 yields a single part
// covering the whole file.
func NewMetalinkParts(totalSize, chunkSize int64) []*Part {
	if chunkSize <= 0 || chunkSize >= totalSize {
		return []*Part{{ID: 0, Offset: 0, Length: totalSize}}
	}
	var parts []*Part
	var offset int64
	for id := 0; offset < totalSize; id++ {
		length := chunkSize
		if remaining := totalSize - offset; remaining < length {
			length = remaining
		}
		parts = append(parts, &Part{ID: id, Offset: offset, Length: length})
		offset += length
	}
	return parts
}
