package engine

import (
	"context"
	"fmt"

	"github.com/lukemcguire/retriever/queue"
	"github.com/lukemcguire/retriever/stats"
	"github.com/lukemcguire/retriever/urlutil"
	"github.com/lukemcguire/retriever/worker"
)

// EnqueueMetalink admits u as a chunked parallel download of totalSize
// bytes split into chunkSize-byte parts, per spec §4.9's supplement: the
// same job is queued once per part so up to len(parts) workers can claim
// and fetch distinct byte ranges concurrently. expectedDigest is an
// RFC 3230 Digest header value checked once every part has landed.
func (e *Engine) EnqueueMetalink(raw, localPath string, totalSize, chunkSize int64, expectedDigest string) error {
	u, err := urlutil.Parse(raw)
	if err != nil {
		return fmt.Errorf("engine: metalink target: %w", err)
	}
	parts := queue.NewMetalinkParts(totalSize, chunkSize)
	j := &queue.Job{
		URL:       u,
		LocalPath: localPath,
		HostKey:   u.Host,
		Metalink:  &queue.Metalink{Parts: parts, ExpectedDigest: expectedDigest},
	}
	for range parts {
		e.queue.Add(j)
	}
	e.emit(Event{Kind: EventEnqueued, URL: raw})
	return nil
}

// processMetalinkPart claims and fetches exactly one part of j's
// metalink, verifying the assembled file's digest once the last part
// completes. One call corresponds to one of the len(parts) copies of j
// EnqueueMetalink placed on the queue.
func (e *Engine) processMetalinkPart(ctx context.Context, w *worker.Worker, j *queue.Job) {
	defer e.queue.Remove(j)

	p, ok := e.queue.ClaimPart(j)
	if !ok {
		return
	}

	out := w.FetchPart(ctx, e.queue, j, p)
	if out.Err != nil {
		e.stats.RecordFailure(out.Category)
		return
	}
	e.stats.RecordSuccess(out.Bytes)

	if !out.AllDone {
		return
	}
	if j.Metalink.ExpectedDigest == "" {
		e.emit(Event{Kind: EventFetched, URL: j.URL.String(), Status: 200})
		return
	}
	ok, verifiable, err := worker.VerifyDigest(j.LocalPath, j.Metalink.ExpectedDigest)
	if err != nil || (verifiable && !ok) {
		e.stats.RecordFailure(stats.CategoryFilesystem)
		return
	}
	e.emit(Event{Kind: EventFetched, URL: j.URL.String(), Status: 200})
}
