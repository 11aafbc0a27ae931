package worker

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/lukemcguire/retriever/framer"
	"github.com/lukemcguire/retriever/netconn"
	"github.com/lukemcguire/retriever/queue"
	"github.com/lukemcguire/retriever/stats"
	"github.com/lukemcguire/retriever/wireproto"
)

// PartOutcome reports the result of fetching one metalink part.
type PartOutcome struct {
	Part     *queue.Part
	Bytes    int64
	AllDone  bool
	Err      error
	Category stats.ErrorCategory
}

// FetchPart downloads one byte range of j's metalink via a conditional
// Range request and writes it at its offset in j.LocalPath, per spec
// §4.9's chunked-parallel-download supplement: parts are independent
// byte ranges of the same target file, claimed and released through the
// shared queue so a failed part can be retried by another worker.
func (w *Worker) FetchPart(ctx context.Context, q *queue.Queue, j *queue.Job, p *queue.Part) PartOutcome {
	u := j.URL
	key := netconn.Key{Scheme: u.Scheme, Host: u.Host, Port: u.Port}

	if w.Deps.RateLimiter != nil {
		if err := w.Deps.RateLimiter.Wait(ctx, u.Host); err != nil {
			q.ReleasePart(p)
			return PartOutcome{Part: p, Err: err, Category: stats.CategoryTransient}
		}
	}

	conn, err := w.Deps.Pool.Get(ctx, key)
	if err != nil {
		q.ReleasePart(p)
		return PartOutcome{Part: p, Err: err, Category: classify(err, 0)}
	}

	req := w.buildRequest(j, u, "GET", p)
	if _, err := req.WriteTo(conn); err != nil {
		w.Deps.Pool.Drop(conn)
		q.ReleasePart(p)
		return PartOutcome{Part: p, Err: err, Category: classify(err, 0)}
	}

	resp, prefix, err := framer.ReadResponseHead(conn)
	if err != nil {
		w.Deps.Pool.Drop(conn)
		q.ReleasePart(p)
		return PartOutcome{Part: p, Err: err, Category: classify(err, 0)}
	}

	if resp.StatusCode != 206 && resp.StatusCode != 200 {
		drainAndDiscard(ctx, "GET", resp, prefix, conn)
		w.Deps.Pool.Drop(conn)
		q.ReleasePart(p)
		cat := stats.CategoryHTTPClient
		if resp.StatusCode >= 500 {
			cat = stats.CategoryTransient
		}
		return PartOutcome{Part: p, Err: fmt.Errorf("worker: part fetch status %d", resp.StatusCode), Category: cat}
	}

	n, err := writePartAt(j.LocalPath, p.Offset, resp, prefix, conn, "GET")
	if keepAliveOK(resp) {
		w.Deps.Pool.Put(conn)
	} else {
		w.Deps.Pool.Drop(conn)
	}
	if err != nil {
		q.ReleasePart(p)
		return PartOutcome{Part: p, Err: err, Category: stats.CategoryFilesystem}
	}

	allDone := q.CompletePart(j, p)
	return PartOutcome{Part: p, Bytes: n, AllDone: allDone}
}

// writePartAt streams resp's body (chunked or length-framed; metalink
// servers normally send identity-encoded ranges) to a positional write at
// offset in path, leaving the rest of the file untouched.
func writePartAt(path string, offset int64, resp *framer.Response, prefix []byte, conn io.Reader, method string) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return 0, fmt.Errorf("worker: open %s for part write: %w", path, err)
	}
	defer f.Close()

	mode, length := framer.DetermineBodyMode(method, resp)
	sink := &offsetWriter{f: f, offset: offset}
	return framer.DeliverBody(context.Background(), conn, prefix, mode, length, sink)
}

// offsetWriter adapts os.File.WriteAt to the push-style BodySink contract,
// advancing its own cursor so successive Write calls land contiguously
// starting at the part's offset.
type offsetWriter struct {
	f      *os.File
	offset int64
}

func (o *offsetWriter) Write(p []byte) (int, error) {
	n, err := o.f.WriteAt(p, o.offset)
	o.offset += int64(n)
	return n, err
}

// VerifyDigest recomputes the digest of the assembled file at path and
// compares it against expected (an RFC 3230 Digest header value), per
// spec §4.9's "digest verification on completion" rule. A digest whose
// algorithm this build does not recognize is treated as unverifiable,
// not as a failure (the file is kept).
func VerifyDigest(path, expected string) (ok bool, verifiable bool, err error) {
	digests := wireproto.ParseDigest(expected)
	if len(digests) == 0 {
		return false, false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, true, fmt.Errorf("worker: open %s for digest verification: %w", path, err)
	}
	defer f.Close()

	for _, d := range digests {
		h, recognized := hasherFor(d.Algorithm)
		if !recognized {
			continue
		}
		if _, err := io.Copy(h, f); err != nil {
			return false, true, fmt.Errorf("worker: hash %s: %w", path, err)
		}
		sum := h.Sum(nil)
		return digestMatches(d.Value, sum), true, nil
	}
	return false, false, nil
}

func hasherFor(algorithm string) (hash.Hash, bool) {
	switch strings.ToUpper(algorithm) {
	case "MD5":
		return md5.New(), true
	case "SHA", "SHA-1":
		return sha1.New(), true
	case "SHA-256":
		return sha256.New(), true
	default:
		return nil, false
	}
}

// digestMatches compares a base64 or hex encoded digest value against the
// computed sum, accepting either encoding since servers vary.
func digestMatches(value string, sum []byte) bool {
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && hex.EncodeToString(decoded) == hex.EncodeToString(sum) {
		return true
	}
	return strings.EqualFold(value, hex.EncodeToString(sum))
}
