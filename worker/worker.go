package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/lukemcguire/retriever/atomicio"
	"github.com/lukemcguire/retriever/dedup"
	"github.com/lukemcguire/retriever/extract"
	"github.com/lukemcguire/retriever/framer"
	"github.com/lukemcguire/retriever/hostreg"
	"github.com/lukemcguire/retriever/netconn"
	"github.com/lukemcguire/retriever/queue"
	"github.com/lukemcguire/retriever/stats"
	"github.com/lukemcguire/retriever/store"
	"github.com/lukemcguire/retriever/urlutil"
	"github.com/lukemcguire/retriever/wireproto"
)

// Deps bundles the shared collaborators every Worker reads or writes,
// per spec §9's "explicit Context threaded through all APIs" resolution
// of the source's process-wide singletons.
type Deps struct {
	Pool        *netconn.Pool
	Cookies     *store.CookieJar
	HSTS        *store.HSTSDB
	RateLimiter *HostRateLimiter
	Quota       *atomicio.Quota
	SpiderETags *dedup.KnownURLs // nil disables ETag-based spider dedup

	// AllowsName implements spec §4.6 item 8's post-download accept/reject
	// filename gate (policy.Filter.AllowsName): nil allows every name. A
	// rejected name still feeds extractLinks — only the disk write is
	// skipped — so link-bearing pages keep recursion alive even when the
	// page itself doesn't match the accept/reject lists.
	AllowsName func(name string) bool

	// Throttled reports whether the engine's memory watcher currently sees
	// heap usage at ThrottleCritical. nil never throttles. Checked at the
	// same admission point as Quota, but unlike a quota stop (permanent for
	// the rest of the run once the limit is crossed) this is sampled fresh
	// per job, since heap pressure can fall back below the critical mark
	// once in-flight bodies finish draining.
	Throttled func() bool
}

// ResolvedLink is one candidate discovered while processing a job: the
// span resolved to an absolute URL string, ready for the engine's
// recursion filter (policy.Filter.Evaluate builds the Candidate from it).
type ResolvedLink struct {
	Absolute string
	IsHref   bool // false for src-style spans (page-requisites leaf rule)
}

// Outcome reports everything the engine needs to decide what happens
// next for a job: whether it is finished, needs a redirect re-filter,
// or — for a robots job — needs to release deferred jobs.
type Outcome struct {
	StatusCode   int
	BytesWritten int64
	LocalPath    string
	Links        []ResolvedLink

	RedirectTo    string // absolute URL, set on 3xx with Location
	RedirectDepth int

	IsRobotsJob  bool
	RobotsStatus int
	RobotsBody   []byte

	Skipped bool // HEAD probe or ETag dedup ended the job without a GET
	Done    bool // true once no further attempt will be made

	Err      error
	Category stats.ErrorCategory
}

// Worker is the per-goroutine state machine from spec §4.7: it claims no
// state of its own across jobs except a cached connection (via the
// shared netconn.Pool) and per-origin (scheme, host, port) auth bookkeeping.
type Worker struct {
	ID   int
	Cfg  Config
	Deps Deps

	authMu    sync.Mutex
	authByKey map[netconn.Key]*authState
}

// New returns a Worker ready to process jobs.
func New(id int, cfg Config, deps Deps) *Worker {
	return &Worker{ID: id, Cfg: cfg, Deps: deps, authByKey: make(map[netconn.Key]*authState)}
}

func (w *Worker) authStateFor(key netconn.Key) *authState {
	w.authMu.Lock()
	defer w.authMu.Unlock()
	a, ok := w.authByKey[key]
	if !ok {
		a = newAuthState()
		w.authByKey[key] = a
	}
	return a
}

// Process runs one job to completion (including the retry loop), per
// spec §4.7's Idle -> Claimed -> Probing? -> Fetching -> Parsing ->
// Completing/Retrying state machine.
func (w *Worker) Process(ctx context.Context, j *queue.Job) Outcome {
	if w.Deps.Quota != nil && w.Deps.Quota.Limit > 0 && w.Deps.Quota.Delivered() >= w.Deps.Quota.Limit {
		return Outcome{Done: true, Err: fmt.Errorf("worker: quota exceeded"), Category: stats.CategoryQuotaExceeded}
	}
	if w.Deps.Throttled != nil && w.Deps.Throttled() {
		return Outcome{Done: true, Err: fmt.Errorf("worker: memory throttled"), Category: stats.CategoryMemoryThrottled}
	}

	isRobots := hostreg.IsRobotsPath(j.URL.Path)
	if j.HeadFirst && !isRobots {
		if skip, out := w.probe(ctx, j); skip {
			return out
		}
	}

	tries := w.Cfg.Tries
	if tries <= 0 {
		tries = 1
	}

	var last Outcome
	for attempt := 1; attempt <= tries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				last.Err = ctx.Err()
				last.Done = true
				return last
			case <-time.After(backoffDelay(attempt-1, w.Cfg.WaitRetry)):
			}
		}
		if d := waitBeforeRequest(w.Cfg.Wait, w.Cfg.RandomWait); d > 0 {
			select {
			case <-ctx.Done():
				last.Err = ctx.Err()
				last.Done = true
				return last
			case <-time.After(d):
			}
		}

		out := w.attempt(ctx, j, isRobots, "GET")
		last = out
		if out.Done || !shouldRetry(out.Category) {
			last.Done = true
			return last
		}
	}
	last.Done = true
	return last
}

// probe issues a HEAD request to classify Content-Type before committing
// to a GET, per spec §4.7's spider/HEAD-probe rule: an unrecognized
// Content-Type, or a previously-seen ETag, ends the job without a GET.
func (w *Worker) probe(ctx context.Context, j *queue.Job) (skip bool, out Outcome) {
	head := w.attempt(ctx, j, false, "HEAD")
	if head.Err != nil {
		return false, Outcome{}
	}
	return head.Skipped, head
}

// attempt performs exactly one request/response cycle: dial-or-reuse,
// emit the request, frame the response, and (for GET) deliver and parse
// the body. It does not retry; Process owns the retry loop.
func (w *Worker) attempt(ctx context.Context, j *queue.Job, isRobots bool, method string) Outcome {
	u := j.URL
	if w.Deps.HSTS != nil && u.Scheme == "http" && w.Deps.HSTS.HostMatch(u.Host) {
		u.Scheme = "https"
		u.Port = 443
	}

	if w.Deps.RateLimiter != nil {
		if err := w.Deps.RateLimiter.Wait(ctx, u.Host); err != nil {
			return Outcome{Err: err, Category: stats.CategoryTransient}
		}
	}

	key := netconn.Key{Scheme: u.Scheme, Host: u.Host, Port: u.Port}
	conn, err := w.Deps.Pool.Get(ctx, key)
	if err != nil {
		return Outcome{Err: err, Category: classify(err, 0)}
	}

	start := time.Now()
	req := w.buildRequest(j, u, method, nil)
	if _, err := req.WriteTo(conn); err != nil {
		w.Deps.Pool.Drop(conn)
		return Outcome{Err: err, Category: classify(err, 0)}
	}

	resp, prefix, err := framer.ReadResponseHead(conn)
	if err != nil {
		w.Deps.Pool.Drop(conn)
		return Outcome{Err: err, Category: classify(err, 0)}
	}

	if w.Deps.RateLimiter != nil {
		w.Deps.RateLimiter.ObserveRTT(u.Host, time.Since(start))
	}

	// A 401 challenge is handled before the generic dispatch below because
	// retryWithAuth owns the original connection's lifecycle itself (it
	// dials a second connection for the retry); routing it through the
	// shared Put/Drop tail here would double-close the original conn.
	if resp.StatusCode == 401 && w.Cfg.HTTPUser != "" && method != "HEAD" {
		return w.retryWithAuth(ctx, j, u, conn, resp, prefix, method)
	}

	out := w.handleResponse(ctx, j, u, conn, resp, prefix, method, isRobots)
	out.StatusCode = resp.StatusCode

	if keepAliveOK(resp) {
		w.Deps.Pool.Put(conn)
	} else {
		w.Deps.Pool.Drop(conn)
	}
	return out
}

func keepAliveOK(resp *framer.Response) bool {
	if conn, ok := resp.Get("Connection"); ok {
		if wireproto.IsClose(conn) {
			return false
		}
		if resp.Major == 1 && resp.Minor == 1 {
			return true
		}
		return wireproto.IsKeepAlive(conn)
	}
	return resp.Major == 1 && resp.Minor == 1
}

// buildRequest assembles the outgoing Request, adding conditional,
// cookie, auth, and range headers per the worker's current config.
func (w *Worker) buildRequest(j *queue.Job, u urlutil.Canonical, method string, rng *queue.Part) framer.Request {
	var headers wireproto.Params
	headers.Set("User-Agent", orDefault(w.Cfg.UserAgent, "retriever/1.0"))
	headers.Set("Accept", "*/*")
	headers.Set("Accept-Encoding", "identity, gzip, deflate")
	if !w.Cfg.KeepAlive {
		headers.Set("Connection", "close")
	} else {
		headers.Set("Connection", "keep-alive")
	}
	if w.Cfg.NoCache {
		headers.Set("Cache-Control", "no-cache")
	}
	if w.Cfg.Referer != "" {
		headers.Set("Referer", w.Cfg.Referer)
	} else if j.RefererURL != "" {
		headers.Set("Referer", j.RefererURL)
	}
	for _, h := range w.Cfg.Headers {
		headers.Set(h.Name, h.Value)
	}
	if w.Deps.Cookies != nil {
		if c := w.Deps.Cookies.RequestHeaderFor(u); c != "" {
			headers.Set("Cookie", c)
		}
	}
	if rng != nil {
		headers.Set("Range", fmt.Sprintf("bytes=%d-%d", rng.Offset, rng.Offset+rng.Length-1))
	}

	path := u.Path
	if u.Query != "" {
		path += "?" + u.Query
	}
	return framer.Request{
		Method:      method,
		Scheme:      u.Scheme,
		EscapedHost: escapedHost(u),
		EscapedPath: path,
		Headers:     headers,
	}
}

func escapedHost(u urlutil.Canonical) string {
	defaultPort := map[string]int{"http": 80, "https": 443}[u.Scheme]
	if u.Port == defaultPort {
		return u.Host
	}
	return fmt.Sprintf("%s:%d", u.Host, u.Port)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// handleResponse dispatches on status code and, for a normal 200/206,
// drives body delivery, extraction, and disk save.
func (w *Worker) handleResponse(ctx context.Context, j *queue.Job, u urlutil.Canonical, conn *netconn.Conn, resp *framer.Response, prefix []byte, method string, isRobots bool) Outcome {
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return w.handleRedirect(ctx, resp, prefix, conn, j, method)
	case method == "HEAD":
		return w.handleHeadProbe(ctx, resp, prefix, conn, j)
	case resp.StatusCode == 304:
		return w.handleNotModified(ctx, resp, prefix, conn, j, method)
	case resp.StatusCode >= 400:
		drainAndDiscard(ctx, method, resp, prefix, conn)
		cat := stats.CategoryHTTPClient
		if resp.StatusCode >= 500 {
			cat = stats.CategoryTransient
		}
		return Outcome{Err: fmt.Errorf("worker: http status %d", resp.StatusCode), Category: cat}
	default:
		if isRobots {
			return w.handleRobotsBody(ctx, resp, prefix, conn, method)
		}
		return w.handleBody(ctx, j, u, resp, prefix, conn, method)
	}
}

// drainAndDiscard reads and throws away a response body that the caller
// has already decided not to use (redirects, probes, error statuses).
// method is the request method that produced resp — DetermineBodyMode
// needs it to frame a HEAD response correctly.
func drainAndDiscard(ctx context.Context, method string, resp *framer.Response, prefix []byte, r io.Reader) {
	mode, length := framer.DetermineBodyMode(method, resp)
	_, _ = framer.DeliverBody(ctx, r, prefix, mode, length, io.Discard)
}

func (w *Worker) handleRedirect(ctx context.Context, resp *framer.Response, prefix []byte, conn *netconn.Conn, j *queue.Job, method string) Outcome {
	loc, _ := resp.Get("Location")
	loc = strings.TrimSpace(loc)
	drainAndDiscard(ctx, method, resp, prefix, conn)
	if loc == "" {
		return Outcome{Err: fmt.Errorf("worker: redirect with no Location"), Category: stats.CategoryPermanent, Done: true}
	}
	target, err := urlutil.ResolveReference(j.URL.String(), loc)
	if err != nil {
		return Outcome{Err: err, Category: stats.CategoryPermanent, Done: true}
	}
	return Outcome{RedirectTo: target, RedirectDepth: j.RedirectDepth + 1, Done: true}
}

func (w *Worker) handleHeadProbe(ctx context.Context, resp *framer.Response, prefix []byte, conn *netconn.Conn, j *queue.Job) Outcome {
	drainAndDiscard(ctx, "HEAD", resp, prefix, conn)

	ctHeader, _ := resp.Get("Content-Type")
	ct := wireproto.ParseContentType(ctHeader)
	_, recognized := extract.ForContentType(ct.String())
	if j.IsSitemap {
		recognized = true
	}
	if !recognized {
		return Outcome{Skipped: true, Done: true}
	}

	if etagHdr, ok := resp.Get("ETag"); ok && w.Deps.SpiderETags != nil {
		if !w.Deps.SpiderETags.InsertIfNew(j.URL.Key() + "|" + etagHdr) {
			return Outcome{Skipped: true, Done: true}
		}
	}
	return Outcome{Skipped: false}
}

func (w *Worker) handleNotModified(ctx context.Context, resp *framer.Response, prefix []byte, conn *netconn.Conn, j *queue.Job, method string) Outcome {
	drainAndDiscard(ctx, method, resp, prefix, conn)

	if j.LocalPath == "" {
		return Outcome{Done: true}
	}
	data, err := os.ReadFile(j.LocalPath)
	if err != nil {
		return Outcome{Done: true}
	}
	links := w.extractLinks(j, data, "")
	return Outcome{Links: links, Done: true}
}

func (w *Worker) handleRobotsBody(ctx context.Context, resp *framer.Response, prefix []byte, conn *netconn.Conn, method string) Outcome {
	var buf bytes.Buffer
	ctHeader, _ := resp.Get("Content-Encoding")
	enc := wireproto.ParseContentEncoding(ctHeader)
	decomp, err := framer.NewDecompressor(enc, &buf)
	if err != nil {
		return Outcome{Err: err, Category: stats.CategoryPermanent, Done: true}
	}
	mode, length := framer.DetermineBodyMode(method, resp)
	if _, err := framer.DeliverBody(ctx, conn, prefix, mode, length, decomp); err != nil {
		return Outcome{Err: err, Category: classify(err, 0)}
	}
	if err := decomp.Close(); err != nil {
		return Outcome{Err: err, Category: stats.CategoryBodyFraming}
	}
	return Outcome{IsRobotsJob: true, RobotsStatus: resp.StatusCode, RobotsBody: buf.Bytes(), Done: true}
}

// handleBody decodes, saves (unless spider/delete-after), and extracts
// links from a 200/206 response body, per spec §2's data-flow: decoded
// bytes feed both the atomic writer and the extractor dispatch.
func (w *Worker) handleBody(ctx context.Context, j *queue.Job, u urlutil.Canonical, resp *framer.Response, prefix []byte, conn *netconn.Conn, method string) Outcome {
	encHeader, _ := resp.Get("Content-Encoding")
	enc := wireproto.ParseContentEncoding(encHeader)

	var buf bytes.Buffer
	decomp, err := framer.NewDecompressor(enc, &buf)
	if err != nil {
		return Outcome{Err: err, Category: stats.CategoryPermanent}
	}
	mode, length := framer.DetermineBodyMode(method, resp)
	n, err := framer.DeliverBody(ctx, conn, prefix, mode, length, decomp)
	if err != nil {
		return Outcome{Err: err, Category: classify(err, 0)}
	}
	if err := decomp.Close(); err != nil {
		return Outcome{Err: err, Category: stats.CategoryBodyFraming}
	}

	if w.Deps.Cookies != nil {
		w.storeCookies(u, resp)
	}
	if w.Deps.HSTS != nil && u.Scheme == "https" {
		w.storeHSTS(u, resp)
	}

	body := buf.Bytes()
	ctHeader, _ := resp.Get("Content-Type")
	ct := wireproto.ParseContentType(ctHeader)

	var written int64
	localPath := j.LocalPath
	if localPath != "" && w.Deps.AllowsName != nil && !w.Deps.AllowsName(path.Base(localPath)) {
		localPath = ""
	}
	if localPath != "" {
		opts := atomicio.Options{Quota: w.Deps.Quota}
		if resp.StatusCode == 206 {
			opts.Mode = atomicio.ModeAppend
		}
		if lm, ok := resp.Get("Last-Modified"); ok && resp.StatusCode == 200 {
			if t := wireproto.ParseDate(lm); t > 0 {
				opts.SetModTime = true
				opts.ModTime = time.Unix(t, 0).UTC()
			}
		}
		finalPath, nw, werr := atomicio.Save(localPath, bytes.NewReader(body), opts)
		written = nw
		if werr != nil {
			return Outcome{Err: werr, Category: stats.CategoryFilesystem, BytesWritten: written}
		}
		localPath = finalPath
	} else if w.Deps.Quota != nil {
		w.Deps.Quota.Add(n)
	}

	links := w.extractLinks(j, body, ct.String())
	return Outcome{BytesWritten: written, LocalPath: localPath, Links: links}
}

func (w *Worker) storeCookies(u urlutil.Canonical, resp *framer.Response) {
	var cookies []wireproto.Cookie
	for _, raw := range resp.GetAll("Set-Cookie") {
		if c, ok := wireproto.ParseSetCookie(raw); ok {
			cookies = append(cookies, c)
		}
	}
	if len(cookies) == 0 {
		return
	}
	w.Deps.Cookies.Store(w.Deps.Cookies.Normalize(u, cookies))
}

func (w *Worker) storeHSTS(u urlutil.Canonical, resp *framer.Response) {
	hdr, ok := resp.Get("Strict-Transport-Security")
	if !ok {
		return
	}
	directive, ok := wireproto.ParseHSTS(hdr)
	if !ok {
		return
	}
	w.Deps.HSTS.Add(u.Host, directive.MaxAge, directive.IncludeSubDomains)
}

// extractLinks dispatches body to the registered extractor for mime (or
// the job's forced sitemap extractor), resolving each span against the
// base URL (the first <base href> span wins) and applying the
// page-requisites leaf rule via IsHref.
func (w *Worker) extractLinks(j *queue.Job, body []byte, mime string) []ResolvedLink {
	var ex extract.Extractor
	if j.IsSitemap {
		ex = extract.SitemapExtractor{}
	} else {
		var ok bool
		ex, ok = extract.ForContentType(mime)
		if !ok {
			return nil
		}
	}

	spans, err := ex.Extract(body, "")
	if err != nil {
		return nil
	}

	base := j.URL.String()
	baseSeen := false
	var out []ResolvedLink
	for _, s := range spans {
		if s.Tag == "base" {
			if !baseSeen {
				baseSeen = true
				if resolved, err := urlutil.ResolveReference(base, s.Text); err == nil {
					base = resolved
				}
			}
			continue
		}
		abs, err := urlutil.ResolveReference(base, s.Text)
		if err != nil {
			continue
		}
		out = append(out, ResolvedLink{Absolute: abs, IsHref: !s.IsSrc})
	}
	return out
}

// retryWithAuth computes credentials for the strongest challenge in a
// 401 response and re-issues the same request once, per spec §4.7.
func (w *Worker) retryWithAuth(ctx context.Context, j *queue.Job, u urlutil.Canonical, conn *netconn.Conn, resp *framer.Response, prefix []byte, method string) Outcome {
	drainAndDiscard(ctx, method, resp, prefix, conn)
	w.Deps.Pool.Drop(conn)

	challengeHdr, _ := resp.Get("WWW-Authenticate")
	challenges := wireproto.ParseWWWAuthenticate(challengeHdr)
	key := netconn.Key{Scheme: u.Scheme, Host: u.Host, Port: u.Port}
	path := u.Path
	if u.Query != "" {
		path += "?" + u.Query
	}
	authHeader, ok := BuildAuthorization(challenges, method, path, w.Cfg.HTTPUser, w.Cfg.HTTPPassword, w.authStateFor(key))
	if !ok {
		return Outcome{Err: fmt.Errorf("worker: no usable auth challenge"), Category: stats.CategoryHTTPClient, Done: true}
	}

	newConn, err := w.Deps.Pool.Get(ctx, key)
	if err != nil {
		return Outcome{Err: err, Category: classify(err, 0)}
	}
	req := w.buildRequest(j, u, method, nil)
	req.Headers.Set("Authorization", authHeader)
	if _, err := req.WriteTo(newConn); err != nil {
		w.Deps.Pool.Drop(newConn)
		return Outcome{Err: err, Category: classify(err, 0)}
	}
	retryResp, retryPrefix, err := framer.ReadResponseHead(newConn)
	if err != nil {
		w.Deps.Pool.Drop(newConn)
		return Outcome{Err: err, Category: classify(err, 0)}
	}
	out := w.handleResponse(ctx, j, u, newConn, retryResp, retryPrefix, method, false)
	out.StatusCode = retryResp.StatusCode
	if keepAliveOK(retryResp) {
		w.Deps.Pool.Put(newConn)
	} else {
		w.Deps.Pool.Drop(newConn)
	}
	out.Done = true
	return out
}
