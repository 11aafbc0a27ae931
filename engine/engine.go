// Package engine is the top-level coordinator from spec §2's data flow:
// it wires the job queue, recursion filter, worker pool, dedup store,
// host registry, and cookie/HSTS persistence into one running crawl.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lukemcguire/retriever/atomicio"
	"github.com/lukemcguire/retriever/dedup"
	"github.com/lukemcguire/retriever/fsnames"
	"github.com/lukemcguire/retriever/hostreg"
	"github.com/lukemcguire/retriever/netconn"
	"github.com/lukemcguire/retriever/policy"
	"github.com/lukemcguire/retriever/queue"
	"github.com/lukemcguire/retriever/stats"
	"github.com/lukemcguire/retriever/store"
	"github.com/lukemcguire/retriever/urlutil"
	"github.com/lukemcguire/retriever/worker"
)

// Config aggregates every subsystem's flag set, one field group per
// spec §6 CLI category this coordinator is responsible for wiring.
type Config struct {
	StartURLs []string

	Policy policy.Config
	Naming fsnames.Config
	Worker worker.Config

	RobotsEnabled bool
	Concurrency   int

	UseBloom          bool
	BloomExpectedURLs uint
	BloomFPRate       float64

	SpiderETagDedup bool

	CookieFile string
	HSTSFile   string

	QuotaBytes    int64
	MemoryLimitMB int64

	RateInitialRPS int
	RateTargetRTT  time.Duration
	FixedRateRPS   int

	HTTPProxies  []string
	HTTPSProxies []string
	DialTimeout  time.Duration
}

// Engine runs one crawl: seed URLs enter the recursion filter, accepted
// candidates become queue jobs, a worker pool drains the queue, and every
// link a worker discovers re-enters the filter until nothing is left.
type Engine struct {
	cfg Config

	queue       *queue.Queue
	filter      *policy.Filter
	hosts       *hostreg.Registry
	blacklist   *dedup.Blacklist
	spiderETags *dedup.KnownURLs

	cookies *store.CookieJar
	hstsdb  *store.HSTSDB

	pool        *netconn.Pool
	rateLimiter *worker.HostRateLimiter
	quota       *atomicio.Quota
	memWatcher  *atomicio.MemoryWatcher
	throttled   atomic.Bool

	stats *stats.Counters

	events chan Event
}

// New builds every subsystem from cfg and loads any persisted cookie/HSTS
// state before the first job is seeded.
func New(cfg Config) (*Engine, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	var blacklistSet dedup.Set
	if cfg.UseBloom {
		expected := cfg.BloomExpectedURLs
		if expected == 0 {
			expected = 100000
		}
		fpRate := cfg.BloomFPRate
		if fpRate <= 0 {
			fpRate = 0.01
		}
		bt, err := dedup.NewBloomTracker(expected, fpRate)
		if err != nil {
			return nil, fmt.Errorf("engine: bloom tracker: %w", err)
		}
		blacklistSet = bt
	}
	var blacklist *dedup.Blacklist
	if blacklistSet != nil {
		blacklist = dedup.NewBlacklistWithSet(blacklistSet)
	} else {
		blacklist = dedup.NewBlacklist()
	}

	hosts := hostreg.New(cfg.RobotsEnabled)

	cookies := store.NewCookieJar()
	if cfg.CookieFile != "" {
		if err := cookies.Load(cfg.CookieFile); err != nil {
			return nil, fmt.Errorf("engine: load cookie jar: %w", err)
		}
	}
	hstsdb := store.NewHSTSDB()
	if cfg.HSTSFile != "" {
		if err := hstsdb.Load(cfg.HSTSFile); err != nil {
			return nil, fmt.Errorf("engine: load HSTS database: %w", err)
		}
	}

	proxyPool, err := netconn.NewProxyPool(cfg.HTTPProxies, cfg.HTTPSProxies)
	if err != nil {
		return nil, fmt.Errorf("engine: proxy list: %w", err)
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}
	pool := netconn.NewPool(netconn.NewDialer(dialTimeout), proxyPool)

	rateLimiter := worker.NewHostRateLimiter(cfg.RateInitialRPS, cfg.RateTargetRTT)
	if cfg.FixedRateRPS > 0 {
		rateLimiter.SetFixedRate(cfg.FixedRateRPS)
	}

	var memWatcher *atomicio.MemoryWatcher
	if cfg.MemoryLimitMB > 0 {
		memWatcher = atomicio.NewMemoryWatcher(cfg.MemoryLimitMB)
	}

	var spiderETags *dedup.KnownURLs
	if cfg.SpiderETagDedup {
		spiderETags = dedup.NewKnownURLs()
	}

	e := &Engine{
		cfg:         cfg,
		queue:       queue.New(),
		hosts:       hosts,
		blacklist:   blacklist,
		spiderETags: spiderETags,
		cookies:     cookies,
		hstsdb:      hstsdb,
		pool:        pool,
		rateLimiter: rateLimiter,
		quota:       &atomicio.Quota{Limit: cfg.QuotaBytes},
		memWatcher:  memWatcher,
		stats:       stats.New(time.Now()),
		events:      make(chan Event, 256),
	}
	e.filter = policy.New(cfg.Policy, blacklist, hosts)
	if e.memWatcher != nil {
		e.memWatcher.SetThrottleCallback(e.onThrottleChange)
	}
	return e, nil
}

// onThrottleChange is the memory watcher's callback: it flips the flag
// workers consult at job admission and emits a dashboard event, so a
// throttle transition is visible the moment it happens rather than only
// inferable from a run of memory_throttled job failures.
func (e *Engine) onThrottleChange(level atomicio.ThrottleLevel) {
	e.throttled.Store(level == atomicio.ThrottleCritical)
	e.emit(Event{Kind: EventThrottled, Reason: level.String()})
}

// isThrottled reports the engine's current memory-pressure gate, sampled
// by each worker before claiming a job.
func (e *Engine) isThrottled() bool {
	return e.throttled.Load()
}

// Events returns the channel the TUI reads progress notifications from.
// It is closed once Run returns, so a range loop terminates naturally.
func (e *Engine) Events() <-chan Event { return e.events }

// MemoryWatcher exposes the heap-pressure monitor so a caller can read
// the current usedPercent/level directly (e.g. for a dashboard readout)
// without waiting on the next EventThrottled transition. Run already
// drives Check itself; nil before --memory-limit is set.
func (e *Engine) MemoryWatcher() *atomicio.MemoryWatcher { return e.memWatcher }

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default: // dashboard fell behind; drop rather than block a worker
	}
}

// Run seeds the queue from cfg.StartURLs, drains it with cfg.Concurrency
// worker goroutines, and blocks until every job — including every job a
// worker discovers along the way — has been processed or ctx is canceled.
func (e *Engine) Run(ctx context.Context) (stats.Snapshot, error) {
	defer close(e.events)
	defer e.pool.CloseAll()
	defer e.blacklist.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			e.queue.Terminate()
		case <-stop:
		}
	}()

	if e.memWatcher != nil {
		go e.pollMemory(ctx, stop)
	}

	for _, raw := range e.cfg.StartURLs {
		u, err := urlutil.Parse(raw)
		if err != nil {
			e.stats.RecordFailure(stats.CategoryPermanent)
			e.emit(Event{Kind: EventRejected, URL: raw, Reason: err.Error()})
			continue
		}
		e.admit(u, urlutil.Canonical{}, u.Host, 0, 0, false)
	}
	e.queue.DoneProducing()

	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.Concurrency; i++ {
		id := i
		w := worker.New(id, e.cfg.Worker, worker.Deps{
			Pool:        e.pool,
			Cookies:     e.cookies,
			HSTS:        e.hstsdb,
			RateLimiter: e.rateLimiter,
			Quota:       e.quota,
			SpiderETags: e.spiderETags,
			AllowsName:  e.filter.AllowsName,
			Throttled:   e.isThrottled,
		})
		group.Go(func() error {
			e.runWorker(gctx, w)
			return nil
		})
	}
	_ = group.Wait()

	e.queue.Free()

	if e.cfg.CookieFile != "" {
		if err := e.cookies.Save(e.cfg.CookieFile); err != nil {
			return e.stats.Snapshot(time.Now()), fmt.Errorf("engine: save cookie jar: %w", err)
		}
	}
	if e.cfg.HSTSFile != "" {
		if err := e.hstsdb.Save(e.cfg.HSTSFile); err != nil {
			return e.stats.Snapshot(time.Now()), fmt.Errorf("engine: save HSTS database: %w", err)
		}
	}

	return e.stats.Snapshot(time.Now()), nil
}

// pollMemory samples the memory watcher on a fixed tick for the life of
// the run. Check's own callback is what actually flips the throttle
// gate; this loop only exists to keep calling Check; the watcher has no
// way to sample itself without something driving it.
func (e *Engine) pollMemory(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.memWatcher.Check()
		case <-ctx.Done():
			return
		case <-stop:
			return
		}
	}
}

func (e *Engine) runWorker(ctx context.Context, w *worker.Worker) {
	for {
		j, ok := e.queue.Get()
		if !ok {
			return
		}
		e.processJob(ctx, w, j)
	}
}

// processJob runs one claimed job to completion and re-files whatever it
// produces: a redirect target, a resolved robots.txt (releasing deferred
// jobs for that host), or a page's extracted links.
func (e *Engine) processJob(ctx context.Context, w *worker.Worker, j *queue.Job) {
	if j.Metalink != nil {
		e.processMetalinkPart(ctx, w, j)
		return
	}

	out := w.Process(ctx, j)
	e.emit(Event{Kind: EventFetched, URL: j.URL.String(), Status: out.StatusCode})

	switch {
	case out.Err != nil:
		e.stats.RecordFailure(out.Category)
	case !out.Skipped:
		e.stats.RecordSuccess(out.BytesWritten)
	}

	if out.IsRobotsJob {
		released, sitemaps := e.hosts.ResolveRobots(j.URL.Host, out.RobotsStatus, out.RobotsBody)
		for _, rj := range released {
			e.queue.Add(rj)
		}
		for _, sm := range sitemaps {
			if u, err := urlutil.Parse(sm); err == nil {
				e.admit(u, j.URL, j.HostKey, 0, j.RecursionDepth, false)
			}
		}
		e.queue.Remove(j)
		return
	}

	if out.RedirectTo != "" {
		if u, err := urlutil.Parse(out.RedirectTo); err == nil {
			e.admit(u, j.URL, j.HostKey, out.RedirectDepth, j.RecursionDepth, false)
		}
		e.queue.Remove(j)
		return
	}

	for _, link := range out.Links {
		if !e.filter.AllowsHrefAtDepth(j.RecursionDepth, link.IsHref) {
			continue
		}
		u, err := urlutil.Parse(link.Absolute)
		if err != nil {
			continue
		}
		e.admit(u, j.URL, j.HostKey, 0, j.RecursionDepth+1, link.IsHref)
	}

	e.queue.Remove(j)
}

// admit runs a discovered URL through the recursion filter and, on
// acceptance, materializes its local path and enqueues the resulting job.
func (e *Engine) admit(u urlutil.Canonical, parent urlutil.Canonical, originHost string, redirectDepth, recursionDepth int, isHref bool) {
	cand := policy.Candidate{
		URL:            u,
		Parent:         parent,
		OriginHost:     originHost,
		RedirectDepth:  redirectDepth,
		RecursionDepth: recursionDepth,
		IsPageReq:      !isHref,
	}
	ok, reason := e.filter.Evaluate(cand)
	if !ok {
		e.emit(Event{Kind: EventRejected, URL: u.String(), Reason: reason.String()})
		return
	}

	localPath, _ := fsnames.Materialize(u, e.cfg.Naming)

	j := &queue.Job{
		URL:            u,
		RefererURL:     parent.String(),
		RedirectDepth:  redirectDepth,
		RecursionDepth: recursionDepth,
		LocalPath:      localPath,
		HeadFirst:      e.cfg.Worker.Spider,
		HostKey:        originHost,
	}
	e.enqueueJob(j)
}

// enqueueJob synthesizes a robots.txt job the first time a host is seen
// and defers j (and every other job for that host) until the robots
// fetch resolves, per spec §4.10.
func (e *Engine) enqueueJob(j *queue.Job) {
	host := j.URL.Host
	if !hostreg.IsRobotsPath(j.URL.Path) {
		if _, needsRobotsJob := e.hosts.EnsureHost(host); needsRobotsJob {
			e.enqueueRobotsJob(host, j.URL.Scheme)
		}
		if e.hosts.IsPending(host) {
			e.hosts.Defer(host, j)
			return
		}
	}
	e.queue.Add(j)
	e.emit(Event{Kind: EventEnqueued, URL: j.URL.String()})
}

func (e *Engine) enqueueRobotsJob(host, scheme string) {
	u, err := urlutil.Parse(hostreg.RobotsURL(scheme, host))
	if err != nil {
		return
	}
	e.queue.Add(&queue.Job{URL: u, HostKey: host})
}
