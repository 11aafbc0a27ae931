package worker

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate-limiter tuning constants, adapted from the teacher's
// AdaptiveLimiter (crawler/ratelimit.go): EMA-smoothed RTT feedback drives
// a per-host token bucket so a slow origin backs off automatically
// instead of needing a fixed --wait for every host in the crawl.
const (
	minRateFloor   = 1.0
	maxRateCeiling = 50.0
	emaAlpha       = 0.2
	recoveryFactor = 1.1
	backoffFactor  = 0.5
)

// hostLimiter is one host's adaptive token bucket plus its RTT EMA.
type hostLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	targetRTT   time.Duration
	emaRTT      time.Duration
	currentRate float64
	disabled    bool
}

func newHostLimiter(initialRPS int, targetRTT time.Duration) *hostLimiter {
	clamped := clampRateFloat(float64(initialRPS))
	return &hostLimiter{
		limiter:     rate.NewLimiter(rate.Limit(clamped), int(math.Ceil(clamped))),
		targetRTT:   targetRTT,
		currentRate: clamped,
		emaRTT:      targetRTT,
	}
}

func (h *hostLimiter) wait(ctx context.Context) error {
	return h.limiter.Wait(ctx)
}

func (h *hostLimiter) observeRTT(rtt time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disabled {
		return
	}
	newEMA := time.Duration(emaAlpha*float64(rtt) + (1-emaAlpha)*float64(h.emaRTT))
	h.emaRTT = newEMA

	ratio := float64(h.targetRTT) / float64(newEMA)
	var newRate float64
	if ratio < 1 {
		proposed := h.currentRate * ratio
		floor := h.currentRate * backoffFactor
		if proposed < floor {
			newRate = floor
		} else {
			newRate = proposed
		}
	} else {
		newRate = h.currentRate * recoveryFactor
	}
	newRate = clampRateFloat(newRate)
	if math.Abs(newRate-h.currentRate) > 0.05 {
		h.currentRate = newRate
		h.limiter.SetLimit(rate.Limit(newRate))
		h.limiter.SetBurst(int(math.Ceil(newRate)))
	}
}

func clampRateFloat(rps float64) float64 {
	if rps < minRateFloor {
		return minRateFloor
	}
	if rps > maxRateCeiling {
		return maxRateCeiling
	}
	return rps
}

// HostRateLimiter round-robins an adaptive token bucket per host, so one
// slow origin throttles itself without affecting the rest of the crawl.
// A fixed --wait/--random-wait delay (worker.waitBeforeRequest) composes
// on top of this, matching the teacher's "manual override disables
// adaptation" escape hatch via SetFixedRate.
type HostRateLimiter struct {
	mu         sync.Mutex
	byHost     map[string]*hostLimiter
	initialRPS int
	targetRTT  time.Duration
	fixedRPS   int // 0 means adaptive; >0 disables adaptation for new hosts
}

// NewHostRateLimiter returns a limiter that starts every newly seen host
// at initialRPS and nudges it toward targetRTT per response observed.
func NewHostRateLimiter(initialRPS int, targetRTT time.Duration) *HostRateLimiter {
	if initialRPS <= 0 {
		initialRPS = 4
	}
	if targetRTT <= 0 {
		targetRTT = 500 * time.Millisecond
	}
	return &HostRateLimiter{byHost: make(map[string]*hostLimiter), initialRPS: initialRPS, targetRTT: targetRTT}
}

// SetFixedRate disables adaptive behavior (engine.Config.FixedRateRPS):
// every host first seen after the call is capped at rps with no RTT-driven
// adjustment; hosts already seen keep their adaptive limiter.
func (r *HostRateLimiter) SetFixedRate(rps int) {
	r.mu.Lock()
	r.fixedRPS = rps
	r.mu.Unlock()
}

func (r *HostRateLimiter) forHost(host string) *hostLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	hl, ok := r.byHost[host]
	if ok {
		return hl
	}
	rps := r.initialRPS
	if r.fixedRPS > 0 {
		rps = r.fixedRPS
	}
	hl = newHostLimiter(rps, r.targetRTT)
	if r.fixedRPS > 0 {
		hl.disabled = true
	}
	r.byHost[host] = hl
	return hl
}

// Wait blocks until host's bucket allows the next request.
func (r *HostRateLimiter) Wait(ctx context.Context, host string) error {
	return r.forHost(host).wait(ctx)
}

// ObserveRTT feeds a completed request's round-trip time back into
// host's adaptive rate.
func (r *HostRateLimiter) ObserveRTT(host string, rtt time.Duration) {
	r.forHost(host).observeRTT(rtt)
}
