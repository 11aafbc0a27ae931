package worker

import (
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/lukemcguire/retriever/framer"
	"github.com/lukemcguire/retriever/netconn"
	"github.com/lukemcguire/retriever/stats"
)

// backoffDelay computes the sleep before retry attempt (1-indexed),
// matching spec §4.7's "sleep of min(attempt * 1s, waitretry)".
func backoffDelay(attempt int, waitRetry time.Duration) time.Duration {
	d := time.Duration(attempt) * time.Second
	if waitRetry > 0 && d > waitRetry {
		d = waitRetry
	}
	return d
}

// waitBeforeRequest computes the inter-request politeness delay, adding
// jitter when randomWait is set, matching wget's --wait/--random-wait.
func waitBeforeRequest(wait time.Duration, randomWait bool) time.Duration {
	if wait <= 0 {
		return 0
	}
	if !randomWait {
		return wait
	}
	return time.Duration(rand.Int63n(int64(wait))) + wait/2
}

// classify maps a request-level error to the §7 error-kind taxonomy. A
// nil error with a non-zero status code classifies by status; a nil error
// and zero status code (caller supplies neither) is a programming error,
// not reachable through normal worker flow.
func classify(err error, statusCode int) stats.ErrorCategory {
	if statusCode == 429 || (statusCode >= 500 && statusCode < 600) {
		return stats.CategoryTransient
	}
	if statusCode >= 400 && statusCode < 500 {
		return stats.CategoryHTTPClient
	}
	if err == nil {
		return stats.CategoryNone
	}

	if errors.Is(err, netconn.ErrCertificate) {
		return stats.CategoryPermanent
	}
	if errors.Is(err, framer.ErrHeaderTooLarge) {
		return stats.CategoryPermanent
	}
	if errors.Is(err, framer.ErrChunkFraming) {
		return stats.CategoryBodyFraming
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return stats.CategoryTransient
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return stats.CategoryTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return stats.CategoryTransient
	}

	return stats.CategoryPermanent
}

// shouldRetry reports whether cat warrants another attempt, per spec §7:
// transient network and 5xx/429 retry; 4xx (except the one-shot 401
// handled separately by the auth stage) and permanent errors do not.
func shouldRetry(cat stats.ErrorCategory) bool {
	return cat == stats.CategoryTransient || cat == stats.CategoryBodyFraming
}
