package netconn

import (
	"net/url"
	"sync"
)

// ProxyPool round-robins a fixed list of proxy addresses per scheme,
// grounded in wget2's src/wget.c proxy rotation: each scheme (http/https)
// gets its own list and its own cursor, guarded by one mutex so concurrent
// workers don't race on the cursor.
type ProxyPool struct {
	mu        sync.Mutex
	byHTTP    []*url.URL
	byHTTPS   []*url.URL
	nextHTTP  int
	nextHTTPS int
}

// NewProxyPool parses the given proxy URLs and buckets them by the scheme
// they serve. A proxy URL list shared between schemes (the common case)
// should be passed to both arguments.
func NewProxyPool(httpProxies, httpsProxies []string) (*ProxyPool, error) {
	p := &ProxyPool{}
	var err error
	if p.byHTTP, err = parseAll(httpProxies); err != nil {
		return nil, err
	}
	if p.byHTTPS, err = parseAll(httpsProxies); err != nil {
		return nil, err
	}
	return p, nil
}

func parseAll(raw []string) ([]*url.URL, error) {
	out := make([]*url.URL, 0, len(raw))
	for _, s := range raw {
		u, err := url.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// Next returns the next proxy for scheme in round-robin order, or false
// if no proxy is configured for that scheme (meaning dial direct).
func (p *ProxyPool) Next(scheme string) (*url.URL, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch scheme {
	case "https":
		if len(p.byHTTPS) == 0 {
			return nil, false
		}
		u := p.byHTTPS[p.nextHTTPS%len(p.byHTTPS)]
		p.nextHTTPS++
		return u, true
	default:
		if len(p.byHTTP) == 0 {
			return nil, false
		}
		u := p.byHTTP[p.nextHTTP%len(p.byHTTP)]
		p.nextHTTP++
		return u, true
	}
}
