package netconn

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// Pool caches idle keep-alive connections by endpoint so the worker can
// avoid a fresh dial (and, for https, a fresh handshake) on every request
// to the same host.
type Pool struct {
	dialer *Dialer
	proxy  *ProxyPool

	mu   sync.Mutex
	idle map[Key][]*Conn
}

// NewPool builds a connection pool. proxy may be nil to dial direct.
func NewPool(dialer *Dialer, proxy *ProxyPool) *Pool {
	return &Pool{
		dialer: dialer,
		proxy:  proxy,
		idle:   make(map[Key][]*Conn),
	}
}

// Get returns an idle connection for key if one is pooled, else dials a
// new one, routing through the proxy pool if one is configured for the
// key's scheme.
func (p *Pool) Get(ctx context.Context, key Key) (*Conn, error) {
	p.mu.Lock()
	if conns := p.idle[key]; len(conns) > 0 {
		c := conns[len(conns)-1]
		p.idle[key] = conns[:len(conns)-1]
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	addr := net.JoinHostPort(key.Host, fmt.Sprint(key.Port))
	if p.proxy != nil {
		if proxyURL, ok := p.proxy.Next(key.Scheme); ok {
			conn, err := p.dialer.Dial(ctx, key, proxyURL.Host)
			if err != nil {
				return nil, err
			}
			return conn, nil
		}
	}
	return p.dialer.Dial(ctx, key, addr)
}

// Put returns a connection to the idle pool for reuse, or closes it if the
// pool already holds enough idle connections for that endpoint.
func (p *Pool) Put(c *Conn) {
	const maxIdlePerKey = 4

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle[c.Key]) >= maxIdlePerKey {
		c.Close()
		return
	}
	p.idle[c.Key] = append(p.idle[c.Key], c)
}

// Drop closes a connection without returning it to the pool, used when
// the peer sent Connection: close or the connection errored.
func (p *Pool) Drop(c *Conn) {
	c.Close()
}

// CloseAll closes every pooled idle connection, used on shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, conns := range p.idle {
		for _, c := range conns {
			c.Close()
		}
		delete(p.idle, key)
	}
}
