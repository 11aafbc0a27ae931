// Package netconn dials and pools the raw net.Conn/tls.Conn connections
// the wire framer reads and writes, per spec §4.3: one connection per
// scheme+host+port, reused across requests when the peer allows
// keep-alive, with a dedicated proxy pool per scheme.
package netconn

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrCertificate marks a TLS handshake failure (bad cert, hostname
// mismatch, untrusted root) as permanent: the worker maps it to exit
// status 5 rather than retrying.
var ErrCertificate = errors.New("netconn: certificate verification failed")

// Key identifies a pooled connection's endpoint.
type Key struct {
	Scheme string
	Host   string
	Port   int
}

func (k Key) String() string {
	return fmt.Sprintf("%s://%s:%d", k.Scheme, k.Host, k.Port)
}

// Conn wraps a dialed connection with the endpoint it was dialed to, so
// the pool can key reuse and the worker can tell whether a read error
// came off a TLS or a plain connection.
type Conn struct {
	net.Conn
	Key    Key
	TLS    bool
	dialAt time.Time
}

// Dialer dials connections. Plain dials go through net.Dialer; TLS dials
// additionally perform the handshake and classify certificate failures.
type Dialer struct {
	NetDialer *net.Dialer
	TLSConfig *tls.Config
}

// NewDialer returns a Dialer with the given per-attempt timeout.
func NewDialer(timeout time.Duration) *Dialer {
	return &Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// Dial opens a new connection to key, performing a TLS handshake when
// key.Scheme is "https". addr is the already-resolved host:port to dial
// (the proxy pool substitutes the proxy's address here while keeping key
// as the logical destination for pooling and Host-header purposes).
func (d *Dialer) Dial(ctx context.Context, key Key, addr string) (*Conn, error) {
	raw, err := d.NetDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netconn: dial %s: %w", addr, err)
	}

	if key.Scheme != "https" {
		return &Conn{Conn: raw, Key: key, dialAt: time.Now()}, nil
	}

	cfg := d.TLSConfig.Clone()
	cfg.ServerName = key.Host
	tlsConn := tls.Client(raw, cfg)
	tlsConn.SetDeadline(deadlineFromContext(ctx))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCertificate, key.Host, err)
	}
	tlsConn.SetDeadline(time.Time{})

	return &Conn{Conn: tlsConn, Key: key, TLS: true, dialAt: time.Now()}, nil
}

func deadlineFromContext(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Time{}
}
