// Package framer implements the HTTP/1.1 wire framing described in spec
// §4.2: request emission, response header scanning (with header folding),
// and the three body-delivery modes (none, chunked, identity), routed
// through a decompressor and a caller-supplied BodySink.
package framer

import (
	"fmt"
	"io"

	"github.com/lukemcguire/retriever/wireproto"
)

// Request is the wire form of an outgoing HTTP/1.1 request: method plus an
// ordered header list. EscapedHost and EscapedPath are expected to already
// be percent-escaped by the caller (the canonical URL layer).
type Request struct {
	Method       string
	Scheme       string
	EscapedHost  string
	EscapedPath  string // includes query, e.g. "/search?q=x"
	Headers      wireproto.Params
	UseProxy     bool
	ProxyAbsForm string // "scheme://host" prefix used when UseProxy is set
}

// WriteTo emits the request line, Host header, caller headers, and the
// blank line terminating the header block.
func (r Request) WriteTo(w io.Writer) (int64, error) {
	var written int64

	target := r.EscapedPath
	if r.UseProxy {
		target = r.ProxyAbsForm + r.EscapedPath
	}

	n, err := fmt.Fprintf(w, "%s %s HTTP/1.1\r\n", r.Method, target)
	written += int64(n)
	if err != nil {
		return written, err
	}

	n, err = fmt.Fprintf(w, "Host: %s\r\n", r.EscapedHost)
	written += int64(n)
	if err != nil {
		return written, err
	}

	if r.UseProxy {
		n, err = io.WriteString(w, "Proxy-Connection: keep-alive\r\n")
		written += int64(n)
		if err != nil {
			return written, err
		}
	}

	for _, h := range r.Headers {
		n, err = fmt.Fprintf(w, "%s: %s\r\n", h.Name, h.Value)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}

	n, err = io.WriteString(w, "\r\n")
	written += int64(n)
	return written, err
}
