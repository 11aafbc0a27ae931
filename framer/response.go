package framer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lukemcguire/retriever/wireproto"
)

// maxHeaderBlock bounds the growable header buffer so a server that never
// sends a terminating blank line cannot exhaust memory.
const maxHeaderBlock = 1 << 20

// ErrHeaderTooLarge is returned when the status line and header block
// together exceed maxHeaderBlock without a terminating blank line.
var ErrHeaderTooLarge = errors.New("framer: response header block too large")

// Response is the parsed form of an HTTP/1.1 status line plus header
// block. Fields preserves header order and duplicates (multiple Set-Cookie,
// Link, Digest, etc.); Get performs a case-insensitive first-match lookup.
type Response struct {
	Major, Minor int
	StatusCode   int
	Reason       string
	Fields       wireproto.Params
}

// Get returns the first header value matching name, case-insensitively.
func (r *Response) Get(name string) (string, bool) {
	return r.Fields.Get(name)
}

// GetAll returns every header value matching name, in wire order.
func (r *Response) GetAll(name string) []string {
	var out []string
	for _, kv := range r.Fields {
		if strings.EqualFold(kv.Name, name) {
			out = append(out, kv.Value)
		}
	}
	return out
}

// ReadResponseHead reads from r up to and including the blank line that
// terminates the status line and header block. It returns the parsed
// Response and any body bytes that were already read past the terminator
// (the conn's Read buffer does not align on header boundaries).
func ReadResponseHead(r io.Reader) (*Response, []byte, error) {
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)

	var idx int
	for {
		idx = bytes.Index(buf, []byte("\r\n\r\n"))
		if idx >= 0 {
			break
		}
		if len(buf) > maxHeaderBlock {
			return nil, nil, ErrHeaderTooLarge
		}
		n, err := r.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			if err == io.EOF && bytes.Index(buf, []byte("\r\n\r\n")) >= 0 {
				idx = bytes.Index(buf, []byte("\r\n\r\n"))
				break
			}
			return nil, nil, fmt.Errorf("framer: reading response head: %w", err)
		}
	}

	headerBlock := buf[:idx]
	bodyPrefix := buf[idx+4:]

	resp, err := parseHeaderBlock(headerBlock)
	if err != nil {
		return nil, nil, err
	}
	return resp, bodyPrefix, nil
}

func parseHeaderBlock(block []byte) (*Response, error) {
	lines := strings.Split(string(block), "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, errors.New("framer: empty status line")
	}

	resp := &Response{}
	if err := parseStatusLine(lines[0], resp); err != nil {
		return nil, err
	}

	// Fold continuation lines (leading SP/HT) into the prior logical line,
	// collapsing the run of folding whitespace to a single space.
	var logical []string
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(logical) > 0 {
			logical[len(logical)-1] += " " + strings.TrimLeft(line, " \t")
			continue
		}
		logical = append(logical, line)
	}

	for _, line := range logical {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		name := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		resp.Fields = append(resp.Fields, wireproto.KV{Name: name, Value: value})
	}

	return resp, nil
}

func parseStatusLine(line string, resp *Response) error {
	if !strings.HasPrefix(line, "HTTP/") {
		return fmt.Errorf("framer: malformed status line %q", line)
	}
	rest := line[len("HTTP/"):]
	dot := strings.IndexByte(rest, '.')
	sp1 := strings.IndexByte(rest, ' ')
	if dot < 0 || sp1 < 0 || dot > sp1 {
		return fmt.Errorf("framer: malformed status line %q", line)
	}
	major, err := strconv.Atoi(rest[:dot])
	if err != nil {
		return fmt.Errorf("framer: malformed HTTP version in %q", line)
	}
	minor, err := strconv.Atoi(rest[dot+1 : sp1])
	if err != nil {
		return fmt.Errorf("framer: malformed HTTP version in %q", line)
	}

	tail := strings.TrimLeft(rest[sp1+1:], " ")
	sp2 := strings.IndexByte(tail, ' ')
	var codeStr, reason string
	if sp2 < 0 {
		codeStr, reason = tail, ""
	} else {
		codeStr, reason = tail[:sp2], strings.TrimSpace(tail[sp2+1:])
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil || code < 100 || code > 599 {
		return fmt.Errorf("framer: malformed status code in %q", line)
	}

	resp.Major, resp.Minor, resp.StatusCode, resp.Reason = major, minor, code, reason
	return nil
}
