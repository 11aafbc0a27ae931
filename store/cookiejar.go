package store

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/lukemcguire/retriever/urlutil"
	"github.com/lukemcguire/retriever/wireproto"
)

// CookieJar implements spec §6's cookie DB contract: normalize cookies
// against the request URL, store them, and serialize the matching subset
// into a single Cookie header for a subsequent request.
type CookieJar struct {
	mu          sync.Mutex
	byDomain    map[string][]wireproto.Cookie
	keepSession bool
}

// NewCookieJar returns an empty cookie jar.
func NewCookieJar() *CookieJar {
	return &CookieJar{byDomain: make(map[string][]wireproto.Cookie)}
}

// SetKeepSession controls whether session cookies (no Max-Age/Expires)
// are written out by Save; it has no effect on in-memory matching.
func (j *CookieJar) SetKeepSession(keep bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.keepSession = keep
}

// Normalize applies RFC 6265 domain/path defaulting and rejects
// secure-flagged cookies received over a non-https request, per spec
// §4.7's "Cookies" rule.
func (j *CookieJar) Normalize(u urlutil.Canonical, cookies []wireproto.Cookie) []wireproto.Cookie {
	out := make([]wireproto.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c.Secure && u.Scheme != "https" {
			continue
		}
		if c.Domain == "" {
			c.Domain = u.Host
			c.DomainDot = false
		}
		if c.Path == "" {
			c.Path = u.Dir()
		}
		out = append(out, c)
	}
	return out
}

// Store records normalized cookies against their domain.
func (j *CookieJar) Store(cookies []wireproto.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		key := strings.ToLower(c.Domain)
		existing := j.byDomain[key]
		replaced := false
		for i, e := range existing {
			if e.Name == c.Name && e.Path == c.Path {
				existing[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, c)
		}
		j.byDomain[key] = existing
	}
}

// RequestHeaderFor serializes every cookie matching u's host and path
// prefix into a single "name=value; name2=value2" string, or "" if none
// match.
func (j *CookieJar) RequestHeaderFor(u urlutil.Canonical) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	var parts []string
	for domain, cookies := range j.byDomain {
		if !domainMatches(u.Host, domain) {
			continue
		}
		for _, c := range cookies {
			if !strings.HasPrefix(u.Path, c.Path) {
				continue
			}
			parts = append(parts, c.Name+"="+c.Value)
		}
	}
	return strings.Join(parts, "; ")
}

func domainMatches(host, domain string) bool {
	host = strings.ToLower(host)
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}

// Load reads cookies from a Netscape-format cookie file: one cookie per
// line, tab-separated domain/flag/path/secure/expiry/name/value.
func (j *CookieJar) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: load cookies from %s: %w", path, err)
	}
	defer f.Close()

	j.mu.Lock()
	defer j.mu.Unlock()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			continue
		}
		expiry, _ := strconv.ParseInt(fields[4], 10, 64)
		c := wireproto.Cookie{
			Domain:    fields[0],
			DomainDot: strings.HasPrefix(fields[0], "."),
			Path:      fields[2],
			Secure:    fields[3] == "TRUE",
			Expires:   expiry,
			HasMaxAge: expiry > 0,
			Name:      fields[5],
			Value:     fields[6],
		}
		key := strings.ToLower(c.Domain)
		j.byDomain[key] = append(j.byDomain[key], c)
	}
	return scanner.Err()
}

// Save writes the jar to a Netscape-format cookie file atomically. When
// keepSession is false (the default), cookies with no expiry are
// dropped, matching curl/wget's treatment of "session cookies."
func (j *CookieJar) Save(path string) error {
	j.mu.Lock()
	var b strings.Builder
	b.WriteString("# Netscape HTTP Cookie File\n")
	for _, cookies := range j.byDomain {
		for _, c := range cookies {
			if !j.keepSession && c.Expires == 0 && !c.HasMaxAge {
				continue
			}
			domainFlag := "FALSE"
			if c.DomainDot {
				domainFlag = "TRUE"
			}
			secureFlag := "FALSE"
			if c.Secure {
				secureFlag = "TRUE"
			}
			fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				c.Domain, domainFlag, c.Path, secureFlag, c.Expires, c.Name, c.Value)
		}
	}
	data := []byte(b.String())
	j.mu.Unlock()

	return atomicWrite(path, data)
}
