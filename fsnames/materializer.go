// Package fsnames derives a local filesystem path from a URL under the
// active naming policy, per spec §4.8.
package fsnames

import (
	"fmt"
	"path"
	"strings"

	"github.com/kennygrant/sanitize"

	"github.com/lukemcguire/retriever/urlutil"
)

// RestrictPolicy selects the character-restriction mode applied to the
// final path, matching spec §4.8 stage 4.
type RestrictPolicy int

const (
	RestrictUnix RestrictPolicy = iota
	RestrictWindows
	RestrictNoControl
	RestrictASCII
	RestrictUppercase
	RestrictLowercase
)

// Config is the naming-policy flag set, one field per spec §6 naming
// option this package applies.
type Config struct {
	DirectoryPrefix   string
	NoDirectories     bool
	PrependProtocol   bool // --protocol-directories
	PrependHost       bool // !--no-host-directories
	CutDirs           int
	Restrict          RestrictPolicy
	ContentDispFile   string // filename from Content-Disposition, if --content-disposition and present
	EncodeQueryInTail bool
	Spider            bool
	DeleteAfter       bool
}

// Materialize derives the local path for u under cfg. It returns ("",
// false) in spider or delete-after modes, per spec §4.8's final rule,
// signaling later stages to skip all I/O.
func Materialize(u urlutil.Canonical, cfg Config) (string, bool) {
	if cfg.Spider || cfg.DeleteAfter {
		return "", false
	}

	var b strings.Builder
	if cfg.DirectoryPrefix != "" {
		b.WriteString(strings.TrimRight(cfg.DirectoryPrefix, "/"))
	}

	if !cfg.NoDirectories {
		if cfg.PrependProtocol {
			writeSegment(&b, u.Scheme)
		}
		if cfg.PrependHost {
			writeSegment(&b, u.Host)
		}
		dirPart := cutDirs(u.Path, cfg.CutDirs)
		for _, seg := range splitPathSegments(dirPart) {
			writeSegment(&b, seg)
		}
	}

	name := baseFilename(u, cfg)
	writeSegment(&b, name)

	out := b.String()
	if out == "" {
		out = "index.html"
	}
	out = restrict(out, cfg.Restrict)
	return out, true
}

func writeSegment(b *strings.Builder, seg string) {
	if seg == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteByte('/')
	}
	b.WriteString(seg)
}

// cutDirs drops the leading n path segments (directory portion only, the
// basename is handled separately). If n would remove more segments than
// exist, the directory portion collapses to empty and the caller falls
// back to the basename alone.
func cutDirs(urlPath string, n int) string {
	dir := urlPath[:strings.LastIndexByte(urlPath, '/')+1]
	segs := splitPathSegments(dir)
	if n <= 0 || n > len(segs) {
		if n > len(segs) {
			return ""
		}
		return strings.Join(segs, "/")
	}
	return strings.Join(segs[n:], "/")
}

func splitPathSegments(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func baseFilename(u urlutil.Canonical, cfg Config) string {
	if cfg.ContentDispFile != "" {
		return sanitize.BaseName(cfg.ContentDispFile)
	}

	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		base = "index.html"
	}
	if cfg.EncodeQueryInTail && u.Query != "" {
		base = fmt.Sprintf("%s@%s", base, sanitize.BaseName(u.Query))
	}
	return sanitize.BaseName(base)
}

var windowsSpecials = map[byte]bool{
	'<': true, '>': true, ':': true, '"': true,
	'\\': true, '|': true, '?': true, '*': true,
}

// restrict applies the restrict-file-names policy to a fully assembled
// relative path, percent-escaping control characters (and, in Windows
// mode, the additional reserved characters) with upper-hex, matching
// spec §4.8 stage 4.
func restrict(p string, policy RestrictPolicy) string {
	switch policy {
	case RestrictUppercase:
		return strings.ToUpper(p)
	case RestrictLowercase:
		return strings.ToLower(p)
	case RestrictNoControl:
		return escapeControlsOnly(p)
	case RestrictWindows:
		return escapeChars(p, true)
	case RestrictASCII:
		return escapeNonASCII(escapeChars(p, false))
	case RestrictUnix:
		fallthrough
	default:
		return escapeChars(p, false)
	}
}

func escapeControlsOnly(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c <= 31 {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func escapeChars(p string, windows bool) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c == '/':
			b.WriteByte(c) // path separator, not escaped
		case c <= 31:
			fmt.Fprintf(&b, "%%%02X", c)
		case windows && windowsSpecials[c]:
			fmt.Fprintf(&b, "%%%02X", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func escapeNonASCII(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c > 126 {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
