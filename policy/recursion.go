// Package policy implements the ordered recursion filters from spec
// §4.6: every candidate link runs through scheme, scope, robots, and
// dedup gates, in order, before a Job is constructed and enqueued.
package policy

import (
	"strings"

	"github.com/lukemcguire/retriever/dedup"
	"github.com/lukemcguire/retriever/hostreg"
	"github.com/lukemcguire/retriever/urlutil"
)

// Reject identifies which filter stage rejected a candidate, for
// diagnostics and for the accept/reject statistics the stats package
// tracks.
type Reject int

const (
	RejectNone Reject = iota
	RejectScheme
	RejectHTTPSOnly
	RejectParent
	RejectHost
	RejectRobots
	RejectDuplicate
	RejectDepth
)

func (r Reject) String() string {
	switch r {
	case RejectNone:
		return "none"
	case RejectScheme:
		return "scheme"
	case RejectHTTPSOnly:
		return "https-only"
	case RejectParent:
		return "parent"
	case RejectHost:
		return "host"
	case RejectRobots:
		return "robots"
	case RejectDuplicate:
		return "duplicate"
	case RejectDepth:
		return "depth"
	default:
		return "unknown"
	}
}

// Config is the set of recursion-policy flags, one field per spec §6
// recursion/policy option this package enforces.
type Config struct {
	HTTPSOnly      bool
	NoParent       bool
	SpanHosts      bool
	AcceptDomains  *urlutil.GlobSet
	RejectDomains  *urlutil.GlobSet
	AcceptNames    *urlutil.GlobSet // spec §4.6 item 8: filename accept list
	RejectNames    *urlutil.GlobSet // spec §4.6 item 8: filename reject list
	MaxRedirect    int
	MaxDepth       int // -1 means unlimited ("infinite" recursion, level=0 inf)
	PageRequisites bool
	UserAgent      string
}

// Filter evaluates candidates against the recursion policy, the robots
// registry, and the blacklist, in the order spec §4.6 lists.
type Filter struct {
	cfg       Config
	blacklist *dedup.Blacklist
	hosts     *hostreg.Registry
}

// New returns a recursion Filter.
func New(cfg Config, blacklist *dedup.Blacklist, hosts *hostreg.Registry) *Filter {
	return &Filter{cfg: cfg, blacklist: blacklist, hosts: hosts}
}

// Candidate is a link discovered on some already-fetched page, ready to
// be re-filtered into a Job.
type Candidate struct {
	URL            urlutil.Canonical
	Parent         urlutil.Canonical
	OriginHost     string // host the candidate was discovered on, for span-hosts
	RedirectDepth  int
	RecursionDepth int
	IsPageReq      bool // true for src-style attributes (img, script, link rel=stylesheet)
}

// Evaluate runs the ordered filter chain: scheme, https-only, parent,
// host/span, robots, then blacklist insert, then redirect/recursion
// depth — matching spec §4.6's step order. ok is false if any stage
// rejects; reason identifies which one. The blacklist insert happens
// before the depth checks, so a candidate that only fails on depth still
// consumes the blacklist slot (per spec §4.5, ownership transfers in on
// success) and a later, shallower rediscovery of the same URL is
// rejected as a duplicate rather than re-evaluated.
func (f *Filter) Evaluate(c Candidate) (ok bool, reason Reject) {
	if c.URL.Scheme != "http" && c.URL.Scheme != "https" {
		return false, RejectScheme
	}
	if f.cfg.HTTPSOnly && c.URL.Scheme != "https" {
		return false, RejectHTTPSOnly
	}
	if f.cfg.NoParent && c.Parent.Host != "" {
		if !c.URL.HasParentPrefix(c.Parent) {
			return false, RejectParent
		}
	}
	if !f.hostAllowed(c) {
		return false, RejectHost
	}
	if f.hosts != nil && !f.hosts.Allowed(c.URL.Host, c.URL.Path, f.cfg.UserAgent) {
		return false, RejectRobots
	}
	if f.blacklist != nil && !f.blacklist.Insert(c.URL) {
		return false, RejectDuplicate
	}
	if f.cfg.MaxRedirect >= 0 && c.RedirectDepth > f.cfg.MaxRedirect {
		return false, RejectDepth
	}
	if !f.depthAllowed(c) {
		return false, RejectDepth
	}
	return true, RejectNone
}

func (f *Filter) hostAllowed(c Candidate) bool {
	if f.cfg.RejectDomains != nil && f.cfg.RejectDomains.MatchHost(c.URL.Host) {
		return false
	}
	if f.cfg.AcceptDomains != nil && !f.cfg.AcceptDomains.Empty() {
		return f.cfg.AcceptDomains.MatchHost(c.URL.Host)
	}
	if !f.cfg.SpanHosts && c.OriginHost != "" {
		return strings.EqualFold(c.URL.Host, c.OriginHost)
	}
	return true
}

func (f *Filter) depthAllowed(c Candidate) bool {
	if f.cfg.MaxDepth < 0 {
		return true
	}
	limit := f.cfg.MaxDepth
	if f.cfg.PageRequisites {
		limit++
	}
	return c.RecursionDepth <= limit
}

// AllowsName implements spec §4.6 item 8's filename accept/reject gate:
// a reject match always wins; otherwise, a non-empty accept list must
// match. Unlike the other filter stages this runs post-download, once a
// worker knows the filename it would save — it has no blacklist side
// effect and does not consult the redirect/recursion depth.
func (f *Filter) AllowsName(name string) bool {
	if f.cfg.RejectNames != nil && f.cfg.RejectNames.MatchName(name) {
		return false
	}
	if f.cfg.AcceptNames != nil && !f.cfg.AcceptNames.Empty() {
		return f.cfg.AcceptNames.MatchName(name)
	}
	return true
}

// AllowsHrefAtDepth implements the page-requisites leaf rule: at
// RecursionDepth == cfg.MaxDepth, href-style links (anchors, area, embed)
// are dropped so only src-style assets are pulled at the leaf level.
func (f *Filter) AllowsHrefAtDepth(depth int, isHref bool) bool {
	if !f.cfg.PageRequisites || !isHref {
		return true
	}
	return depth < f.cfg.MaxDepth
}
