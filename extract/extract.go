// Package extract implements the content-type-dispatched link extractors
// from spec §6's extractor contract: each extractor turns a response body
// into a list of link spans; the engine resolves each span against the
// base URL and re-runs the recursion filters.
package extract

import "strings"

// Span is one discovered link: the raw attribute text (not yet resolved
// against any base), which tag it came from, and whether it is a
// src-style reference (an embedded asset) as opposed to an href-style
// navigational link — the distinction spec §4.6's page-requisites leaf
// rule needs.
type Span struct {
	Tag   string
	Attr  string
	Text  string
	IsSrc bool
}

// Extractor turns a response body into a list of link spans.
type Extractor interface {
	Extract(body []byte, charsetHint string) ([]Span, error)
}

// srcAttrs names the attributes treated as "src-style" (embedded assets)
// across every tag this package recognizes.
var srcAttrs = map[string]bool{
	"src": true, "srcset": true, "poster": true, "data": true,
}

func isSrcStyle(tag, attr string) bool {
	if srcAttrs[attr] {
		return true
	}
	// <link rel="stylesheet" href="..."> is an asset despite using href.
	return tag == "link" && attr == "href"
}

// ForContentType returns the Extractor registered for a MIME type, or
// (nil, false) if the type has no recognized extractor (the spider/HEAD
// probe in the worker uses this same set to decide whether a job needs a
// GET at all).
func ForContentType(mime string) (Extractor, bool) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch mime {
	case "text/html", "application/xhtml+xml":
		return HTMLExtractor{}, true
	case "text/css":
		return CSSExtractor{}, true
	case "application/atom+xml", "application/rss+xml":
		return FeedExtractor{}, true
	case "application/xml", "text/xml", "application/x-gzip":
		return SitemapExtractor{}, true
	default:
		return nil, false
	}
}
