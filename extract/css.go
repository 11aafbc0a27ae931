package extract

import "regexp"

// cssURLPattern matches a CSS url(...) reference in each of its three
// quoting forms (single, double, unquoted). No library in the reference
// pack parses CSS; a small regex is the stdlib-justified exception
// documented in DESIGN.md.
var cssURLPattern = regexp.MustCompile(`url\(\s*(?:'([^']*)'|"([^"]*)"|([^'")\s][^)]*))\s*\)`)

// CSSExtractor finds url(...) references in a stylesheet body — the only
// link form CSS carries, used for @import and background-image assets.
type CSSExtractor struct{}

func (CSSExtractor) Extract(body []byte, charsetHint string) ([]Span, error) {
	var spans []Span
	for _, m := range matchCSSURLs(string(body)) {
		spans = append(spans, Span{Tag: "css", Attr: "url", Text: m, IsSrc: true})
	}
	return spans, nil
}

// matchCSSURLs extracts the URL text from each url(...) occurrence.
func matchCSSURLs(css string) []string {
	matches := cssURLPattern.FindAllStringSubmatch(css, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		for _, g := range m[1:] {
			if g != "" {
				out = append(out, g)
				break
			}
		}
	}
	return out
}
