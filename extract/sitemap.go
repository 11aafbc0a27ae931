package extract

import (
	"bytes"

	"github.com/antchfx/xmlquery"
)

// SitemapExtractor parses an XML sitemap (urlset or sitemapindex) via
// antchfx/xmlquery, per spec's "sitemap job" handling: every <loc> under
// either root element is a link, regardless of which root is present.
type SitemapExtractor struct{}

func (SitemapExtractor) Extract(body []byte, charsetHint string) ([]Span, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var spans []Span
	for _, loc := range xmlquery.Find(doc, "//*[local-name()='loc']") {
		text := loc.InnerText()
		if text == "" {
			continue
		}
		spans = append(spans, Span{Tag: "sitemap", Attr: "loc", Text: text})
	}
	return spans, nil
}
