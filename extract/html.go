package extract

import (
	"bytes"

	"golang.org/x/net/html"
)

// linkAttrsByTag lists which attributes on which tags this extractor
// follows, adapted from the broken-link checker's anchor-only walk
// (extract.go) and generalized to cover page-requisite assets and the
// <base> tag the spec's resolution stage needs.
var linkAttrsByTag = map[string][]string{
	"a":      {"href"},
	"area":   {"href"},
	"link":   {"href"},
	"img":    {"src", "srcset"},
	"script": {"src"},
	"iframe": {"src"},
	"embed":  {"src"},
	"source": {"src", "srcset"},
	"video":  {"poster"},
	"object": {"data"},
}

// HTMLExtractor walks an HTML document token stream with
// golang.org/x/net/html, collecting every recognized attribute value as a
// Span. A <base href> is reported as a Span too (Tag: "base"); the engine
// treats the first one as the resolution base per spec §6.
type HTMLExtractor struct{}

func (HTMLExtractor) Extract(body []byte, charsetHint string) ([]Span, error) {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	var spans []Span

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return spans, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tokenizer.Token()
			if tok.Data == "base" {
				if href, ok := attrValue(tok.Attr, "href"); ok {
					spans = append(spans, Span{Tag: "base", Attr: "href", Text: href})
				}
				continue
			}
			attrs, ok := linkAttrsByTag[tok.Data]
			if !ok {
				continue
			}
			for _, want := range attrs {
				if val, ok := attrValue(tok.Attr, want); ok && val != "" {
					spans = append(spans, Span{
						Tag:   tok.Data,
						Attr:  want,
						Text:  val,
						IsSrc: isSrcStyle(tok.Data, want),
					})
				}
			}
		}
	}
}

func attrValue(attrs []html.Attribute, name string) (string, bool) {
	for _, a := range attrs {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}
