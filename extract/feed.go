package extract

import (
	"bytes"

	"github.com/mmcdole/gofeed"
)

// FeedExtractor parses an Atom or RSS feed via mmcdole/gofeed and emits
// each item/entry link as a Span.
type FeedExtractor struct{}

func (FeedExtractor) Extract(body []byte, charsetHint string) ([]Span, error) {
	parser := gofeed.NewParser()
	feed, err := parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	spans := make([]Span, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		spans = append(spans, Span{Tag: "feed-item", Attr: "link", Text: item.Link})
	}
	return spans, nil
}
