package wireproto

import "testing"

func TestParseLinkHeader(t *testing.T) {
	header := `<https://example.com/a>; rel="describedby"; type="application/json", <https://example.com/b>; rel="duplicate"; pri="1"`
	entries := ParseLinkHeader(header)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].URI != "https://example.com/a" || entries[0].Rel != "describedby" || entries[0].Type != "application/json" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].URI != "https://example.com/b" || entries[1].Rel != "duplicate" || entries[1].Pri != "1" {
		t.Errorf("entry 1 = %+v", entries[1])
	}
}

func TestParseLinkHeaderMalformedSkipped(t *testing.T) {
	entries := ParseLinkHeader("not-a-link-entry")
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}
