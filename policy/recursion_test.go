package policy

import (
	"testing"

	"github.com/lukemcguire/retriever/dedup"
	"github.com/lukemcguire/retriever/hostreg"
	"github.com/lukemcguire/retriever/urlutil"
)

func parse(t *testing.T, raw string) urlutil.Canonical {
	t.Helper()
	c, err := urlutil.Parse(raw)
	if err != nil {
		t.Fatalf("urlutil.Parse(%q): %v", raw, err)
	}
	return c
}

func TestEvaluateRejectsNonHTTPScheme(t *testing.T) {
	f := New(Config{MaxDepth: -1}, dedup.NewBlacklist(), nil)
	c := Candidate{URL: urlutil.Canonical{Scheme: "ftp", Host: "example.com"}}
	ok, reason := f.Evaluate(c)
	if ok || reason != RejectScheme {
		t.Errorf("ok=%v reason=%v, want RejectScheme", ok, reason)
	}
}

func TestEvaluateHTTPSOnly(t *testing.T) {
	f := New(Config{HTTPSOnly: true, MaxDepth: -1}, dedup.NewBlacklist(), nil)
	c := Candidate{URL: parse(t, "http://example.com/a")}
	ok, reason := f.Evaluate(c)
	if ok || reason != RejectHTTPSOnly {
		t.Errorf("ok=%v reason=%v, want RejectHTTPSOnly", ok, reason)
	}
}

func TestEvaluateNoParent(t *testing.T) {
	f := New(Config{NoParent: true, MaxDepth: -1}, dedup.NewBlacklist(), nil)
	parent := parse(t, "https://example.com/docs/index.html")
	outside := Candidate{URL: parse(t, "https://example.com/other/page.html"), Parent: parent}
	ok, reason := f.Evaluate(outside)
	if ok || reason != RejectParent {
		t.Errorf("ok=%v reason=%v, want RejectParent", ok, reason)
	}

	inside := Candidate{URL: parse(t, "https://example.com/docs/sub/page.html"), Parent: parent}
	ok, _ = f.Evaluate(inside)
	if !ok {
		t.Error("expected descendant of parent directory to pass")
	}
}

func TestEvaluateSpanHostsOff(t *testing.T) {
	f := New(Config{MaxDepth: -1}, dedup.NewBlacklist(), nil)
	c := Candidate{URL: parse(t, "https://other.com/a"), OriginHost: "example.com"}
	ok, reason := f.Evaluate(c)
	if ok || reason != RejectHost {
		t.Errorf("ok=%v reason=%v, want RejectHost", ok, reason)
	}
}

func TestEvaluateSpanHostsOn(t *testing.T) {
	f := New(Config{SpanHosts: true, MaxDepth: -1}, dedup.NewBlacklist(), nil)
	c := Candidate{URL: parse(t, "https://other.com/a"), OriginHost: "example.com"}
	ok, _ := f.Evaluate(c)
	if !ok {
		t.Error("expected span-hosts to allow a different host")
	}
}

func TestEvaluateRejectDomainGlob(t *testing.T) {
	cfg := Config{SpanHosts: true, MaxDepth: -1, RejectDomains: urlutil.NewGlobSet([]string{"*.ads.example.com"}, true)}
	f := New(cfg, dedup.NewBlacklist(), nil)
	c := Candidate{URL: parse(t, "https://tracker.ads.example.com/pixel")}
	ok, reason := f.Evaluate(c)
	if ok || reason != RejectHost {
		t.Errorf("ok=%v reason=%v, want RejectHost", ok, reason)
	}
}

func TestEvaluateRobotsDisallow(t *testing.T) {
	hosts := hostreg.New(true)
	hosts.EnsureHost("example.com")
	hosts.ResolveRobots("example.com", 200, []byte("User-agent: *\nDisallow: /private\n"))

	f := New(Config{MaxDepth: -1, UserAgent: "retriever"}, dedup.NewBlacklist(), hosts)
	c := Candidate{URL: parse(t, "https://example.com/private/x")}
	ok, reason := f.Evaluate(c)
	if ok || reason != RejectRobots {
		t.Errorf("ok=%v reason=%v, want RejectRobots", ok, reason)
	}
}

func TestEvaluateDuplicateRejected(t *testing.T) {
	bl := dedup.NewBlacklist()
	f := New(Config{MaxDepth: -1}, bl, nil)
	c := Candidate{URL: parse(t, "https://example.com/a")}
	ok, _ := f.Evaluate(c)
	if !ok {
		t.Fatal("expected first evaluation to pass")
	}
	ok, reason := f.Evaluate(c)
	if ok || reason != RejectDuplicate {
		t.Errorf("ok=%v reason=%v, want RejectDuplicate", ok, reason)
	}
}

func TestEvaluateMaxDepth(t *testing.T) {
	f := New(Config{MaxDepth: 2}, dedup.NewBlacklist(), nil)
	c := Candidate{URL: parse(t, "https://example.com/a"), RecursionDepth: 3}
	ok, reason := f.Evaluate(c)
	if ok || reason != RejectDepth {
		t.Errorf("ok=%v reason=%v, want RejectDepth", ok, reason)
	}
}

func TestEvaluateDepthRejectionStillInsertsBlacklist(t *testing.T) {
	// Spec §4.6 orders the blacklist insert (step 6) before the depth
	// checks (step 7): a candidate that fails only on depth must still
	// occupy the blacklist, so a later rediscovery of the same URL is
	// rejected as a duplicate rather than re-evaluated from scratch.
	bl := dedup.NewBlacklist()
	f := New(Config{MaxDepth: 2}, bl, nil)
	c := Candidate{URL: parse(t, "https://example.com/a"), RecursionDepth: 3}

	ok, reason := f.Evaluate(c)
	if ok || reason != RejectDepth {
		t.Fatalf("ok=%v reason=%v, want RejectDepth", ok, reason)
	}

	shallower := Candidate{URL: parse(t, "https://example.com/a"), RecursionDepth: 1}
	ok, reason = f.Evaluate(shallower)
	if ok || reason != RejectDuplicate {
		t.Errorf("ok=%v reason=%v, want RejectDuplicate for a URL already consumed by the blacklist", ok, reason)
	}
}

func TestEvaluateMaxDepthWithPageRequisites(t *testing.T) {
	f := New(Config{MaxDepth: 2, PageRequisites: true}, dedup.NewBlacklist(), nil)
	c := Candidate{URL: parse(t, "https://example.com/a"), RecursionDepth: 3}
	ok, _ := f.Evaluate(c)
	if !ok {
		t.Error("expected page-requisites to permit one extra depth level")
	}
}

func TestAllowsNameAcceptSuffix(t *testing.T) {
	f := New(Config{MaxDepth: -1, AcceptNames: urlutil.NewGlobSet([]string{".jpeg"}, false)}, dedup.NewBlacklist(), nil)
	cases := map[string]bool{
		"picture_a.jpeg": true,
		"picture_A.jpeg": true,
		"picture_B.JpeG": false, // case-sensitive: no --ignore-case
		"picture_c.png":  false,
		"index.html":     false,
	}
	for name, want := range cases {
		if got := f.AllowsName(name); got != want {
			t.Errorf("AllowsName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestAllowsNameAcceptSuffixIgnoreCase(t *testing.T) {
	f := New(Config{MaxDepth: -1, AcceptNames: urlutil.NewGlobSet([]string{".jpeg"}, true)}, dedup.NewBlacklist(), nil)
	if !f.AllowsName("picture_B.JpeG") {
		t.Error("expected --ignore-case to fold the suffix match")
	}
}

func TestAllowsNameRejectGlob(t *testing.T) {
	f := New(Config{MaxDepth: -1, RejectNames: urlutil.NewGlobSet([]string{"*picture_[ab]*"}, false)}, dedup.NewBlacklist(), nil)
	cases := map[string]bool{
		"index.html":      true,
		"secondpage.html": true,
		"picture_a.jpeg":  false,
		"picture_b.jpeg":  false,
		"picture_A.jpeg":  true, // char class [ab] is lowercase-only without --ignore-case
		"picture_B.JpeG":  true,
		"picture_c.png":   true,
	}
	for name, want := range cases {
		if got := f.AllowsName(name); got != want {
			t.Errorf("AllowsName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestAllowsHrefAtDepthLeafRule(t *testing.T) {
	f := New(Config{MaxDepth: 2, PageRequisites: true}, dedup.NewBlacklist(), nil)
	if f.AllowsHrefAtDepth(2, true) {
		t.Error("expected href links to be dropped at the leaf depth")
	}
	if !f.AllowsHrefAtDepth(2, false) {
		t.Error("expected src-style links to survive at the leaf depth")
	}
	if !f.AllowsHrefAtDepth(1, true) {
		t.Error("expected href links above the leaf depth to survive")
	}
}
