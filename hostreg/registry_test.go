package hostreg

import (
	"testing"

	"github.com/lukemcguire/retriever/queue"
)

func TestEnsureHostFirstSightingNeedsRobotsJob(t *testing.T) {
	r := New(true)
	rec, needs := r.EnsureHost("example.com")
	if !needs {
		t.Fatal("expected first sighting to need a robots job")
	}
	if !rec.Pending {
		t.Error("expected host to be pending")
	}

	_, needsAgain := r.EnsureHost("example.com")
	if needsAgain {
		t.Error("expected second sighting not to need another robots job")
	}
}

func TestEnsureHostDisabledNeverDefers(t *testing.T) {
	r := New(false)
	rec, needs := r.EnsureHost("example.com")
	if needs {
		t.Error("expected disabled registry never to request a robots job")
	}
	if !rec.Resolved {
		t.Error("expected disabled registry to mark host resolved immediately")
	}
	if !r.Allowed("example.com", "/anything", "retriever") {
		t.Error("expected disabled registry to allow everything")
	}
}

func TestDeferAndResolveReleasesJobs(t *testing.T) {
	r := New(true)
	r.EnsureHost("example.com")

	j1 := &queue.Job{}
	j2 := &queue.Job{}
	r.Defer("example.com", j1)
	r.Defer("example.com", j2)

	if !r.IsPending("example.com") {
		t.Fatal("expected host to be pending before resolve")
	}

	released, sitemaps := r.ResolveRobots("example.com", 200, []byte("User-agent: *\nDisallow: /private\nSitemap: https://example.com/sitemap.xml\n"))
	if len(released) != 2 {
		t.Fatalf("released = %d jobs, want 2", len(released))
	}
	if len(sitemaps) != 1 || sitemaps[0] != "https://example.com/sitemap.xml" {
		t.Errorf("sitemaps = %v", sitemaps)
	}
	if r.IsPending("example.com") {
		t.Error("expected host no longer pending after resolve")
	}
}

func TestResolveRobots404AllowsAll(t *testing.T) {
	r := New(true)
	r.EnsureHost("example.com")
	r.ResolveRobots("example.com", 404, nil)
	if !r.Allowed("example.com", "/private", "retriever") {
		t.Error("expected 404 robots.txt to allow everything")
	}
}

func TestAllowedRespectsDisallow(t *testing.T) {
	r := New(true)
	r.EnsureHost("example.com")
	r.ResolveRobots("example.com", 200, []byte("User-agent: *\nDisallow: /private\n"))

	if r.Allowed("example.com", "/private/page", "retriever") {
		t.Error("expected /private/page to be disallowed")
	}
	if !r.Allowed("example.com", "/public/page", "retriever") {
		t.Error("expected /public/page to be allowed")
	}
}
