package store

import (
	"path/filepath"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestHSTSDBAddAndHostMatch(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	db := NewHSTSDB()
	db.now = fixedClock(base)

	db.Add("example.com", 3600, false)
	if !db.HostMatch("example.com") {
		t.Error("expected pinned host to match")
	}
	if db.HostMatch("sub.example.com") {
		t.Error("expected subdomain not to match without includeSubDomains")
	}
}

func TestHSTSDBIncludeSubDomains(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	db := NewHSTSDB()
	db.now = fixedClock(base)

	db.Add("example.com", 3600, true)
	if !db.HostMatch("www.example.com") {
		t.Error("expected subdomain to match with includeSubDomains")
	}
	if !db.HostMatch("example.com") {
		t.Error("expected exact host to still match")
	}
	if db.HostMatch("notexample.com") {
		t.Error("expected unrelated host not to match")
	}
}

func TestHSTSDBMaxAgeZeroDeletes(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	db := NewHSTSDB()
	db.now = fixedClock(base)

	db.Add("example.com", 3600, false)
	db.Add("example.com", 0, false)
	if db.HostMatch("example.com") {
		t.Error("expected max-age=0 to remove the pin")
	}
}

func TestHSTSDBExpiry(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	db := NewHSTSDB()
	db.now = fixedClock(base)
	db.Add("example.com", 10, false)

	db.now = fixedClock(base.Add(20 * time.Second))
	if db.HostMatch("example.com") {
		t.Error("expected expired pin not to match")
	}
}

func TestHSTSDBSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hsts.db")

	base := time.Unix(1_700_000_000, 0)
	db := NewHSTSDB()
	db.now = fixedClock(base)
	db.Add("example.com", 3600, true)
	db.Add("other.com", 3600, false)

	if err := db.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	db2 := NewHSTSDB()
	db2.now = fixedClock(base)
	if err := db2.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !db2.HostMatch("www.example.com") {
		t.Error("expected includeSubDomains pin to survive round-trip")
	}
	if !db2.HostMatch("other.com") {
		t.Error("expected exact pin to survive round-trip")
	}
}

func TestHSTSDBSaveDropsExpiredEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hsts.db")

	base := time.Unix(1_700_000_000, 0)
	db := NewHSTSDB()
	db.now = fixedClock(base)
	db.Add("stale.com", 10, false)
	db.now = fixedClock(base.Add(20 * time.Second))

	if err := db.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	db2 := NewHSTSDB()
	db2.now = fixedClock(base.Add(20 * time.Second))
	if err := db2.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if db2.HostMatch("stale.com") {
		t.Error("expected expired entry to be dropped from saved file")
	}
}
