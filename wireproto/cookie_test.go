package wireproto

import "testing"

func TestParseSetCookie(t *testing.T) {
	c, ok := ParseSetCookie("session=abc123; Domain=.example.com; Path=/; Secure; HttpOnly; Max-Age=3600")
	if !ok {
		t.Fatal("expected cookie to parse")
	}
	if c.Name != "session" || c.Value != "abc123" {
		t.Errorf("name/value = %q/%q", c.Name, c.Value)
	}
	if c.Domain != "example.com" || !c.DomainDot {
		t.Errorf("domain = %q, dot = %v", c.Domain, c.DomainDot)
	}
	if c.Path != "/" {
		t.Errorf("path = %q", c.Path)
	}
	if !c.Secure || !c.HTTPOnly {
		t.Error("expected secure and httponly flags")
	}
	if !c.HasMaxAge || c.MaxAge != 3600 {
		t.Errorf("max-age = %d, hasMaxAge = %v", c.MaxAge, c.HasMaxAge)
	}
}

func TestParseSetCookieUnknownAttributeIgnored(t *testing.T) {
	c, ok := ParseSetCookie("a=b; SameSite=Lax; Partitioned")
	if !ok {
		t.Fatal("expected cookie to parse despite unknown attributes")
	}
	if c.Name != "a" || c.Value != "b" {
		t.Errorf("name/value = %q/%q", c.Name, c.Value)
	}
}

func TestParseSetCookieMalformed(t *testing.T) {
	if _, ok := ParseSetCookie(""); ok {
		t.Error("empty value should fail")
	}
	if _, ok := ParseSetCookie("novalue"); ok {
		t.Error("missing '=' should fail")
	}
}
