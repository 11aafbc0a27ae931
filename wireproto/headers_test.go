package wireproto

import "testing"

func TestParseContentType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantCT  string
		wantCS  string
	}{
		{"simple", "text/html", "text/html", ""},
		{"with charset", "text/html; charset=utf-8", "text/html", "utf-8"},
		{"quoted charset", `text/html; charset="iso-8859-1"`, "text/html", "iso-8859-1"},
		{"mixed case", "Text/HTML; Charset=UTF-8", "text/html", "UTF-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct := ParseContentType(tt.input)
			if ct.String() != tt.wantCT {
				t.Errorf("type = %q, want %q", ct.String(), tt.wantCT)
			}
			if ct.Charset != tt.wantCS {
				t.Errorf("charset = %q, want %q", ct.Charset, tt.wantCS)
			}
		})
	}
}

func TestParseContentEncoding(t *testing.T) {
	tests := []struct {
		input string
		want  ContentEncoding
	}{
		{"gzip", EncodingGzip},
		{"x-gzip", EncodingGzip},
		{"deflate", EncodingDeflate},
		{"bzip2", EncodingBzip2},
		{"lzma", EncodingLZMA},
		{"xz", EncodingLZMA},
		{"x-lzma", EncodingLZMA},
		{"identity", EncodingIdentity},
		{"unknown-codec", EncodingIdentity},
		{"", EncodingIdentity},
	}
	for _, tt := range tests {
		if got := ParseContentEncoding(tt.input); got != tt.want {
			t.Errorf("ParseContentEncoding(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseContentLength(t *testing.T) {
	if n, ok := ParseContentLength("1234"); !ok || n != 1234 {
		t.Errorf("ParseContentLength(1234) = %d, %v", n, ok)
	}
	if _, ok := ParseContentLength("-1"); ok {
		t.Error("negative content-length should be invalid")
	}
	if _, ok := ParseContentLength("abc"); ok {
		t.Error("non-numeric content-length should be invalid")
	}
}

func TestIsChunked(t *testing.T) {
	if !IsChunked("chunked") {
		t.Error("chunked should be chunked")
	}
	if IsChunked("identity") {
		t.Error("identity should not be chunked")
	}
	if IsChunked("IDENTITY") {
		t.Error("identity is case-insensitive")
	}
	if !IsChunked("gzip, chunked") {
		t.Error("any non-identity value should be treated as chunked")
	}
}

func TestIsKeepAliveAndClose(t *testing.T) {
	if !IsKeepAlive("Keep-Alive") {
		t.Error("keep-alive should match case-insensitively")
	}
	if IsKeepAlive("close") {
		t.Error("close should not be keep-alive")
	}
	if !IsClose("Close") {
		t.Error("close should match case-insensitively")
	}
}
