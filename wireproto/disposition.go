package wireproto

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// ParseContentDisposition extracts a filename from a Content-Disposition
// header value, handling both the plain "filename=" form and the RFC 5987
// extended "filename*=charset'lang'value" form (percent-decoded; non-UTF-8
// input is transcoded to UTF-8 assuming ISO-8859-1). Only the last path
// segment of the decoded value is kept, matching spec §4.1.
func ParseContentDisposition(value string) (filename string, ok bool) {
	_, params := splitParams(value)

	if star, found := params.Get("filename*"); found {
		if name, decOK := decodeExtValue(star); decOK {
			return lastSegment(name), true
		}
	}
	if plain, found := params.Get("filename"); found {
		return lastSegment(plain), true
	}
	return "", false
}

// decodeExtValue decodes an RFC 5987 ext-value: charset'lang'pct-encoded.
func decodeExtValue(raw string) (string, bool) {
	parts := strings.SplitN(raw, "'", 3)
	if len(parts) != 3 {
		return "", false
	}
	charset := strings.ToLower(parts[0])
	encodedValue := parts[2]

	decoded, err := url.QueryUnescape(strings.ReplaceAll(encodedValue, "+", "%2B"))
	if err != nil {
		return "", false
	}

	switch charset {
	case "", "utf-8":
		return decoded, true
	case "iso-8859-1", "latin1":
		out, decErr := charmap.ISO8859_1.NewDecoder().String(decoded)
		if decErr != nil {
			return decoded, true
		}
		return out, true
	default:
		// Unknown charset: assume the bytes are already ISO-8859-1 and
		// transcode, matching spec §4.1's fallback rule.
		out, decErr := charmap.ISO8859_1.NewDecoder().String(decoded)
		if decErr != nil {
			return decoded, true
		}
		return out, true
	}
}

func lastSegment(name string) string {
	name = strings.TrimRight(name, "/")
	return path.Base(name)
}
