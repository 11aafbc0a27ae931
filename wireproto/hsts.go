package wireproto

import "strings"

// HSTSDirective is a parsed Strict-Transport-Security header.
type HSTSDirective struct {
	MaxAge            int64 // seconds
	IncludeSubDomains bool
	Remove            bool // true when max-age=0 ("remove" per spec §4.1)
}

// ParseHSTS parses a Strict-Transport-Security header value.
func ParseHSTS(value string) (HSTSDirective, bool) {
	_, params := splitParamsLenient(value)
	maxAgeStr, ok := params.Get("max-age")
	if !ok {
		return HSTSDirective{}, false
	}
	n, numOK := parseSignedInt(strings.Trim(maxAgeStr, `"`))
	if !numOK || n < 0 {
		return HSTSDirective{}, false
	}
	_, includeSub := params.Get("includesubdomains")
	return HSTSDirective{
		MaxAge:            n,
		IncludeSubDomains: includeSub,
		Remove:            n == 0,
	}, true
}

// splitParamsLenient is like splitParams but treats the whole value as a
// parameter list (HSTS has no leading unnamed value).
func splitParamsLenient(value string) (string, Params) {
	return splitParams("x; " + value)
}
