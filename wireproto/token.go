package wireproto

import "strings"

// isTokenChar reports whether b is a valid RFC 2616 token octet: ASCII
// 33-126 excluding the separator set.
func isTokenChar(b byte) bool {
	if b < 33 || b > 126 {
		return false
	}
	switch b {
	case '(', ')', '<', '>', '@', ',', ';', ':', '\\', '"', '/', '[', ']', '?', '=', '{', '}':
		return false
	}
	return true
}

// scanToken reads a token starting at s[i] and returns it plus the index
// immediately after it.
func scanToken(s string, i int) (string, int) {
	start := i
	for i < len(s) && isTokenChar(s[i]) {
		i++
	}
	return s[start:i], i
}

// skipSpace advances i past spaces and tabs.
func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

// scanQuotedString reads a quoted-string starting at s[i] == '"' and
// returns the unescaped value plus the index after the closing quote.
// If the string is unterminated, it returns everything through EOF.
func scanQuotedString(s string, i int) (string, int) {
	if i >= len(s) || s[i] != '"' {
		return "", i
	}
	i++
	var b strings.Builder
	for i < len(s) {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				b.WriteByte(s[i+1])
				i += 2
				continue
			}
			i++
		case '"':
			return b.String(), i + 1
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String(), i
}

// scanTokenOrQuoted reads either a token or a quoted-string starting at i.
func scanTokenOrQuoted(s string, i int) (string, int) {
	if i < len(s) && s[i] == '"' {
		return scanQuotedString(s, i)
	}
	return scanToken(s, i)
}

// splitParams splits a header value of the form "value; name=val; name2=val2"
// into the leading value and an ordered Params list. Parameter names are
// lower-cased; values are token-or-quoted-string, percent/charset decoding
// is left to the caller.
func splitParams(value string) (string, Params) {
	return splitParamsSep(value, ';')
}

// splitParamsSep is splitParams generalized over the parameter separator
// (';' for Content-Type/Content-Disposition/Link, ',' for auth challenges).
func splitParamsSep(value string, sep byte) (string, Params) {
	parts := splitTopLevel(value, sep)
	if len(parts) == 0 {
		return "", nil
	}
	head := strings.TrimSpace(parts[0])
	var params Params
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			params = append(params, KV{Name: strings.ToLower(part), Value: ""})
			continue
		}
		name := strings.ToLower(strings.TrimSpace(part[:eq]))
		val := strings.TrimSpace(part[eq+1:])
		val = unquoteIfQuoted(val)
		params = append(params, KV{Name: name, Value: val})
	}
	return head, params
}

// splitTopLevel splits s on sep, ignoring occurrences inside a quoted
// string.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
			cur.WriteByte(c)
		case c == '\\' && inQuote && i+1 < len(s):
			cur.WriteByte(c)
			cur.WriteByte(s[i+1])
			i++
		case c == sep && !inQuote:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

func unquoteIfQuoted(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		unescaped, _ := scanQuotedString(s, 0)
		return unescaped
	}
	return s
}
