package wireproto

import "strings"

// Cookie is a parsed Set-Cookie entry per RFC 6265.
type Cookie struct {
	Name      string
	Value     string
	Domain    string
	DomainDot bool // true if the Domain attribute had a leading '.' (collapsed)
	Path      string
	Expires   int64 // POSIX seconds UTC; 0 means session cookie
	MaxAge    int64 // seconds; only set if the Max-Age attribute was present
	HasMaxAge bool
	Secure    bool
	HTTPOnly  bool
}

// ParseSetCookie parses a single Set-Cookie header value.
func ParseSetCookie(value string) (Cookie, bool) {
	segments := splitTopLevel(value, ';')
	if len(segments) == 0 {
		return Cookie{}, false
	}

	nameValue := strings.TrimSpace(segments[0])
	eq := strings.IndexByte(nameValue, '=')
	if eq < 0 {
		return Cookie{}, false
	}
	c := Cookie{
		Name:  strings.TrimSpace(nameValue[:eq]),
		Value: strings.TrimSpace(nameValue[eq+1:]),
	}
	if c.Name == "" {
		return Cookie{}, false
	}

	for _, seg := range segments[1:] {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		var attrName, attrValue string
		if idx := strings.IndexByte(seg, '='); idx >= 0 {
			attrName = strings.ToLower(strings.TrimSpace(seg[:idx]))
			attrValue = strings.TrimSpace(seg[idx+1:])
		} else {
			attrName = strings.ToLower(seg)
		}

		switch attrName {
		case "expires":
			c.Expires = ParseDate(attrValue)
		case "max-age":
			if n, ok := parseSignedInt(attrValue); ok {
				c.MaxAge = n
				c.HasMaxAge = true
			}
		case "domain":
			d := attrValue
			if strings.HasPrefix(d, ".") {
				c.DomainDot = true
				d = d[1:]
			}
			c.Domain = strings.ToLower(d)
		case "path":
			c.Path = attrValue
		case "secure":
			c.Secure = true
		case "httponly":
			c.HTTPOnly = true
		default:
			// unknown attributes are ignored per spec §4.1
		}
	}

	return c, true
}

func parseSignedInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	neg := false
	i := 0
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		i++
	}
	if i >= len(s) {
		return 0, false
	}
	var n int64
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int64(s[i]-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}
