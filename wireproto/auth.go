package wireproto

import "strings"

// Challenge is one scheme + param bag from a WWW-Authenticate header.
// Multiple challenges may appear comma-separated; Params uses
// case-insensitive key lookup as the param set is small and fixed (realm,
// nonce, opaque, qop, algorithm, ...).
type Challenge struct {
	Scheme string
	Params Params
}

// schemeNames lists the auth schemes this parser recognizes as challenge
// introducers. The Digest-over-Basic preference the worker applies lives in
// StrongestChallenge, not in this list's order.
var schemeNames = []string{"Digest", "Basic", "Bearer", "NTLM", "Negotiate"}

// ParseWWWAuthenticate splits a WWW-Authenticate header value into one or
// more Challenges. Commas inside quoted parameter values do not split a
// challenge; a comma followed by a recognized scheme name starts a new one.
func ParseWWWAuthenticate(value string) []Challenge {
	var challenges []Challenge
	remaining := strings.TrimSpace(value)

	for len(remaining) > 0 {
		scheme, rest := nextScheme(remaining)
		if scheme == "" {
			break
		}
		paramsStr, next := scanChallengeParams(rest)
		_, params := splitParamsSep("x, "+paramsStr, ',')
		challenges = append(challenges, Challenge{Scheme: scheme, Params: params})
		remaining = strings.TrimSpace(next)
		remaining = strings.TrimPrefix(remaining, ",")
		remaining = strings.TrimSpace(remaining)
	}
	return challenges
}

func nextScheme(s string) (scheme, rest string) {
	for _, name := range schemeNames {
		if len(s) >= len(name) && strings.EqualFold(s[:len(name)], name) {
			after := s[len(name):]
			if after == "" || after[0] == ' ' {
				return name, strings.TrimSpace(after)
			}
		}
	}
	// Unknown scheme: take the leading token as the scheme name.
	tok, i := scanToken(s, 0)
	if tok == "" {
		return "", s
	}
	return tok, strings.TrimSpace(s[i:])
}

// scanChallengeParams consumes name=value pairs up to (but not including)
// the next top-level comma that introduces a new scheme, returning the
// consumed text and what remains.
func scanChallengeParams(s string) (consumed, rest string) {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if inQuote {
				continue
			}
			// Peek ahead: does a recognized scheme name start right after?
			after := strings.TrimSpace(s[i+1:])
			if startsWithScheme(after) {
				return s[:i], s[i:]
			}
		}
	}
	return s, ""
}

func startsWithScheme(s string) bool {
	for _, name := range schemeNames {
		if len(s) >= len(name) && strings.EqualFold(s[:len(name)], name) {
			after := s[len(name):]
			return after == "" || after[0] == ' '
		}
	}
	return false
}

// StrongestChallenge returns the Digest challenge if present, else Basic,
// else the first challenge, matching spec §4.7's "Digest over Basic" rule.
func StrongestChallenge(challenges []Challenge) (Challenge, bool) {
	if len(challenges) == 0 {
		return Challenge{}, false
	}
	for _, c := range challenges {
		if strings.EqualFold(c.Scheme, "Digest") {
			return c, true
		}
	}
	for _, c := range challenges {
		if strings.EqualFold(c.Scheme, "Basic") {
			return c, true
		}
	}
	return challenges[0], true
}

// Digest is a single RFC 3230 Digest header entry: algorithm + encoded
// value. Repeats are allowed and returned in order.
type Digest struct {
	Algorithm string
	Value     string
}

// ParseDigest parses a Digest header value of the form
// "alg1=value1, alg2=value2, ...".
func ParseDigest(value string) []Digest {
	var digests []Digest
	for _, part := range splitTopLevel(value, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		digests = append(digests, Digest{
			Algorithm: strings.TrimSpace(part[:eq]),
			Value:     unquoteIfQuoted(strings.TrimSpace(part[eq+1:])),
		})
	}
	return digests
}
