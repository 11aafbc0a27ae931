package urlutil

import (
	"fmt"
	"net/url"
)

// ResolveReference resolves a possibly-relative ref URL against a base URL.
// If ref is absolute, it is returned as-is. Otherwise it is resolved
// relative to base using net/url.URL.ResolveReference.
func ResolveReference(base string, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base URL %q: %w", base, err)
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse ref URL %q: %w", ref, err)
	}

	resolved := baseURL.ResolveReference(refURL)
	return resolved.String(), nil
}
