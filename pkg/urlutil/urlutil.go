package urlutil

import (
	"strings"

	"net/url"
)

// Canonicalize applies a deterministic normalization to a URL, producing a canonical form.
// It maps equivalent URL spellings to a single canonical representation.
//
// The normalization follows these rules:
//   - Scheme and host are lowercased
//   - Path is cleaned (trailing slashes removed, except for root "/")
//   - Fragments are removed
//   - Query parameters are removed
//   - Default ports are omitted (e.g., :80 for http, :443 for https)
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: Canonicalize(Canonicalize(url)) == Canonicalize(url)
//   - Context-free: does not depend on crawl history
func Canonicalize(sourceUrl url.URL) url.URL {
	// Create a copy to avoid mutating the original
	canonical := sourceUrl

	// Lowercase scheme and host
	canonical.Scheme = lowerASCII(canonical.Scheme)
	canonical.Host = lowerASCII(canonical.Host)

	// Remove default port if present
	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	// Clean the path: remove trailing slashes (except root)
	if len(canonical.Path) > 1 {
		canonical.Path = stripTrailingSlash(canonical.Path)
	}

	// Remove fragment (anchor)
	canonical.Fragment = ""
	canonical.RawFragment = ""

	// Remove query parameters
	canonical.RawQuery = ""
	canonical.ForceQuery = false

	return canonical
}

// lowerASCII converts ASCII characters to lowercase without allocating.
// This is faster than strings.ToLower for ASCII-only strings.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// stripTrailingSlash removes trailing slashes from a path.
func stripTrailingSlash(path string) string {
	for len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}

// Resolve joins base against href and returns the absolute URL, per
// spec.md §4.1 "resolve(base, href) -> URL?". A nil error with a zero
// URL never happens: failure is always reported via the error.
func Resolve(base url.URL, href string) (url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return url.URL{}, err
	}
	return *base.ResolveReference(ref), nil
}

// Domain returns the lowercase host of u. If the host is empty (the
// URL is already a bare path), the path is returned instead, per
// spec.md §4.1.
func Domain(u url.URL) string {
	host := lowerASCII(u.Hostname())
	if host == "" {
		return u.Path
	}
	return host
}

// IsAllowedExtension reports whether u's path does NOT end with any
// of the case-insensitive suffixes in banned. An empty banned set
// always allows.
func IsAllowedExtension(u url.URL, banned map[string]struct{}) bool {
	if len(banned) == 0 {
		return true
	}
	path := strings.ToLower(u.Path)
	for ext := range banned {
		if ext == "" {
			continue
		}
		if strings.HasSuffix(path, strings.ToLower(ext)) {
			return false
		}
	}
	return true
}

// SameDomain reports whether a and b share the same lowercased host.
func SameDomain(a, b url.URL) bool {
	return Domain(a) == Domain(b)
}
