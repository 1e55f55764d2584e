// Package urlutil provides URL manipulation utilities that preserve original encoding.
package urlutil

import (
	"net/url"
	"strings"
)

// ResolveReference resolves a potentially relative playlist reference
// against the URL of the playlist it came from. Uses string manipulation to
// preserve original URL encoding: Go's url.ResolveReference re-encodes
// special characters, which breaks CDNs that use parentheses, brackets, or
// other special chars in segment paths.
func ResolveReference(ref string, baseURL string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}

	// Base directory: strip query string and the trailing path segment.
	base := baseURL
	if idx := strings.Index(base, "?"); idx > 0 {
		base = base[:idx]
	}
	if lastSlash := strings.LastIndex(base, "/"); lastSlash > 0 {
		base = base[:lastSlash+1]
	}

	if strings.HasPrefix(ref, "/") {
		// Root-relative: combine with scheme+host from base.
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return base + ref
		}
		return parsed.Scheme + "://" + parsed.Host + ref
	}

	// Parent directory references.
	if strings.HasPrefix(ref, "../") {
		result := base
		remaining := ref
		for strings.HasPrefix(remaining, "../") {
			remaining = remaining[3:]
			result = strings.TrimSuffix(result, "/")
			if lastSlash := strings.LastIndex(result, "/"); lastSlash > 0 {
				result = result[:lastSlash+1]
			}
		}
		return result + remaining
	}

	// Plain relative path.
	return base + ref
}

// BaseDirectory returns the directory portion of a URL (without the
// filename), preserving original encoding.
func BaseDirectory(urlStr string) string {
	if idx := strings.Index(urlStr, "?"); idx > 0 {
		urlStr = urlStr[:idx]
	}
	if lastSlash := strings.LastIndex(urlStr, "/"); lastSlash > 0 {
		return urlStr[:lastSlash+1]
	}
	return urlStr
}

// SchemeHost extracts scheme://host from a URL.
func SchemeHost(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// IsAbsolute reports whether the string is an absolute http(s) URL.
func IsAbsolute(urlStr string) bool {
	return strings.HasPrefix(urlStr, "http://") || strings.HasPrefix(urlStr, "https://")
}
