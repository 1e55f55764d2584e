// Package playlist rewrites HLS manifests so every segment and
// sub-playlist reference loops back through the relay.
package playlist

import (
	"bufio"
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"stream-relay-go/pkg/types"
	"stream-relay-go/pkg/urlutil"
)

// MimeType is emitted for every rewritten manifest, regardless of what the
// origin reported. Origins sometimes omit or mislabel it.
const MimeType = "application/vnd.apple.mpegurl"

// maxLineSize bounds a single manifest line. DATERANGE and session-data
// tags can exceed bufio.Scanner's default 64KB token limit.
const maxLineSize = 10 * 1024 * 1024

// Rewrite transforms an HLS manifest body. Tag and blank lines pass through
// untouched; every other line is treated as a URL reference, resolved to an
// absolute URL against baseURL and replaced with a relay URL on
// proxyOrigin. baseURL must be the final URL after any upstream redirect,
// or relative references resolve against the wrong directory.
func Rewrite(manifest []byte, baseURL, proxyOrigin string, mode types.Mode) ([]byte, error) {
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(manifest))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}

		abs := urlutil.ResolveReference(trimmed, baseURL)
		out.WriteString(RelayURL(abs, proxyOrigin, mode))
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning manifest: %w", err)
	}

	return out.Bytes(), nil
}

// RelayURL wraps an absolute target URL into a same-origin relay URL,
// carrying the routing mode so follow-up requests keep mode continuity.
func RelayURL(target, proxyOrigin string, mode types.Mode) string {
	u := proxyOrigin + "/relay?url=" + url.QueryEscape(target)
	if mode != "" && mode != types.ModeStandard {
		u += "&mode=" + string(mode)
	}
	return u
}

// IsPlaylist classifies a fetched response: content type carrying an HLS
// MIME marker, or a URL with the .m3u8 suffix anywhere in it.
func IsPlaylist(contentType string, urls ...string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "mpegurl") {
		return true
	}
	for _, u := range urls {
		if strings.Contains(strings.ToLower(u), ".m3u8") {
			return true
		}
	}
	return false
}
