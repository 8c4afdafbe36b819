package registry

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeEndpoint checks that raw is an absolute http(s) URL and trims any
// trailing slash.
func NormalizeEndpoint(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("empty endpoint")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("endpoint %q must use http or https", raw)
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return "", fmt.Errorf("endpoint %q has no host", raw)
	}
	return strings.TrimSuffix(trimmed, "/"), nil
}

// JoinPath appends path to base with exactly one slash between them.
func JoinPath(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
