package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidWebsite is returned when a website value cannot become an absolute URL
var ErrInvalidWebsite = errors.New("invalid website")

// NormalizeWebsite turns a website cell into an absolute http(s) URL.
//
// Rules:
//   - surrounding whitespace is trimmed
//   - "https://" is prefixed when no scheme is present ("//host" keeps its host)
//   - the scheme and host are lower-cased, the fragment is dropped
//   - only http and https are accepted, and a host is required
func NormalizeWebsite(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidWebsite)
	}

	switch {
	case strings.HasPrefix(s, "//"):
		s = "https:" + s
	case !strings.Contains(s, "://"):
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWebsite, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidWebsite, u.Scheme)
	}
	if u.Hostname() == "" || strings.ContainsAny(u.Hostname(), " \t") {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidWebsite, raw)
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}
