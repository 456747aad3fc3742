package push

import (
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeURL trims whitespace and applies Unicode NFC so that visually
// identical hub and topic URLs share one (hub, topic) key.
func normalizeURL(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// validateURL reports whether s is an absolute http or https URL.
func validateURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
