// Package validate holds the input checks used by the onboarding questions.
package validate

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidWebsite is returned when an answer cannot be turned into an absolute http(s) URL.
var ErrInvalidWebsite = errors.New("invalid website")

// RE2's \s is ASCII only; the extra classes cover the unicode spaces a browser
// regex would reject as well.
var emailPattern = regexp.MustCompile(`^[^\s\p{Z}\x{0B}\x{FEFF}@]+@[^\s\p{Z}\x{0B}\x{FEFF}@]+\.[^\s\p{Z}\x{0B}\x{FEFF}@]+$`)

// Email reports whether s has the local@domain.tld shape. No DNS lookup is made.
func Email(s string) bool {
	return emailPattern.MatchString(s)
}

// NormalizeWebsite trims the answer and prefixes https:// when no scheme is given.
func NormalizeWebsite(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s
	}
	return "https://" + s
}

// Website checks that a normalized answer is an absolute http(s) URL with a host.
func Website(normalized string) error {
	if normalized == "" || strings.ContainsAny(normalized, " \t\r\n") {
		return ErrInvalidWebsite
	}

	u, err := url.Parse(normalized)
	if err != nil {
		return ErrInvalidWebsite
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidWebsite
	}
	if u.Hostname() == "" {
		return ErrInvalidWebsite
	}
	return nil
}
