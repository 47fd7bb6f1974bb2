// Package hostname validates and canonicalizes user-supplied hostnames.
// This is part of the Functional Core - all functions are pure with no I/O.
package hostname

import (
	"errors"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrInvalid is returned for any hostname that is not RFC compliant.
	ErrInvalid = errors.New("invalid hostname")

	// ErrWildcard is returned when the hostname contains a wildcard label.
	ErrWildcard = errors.New("wildcard hostnames are not allowed")

	// ErrApex is returned when the hostname has no subdomain label.
	ErrApex = errors.New("apex hostnames are not allowed; use a subdomain")
)

const (
	// MaxLength is the maximum length of a hostname, excluding the trailing dot.
	MaxLength = 253

	// MaxLabelLength is the maximum length of a single label.
	MaxLabelLength = 63
)

// =============================================================================
// Normalization
// =============================================================================

// Normalize canonicalizes raw into a lowercase hostname.
//
// Surrounding whitespace, a leading scheme://, any path, query or fragment,
// a port and trailing dots are removed before validation:
//
//	Normalize(" HTTPS://Shop.Example.com:443/cart?x=1 ") // "shop.example.com"
//	Normalize("www.example.com.")                        // "www.example.com"
func Normalize(raw string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(raw))

	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	h = stripPort(h)
	h = strings.TrimRight(h, ".")

	if strings.Contains(h, "*") {
		return "", ErrWildcard
	}
	if err := validate(h); err != nil {
		return "", err
	}
	return h, nil
}

// ForCreation normalizes raw and additionally rejects apex hostnames.
// It is the single gatekeeper before a custom domain is persisted.
func ForCreation(raw string) (string, error) {
	h, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	if IsApex(h) {
		return "", ErrApex
	}
	return h, nil
}

// IsApex reports whether h looks like a bare registrable domain (two labels or fewer).
func IsApex(h string) bool {
	return dns.CountLabel(strings.TrimRight(h, ".")) <= 2
}

func validate(h string) error {
	if h == "" {
		return fmt.Errorf("%w: empty", ErrInvalid)
	}
	if len(h) > MaxLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalid, MaxLength)
	}
	for _, c := range h {
		if !isHostChar(c) {
			return fmt.Errorf("%w: character %q not allowed", ErrInvalid, c)
		}
	}
	if strings.HasPrefix(h, ".") || strings.Contains(h, "..") {
		return fmt.Errorf("%w: empty label", ErrInvalid)
	}
	if strings.HasPrefix(h, "-") || strings.HasSuffix(h, "-") {
		return fmt.Errorf("%w: leading or trailing hyphen", ErrInvalid)
	}

	labels := dns.SplitDomainName(h)
	if len(labels) < 2 {
		return fmt.Errorf("%w: at least two labels required", ErrInvalid)
	}
	for _, label := range labels {
		if err := validateLabel(label); err != nil {
			return err
		}
	}
	return nil
}

func validateLabel(label string) error {
	switch {
	case label == "":
		return fmt.Errorf("%w: empty label", ErrInvalid)
	case len(label) > MaxLabelLength:
		return fmt.Errorf("%w: label %q longer than %d characters", ErrInvalid, label, MaxLabelLength)
	case label[0] == '-' || label[len(label)-1] == '-':
		return fmt.Errorf("%w: label %q starts or ends with a hyphen", ErrInvalid, label)
	}
	for _, c := range label {
		if c == '.' || !isHostChar(c) {
			return fmt.Errorf("%w: label %q", ErrInvalid, label)
		}
	}
	return nil
}

func isHostChar(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '.'
}

// stripPort removes a trailing :port if everything after the last colon is digits.
func stripPort(h string) string {
	idx := strings.LastIndex(h, ":")
	if idx == -1 {
		return h
	}
	port := h[idx+1:]
	if port == "" {
		return h[:idx]
	}
	for _, c := range port {
		if c < '0' || c > '9' {
			return h
		}
	}
	return h[:idx]
}
