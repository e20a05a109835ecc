package domain

import (
	"fmt"
	"strings"

	"github.com/haukened/famfilter/internal/policy/common/utils"
)

// WildcardPrefix marks a stored pattern that covers a base domain and all of its subdomains.
const WildcardPrefix = "*."

// MaxDomainLength is the longest domain or pattern accepted from callers.
const MaxDomainLength = 255

// Matches reports whether candidate is covered by the stored domain pattern.
//
// Precedence:
//  1. exact equality
//  2. "*.base" covers base itself and every name ending in ".base"
//  3. a plain pattern covers every name ending in "." + pattern
//
// Both sides are compared in canonical form (lower case, no trailing dot).
// Suffix checks happen on label boundaries, so "*.example.com" does not cover
// "notexample.com".
func Matches(pattern, candidate string) bool {
	p := utils.CanonicalPattern(pattern)
	c := utils.CanonicalDomainName(candidate)
	if p == "" || c == "" {
		return false
	}
	if p == c {
		return true
	}
	if strings.HasPrefix(p, WildcardPrefix) {
		base := p[len(WildcardPrefix):]
		if base == "" {
			return false
		}
		return c == base || strings.HasSuffix(c, "."+base)
	}
	return strings.HasSuffix(c, "."+p)
}

// ValidatePattern checks a domain pattern supplied by a caller before it is stored.
// It rejects empty names, over-long names, malformed labels and patterns that
// would cover a whole public suffix such as "*.com".
func ValidatePattern(pattern string) error {
	p := utils.CanonicalPattern(pattern)
	if p == "" {
		return fmt.Errorf("%w: domain must not be empty", ErrInvalidInput)
	}
	if len(p) > MaxDomainLength {
		return fmt.Errorf("%w: domain %q exceeds %d characters", ErrInvalidInput, p, MaxDomainLength)
	}
	base := strings.TrimPrefix(p, WildcardPrefix)
	for _, label := range strings.Split(base, ".") {
		if !validLabel(label) {
			return fmt.Errorf("%w: domain %q has invalid label %q", ErrInvalidInput, p, label)
		}
	}
	if utils.IsPublicSuffix(base) {
		return fmt.Errorf("%w: domain %q is a public suffix", ErrInvalidInput, p)
	}
	return nil
}

func validLabel(label string) bool {
	if len(label) == 0 || len(label) > 63 {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
