package utils

import "strings"

// CanonicalDomainName returns a domain name in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dot
func CanonicalDomainName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// CanonicalPattern canonicalizes a stored domain pattern while keeping a
// leading "*." wildcard marker intact.
func CanonicalPattern(pattern string) string {
	p := strings.TrimSpace(pattern)
	if strings.HasPrefix(p, "*.") {
		return "*." + CanonicalDomainName(p[2:])
	}
	return CanonicalDomainName(p)
}
