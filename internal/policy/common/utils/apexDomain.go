package utils

import "golang.org/x/net/publicsuffix"

// GetApexDomain returns the registrable domain (eTLD+1) for name, falling back
// to the canonical name itself when it has none.
func GetApexDomain(name string) string {
	name = CanonicalDomainName(name)
	apexDomain, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		apexDomain = name
	}
	return apexDomain
}

// IsPublicSuffix reports whether name is itself a public suffix ("com", "co.uk").
// A pattern covering a whole public suffix would filter every site beneath it.
func IsPublicSuffix(name string) bool {
	name = CanonicalDomainName(name)
	if name == "" {
		return false
	}
	suffix, _ := publicsuffix.PublicSuffix(name)
	return suffix == name
}
