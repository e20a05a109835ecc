package domain

import (
	"fmt"
	"strings"
)

// Severity grades how harmful a blocked domain or category is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DefaultSeverity applies to a blocked domain with neither an explicit
// severity nor a category to inherit one from.
const DefaultSeverity = SeverityMedium

// ParseSeverity converts a string into a Severity (case-insensitive).
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("%w: unsupported severity %q", ErrInvalidInput, s)
	}
	return sev, nil
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Color returns the display colour for the severity; unknown values are gray.
func (s Severity) Color() string {
	switch s {
	case SeverityLow:
		return "green"
	case SeverityMedium:
		return "yellow"
	case SeverityHigh:
		return "orange"
	case SeverityCritical:
		return "red"
	default:
		return "gray"
	}
}

// IsHighRisk is true for high and critical.
func (s Severity) IsHighRisk() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Rank orders severities from low (1) to critical (4); unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}
