package domain

import (
	"fmt"
	"strings"
	"time"
)

// Actor identifies who performed an action or added an entry.
type Actor string

const (
	ActorAdmin     Actor = "admin"
	ActorParent    Actor = "parent"
	ActorAutomatic Actor = "automatic"
	ActorSystem    Actor = "system"
)

// ParseActor converts a string into an Actor (case-insensitive).
func ParseActor(s string) (Actor, error) {
	a := Actor(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActorAdmin, ActorParent, ActorAutomatic, ActorSystem:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unsupported actor %q", ErrInvalidInput, s)
	}
}

// MaxReasonLength bounds free-text reasons on entries and overrides.
const MaxReasonLength = 500

// BlockedDomain is a domain pattern on a rule's block list.
type BlockedDomain struct {
	ID           string
	RuleID       string
	Domain       string // canonical pattern, may start with "*."
	CategorySlug string // optional
	Severity     Severity
	Reason       string
	AddedBy      Actor // admin, parent or automatic
	CreatedAt    time.Time
}

// Matches reports whether the entry's pattern covers name.
func (b BlockedDomain) Matches(name string) bool { return Matches(b.Domain, name) }

// SeverityColor returns the display colour of the entry's severity.
func (b BlockedDomain) SeverityColor() string { return b.Severity.Color() }

// IsHighRisk reports whether the entry's severity is high or critical.
func (b BlockedDomain) IsHighRisk() bool { return b.Severity.IsHighRisk() }

// WasAddedAutomatically reports whether a feed or system process added the entry.
func (b BlockedDomain) WasAddedAutomatically() bool { return b.AddedBy == ActorAutomatic }

// Validate checks the entry's pattern, severity, actor and reason.
func (b BlockedDomain) Validate() error {
	if err := ValidatePattern(b.Domain); err != nil {
		return err
	}
	if !b.Severity.Valid() {
		return fmt.Errorf("%w: unsupported severity %q", ErrInvalidInput, b.Severity)
	}
	switch b.AddedBy {
	case ActorAdmin, ActorParent, ActorAutomatic:
	default:
		return fmt.Errorf("%w: blocked domain cannot be added by %q", ErrInvalidInput, b.AddedBy)
	}
	if len(b.Reason) > MaxReasonLength {
		return fmt.Errorf("%w: reason exceeds %d characters", ErrInvalidInput, MaxReasonLength)
	}
	return nil
}

// AllowedDomain is a domain pattern on a rule's allow list.
type AllowedDomain struct {
	ID        string
	RuleID    string
	Domain    string // canonical pattern, may start with "*."
	Reason    string
	AddedBy   Actor // admin or parent
	CreatedAt time.Time
}

// Matches reports whether the entry's pattern covers name.
func (a AllowedDomain) Matches(name string) bool { return Matches(a.Domain, name) }

// Validate checks the entry's pattern, actor and reason.
func (a AllowedDomain) Validate() error {
	if err := ValidatePattern(a.Domain); err != nil {
		return err
	}
	switch a.AddedBy {
	case ActorAdmin, ActorParent:
	default:
		return fmt.Errorf("%w: allowed domain cannot be added by %q", ErrInvalidInput, a.AddedBy)
	}
	if len(a.Reason) > MaxReasonLength {
		return fmt.Errorf("%w: reason exceeds %d characters", ErrInvalidInput, MaxReasonLength)
	}
	return nil
}

// RuleSnapshot is an immutable view of a rule and its domain lists, as read
// by the evaluator. The store hands out deep copies.
type RuleSnapshot struct {
	Rule    FamilyRule
	Blocked []BlockedDomain
	Allowed []AllowedDomain
}
