package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Reason explains why a verdict allows or blocks a domain.
type Reason uint8

const (
	ReasonDefaultAllow Reason = iota
	ReasonRuleInactive
	ReasonExplicitAllow
	ReasonExplicitBlock
	ReasonCategoryBlock
	ReasonTimeRestricted
	ReasonOverrideBlock
	ReasonOverrideAllow
	ReasonOverrideCategoryEnable
	ReasonOverrideCategoryDisable
	ReasonOverrideTimeExtend
	ReasonOverrideTimeRestrict
)

var reasonNames = [...]string{
	ReasonDefaultAllow:            "default_allow",
	ReasonRuleInactive:            "rule_inactive",
	ReasonExplicitAllow:           "explicit_allow",
	ReasonExplicitBlock:           "explicit_block",
	ReasonCategoryBlock:           "category_block",
	ReasonTimeRestricted:          "time_restricted",
	ReasonOverrideBlock:           "override_block",
	ReasonOverrideAllow:           "override_allow",
	ReasonOverrideCategoryEnable:  "override_category_enable",
	ReasonOverrideCategoryDisable: "override_category_disable",
	ReasonOverrideTimeExtend:      "override_time_extend",
	ReasonOverrideTimeRestrict:    "override_time_restrict",
}

// String returns the stable snake_case name of the reason.
func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("Reason(%d)", r)
}

// ParseReason converts a snake_case name into a Reason.
func ParseReason(s string) (Reason, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range reasonNames {
		if name == s {
			return Reason(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unsupported reason %q", ErrInvalidInput, s)
}

// MarshalText encodes the reason by name.
func (r Reason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText decodes a reason name.
func (r *Reason) UnmarshalText(b []byte) error {
	v, err := ParseReason(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// IsOverride reports whether a device override produced the reason.
func (r Reason) IsOverride() bool { return r >= ReasonOverrideBlock && int(r) < len(reasonNames) }

// Verdict is the outcome of evaluating a domain against a rule and its overrides.
// Pure value type.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
	// Pattern is the block/allow entry or override value that decided the verdict.
	Pattern string `json:"pattern,omitempty"`
	// Category and Severity are set for explicit blocks and category decisions.
	Category string   `json:"category,omitempty"`
	Severity Severity `json:"severity,omitempty"`
	// OverrideID names the override that replaced the rule's decision.
	OverrideID string `json:"override_id,omitempty"`
}

// IsBlocked is a convenience accessor.
func (v Verdict) IsBlocked() bool { return !v.Allowed }

// DefaultAllowVerdict returns the verdict for a domain nothing restricts.
func DefaultAllowVerdict() Verdict { return Verdict{Allowed: true, Reason: ReasonDefaultAllow} }

// SortNewestFirst returns a copy of overrides ordered most-recently-created
// first. Overrides created at the same instant keep their input order reversed,
// so later-appended entries count as newer.
func SortNewestFirst(overrides []DeviceRuleOverride) []DeviceRuleOverride {
	out := slices.Clone(overrides)
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b DeviceRuleOverride) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// ActiveOverrides returns the overrides active at now, newest first.
func ActiveOverrides(overrides []DeviceRuleOverride, now time.Time) []DeviceRuleOverride {
	out := make([]DeviceRuleOverride, 0, len(overrides))
	for _, o := range SortNewestFirst(overrides) {
		if o.IsActive(now) {
			out = append(out, o)
		}
	}
	return out
}
