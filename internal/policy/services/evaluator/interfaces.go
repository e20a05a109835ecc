package evaluator

import "github.com/haukened/famfilter/internal/policy/domain"

// Categorizer resolves a domain to at most one filtering category slug.
type Categorizer interface {
	Categorize(name string) (slug string, ok bool)
}

// RuleSource hands out immutable snapshots of a rule and a device's overrides.
// Implementations return errors wrapping domain.ErrNotFound for unknown ids.
type RuleSource interface {
	Snapshot(ruleID string) (domain.RuleSnapshot, error)
	Overrides(deviceID, ruleID string) ([]domain.DeviceRuleOverride, error)
}
