package manager

import (
	"context"

	"github.com/haukened/famfilter/internal/policy/domain"
)

// Recorder appends one audit entry per successful mutation.
type Recorder interface {
	Record(ctx context.Context, rec domain.ActivityRecord) (domain.LogEntry, error)
}

// RuleStore is the mutable side of the rule repository.
type RuleStore interface {
	CreateRule(rule domain.FamilyRule) error
	UpdateRule(rule domain.FamilyRule) error
	Rule(id string) (domain.FamilyRule, error)
	DeleteRule(id string) error

	AddBlocked(entry domain.BlockedDomain) error
	BlockedEntry(ruleID, pattern string) (domain.BlockedDomain, error)
	UpdateBlocked(entry domain.BlockedDomain) error
	RemoveBlocked(ruleID, pattern string) (domain.BlockedDomain, error)
	AddAllowed(entry domain.AllowedDomain) error
	AllowedEntry(ruleID, pattern string) (domain.AllowedDomain, error)
	UpdateAllowed(entry domain.AllowedDomain) error
	RemoveAllowed(ruleID, pattern string) (domain.AllowedDomain, error)

	Device(id string) (domain.FamilyDevice, error)

	AddOverride(o domain.DeviceRuleOverride) error
	UpdateOverride(o domain.DeviceRuleOverride) error
	DeleteOverride(id string) (domain.DeviceRuleOverride, error)
	Override(id string) (domain.DeviceRuleOverride, error)
	OverridesForRule(ruleID string) []domain.DeviceRuleOverride
}
