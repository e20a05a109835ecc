// Package evaluator decides whether a family rule, and a device's overrides on
// top of it, allow a domain. The decision functions are pure: they read their
// arguments and return a value, so concurrent calls need no coordination.
package evaluator

import (
	"time"

	"github.com/haukened/famfilter/internal/policy/domain"
)

// Evaluate decides a domain against a rule and its domain lists.
//
// Order: inactive rule, allow list, block list, blocked category, time
// window, default allow. Narrower decisions win over broader ones, so an
// explicit allow beats every block below it.
//
// category is the slug an external categorizer assigned to name, or "" when
// it has none.
func Evaluate(rule domain.FamilyRule, blocked []domain.BlockedDomain, allowed []domain.AllowedDomain, name, category string, now time.Time) domain.Verdict {
	if !rule.IsActive {
		return domain.Verdict{Allowed: true, Reason: domain.ReasonRuleInactive}
	}

	for _, a := range allowed {
		if a.Matches(name) {
			return domain.Verdict{Allowed: true, Reason: domain.ReasonExplicitAllow, Pattern: a.Domain}
		}
	}

	for _, b := range blocked {
		if b.Matches(name) {
			return domain.Verdict{
				Allowed:  false,
				Reason:   domain.ReasonExplicitBlock,
				Pattern:  b.Domain,
				Category: b.CategorySlug,
				Severity: b.Severity,
			}
		}
	}

	if rule.IsCategoryBlocked(category) {
		return domain.Verdict{Allowed: false, Reason: domain.ReasonCategoryBlock, Category: category}
	}

	if rule.IsCurrentlyRestricted(now) {
		return domain.Verdict{Allowed: false, Reason: domain.ReasonTimeRestricted}
	}

	return domain.DefaultAllowVerdict()
}

// EvaluateSnapshot is Evaluate over a RuleSnapshot.
func EvaluateSnapshot(snap domain.RuleSnapshot, name, category string, now time.Time) domain.Verdict {
	return Evaluate(snap.Rule, snap.Blocked, snap.Allowed, name, category, now)
}
