package evaluator

import (
	"time"

	"github.com/haukened/famfilter/internal/policy/domain"
)

// ResolveWithOverrides applies a device's overrides on top of the rule's verdict.
//
// Only overrides active at now take part. They are visited newest first and
// the first domain or category override whose subject matches decides the
// verdict. When none matches, extend_time and restrict_time overrides may
// adjust a time-based outcome; otherwise base is returned unchanged.
func ResolveWithOverrides(base domain.Verdict, overrides []domain.DeviceRuleOverride, name, category string, now time.Time) domain.Verdict {
	active := domain.ActiveOverrides(overrides, now)

	for _, o := range active {
		if v, ok := applySubjectOverride(o, name, category); ok {
			return v
		}
	}

	for _, o := range active {
		if v, ok := applyTimeOverride(o, base, now); ok {
			return v
		}
	}

	return base
}

// applySubjectOverride handles the overrides keyed on a domain or category.
func applySubjectOverride(o domain.DeviceRuleOverride, name, category string) (domain.Verdict, bool) {
	switch o.Type {
	case domain.OverrideBlockDomain:
		if domain.Matches(o.Value, name) {
			return domain.Verdict{Allowed: false, Reason: domain.ReasonOverrideBlock, Pattern: o.Value, OverrideID: o.ID}, true
		}
	case domain.OverrideAllowDomain:
		if domain.Matches(o.Value, name) {
			return domain.Verdict{Allowed: true, Reason: domain.ReasonOverrideAllow, Pattern: o.Value, OverrideID: o.ID}, true
		}
	case domain.OverrideEnableCategory:
		if category != "" && o.Value == category {
			return domain.Verdict{Allowed: false, Reason: domain.ReasonOverrideCategoryEnable, Category: category, OverrideID: o.ID}, true
		}
	case domain.OverrideDisableCategory:
		if category != "" && o.Value == category {
			return domain.Verdict{Allowed: true, Reason: domain.ReasonOverrideCategoryDisable, Category: category, OverrideID: o.ID}, true
		}
	}
	return domain.Verdict{}, false
}

// applyTimeOverride handles extend_time and restrict_time.
//
// extend_time lifts the rule's time window for d after the override was
// created. restrict_time leaves d of access after creation and then blocks
// domains the rule would otherwise allow by default. Values that do not parse
// as a duration are inert.
func applyTimeOverride(o domain.DeviceRuleOverride, base domain.Verdict, now time.Time) (domain.Verdict, bool) {
	if !o.Type.IsTime() {
		return domain.Verdict{}, false
	}
	d, err := domain.ParseOverrideDuration(o.Value)
	if err != nil {
		return domain.Verdict{}, false
	}
	cutoff := o.CreatedAt.Add(d)

	switch o.Type {
	case domain.OverrideExtendTime:
		if base.Reason == domain.ReasonTimeRestricted && !now.Before(o.CreatedAt) && now.Before(cutoff) {
			return domain.Verdict{Allowed: true, Reason: domain.ReasonOverrideTimeExtend, Pattern: o.Value, OverrideID: o.ID}, true
		}
	case domain.OverrideRestrictTime:
		if base.Reason == domain.ReasonDefaultAllow && !now.Before(cutoff) {
			return domain.Verdict{Allowed: false, Reason: domain.ReasonOverrideTimeRestrict, Pattern: o.Value, OverrideID: o.ID}, true
		}
	}
	return domain.Verdict{}, false
}
