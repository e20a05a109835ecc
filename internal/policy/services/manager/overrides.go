package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/haukened/famfilter/internal/policy/domain"
)

type GrantOverrideInput struct {
	Audit
	DeviceID        string              `validate:"required"`
	RuleID          string              `validate:"required"`
	Type            domain.OverrideType `validate:"required,oneof=allow_domain block_domain extend_time restrict_time disable_category enable_category"`
	Value           string              `validate:"required,max=255"`
	Reason          string              `validate:"max=500"`
	ExpiresAt       *time.Time
	DurationMinutes int `validate:"omitempty,min=1,max=1440"`
}

type UpdateOverrideInput struct {
	Audit
	OverrideID string  `validate:"required"`
	Reason     *string `validate:"omitempty,max=500"`
	ExpiresAt  *time.Time
	// ClearExpiry removes the expiry so the override never lapses.
	ClearExpiry bool
}

// GrantOverride creates a device override and records temporary_override_granted.
// The device must belong to the rule's customer and category overrides must
// name a known category.
func (m *Manager) GrantOverride(ctx context.Context, in GrantOverrideInput) (domain.DeviceRuleOverride, error) {
	if err := m.check(in); err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	if err := m.checkDevice(in.DeviceID, in.RuleID); err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	now := m.clock.Now()
	o, err := domain.NewOverride(domain.OverrideInput{
		DeviceID:        in.DeviceID,
		RuleID:          in.RuleID,
		Type:            in.Type,
		Value:           in.Value,
		Reason:          in.Reason,
		ExpiresAt:       in.ExpiresAt,
		DurationMinutes: in.DurationMinutes,
		CreatedBy:       in.PerformedBy,
	}, now)
	if err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	if o.Type.IsCategory() && !m.catalog.Known(o.Value) {
		return domain.DeviceRuleOverride{}, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, o.Value)
	}
	o.ID = m.newID()
	if err := m.store.AddOverride(o); err != nil {
		return domain.DeviceRuleOverride{}, err
	}

	details := map[string]any{
		"override_id": o.ID,
		"type":        string(o.Type),
		"value":       o.Value,
		"description": o.Description(),
		"reason":      o.Reason,
	}
	if o.ExpiresAt != nil {
		details["expires_at"] = o.ExpiresAt.UTC().Format(time.RFC3339)
	}
	err = m.record(ctx, in.Audit, o.RuleID, o.DeviceID, domain.ActionTemporaryOverrideGranted, details)
	return o, err
}

func (m *Manager) checkDevice(deviceID, ruleID string) error {
	rule, err := m.store.Rule(ruleID)
	if err != nil {
		return err
	}
	d, err := m.store.Device(deviceID)
	if err != nil {
		return err
	}
	return d.CheckOwner(rule)
}

// UpdateOverride changes an override's reason and expiry and records
// rule_updated. A new expiry must lie in the future.
func (m *Manager) UpdateOverride(ctx context.Context, in UpdateOverrideInput) (domain.DeviceRuleOverride, error) {
	if err := m.check(in); err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	if in.ClearExpiry && in.ExpiresAt != nil {
		return domain.DeviceRuleOverride{}, fmt.Errorf("%w: give either expires_at or clear_expiry, not both", domain.ErrInvalidInput)
	}
	o, err := m.store.Override(in.OverrideID)
	if err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	details := map[string]any{"override_id": o.ID}
	if in.Reason != nil {
		o.Reason = strings.TrimSpace(*in.Reason)
		details["reason"] = o.Reason
	}
	switch {
	case in.ExpiresAt != nil:
		if !in.ExpiresAt.After(m.clock.Now()) {
			return domain.DeviceRuleOverride{}, fmt.Errorf("%w: expires_at must be in the future", domain.ErrInvalidInput)
		}
		t := *in.ExpiresAt
		o.ExpiresAt = &t
		details["expires_at"] = t.UTC().Format(time.RFC3339)
	case in.ClearExpiry:
		o.ExpiresAt = nil
		details["expires_at"] = nil
	}
	if err := m.store.UpdateOverride(o); err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	err = m.record(ctx, in.Audit, o.RuleID, o.DeviceID, domain.ActionRuleUpdated, details)
	return o, err
}

// DeleteOverride removes an override and records rule_updated.
func (m *Manager) DeleteOverride(ctx context.Context, overrideID string, a Audit) (domain.DeviceRuleOverride, error) {
	if err := m.check(a); err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	o, err := m.store.DeleteOverride(overrideID)
	if err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	err = m.record(ctx, a, o.RuleID, o.DeviceID, domain.ActionRuleUpdated, map[string]any{
		"override_id": o.ID,
		"deleted":     true,
		"description": o.Description(),
	})
	return o, err
}

// ExtendOverride pushes an override's expiry back by minutes (1..1440) and
// records rule_updated.
func (m *Manager) ExtendOverride(ctx context.Context, overrideID string, minutes int, a Audit) (domain.DeviceRuleOverride, error) {
	if err := m.check(a); err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	o, err := m.store.Override(overrideID)
	if err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	if err := o.ExtendExpiration(minutes, m.clock.Now()); err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	if err := m.store.UpdateOverride(o); err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	err = m.record(ctx, a, o.RuleID, o.DeviceID, domain.ActionRuleUpdated, map[string]any{
		"override_id":      o.ID,
		"extended_minutes": minutes,
		"expires_at":       o.ExpiresAt.UTC().Format(time.RFC3339),
	})
	return o, err
}

// ExpireOverride ends an override now and records rule_updated. An override
// that has already expired yields domain.ErrAlreadyExpired.
func (m *Manager) ExpireOverride(ctx context.Context, overrideID string, a Audit) (domain.DeviceRuleOverride, error) {
	if err := m.check(a); err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	o, err := m.store.Override(overrideID)
	if err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	if err := o.MarkAsExpired(m.clock.Now()); err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	if err := m.store.UpdateOverride(o); err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	err = m.record(ctx, a, o.RuleID, o.DeviceID, domain.ActionRuleUpdated, map[string]any{
		"override_id": o.ID,
		"expired":     true,
	})
	return o, err
}

// OverrideStats summarises the overrides attached to a rule.
func (m *Manager) OverrideStats(ruleID string) (domain.OverrideStats, error) {
	if _, err := m.store.Rule(ruleID); err != nil {
		return domain.OverrideStats{}, err
	}
	return domain.SummarizeOverrides(m.store.OverridesForRule(ruleID), m.clock.Now()), nil
}
