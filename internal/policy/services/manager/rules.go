package manager

import (
	"context"
	"strings"

	"github.com/haukened/famfilter/internal/policy/domain"
)

type CreateRuleInput struct {
	Audit
	CustomerID           string   `validate:"required"`
	Name                 string   `validate:"required,max=255"`
	IsActive             *bool    // nil means active
	BlockedCategories    []string `validate:"dive,category"`
	TimeRestrictions     domain.TimeRestrictions
	RequireAdultApproval bool
	AdultPassword        string `validate:"omitempty,min=4,max=20"`
}

// CreateRule stores a new rule and records rule_created.
func (m *Manager) CreateRule(ctx context.Context, in CreateRuleInput) (domain.FamilyRule, error) {
	if err := m.check(in); err != nil {
		return domain.FamilyRule{}, err
	}
	if err := in.TimeRestrictions.Validate(); err != nil {
		return domain.FamilyRule{}, err
	}
	now := m.clock.Now()
	rule := domain.FamilyRule{
		ID:                   m.newID(),
		CustomerID:           in.CustomerID,
		Name:                 strings.TrimSpace(in.Name),
		IsActive:             in.IsActive == nil || *in.IsActive,
		TimeRestrictions:     in.TimeRestrictions.Clone(),
		RequireAdultApproval: in.RequireAdultApproval,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	for _, slug := range in.BlockedCategories {
		rule.AddBlockedCategory(slugOf(slug))
	}
	if in.AdultPassword != "" {
		if err := rule.SetAdultPassword(in.AdultPassword); err != nil {
			return domain.FamilyRule{}, err
		}
	}
	if err := m.store.CreateRule(rule); err != nil {
		return domain.FamilyRule{}, err
	}
	err := m.record(ctx, in.Audit, rule.ID, "", domain.ActionRuleCreated, map[string]any{
		"name":               rule.Name,
		"blocked_categories": rule.BlockedCategories,
		"is_active":          rule.IsActive,
	})
	return rule, err
}

// UpdateRuleInput carries the fields to change; nil fields are left alone.
type UpdateRuleInput struct {
	Audit
	RuleID               string  `validate:"required"`
	Name                 *string `validate:"omitempty,min=1,max=255"`
	IsActive             *bool
	BlockedCategories    *[]string `validate:"omitempty,dive,category"`
	TimeRestrictions     *domain.TimeRestrictions
	RequireAdultApproval *bool
}

// UpdateRule applies the non-nil fields of in and records rule_updated with
// the list of changed fields.
func (m *Manager) UpdateRule(ctx context.Context, in UpdateRuleInput) (domain.FamilyRule, error) {
	if err := m.check(in); err != nil {
		return domain.FamilyRule{}, err
	}
	rule, err := m.store.Rule(in.RuleID)
	if err != nil {
		return domain.FamilyRule{}, err
	}

	var changed []string
	if in.Name != nil {
		rule.Name = strings.TrimSpace(*in.Name)
		changed = append(changed, "name")
	}
	if in.IsActive != nil {
		rule.IsActive = *in.IsActive
		changed = append(changed, "is_active")
	}
	if in.BlockedCategories != nil {
		rule.BlockedCategories = nil
		for _, slug := range *in.BlockedCategories {
			rule.AddBlockedCategory(slugOf(slug))
		}
		changed = append(changed, "blocked_categories")
	}
	if in.TimeRestrictions != nil {
		if err := in.TimeRestrictions.Validate(); err != nil {
			return domain.FamilyRule{}, err
		}
		rule.TimeRestrictions = in.TimeRestrictions.Clone()
		changed = append(changed, "time_restrictions")
	}
	if in.RequireAdultApproval != nil {
		rule.RequireAdultApproval = *in.RequireAdultApproval
		changed = append(changed, "require_adult_approval")
	}
	if len(changed) == 0 {
		return rule, nil
	}

	rule.UpdatedAt = m.clock.Now()
	if err := m.store.UpdateRule(rule); err != nil {
		return domain.FamilyRule{}, err
	}
	err = m.record(ctx, in.Audit, rule.ID, "", domain.ActionRuleUpdated, map[string]any{
		"changed": changed,
	})
	return rule, err
}

// DeleteRule removes the rule with its domain lists and overrides and records rule_deleted.
func (m *Manager) DeleteRule(ctx context.Context, ruleID string, a Audit) error {
	if err := m.check(a); err != nil {
		return err
	}
	rule, err := m.store.Rule(ruleID)
	if err != nil {
		return err
	}
	if err := m.store.DeleteRule(ruleID); err != nil {
		return err
	}
	return m.record(ctx, a, ruleID, "", domain.ActionRuleDeleted, map[string]any{
		"name": rule.Name,
	})
}

// SetAdultPassword replaces the rule's adult override password. The password
// itself never reaches the activity log.
func (m *Manager) SetAdultPassword(ctx context.Context, ruleID, password string, a Audit) error {
	if err := m.check(a); err != nil {
		return err
	}
	rule, err := m.store.Rule(ruleID)
	if err != nil {
		return err
	}
	if err := rule.SetAdultPassword(password); err != nil {
		return err
	}
	rule.UpdatedAt = m.clock.Now()
	if err := m.store.UpdateRule(rule); err != nil {
		return err
	}
	return m.record(ctx, a, ruleID, "", domain.ActionRuleUpdated, map[string]any{
		"changed": []string{"adult_password"},
	})
}

// VerifyAdultPassword checks password against the rule's stored hash.
func (m *Manager) VerifyAdultPassword(ruleID, password string) (bool, error) {
	rule, err := m.store.Rule(ruleID)
	if err != nil {
		return false, err
	}
	return rule.VerifyAdultPassword(password), nil
}
