package manager

import (
	"context"
	"fmt"

	"github.com/haukened/famfilter/internal/policy/domain"
)

// BlockCategory adds slug to the rule's blocked categories and records
// category_blocked. Blocking a category twice is a conflict.
func (m *Manager) BlockCategory(ctx context.Context, ruleID, slug string, a Audit) (domain.FamilyRule, error) {
	if err := m.check(a); err != nil {
		return domain.FamilyRule{}, err
	}
	slug = slugOf(slug)
	cat, ok := m.catalog.Lookup(slug)
	if !ok || !cat.IsActive {
		return domain.FamilyRule{}, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, slug)
	}
	rule, err := m.store.Rule(ruleID)
	if err != nil {
		return domain.FamilyRule{}, err
	}
	if !rule.AddBlockedCategory(slug) {
		return domain.FamilyRule{}, fmt.Errorf("category %q already blocked for rule %q: %w", slug, ruleID, domain.ErrConflict)
	}
	rule.UpdatedAt = m.clock.Now()
	if err := m.store.UpdateRule(rule); err != nil {
		return domain.FamilyRule{}, err
	}
	err = m.record(ctx, a, ruleID, "", domain.ActionCategoryBlocked, map[string]any{
		"category": slug,
		"name":     cat.Name,
		"severity": string(cat.DefaultSeverity),
	})
	return rule, err
}

// UnblockCategory removes slug from the rule's blocked categories and records
// category_unblocked. Unblocking a category that is not blocked is invalid input.
func (m *Manager) UnblockCategory(ctx context.Context, ruleID, slug string, a Audit) (domain.FamilyRule, error) {
	if err := m.check(a); err != nil {
		return domain.FamilyRule{}, err
	}
	slug = slugOf(slug)
	rule, err := m.store.Rule(ruleID)
	if err != nil {
		return domain.FamilyRule{}, err
	}
	if !rule.RemoveBlockedCategory(slug) {
		return domain.FamilyRule{}, fmt.Errorf("%w: category %q is not blocked for rule %q", domain.ErrInvalidInput, slug, ruleID)
	}
	rule.UpdatedAt = m.clock.Now()
	if err := m.store.UpdateRule(rule); err != nil {
		return domain.FamilyRule{}, err
	}
	err = m.record(ctx, a, ruleID, "", domain.ActionCategoryUnblocked, map[string]any{
		"category": slug,
	})
	return rule, err
}
