package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/haukened/famfilter/internal/policy/common/utils"
	"github.com/haukened/famfilter/internal/policy/domain"
)

type BlockDomainInput struct {
	Audit
	RuleID       string          `validate:"required"`
	Domain       string          `validate:"required,max=255,pattern"`
	CategorySlug string          `validate:"omitempty,category"`
	Severity     domain.Severity `validate:"omitempty,oneof=low medium high critical"`
	Reason       string          `validate:"max=500"`
}

type AllowDomainInput struct {
	Audit
	RuleID string `validate:"required"`
	Domain string `validate:"required,max=255,pattern"`
	Reason string `validate:"max=500"`
}

type BulkBlockInput struct {
	Audit
	RuleID       string          `validate:"required"`
	Domains      []string        `validate:"required,min=1,max=100"`
	CategorySlug string          `validate:"omitempty,category"`
	Severity     domain.Severity `validate:"omitempty,oneof=low medium high critical"`
	Reason       string          `validate:"max=500"`
}

type BulkAllowInput struct {
	Audit
	RuleID  string   `validate:"required"`
	Domains []string `validate:"required,min=1,max=100"`
	Reason  string   `validate:"max=500"`
}

// UpdateBlockedInput changes an existing block list entry. Nil fields are
// left alone; an empty CategorySlug clears the category.
type UpdateBlockedInput struct {
	Audit
	RuleID       string  `validate:"required"`
	Domain       string  `validate:"required,max=255"`
	Reason       *string `validate:"omitempty,max=500"`
	CategorySlug *string
	Severity     *domain.Severity `validate:"omitempty,oneof=low medium high critical"`
}

type UpdateAllowedInput struct {
	Audit
	RuleID string  `validate:"required"`
	Domain string  `validate:"required,max=255"`
	Reason *string `validate:"omitempty,max=500"`
}

// BulkResult reports what a bulk add did with each requested domain.
type BulkResult struct {
	Added   []string
	Skipped []string          // already on the list, or repeated in the request
	Errors  map[string]string // domain -> reason it was rejected
}

// BlockDomain adds a pattern to the rule's block list and records
// domain_blocked. Severity defaults to the category's, else medium.
func (m *Manager) BlockDomain(ctx context.Context, in BlockDomainInput) (domain.BlockedDomain, error) {
	if err := m.check(in); err != nil {
		return domain.BlockedDomain{}, err
	}
	entry, err := m.addBlocked(in.RuleID, in.Domain, in.CategorySlug, in.Severity, in.Reason, in.PerformedBy)
	if err != nil {
		return domain.BlockedDomain{}, err
	}
	err = m.record(ctx, in.Audit, in.RuleID, "", domain.ActionDomainBlocked, map[string]any{
		"domain":   entry.Domain,
		"apex":     utils.GetApexDomain(strings.TrimPrefix(entry.Domain, domain.WildcardPrefix)),
		"category": entry.CategorySlug,
		"severity": string(entry.Severity),
		"reason":   entry.Reason,
	})
	return entry, err
}

// BulkBlockDomains blocks up to MaxBulkDomains patterns. Duplicates are
// skipped and invalid patterns reported per domain; one domain_blocked entry
// is recorded when anything was added.
func (m *Manager) BulkBlockDomains(ctx context.Context, in BulkBlockInput) (BulkResult, error) {
	if err := m.check(in); err != nil {
		return BulkResult{}, err
	}
	if _, err := m.store.Rule(in.RuleID); err != nil {
		return BulkResult{}, err
	}
	res := m.bulk(in.Domains, func(name string) (string, error) {
		entry, err := m.addBlocked(in.RuleID, name, in.CategorySlug, in.Severity, in.Reason, in.PerformedBy)
		return entry.Domain, err
	})
	if len(res.Added) == 0 {
		return res, nil
	}
	return res, m.record(ctx, in.Audit, in.RuleID, "", domain.ActionDomainBlocked, map[string]any{
		"domains":  res.Added,
		"count":    len(res.Added),
		"skipped":  len(res.Skipped),
		"category": in.CategorySlug,
		"bulk":     true,
	})
}

// AllowDomain adds a pattern to the rule's allow list and records domain_allowed.
func (m *Manager) AllowDomain(ctx context.Context, in AllowDomainInput) (domain.AllowedDomain, error) {
	if err := m.check(in); err != nil {
		return domain.AllowedDomain{}, err
	}
	entry, err := m.addAllowed(in.RuleID, in.Domain, in.Reason, in.PerformedBy)
	if err != nil {
		return domain.AllowedDomain{}, err
	}
	err = m.record(ctx, in.Audit, in.RuleID, "", domain.ActionDomainAllowed, map[string]any{
		"domain": entry.Domain,
		"reason": entry.Reason,
	})
	return entry, err
}

// BulkAllowDomains is the allow-list counterpart of BulkBlockDomains.
func (m *Manager) BulkAllowDomains(ctx context.Context, in BulkAllowInput) (BulkResult, error) {
	if err := m.check(in); err != nil {
		return BulkResult{}, err
	}
	if _, err := m.store.Rule(in.RuleID); err != nil {
		return BulkResult{}, err
	}
	res := m.bulk(in.Domains, func(name string) (string, error) {
		entry, err := m.addAllowed(in.RuleID, name, in.Reason, in.PerformedBy)
		return entry.Domain, err
	})
	if len(res.Added) == 0 {
		return res, nil
	}
	return res, m.record(ctx, in.Audit, in.RuleID, "", domain.ActionDomainAllowed, map[string]any{
		"domains": res.Added,
		"count":   len(res.Added),
		"skipped": len(res.Skipped),
		"bulk":    true,
	})
}

// RemoveBlockedDomain takes a pattern off the block list and records rule_updated.
func (m *Manager) RemoveBlockedDomain(ctx context.Context, ruleID, pattern string, a Audit) error {
	if err := m.check(a); err != nil {
		return err
	}
	removed, err := m.store.RemoveBlocked(ruleID, pattern)
	if err != nil {
		return err
	}
	return m.record(ctx, a, ruleID, "", domain.ActionRuleUpdated, map[string]any{
		"removed_blocked_domain": removed.Domain,
	})
}

// RemoveAllowedDomain takes a pattern off the allow list and records rule_updated.
func (m *Manager) RemoveAllowedDomain(ctx context.Context, ruleID, pattern string, a Audit) error {
	if err := m.check(a); err != nil {
		return err
	}
	removed, err := m.store.RemoveAllowed(ruleID, pattern)
	if err != nil {
		return err
	}
	return m.record(ctx, a, ruleID, "", domain.ActionRuleUpdated, map[string]any{
		"removed_allowed_domain": removed.Domain,
	})
}

// UpdateBlockedDomain changes an entry's reason, category and severity and
// records rule_updated. Moving the entry to another category without naming a
// severity resets the severity to that category's default.
func (m *Manager) UpdateBlockedDomain(ctx context.Context, in UpdateBlockedInput) (domain.BlockedDomain, error) {
	if err := m.check(in); err != nil {
		return domain.BlockedDomain{}, err
	}
	entry, err := m.store.BlockedEntry(in.RuleID, in.Domain)
	if err != nil {
		return domain.BlockedDomain{}, err
	}
	details := map[string]any{"domain": entry.Domain}
	if in.Reason != nil {
		entry.Reason = strings.TrimSpace(*in.Reason)
		details["reason"] = entry.Reason
	}
	if in.CategorySlug != nil {
		category := slugOf(*in.CategorySlug)
		if category != "" {
			if cat, ok := m.catalog.Lookup(category); !ok || !cat.IsActive {
				return domain.BlockedDomain{}, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, category)
			}
		}
		if category != entry.CategorySlug {
			details["previous_category"] = entry.CategorySlug
			entry.CategorySlug = category
			if in.Severity == nil {
				entry.Severity = m.defaultSeverity(category)
				details["severity"] = string(entry.Severity)
			}
		}
		details["category"] = entry.CategorySlug
	}
	if in.Severity != nil {
		entry.Severity = *in.Severity
		details["severity"] = string(entry.Severity)
	}
	if err := entry.Validate(); err != nil {
		return domain.BlockedDomain{}, err
	}
	if err := m.store.UpdateBlocked(entry); err != nil {
		return domain.BlockedDomain{}, err
	}
	err = m.record(ctx, in.Audit, in.RuleID, "", domain.ActionRuleUpdated, details)
	return entry, err
}

// UpdateAllowedDomain changes an allow list entry's reason and records rule_updated.
func (m *Manager) UpdateAllowedDomain(ctx context.Context, in UpdateAllowedInput) (domain.AllowedDomain, error) {
	if err := m.check(in); err != nil {
		return domain.AllowedDomain{}, err
	}
	entry, err := m.store.AllowedEntry(in.RuleID, in.Domain)
	if err != nil {
		return domain.AllowedDomain{}, err
	}
	if in.Reason != nil {
		entry.Reason = strings.TrimSpace(*in.Reason)
	}
	if err := entry.Validate(); err != nil {
		return domain.AllowedDomain{}, err
	}
	if err := m.store.UpdateAllowed(entry); err != nil {
		return domain.AllowedDomain{}, err
	}
	err = m.record(ctx, in.Audit, in.RuleID, "", domain.ActionRuleUpdated, map[string]any{
		"domain": entry.Domain,
		"list":   "allowed",
		"reason": entry.Reason,
	})
	return entry, err
}

// defaultSeverity is the category's default severity, else domain.DefaultSeverity.
func (m *Manager) defaultSeverity(category string) domain.Severity {
	if cat, ok := m.catalog.Lookup(category); ok && cat.DefaultSeverity.Valid() {
		return cat.DefaultSeverity
	}
	return domain.DefaultSeverity
}

func (m *Manager) addBlocked(ruleID, pattern, category string, sev domain.Severity, reason string, by domain.Actor) (domain.BlockedDomain, error) {
	category = slugOf(category)
	if sev == "" {
		sev = m.defaultSeverity(category)
	}
	entry := domain.BlockedDomain{
		ID:           m.newID(),
		RuleID:       ruleID,
		Domain:       utils.CanonicalPattern(pattern),
		CategorySlug: category,
		Severity:     sev,
		Reason:       strings.TrimSpace(reason),
		AddedBy:      by,
		CreatedAt:    m.clock.Now(),
	}
	if err := entry.Validate(); err != nil {
		return domain.BlockedDomain{}, err
	}
	if err := m.store.AddBlocked(entry); err != nil {
		return domain.BlockedDomain{}, err
	}
	return entry, nil
}

func (m *Manager) addAllowed(ruleID, pattern, reason string, by domain.Actor) (domain.AllowedDomain, error) {
	entry := domain.AllowedDomain{
		ID:        m.newID(),
		RuleID:    ruleID,
		Domain:    utils.CanonicalPattern(pattern),
		Reason:    strings.TrimSpace(reason),
		AddedBy:   by,
		CreatedAt: m.clock.Now(),
	}
	if err := entry.Validate(); err != nil {
		return domain.AllowedDomain{}, err
	}
	if err := m.store.AddAllowed(entry); err != nil {
		return domain.AllowedDomain{}, err
	}
	return entry, nil
}

func (m *Manager) bulk(names []string, add func(string) (string, error)) BulkResult {
	res := BulkResult{Errors: map[string]string{}}
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		key := utils.CanonicalPattern(raw)
		if _, dup := seen[key]; dup && key != "" {
			res.Skipped = append(res.Skipped, key)
			continue
		}
		seen[key] = struct{}{}

		stored, err := add(raw)
		switch {
		case err == nil:
			res.Added = append(res.Added, stored)
		case errors.Is(err, domain.ErrConflict):
			res.Skipped = append(res.Skipped, key)
		default:
			res.Errors[raw] = err.Error()
		}
	}
	return res
}
