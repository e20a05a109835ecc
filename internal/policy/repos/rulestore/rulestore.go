// Package rulestore keeps family rules, their domain lists, devices and
// device overrides in memory. Readers get deep copies, so a snapshot handed to
// the evaluator never changes under it.
package rulestore

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/haukened/famfilter/internal/policy/common/utils"
	"github.com/haukened/famfilter/internal/policy/domain"
	"github.com/haukened/famfilter/internal/policy/services/evaluator"
)

type ruleRecord struct {
	rule    domain.FamilyRule
	blocked []domain.BlockedDomain
	allowed []domain.AllowedDomain
}

// Store is an in-memory rule repository safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	rules     map[string]*ruleRecord
	devices   map[string]domain.FamilyDevice
	overrides []domain.DeviceRuleOverride // insertion order; later entries count as newer on CreatedAt ties
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		rules:   make(map[string]*ruleRecord),
		devices: make(map[string]domain.FamilyDevice),
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, domain.ErrNotFound)
}

// CreateRule stores a new rule. The rule must carry an ID not already in use.
func (s *Store) CreateRule(rule domain.FamilyRule) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule id must not be empty", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; ok {
		return fmt.Errorf("rule %q: %w", rule.ID, domain.ErrConflict)
	}
	s.rules[rule.ID] = &ruleRecord{rule: rule.Clone()}
	return nil
}

// UpdateRule replaces the stored rule's fields. Domain lists are untouched.
func (s *Store) UpdateRule(rule domain.FamilyRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rules[rule.ID]
	if !ok {
		return notFound("rule", rule.ID)
	}
	rec.rule = rule.Clone()
	return nil
}

// Rule returns a copy of the rule with the given id.
func (s *Store) Rule(id string) (domain.FamilyRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rules[id]
	if !ok {
		return domain.FamilyRule{}, notFound("rule", id)
	}
	return rec.rule.Clone(), nil
}

// Rules returns copies of every rule ordered by id.
func (s *Store) Rules() []domain.FamilyRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FamilyRule, 0, len(s.rules))
	for _, rec := range s.rules {
		out = append(out, rec.rule.Clone())
	}
	slices.SortFunc(out, func(a, b domain.FamilyRule) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// DeleteRule removes a rule together with its domain lists and every
// override that references it.
func (s *Store) DeleteRule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return notFound("rule", id)
	}
	delete(s.rules, id)
	s.overrides = slices.DeleteFunc(s.overrides, func(o domain.DeviceRuleOverride) bool {
		return o.RuleID == id
	})
	return nil
}

// Snapshot returns a deep copy of the rule and its domain lists.
func (s *Store) Snapshot(ruleID string) (domain.RuleSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rules[ruleID]
	if !ok {
		return domain.RuleSnapshot{}, notFound("rule", ruleID)
	}
	return domain.RuleSnapshot{
		Rule:    rec.rule.Clone(),
		Blocked: slices.Clone(rec.blocked),
		Allowed: slices.Clone(rec.allowed),
	}, nil
}

// AddBlocked appends an entry to the rule's block list. A pattern already on
// the list (compared canonically) is a conflict.
func (s *Store) AddBlocked(entry domain.BlockedDomain) error {
	entry.Domain = utils.CanonicalPattern(entry.Domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rules[entry.RuleID]
	if !ok {
		return notFound("rule", entry.RuleID)
	}
	if slices.ContainsFunc(rec.blocked, func(b domain.BlockedDomain) bool { return b.Domain == entry.Domain }) {
		return fmt.Errorf("%q already blocked for rule %q: %w", entry.Domain, entry.RuleID, domain.ErrConflict)
	}
	rec.blocked = append(rec.blocked, entry)
	return nil
}

// RemoveBlocked deletes a pattern from the rule's block list and returns the removed entry.
func (s *Store) RemoveBlocked(ruleID, pattern string) (domain.BlockedDomain, error) {
	pattern = utils.CanonicalPattern(pattern)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rules[ruleID]
	if !ok {
		return domain.BlockedDomain{}, notFound("rule", ruleID)
	}
	i := slices.IndexFunc(rec.blocked, func(b domain.BlockedDomain) bool { return b.Domain == pattern })
	if i < 0 {
		return domain.BlockedDomain{}, notFound("blocked domain", pattern)
	}
	removed := rec.blocked[i]
	rec.blocked = slices.Delete(rec.blocked, i, i+1)
	return removed, nil
}

// UpdateBlocked replaces the block list entry carrying the same pattern.
func (s *Store) UpdateBlocked(entry domain.BlockedDomain) error {
	entry.Domain = utils.CanonicalPattern(entry.Domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rules[entry.RuleID]
	if !ok {
		return notFound("rule", entry.RuleID)
	}
	i := slices.IndexFunc(rec.blocked, func(b domain.BlockedDomain) bool { return b.Domain == entry.Domain })
	if i < 0 {
		return notFound("blocked domain", entry.Domain)
	}
	rec.blocked[i] = entry
	return nil
}

// BlockedEntry returns the block list entry for pattern.
func (s *Store) BlockedEntry(ruleID, pattern string) (domain.BlockedDomain, error) {
	pattern = utils.CanonicalPattern(pattern)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rules[ruleID]
	if !ok {
		return domain.BlockedDomain{}, notFound("rule", ruleID)
	}
	i := slices.IndexFunc(rec.blocked, func(b domain.BlockedDomain) bool { return b.Domain == pattern })
	if i < 0 {
		return domain.BlockedDomain{}, notFound("blocked domain", pattern)
	}
	return rec.blocked[i], nil
}

// AddAllowed appends an entry to the rule's allow list. A pattern already on
// the list is a conflict.
func (s *Store) AddAllowed(entry domain.AllowedDomain) error {
	entry.Domain = utils.CanonicalPattern(entry.Domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rules[entry.RuleID]
	if !ok {
		return notFound("rule", entry.RuleID)
	}
	if slices.ContainsFunc(rec.allowed, func(a domain.AllowedDomain) bool { return a.Domain == entry.Domain }) {
		return fmt.Errorf("%q already allowed for rule %q: %w", entry.Domain, entry.RuleID, domain.ErrConflict)
	}
	rec.allowed = append(rec.allowed, entry)
	return nil
}

// RemoveAllowed deletes a pattern from the rule's allow list and returns the removed entry.
func (s *Store) RemoveAllowed(ruleID, pattern string) (domain.AllowedDomain, error) {
	pattern = utils.CanonicalPattern(pattern)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rules[ruleID]
	if !ok {
		return domain.AllowedDomain{}, notFound("rule", ruleID)
	}
	i := slices.IndexFunc(rec.allowed, func(a domain.AllowedDomain) bool { return a.Domain == pattern })
	if i < 0 {
		return domain.AllowedDomain{}, notFound("allowed domain", pattern)
	}
	removed := rec.allowed[i]
	rec.allowed = slices.Delete(rec.allowed, i, i+1)
	return removed, nil
}

// UpdateAllowed replaces the allow list entry carrying the same pattern.
func (s *Store) UpdateAllowed(entry domain.AllowedDomain) error {
	entry.Domain = utils.CanonicalPattern(entry.Domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rules[entry.RuleID]
	if !ok {
		return notFound("rule", entry.RuleID)
	}
	i := slices.IndexFunc(rec.allowed, func(a domain.AllowedDomain) bool { return a.Domain == entry.Domain })
	if i < 0 {
		return notFound("allowed domain", entry.Domain)
	}
	rec.allowed[i] = entry
	return nil
}

// AllowedEntry returns the allow list entry for pattern.
func (s *Store) AllowedEntry(ruleID, pattern string) (domain.AllowedDomain, error) {
	pattern = utils.CanonicalPattern(pattern)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rules[ruleID]
	if !ok {
		return domain.AllowedDomain{}, notFound("rule", ruleID)
	}
	i := slices.IndexFunc(rec.allowed, func(a domain.AllowedDomain) bool { return a.Domain == pattern })
	if i < 0 {
		return domain.AllowedDomain{}, notFound("allowed domain", pattern)
	}
	return rec.allowed[i], nil
}

// PutDevice registers or replaces a device. A MAC address may belong to only
// one device per customer.
func (s *Store) PutDevice(d domain.FamilyDevice) error {
	if d.ID == "" {
		return fmt.Errorf("%w: device id must not be empty", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.MACAddress != "" {
		for id, other := range s.devices {
			if id != d.ID && other.CustomerID == d.CustomerID && other.MACAddress == d.MACAddress {
				return fmt.Errorf("mac %s already registered to device %q: %w", d.MACAddress, id, domain.ErrConflict)
			}
		}
	}
	s.devices[d.ID] = d
	return nil
}

// Device returns the device with the given id.
func (s *Store) Device(id string) (domain.FamilyDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return domain.FamilyDevice{}, notFound("device", id)
	}
	return d, nil
}

// AddOverride stores a new override. Its rule must exist and its id must be unused.
func (s *Store) AddOverride(o domain.DeviceRuleOverride) error {
	if o.ID == "" {
		return fmt.Errorf("%w: override id must not be empty", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[o.RuleID]; !ok {
		return notFound("rule", o.RuleID)
	}
	if s.overrideIndex(o.ID) >= 0 {
		return fmt.Errorf("override %q: %w", o.ID, domain.ErrConflict)
	}
	s.overrides = append(s.overrides, cloneOverride(o))
	return nil
}

// UpdateOverride replaces a stored override in place, keeping its position.
func (s *Store) UpdateOverride(o domain.DeviceRuleOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.overrideIndex(o.ID)
	if i < 0 {
		return notFound("override", o.ID)
	}
	s.overrides[i] = cloneOverride(o)
	return nil
}

// DeleteOverride removes an override and returns it.
func (s *Store) DeleteOverride(id string) (domain.DeviceRuleOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.overrideIndex(id)
	if i < 0 {
		return domain.DeviceRuleOverride{}, notFound("override", id)
	}
	removed := s.overrides[i]
	s.overrides = slices.Delete(s.overrides, i, i+1)
	return removed, nil
}

// Override returns the override with the given id.
func (s *Store) Override(id string) (domain.DeviceRuleOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.overrideIndex(id)
	if i < 0 {
		return domain.DeviceRuleOverride{}, notFound("override", id)
	}
	return cloneOverride(s.overrides[i]), nil
}

// Overrides returns every override, active or not, for the device under the
// rule in insertion order.
func (s *Store) Overrides(deviceID, ruleID string) ([]domain.DeviceRuleOverride, error) {
	return s.filterOverrides(func(o domain.DeviceRuleOverride) bool {
		return o.DeviceID == deviceID && o.RuleID == ruleID
	}), nil
}

// OverridesForRule returns every override referencing the rule.
func (s *Store) OverridesForRule(ruleID string) []domain.DeviceRuleOverride {
	return s.filterOverrides(func(o domain.DeviceRuleOverride) bool { return o.RuleID == ruleID })
}

// OverridesForDevice returns every override held by the device across rules.
func (s *Store) OverridesForDevice(deviceID string) []domain.DeviceRuleOverride {
	return s.filterOverrides(func(o domain.DeviceRuleOverride) bool { return o.DeviceID == deviceID })
}

func (s *Store) filterOverrides(keep func(domain.DeviceRuleOverride) bool) []domain.DeviceRuleOverride {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DeviceRuleOverride
	for _, o := range s.overrides {
		if keep(o) {
			out = append(out, cloneOverride(o))
		}
	}
	return out
}

// overrideIndex must be called with s.mu held.
func (s *Store) overrideIndex(id string) int {
	return slices.IndexFunc(s.overrides, func(o domain.DeviceRuleOverride) bool { return o.ID == id })
}

func cloneOverride(o domain.DeviceRuleOverride) domain.DeviceRuleOverride {
	if o.ExpiresAt != nil {
		t := *o.ExpiresAt
		o.ExpiresAt = &t
	}
	return o
}

// Ensure Store satisfies evaluator.RuleSource at compile time.
var _ evaluator.RuleSource = (*Store)(nil)
