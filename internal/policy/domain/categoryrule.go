package domain

import (
	"fmt"
	"strings"
	"time"
)

// CategoryRuleKind defines how a category list entry matches domains.
//
// exact  - matches the name only
// suffix - matches the name and any subdomain (apex-inclusive)
type CategoryRuleKind uint8

const (
	CategoryRuleExact CategoryRuleKind = iota
	CategoryRuleSuffix
)

// String returns a stable string representation of the rule kind.
func (k CategoryRuleKind) String() string {
	switch k {
	case CategoryRuleExact:
		return "exact"
	case CategoryRuleSuffix:
		return "suffix"
	default:
		return fmt.Sprintf("CategoryRuleKind(%d)", k)
	}
}

// ParseCategoryRuleKind accepts "exact" or "suffix" (case-insensitive).
func ParseCategoryRuleKind(s string) (CategoryRuleKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact":
		return CategoryRuleExact, nil
	case "suffix":
		return CategoryRuleSuffix, nil
	default:
		return 0, fmt.Errorf("%w: unsupported CategoryRuleKind %q", ErrInvalidInput, s)
	}
}

// CategoryRule assigns a domain (or a domain and its subdomains) to a filtering category.
type CategoryRule struct {
	Name     string           // canonical domain, no trailing dot
	Kind     CategoryRuleKind // exact or suffix
	Category string           // category slug
	Source   string           // list file the entry came from
	AddedAt  time.Time
}

// NewCategoryRule constructs a CategoryRule and validates its fields.
func NewCategoryRule(name string, kind CategoryRuleKind, category, source string, addedAt time.Time) (CategoryRule, error) {
	r := CategoryRule{
		Name:     strings.TrimSpace(name),
		Kind:     kind,
		Category: strings.ToLower(strings.TrimSpace(category)),
		Source:   strings.TrimSpace(source),
		AddedAt:  addedAt,
	}
	if err := r.Validate(); err != nil {
		return CategoryRule{}, err
	}
	return r, nil
}

// Validate checks required fields and the rule kind.
func (r CategoryRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: category rule name must not be empty", ErrInvalidInput)
	}
	if r.Category == "" {
		return fmt.Errorf("%w: category rule needs a category", ErrInvalidInput)
	}
	if r.Source == "" {
		return fmt.Errorf("%w: category rule source must not be empty", ErrInvalidInput)
	}
	if r.AddedAt.IsZero() {
		return fmt.Errorf("%w: category rule addedAt must be set", ErrInvalidInput)
	}
	switch r.Kind {
	case CategoryRuleExact, CategoryRuleSuffix:
	default:
		return fmt.Errorf("%w: unsupported CategoryRuleKind %d", ErrInvalidInput, r.Kind)
	}
	return nil
}

// IsSuffix returns true when the rule covers subdomains too.
func (r CategoryRule) IsSuffix() bool { return r.Kind == CategoryRuleSuffix }

// CategoryMatch is the outcome of looking a domain up in the category index.
type CategoryMatch struct {
	Found       bool
	Category    string
	MatchedRule string // the exact name or suffix anchor that matched
	Kind        CategoryRuleKind
}

// NoCategory returns an empty match.
func NoCategory() CategoryMatch { return CategoryMatch{} }
