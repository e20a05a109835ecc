package domain

import (
	"fmt"
	"slices"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinAdultPasswordLength and MaxAdultPasswordLength bound the adult override password.
	MinAdultPasswordLength = 4
	MaxAdultPasswordLength = 20
)

// FamilyRule is a customer-wide filtering policy. Its blocked and allowed
// domain lists are held separately (see RuleSnapshot) because they are owned
// records with their own lifecycle.
type FamilyRule struct {
	ID                   string
	CustomerID           string
	Name                 string
	IsActive             bool
	BlockedCategories    []string
	TimeRestrictions     TimeRestrictions
	RequireAdultApproval bool
	// AdultPasswordHash is a bcrypt hash; empty when no password is set.
	AdultPasswordHash string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsCategoryBlocked reports whether slug is in the rule's blocked categories.
func (r FamilyRule) IsCategoryBlocked(slug string) bool {
	if slug == "" {
		return false
	}
	return slices.Contains(r.BlockedCategories, slug)
}

// AddBlockedCategory appends slug; it returns false if it was already blocked.
func (r *FamilyRule) AddBlockedCategory(slug string) bool {
	if r.IsCategoryBlocked(slug) {
		return false
	}
	r.BlockedCategories = append(r.BlockedCategories, slug)
	return true
}

// RemoveBlockedCategory drops slug; it returns false if it was not blocked.
func (r *FamilyRule) RemoveBlockedCategory(slug string) bool {
	i := slices.Index(r.BlockedCategories, slug)
	if i < 0 {
		return false
	}
	r.BlockedCategories = slices.Delete(slices.Clone(r.BlockedCategories), i, i+1)
	return true
}

// HasTimeRestrictions reports whether any weekday carries restrictions.
func (r FamilyRule) HasTimeRestrictions() bool {
	return len(r.TimeRestrictions) > 0
}

// IsCurrentlyRestricted reports whether now falls in one of the rule's blocked windows.
func (r FamilyRule) IsCurrentlyRestricted(now time.Time) bool {
	if !r.HasTimeRestrictions() {
		return false
	}
	return r.TimeRestrictions.IsRestrictedAt(now)
}

// SetAdultPassword stores a bcrypt hash of password.
func (r *FamilyRule) SetAdultPassword(password string) error {
	if n := len(password); n < MinAdultPasswordLength || n > MaxAdultPasswordLength {
		return fmt.Errorf("%w: adult password must be %d-%d characters", ErrInvalidInput, MinAdultPasswordLength, MaxAdultPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash adult password: %w", err)
	}
	r.AdultPasswordHash = string(hash)
	return nil
}

// VerifyAdultPassword reports whether password matches the stored hash.
// A rule without a password never verifies.
func (r FamilyRule) VerifyAdultPassword(password string) bool {
	if r.AdultPasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(r.AdultPasswordHash), []byte(password)) == nil
}

// Clone returns a deep copy so callers can hand out snapshots safely.
func (r FamilyRule) Clone() FamilyRule {
	out := r
	out.BlockedCategories = slices.Clone(r.BlockedCategories)
	out.TimeRestrictions = r.TimeRestrictions.Clone()
	return out
}
