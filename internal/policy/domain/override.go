package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/haukened/famfilter/internal/policy/common/utils"
)

// OverrideType selects what a device override changes.
type OverrideType string

const (
	OverrideAllowDomain     OverrideType = "allow_domain"
	OverrideBlockDomain     OverrideType = "block_domain"
	OverrideExtendTime      OverrideType = "extend_time"
	OverrideRestrictTime    OverrideType = "restrict_time"
	OverrideDisableCategory OverrideType = "disable_category"
	OverrideEnableCategory  OverrideType = "enable_category"
)

const (
	// MaxOverrideValueLength bounds an override's value.
	MaxOverrideValueLength = 255
	// MinOverrideMinutes and MaxOverrideMinutes bound relative expiry and extension requests.
	MinOverrideMinutes = 1
	MaxOverrideMinutes = 1440
)

// ParseOverrideType converts a string into an OverrideType (case-insensitive).
func ParseOverrideType(s string) (OverrideType, error) {
	t := OverrideType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unsupported override type %q", ErrInvalidInput, s)
	}
	return t, nil
}

// Valid reports whether t is a known override type.
func (t OverrideType) Valid() bool {
	switch t {
	case OverrideAllowDomain, OverrideBlockDomain, OverrideExtendTime,
		OverrideRestrictTime, OverrideDisableCategory, OverrideEnableCategory:
		return true
	default:
		return false
	}
}

// IsDomain reports whether the override's value is a domain pattern.
func (t OverrideType) IsDomain() bool {
	return t == OverrideAllowDomain || t == OverrideBlockDomain
}

// IsCategory reports whether the override's value is a category slug.
func (t OverrideType) IsCategory() bool {
	return t == OverrideDisableCategory || t == OverrideEnableCategory
}

// IsTime reports whether the override's value is a duration.
func (t OverrideType) IsTime() bool {
	return t == OverrideExtendTime || t == OverrideRestrictTime
}

// DeviceRuleOverride is a device-scoped, optionally expiring exception to a
// family rule. A nil ExpiresAt never expires.
type DeviceRuleOverride struct {
	ID        string
	DeviceID  string
	RuleID    string
	Type      OverrideType
	Value     string
	Reason    string
	ExpiresAt *time.Time
	CreatedBy Actor
	CreatedAt time.Time
}

// OverrideInput carries a caller's request for a new override. At most one of
// ExpiresAt and DurationMinutes may be set; neither means no expiry.
type OverrideInput struct {
	DeviceID        string
	RuleID          string
	Type            OverrideType
	Value           string
	Reason          string
	ExpiresAt       *time.Time
	DurationMinutes int
	CreatedBy       Actor
}

// NewOverride validates in and resolves its expiry to an absolute timestamp.
// The ID is left for the store to assign.
func NewOverride(in OverrideInput, now time.Time) (DeviceRuleOverride, error) {
	if in.DeviceID == "" || in.RuleID == "" {
		return DeviceRuleOverride{}, fmt.Errorf("%w: override needs a device and a rule", ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return DeviceRuleOverride{}, fmt.Errorf("%w: unsupported override type %q", ErrInvalidInput, in.Type)
	}
	value, err := normalizeOverrideValue(in.Type, in.Value)
	if err != nil {
		return DeviceRuleOverride{}, err
	}
	if len(in.Reason) > MaxReasonLength {
		return DeviceRuleOverride{}, fmt.Errorf("%w: reason exceeds %d characters", ErrInvalidInput, MaxReasonLength)
	}
	switch in.CreatedBy {
	case ActorParent, ActorAdmin:
	default:
		return DeviceRuleOverride{}, fmt.Errorf("%w: override cannot be created by %q", ErrInvalidInput, in.CreatedBy)
	}

	var expiresAt *time.Time
	switch {
	case in.ExpiresAt != nil && in.DurationMinutes != 0:
		return DeviceRuleOverride{}, fmt.Errorf("%w: give either expires_at or duration_minutes, not both", ErrInvalidInput)
	case in.ExpiresAt != nil:
		if !in.ExpiresAt.After(now) {
			return DeviceRuleOverride{}, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
		}
		t := *in.ExpiresAt
		expiresAt = &t
	case in.DurationMinutes != 0:
		if err := checkMinutes(in.DurationMinutes); err != nil {
			return DeviceRuleOverride{}, err
		}
		t := now.Add(time.Duration(in.DurationMinutes) * time.Minute)
		expiresAt = &t
	}

	return DeviceRuleOverride{
		DeviceID:  in.DeviceID,
		RuleID:    in.RuleID,
		Type:      in.Type,
		Value:     value,
		Reason:    in.Reason,
		ExpiresAt: expiresAt,
		CreatedBy: in.CreatedBy,
		CreatedAt: now,
	}, nil
}

func normalizeOverrideValue(t OverrideType, raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", fmt.Errorf("%w: override value must not be empty", ErrInvalidInput)
	}
	if len(v) > MaxOverrideValueLength {
		return "", fmt.Errorf("%w: override value exceeds %d characters", ErrInvalidInput, MaxOverrideValueLength)
	}
	switch {
	case t.IsDomain():
		if err := ValidatePattern(v); err != nil {
			return "", err
		}
		return utils.CanonicalPattern(v), nil
	case t.IsCategory():
		return strings.ToLower(v), nil
	default:
		if _, err := ParseOverrideDuration(v); err != nil {
			return "", err
		}
		return v, nil
	}
}

func checkMinutes(minutes int) error {
	if minutes < MinOverrideMinutes || minutes > MaxOverrideMinutes {
		return fmt.Errorf("%w: minutes must be between %d and %d", ErrInvalidInput, MinOverrideMinutes, MaxOverrideMinutes)
	}
	return nil
}

// ParseOverrideDuration reads an extend_time/restrict_time value: either a
// bare count of minutes ("30") or a Go duration ("1h30m"). Zero and negative
// durations are rejected.
func ParseOverrideDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	var d time.Duration
	if n, err := strconv.Atoi(v); err == nil {
		d = time.Duration(n) * time.Minute
	} else if parsed, perr := time.ParseDuration(v); perr == nil {
		d = parsed
	} else {
		return 0, fmt.Errorf("%w: duration %q is neither minutes nor a Go duration", ErrInvalidInput, v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: duration %q must be positive", ErrInvalidInput, v)
	}
	return d, nil
}

// IsActive reports whether the override applies at now.
func (o DeviceRuleOverride) IsActive(now time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(now)
}

// IsExpired reports whether the override has an expiry at or before now.
func (o DeviceRuleOverride) IsExpired(now time.Time) bool {
	return !o.IsActive(now)
}

// HasExpiration reports whether the override will ever expire.
func (o DeviceRuleOverride) HasExpiration() bool {
	return o.ExpiresAt != nil
}

// TimeRemaining returns the time left until expiry. ok is false for
// overrides without an expiry; an expired override reports zero.
func (o DeviceRuleOverride) TimeRemaining(now time.Time) (remaining time.Duration, ok bool) {
	if o.ExpiresAt == nil {
		return 0, false
	}
	if o.IsExpired(now) {
		return 0, true
	}
	return o.ExpiresAt.Sub(now), true
}

// ExtendExpiration pushes the expiry back by minutes, counting from now when
// the override had no expiry.
func (o *DeviceRuleOverride) ExtendExpiration(minutes int, now time.Time) error {
	if err := checkMinutes(minutes); err != nil {
		return err
	}
	base := now
	if o.ExpiresAt != nil {
		base = *o.ExpiresAt
	}
	t := base.Add(time.Duration(minutes) * time.Minute)
	o.ExpiresAt = &t
	return nil
}

// MarkAsExpired sets the expiry to now. Expiring an override that has already
// expired returns ErrAlreadyExpired and leaves it unchanged.
func (o *DeviceRuleOverride) MarkAsExpired(now time.Time) error {
	if o.IsExpired(now) {
		return fmt.Errorf("override %s: %w", o.ID, ErrAlreadyExpired)
	}
	t := now
	o.ExpiresAt = &t
	return nil
}

// Description returns a human readable summary.
func (o DeviceRuleOverride) Description() string {
	switch o.Type {
	case OverrideAllowDomain:
		return "Allow access to " + o.Value
	case OverrideBlockDomain:
		return "Block access to " + o.Value
	case OverrideExtendTime:
		return "Extend time limit by " + o.Value
	case OverrideRestrictTime:
		return "Restrict time limit to " + o.Value
	case OverrideDisableCategory:
		return "Disable filtering for " + o.Value + " category"
	case OverrideEnableCategory:
		return "Enable filtering for " + o.Value + " category"
	default:
		return "Unknown override type"
	}
}

// Icon returns the display icon name.
func (o DeviceRuleOverride) Icon() string {
	switch o.Type {
	case OverrideAllowDomain:
		return "check-circle"
	case OverrideBlockDomain:
		return "x-circle"
	case OverrideExtendTime, OverrideRestrictTime:
		return "clock"
	case OverrideDisableCategory:
		return "unlock"
	case OverrideEnableCategory:
		return "lock"
	default:
		return "help-circle"
	}
}

// Color returns the display colour.
func (o DeviceRuleOverride) Color() string {
	switch o.Type {
	case OverrideAllowDomain:
		return "green"
	case OverrideBlockDomain, OverrideEnableCategory:
		return "red"
	case OverrideExtendTime:
		return "blue"
	case OverrideRestrictTime:
		return "orange"
	case OverrideDisableCategory:
		return "yellow"
	default:
		return "gray"
	}
}

// WasCreatedByParent reports whether a parent created the override.
func (o DeviceRuleOverride) WasCreatedByParent() bool { return o.CreatedBy == ActorParent }

// WasCreatedByAdmin reports whether an admin created the override.
func (o DeviceRuleOverride) WasCreatedByAdmin() bool { return o.CreatedBy == ActorAdmin }

// OverrideStats summarises a set of overrides, such as those attached to one rule.
type OverrideStats struct {
	Total     int
	Active    int
	Expired   int
	ByType    map[OverrideType]int
	ByCreator map[Actor]int
	Recent    []DeviceRuleOverride // newest first, at most five
}

// SummarizeOverrides computes OverrideStats at now.
func SummarizeOverrides(overrides []DeviceRuleOverride, now time.Time) OverrideStats {
	st := OverrideStats{
		ByType:    make(map[OverrideType]int),
		ByCreator: make(map[Actor]int),
	}
	for _, o := range overrides {
		st.Total++
		if o.IsActive(now) {
			st.Active++
		} else {
			st.Expired++
		}
		st.ByType[o.Type]++
		st.ByCreator[o.CreatedBy]++
	}
	sorted := SortNewestFirst(overrides)
	if len(sorted) > 5 {
		sorted = sorted[:5]
	}
	st.Recent = sorted
	return st
}
