package domain

import (
	"fmt"
	"time"
)

// ActionType enumerates the policy mutations recorded in the activity log.
type ActionType string

const (
	ActionRuleCreated              ActionType = "rule_created"
	ActionRuleUpdated              ActionType = "rule_updated"
	ActionDomainBlocked            ActionType = "domain_blocked"
	ActionDomainAllowed            ActionType = "domain_allowed"
	ActionCategoryBlocked          ActionType = "category_blocked"
	ActionCategoryUnblocked        ActionType = "category_unblocked"
	ActionTemporaryOverrideGranted ActionType = "temporary_override_granted"
	ActionRuleDeleted              ActionType = "rule_deleted"
)

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionRuleCreated, ActionRuleUpdated, ActionDomainBlocked, ActionDomainAllowed,
		ActionCategoryBlocked, ActionCategoryUnblocked, ActionTemporaryOverrideGranted, ActionRuleDeleted:
		return true
	default:
		return false
	}
}

// ParseActionType converts a string into an ActionType.
func ParseActionType(s string) (ActionType, error) {
	a := ActionType(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

// Description returns a human readable summary of the action.
func (a ActionType) Description() string {
	switch a {
	case ActionRuleCreated:
		return "Family rule was created"
	case ActionRuleUpdated:
		return "Family rule was updated"
	case ActionDomainBlocked:
		return "Domain was blocked"
	case ActionDomainAllowed:
		return "Domain was allowed"
	case ActionCategoryBlocked:
		return "Category was blocked"
	case ActionCategoryUnblocked:
		return "Category was unblocked"
	case ActionTemporaryOverrideGranted:
		return "Temporary override was granted"
	case ActionRuleDeleted:
		return "Family rule was deleted"
	default:
		return "Unknown action"
	}
}

// Icon returns the display icon name.
func (a ActionType) Icon() string {
	switch a {
	case ActionRuleCreated:
		return "plus-circle"
	case ActionRuleUpdated:
		return "edit"
	case ActionDomainBlocked, ActionCategoryBlocked:
		return "shield"
	case ActionDomainAllowed:
		return "check-circle"
	case ActionCategoryUnblocked:
		return "unlock"
	case ActionTemporaryOverrideGranted:
		return "clock"
	case ActionRuleDeleted:
		return "trash"
	default:
		return "help-circle"
	}
}

// Color returns the display colour.
func (a ActionType) Color() string {
	switch a {
	case ActionRuleCreated, ActionDomainAllowed, ActionCategoryUnblocked:
		return "green"
	case ActionRuleUpdated:
		return "blue"
	case ActionDomainBlocked, ActionRuleDeleted:
		return "red"
	case ActionCategoryBlocked:
		return "orange"
	case ActionTemporaryOverrideGranted:
		return "yellow"
	default:
		return "gray"
	}
}

// ActivityRecord is what a caller asks the recorder to append.
type ActivityRecord struct {
	RuleID      string
	DeviceID    string // optional
	Action      ActionType
	Details     map[string]any
	PerformedBy Actor
	IPAddress   string
}

// LogEntry is one immutable row of the activity log.
type LogEntry struct {
	ID          string         `json:"id"`
	RuleID      string         `json:"family_rule_id"`
	DeviceID    string         `json:"family_device_id,omitempty"`
	Action      ActionType     `json:"action_type"`
	Details     map[string]any `json:"action_details,omitempty"`
	PerformedBy Actor          `json:"performed_by"`
	IPAddress   string         `json:"ip_address,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// IsSystemAction reports whether the system performed the action.
func (e LogEntry) IsSystemAction() bool { return e.PerformedBy == ActorSystem }

// IsParentAction reports whether a parent performed the action.
func (e LogEntry) IsParentAction() bool { return e.PerformedBy == ActorParent }

// IsAdminAction reports whether an admin performed the action.
func (e LogEntry) IsAdminAction() bool { return e.PerformedBy == ActorAdmin }
