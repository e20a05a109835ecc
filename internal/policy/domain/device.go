package domain

import (
	"fmt"
	"net"
	"strings"
)

// FamilyDevice is a customer's filtered device. It only scopes overrides; the
// evaluator never reads its fields.
type FamilyDevice struct {
	ID         string
	CustomerID string
	MACAddress string // normalized, lower-case colon form
	Name       string
	ProfileID  string
	Identified bool
}

// NormalizeMAC parses a hardware address in any form net.ParseMAC accepts and
// returns it lower-case and colon separated.
func NormalizeMAC(s string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: mac address %q: %v", ErrInvalidInput, s, err)
	}
	return strings.ToLower(hw.String()), nil
}

// CheckOwner fails with ErrNotFound unless the device is registered to the
// rule's customer. A foreign device is reported as missing, not forbidden.
func (d FamilyDevice) CheckOwner(rule FamilyRule) error {
	if d.CustomerID != rule.CustomerID {
		return fmt.Errorf("device %q for rule %q: %w", d.ID, rule.ID, ErrNotFound)
	}
	return nil
}
