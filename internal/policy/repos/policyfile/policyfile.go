// Package policyfile loads family rules from a directory of YAML, JSON or TOML
// files, one rule per file, together with the rule's domain lists, devices
// and device overrides.
package policyfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"

	"github.com/haukened/famfilter/internal/policy/common/utils"
	"github.com/haukened/famfilter/internal/policy/domain"
)

// Document is everything one policy file describes.
type Document struct {
	Path      string
	Rule      domain.FamilyRule
	Blocked   []domain.BlockedDomain
	Allowed   []domain.AllowedDomain
	Devices   []domain.FamilyDevice
	Overrides []domain.DeviceRuleOverride
}

type ruleSpec struct {
	ID                   string                  `koanf:"id"`
	CustomerID           string                  `koanf:"customer_id"`
	Name                 string                  `koanf:"name"`
	Active               *bool                   `koanf:"active"`
	BlockedCategories    []string                `koanf:"blocked_categories"`
	TimeRestrictions     domain.TimeRestrictions `koanf:"time_restrictions"`
	RequireAdultApproval bool                    `koanf:"require_adult_approval"`
	AdultPassword        string                  `koanf:"adult_password"`
	AdultPasswordHash    string                  `koanf:"adult_password_hash"`
}

type blockedSpec struct {
	ID       string `koanf:"id"`
	Domain   string `koanf:"domain"`
	Category string `koanf:"category"`
	Severity string `koanf:"severity"`
	Reason   string `koanf:"reason"`
	AddedBy  string `koanf:"added_by"`
}

type allowedSpec struct {
	ID      string `koanf:"id"`
	Domain  string `koanf:"domain"`
	Reason  string `koanf:"reason"`
	AddedBy string `koanf:"added_by"`
}

type deviceSpec struct {
	ID        string `koanf:"id"`
	MAC       string `koanf:"mac"`
	Name      string `koanf:"name"`
	ProfileID string `koanf:"profile_id"`
}

type overrideSpec struct {
	ID              string `koanf:"id"`
	Device          string `koanf:"device"`
	Type            string `koanf:"type"`
	Value           string `koanf:"value"`
	Reason          string `koanf:"reason"`
	ExpiresAt       string `koanf:"expires_at"`
	DurationMinutes int    `koanf:"duration_minutes"`
	CreatedAt       string `koanf:"created_at"`
	CreatedBy       string `koanf:"created_by"`
}

// LoadDirectory walks dir and loads every supported policy file. Files with
// other extensions are ignored. Returns an error if any file fails to parse.
// Relative expiries (duration_minutes) and missing timestamps resolve against now.
func LoadDirectory(dir string, catalog domain.CategoryCatalog, now time.Time) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		doc, ok, err := LoadFile(path, catalog, now)
		if err != nil {
			return fmt.Errorf("error parsing policy file %s: %w", path, err)
		}
		if ok {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	case ".json":
		return json.Parser()
	case ".toml":
		return toml.Parser()
	default:
		return nil
	}
}

// LoadFile loads a single policy file. ok is false for unsupported file types.
func LoadFile(path string, catalog domain.CategoryCatalog, now time.Time) (doc Document, ok bool, err error) {
	parser := parserFor(path)
	if parser == nil {
		return Document{}, false, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return Document{}, false, fmt.Errorf("failed to load policy file %s: %w", path, err)
	}

	var (
		rs        ruleSpec
		blocked   []blockedSpec
		allowed   []allowedSpec
		devices   []deviceSpec
		overrides []overrideSpec
	)
	for key, dst := range map[string]any{
		"rule":      &rs,
		"blocked":   &blocked,
		"allowed":   &allowed,
		"devices":   &devices,
		"overrides": &overrides,
	} {
		if err := k.Unmarshal(key, dst); err != nil {
			return Document{}, false, fmt.Errorf("decode %q: %w", key, err)
		}
	}

	doc.Path = path
	if doc.Rule, err = buildRule(rs, catalog, now); err != nil {
		return Document{}, false, err
	}
	for i, b := range blocked {
		entry, err := buildBlocked(doc.Rule.ID, b, catalog, now)
		if err != nil {
			return Document{}, false, fmt.Errorf("blocked[%d]: %w", i, err)
		}
		doc.Blocked = append(doc.Blocked, entry)
	}
	for i, a := range allowed {
		entry, err := buildAllowed(doc.Rule.ID, a, now)
		if err != nil {
			return Document{}, false, fmt.Errorf("allowed[%d]: %w", i, err)
		}
		doc.Allowed = append(doc.Allowed, entry)
	}
	for i, d := range devices {
		dev, err := buildDevice(doc.Rule.CustomerID, d)
		if err != nil {
			return Document{}, false, fmt.Errorf("devices[%d]: %w", i, err)
		}
		doc.Devices = append(doc.Devices, dev)
	}
	for i, o := range overrides {
		ovr, err := buildOverride(doc.Rule.ID, o, now)
		if err != nil {
			return Document{}, false, fmt.Errorf("overrides[%d]: %w", i, err)
		}
		doc.Overrides = append(doc.Overrides, ovr)
	}
	return doc, true, nil
}

func buildRule(rs ruleSpec, catalog domain.CategoryCatalog, now time.Time) (domain.FamilyRule, error) {
	if strings.TrimSpace(rs.ID) == "" {
		return domain.FamilyRule{}, fmt.Errorf("%w: rule.id is required", domain.ErrInvalidInput)
	}
	rule := domain.FamilyRule{
		ID:                   strings.TrimSpace(rs.ID),
		CustomerID:           rs.CustomerID,
		Name:                 rs.Name,
		IsActive:             rs.Active == nil || *rs.Active,
		TimeRestrictions:     rs.TimeRestrictions,
		RequireAdultApproval: rs.RequireAdultApproval,
		AdultPasswordHash:    rs.AdultPasswordHash,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	for _, slug := range rs.BlockedCategories {
		slug = strings.ToLower(strings.TrimSpace(slug))
		if catalog != nil && !catalog.Known(slug) {
			return domain.FamilyRule{}, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, slug)
		}
		rule.AddBlockedCategory(slug)
	}
	if err := rule.TimeRestrictions.Validate(); err != nil {
		return domain.FamilyRule{}, err
	}
	if rule.AdultPasswordHash == "" && rs.AdultPassword != "" {
		if err := rule.SetAdultPassword(rs.AdultPassword); err != nil {
			return domain.FamilyRule{}, err
		}
	}
	return rule, nil
}

func buildBlocked(ruleID string, b blockedSpec, catalog domain.CategoryCatalog, now time.Time) (domain.BlockedDomain, error) {
	entry := domain.BlockedDomain{
		ID:           idOrNew(b.ID),
		RuleID:       ruleID,
		Domain:       utils.CanonicalPattern(b.Domain),
		CategorySlug: strings.ToLower(strings.TrimSpace(b.Category)),
		Severity:     domain.DefaultSeverity,
		Reason:       b.Reason,
		AddedBy:      domain.ActorAdmin,
		CreatedAt:    now,
	}
	if cat, ok := catalog.Lookup(entry.CategorySlug); ok {
		entry.Severity = cat.DefaultSeverity
	}
	if b.Severity != "" {
		sev, err := domain.ParseSeverity(b.Severity)
		if err != nil {
			return domain.BlockedDomain{}, err
		}
		entry.Severity = sev
	}
	if b.AddedBy != "" {
		actor, err := domain.ParseActor(b.AddedBy)
		if err != nil {
			return domain.BlockedDomain{}, err
		}
		entry.AddedBy = actor
	}
	return entry, entry.Validate()
}

func buildAllowed(ruleID string, a allowedSpec, now time.Time) (domain.AllowedDomain, error) {
	entry := domain.AllowedDomain{
		ID:        idOrNew(a.ID),
		RuleID:    ruleID,
		Domain:    utils.CanonicalPattern(a.Domain),
		Reason:    a.Reason,
		AddedBy:   domain.ActorAdmin,
		CreatedAt: now,
	}
	if a.AddedBy != "" {
		actor, err := domain.ParseActor(a.AddedBy)
		if err != nil {
			return domain.AllowedDomain{}, err
		}
		entry.AddedBy = actor
	}
	return entry, entry.Validate()
}

func buildDevice(customerID string, d deviceSpec) (domain.FamilyDevice, error) {
	if strings.TrimSpace(d.ID) == "" {
		return domain.FamilyDevice{}, fmt.Errorf("%w: device id is required", domain.ErrInvalidInput)
	}
	dev := domain.FamilyDevice{
		ID:         strings.TrimSpace(d.ID),
		CustomerID: customerID,
		Name:       d.Name,
		ProfileID:  d.ProfileID,
	}
	if d.MAC != "" {
		mac, err := domain.NormalizeMAC(d.MAC)
		if err != nil {
			return domain.FamilyDevice{}, err
		}
		dev.MACAddress = mac
		dev.Identified = true
	}
	return dev, nil
}

// buildOverride validates through domain.NewOverride. An absolute expires_at
// is applied afterwards so that files may keep overrides that have already
// lapsed; they load as inactive.
func buildOverride(ruleID string, o overrideSpec, now time.Time) (domain.DeviceRuleOverride, error) {
	created := now
	if o.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, o.CreatedAt)
		if err != nil {
			return domain.DeviceRuleOverride{}, fmt.Errorf("%w: created_at: %v", domain.ErrInvalidInput, err)
		}
		created = t
	}
	typ, err := domain.ParseOverrideType(o.Type)
	if err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	creator := domain.ActorParent
	if o.CreatedBy != "" {
		if creator, err = domain.ParseActor(o.CreatedBy); err != nil {
			return domain.DeviceRuleOverride{}, err
		}
	}
	if o.ExpiresAt != "" && o.DurationMinutes != 0 {
		return domain.DeviceRuleOverride{}, fmt.Errorf("%w: give either expires_at or duration_minutes, not both", domain.ErrInvalidInput)
	}

	ovr, err := domain.NewOverride(domain.OverrideInput{
		DeviceID:        strings.TrimSpace(o.Device),
		RuleID:          ruleID,
		Type:            typ,
		Value:           o.Value,
		Reason:          o.Reason,
		DurationMinutes: o.DurationMinutes,
		CreatedBy:       creator,
	}, created)
	if err != nil {
		return domain.DeviceRuleOverride{}, err
	}
	if o.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, o.ExpiresAt)
		if err != nil {
			return domain.DeviceRuleOverride{}, fmt.Errorf("%w: expires_at: %v", domain.ErrInvalidInput, err)
		}
		ovr.ExpiresAt = &t
	}
	ovr.ID = idOrNew(o.ID)
	return ovr, nil
}

func idOrNew(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}
