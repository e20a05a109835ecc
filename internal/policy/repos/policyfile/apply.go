package policyfile

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/haukened/famfilter/internal/policy/domain"
)

// Sink receives loaded documents. rulestore.Store implements it.
type Sink interface {
	CreateRule(rule domain.FamilyRule) error
	AddBlocked(entry domain.BlockedDomain) error
	AddAllowed(entry domain.AllowedDomain) error
	PutDevice(d domain.FamilyDevice) error
	Device(id string) (domain.FamilyDevice, error)
	AddOverride(o domain.DeviceRuleOverride) error
}

// Apply writes every document into sink. A document whose rule cannot be
// created is skipped entirely; other failures skip only the offending entry.
// An override whose device is unknown or belongs to another customer is
// skipped. All failures are returned together.
func Apply(sink Sink, docs []Document) error {
	var errs error
	for _, doc := range docs {
		if err := sink.CreateRule(doc.Rule); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", doc.Path, err))
			continue
		}
		for _, b := range doc.Blocked {
			errs = multierr.Append(errs, wrap(doc.Path, sink.AddBlocked(b)))
		}
		for _, a := range doc.Allowed {
			errs = multierr.Append(errs, wrap(doc.Path, sink.AddAllowed(a)))
		}
		for _, d := range doc.Devices {
			errs = multierr.Append(errs, wrap(doc.Path, sink.PutDevice(d)))
		}
		for _, o := range doc.Overrides {
			errs = multierr.Append(errs, wrap(doc.Path, addOverride(sink, doc.Rule, o)))
		}
	}
	return errs
}

func addOverride(sink Sink, rule domain.FamilyRule, o domain.DeviceRuleOverride) error {
	d, err := sink.Device(o.DeviceID)
	if err != nil {
		return fmt.Errorf("override %q: %w", o.ID, err)
	}
	if err := d.CheckOwner(rule); err != nil {
		return fmt.Errorf("override %q: %w", o.ID, err)
	}
	return sink.AddOverride(o)
}

func wrap(path string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", path, err)
}
