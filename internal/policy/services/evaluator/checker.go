package evaluator

import (
	"context"
	"errors"
	"fmt"

	"github.com/haukened/famfilter/internal/policy/common/clock"
	"github.com/haukened/famfilter/internal/policy/common/log"
	"github.com/haukened/famfilter/internal/policy/common/utils"
	"github.com/haukened/famfilter/internal/policy/domain"
)

// ErrNoRule is returned by Check when no rule id was supplied.
var ErrNoRule = errors.New("no rule id")

// Checker answers "may this device reach this domain now?" by combining a rule
// snapshot, the category index and the device's overrides.
type Checker struct {
	categorizer Categorizer
	catalog     domain.CategoryCatalog
	clock       clock.Clock
	logger      log.Logger
	rules       RuleSource
}

type CheckerOptions struct {
	// Catalog fills in the severity of category blocks. Optional.
	Catalog     domain.CategoryCatalog
	Categorizer Categorizer
	Clock       clock.Clock
	Logger      log.Logger
	Rules       RuleSource
}

func NewChecker(opts CheckerOptions) *Checker {
	c := &Checker{
		categorizer: opts.Categorizer,
		catalog:     opts.Catalog,
		clock:       opts.Clock,
		logger:      opts.Logger,
		rules:       opts.Rules,
	}
	if c.clock == nil {
		c.clock = clock.RealClock{}
	}
	if c.logger == nil {
		c.logger = log.NewNoopLogger()
	}
	return c
}

// Check evaluates name for the device under the rule. An empty deviceID
// evaluates the rule alone. Lookup failures for the rule are returned; a
// failing or missing category index only means the domain has no category.
func (c *Checker) Check(ctx context.Context, ruleID, deviceID, name string) (domain.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.Verdict{}, err
	}
	if ruleID == "" {
		return domain.Verdict{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, ErrNoRule)
	}
	name = utils.CanonicalDomainName(name)
	if name == "" {
		return domain.Verdict{}, fmt.Errorf("%w: empty domain", domain.ErrInvalidInput)
	}

	snap, err := c.rules.Snapshot(ruleID)
	if err != nil {
		return domain.Verdict{}, err
	}

	var overrides []domain.DeviceRuleOverride
	if deviceID != "" {
		overrides, err = c.rules.Overrides(deviceID, ruleID)
		if err != nil {
			return domain.Verdict{}, err
		}
	}

	category := c.categorize(name)
	now := c.clock.Now()

	v := EvaluateSnapshot(snap, name, category, now)
	v = ResolveWithOverrides(v, overrides, name, category, now)
	if isCategoryVerdict(v) && v.Severity == "" {
		if cat, ok := c.catalog.Lookup(v.Category); ok {
			v.Severity = cat.DefaultSeverity
		}
	}

	c.logger.Debug(map[string]any{
		"rule":     ruleID,
		"device":   deviceID,
		"domain":   name,
		"category": category,
		"allowed":  v.Allowed,
		"reason":   v.Reason.String(),
	}, "policy verdict")
	return v, nil
}

func (c *Checker) categorize(name string) string {
	if c.categorizer == nil {
		return ""
	}
	slug, ok := c.categorizer.Categorize(name)
	if !ok {
		return ""
	}
	return slug
}

func isCategoryVerdict(v domain.Verdict) bool {
	return v.Reason == domain.ReasonCategoryBlock || v.Reason == domain.ReasonOverrideCategoryEnable
}
