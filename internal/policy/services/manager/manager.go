// Package manager applies policy mutations. Every successful mutation is
// written to the rule store first and then recorded in the activity log;
// reads and password checks are never recorded.
package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/haukened/famfilter/internal/policy/common/clock"
	"github.com/haukened/famfilter/internal/policy/common/log"
	"github.com/haukened/famfilter/internal/policy/domain"
)

// MaxBulkDomains bounds a single bulk add request.
const MaxBulkDomains = 100

// Audit identifies who asked for a mutation.
type Audit struct {
	PerformedBy domain.Actor `validate:"required,oneof=admin parent automatic system"`
	IPAddress   string       `validate:"omitempty,ip"`
}

// Manager mutates rules, domain lists and overrides.
type Manager struct {
	catalog  domain.CategoryCatalog
	clock    clock.Clock
	logger   log.Logger
	newID    func() string
	recorder Recorder
	store    RuleStore
	validate *validator.Validate
}

type Options struct {
	// Catalog lists the categories rules may block. Defaults to domain.DefaultCategories.
	Catalog  domain.CategoryCatalog
	Clock    clock.Clock
	Logger   log.Logger
	Recorder Recorder
	Store    RuleStore
	// NewID generates ids for new records. Defaults to uuid.NewString.
	NewID func() string
}

func New(opts Options) (*Manager, error) {
	if opts.Store == nil || opts.Recorder == nil {
		return nil, fmt.Errorf("manager needs a rule store and a recorder")
	}
	m := &Manager{
		catalog:  opts.Catalog,
		clock:    opts.Clock,
		logger:   opts.Logger,
		newID:    opts.NewID,
		recorder: opts.Recorder,
		store:    opts.Store,
	}
	if m.catalog == nil {
		m.catalog = domain.NewCategoryCatalog(domain.DefaultCategories())
	}
	if m.clock == nil {
		m.clock = clock.RealClock{}
	}
	if m.logger == nil {
		m.logger = log.NewNoopLogger()
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	v := validator.New()
	if err := registerValidations(v, m.catalog); err != nil {
		return nil, err
	}
	m.validate = v
	return m, nil
}

func registerValidations(v *validator.Validate, catalog domain.CategoryCatalog) error {
	if err := v.RegisterValidation("pattern", func(fl validator.FieldLevel) bool {
		return domain.ValidatePattern(fl.Field().String()) == nil
	}); err != nil {
		return err
	}
	return v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		cat, ok := catalog.Lookup(slugOf(fl.Field().String()))
		return ok && cat.IsActive
	})
}

func slugOf(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// check runs struct validation and folds failures into domain.ErrInvalidInput.
func (m *Manager) check(in any) error {
	if err := m.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// record writes the audit entry for a mutation that has already been applied.
func (m *Manager) record(ctx context.Context, a Audit, ruleID, deviceID string, action domain.ActionType, details map[string]any) error {
	entry, err := m.recorder.Record(ctx, domain.ActivityRecord{
		RuleID:      ruleID,
		DeviceID:    deviceID,
		Action:      action,
		Details:     details,
		PerformedBy: a.PerformedBy,
		IPAddress:   a.IPAddress,
	})
	if err != nil {
		m.logger.Error(map[string]any{
			"rule":   ruleID,
			"action": string(action),
			"error":  err.Error(),
		}, "failed to record activity")
		return fmt.Errorf("record %s: %w", action, err)
	}
	m.logger.Info(map[string]any{
		"rule":   ruleID,
		"action": string(action),
		"entry":  entry.ID,
		"by":     string(a.PerformedBy),
	}, entry.Action.Description())
	return nil
}
