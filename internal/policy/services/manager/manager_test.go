package manager

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/famfilter/internal/policy/common/clock"
	"github.com/haukened/famfilter/internal/policy/domain"
	"github.com/haukened/famfilter/internal/policy/repos/rulestore"
)

var t0 = time.Date(2025, time.August, 4, 12, 0, 0, 0, time.UTC)

var parent = Audit{PerformedBy: domain.ActorParent, IPAddress: "192.168.1.20"}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, rec domain.ActivityRecord) (domain.LogEntry, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(domain.LogEntry), args.Error(1)
}

// expect registers one successful Record call for action.
func (m *MockRecorder) expect(action domain.ActionType) *mock.Call {
	return m.On("Record", mock.Anything, mock.MatchedBy(func(r domain.ActivityRecord) bool {
		return r.Action == action
	})).Return(domain.LogEntry{ID: "log", Action: action}, nil).Once()
}

// records returns the ActivityRecords passed to Record so far.
func (m *MockRecorder) records() []domain.ActivityRecord {
	var out []domain.ActivityRecord
	for _, c := range m.Calls {
		if c.Method == "Record" {
			out = append(out, c.Arguments.Get(1).(domain.ActivityRecord))
		}
	}
	return out
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type fixture struct {
	mgr   *Manager
	store *rulestore.Store
	rec   *MockRecorder
	clk   *clock.MockClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: rulestore.New(),
		rec:   &MockRecorder{},
		clk:   &clock.MockClock{CurrentTime: t0},
	}
	mgr, err := New(Options{
		Clock:    f.clk,
		Recorder: f.rec,
		Store:    f.store,
		NewID:    sequentialIDs(),
	})
	require.NoError(t, err)
	f.mgr = mgr
	return f
}

// withRule creates a rule for cust-1, registers devices dev-1 and dev-2 to
// the same customer and clears the recorder expectations.
func (f *fixture) withRule(t *testing.T) domain.FamilyRule {
	t.Helper()
	f.rec.expect(domain.ActionRuleCreated)
	rule, err := f.mgr.CreateRule(context.Background(), CreateRuleInput{
		Audit:             parent,
		CustomerID:        "cust-1",
		Name:              "Kids",
		BlockedCategories: []string{"adult"},
	})
	require.NoError(t, err)
	for _, id := range []string{"dev-1", "dev-2"} {
		require.NoError(t, f.store.PutDevice(domain.FamilyDevice{ID: id, CustomerID: "cust-1"}))
	}
	f.rec.Calls = nil
	return rule
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{Recorder: &MockRecorder{}})
	assert.Error(t, err)
	_, err = New(Options{Store: rulestore.New()})
	assert.Error(t, err)
}

func TestCreateRule(t *testing.T) {
	f := newFixture(t)
	f.rec.expect(domain.ActionRuleCreated)

	rule, err := f.mgr.CreateRule(context.Background(), CreateRuleInput{
		Audit:             parent,
		CustomerID:        "cust-1",
		Name:              "  Kids  ",
		BlockedCategories: []string{"Gambling", "adult", "gambling"},
		TimeRestrictions: domain.TimeRestrictions{
			"monday": {BlockedHours: []domain.TimeRange{{Start: "21:00", End: "23:59"}}},
		},
		AdultPassword: "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, "id-1", rule.ID)
	assert.Equal(t, "Kids", rule.Name)
	assert.True(t, rule.IsActive)
	assert.Equal(t, []string{"gambling", "adult"}, rule.BlockedCategories)
	assert.True(t, rule.VerifyAdultPassword("s3cret"))
	assert.Equal(t, t0, rule.CreatedAt)

	stored, err := f.store.Rule("id-1")
	require.NoError(t, err)
	assert.Equal(t, rule.Name, stored.Name)

	f.rec.AssertExpectations(t)
	recs := f.rec.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "id-1", recs[0].RuleID)
	assert.Equal(t, domain.ActorParent, recs[0].PerformedBy)
	assert.Equal(t, "192.168.1.20", recs[0].IPAddress)
	assert.NotContains(t, fmt.Sprint(recs[0].Details), "s3cret")
}

func TestCreateRule_Inactive(t *testing.T) {
	f := newFixture(t)
	f.rec.expect(domain.ActionRuleCreated)
	off := false
	rule, err := f.mgr.CreateRule(context.Background(), CreateRuleInput{
		Audit: parent, CustomerID: "c", Name: "Paused", IsActive: &off,
	})
	require.NoError(t, err)
	assert.False(t, rule.IsActive)
}

func TestCreateRule_InvalidInput(t *testing.T) {
	tests := map[string]CreateRuleInput{
		"missing name":     {Audit: parent, CustomerID: "c"},
		"missing customer": {Audit: parent, Name: "n"},
		"unknown category": {Audit: parent, CustomerID: "c", Name: "n", BlockedCategories: []string{"crypto"}},
		"short password":   {Audit: parent, CustomerID: "c", Name: "n", AdultPassword: "abc"},
		"long password":    {Audit: parent, CustomerID: "c", Name: "n", AdultPassword: "abcdefghijklmnopqrstu"},
		"no actor":         {CustomerID: "c", Name: "n"},
		"bad actor":        {Audit: Audit{PerformedBy: "kid"}, CustomerID: "c", Name: "n"},
		"bad ip":           {Audit: Audit{PerformedBy: domain.ActorAdmin, IPAddress: "nope"}, CustomerID: "c", Name: "n"},
		"bad weekday": {Audit: parent, CustomerID: "c", Name: "n", TimeRestrictions: domain.TimeRestrictions{
			"funday": {BlockedHours: []domain.TimeRange{{Start: "10:00", End: "11:00"}}},
		}},
		"bad time": {Audit: parent, CustomerID: "c", Name: "n", TimeRestrictions: domain.TimeRestrictions{
			"monday": {BlockedHours: []domain.TimeRange{{Start: "25:00", End: "26:00"}}},
		}},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.mgr.CreateRule(context.Background(), in)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Empty(t, f.rec.records())
			assert.Empty(t, f.store.Rules())
		})
	}
}

func TestUpdateRule(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)
	f.clk.Advance(time.Hour)

	f.rec.expect(domain.ActionRuleUpdated)
	name := "Teens"
	off := false
	cats := []string{"gaming"}
	updated, err := f.mgr.UpdateRule(context.Background(), UpdateRuleInput{
		Audit:             parent,
		RuleID:            rule.ID,
		Name:              &name,
		IsActive:          &off,
		BlockedCategories: &cats,
	})
	require.NoError(t, err)
	assert.Equal(t, "Teens", updated.Name)
	assert.False(t, updated.IsActive)
	assert.Equal(t, []string{"gaming"}, updated.BlockedCategories)
	assert.Equal(t, t0.Add(time.Hour), updated.UpdatedAt)

	recs := f.rec.records()
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"name", "is_active", "blocked_categories"}, recs[0].Details["changed"])
}

func TestUpdateRule_NoChangesIsNotRecorded(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)
	_, err := f.mgr.UpdateRule(context.Background(), UpdateRuleInput{Audit: parent, RuleID: rule.ID})
	require.NoError(t, err)
	assert.Empty(t, f.rec.records())
}

func TestUpdateRule_Errors(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)

	_, err := f.mgr.UpdateRule(context.Background(), UpdateRuleInput{Audit: parent, RuleID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cats := []string{"crypto"}
	_, err = f.mgr.UpdateRule(context.Background(), UpdateRuleInput{Audit: parent, RuleID: rule.ID, BlockedCategories: &cats})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	bad := domain.TimeRestrictions{"monday": {BlockedHours: []domain.TimeRange{{Start: "9:00"}}}}
	_, err = f.mgr.UpdateRule(context.Background(), UpdateRuleInput{Audit: parent, RuleID: rule.ID, TimeRestrictions: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, f.rec.records())
}

func TestDeleteRule_Cascades(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)
	f.rec.expect(domain.ActionTemporaryOverrideGranted)
	_, err := f.mgr.GrantOverride(context.Background(), GrantOverrideInput{
		Audit: parent, DeviceID: "dev-1", RuleID: rule.ID,
		Type: domain.OverrideAllowDomain, Value: "games.example.com", DurationMinutes: 30,
	})
	require.NoError(t, err)

	f.rec.expect(domain.ActionRuleDeleted)
	require.NoError(t, f.mgr.DeleteRule(context.Background(), rule.ID, parent))

	_, err = f.store.Rule(rule.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.store.OverridesForRule(rule.ID))
	f.rec.AssertExpectations(t)

	err = f.mgr.DeleteRule(context.Background(), rule.ID, parent)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBlockDomain(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)

	tests := []struct {
		name     string
		in       BlockDomainInput
		want     string
		severity domain.Severity
	}{
		{"category severity", BlockDomainInput{Domain: "Casino.Example.COM.", CategorySlug: "gambling"}, "casino.example.com", domain.SeverityHigh},
		{"default severity", BlockDomainInput{Domain: "*.tiktok.com"}, "*.tiktok.com", domain.SeverityMedium},
		{"explicit severity", BlockDomainInput{Domain: "bad.example.org", CategorySlug: "streaming", Severity: domain.SeverityCritical}, "bad.example.org", domain.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.rec.expect(domain.ActionDomainBlocked)
			in := tt.in
			in.Audit = parent
			in.RuleID = rule.ID
			entry, err := f.mgr.BlockDomain(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, entry.Domain)
			assert.Equal(t, tt.severity, entry.Severity)
			assert.Equal(t, domain.ActorParent, entry.AddedBy)
		})
	}
	f.rec.AssertExpectations(t)

	snap, err := f.store.Snapshot(rule.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Blocked, 3)

	recs := f.rec.records()
	require.Len(t, recs, 3)
	assert.Equal(t, "casino.example.com", recs[0].Details["domain"])
	assert.Equal(t, "example.com", recs[0].Details["apex"])
}

func TestUpdateBlockedDomain(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)
	f.rec.expect(domain.ActionDomainBlocked)
	_, err := f.mgr.BlockDomain(context.Background(), BlockDomainInput{
		Audit: parent, RuleID: rule.ID, Domain: "play.example.com", CategorySlug: "streaming", Reason: "old",
	})
	require.NoError(t, err)
	f.rec.Calls = nil

	gambling, critical, reason := "Gambling", domain.SeverityCritical, "  bets  "
	tests := []struct {
		name     string
		in       UpdateBlockedInput
		category string
		severity domain.Severity
		reason   string
	}{
		{"reason only", UpdateBlockedInput{Reason: &reason}, "streaming", domain.SeverityLow, "bets"},
		{"category resets severity", UpdateBlockedInput{CategorySlug: &gambling}, "gambling", domain.SeverityHigh, "bets"},
		{"explicit severity", UpdateBlockedInput{Severity: &critical}, "gambling", domain.SeverityCritical, "bets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.rec.expect(domain.ActionRuleUpdated)
			in := tt.in
			in.Audit = parent
			in.RuleID = rule.ID
			in.Domain = "PLAY.example.com"
			entry, err := f.mgr.UpdateBlockedDomain(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, tt.category, entry.CategorySlug)
			assert.Equal(t, tt.severity, entry.Severity)
			assert.Equal(t, tt.reason, entry.Reason)

			stored, err := f.store.BlockedEntry(rule.ID, "play.example.com")
			require.NoError(t, err)
			assert.Equal(t, entry, stored)
		})
	}

	// same category with no severity keeps the critical override
	f.rec.expect(domain.ActionRuleUpdated)
	again := "gambling"
	entry, err := f.mgr.UpdateBlockedDomain(context.Background(), UpdateBlockedInput{
		Audit: parent, RuleID: rule.ID, Domain: "play.example.com", CategorySlug: &again,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityCritical, entry.Severity)

	// clearing the category falls back to the default severity
	f.rec.expect(domain.ActionRuleUpdated)
	none := ""
	entry, err = f.mgr.UpdateBlockedDomain(context.Background(), UpdateBlockedInput{
		Audit: parent, RuleID: rule.ID, Domain: "play.example.com", CategorySlug: &none,
	})
	require.NoError(t, err)
	assert.Empty(t, entry.CategorySlug)
	assert.Equal(t, domain.SeverityMedium, entry.Severity)

	crypto := "crypto"
	bogus := domain.Severity("extreme")
	_, err = f.mgr.UpdateBlockedDomain(context.Background(), UpdateBlockedInput{Audit: parent, RuleID: rule.ID, Domain: "play.example.com", CategorySlug: &crypto})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.mgr.UpdateBlockedDomain(context.Background(), UpdateBlockedInput{Audit: parent, RuleID: rule.ID, Domain: "play.example.com", Severity: &bogus})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.mgr.UpdateBlockedDomain(context.Background(), UpdateBlockedInput{Audit: parent, RuleID: rule.ID, Domain: "other.example.com", Reason: &reason})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.rec.AssertExpectations(t)
	recs := f.rec.records()
	require.Len(t, recs, 5)
	assert.Equal(t, "streaming", recs[1].Details["previous_category"])
	assert.Equal(t, "high", recs[1].Details["severity"])
}

func TestUpdateAllowedDomain(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)
	f.rec.expect(domain.ActionDomainAllowed)
	_, err := f.mgr.AllowDomain(context.Background(), AllowDomainInput{Audit: parent, RuleID: rule.ID, Domain: "*.khanacademy.org"})
	require.NoError(t, err)
	f.rec.Calls = nil

	f.rec.expect(domain.ActionRuleUpdated)
	reason := "homework"
	entry, err := f.mgr.UpdateAllowedDomain(context.Background(), UpdateAllowedInput{
		Audit: parent, RuleID: rule.ID, Domain: "*.KhanAcademy.org", Reason: &reason,
	})
	require.NoError(t, err)
	assert.Equal(t, "homework", entry.Reason)

	stored, err := f.store.AllowedEntry(rule.ID, "*.khanacademy.org")
	require.NoError(t, err)
	assert.Equal(t, "homework", stored.Reason)

	_, err = f.mgr.UpdateAllowedDomain(context.Background(), UpdateAllowedInput{Audit: parent, RuleID: rule.ID, Domain: "example.com", Reason: &reason})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.rec.AssertExpectations(t)
	recs := f.rec.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "homework", recs[0].Details["reason"])
}

func TestBlockDomain_Errors(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)
	f.rec.expect(domain.ActionDomainBlocked)
	_, err := f.mgr.BlockDomain(context.Background(), BlockDomainInput{Audit: parent, RuleID: rule.ID, Domain: "casino.example.com"})
	require.NoError(t, err)

	_, err = f.mgr.BlockDomain(context.Background(), BlockDomainInput{Audit: parent, RuleID: rule.ID, Domain: "CASINO.example.com"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	for _, bad := range []string{"", "*.com", "co.uk", "bad domain.com", "-x.example.com"} {
		_, err = f.mgr.BlockDomain(context.Background(), BlockDomainInput{Audit: parent, RuleID: rule.ID, Domain: bad})
		assert.ErrorIs(t, err, domain.ErrInvalidInput, bad)
	}

	_, err = f.mgr.BlockDomain(context.Background(), BlockDomainInput{Audit: parent, RuleID: rule.ID, Domain: "x.example.com", CategorySlug: "crypto"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.mgr.BlockDomain(context.Background(), BlockDomainInput{Audit: parent, RuleID: rule.ID, Domain: "x.example.com", Severity: "extreme"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.mgr.BlockDomain(context.Background(), BlockDomainInput{Audit: Audit{PerformedBy: domain.ActorSystem}, RuleID: rule.ID, Domain: "x.example.com"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.mgr.BlockDomain(context.Background(), BlockDomainInput{Audit: parent, RuleID: "missing", Domain: "x.example.com"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Len(t, f.rec.records(), 1)
}

func TestBulkBlockDomains(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)
	f.rec.expect(domain.ActionDomainBlocked)
	_, err := f.mgr.BlockDomain(context.Background(), BlockDomainInput{Audit: parent, RuleID: rule.ID, Domain: "existing.example.com"})
	require.NoError(t, err)
	f.rec.Calls = nil

	f.rec.expect(domain.ActionDomainBlocked)
	res, err := f.mgr.BulkBlockDomains(context.Background(), BulkBlockInput{
		Audit:        parent,
		RuleID:       rule.ID,
		CategorySlug: "gambling",
		Domains: []string{
			"poker.example.com",
			"existing.example.com",
			"Poker.Example.com",
			"*.bet.example.net",
			"*.com",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"poker.example.com", "*.bet.example.net"}, res.Added)
	assert.Equal(t, []string{"existing.example.com", "poker.example.com"}, res.Skipped)
	assert.Contains(t, res.Errors, "*.com")
	assert.Len(t, res.Errors, 1)

	recs := f.rec.records()
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].Details["count"])
	f.rec.AssertExpectations(t)
}

func TestBulkBlockDomains_Limits(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)

	_, err := f.mgr.BulkBlockDomains(context.Background(), BulkBlockInput{Audit: parent, RuleID: rule.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	many := make([]string, MaxBulkDomains+1)
	for i := range many {
		many[i] = fmt.Sprintf("d%d.example.com", i)
	}
	_, err = f.mgr.BulkBlockDomains(context.Background(), BulkBlockInput{Audit: parent, RuleID: rule.ID, Domains: many})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.mgr.BulkBlockDomains(context.Background(), BulkBlockInput{Audit: parent, RuleID: "missing", Domains: many[:2]})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// nothing added, nothing recorded
	res, err := f.mgr.BulkBlockDomains(context.Background(), BulkBlockInput{Audit: parent, RuleID: rule.ID, Domains: []string{"*.com"}})
	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.Empty(t, f.rec.records())
}

func TestAllowDomain(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)

	f.rec.expect(domain.ActionDomainAllowed)
	entry, err := f.mgr.AllowDomain(context.Background(), AllowDomainInput{Audit: parent, RuleID: rule.ID, Domain: "Khanacademy.org", Reason: "homework"})
	require.NoError(t, err)
	assert.Equal(t, "khanacademy.org", entry.Domain)

	_, err = f.mgr.AllowDomain(context.Background(), AllowDomainInput{Audit: parent, RuleID: rule.ID, Domain: "khanacademy.org"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.mgr.AllowDomain(context.Background(), AllowDomainInput{Audit: Audit{PerformedBy: domain.ActorAutomatic}, RuleID: rule.ID, Domain: "wikipedia.org"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	f.rec.AssertExpectations(t)
}

func TestBulkAllowDomains(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)

	f.rec.expect(domain.ActionDomainAllowed)
	res, err := f.mgr.BulkAllowDomains(context.Background(), BulkAllowInput{
		Audit:   parent,
		RuleID:  rule.ID,
		Domains: []string{"wikipedia.org", "*.school.example.edu", "wikipedia.org", "not a domain"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"wikipedia.org", "*.school.example.edu"}, res.Added)
	assert.Equal(t, []string{"wikipedia.org"}, res.Skipped)
	assert.Contains(t, res.Errors, "not a domain")
	f.rec.AssertExpectations(t)
}

func TestRemoveDomains(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)
	f.rec.expect(domain.ActionDomainBlocked)
	f.rec.expect(domain.ActionDomainAllowed)
	_, err := f.mgr.BlockDomain(context.Background(), BlockDomainInput{Audit: parent, RuleID: rule.ID, Domain: "casino.example.com"})
	require.NoError(t, err)
	_, err = f.mgr.AllowDomain(context.Background(), AllowDomainInput{Audit: parent, RuleID: rule.ID, Domain: "wikipedia.org"})
	require.NoError(t, err)
	f.rec.Calls = nil

	f.rec.expect(domain.ActionRuleUpdated).Twice()
	require.NoError(t, f.mgr.RemoveBlockedDomain(context.Background(), rule.ID, "Casino.example.com", parent))
	require.NoError(t, f.mgr.RemoveAllowedDomain(context.Background(), rule.ID, "wikipedia.org", parent))

	snap, err := f.store.Snapshot(rule.ID)
	require.NoError(t, err)
	assert.Empty(t, snap.Blocked)
	assert.Empty(t, snap.Allowed)

	recs := f.rec.records()
	require.Len(t, recs, 2)
	assert.Equal(t, "casino.example.com", recs[0].Details["removed_blocked_domain"])
	assert.Equal(t, "wikipedia.org", recs[1].Details["removed_allowed_domain"])

	assert.ErrorIs(t, f.mgr.RemoveBlockedDomain(context.Background(), rule.ID, "casino.example.com", parent), domain.ErrNotFound)
	assert.ErrorIs(t, f.mgr.RemoveAllowedDomain(context.Background(), rule.ID, "wikipedia.org", parent), domain.ErrNotFound)
}

func TestBlockCategory(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)

	f.rec.expect(domain.ActionCategoryBlocked)
	updated, err := f.mgr.BlockCategory(context.Background(), rule.ID, "Gambling", parent)
	require.NoError(t, err)
	assert.Equal(t, []string{"adult", "gambling"}, updated.BlockedCategories)

	_, err = f.mgr.BlockCategory(context.Background(), rule.ID, "gambling", parent)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.mgr.BlockCategory(context.Background(), rule.ID, "crypto", parent)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.mgr.BlockCategory(context.Background(), "missing", "news", parent)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.rec.AssertExpectations(t)
	assert.Len(t, f.rec.records(), 1)
}

func TestUnblockCategory(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)

	f.rec.expect(domain.ActionCategoryUnblocked)
	updated, err := f.mgr.UnblockCategory(context.Background(), rule.ID, "adult", parent)
	require.NoError(t, err)
	assert.Empty(t, updated.BlockedCategories)

	_, err = f.mgr.UnblockCategory(context.Background(), rule.ID, "adult", parent)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	f.rec.AssertExpectations(t)
}

func TestOverrideLifecycle(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)

	f.rec.expect(domain.ActionTemporaryOverrideGranted)
	o, err := f.mgr.GrantOverride(context.Background(), GrantOverrideInput{
		Audit:           parent,
		DeviceID:        "dev-1",
		RuleID:          rule.ID,
		Type:            domain.OverrideDisableCategory,
		Value:           "Adult",
		Reason:          "school project",
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, "adult", o.Value)
	require.NotNil(t, o.ExpiresAt)
	assert.Equal(t, t0.Add(time.Hour), *o.ExpiresAt)

	recs := f.rec.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "dev-1", recs[0].DeviceID)
	assert.Equal(t, o.ID, recs[0].Details["override_id"])

	f.rec.expect(domain.ActionRuleUpdated).Twice()
	extended, err := f.mgr.ExtendOverride(context.Background(), o.ID, 30, parent)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(90*time.Minute), *extended.ExpiresAt)

	f.clk.Advance(10 * time.Minute)
	expired, err := f.mgr.ExpireOverride(context.Background(), o.ID, parent)
	require.NoError(t, err)
	assert.Equal(t, f.clk.Now(), *expired.ExpiresAt)

	_, err = f.mgr.ExpireOverride(context.Background(), o.ID, parent)
	assert.ErrorIs(t, err, domain.ErrAlreadyExpired)
	assert.Equal(t, 400, domain.HTTPStatus(err))

	stored, err := f.store.Override(o.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsExpired(f.clk.Now()))

	_, err = f.mgr.ExtendOverride(context.Background(), o.ID, 0, parent)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.mgr.ExtendOverride(context.Background(), "missing", 10, parent)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.rec.AssertExpectations(t)
	assert.Len(t, f.rec.records(), 3)
}

func TestGrantOverride_Errors(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)
	past := t0.Add(-time.Minute)

	tests := map[string]GrantOverrideInput{
		"unknown type":     {Type: "pause_internet", Value: "x"},
		"unknown category": {Type: domain.OverrideEnableCategory, Value: "crypto"},
		"bad domain":       {Type: domain.OverrideAllowDomain, Value: "*.com"},
		"too long":         {Type: domain.OverrideExtendTime, Value: "30", DurationMinutes: 1441},
		"both expiries":    {Type: domain.OverrideExtendTime, Value: "30", DurationMinutes: 10, ExpiresAt: &past},
		"past expiry":      {Type: domain.OverrideExtendTime, Value: "30", ExpiresAt: &past},
		"bad duration":     {Type: domain.OverrideRestrictTime, Value: "soon"},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			in.Audit = parent
			in.DeviceID = "dev-1"
			in.RuleID = rule.ID
			_, err := f.mgr.GrantOverride(context.Background(), in)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	_, err := f.mgr.GrantOverride(context.Background(), GrantOverrideInput{
		Audit: parent, DeviceID: "dev-1", RuleID: "missing", Type: domain.OverrideExtendTime, Value: "30",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.mgr.GrantOverride(context.Background(), GrantOverrideInput{
		Audit: Audit{PerformedBy: domain.ActorSystem}, DeviceID: "dev-1", RuleID: rule.ID, Type: domain.OverrideExtendTime, Value: "30",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, f.rec.records())
}

func TestGrantOverride_DeviceOwnership(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)
	require.NoError(t, f.store.PutDevice(domain.FamilyDevice{ID: "laptop", CustomerID: "cust-2"}))

	for _, device := range []string{"unregistered", "laptop"} {
		_, err := f.mgr.GrantOverride(context.Background(), GrantOverrideInput{
			Audit: parent, DeviceID: device, RuleID: rule.ID, Type: domain.OverrideAllowDomain, Value: "example.com",
		})
		assert.ErrorIs(t, err, domain.ErrNotFound, device)
		assert.Equal(t, 404, domain.HTTPStatus(err))
	}
	assert.Empty(t, f.store.OverridesForRule(rule.ID))
	assert.Empty(t, f.rec.records())
}

func TestUpdateOverride(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)
	f.rec.expect(domain.ActionTemporaryOverrideGranted)
	o, err := f.mgr.GrantOverride(context.Background(), GrantOverrideInput{
		Audit: parent, DeviceID: "dev-1", RuleID: rule.ID, Type: domain.OverrideAllowDomain, Value: "example.com", DurationMinutes: 30,
	})
	require.NoError(t, err)
	f.rec.Calls = nil

	f.rec.expect(domain.ActionRuleUpdated).Twice()
	reason := "  weekend project "
	later := t0.Add(3 * time.Hour)
	updated, err := f.mgr.UpdateOverride(context.Background(), UpdateOverrideInput{
		Audit: parent, OverrideID: o.ID, Reason: &reason, ExpiresAt: &later,
	})
	require.NoError(t, err)
	assert.Equal(t, "weekend project", updated.Reason)
	assert.Equal(t, later, *updated.ExpiresAt)
	assert.Equal(t, o.Value, updated.Value)

	stored, err := f.store.Override(o.ID)
	require.NoError(t, err)
	assert.Equal(t, later, *stored.ExpiresAt)

	updated, err = f.mgr.UpdateOverride(context.Background(), UpdateOverrideInput{
		Audit: parent, OverrideID: o.ID, ClearExpiry: true,
	})
	require.NoError(t, err)
	assert.Nil(t, updated.ExpiresAt)
	assert.Equal(t, "weekend project", updated.Reason)

	past := t0.Add(-time.Minute)
	_, err = f.mgr.UpdateOverride(context.Background(), UpdateOverrideInput{Audit: parent, OverrideID: o.ID, ExpiresAt: &past})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.mgr.UpdateOverride(context.Background(), UpdateOverrideInput{Audit: parent, OverrideID: o.ID, ExpiresAt: &later, ClearExpiry: true})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.mgr.UpdateOverride(context.Background(), UpdateOverrideInput{Audit: parent, OverrideID: "missing", Reason: &reason})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.rec.AssertExpectations(t)
	recs := f.rec.records()
	require.Len(t, recs, 2)
	assert.Equal(t, "dev-1", recs[0].DeviceID)
	assert.Equal(t, "weekend project", recs[0].Details["reason"])
	assert.Equal(t, later.Format(time.RFC3339), recs[0].Details["expires_at"])
}

func TestDeleteOverride(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)
	f.rec.expect(domain.ActionTemporaryOverrideGranted)
	o, err := f.mgr.GrantOverride(context.Background(), GrantOverrideInput{
		Audit: parent, DeviceID: "dev-2", RuleID: rule.ID, Type: domain.OverrideBlockDomain, Value: "example.net",
	})
	require.NoError(t, err)
	f.rec.Calls = nil

	f.rec.expect(domain.ActionRuleUpdated)
	removed, err := f.mgr.DeleteOverride(context.Background(), o.ID, parent)
	require.NoError(t, err)
	assert.Equal(t, o.ID, removed.ID)
	assert.Empty(t, f.store.OverridesForRule(rule.ID))

	_, err = f.mgr.DeleteOverride(context.Background(), o.ID, parent)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.mgr.DeleteOverride(context.Background(), o.ID, Audit{PerformedBy: "robot"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	f.rec.AssertExpectations(t)
	recs := f.rec.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "dev-2", recs[0].DeviceID)
	assert.Equal(t, true, recs[0].Details["deleted"])
}

func TestOverrideStats(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)
	f.rec.expect(domain.ActionTemporaryOverrideGranted).Twice()
	_, err := f.mgr.GrantOverride(context.Background(), GrantOverrideInput{
		Audit: parent, DeviceID: "dev-1", RuleID: rule.ID, Type: domain.OverrideExtendTime, Value: "30", DurationMinutes: 5,
	})
	require.NoError(t, err)
	f.clk.Advance(time.Minute)
	_, err = f.mgr.GrantOverride(context.Background(), GrantOverrideInput{
		Audit: Audit{PerformedBy: domain.ActorAdmin}, DeviceID: "dev-2", RuleID: rule.ID, Type: domain.OverrideBlockDomain, Value: "example.net",
	})
	require.NoError(t, err)
	f.clk.Advance(10 * time.Minute)

	st, err := f.mgr.OverrideStats(rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 1, st.Expired)
	assert.Equal(t, 1, st.ByCreator[domain.ActorAdmin])
	assert.Equal(t, 1, st.ByType[domain.OverrideExtendTime])
	require.Len(t, st.Recent, 2)
	assert.Equal(t, "dev-2", st.Recent[0].DeviceID)

	_, err = f.mgr.OverrideStats("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdultPassword(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)

	ok, err := f.mgr.VerifyAdultPassword(rule.ID, "anything")
	require.NoError(t, err)
	assert.False(t, ok)

	f.rec.expect(domain.ActionRuleUpdated)
	require.NoError(t, f.mgr.SetAdultPassword(context.Background(), rule.ID, "open-sesame", parent))

	ok, err = f.mgr.VerifyAdultPassword(rule.ID, "open-sesame")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.mgr.VerifyAdultPassword(rule.ID, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, f.mgr.SetAdultPassword(context.Background(), rule.ID, "abc", parent), domain.ErrInvalidInput)
	_, err = f.mgr.VerifyAdultPassword("missing", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	recs := f.rec.records()
	require.Len(t, recs, 1)
	assert.NotContains(t, fmt.Sprint(recs[0].Details), "open-sesame")
	f.rec.AssertExpectations(t)
}

func TestRecorderFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	rule := f.withRule(t)
	f.rec.On("Record", mock.Anything, mock.Anything).Return(domain.LogEntry{}, errors.New("disk full")).Once()

	_, err := f.mgr.BlockCategory(context.Background(), rule.ID, "news", parent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	// the mutation itself stands
	stored, err := f.store.Rule(rule.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCategoryBlocked("news"))
}
