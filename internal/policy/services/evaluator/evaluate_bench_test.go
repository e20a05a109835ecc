package evaluator

import (
	"fmt"
	"testing"
	"time"

	"github.com/haukened/famfilter/internal/policy/domain"
)

func benchLists(n int) ([]domain.BlockedDomain, []domain.AllowedDomain) {
	blocked := make([]domain.BlockedDomain, n)
	allowed := make([]domain.AllowedDomain, n)
	for i := 0; i < n; i++ {
		blocked[i] = domain.BlockedDomain{Domain: fmt.Sprintf("*.blocked%d.example.com", i), Severity: domain.SeverityMedium}
		allowed[i] = domain.AllowedDomain{Domain: fmt.Sprintf("allowed%d.example.org", i)}
	}
	return blocked, allowed
}

func BenchmarkEvaluate_DefaultAllow_SmallLists(b *testing.B) {
	rule := activeRule()
	rule.TimeRestrictions = bedtime()
	blocked, allowed := benchLists(10)
	now := monday(12, 0)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		Evaluate(rule, blocked, allowed, "www.unlisted.example.net", "", now)
	}
}

func BenchmarkEvaluate_DefaultAllow_LargeLists(b *testing.B) {
	rule := activeRule()
	blocked, allowed := benchLists(1000)
	now := monday(12, 0)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		Evaluate(rule, blocked, allowed, "www.unlisted.example.net", "", now)
	}
}

func BenchmarkResolveWithOverrides(b *testing.B) {
	base := domain.Verdict{Allowed: false, Reason: domain.ReasonCategoryBlock, Category: "gambling"}
	now := monday(12, 0)
	overrides := make([]domain.DeviceRuleOverride, 50)
	for i := range overrides {
		overrides[i] = domain.DeviceRuleOverride{
			ID:        fmt.Sprintf("o-%d", i),
			Type:      domain.OverrideAllowDomain,
			Value:     fmt.Sprintf("site%d.example.com", i),
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		ResolveWithOverrides(base, overrides, "casino.example.com", "gambling", now)
	}
}
