package categories

import "github.com/haukened/famfilter/internal/policy/services/evaluator"

// NoopCategorizer assigns no category to any domain. It stands in when no
// category lists are configured.
type NoopCategorizer struct{}

func (n *NoopCategorizer) Categorize(string) (string, bool) {
	return "", false
}

var _ evaluator.Categorizer = (*NoopCategorizer)(nil)
