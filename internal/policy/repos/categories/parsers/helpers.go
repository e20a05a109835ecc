package parsers

import (
	"net"
	"strings"

	"github.com/haukened/famfilter/internal/policy/common/utils"
	"github.com/haukened/famfilter/internal/policy/domain"
)

// ruleKindFromRaw decides the kind based on the raw, uncanonicalized input.
// A leading "*." or "." marks a suffix rule; anything else is exact.
func ruleKindFromRaw(raw string) domain.CategoryRuleKind {
	if strings.HasPrefix(raw, "*.") || strings.HasPrefix(raw, ".") {
		return domain.CategoryRuleSuffix
	}
	return domain.CategoryRuleExact
}

// isListableName reports whether name may appear in a category list: at
// least two labels, well-formed labels, not an IP literal and not a bare
// public suffix.
func isListableName(name string) bool {
	if strings.Count(name, ".") < 1 {
		return false
	}
	if net.ParseIP(name) != nil {
		return false
	}
	return domain.ValidatePattern(name) == nil
}

// normalizeDomainName trims the suffix marker and returns the canonical name.
func normalizeDomainName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	return utils.CanonicalDomainName(name)
}

// stripLineBOM removes a UTF-8 byte order mark from the start of a line.
func stripLineBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// classifyLine reports whether a line is blank or a whole-line comment.
func classifyLine(line string) (isEmpty, isComment bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true, false
	}
	return false, strings.HasPrefix(trimmed, "#")
}

// stripInlineComment drops everything from the first '#'.
func stripInlineComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}
