package parsers

import (
	"bufio"
	"io"
	"strings"
	"time"

	logpkg "github.com/haukened/famfilter/internal/policy/common/log"
	"github.com/haukened/famfilter/internal/policy/domain"
)

// ParsePlainList parses a newline-delimited list of domains into CategoryRule
// values for category. Default is exact; a leading "*." or "." marks a
// suffix rule (apex-inclusive).
//
// Behavior:
// - Supports comments starting with '#' (inline or whole-line)
// - Skips blank lines and names that are not listable
// - De-duplicates by name and kind while preserving first-seen order
// - Each rule is attributed to source and timestamped with now
func ParsePlainList(r io.Reader, category, source string, logger logpkg.Logger, now time.Time) ([]domain.CategoryRule, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]domain.CategoryRule, 0, 256)
	logger.Debug(map[string]any{"source": source, "category": category}, "parse_plain_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())

		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			continue
		}

		s := strings.TrimSpace(stripInlineComment(line))
		kind := ruleKindFromRaw(s)
		name := normalizeDomainName(s)

		if !isListableName(name) {
			logger.Debug(map[string]any{"line": lineNum, "raw": s}, "skip_invalid_name")
			continue
		}

		seenKey := name + "|" + kind.String()
		if _, ok := seen[seenKey]; ok {
			logger.Debug(map[string]any{"line": lineNum, "name": name, "kind": kind.String()}, "skip_duplicate")
			continue
		}

		rule, err := domain.NewCategoryRule(name, kind, category, source, now)
		if err != nil {
			logger.Debug(map[string]any{"line": lineNum, "name": name, "error": err.Error()}, "skip_constructor_error")
			continue
		}
		out = append(out, rule)
		seen[seenKey] = struct{}{}
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_plain_list_scan_error")
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_plain_list_done")
	return out, nil
}
