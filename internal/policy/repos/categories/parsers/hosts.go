package parsers

import (
	"bufio"
	"io"
	"strings"
	"time"

	logpkg "github.com/haukened/famfilter/internal/policy/common/log"
	"github.com/haukened/famfilter/internal/policy/common/utils"
	"github.com/haukened/famfilter/internal/policy/domain"
)

// ParseHostsFile parses /etc/hosts-style files into exact CategoryRules.
//
// Rules:
// - Ignore the IP field; take every hostname after it
// - Skip comments (whole-line or inline after '#') and blank lines
// - Skip wildcard tokens and names starting with '.'
// - De-duplicate by canonical name, preserving first-seen order
func ParseHostsFile(r io.Reader, category, source string, logger logpkg.Logger, now time.Time) ([]domain.CategoryRule, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]domain.CategoryRule, 0, 256)

	logger.Debug(map[string]any{"source": source, "category": category}, "parse_hosts_start")

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())

		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			continue
		}

		fields := strings.Fields(stripInlineComment(line))
		if len(fields) < 2 {
			logger.Debug(map[string]any{"line": lineNum}, "hosts_no_hostnames")
			continue
		}

		for _, raw := range fields[1:] {
			if strings.HasPrefix(raw, ".") || strings.Contains(raw, "*") {
				logger.Debug(map[string]any{"line": lineNum, "raw": raw}, "hosts_skip_invalid_token")
				continue
			}

			name := utils.CanonicalDomainName(raw)
			if !isListableName(name) {
				logger.Debug(map[string]any{"line": lineNum, "name": name}, "hosts_skip_invalid_name")
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}

			rule, err := domain.NewCategoryRule(name, domain.CategoryRuleExact, category, source, now)
			if err != nil {
				logger.Debug(map[string]any{"line": lineNum, "name": name, "error": err.Error()}, "hosts_skip_constructor_error")
				continue
			}
			out = append(out, rule)
			seen[name] = struct{}{}
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_hosts_scan_error")
		return nil, err
	}

	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_hosts_done")
	return out, nil
}
