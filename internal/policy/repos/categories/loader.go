package categories

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/haukened/famfilter/internal/policy/common/log"
	"github.com/haukened/famfilter/internal/policy/domain"
	"github.com/haukened/famfilter/internal/policy/repos/categories/parsers"
)

type listParser func(r io.Reader, category, source string, logger log.Logger, now time.Time) ([]domain.CategoryRule, error)

var listParsers = map[string]listParser{
	".txt":   parsers.ParsePlainList,
	".list":  parsers.ParsePlainList,
	".hosts": parsers.ParseHostsFile,
}

type listFile struct {
	path     string
	slug     string
	severity domain.Severity
	parse    listParser
}

// LoadDir reads every category list in dir. The file name (without
// extension) is the category slug: "gambling.txt" is a plain list and
// "adult.hosts" a hosts file. Files for slugs the catalog does not know, or
// whose category is inactive, are skipped with a warning.
//
// Lists are read most severe category first, so when a domain appears in
// several lists the most severe category wins.
func LoadDir(dir string, catalog domain.CategoryCatalog, logger log.Logger, now time.Time) ([]domain.CategoryRule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read category dir: %w", err)
	}

	var files []listFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		parse, ok := listParsers[ext]
		if !ok {
			continue
		}
		slug := strings.ToLower(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		cat, known := catalog.Lookup(slug)
		if !known || !cat.IsActive {
			logger.Warn(map[string]any{"file": e.Name(), "category": slug}, "skipping list for unknown or inactive category")
			continue
		}
		files = append(files, listFile{
			path:     filepath.Join(dir, e.Name()),
			slug:     slug,
			severity: cat.DefaultSeverity,
			parse:    parse,
		})
	}

	slices.SortStableFunc(files, func(a, b listFile) int {
		if d := b.severity.Rank() - a.severity.Rank(); d != 0 {
			return d
		}
		return strings.Compare(a.path, b.path)
	})

	var rules []domain.CategoryRule
	for _, f := range files {
		parsed, err := parseFile(f, logger, now)
		if err != nil {
			return nil, err
		}
		logger.Info(map[string]any{"file": f.path, "category": f.slug, "rules": len(parsed)}, "category list loaded")
		rules = append(rules, parsed...)
	}
	return rules, nil
}

func parseFile(f listFile, logger log.Logger, now time.Time) ([]domain.CategoryRule, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open category list: %w", err)
	}
	defer fh.Close()
	rules, err := f.parse(fh, f.slug, filepath.Base(f.path), logger, now)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return rules, nil
}
