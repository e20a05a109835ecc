package categories

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/famfilter/internal/policy/common/log"
	"github.com/haukened/famfilter/internal/policy/domain"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "streaming.txt", "*.youtube.com\nnetflix.com\n")
	writeFile(t, dir, "social_media.txt", "*.youtube.com\n*.tiktok.com\n")
	writeFile(t, dir, "adult.hosts", "0.0.0.0 adult.example\n")
	writeFile(t, dir, "unknown.txt", "example.org\n")
	writeFile(t, dir, "README.md", "not a list\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.txt"), 0o755))

	now := time.Unix(1700000000, 0)
	rules, err := LoadDir(dir, domain.NewCategoryCatalog(domain.DefaultCategories()), log.NewNoopLogger(), now)
	require.NoError(t, err)

	// adult (high) first, then social_media (medium), then streaming (low)
	require.Len(t, rules, 5)
	assert.Equal(t, "adult", rules[0].Category)
	assert.Equal(t, "adult.hosts", rules[0].Source)
	assert.Equal(t, "social_media", rules[1].Category)
	assert.Equal(t, "youtube.com", rules[1].Name)
	assert.Equal(t, "streaming", rules[4].Category)
	for _, r := range rules {
		assert.NotEqual(t, "example.org", r.Name)
	}
}

func TestLoadDir_InactiveCategorySkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "news.txt", "bbc.co.uk\n")

	cats := domain.DefaultCategories()
	for i := range cats {
		if cats[i].Slug == "news" {
			cats[i].IsActive = false
		}
	}
	rules, err := LoadDir(dir, domain.NewCategoryCatalog(cats), log.NewNoopLogger(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestLoadDir_MissingDir(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"), nil, log.NewNoopLogger(), time.Now())
	assert.Error(t, err)
}
