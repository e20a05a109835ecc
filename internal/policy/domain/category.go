package domain

// FilteringCategory is a global taxonomy entry. Categories are reference data
// shared by every customer.
type FilteringCategory struct {
	Slug            string
	Name            string
	Description     string
	DefaultSeverity Severity
	Icon            string
	IsActive        bool
}

// DefaultCategories returns the seeded category taxonomy.
func DefaultCategories() []FilteringCategory {
	return []FilteringCategory{
		{Slug: "adult", Name: "Adult Content", Description: "Sexually explicit and adult-oriented content", DefaultSeverity: SeverityHigh, Icon: "eye-slash", IsActive: true},
		{Slug: "gambling", Name: "Gambling & Gaming", Description: "Online gambling, betting, and casino sites", DefaultSeverity: SeverityHigh, Icon: "dice", IsActive: true},
		{Slug: "social_media", Name: "Social Media", Description: "Facebook, Instagram, TikTok, Twitter platforms", DefaultSeverity: SeverityMedium, Icon: "users", IsActive: true},
		{Slug: "streaming", Name: "Video Streaming", Description: "YouTube, Netflix, streaming video content", DefaultSeverity: SeverityLow, Icon: "play", IsActive: true},
		{Slug: "gaming", Name: "Online Gaming", Description: "Online games and gaming platforms", DefaultSeverity: SeverityMedium, Icon: "gamepad", IsActive: true},
		{Slug: "news", Name: "News & Politics", Description: "News websites and political content", DefaultSeverity: SeverityLow, Icon: "newspaper", IsActive: true},
		{Slug: "shopping", Name: "Shopping & E-commerce", Description: "Online stores and shopping sites", DefaultSeverity: SeverityLow, Icon: "shopping-cart", IsActive: true},
		{Slug: "education", Name: "Educational", Description: "Educational resources and learning platforms", DefaultSeverity: SeverityLow, Icon: "book", IsActive: true},
		{Slug: "malware", Name: "Malware & Threats", Description: "Known malicious and dangerous websites", DefaultSeverity: SeverityCritical, Icon: "shield-exclamation", IsActive: true},
	}
}

// CategoryCatalog indexes categories by slug.
type CategoryCatalog map[string]FilteringCategory

// NewCategoryCatalog builds a catalog from a list of categories. Later
// entries with a duplicate slug replace earlier ones.
func NewCategoryCatalog(cats []FilteringCategory) CategoryCatalog {
	out := make(CategoryCatalog, len(cats))
	for _, c := range cats {
		out[c.Slug] = c
	}
	return out
}

// Lookup returns the category for slug.
func (c CategoryCatalog) Lookup(slug string) (FilteringCategory, bool) {
	cat, ok := c[slug]
	return cat, ok
}

// Known reports whether slug names a category in the catalog.
func (c CategoryCatalog) Known(slug string) bool {
	_, ok := c[slug]
	return ok
}
