package crawl

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/marcusbell/bookcat/models"
)

var (
	priceNumberRe = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
	digitsRe      = regexp.MustCompile(`[0-9]+`)
	authorRe      = regexp.MustCompile(`^[A-Z][a-z]+ [A-Z]`)
	slugStripRe   = regexp.MustCompile(`[^\w\s-]`)
	slugSpaceRe   = regexp.MustCompile(`\s+`)
	slugDashRe    = regexp.MustCompile(`-+`)
)

// ParsePrice extracts a decimal value and currency code from raw price
// text. The numeric substring wins; currency defaults to GBP unless a
// dollar or euro symbol appears.
func ParsePrice(text string) (float64, string) {
	value := 0.0
	currency := "GBP"
	if text == "" {
		return value, currency
	}
	if match := priceNumberRe.FindString(text); match != "" {
		if parsed, err := strconv.ParseFloat(match, 64); err == nil {
			value = parsed
		}
	}
	if strings.Contains(text, "$") {
		currency = "USD"
	}
	if strings.Contains(text, "€") {
		currency = "EUR"
	}
	return value, currency
}

// ParsePages pulls a page count out of free text such as "352 pages".
func ParsePages(text string) int {
	match := digitsRe.FindString(text)
	if match == "" {
		return 0
	}
	pages, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return pages
}

// Slugify builds a clean slug from display text: lowercase, special
// characters (including emojis) stripped, whitespace collapsed to
// single dashes.
func Slugify(text string) string {
	slug := strings.ToLower(text)
	slug = slugStripRe.ReplaceAllString(slug, "")
	slug = strings.TrimSpace(slug)
	slug = slugSpaceRe.ReplaceAllString(slug, "-")
	slug = slugDashRe.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// ResolveURL resolves a possibly-relative href or src against the page
// it was extracted from. Storefront markup links relatively; everything
// persisted or scheduled must be absolute. Unparseable input is
// returned unchanged.
func ResolveURL(pageURL, ref string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

// CollectionSlug extracts the path segment after /collections/, without
// query parameters. Returns "" when the URL is not a collection URL.
func CollectionSlug(rawURL string) string {
	_, after, found := strings.Cut(rawURL, "/collections/")
	if !found {
		return ""
	}
	slug, _, _ := strings.Cut(after, "?")
	return strings.Trim(strings.TrimSpace(slug), "/")
}

// ClassifyNavItem buckets a mega-menu entry by URL shape: collection
// paths are catalog collections, static pages are promos, a
// "Capitalized Word Capitalized…" title reads as an author name, and
// everything else is discarded.
func ClassifyNavItem(title, rawURL string) models.NavigationItemType {
	if rawURL == "" || rawURL == "#" {
		return models.NavItemIgnore
	}
	if strings.Contains(rawURL, "/collections/") {
		return models.NavItemCollection
	}
	if strings.Contains(rawURL, "/pages/") {
		return models.NavItemPromo
	}
	if authorRe.MatchString(title) {
		return models.NavItemAuthor
	}
	return models.NavItemIgnore
}

// CleanCategoryName strips the storefront suffix off a page title.
func CleanCategoryName(pageTitle string) string {
	name, _, _ := strings.Cut(pageTitle, " | ")
	return strings.TrimSpace(name)
}
