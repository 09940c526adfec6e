// Package models defines the catalog entities and refresh-job records.
package models

import "time"

// TargetType identifies which extraction stage a refresh target needs.
type TargetType string

const (
	TargetNavigation TargetType = "navigation"
	TargetCategory   TargetType = "category"
	TargetProduct    TargetType = "product"
)

// JobStatus is the lifecycle state of a RefreshJob.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// RefreshJob is an append-only record of one requested refresh. At most
// one job per TargetURL should be in the pending state at a time; the
// check is advisory and a short race window is tolerated because all
// persistence writes are idempotent upserts.
type RefreshJob struct {
	ID          string `badgerhold:"key"`
	TargetType  TargetType
	TargetURL   string `badgerholdIndex:"TargetURL"`
	TargetID    string
	Status      JobStatus `badgerholdIndex:"Status"`
	ErrorDetail string
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

// NavigationItemType classifies a mega-menu entry by URL shape.
type NavigationItemType string

const (
	NavItemCollection NavigationItemType = "COLLECTION"
	NavItemPromo      NavigationItemType = "PROMO"
	NavItemAuthor     NavigationItemType = "AUTHOR"
	NavItemIgnore     NavigationItemType = "IGNORE"
)

// NavigationGroup is a top-level site section. Its item set is fully
// rebuilt on every successful navigation crawl.
type NavigationGroup struct {
	Slug            string `badgerhold:"key"`
	Title           string
	LastRefreshedAt *time.Time
}

// NavigationItem belongs to exactly one NavigationGroup. Items that
// classify as IGNORE are dropped before persistence and never stored.
type NavigationItem struct {
	Slug      string `badgerhold:"key"`
	GroupSlug string `badgerholdIndex:"GroupSlug"`
	Section   string
	Title     string
	Type      NavigationItemType
	SourceURL string
}

// Category is a product-listing collection, keyed by its URL.
type Category struct {
	URL             string `badgerhold:"key"`
	Slug            string `badgerholdIndex:"Slug"`
	Name            string
	ParentURL       string
	NavGroupSlug    string
	LastRefreshedAt *time.Time
}

// ProductListing is the list-level view of a product, keyed by the
// canonical product URL. Identity fields (SourceID, SourceURL, Title,
// Author) are set once; commerce fields refresh opportunistically but
// are never blanked by an empty later observation. CategoryURLs is
// additive: links are confirmed, never removed.
type ProductListing struct {
	SourceID      string `badgerhold:"key"`
	SourceURL     string
	Title         string
	Author        string
	PriceValue    float64
	Currency      string
	ImageURL      string
	Publisher     string
	Condition     string
	CategoryURLs  []string
	LastSeenAt    *time.Time
	ListScrapedAt *time.Time
	CreatedAt     time.Time
}

// ProductDetail holds detail-page fields, one-to-one with a listing.
// Unlike the listing, a detail record is fully replaced on every visit.
type ProductDetail struct {
	ListingID       string `badgerhold:"key"`
	ISBN            string
	LongDescription string
	Format          string
	Pages           int
	PublicationDate string
	RatingAvg       float64
	ReviewsCount    int
	FullImageURLs   []string
	DetailScrapedAt time.Time
}

// HasCategory reports whether the listing is already linked to the
// category URL.
func (p *ProductListing) HasCategory(categoryURL string) bool {
	for _, u := range p.CategoryURLs {
		if u == categoryURL {
			return true
		}
	}
	return false
}

// AddCategory links the category URL if not already present.
func (p *ProductListing) AddCategory(categoryURL string) {
	if categoryURL == "" || p.HasCategory(categoryURL) {
		return
	}
	p.CategoryURLs = append(p.CategoryURLs, categoryURL)
}
