package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/marcusbell/bookcat/models"
)

// UpsertNavigationGroup creates or updates a group keyed by slug.
func (s *Store) UpsertNavigationGroup(group *models.NavigationGroup) error {
	if group.Slug == "" {
		return fmt.Errorf("navigation group slug is required")
	}
	if err := s.db.Upsert(group.Slug, group); err != nil {
		return fmt.Errorf("upsert navigation group: %w", err)
	}
	return nil
}

// GetNavigationGroup looks up a group by slug.
func (s *Store) GetNavigationGroup(slug string) (*models.NavigationGroup, error) {
	var group models.NavigationGroup
	if err := s.db.Get(slug, &group); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get navigation group: %w", err)
	}
	return &group, nil
}

// ListNavigationGroups returns every group with its items.
func (s *Store) ListNavigationGroups() ([]models.NavigationGroup, error) {
	var groups []models.NavigationGroup
	if err := s.db.Find(&groups, badgerhold.Where("Slug").Ne("").SortBy("Slug")); err != nil {
		return nil, fmt.Errorf("list navigation groups: %w", err)
	}
	return groups, nil
}

// ReplaceNavigationItems deletes all items of a group and inserts the
// fresh set. The navigation structure is small and volatile; a full
// rebuild beats incremental diffing.
func (s *Store) ReplaceNavigationItems(groupSlug string, items []models.NavigationItem) error {
	err := s.db.DeleteMatching(&models.NavigationItem{},
		badgerhold.Where("GroupSlug").Eq(groupSlug).Index("GroupSlug"))
	if err != nil {
		return fmt.Errorf("clear navigation items: %w", err)
	}
	for i := range items {
		item := items[i]
		item.GroupSlug = groupSlug
		if item.Slug == "" {
			continue
		}
		if err := s.db.Upsert(item.Slug, &item); err != nil {
			return fmt.Errorf("insert navigation item %q: %w", item.Slug, err)
		}
	}
	return nil
}

// ListNavigationItems returns the items of one group.
func (s *Store) ListNavigationItems(groupSlug string) ([]models.NavigationItem, error) {
	var items []models.NavigationItem
	query := badgerhold.Where("GroupSlug").Eq(groupSlug).Index("GroupSlug").SortBy("Slug")
	if err := s.db.Find(&items, query); err != nil {
		return nil, fmt.Errorf("list navigation items: %w", err)
	}
	return items, nil
}

// UpsertCategory creates or updates a category keyed by URL, preserving
// fields the new row leaves empty.
func (s *Store) UpsertCategory(category *models.Category) error {
	if category.URL == "" {
		return fmt.Errorf("category URL is required")
	}
	existing, err := s.GetCategory(category.URL)
	if err != nil {
		return err
	}
	if existing != nil {
		if category.Name == "" {
			category.Name = existing.Name
		}
		if category.Slug == "" {
			category.Slug = existing.Slug
		}
		if category.ParentURL == "" {
			category.ParentURL = existing.ParentURL
		}
		if category.NavGroupSlug == "" {
			category.NavGroupSlug = existing.NavGroupSlug
		}
		if category.LastRefreshedAt == nil {
			category.LastRefreshedAt = existing.LastRefreshedAt
		}
	}
	if err := s.db.Upsert(category.URL, category); err != nil {
		return fmt.Errorf("upsert category: %w", err)
	}
	return nil
}

// GetCategory looks up a category by URL.
func (s *Store) GetCategory(url string) (*models.Category, error) {
	var category models.Category
	if err := s.db.Get(url, &category); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &category, nil
}

// GetCategoryBySlug looks up a category by its slug.
func (s *Store) GetCategoryBySlug(slug string) (*models.Category, error) {
	var categories []models.Category
	query := badgerhold.Where("Slug").Eq(slug).Index("Slug").Limit(1)
	if err := s.db.Find(&categories, query); err != nil {
		return nil, fmt.Errorf("find category by slug: %w", err)
	}
	if len(categories) == 0 {
		return nil, nil
	}
	return &categories[0], nil
}

// ListCategories returns all known categories.
func (s *Store) ListCategories() ([]models.Category, error) {
	var categories []models.Category
	if err := s.db.Find(&categories, badgerhold.Where("URL").Ne("").SortBy("Slug")); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// StampCategoryRefreshed records a successful category crawl.
func (s *Store) StampCategoryRefreshed(url string, at time.Time) error {
	category, err := s.GetCategory(url)
	if err != nil {
		return err
	}
	if category == nil {
		return nil
	}
	category.LastRefreshedAt = &at
	if err := s.db.Update(url, category); err != nil {
		return fmt.Errorf("stamp category: %w", err)
	}
	return nil
}

// SaveListing upserts a product listing keyed by its source id.
func (s *Store) SaveListing(listing *models.ProductListing) error {
	if listing.SourceID == "" {
		return fmt.Errorf("listing source id is required")
	}
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = time.Now()
	}
	if err := s.db.Upsert(listing.SourceID, listing); err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}
	return nil
}

// GetListing looks up a listing by source id.
func (s *Store) GetListing(sourceID string) (*models.ProductListing, error) {
	var listing models.ProductListing
	if err := s.db.Get(sourceID, &listing); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return &listing, nil
}

// ListListings returns listings, optionally restricted to one category.
// Stale category links accumulate by design: a listing that drops out
// of a category stops being re-confirmed but keeps its old link.
func (s *Store) ListListings(categoryURL string) ([]models.ProductListing, error) {
	query := badgerhold.Where("SourceID").Ne("")
	if categoryURL != "" {
		query = badgerhold.Where("CategoryURLs").Contains(categoryURL)
	}
	var listings []models.ProductListing
	if err := s.db.Find(&listings, query.SortBy("CreatedAt").Reverse()); err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return listings, nil
}

// CountListings reports the catalog size.
func (s *Store) CountListings() (int, error) {
	count, err := s.db.Count(&models.ProductListing{}, badgerhold.Where("SourceID").Ne(""))
	if err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return int(count), nil
}

// SaveDetail fully replaces the detail record for a listing. Detail
// data is not merge-additive the way listing data is.
func (s *Store) SaveDetail(detail *models.ProductDetail) error {
	if detail.ListingID == "" {
		return fmt.Errorf("detail listing id is required")
	}
	if err := s.db.Upsert(detail.ListingID, detail); err != nil {
		return fmt.Errorf("upsert detail: %w", err)
	}
	return nil
}

// GetDetail looks up the detail record for a listing.
func (s *Store) GetDetail(listingID string) (*models.ProductDetail, error) {
	var detail models.ProductDetail
	if err := s.db.Get(listingID, &detail); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get detail: %w", err)
	}
	return &detail, nil
}
