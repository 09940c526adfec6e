package server

import (
	"errors"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marcusbell/bookcat/export"
	"github.com/marcusbell/bookcat/models"
)

type scrapeStartRequest struct {
	URL string `json:"url"`
}

func (s *Server) startScrape(c *gin.Context) {
	var req scrapeStartRequest
	// An empty body means "start from the configured site root".
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := s.coordinator.StartCrawl(req.URL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  result.JobID,
		"message": result.Message,
	})
}

type refreshRequest struct {
	TargetType string `json:"target_type" binding:"required"`
	TargetID   string `json:"target_id"`
	TargetURL  string `json:"target_url"`
}

func (s *Server) refreshTarget(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_type is required"})
		return
	}

	targetType := models.TargetType(req.TargetType)
	switch targetType {
	case models.TargetNavigation, models.TargetCategory, models.TargetProduct:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown target type"})
		return
	}
	if req.TargetID == "" && req.TargetURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_id or target_url is required"})
		return
	}

	result, err := s.coordinator.Refresh(targetType, req.TargetID, req.TargetURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusAccepted
	if !result.Accepted {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{
		"job_id":   result.JobID,
		"accepted": result.Accepted,
		"message":  result.Message,
	})
}

func (s *Server) listJobs(c *gin.Context) {
	status := models.JobStatus(c.Query("status"))
	limit := intQuery(c, "limit", 50)

	jobs, err := s.store.ListJobs(status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// specialFeatureWords marks merchandising sections like prize winners or
// monthly picks, which are grouped apart from the plain category tree.
var specialFeatureWords = []string{
	"trending", "new ", "prize", "winner", "celebrate", "of the month", "lgbtq", "booker", "award",
}

var authorNamePattern = regexp.MustCompile(`^[A-Z][a-z]+ [A-Z]`)

// sectionFor buckets a navigation item into one of the three display
// sections of the navigation view.
func sectionFor(item *models.NavigationItem) string {
	lower := strings.ToLower(item.Title)
	for _, word := range specialFeatureWords {
		if strings.Contains(lower, word) {
			return "Special Features"
		}
	}
	if item.Type == models.NavItemAuthor || authorNamePattern.MatchString(item.Title) {
		return "Top Authors"
	}
	return "By Category"
}

func (s *Server) listNavigation(c *gin.Context) {
	groups, err := s.store.ListNavigationGroups()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	refreshScheduled := false
	view := make([]gin.H, 0, len(groups))
	for i := range groups {
		group := &groups[i]
		if s.coordinator.ConsiderRefresh(models.TargetNavigation, s.cfg.BaseURL, group.LastRefreshedAt, s.cfg.NavigationTTL) {
			refreshScheduled = true
		}

		items, err := s.store.ListNavigationItems(group.Slug)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		sections := map[string][]models.NavigationItem{}
		for _, item := range items {
			section := sectionFor(&item)
			sections[section] = append(sections[section], item)
		}
		view = append(view, gin.H{
			"slug":              group.Slug,
			"title":             group.Title,
			"last_refreshed_at": group.LastRefreshedAt,
			"sections":          sections,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"groups":            view,
		"refresh_scheduled": refreshScheduled,
	})
}

func (s *Server) listCategories(c *gin.Context) {
	categories, err := s.store.ListCategories()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories, "count": len(categories)})
}

func (s *Server) getCategory(c *gin.Context) {
	slug := c.Param("slug")
	category, err := s.store.GetCategoryBySlug(slug)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if category == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}

	refreshScheduled := s.coordinator.ConsiderRefresh(models.TargetCategory, category.URL, category.LastRefreshedAt, s.cfg.CategoryTTL)

	listings, err := s.store.ListListings(category.URL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	listings = paginate(listings, intQuery(c, "offset", 0), intQuery(c, "limit", 50))

	c.JSON(http.StatusOK, gin.H{
		"category":          category,
		"products":          listings,
		"count":             len(listings),
		"refresh_scheduled": refreshScheduled,
	})
}

func (s *Server) listProducts(c *gin.Context) {
	categoryURL := c.Query("category")
	if slug := c.Query("category_slug"); slug != "" {
		category, err := s.store.GetCategoryBySlug(slug)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if category == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
			return
		}
		categoryURL = category.URL
	}

	listings, err := s.store.ListListings(categoryURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if q := strings.ToLower(c.Query("q")); q != "" {
		filtered := listings[:0]
		for _, listing := range listings {
			if strings.Contains(strings.ToLower(listing.Title), q) ||
				strings.Contains(strings.ToLower(listing.Author), q) {
				filtered = append(filtered, listing)
			}
		}
		listings = filtered
	}

	sortListings(listings, c.Query("sort"))
	total := len(listings)
	listings = paginate(listings, intQuery(c, "offset", 0), intQuery(c, "limit", 50))

	c.JSON(http.StatusOK, gin.H{
		"products": listings,
		"count":    len(listings),
		"total":    total,
	})
}

func (s *Server) getProduct(c *gin.Context) {
	// Source ids are full product URLs, so the id arrives as a wildcard
	// path segment with a leading slash.
	id := strings.TrimPrefix(c.Param("id"), "/")

	listing, err := s.store.GetListing(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if listing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}

	detail, err := s.store.GetDetail(listing.SourceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var detailScrapedAt *time.Time
	if detail != nil {
		detailScrapedAt = &detail.DetailScrapedAt
	}
	targetURL := listing.SourceURL
	if targetURL == "" {
		targetURL = listing.SourceID
	}
	refreshScheduled := s.coordinator.ConsiderRefresh(models.TargetProduct, targetURL, detailScrapedAt, s.cfg.ProductDetailTTL)

	c.JSON(http.StatusOK, gin.H{
		"product":           listing,
		"detail":            detail,
		"refresh_scheduled": refreshScheduled,
	})
}

func (s *Server) exportListings(c *gin.Context) {
	categoryURL := c.Query("category")
	listings, err := s.store.ListListings(categoryURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "csv":
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="listings.csv"`)
		if err := export.WriteCSV(c.Writer, listings); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
	case "json":
		c.Header("Content-Type", "application/x-ndjson")
		if err := export.WriteJSON(c.Writer, listings); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or json"})
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func paginate(listings []models.ProductListing, offset, limit int) []models.ProductListing {
	if offset >= len(listings) {
		return nil
	}
	listings = listings[offset:]
	if limit > 0 && limit < len(listings) {
		listings = listings[:limit]
	}
	return listings
}

func sortListings(listings []models.ProductListing, order string) {
	switch order {
	case "price_asc":
		sort.SliceStable(listings, func(i, j int) bool { return listings[i].PriceValue < listings[j].PriceValue })
	case "price_desc":
		sort.SliceStable(listings, func(i, j int) bool { return listings[i].PriceValue > listings[j].PriceValue })
	case "title":
		sort.SliceStable(listings, func(i, j int) bool { return listings[i].Title < listings[j].Title })
	}
}
