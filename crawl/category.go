package crawl

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/marcusbell/bookcat/browser"
	"github.com/marcusbell/bookcat/models"
)

// productTile is one entry of a category listing grid.
type productTile struct {
	Title     string
	URL       string
	PriceText string
	ImageURL  string
}

// loadMoreSelectors are tried in order when looking for the pagination
// control after the lazy-load scroll.
var loadMoreSelectors = []string{
	".ais-InfiniteHits-loadMore",
	`//button[contains(., "Load More")]`,
	`//button[contains(., "Show More")]`,
}

// runCategory upserts the category row, persists the visible tile
// batch, then pages through the "load more" control a bounded number of
// times. The category never schedules product visits: product pages
// refresh independently through their own staleness trigger, which
// keeps the navigation to category crawl bounded and fast.
func (p *Pipeline) runCategory(ctx context.Context, sess browser.Session, doc *goquery.Document, pageURL string) error {
	now := time.Now()
	slug := CollectionSlug(pageURL)
	name := CleanCategoryName(doc.Find("title").First().Text())
	if slug == "" {
		slug = Slugify(name)
	}

	category := &models.Category{
		URL:  pageURL,
		Slug: slug,
		Name: name,
	}
	if err := p.store.UpsertCategory(category); err != nil {
		return err
	}

	saved := p.persistTiles(extractTiles(doc), pageURL, now, false)
	p.metrics.IncItems("listing", saved)
	slog.Info("category batch scraped",
		slog.String("category", slug), slog.Int("listings", saved))

	p.paginate(ctx, sess, pageURL, slug)

	// Whatever pagination did, the category itself was refreshed.
	return p.store.StampCategoryRefreshed(pageURL, time.Now())
}

// paginate triggers lazy loading and clicks the "load more" control up
// to the configured bound, re-extracting after each click. Interaction
// failures break the loop early instead of failing the stage.
func (p *Pipeline) paginate(ctx context.Context, sess browser.Session, pageURL, slug string) {
	if err := sess.ScrollBottom(ctx); err != nil {
		interaction := ErrInteraction{Err: err}
		slog.Debug("scroll failed", slog.String("category", slug), slog.Any("error", interaction))
		p.metrics.IncError(errorTypeLabel(interaction))
		return
	}
	if err := sess.Wait(ctx, p.cfg.RenderWait); err != nil {
		return
	}

	control := ""
	for _, sel := range loadMoreSelectors {
		present, err := sess.Exists(ctx, sel)
		if err != nil {
			slog.Debug("load-more lookup failed", slog.Any("error", err))
			return
		}
		if present {
			control = sel
			break
		}
	}
	if control == "" {
		return
	}

	for i := 0; i < p.cfg.LoadMoreClicks; i++ {
		if err := sess.Click(ctx, control); err != nil {
			interaction := ErrInteraction{Err: err}
			slog.Debug("load-more click failed",
				slog.String("category", slug), slog.Int("click", i+1), slog.Any("error", interaction))
			p.metrics.IncError(errorTypeLabel(interaction))
			break
		}
		if err := sess.Wait(ctx, p.cfg.RenderWait); err != nil {
			break
		}

		html, err := sess.HTML(ctx)
		if err != nil {
			slog.Debug("snapshot after load-more failed", slog.Any("error", err))
			break
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			break
		}

		saved := p.persistTiles(extractTiles(doc), pageURL, time.Now(), true)
		p.metrics.IncItems("listing", saved)
		slog.Info("category page loaded",
			slog.String("category", slug), slog.Int("click", i+1), slog.Int("listings", saved))

		disabled, err := sess.IsDisabled(ctx, control)
		if err != nil || disabled {
			break
		}
	}
}

// extractTiles reads the visible product grid. A tile missing its title
// or link is dropped, never fatal for the batch.
func extractTiles(doc *goquery.Document) []productTile {
	var tiles []productTile
	doc.Find("li.ais-InfiniteHits-item").Each(func(_ int, item *goquery.Selection) {
		title := strings.TrimSpace(item.Find("h3.card__heading").First().Text())
		href, _ := item.Find("a").First().Attr("href")
		if title == "" || href == "" {
			return
		}
		price := strings.TrimSpace(item.Find(".price-item").First().Text())
		image, _ := item.Find(".card__inner img").First().Attr("src")
		tiles = append(tiles, productTile{
			Title:     title,
			URL:       href,
			PriceText: price,
			ImageURL:  image,
		})
	})
	return tiles
}

// persistTiles upserts one listing per tile, additively linking the
// current category. Tile hrefs resolve against the category page so
// listings key on the same absolute URL the product stage visits.
// During pagination (skipFresh), tiles whose listing was already seen
// within the listing TTL are skipped to bound redundant writes on long
// paginated crawls.
func (p *Pipeline) persistTiles(tiles []productTile, categoryURL string, now time.Time, skipFresh bool) int {
	saved := 0
	for _, tile := range tiles {
		sourceID := ResolveURL(categoryURL, tile.URL)

		if skipFresh && p.freshlySeen(sourceID, now) {
			continue
		}

		existing, err := p.store.GetListing(sourceID)
		if err != nil {
			slog.Error("listing lookup failed", slog.String("source_id", sourceID), slog.Any("error", err))
			p.metrics.IncError("extraction")
			continue
		}

		if skipFresh && existing != nil && existing.ListScrapedAt != nil &&
			now.Sub(*existing.ListScrapedAt) < p.cfg.ProductListTTL {
			p.rememberSeen(sourceID, *existing.ListScrapedAt)
			continue
		}

		imageURL := tile.ImageURL
		if imageURL != "" {
			imageURL = ResolveURL(categoryURL, imageURL)
		}

		price, currency := ParsePrice(tile.PriceText)
		listing := mergeListing(existing, sourceID, listingObservation{
			Title:      tile.Title,
			PriceValue: price,
			Currency:   currency,
			ImageURL:   imageURL,
		}, now)
		listing.AddCategory(categoryURL)
		listing.ListScrapedAt = &now

		if err := p.store.SaveListing(listing); err != nil {
			slog.Error("listing save failed", slog.String("source_id", sourceID), slog.Any("error", err))
			p.metrics.IncError("extraction")
			continue
		}
		p.rememberSeen(sourceID, now)
		saved++
	}
	return saved
}
