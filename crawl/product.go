package crawl

import (
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/marcusbell/bookcat/models"
)

// productPage is the full field set the detail stage extracts.
type productPage struct {
	Title           string
	Author          string
	Description     string
	ISBN            string
	Format          string
	PagesText       string
	PriceText       string
	ImageURLs       []string
	Publisher       string
	PublicationDate string
	Condition       string
}

// runProduct resolves or creates the listing keyed by the page URL,
// refreshes its mutable fields from non-empty observations only, and
// fully replaces the detail record.
func (p *Pipeline) runProduct(doc *goquery.Document, pageURL string) error {
	page := extractProductPage(doc)
	for i, img := range page.ImageURLs {
		page.ImageURLs[i] = ResolveURL(pageURL, img)
	}
	now := time.Now()
	sourceID := pageURL

	existing, err := p.store.GetListing(sourceID)
	if err != nil {
		return err
	}
	if existing == nil && page.Title == "" {
		// Nothing to anchor a listing on; treat as a bad extraction and
		// move on rather than persisting an empty row.
		return ErrExtraction{Err: errNoTitle}
	}

	price, currency := ParsePrice(page.PriceText)
	imageURL := ""
	if len(page.ImageURLs) > 0 {
		imageURL = page.ImageURLs[0]
	}

	listing := mergeListing(existing, sourceID, listingObservation{
		Title:      page.Title,
		Author:     page.Author,
		PriceValue: price,
		Currency:   currency,
		ImageURL:   imageURL,
		Publisher:  page.Publisher,
		Condition:  page.Condition,
	}, now)
	if err := p.store.SaveListing(listing); err != nil {
		return err
	}

	detail := &models.ProductDetail{
		ListingID:       listing.SourceID,
		ISBN:            page.ISBN,
		LongDescription: page.Description,
		Format:          page.Format,
		Pages:           ParsePages(page.PagesText),
		PublicationDate: page.PublicationDate,
		FullImageURLs:   page.ImageURLs,
		DetailScrapedAt: now,
	}
	if err := p.store.SaveDetail(detail); err != nil {
		return err
	}

	p.metrics.IncItems("detail", 1)
	slog.Info("product detail refreshed", slog.String("title", listing.Title))
	return nil
}

// extractProductPage reads every detail-page field. Each selector is
// independent: one missing element never aborts the rest.
func extractProductPage(doc *goquery.Document) productPage {
	text := func(selector string) string {
		return strings.TrimSpace(doc.Find(selector).First().Text())
	}

	page := productPage{
		Title:       text("h1"),
		Author:      text(`.author, [data-test="author"]`),
		Description: text(".description, .product-description"),
		ISBN:        text(`[itemprop="isbn"], .isbn`),
		Format:      text(".format"),
		PagesText:   text(".pages"),
		PriceText:   text(".price, .current-price, .product-price"),
		Condition:   text(".condition, .item-condition"),
	}

	doc.Find(".product-gallery__image, .product-image img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok && src != "" {
			page.ImageURLs = append(page.ImageURLs, src)
		}
	})
	if len(page.ImageURLs) == 0 {
		// Social preview image is the fallback when no gallery renders.
		if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && og != "" {
			page.ImageURLs = append(page.ImageURLs, og)
		}
	}

	doc.Find(".product-details li, .biblio-info li").Each(func(_ int, li *goquery.Selection) {
		line := strings.TrimSpace(li.Text())
		if after, found := strings.CutPrefix(line, "Publisher:"); found {
			page.Publisher = strings.TrimSpace(after)
		}
		if after, found := strings.CutPrefix(line, "Published:"); found {
			page.PublicationDate = strings.TrimSpace(after)
		}
	})

	return page
}
