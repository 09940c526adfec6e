package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/marcusbell/bookcat/browser"
	"github.com/marcusbell/bookcat/config"
	"github.com/marcusbell/bookcat/models"
	"github.com/marcusbell/bookcat/store"
)

const (
	rootURL     = "https://shop.example.com/en-gb"
	crimeURL    = "https://shop.example.com/en-gb/collections/crime-mystery"
	romanceURL  = "https://shop.example.com/en-gb/collections/romance"
	orientURL   = "https://shop.example.com/en-gb/products/murder-on-the-orient-express"
	navPageHTML = `<html><head><title>World of Books</title></head><body>
<ul>
  <li>
    <a class="header__menu-item" href="#">Fiction Books</a>
    <div class="onstate-mega-menu__submenu">
      <ul class="list-menu">
        <li><strong class="menu-title">Genres</strong></li>
        <li><a href="` + crimeURL + `">Crime Mystery</a></li>
        <li><a href="` + romanceURL + `">Romance</a></li>
        <li><strong class="menu-title">Popular Authors</strong></li>
        <li><a href="https://shop.example.com/en-gb/top/agatha">Agatha Christie</a></li>
        <li><a href="#">See more</a></li>
        <li><a href="https://shop.example.com/en-gb/pages/sale">Big Sale</a></li>
      </ul>
    </div>
  </li>
</ul>
</body></html>`

	crimePageHTML = `<html><head><title>Crime Mystery | World of Books</title></head><body>
<ul>
  <li class="ais-InfiniteHits-item">
    <a href="` + orientURL + `"></a>
    <h3 class="card__heading">Murder on the Orient Express</h3>
    <span class="price-item">£4.99</span>
    <div class="card__inner"><img src="https://cdn.example.com/orient.jpg"></div>
  </li>
  <li class="ais-InfiniteHits-item">
    <h3 class="card__heading">Tile Without A Link</h3>
  </li>
</ul>
</body></html>`

	romancePageHTML = `<html><head><title>Romance | World of Books</title></head><body>
<ul>
  <li class="ais-InfiniteHits-item">
    <a href="https://shop.example.com/en-gb/products/pride-and-prejudice"></a>
    <h3 class="card__heading">Pride and Prejudice</h3>
    <span class="price-item">£3.49</span>
  </li>
</ul>
</body></html>`

	productPageHTML = `<html><head>
<title>Murder on the Orient Express | World of Books</title>
<meta property="og:image" content="https://cdn.example.com/og-orient.jpg">
</head><body>
<h1>Murder on the Orient Express</h1>
<div class="author">Agatha Christie</div>
<div class="price">£4.49</div>
<div class="description">A snowbound train, a dead passenger.</div>
<span itemprop="isbn">9780007119318</span>
<div class="format">Paperback</div>
<div class="pages">256 pages</div>
<div class="condition">Very Good</div>
<ul class="product-details">
  <li>Publisher: HarperCollins</li>
  <li>Published: 2007</li>
</ul>
</body></html>`
)

type fakeSession struct {
	pages      map[string]string
	html       string
	navigated  []string
	existFn    func(selector string) bool
	clickFn    func(click int) (string, error)
	disabledFn func(click int) bool
	clicks     int
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	html, ok := s.pages[url]
	if !ok {
		return fmt.Errorf("no page for %s", url)
	}
	s.navigated = append(s.navigated, url)
	s.html = html
	return nil
}

func (s *fakeSession) HTML(context.Context) (string, error) { return s.html, nil }

func (s *fakeSession) Hover(context.Context, string) error { return nil }

func (s *fakeSession) Click(_ context.Context, selector string) error {
	if s.clickFn == nil {
		return fmt.Errorf("unexpected click on %q", selector)
	}
	html, err := s.clickFn(s.clicks)
	if err != nil {
		return err
	}
	s.clicks++
	s.html = html
	return nil
}

func (s *fakeSession) ScrollBottom(context.Context) error { return nil }

func (s *fakeSession) Exists(_ context.Context, selector string) (bool, error) {
	if s.existFn == nil {
		return false, nil
	}
	return s.existFn(selector), nil
}

func (s *fakeSession) IsDisabled(_ context.Context, selector string) (bool, error) {
	if s.disabledFn == nil {
		return false, nil
	}
	return s.disabledFn(s.clicks), nil
}

func (s *fakeSession) Wait(context.Context, time.Duration) error { return nil }

func (s *fakeSession) Close() error { return nil }

type fakeBrowser struct {
	session *fakeSession
	err     error
}

func (b *fakeBrowser) NewSession(context.Context) (browser.Session, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.session, nil
}

func (b *fakeBrowser) Close() error { return nil }

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = rootURL
	cfg.NavTitles = []string{"Fiction Books", "Rare Books"}
	cfg.HoverWait = 0
	cfg.RenderWait = 0
	cfg.PageTimeout = 0
	return cfg
}

func testPipeline(t *testing.T, sess *fakeSession) (*Pipeline, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewPipeline(testConfig(), st, &fakeBrowser{session: sess}, nil), st
}

func navExists(selector string) bool {
	return strings.Contains(selector, `"Fiction Books"`)
}

func TestRunCrawlsNavigationAndCategories(t *testing.T) {
	sess := &fakeSession{
		pages: map[string]string{
			rootURL:    navPageHTML,
			crimeURL:   crimePageHTML,
			romanceURL: romancePageHTML,
		},
		existFn: navExists,
	}
	p, st := testPipeline(t, sess)

	if err := p.Run(context.Background(), rootURL); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	group, err := st.GetNavigationGroup("fiction-books")
	if err != nil {
		t.Fatalf("GetNavigationGroup() error = %v", err)
	}
	if group == nil || group.LastRefreshedAt == nil {
		t.Fatalf("navigation group not persisted: %+v", group)
	}

	items, err := st.ListNavigationItems("fiction-books")
	if err != nil {
		t.Fatalf("ListNavigationItems() error = %v", err)
	}
	// Two collections, one author, one promo. The "#" entry is dropped.
	if len(items) != 4 {
		t.Fatalf("items = %d (%+v), want 4", len(items), items)
	}
	bySlug := map[string]models.NavigationItem{}
	for _, item := range items {
		bySlug[item.Slug] = item
	}
	if got := bySlug["crime-mystery"]; got.Type != models.NavItemCollection || got.Section != "Genres" {
		t.Errorf("crime-mystery = %+v", got)
	}
	if got := bySlug["agatha-christie"]; got.Type != models.NavItemAuthor || got.Section != "Popular Authors" {
		t.Errorf("agatha-christie = %+v", got)
	}
	if got := bySlug["big-sale"]; got.Type != models.NavItemPromo {
		t.Errorf("big-sale = %+v", got)
	}

	// Both discovered collections were visited and persisted.
	for _, url := range []string{crimeURL, romanceURL} {
		category, err := st.GetCategory(url)
		if err != nil {
			t.Fatalf("GetCategory(%s) error = %v", url, err)
		}
		if category == nil || category.LastRefreshedAt == nil {
			t.Errorf("category %s not refreshed: %+v", url, category)
		}
	}
	crime, _ := st.GetCategory(crimeURL)
	if crime.Name != "Crime Mystery" || crime.Slug != "crime-mystery" {
		t.Errorf("crime category = %+v", crime)
	}

	listing, err := st.GetListing(orientURL)
	if err != nil {
		t.Fatalf("GetListing() error = %v", err)
	}
	if listing == nil {
		t.Fatal("crime listing not persisted")
	}
	if listing.Title != "Murder on the Orient Express" || listing.PriceValue != 4.99 || listing.Currency != "GBP" {
		t.Errorf("listing = %+v", listing)
	}
	if !listing.HasCategory(crimeURL) {
		t.Errorf("listing not linked to category: %v", listing.CategoryURLs)
	}

	count, err := st.CountListings()
	if err != nil {
		t.Fatalf("CountListings() error = %v", err)
	}
	// The link-less tile is dropped, so two listings total.
	if count != 2 {
		t.Errorf("CountListings() = %d, want 2", count)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	sess := &fakeSession{
		pages: map[string]string{
			rootURL:    navPageHTML,
			crimeURL:   crimePageHTML,
			romanceURL: romancePageHTML,
		},
		existFn: navExists,
	}
	p, st := testPipeline(t, sess)

	for i := 0; i < 2; i++ {
		if err := p.Run(context.Background(), rootURL); err != nil {
			t.Fatalf("Run() #%d error = %v", i+1, err)
		}
	}

	count, err := st.CountListings()
	if err != nil {
		t.Fatalf("CountListings() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CountListings() = %d after rerun, want 2", count)
	}

	listing, err := st.GetListing(orientURL)
	if err != nil {
		t.Fatalf("GetListing() error = %v", err)
	}
	if len(listing.CategoryURLs) != 1 {
		t.Errorf("category links duplicated: %v", listing.CategoryURLs)
	}

	items, err := st.ListNavigationItems("fiction-books")
	if err != nil {
		t.Fatalf("ListNavigationItems() error = %v", err)
	}
	if len(items) != 4 {
		t.Errorf("items = %d after rerun, want 4", len(items))
	}
}

func TestRunResolvesRelativeHrefs(t *testing.T) {
	relNavHTML := `<html><body>
<ul>
  <li>
    <a class="header__menu-item" href="#">Fiction Books</a>
    <div class="onstate-mega-menu__submenu">
      <ul class="list-menu">
        <li><a href="/en-gb/collections/crime-mystery">Crime Mystery</a></li>
      </ul>
    </div>
  </li>
</ul>
</body></html>`
	relCrimeHTML := `<html><head><title>Crime Mystery | World of Books</title></head><body>
<ul>
  <li class="ais-InfiniteHits-item">
    <a href="/en-gb/products/murder-on-the-orient-express"></a>
    <h3 class="card__heading">Murder on the Orient Express</h3>
    <span class="price-item">£4.99</span>
    <div class="card__inner"><img src="/cdn/orient.jpg"></div>
  </li>
</ul>
</body></html>`

	sess := &fakeSession{
		pages: map[string]string{
			rootURL:  relNavHTML,
			crimeURL: relCrimeHTML,
		},
		existFn: navExists,
	}
	p, st := testPipeline(t, sess)

	if err := p.Run(context.Background(), rootURL); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The discovered category URL was resolved and actually visited.
	items, err := st.ListNavigationItems("fiction-books")
	if err != nil {
		t.Fatalf("ListNavigationItems() error = %v", err)
	}
	if len(items) != 1 || items[0].SourceURL != crimeURL {
		t.Fatalf("items = %+v, want one item with absolute SourceURL %s", items, crimeURL)
	}
	category, err := st.GetCategory(crimeURL)
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	if category == nil {
		t.Fatal("relative collection href was never crawled")
	}

	// The listing keys on the absolute product URL, with the image
	// resolved too.
	listing, err := st.GetListing(orientURL)
	if err != nil {
		t.Fatalf("GetListing() error = %v", err)
	}
	if listing == nil {
		t.Fatal("listing not keyed by absolute product URL")
	}
	if listing.ImageURL != "https://shop.example.com/cdn/orient.jpg" {
		t.Errorf("ImageURL = %q, want resolved against the category page", listing.ImageURL)
	}

	// A later detail visit to the absolute URL merges into the same
	// row instead of creating a second one.
	if err := p.runProduct(mustDoc(t, productPageHTML), orientURL); err != nil {
		t.Fatalf("runProduct() error = %v", err)
	}
	count, err := st.CountListings()
	if err != nil {
		t.Fatalf("CountListings() error = %v", err)
	}
	if count != 1 {
		t.Errorf("CountListings() = %d, want the category and detail stages to share one row", count)
	}
}

func TestRunSeedFailureAborts(t *testing.T) {
	sess := &fakeSession{pages: map[string]string{}}
	p, _ := testPipeline(t, sess)

	err := p.Run(context.Background(), rootURL)
	if err == nil {
		t.Fatal("Run() with unreachable seed returned nil error")
	}
	var run ErrRun
	if !errors.As(err, &run) {
		t.Errorf("error type = %T, want ErrRun", err)
	}
}

func TestRunSessionFailure(t *testing.T) {
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	p := NewPipeline(testConfig(), st, &fakeBrowser{err: errors.New("chrome not found")}, nil)

	runErr := p.Run(context.Background(), rootURL)
	var run ErrRun
	if !errors.As(runErr, &run) {
		t.Errorf("error = %v, want ErrRun", runErr)
	}
}

func TestCategoryPagination(t *testing.T) {
	batchTwo := strings.Replace(crimePageHTML, "</ul>", `
  <li class="ais-InfiniteHits-item">
    <a href="https://shop.example.com/en-gb/products/the-big-sleep"></a>
    <h3 class="card__heading">The Big Sleep</h3>
    <span class="price-item">£6.25</span>
  </li>
</ul>`, 1)

	sess := &fakeSession{
		pages:   map[string]string{crimeURL: crimePageHTML},
		existFn: func(selector string) bool { return selector == ".ais-InfiniteHits-loadMore" },
		clickFn: func(click int) (string, error) { return batchTwo, nil },
		// The control disables after the first click.
		disabledFn: func(click int) bool { return click >= 1 },
	}
	p, st := testPipeline(t, sess)

	if err := p.Run(context.Background(), crimeURL); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if sess.clicks != 1 {
		t.Errorf("clicks = %d, want 1", sess.clicks)
	}
	count, err := st.CountListings()
	if err != nil {
		t.Fatalf("CountListings() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CountListings() = %d, want 2", count)
	}
	if got, _ := st.GetListing("https://shop.example.com/en-gb/products/the-big-sleep"); got == nil {
		t.Error("paginated listing not persisted")
	}
}

func TestCategoryPaginationClickBudget(t *testing.T) {
	sess := &fakeSession{
		pages:   map[string]string{crimeURL: crimePageHTML},
		existFn: func(selector string) bool { return selector == ".ais-InfiniteHits-loadMore" },
		clickFn: func(click int) (string, error) { return crimePageHTML, nil },
	}
	p, _ := testPipeline(t, sess)

	if err := p.Run(context.Background(), crimeURL); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sess.clicks != p.cfg.LoadMoreClicks {
		t.Errorf("clicks = %d, want bound %d", sess.clicks, p.cfg.LoadMoreClicks)
	}
}

func TestRunProductPersistsListingAndDetail(t *testing.T) {
	p, st := testPipeline(t, &fakeSession{})
	doc := mustDoc(t, productPageHTML)

	if err := p.runProduct(doc, orientURL); err != nil {
		t.Fatalf("runProduct() error = %v", err)
	}

	listing, err := st.GetListing(orientURL)
	if err != nil {
		t.Fatalf("GetListing() error = %v", err)
	}
	if listing.Title != "Murder on the Orient Express" || listing.Author != "Agatha Christie" {
		t.Errorf("listing = %+v", listing)
	}
	if listing.PriceValue != 4.49 || listing.Publisher != "HarperCollins" || listing.Condition != "Very Good" {
		t.Errorf("listing commerce fields = %+v", listing)
	}
	// No gallery in the fixture, so the og:image fallback applies.
	if listing.ImageURL != "https://cdn.example.com/og-orient.jpg" {
		t.Errorf("ImageURL = %q", listing.ImageURL)
	}

	detail, err := st.GetDetail(orientURL)
	if err != nil {
		t.Fatalf("GetDetail() error = %v", err)
	}
	if detail.ISBN != "9780007119318" || detail.Format != "Paperback" || detail.Pages != 256 {
		t.Errorf("detail = %+v", detail)
	}
	if detail.PublicationDate != "2007" {
		t.Errorf("PublicationDate = %q", detail.PublicationDate)
	}
	if detail.DetailScrapedAt.IsZero() {
		t.Error("DetailScrapedAt not stamped")
	}
}

func TestRunProductPreservesListingIdentity(t *testing.T) {
	p, st := testPipeline(t, &fakeSession{})
	seeded := &models.ProductListing{
		SourceID:  orientURL,
		SourceURL: orientURL,
		Title:     "Murder on the Orient Express (1st ed.)",
		Author:    "A. Christie",
	}
	if err := st.SaveListing(seeded); err != nil {
		t.Fatalf("SaveListing() error = %v", err)
	}

	if err := p.runProduct(mustDoc(t, productPageHTML), orientURL); err != nil {
		t.Fatalf("runProduct() error = %v", err)
	}

	listing, err := st.GetListing(orientURL)
	if err != nil {
		t.Fatalf("GetListing() error = %v", err)
	}
	if listing.Title != "Murder on the Orient Express (1st ed.)" {
		t.Errorf("Title overwritten: %q", listing.Title)
	}
	if listing.Author != "A. Christie" {
		t.Errorf("Author overwritten: %q", listing.Author)
	}
	// Commerce fields still refresh.
	if listing.PriceValue != 4.49 {
		t.Errorf("PriceValue = %v", listing.PriceValue)
	}
}

func TestRunProductEmptyPage(t *testing.T) {
	p, _ := testPipeline(t, &fakeSession{})
	err := p.runProduct(mustDoc(t, "<html><body></body></html>"), orientURL)
	if err == nil {
		t.Fatal("runProduct() on empty page returned nil error")
	}
	var extraction ErrExtraction
	if !errors.As(err, &extraction) {
		t.Errorf("error type = %T, want ErrExtraction", err)
	}
}

func TestVisitSkipsGarbageWithoutNavigating(t *testing.T) {
	sess := &fakeSession{pages: map[string]string{}}
	p, _ := testPipeline(t, sess)

	discovered, err := p.visit(context.Background(), sess, "https://shop.example.com/cart")
	if err != nil {
		t.Fatalf("visit() error = %v", err)
	}
	if discovered != nil {
		t.Errorf("discovered = %v", discovered)
	}
	if len(sess.navigated) != 0 {
		t.Errorf("navigated %v, want no navigation", sess.navigated)
	}
}

func TestErrorTypeLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: "unknown"},
		{name: "extraction", err: ErrExtraction{Err: errors.New("x")}, want: "extraction"},
		{name: "interaction", err: ErrInteraction{Err: errors.New("x")}, want: "interaction"},
		{name: "run", err: ErrRun{Err: errors.New("x")}, want: "run"},
		{name: "wrapped run", err: fmt.Errorf("wrap: %w", ErrRun{Err: errors.New("x")}), want: "run"},
		{name: "plain", err: errors.New("x"), want: "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(tt.err); got != tt.want {
				t.Errorf("errorTypeLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}
