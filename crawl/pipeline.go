// Package crawl implements the multi-stage extraction pipeline: stage
// classification, navigation, category listing with pagination, and
// product detail, all writing through idempotent natural-key upserts.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/marcusbell/bookcat/browser"
	"github.com/marcusbell/bookcat/config"
	"github.com/marcusbell/bookcat/store"
)

var errNoTitle = errors.New("product page has no title element")

// Pipeline executes one crawl run at a time against the catalog store.
// It is the store's only writer.
type Pipeline struct {
	cfg     *config.Config
	store   *store.Store
	browser browser.Browser
	metrics *Metrics

	// fresh caches recently persisted listing ids so long paginated
	// crawls skip rewriting rows that are within the listing TTL.
	fresh *expirable.LRU[string, time.Time]
}

// NewPipeline wires a pipeline against a store and a browser engine.
func NewPipeline(cfg *config.Config, st *store.Store, b browser.Browser, metrics *Metrics) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		store:   st,
		browser: b,
		metrics: metrics,
		fresh:   expirable.NewLRU[string, time.Time](4096, nil, cfg.ProductListTTL),
	}
}

func (p *Pipeline) freshlySeen(sourceID string, now time.Time) bool {
	seenAt, ok := p.fresh.Get(sourceID)
	if !ok {
		return false
	}
	return now.Sub(seenAt) < p.cfg.ProductListTTL
}

func (p *Pipeline) rememberSeen(sourceID string, at time.Time) {
	p.fresh.Add(sourceID, at)
}

// Run crawls outward from startURL: the start page is classified and
// extracted, and any category URLs the navigation stage discovers are
// visited next. Runs are bounded by a per-page timeout and a total
// page-visit cap; they are never cancelled mid-page.
func (p *Pipeline) Run(ctx context.Context, startURL string) error {
	sess, err := p.browser.NewSession(ctx)
	if err != nil {
		return ErrRun{Err: fmt.Errorf("open browser session: %w", err)}
	}
	defer sess.Close()

	frontier := []string{startURL}
	visited := make(map[string]struct{})
	visits := 0
	var pageErrs int

	for len(frontier) > 0 && visits < p.cfg.MaxPageVisits {
		if err := ctx.Err(); err != nil {
			return ErrRun{Err: err}
		}

		url := frontier[0]
		frontier = frontier[1:]
		if _, seen := visited[url]; seen {
			continue
		}
		visited[url] = struct{}{}
		visits++

		discovered, err := p.visit(ctx, sess, url)
		if err != nil {
			pageErrs++
			p.metrics.IncError(errorTypeLabel(err))
			slog.Error("page visit failed", slog.String("url", url), slog.Any("error", err))
			var run ErrRun
			if errors.As(err, &run) && visits == 1 {
				// The seed page never rendered; nothing useful can follow.
				return err
			}
			continue
		}
		frontier = append(frontier, discovered...)
	}

	slog.Info("crawl run finished",
		slog.String("start", startURL),
		slog.Int("visits", visits),
		slog.Int("page_errors", pageErrs),
	)
	return nil
}

// visit navigates to one URL, classifies it, and dispatches the stage
// extraction. It returns URLs to visit next.
func (p *Pipeline) visit(ctx context.Context, sess browser.Session, url string) ([]string, error) {
	// Garbage URLs are rejected on shape alone, before spending a
	// navigation on them.
	if Classify(url, Signals{HasPrice: true, HasTitle: true}) == StageIgnore {
		slog.Debug("skipping non-catalog url", slog.String("url", url))
		return nil, nil
	}

	pageCtx := ctx
	if p.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		pageCtx, cancel = context.WithTimeout(ctx, p.cfg.PageTimeout)
		defer cancel()
	}

	if err := sess.Navigate(pageCtx, url); err != nil {
		return nil, ErrRun{Err: err}
	}
	html, err := sess.HTML(pageCtx)
	if err != nil {
		return nil, ErrRun{Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, ErrExtraction{Err: err}
	}

	stage := Classify(url, pageSignals(doc))
	start := time.Now()
	defer func() {
		p.metrics.IncPage(stage.String())
		p.metrics.ObserveStage(stage.String(), time.Since(start))
	}()
	slog.Info("processing page", slog.String("url", url), slog.String("stage", stage.String()))

	switch stage {
	case StageNavigation:
		return p.runNavigation(pageCtx, sess, url)
	case StageCategory:
		return nil, p.runCategory(pageCtx, sess, doc, url)
	case StageProduct:
		return nil, p.runProduct(doc, url)
	default:
		return nil, nil
	}
}

// pageSignals derives classification signals from the rendered page.
func pageSignals(doc *goquery.Document) Signals {
	return Signals{
		HasPrice: doc.Find(".price, .product-price, .current-price").Length() > 0,
		HasTitle: doc.Find("h1").Length() > 0,
	}
}
