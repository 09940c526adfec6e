package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/marcusbell/bookcat/browser"
	"github.com/marcusbell/bookcat/models"
)

// menuSection is one block of a revealed mega-menu: a heading plus its
// title/URL pairs.
type menuSection struct {
	Title string
	Items []menuLink
}

type menuLink struct {
	Title string
	URL   string
}

// navSelector addresses one top-level menu entry by its exact text. The
// site's own wording is the only stable hook.
func navSelector(title string) string {
	return fmt.Sprintf(`//a[contains(@class,"header__menu-item")][normalize-space()=%q]`, title)
}

// runNavigation walks the configured top-level section titles, reveals
// each mega-menu, persists the classified item tree, and returns every
// discovered category URL for follow-up visits. The primary navigation
// is not auto-discovered: only titles in the configured set are
// trusted, because the site's exact wording is unstable.
func (p *Pipeline) runNavigation(ctx context.Context, sess browser.Session, pageURL string) ([]string, error) {
	var discovered []string

	for _, title := range p.cfg.NavTitles {
		present, err := sess.Exists(ctx, navSelector(title))
		if err != nil {
			return discovered, ErrRun{Err: err}
		}
		if !present {
			slog.Debug("top-level nav item not on page", slog.String("title", title))
			continue
		}

		// Reveal the sub-menu, then re-snapshot. A failed hover still
		// yields the group itself (some sections have no mega-menu).
		if err := sess.Hover(ctx, navSelector(title)); err != nil {
			interaction := ErrInteraction{Err: err}
			slog.Debug("hover failed", slog.String("title", title), slog.Any("error", interaction))
			p.metrics.IncError(errorTypeLabel(interaction))
		} else if err := sess.Wait(ctx, p.cfg.HoverWait); err != nil {
			return discovered, ErrRun{Err: err}
		}

		html, err := sess.HTML(ctx)
		if err != nil {
			return discovered, ErrRun{Err: err}
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return discovered, ErrRun{Err: err}
		}

		sections := extractMegaMenu(doc, title)
		urls, err := p.persistNavigationGroup(title, sections, pageURL)
		if err != nil {
			slog.Error("persist navigation group failed",
				slog.String("title", title), slog.Any("error", err))
			p.metrics.IncError("extraction")
			continue
		}
		discovered = append(discovered, urls...)
	}

	return discovered, nil
}

// extractMegaMenu pulls the section tree out of the revealed sub-menu
// belonging to the named top-level entry.
func extractMegaMenu(doc *goquery.Document, navTitle string) []menuSection {
	var parent *goquery.Selection
	doc.Find("a.header__menu-item").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) == navTitle {
			parent = s.Closest("li")
			return false
		}
		return true
	})
	if parent == nil || parent.Length() == 0 {
		return nil
	}

	megaMenu := parent.Find(".onstate-mega-menu__submenu")
	if megaMenu.Length() == 0 {
		return nil
	}

	var sections []menuSection
	megaMenu.Find("ul.list-menu").Each(func(_ int, ul *goquery.Selection) {
		current := menuSection{Title: "General"}
		flush := func() {
			if len(current.Items) > 0 {
				sections = append(sections, current)
			}
		}

		ul.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
			if heading, ok := sectionHeading(li); ok {
				flush()
				current = menuSection{Title: heading}
				return
			}
			link := li.Find("a").First()
			if link.Length() == 0 {
				return
			}
			title := strings.TrimSpace(link.Text())
			href, _ := link.Attr("href")
			if title != "" && href != "" {
				current.Items = append(current.Items, menuLink{Title: title, URL: href})
			}
		})
		flush()
	})

	return sections
}

// sectionHeading recognises a list entry that titles a section rather
// than linking anywhere. The storefront renders headings in several
// markups, so a few selectors are tried in order.
func sectionHeading(li *goquery.Selection) (string, bool) {
	headingSelectors := []string{
		"div.header__menu-item.caption-large",
		"strong.menu-title",
		"span.level-two__title",
		".caption-large",
		"strong",
		"h3",
		"h4",
		".menu-heading",
	}
	for _, sel := range headingSelectors {
		if node := li.Find(sel).First(); node.Length() > 0 {
			text := strings.TrimSpace(node.Text())
			if text == "" {
				text = "Uncategorized"
			}
			return text, true
		}
	}
	for _, class := range []string{"menu-header", "section-header", "list-menu__header"} {
		if li.HasClass(class) {
			text := strings.TrimSpace(li.Text())
			if text == "" {
				text = "Uncategorized"
			}
			return text, true
		}
	}
	return "", false
}

// persistNavigationGroup upserts the group and fully replaces its item
// set with the freshly classified extraction. Hrefs are classified raw
// but persisted and scheduled as absolute URLs resolved against the
// page. Returns the collection URLs discovered for scheduling.
func (p *Pipeline) persistNavigationGroup(title string, sections []menuSection, pageURL string) ([]string, error) {
	now := time.Now()
	slug := Slugify(title)
	group := &models.NavigationGroup{
		Slug:            slug,
		Title:           title,
		LastRefreshedAt: &now,
	}
	if err := p.store.UpsertNavigationGroup(group); err != nil {
		return nil, err
	}

	var items []models.NavigationItem
	var discovered []string
	seen := make(map[string]struct{})
	for _, section := range sections {
		for _, link := range section.Items {
			itemType := ClassifyNavItem(link.Title, link.URL)
			if itemType == models.NavItemIgnore {
				continue
			}
			absURL := ResolveURL(pageURL, link.URL)

			itemSlug := CollectionSlug(absURL)
			if itemSlug == "" {
				itemSlug = Slugify(link.Title)
			}
			if itemSlug == "" {
				continue
			}
			if _, dup := seen[itemSlug]; dup {
				continue
			}
			seen[itemSlug] = struct{}{}

			items = append(items, models.NavigationItem{
				Slug:      itemSlug,
				GroupSlug: slug,
				Section:   section.Title,
				Title:     link.Title,
				Type:      itemType,
				SourceURL: absURL,
			})
			if itemType == models.NavItemCollection {
				discovered = append(discovered, absURL)
			}
		}
	}

	if err := p.store.ReplaceNavigationItems(slug, items); err != nil {
		return nil, err
	}

	p.metrics.IncItems("navigation_item", len(items))
	slog.Info("navigation group refreshed",
		slog.String("group", slug),
		slog.Int("items", len(items)),
		slog.Int("sections", len(sections)),
	)
	return discovered, nil
}
