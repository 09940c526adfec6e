package crawl

import (
	"net/url"
	"strings"
)

// Stage determines which extraction routine applies to a visited URL.
type Stage int

const (
	StageIgnore Stage = iota
	StageNavigation
	StageCategory
	StageProduct
)

func (s Stage) String() string {
	switch s {
	case StageNavigation:
		return "navigation"
	case StageCategory:
		return "category"
	case StageProduct:
		return "product"
	default:
		return "ignore"
	}
}

// Signals are page-level observations that URL shape alone cannot
// provide. Price and title presence disambiguate a real product page
// from a path that merely looks like one.
type Signals struct {
	HasPrice bool
	HasTitle bool
}

// garbagePaths are known non-catalog path fragments. Anything matching
// is skipped entirely: no extraction, no persistence.
var garbagePaths = []string{
	"/pages/", "/account", "/cart", "/search", "/help", "/about",
}

type rule struct {
	stage Stage
	match func(raw string, u *url.URL, sig Signals) bool
}

// rules is evaluated in order, first match wins. Keeping the
// classifiers as a flat predicate table makes each independently
// testable and cheap to extend when the site layout drifts.
var rules = []rule{
	{StageIgnore, func(raw string, u *url.URL, _ Signals) bool {
		if strings.Contains(raw, "#") {
			return true
		}
		for _, p := range garbagePaths {
			if strings.Contains(raw, p) {
				return true
			}
		}
		return false
	}},
	{StageNavigation, func(_ string, u *url.URL, _ Signals) bool {
		path := strings.TrimSuffix(u.Path, "/")
		return path == "" || path == "/en-gb"
	}},
	{StageCategory, func(raw string, _ *url.URL, _ Signals) bool {
		return strings.Contains(raw, "/collections/")
	}},
	{StageProduct, func(raw string, _ *url.URL, sig Signals) bool {
		matchesPath := strings.Contains(raw, "/books/") || strings.Contains(raw, "/products/")
		return matchesPath && sig.HasPrice && sig.HasTitle
	}},
}

// Classify maps a visited URL (plus rendered-page signals) to exactly
// one stage. Unparseable URLs are ignored.
func Classify(raw string, sig Signals) Stage {
	u, err := url.Parse(raw)
	if err != nil {
		return StageIgnore
	}
	for _, r := range rules {
		if r.match(raw, u, sig) {
			return r.stage
		}
	}
	return StageIgnore
}
