package crawl

import (
	"time"

	"github.com/marcusbell/bookcat/models"
)

// listingObservation carries whatever one crawl stage saw for a
// listing. The list and detail stages observe the same product at
// different fidelity, so all listing writes funnel through one merge.
type listingObservation struct {
	Title      string
	Author     string
	PriceValue float64
	Currency   string
	ImageURL   string
	Publisher  string
	Condition  string
}

// mergeListing folds an observation into an existing listing, or builds
// a fresh one when existing is nil. Identity fields are set once;
// mutable commerce fields refresh only from non-empty observations, so
// a later, lower-fidelity sighting never blanks known data.
func mergeListing(existing *models.ProductListing, sourceID string, obs listingObservation, now time.Time) *models.ProductListing {
	if existing == nil {
		return &models.ProductListing{
			SourceID:   sourceID,
			SourceURL:  sourceID,
			Title:      obs.Title,
			Author:     obs.Author,
			PriceValue: obs.PriceValue,
			Currency:   obs.Currency,
			ImageURL:   obs.ImageURL,
			Publisher:  obs.Publisher,
			Condition:  obs.Condition,
			LastSeenAt: &now,
			CreatedAt:  now,
		}
	}

	if existing.Title == "" {
		existing.Title = obs.Title
	}
	if existing.Author == "" {
		existing.Author = obs.Author
	}
	if obs.PriceValue > 0 {
		existing.PriceValue = obs.PriceValue
		existing.Currency = obs.Currency
	}
	if obs.ImageURL != "" {
		existing.ImageURL = obs.ImageURL
	}
	if obs.Publisher != "" {
		existing.Publisher = obs.Publisher
	}
	if obs.Condition != "" {
		existing.Condition = obs.Condition
	}
	existing.LastSeenAt = &now
	return existing
}
