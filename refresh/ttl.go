// Package refresh decides when catalog data is stale and turns stale
// sightings into deduplicated background refresh jobs.
package refresh

import "time"

// IsStale reports whether data refreshed at lastRefreshedAt has
// outlived its TTL. An absent timestamp is stale by convention (covers
// "never scraped"). The boundary is strict: data aged exactly one TTL
// is still fresh.
func IsStale(lastRefreshedAt *time.Time, ttl time.Duration) bool {
	if lastRefreshedAt == nil {
		return true
	}
	return time.Now().After(lastRefreshedAt.Add(ttl))
}
