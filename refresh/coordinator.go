package refresh

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/marcusbell/bookcat/models"
)

// Ledger is the slice of the store the coordinator needs.
type Ledger interface {
	FindPendingJob(targetURL string) (*models.RefreshJob, error)
	CreateJob(targetType models.TargetType, targetURL, targetID string) (*models.RefreshJob, error)
	MarkJobFailed(id, errorDetail string) error
	GetCategoryBySlug(slug string) (*models.Category, error)
	GetListing(sourceID string) (*models.ProductListing, error)
	GetNavigationGroup(slug string) (*models.NavigationGroup, error)
}

// Enqueuer hands accepted jobs to the delivery channel. Delivery is
// fire-and-forget and at-least-once.
type Enqueuer interface {
	Enqueue(url, jobID string) error
}

// Observer counts staleness decisions. May be nil.
type Observer interface {
	IncRefreshCheck(decision string)
}

// Coordinator implements the staleness-triggered enqueue decision.
type Coordinator struct {
	ledger   Ledger
	queue    Enqueuer
	observer Observer
	seedURL  string
}

// NewCoordinator builds a coordinator. seedURL is the site root used
// when a navigation target must be resolved to a URL.
func NewCoordinator(ledger Ledger, queue Enqueuer, observer Observer, seedURL string) *Coordinator {
	return &Coordinator{ledger: ledger, queue: queue, observer: observer, seedURL: seedURL}
}

func (c *Coordinator) incCheck(decision string) {
	if c.observer != nil {
		c.observer.IncRefreshCheck(decision)
	}
}

// ConsiderRefresh is called inline from every read path that serves
// potentially-stale data. It never blocks beyond a single ledger
// lookup/insert; the crawl itself always runs out-of-band. The return
// value means a refresh was requested or is already in flight.
func (c *Coordinator) ConsiderRefresh(targetType models.TargetType, targetURL string, lastRefreshedAt *time.Time, ttl time.Duration) bool {
	if !IsStale(lastRefreshedAt, ttl) {
		c.incCheck("fresh")
		return false
	}

	existing, err := c.ledger.FindPendingJob(targetURL)
	if err != nil {
		slog.Error("pending job lookup failed", slog.String("url", targetURL), slog.Any("error", err))
		return false
	}
	if existing != nil {
		c.incCheck("already_pending")
		return true
	}

	job, err := c.ledger.CreateJob(targetType, targetURL, "")
	if err != nil {
		slog.Error("create refresh job failed", slog.String("url", targetURL), slog.Any("error", err))
		return false
	}
	if err := c.queue.Enqueue(targetURL, job.ID); err != nil {
		slog.Error("enqueue refresh job failed", slog.String("url", targetURL), slog.Any("error", err))
		c.failUndelivered(job.ID, err)
		return false
	}

	c.incCheck("enqueued")
	slog.Info("enqueued stale target",
		slog.String("type", string(targetType)),
		slog.String("url", targetURL),
		slog.String("job_id", job.ID),
	)
	return true
}

// RefreshResult reports the outcome of an explicit refresh request.
type RefreshResult struct {
	JobID    string
	Accepted bool
	Message  string
}

// Refresh handles an explicit refresh request. When targetURL is
// absent, targetID is resolved through the store first; failure to
// resolve reports non-acceptance without creating a job.
func (c *Coordinator) Refresh(targetType models.TargetType, targetID, targetURL string) (RefreshResult, error) {
	if targetURL == "" && targetID != "" {
		resolved, err := c.resolveTarget(targetType, targetID)
		if err != nil {
			return RefreshResult{}, err
		}
		targetURL = resolved
	}
	if targetURL == "" {
		return RefreshResult{Message: "could not resolve target URL"}, nil
	}

	existing, err := c.ledger.FindPendingJob(targetURL)
	if err != nil {
		return RefreshResult{}, err
	}
	if existing != nil {
		return RefreshResult{JobID: existing.ID, Accepted: true, Message: "job already pending"}, nil
	}

	job, err := c.ledger.CreateJob(targetType, targetURL, targetID)
	if err != nil {
		return RefreshResult{}, err
	}
	if err := c.queue.Enqueue(targetURL, job.ID); err != nil {
		c.failUndelivered(job.ID, err)
		return RefreshResult{}, err
	}
	return RefreshResult{JobID: job.ID, Accepted: true, Message: "refresh job created"}, nil
}

// failUndelivered marks a job that never reached the queue as failed.
// Left pending, its dedup record would block every future refresh of
// the target.
func (c *Coordinator) failUndelivered(jobID string, cause error) {
	if err := c.ledger.MarkJobFailed(jobID, cause.Error()); err != nil {
		slog.Error("mark undelivered job failed", slog.String("job_id", jobID), slog.Any("error", err))
	}
}

func (c *Coordinator) resolveTarget(targetType models.TargetType, targetID string) (string, error) {
	switch targetType {
	case models.TargetProduct:
		listing, err := c.ledger.GetListing(targetID)
		if err != nil {
			return "", err
		}
		if listing == nil {
			return "", nil
		}
		if listing.SourceURL != "" {
			return listing.SourceURL, nil
		}
		return listing.SourceID, nil
	case models.TargetCategory:
		category, err := c.ledger.GetCategoryBySlug(targetID)
		if err != nil {
			return "", err
		}
		if category == nil {
			return "", nil
		}
		return category.URL, nil
	case models.TargetNavigation:
		// The whole navigation is crawled from the site root, so any
		// known group resolves to the seed URL.
		group, err := c.ledger.GetNavigationGroup(targetID)
		if err != nil {
			return "", err
		}
		if group == nil {
			return "", nil
		}
		return c.seedURL, nil
	default:
		return "", fmt.Errorf("unknown target type %q", targetType)
	}
}

// StartCrawl kicks off a full crawl from seedURL (the site root when
// empty). Unlike Refresh it never dedups: an operator asking for a
// crawl gets one.
func (c *Coordinator) StartCrawl(seedURL string) (RefreshResult, error) {
	if seedURL == "" {
		seedURL = c.seedURL
	}
	job, err := c.ledger.CreateJob(models.TargetNavigation, seedURL, "")
	if err != nil {
		return RefreshResult{}, err
	}
	if err := c.queue.Enqueue(seedURL, job.ID); err != nil {
		c.failUndelivered(job.ID, err)
		return RefreshResult{}, err
	}
	slog.Info("crawl started", slog.String("url", seedURL), slog.String("job_id", job.ID))
	return RefreshResult{JobID: job.ID, Accepted: true, Message: "scrape job started"}, nil
}
