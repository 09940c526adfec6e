package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"

	"github.com/marcusbell/bookcat/models"
)

// ErrJobNotFound is returned when a job id has no ledger record.
var ErrJobNotFound = errors.New("store: job not found")

// CreateJob appends a new pending job to the ledger.
func (s *Store) CreateJob(targetType models.TargetType, targetURL, targetID string) (*models.RefreshJob, error) {
	job := &models.RefreshJob{
		ID:         uuid.NewString(),
		TargetType: targetType,
		TargetURL:  targetURL,
		TargetID:   targetID,
		Status:     models.JobPending,
		CreatedAt:  time.Now(),
	}
	if err := s.db.Insert(job.ID, job); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetJob looks up a ledger record by id.
func (s *Store) GetJob(id string) (*models.RefreshJob, error) {
	var job models.RefreshJob
	if err := s.db.Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// FindPendingJob returns the pending job for a target URL, if any. This
// is the dedup lookup: it is advisory, and a narrow check-then-insert
// race yields at most a harmless duplicate crawl.
func (s *Store) FindPendingJob(targetURL string) (*models.RefreshJob, error) {
	var jobs []models.RefreshJob
	query := badgerhold.Where("TargetURL").Eq(targetURL).Index("TargetURL").
		And("Status").Eq(models.JobPending)
	if err := s.db.Find(&jobs, query.Limit(1)); err != nil {
		return nil, fmt.Errorf("find pending job: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// MarkJobRunning transitions a job to running and stamps StartedAt.
func (s *Store) MarkJobRunning(id string) error {
	return s.updateJob(id, func(job *models.RefreshJob) {
		now := time.Now()
		job.Status = models.JobRunning
		job.StartedAt = &now
	})
}

// MarkJobDone transitions a job to done and stamps FinishedAt.
func (s *Store) MarkJobDone(id string) error {
	return s.updateJob(id, func(job *models.RefreshJob) {
		now := time.Now()
		job.Status = models.JobDone
		job.FinishedAt = &now
	})
}

// MarkJobFailed transitions a job to failed, recording the cause.
func (s *Store) MarkJobFailed(id, errorDetail string) error {
	return s.updateJob(id, func(job *models.RefreshJob) {
		now := time.Now()
		job.Status = models.JobFailed
		job.FinishedAt = &now
		job.ErrorDetail = errorDetail
	})
}

func (s *Store) updateJob(id string, mutate func(*models.RefreshJob)) error {
	job, err := s.GetJob(id)
	if err != nil {
		return err
	}
	mutate(job)
	if err := s.db.Update(id, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// ListJobs returns ledger records, newest first, optionally filtered by
// status. The ledger is append-only; records are never deleted.
func (s *Store) ListJobs(status models.JobStatus, limit int) ([]models.RefreshJob, error) {
	query := badgerhold.Where("ID").Ne("")
	if status != "" {
		query = badgerhold.Where("Status").Eq(status).Index("Status")
	}
	query = query.SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []models.RefreshJob
	if err := s.db.Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}
