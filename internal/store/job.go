package store

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/iotstackcloud/teltonikaupdater/internal/rferrors"
	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
	"gorm.io/gorm"
)

// InsertJob creates a new batch job row.
func (s *Store) InsertJob(job *model.BatchJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if err := s.db.Create(job).Error; err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// PartialUpdateJob applies column updates to an existing job row.
func (s *Store) PartialUpdateJob(id uuid.UUID, fields map[string]interface{}) error {
	if err := s.db.Model(&model.BatchJob{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("updating job %s: %w", id, err)
	}
	return nil
}

// GetActiveJob returns the most recent job whose status is pending or
// running. By invariant there is at most one. Callers must treat its
// presence as a write lock on the rollout engine (spec §4.4).
func (s *Store) GetActiveJob() (*model.BatchJob, error) {
	var job model.BatchJob
	err := s.db.
		Where("status IN ?", []model.JobStatus{model.JobStatusPending, model.JobStatusRunning}).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching active job: %w", err)
	}
	return &job, nil
}

// GetJobByID returns a single job, or rferrors.ErrNotFound.
func (s *Store) GetJobByID(id uuid.UUID) (*model.BatchJob, error) {
	var job model.BatchJob
	if err := s.db.First(&job, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, rferrors.ErrNotFound
		}
		return nil, fmt.Errorf("fetching job %s: %w", id, err)
	}
	return &job, nil
}

// GetAllJobs returns every job, most recent first.
func (s *Store) GetAllJobs() ([]model.BatchJob, error) {
	var jobs []model.BatchJob
	if err := s.db.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}
