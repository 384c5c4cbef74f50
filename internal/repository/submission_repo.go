package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/devtrail/devtrail-api/internal/models"
)

// SubmissionRepository defines read operations over student submissions.
// Submission rows are owned by the platform's CRUD surface; the review
// pipeline only consumes them.
type SubmissionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetWithContext(ctx context.Context, id uint) (models.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

// GetWithContext loads the submission together with its module and trail in
// one read, which is everything the context collector needs.
func (r *submissionRepository) GetWithContext(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Preload("Module").
		Preload("Module.Trail").
		First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}
