package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/devtrail/devtrail-api/internal/models"
)

// ReviewRepository defines data operations for submission reviews. The
// review service is the only writer; everything else reads projections.
type ReviewRepository interface {
	GetBySubmissionID(ctx context.Context, submissionID uint) (models.SubmissionReview, error)
	GetByID(ctx context.Context, id uint) (models.SubmissionReview, error)
	Create(ctx context.Context, review *models.SubmissionReview) error
	Update(ctx context.Context, review *models.SubmissionReview) error
	Claim(ctx context.Context, id uint, fromStatus string, startedAt time.Time) (bool, error)
}

type reviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository instantiates the repository.
func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

func (r *reviewRepository) GetBySubmissionID(ctx context.Context, submissionID uint) (models.SubmissionReview, error) {
	var review models.SubmissionReview
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		First(&review).Error; err != nil {
		return models.SubmissionReview{}, err
	}

	return review, nil
}

func (r *reviewRepository) GetByID(ctx context.Context, id uint) (models.SubmissionReview, error) {
	var review models.SubmissionReview
	if err := r.db.WithContext(ctx).First(&review, id).Error; err != nil {
		return models.SubmissionReview{}, err
	}

	return review, nil
}

func (r *reviewRepository) Create(ctx context.Context, review *models.SubmissionReview) error {
	return r.db.WithContext(ctx).Create(review).Error
}

func (r *reviewRepository) Update(ctx context.Context, review *models.SubmissionReview) error {
	return r.db.WithContext(ctx).Save(review).Error
}

// Claim transitions a review into processing with a single conditional
// update. The WHERE clause on the observed status makes the transition
// atomic: when two callers race on the same terminal row, only one sees
// RowsAffected > 0 and runs the pipeline. Result fields from the previous
// attempt are cleared in the same statement.
func (r *reviewRepository) Claim(ctx context.Context, id uint, fromStatus string, startedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SubmissionReview{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(map[string]interface{}{
			"status":        models.ReviewStatusProcessing,
			"analysis":      nil,
			"questions":     nil,
			"coverage":      nil,
			"error_message": nil,
			"started_at":    startedAt,
			"finished_at":   nil,
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// IsDuplicateKey reports whether err was caused by the unique index on
// submission_id, i.e. a concurrent first trigger already created the row.
// Requires the connection to be opened with TranslateError enabled.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
