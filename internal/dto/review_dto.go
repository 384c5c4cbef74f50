package dto

import (
	"encoding/json"
	"time"

	"github.com/devtrail/devtrail-api/internal/models"
)

// ReviewRunRequest is the optional body for triggering a review run.
type ReviewRunRequest struct {
	Force bool `json:"force"`
}

// ReviewResponse is the serialization-safe projection of a review record.
// The JSON columns are decoded into structured objects at this boundary; a
// stored payload that no longer decodes simply yields a null field.
type ReviewResponse struct {
	ID           uint                    `json:"id"`
	SubmissionID uint                    `json:"submission_id"`
	Status       string                  `json:"status"`
	Analysis     *models.ReviewAnalysis  `json:"analysis"`
	Questions    []models.ReviewQuestion `json:"questions"`
	Coverage     *models.ReviewCoverage  `json:"coverage"`
	ErrorMessage *string                 `json:"error_message"`
	StartedAt    *time.Time              `json:"started_at"`
	FinishedAt   *time.Time              `json:"finished_at"`
}

// ReviewAvailabilityResponse reports whether the generator is configured.
type ReviewAvailabilityResponse struct {
	Available bool `json:"available"`
}

// NewReviewResponse converts a SubmissionReview model into a DTO.
func NewReviewResponse(model models.SubmissionReview) ReviewResponse {
	response := ReviewResponse{
		ID:           model.ID,
		SubmissionID: model.SubmissionID,
		Status:       model.Status,
		ErrorMessage: model.ErrorMessage,
		StartedAt:    model.StartedAt,
		FinishedAt:   model.FinishedAt,
	}

	if len(model.Analysis) > 0 {
		var analysis models.ReviewAnalysis
		if err := json.Unmarshal(model.Analysis, &analysis); err == nil {
			response.Analysis = &analysis
		}
	}

	if len(model.Questions) > 0 {
		var questions []models.ReviewQuestion
		if err := json.Unmarshal(model.Questions, &questions); err == nil {
			response.Questions = questions
		}
	}

	if len(model.Coverage) > 0 {
		var coverage models.ReviewCoverage
		if err := json.Unmarshal(model.Coverage, &coverage); err == nil {
			response.Coverage = &coverage
		}
	}

	return response
}
