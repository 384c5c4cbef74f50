package models

import (
	"time"

	"gorm.io/datatypes"
)

// Review lifecycle states. A missing row means the submission was never analysed.
const (
	ReviewStatusProcessing = "processing"
	ReviewStatusCompleted  = "completed"
	ReviewStatusFailed     = "failed"
)

// Question classification enums shared by the prompt contract and the parser.
const (
	QuestionTypeKnowledge    = "knowledge"
	QuestionTypeApplication  = "application"
	QuestionTypeReflection   = "reflection"
	QuestionTypeVerification = "verification"

	QuestionDifficultyEasy   = "easy"
	QuestionDifficultyMedium = "medium"
	QuestionDifficultyHard   = "hard"

	QuestionSourceSubmission = "submission"
	QuestionSourceFile       = "file"
	QuestionSourceModule     = "module"
	QuestionSourceTrail      = "trail"
)

// MaxReviewQuestions bounds the number of stored follow-up questions.
const MaxReviewQuestions = 10

// SubmissionReview tracks one submission's analysis lifecycle and result.
// The unique index on SubmissionID guarantees at most one row per submission.
type SubmissionReview struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	SubmissionID uint           `gorm:"not null;uniqueIndex" json:"submission_id"`
	Status       string         `gorm:"size:32;not null" json:"status"`
	Analysis     datatypes.JSON `json:"analysis"`
	Questions    datatypes.JSON `json:"questions"`
	Coverage     datatypes.JSON `json:"coverage"`
	ErrorMessage *string        `gorm:"size:512" json:"error_message"`
	StartedAt    *time.Time     `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Submission   Submission     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"submission"`
}

// ReviewAnalysis is the structured critique produced by the generator.
// The JSON keys are the exact shape the generator is instructed to emit.
type ReviewAnalysis struct {
	ShortVerdict string   `json:"shortVerdict"`
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	Gaps         []string `json:"gaps"`
	RiskFlags    []string `json:"riskFlags"`
	Confidence   int      `json:"confidence"`
}

// ReviewQuestion is one probing follow-up question for the student.
type ReviewQuestion struct {
	Question   string `json:"question"`
	Type       string `json:"type"`
	Difficulty string `json:"difficulty"`
	Rationale  string `json:"rationale"`
	Source     string `json:"source"`
}

// ReviewCoverage reports which input sources were available for the analysis.
type ReviewCoverage struct {
	SubmissionTextUsed bool   `json:"submissionTextUsed"`
	FileUsed           bool   `json:"fileUsed"`
	ModuleUsed         bool   `json:"moduleUsed"`
	TrailUsed          bool   `json:"trailUsed"`
	Notes              string `json:"notes"`
}

// ValidQuestionType reports whether value belongs to the question type enum.
func ValidQuestionType(value string) bool {
	switch value {
	case QuestionTypeKnowledge, QuestionTypeApplication, QuestionTypeReflection, QuestionTypeVerification:
		return true
	}
	return false
}

// ValidQuestionDifficulty reports whether value belongs to the difficulty enum.
func ValidQuestionDifficulty(value string) bool {
	switch value {
	case QuestionDifficultyEasy, QuestionDifficultyMedium, QuestionDifficultyHard:
		return true
	}
	return false
}

// ValidQuestionSource reports whether value belongs to the source enum.
func ValidQuestionSource(value string) bool {
	switch value {
	case QuestionSourceSubmission, QuestionSourceFile, QuestionSourceModule, QuestionSourceTrail:
		return true
	}
	return false
}
