package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/devtrail/devtrail-api/internal/models"
	"github.com/devtrail/devtrail-api/internal/repository"
)

// Text caps applied before the context reaches the prompt. Oversized fields
// are cut and a visible marker naming the cap is appended.
const (
	moduleTextCap       = 50000
	trailDescriptionCap = 5000
)

const allSourcesAvailableNote = "all sources available"

// SubmissionContext aggregates everything the generator needs for one run.
// It is rebuilt fresh on every run and never cached.
type SubmissionContext struct {
	SubmissionID       uint
	Comment            string
	FileURL            string
	GithubURL          string
	DeployURL          string
	ModuleTitle        string
	ModuleDescription  string
	ModuleType         string
	ModuleContent      string
	ModuleRequirements string
	TrailTitle         string
	TrailDescription   string
	PreviousQuestions  []string
}

// contextCollector gathers and sanitises analysis inputs from the data store
// and reports which sources were actually available.
type contextCollector struct {
	submissions repository.SubmissionRepository
	reviews     repository.ReviewRepository
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
}

func newContextCollector(submissions repository.SubmissionRepository, reviews repository.ReviewRepository, logger zerolog.Logger) *contextCollector {
	return &contextCollector{
		submissions: submissions,
		reviews:     reviews,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "review_context_collector").Logger(),
	}
}

// Collect loads the submission with its module and trail in one read, strips
// HTML from free text, applies the truncation caps, and computes coverage.
// A missing submission is the only fatal outcome.
//
// priorQuestions is a snapshot of the previous review's questions column,
// taken by the orchestrator before the claim clears it; when empty the
// collector falls back to reading the stored row.
func (c *contextCollector) Collect(ctx context.Context, submissionID uint, priorQuestions datatypes.JSON) (SubmissionContext, models.ReviewCoverage, error) {
	submission, err := c.submissions.GetWithContext(ctx, submissionID)
	if err != nil {
		return SubmissionContext{}, models.ReviewCoverage{}, err
	}

	module := submission.Module
	trail := module.Trail

	sctx := SubmissionContext{
		SubmissionID:       submission.ID,
		Comment:            c.sanitizer.Sanitize(submission.Comment),
		FileURL:            submission.FileURL,
		GithubURL:          submission.GithubURL,
		DeployURL:          submission.DeployURL,
		ModuleTitle:        module.Title,
		ModuleDescription:  c.sanitizer.Sanitize(module.Description),
		ModuleType:         module.Type,
		ModuleContent:      truncateWithMarker(c.sanitizer.Sanitize(module.Content), moduleTextCap),
		ModuleRequirements: truncateWithMarker(c.sanitizer.Sanitize(module.Requirements), moduleTextCap),
		TrailTitle:         trail.Title,
		TrailDescription:   truncateWithMarker(c.sanitizer.Sanitize(trail.Description), trailDescriptionCap),
		PreviousQuestions:  c.previousQuestions(ctx, submissionID, priorQuestions),
	}

	coverage := computeCoverage(submission, module, trail)
	return sctx, coverage, nil
}

// previousQuestions is best-effort dedup context: any failure here means the
// run simply proceeds without it.
func (c *contextCollector) previousQuestions(ctx context.Context, submissionID uint, snapshot datatypes.JSON) []string {
	raw := snapshot
	if len(raw) == 0 {
		review, err := c.reviews.GetBySubmissionID(ctx, submissionID)
		if err != nil {
			return nil
		}
		raw = review.Questions
	}

	if len(raw) == 0 {
		return nil
	}

	var questions []models.ReviewQuestion
	if err := json.Unmarshal(raw, &questions); err != nil {
		c.logger.Debug().Err(err).Uint("submission_id", submissionID).Msg("could not decode prior questions")
		return nil
	}

	asked := make([]string, 0, len(questions))
	for _, question := range questions {
		if strings.TrimSpace(question.Question) != "" {
			asked = append(asked, question.Question)
		}
	}
	return asked
}

func computeCoverage(submission models.Submission, module models.Module, trail models.Trail) models.ReviewCoverage {
	coverage := models.ReviewCoverage{
		SubmissionTextUsed: submission.HasComment(),
		FileUsed:           submission.HasLink(),
		ModuleUsed:         module.Content != "" || module.Requirements != "" || module.Description != "",
		TrailUsed:          trail.Title != "" && trail.Description != "",
	}

	missing := make([]string, 0, 4)
	if !coverage.SubmissionTextUsed {
		missing = append(missing, "submission text missing")
	}
	if !coverage.FileUsed {
		missing = append(missing, "artifact links missing")
	}
	if !coverage.ModuleUsed {
		missing = append(missing, "module content missing")
	}
	if !coverage.TrailUsed {
		missing = append(missing, "trail metadata missing")
	}

	if len(missing) == 0 {
		coverage.Notes = allSourcesAvailableNote
	} else {
		coverage.Notes = strings.Join(missing, "; ")
	}
	return coverage
}

// truncateWithMarker cuts on rune boundaries; the caps count characters, and
// slicing bytes could leave invalid UTF-8 in the prompt.
func truncateWithMarker(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + truncationMarker(limit)
}

func truncationMarker(limit int) string {
	return fmt.Sprintf("\n[truncated at %d characters]", limit)
}
