package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/devtrail/devtrail-api/internal/dto"
	"github.com/devtrail/devtrail-api/internal/events"
	"github.com/devtrail/devtrail-api/internal/models"
	"github.com/devtrail/devtrail-api/internal/observability"
	"github.com/devtrail/devtrail-api/internal/repository"
	"github.com/devtrail/devtrail-api/pkg/ai"
)

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrReviewNotFound indicates no review row exists for the submission.
var ErrReviewNotFound = errors.New("review not found")

// ErrGeneratorUnavailable indicates the external generator is not configured.
var ErrGeneratorUnavailable = errors.New("review generator unavailable")

// ErrReviewFailed marks pipeline failures whose state was already persisted
// on the review row before the error propagated.
var ErrReviewFailed = errors.New("review failed")

const errorMessageLimit = 500

// ReviewService runs the submission review pipeline and exposes its results.
type ReviewService interface {
	// Run triggers the pipeline for a submission and blocks until it
	// completes or fails. The returned DTO always carries the review id,
	// even when err is non-nil: the row was claimed before the attempt.
	Run(ctx context.Context, submissionID uint, payload dto.ReviewRunRequest) (dto.ReviewResponse, error)
	Get(ctx context.Context, submissionID uint) (dto.ReviewResponse, error)
	Available() bool
}

// ReviewConfig describes pipeline tuning knobs.
type ReviewConfig struct {
	// GenerateTimeout bounds the external call; zero falls back to 120s.
	GenerateTimeout time.Duration
	// CacheTTL controls how long completed DTOs stay in Redis.
	CacheTTL time.Duration
}

type reviewService struct {
	submissions repository.SubmissionRepository
	reviews     repository.ReviewRepository
	collector   *contextCollector
	generator   ai.Generator
	publisher   events.Publisher
	cache       *redis.Client
	validator   *validator.Validate
	logger      zerolog.Logger
	config      ReviewConfig
	now         func() time.Time
}

// NewReviewService constructs the review orchestrator. The generator and
// cache may be nil; publisher may be nil to disable events.
func NewReviewService(submissions repository.SubmissionRepository, reviews repository.ReviewRepository, generator ai.Generator, publisher events.Publisher, cache *redis.Client, validate *validator.Validate, logger zerolog.Logger, cfg ReviewConfig) ReviewService {
	if cfg.GenerateTimeout == 0 {
		cfg.GenerateTimeout = 120 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	componentLogger := logger.With().Str("component", "review_service").Logger()

	return &reviewService{
		submissions: submissions,
		reviews:     reviews,
		collector:   newContextCollector(submissions, reviews, logger),
		generator:   generator,
		publisher:   publisher,
		cache:       cache,
		validator:   validate,
		logger:      componentLogger,
		config:      cfg,
		now:         time.Now,
	}
}

func (s *reviewService) Available() bool {
	return s.generator != nil
}

func (s *reviewService) Get(ctx context.Context, submissionID uint) (dto.ReviewResponse, error) {
	if cached, ok := s.cachedResponse(ctx, submissionID); ok {
		return cached, nil
	}

	review, err := s.reviews.GetBySubmissionID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ReviewResponse{}, ErrReviewNotFound
		}
		return dto.ReviewResponse{}, err
	}

	response := dto.NewReviewResponse(review)
	if review.Status == models.ReviewStatusCompleted {
		s.storeCachedResponse(ctx, response)
	}
	return response, nil
}

func (s *reviewService) Run(ctx context.Context, submissionID uint, payload dto.ReviewRunRequest) (dto.ReviewResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ReviewResponse{}, err
	}

	// Existence check before any state is created or mutated.
	if _, err := s.submissions.GetByID(ctx, submissionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ReviewResponse{}, ErrSubmissionNotFound
		}
		return dto.ReviewResponse{}, err
	}

	review, priorQuestions, started, err := s.claimOrCreate(ctx, submissionID, payload.Force)
	if err != nil {
		return dto.ReviewResponse{}, err
	}
	if !started {
		observability.ReviewRuns().WithLabelValues(observability.OutcomeShortCircuit).Inc()
		return dto.NewReviewResponse(review), nil
	}

	s.invalidateCache(ctx, submissionID)

	if runErr := s.runPipeline(ctx, &review, priorQuestions); runErr != nil {
		s.markFailed(ctx, &review, runErr)
		observability.ReviewRuns().WithLabelValues(observability.OutcomeFailed).Inc()
		s.publish(ctx, review)
		return dto.NewReviewResponse(review), errors.Join(ErrReviewFailed, runErr)
	}

	observability.ReviewRuns().WithLabelValues(observability.OutcomeCompleted).Inc()
	response := dto.NewReviewResponse(review)
	s.storeCachedResponse(ctx, response)
	s.publish(ctx, review)
	return response, nil
}

// claimOrCreate resolves the state machine entry: it either claims the right
// to run the pipeline (started=true) or short-circuits on an existing row.
// The returned JSON is a snapshot of the previous attempt's questions, taken
// before the claim clears them, so the new run can avoid repeats.
func (s *reviewService) claimOrCreate(ctx context.Context, submissionID uint, force bool) (models.SubmissionReview, datatypes.JSON, bool, error) {
	existing, err := s.reviews.GetBySubmissionID(ctx, submissionID)
	switch {
	case err == nil:
		return s.claimExisting(ctx, existing, force)
	case errors.Is(err, gorm.ErrRecordNotFound):
		review, started, err := s.createProcessing(ctx, submissionID)
		return review, nil, started, err
	default:
		return models.SubmissionReview{}, nil, false, err
	}
}

func (s *reviewService) claimExisting(ctx context.Context, existing models.SubmissionReview, force bool) (models.SubmissionReview, datatypes.JSON, bool, error) {
	switch existing.Status {
	case models.ReviewStatusProcessing:
		// Single-flight: another trigger is already running the pipeline.
		return existing, nil, false, nil
	case models.ReviewStatusCompleted:
		if !force {
			// Cache-like short-circuit: the generator is never called again.
			return existing, nil, false, nil
		}
	}

	if s.generator == nil {
		return models.SubmissionReview{}, nil, false, ErrGeneratorUnavailable
	}

	priorQuestions := existing.Questions

	// Conditional update on the observed status. Losing the race means a
	// concurrent trigger claimed the row first; return it untouched.
	startedAt := s.now().UTC()
	claimed, err := s.reviews.Claim(ctx, existing.ID, existing.Status, startedAt)
	if err != nil {
		return models.SubmissionReview{}, nil, false, err
	}
	if !claimed {
		current, err := s.reviews.GetByID(ctx, existing.ID)
		if err != nil {
			return models.SubmissionReview{}, nil, false, err
		}
		return current, nil, false, nil
	}

	existing.Status = models.ReviewStatusProcessing
	existing.Analysis = nil
	existing.Questions = nil
	existing.Coverage = nil
	existing.ErrorMessage = nil
	existing.StartedAt = &startedAt
	existing.FinishedAt = nil
	return existing, priorQuestions, true, nil
}

func (s *reviewService) createProcessing(ctx context.Context, submissionID uint) (models.SubmissionReview, bool, error) {
	if s.generator == nil {
		return models.SubmissionReview{}, false, ErrGeneratorUnavailable
	}

	startedAt := s.now().UTC()
	review := models.SubmissionReview{
		SubmissionID: submissionID,
		Status:       models.ReviewStatusProcessing,
		StartedAt:    &startedAt,
	}

	if err := s.reviews.Create(ctx, &review); err != nil {
		// The unique index on submission_id means a concurrent first
		// trigger won; adopt its row instead of failing.
		if repository.IsDuplicateKey(err) {
			current, getErr := s.reviews.GetBySubmissionID(ctx, submissionID)
			if getErr != nil {
				return models.SubmissionReview{}, false, getErr
			}
			return current, false, nil
		}
		return models.SubmissionReview{}, false, err
	}

	return review, true, nil
}

// runPipeline executes collect -> prompt -> generate -> parse -> persist on a
// claimed processing row. Any error leaves persistence to the caller.
func (s *reviewService) runPipeline(ctx context.Context, review *models.SubmissionReview, priorQuestions datatypes.JSON) error {
	stageStart := s.now()
	sctx, coverage, err := s.collector.Collect(ctx, review.SubmissionID, priorQuestions)
	s.observeStage(observability.StageCollect, stageStart)
	if err != nil {
		return fmt.Errorf("collect context: %w", err)
	}

	stageStart = s.now()
	prompt := buildReviewPrompt(sctx)
	s.observeStage(observability.StagePrompt, stageStart)

	generateCtx, cancel := context.WithTimeout(ctx, s.config.GenerateTimeout)
	defer cancel()

	stageStart = s.now()
	raw, err := s.generator.Generate(generateCtx, ai.GenerationRequest{
		System: reviewSystemPrompt,
		Prompt: prompt,
	})
	s.observeStage(observability.StageGenerate, stageStart)
	if err != nil {
		return fmt.Errorf("generate review: %w", err)
	}

	stageStart = s.now()
	result, err := parseReviewResponse(raw)
	s.observeStage(observability.StageParse, stageStart)
	if err != nil {
		return err
	}
	if !result.Conformant {
		observability.ReviewMalformedReplies().Inc()
		s.logger.Warn().Uint("submission_id", review.SubmissionID).Msg("generator reply did not conform to schema; defaults applied")
	}

	stageStart = s.now()
	err = s.persistCompleted(ctx, review, result, coverage)
	s.observeStage(observability.StagePersist, stageStart)
	if err != nil {
		return fmt.Errorf("persist review: %w", err)
	}
	return nil
}

func (s *reviewService) persistCompleted(ctx context.Context, review *models.SubmissionReview, result reviewResult, collected models.ReviewCoverage) error {
	analysisJSON, err := json.Marshal(result.Analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	questionsJSON, err := json.Marshal(result.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}

	// Collector flags are ground truth; the generator's self-reported
	// notes are appended rather than trusted for the booleans.
	merged := collected
	if notes := result.Coverage.Notes; notes != "" {
		merged.Notes = merged.Notes + "; generator: " + notes
	}

	coverageJSON, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode coverage: %w", err)
	}

	finishedAt := s.now().UTC()
	review.Status = models.ReviewStatusCompleted
	review.Analysis = datatypes.JSON(analysisJSON)
	review.Questions = datatypes.JSON(questionsJSON)
	review.Coverage = datatypes.JSON(coverageJSON)
	review.ErrorMessage = nil
	review.FinishedAt = &finishedAt

	return s.reviews.Update(ctx, review)
}

// markFailed persists the failure before the error propagates so the state
// is observable even when the caller drops it.
func (s *reviewService) markFailed(ctx context.Context, review *models.SubmissionReview, runErr error) {
	message := truncateMessage(runErr.Error(), errorMessageLimit)
	finishedAt := s.now().UTC()

	review.Status = models.ReviewStatusFailed
	review.Analysis = nil
	review.Questions = nil
	review.Coverage = nil
	review.ErrorMessage = &message
	review.FinishedAt = &finishedAt

	if err := s.reviews.Update(ctx, review); err != nil {
		s.logger.Error().Err(err).Uint("review_id", review.ID).Msg("failed to persist review failure")
	}
}

func (s *reviewService) observeStage(stage string, start time.Time) {
	observability.ReviewStageDuration().WithLabelValues(stage).Observe(s.now().Sub(start).Seconds())
}

func (s *reviewService) publish(ctx context.Context, review models.SubmissionReview) {
	event := events.NewReviewEvent(review.ID, review.SubmissionID, review.Status)
	if err := s.publisher.PublishReviewEvent(ctx, event); err != nil {
		s.logger.Warn().Err(err).Uint("review_id", review.ID).Msg("failed to publish review event")
	}
}

func reviewCacheKey(submissionID uint) string {
	return fmt.Sprintf("review:submission:%d", submissionID)
}

func (s *reviewService) cachedResponse(ctx context.Context, submissionID uint) (dto.ReviewResponse, bool) {
	if s.cache == nil {
		return dto.ReviewResponse{}, false
	}

	cached, err := s.cache.Get(ctx, reviewCacheKey(submissionID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read review cache")
		}
		return dto.ReviewResponse{}, false
	}

	var response dto.ReviewResponse
	if err := json.Unmarshal([]byte(cached), &response); err != nil {
		return dto.ReviewResponse{}, false
	}
	return response, true
}

func (s *reviewService) storeCachedResponse(ctx context.Context, response dto.ReviewResponse) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, reviewCacheKey(response.SubmissionID), payload, s.config.CacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store review cache")
	}
}

func (s *reviewService) invalidateCache(ctx context.Context, submissionID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, reviewCacheKey(submissionID)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate review cache")
	}
}

func truncateMessage(message string, limit int) string {
	runes := []rune(message)
	if len(runes) <= limit {
		return message
	}
	return string(runes[:limit])
}
