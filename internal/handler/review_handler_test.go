package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/devtrail/devtrail-api/internal/config"
	"github.com/devtrail/devtrail-api/internal/dto"
	"github.com/devtrail/devtrail-api/internal/handler"
	"github.com/devtrail/devtrail-api/internal/models"
	"github.com/devtrail/devtrail-api/internal/repository"
	"github.com/devtrail/devtrail-api/internal/router"
	"github.com/devtrail/devtrail-api/internal/service"
	"github.com/devtrail/devtrail-api/pkg/ai"
)

const handlerTestReply = `{
  "status": "completed",
  "analysis": {
    "shortVerdict": "Good work overall.",
    "strengths": ["clean separation of layers"],
    "weaknesses": [],
    "gaps": [],
    "riskFlags": [],
    "confidence": 75
  },
  "questions": [
    {"question": "How would you add pagination?", "type": "application", "difficulty": "medium", "rationale": "Extends the design.", "source": "module"}
  ],
  "coverage": {"submissionTextUsed": true, "fileUsed": false, "moduleUsed": true, "trailUsed": true, "notes": ""}
}`

type reviewTestGenerator struct {
	reply string
	err   error
}

func (g *reviewTestGenerator) Generate(context.Context, ai.GenerationRequest) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func setupReviewApp(t *testing.T, generator ai.Generator) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Trail{}, &models.Module{}, &models.Submission{}, &models.SubmissionReview{}))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	submissionRepo := repository.NewSubmissionRepository(db)
	reviewRepo := repository.NewReviewRepository(db)

	reviewService := service.NewReviewService(submissionRepo, reviewRepo, generator, nil, nil, validate, logger, service.ReviewConfig{})
	reviewHandler := handler.NewReviewHandler(reviewService, validate, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		ReviewHandler: reviewHandler,
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", uint(1))
			return c.Next()
		},
	})

	return app, db
}

func seedSubmission(t *testing.T, db *gorm.DB) models.Submission {
	t.Helper()

	trail := models.Trail{Title: "Backend", Description: "Backend development trail."}
	require.NoError(t, db.Create(&trail).Error)

	module := models.Module{
		TrailID:      trail.ID,
		Title:        "REST APIs",
		Description:  "Build a REST API.",
		Type:         "project",
		Content:      "Theory about REST.",
		Requirements: "Implement CRUD endpoints.",
	}
	require.NoError(t, db.Create(&module).Error)

	submission := models.Submission{
		ModuleID:  module.ID,
		StudentID: 1,
		Comment:   "I implemented all endpoints and added tests.",
		GithubURL: "https://github.com/student/project",
	}
	require.NoError(t, db.Create(&submission).Error)
	return submission
}

type reviewEnvelope struct {
	Success bool               `json:"success"`
	Data    dto.ReviewResponse `json:"data"`
	Message string             `json:"message"`
}

func decodeReview(t *testing.T, resp *http.Response) reviewEnvelope {
	t.Helper()
	defer resp.Body.Close()

	var envelope reviewEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

func TestReviewHandlerRunAndGet(t *testing.T) {
	app, db := setupReviewApp(t, &reviewTestGenerator{reply: handlerTestReply})
	submission := seedSubmission(t, db)

	path := "/api/v1/submissions/" + strconv.FormatUint(uint64(submission.ID), 10) + "/review"
	resp, err := app.Test(httptest.NewRequest("POST", path, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	runBody := decodeReview(t, resp)
	require.True(t, runBody.Success)
	require.Equal(t, "review completed", runBody.Message)
	require.Equal(t, models.ReviewStatusCompleted, runBody.Data.Status)
	require.NotNil(t, runBody.Data.Analysis)
	require.Equal(t, "Good work overall.", runBody.Data.Analysis.ShortVerdict)
	require.Len(t, runBody.Data.Questions, 1)

	getResp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, getResp.StatusCode)

	getBody := decodeReview(t, getResp)
	require.True(t, getBody.Success)
	require.Equal(t, runBody.Data.ID, getBody.Data.ID)
	require.Equal(t, models.ReviewStatusCompleted, getBody.Data.Status)
}

func TestReviewHandlerRunUnknownSubmission(t *testing.T) {
	app, _ := setupReviewApp(t, &reviewTestGenerator{reply: handlerTestReply})

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/submissions/999999/review", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	body := decodeReview(t, resp)
	require.False(t, body.Success)
	require.Equal(t, "submission not found", body.Message)
}

func TestReviewHandlerRunInvalidID(t *testing.T) {
	app, _ := setupReviewApp(t, &reviewTestGenerator{reply: handlerTestReply})

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/submissions/abc/review", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestReviewHandlerGetMissingReview(t *testing.T) {
	app, db := setupReviewApp(t, &reviewTestGenerator{reply: handlerTestReply})
	submission := seedSubmission(t, db)

	path := "/api/v1/submissions/" + strconv.FormatUint(uint64(submission.ID), 10) + "/review"
	resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	body := decodeReview(t, resp)
	require.False(t, body.Success)
	require.Equal(t, "review not found", body.Message)
}

func TestReviewHandlerGeneratorFailureReturnsBadGateway(t *testing.T) {
	app, db := setupReviewApp(t, &reviewTestGenerator{err: errors.New("provider timeout")})
	submission := seedSubmission(t, db)

	path := "/api/v1/submissions/" + strconv.FormatUint(uint64(submission.ID), 10) + "/review"
	resp, err := app.Test(httptest.NewRequest("POST", path, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadGateway, resp.StatusCode)

	body := decodeReview(t, resp)
	require.False(t, body.Success)
	require.Equal(t, "review failed", body.Message)
	require.Equal(t, models.ReviewStatusFailed, body.Data.Status)
	require.NotNil(t, body.Data.ErrorMessage)
}

func TestReviewHandlerGeneratorUnavailable(t *testing.T) {
	app, db := setupReviewApp(t, nil)
	submission := seedSubmission(t, db)

	path := "/api/v1/submissions/" + strconv.FormatUint(uint64(submission.ID), 10) + "/review"
	resp, err := app.Test(httptest.NewRequest("POST", path, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestReviewHandlerAvailability(t *testing.T) {
	app, _ := setupReviewApp(t, &reviewTestGenerator{reply: handlerTestReply})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/reviews/availability", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	defer resp.Body.Close()
	var body struct {
		Success bool                           `json:"success"`
		Data    dto.ReviewAvailabilityResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.Success)
	require.True(t, body.Data.Available)
}

func TestReviewHandlerForceQueryParam(t *testing.T) {
	app, db := setupReviewApp(t, &reviewTestGenerator{reply: handlerTestReply})
	submission := seedSubmission(t, db)

	path := "/api/v1/submissions/" + strconv.FormatUint(uint64(submission.ID), 10) + "/review"
	first, err := app.Test(httptest.NewRequest("POST", path, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, first.StatusCode)
	firstBody := decodeReview(t, first)

	second, err := app.Test(httptest.NewRequest("POST", path+"?force=true", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, second.StatusCode)
	secondBody := decodeReview(t, second)

	require.Equal(t, firstBody.Data.ID, secondBody.Data.ID)
	require.Equal(t, models.ReviewStatusCompleted, secondBody.Data.Status)
	require.True(t, secondBody.Data.FinishedAt.After(*firstBody.Data.StartedAt) || secondBody.Data.FinishedAt.Equal(*firstBody.Data.StartedAt))
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := setupReviewApp(t, &reviewTestGenerator{reply: handlerTestReply})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
