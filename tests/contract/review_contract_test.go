package contract_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/devtrail/devtrail-api/internal/dto"
	"github.com/devtrail/devtrail-api/internal/handler"
	"github.com/devtrail/devtrail-api/internal/models"
)

type stubReviewService struct {
	response dto.ReviewResponse
}

func (s stubReviewService) Run(context.Context, uint, dto.ReviewRunRequest) (dto.ReviewResponse, error) {
	return s.response, nil
}

func (s stubReviewService) Get(context.Context, uint) (dto.ReviewResponse, error) {
	return s.response, nil
}

func (s stubReviewService) Available() bool {
	return true
}

func loadReviewSchema(t *testing.T) *jsonschema.Schema {
	t.Helper()

	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", "review.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)
	return schema
}

func reviewContractApp(response dto.ReviewResponse) *fiber.App {
	svc := stubReviewService{response: response}
	reviewHandler := handler.NewReviewHandler(svc, nil, zerolog.Nop())

	app := fiber.New()
	group := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(1))
		return c.Next()
	})
	reviewHandler.Register(group)
	return app
}

func TestReviewResponseContractCompleted(t *testing.T) {
	schema := loadReviewSchema(t)

	started := time.Now().UTC().Add(-30 * time.Second)
	finished := time.Now().UTC()
	response := dto.ReviewResponse{
		ID:           3,
		SubmissionID: 12,
		Status:       models.ReviewStatusCompleted,
		Analysis: &models.ReviewAnalysis{
			ShortVerdict: "Meets the module requirements with minor gaps.",
			Strengths:    []string{"consistent error handling"},
			Weaknesses:   []string{"no pagination"},
			Gaps:         []string{},
			RiskFlags:    []string{},
			Confidence:   70,
		},
		Questions: []models.ReviewQuestion{
			{
				Question:   "Why did you pick an integer primary key?",
				Type:       models.QuestionTypeApplication,
				Difficulty: models.QuestionDifficultyMedium,
				Rationale:  "Checks schema design reasoning.",
				Source:     models.QuestionSourceSubmission,
			},
		},
		Coverage: &models.ReviewCoverage{
			SubmissionTextUsed: true,
			FileUsed:           false,
			ModuleUsed:         true,
			TrailUsed:          true,
			Notes:              "all sources available",
		},
		StartedAt:  &started,
		FinishedAt: &finished,
	}

	app := reviewContractApp(response)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/12/review", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestReviewResponseContractFailed(t *testing.T) {
	schema := loadReviewSchema(t)

	started := time.Now().UTC().Add(-time.Minute)
	finished := time.Now().UTC()
	message := "generate review: provider timeout"
	response := dto.ReviewResponse{
		ID:           4,
		SubmissionID: 13,
		Status:       models.ReviewStatusFailed,
		ErrorMessage: &message,
		StartedAt:    &started,
		FinishedAt:   &finished,
	}

	app := reviewContractApp(response)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/13/review", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}
