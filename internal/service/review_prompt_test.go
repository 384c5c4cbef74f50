package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func promptContext() SubmissionContext {
	return SubmissionContext{
		SubmissionID:       1,
		Comment:            "I implemented the endpoints with pagination.",
		GithubURL:          "https://github.com/student/project",
		ModuleTitle:        "REST APIs",
		ModuleDescription:  "Build a REST API.",
		ModuleType:         "project",
		ModuleContent:      "Theory about REST.",
		ModuleRequirements: "Implement CRUD endpoints.",
		TrailTitle:         "Backend",
		TrailDescription:   "Backend development trail.",
	}
}

func TestBuildReviewPromptDeterministic(t *testing.T) {
	sctx := promptContext()
	require.Equal(t, buildReviewPrompt(sctx), buildReviewPrompt(sctx))
}

func TestBuildReviewPromptSections(t *testing.T) {
	prompt := buildReviewPrompt(promptContext())

	require.Contains(t, prompt, "# Module\nREST APIs (project)")
	require.Contains(t, prompt, "## Requirements\nImplement CRUD endpoints.")
	require.Contains(t, prompt, "# Trail\nBackend")
	require.Contains(t, prompt, "# Student Submission\nI implemented the endpoints with pagination.")
	require.Contains(t, prompt, "GitHub: https://github.com/student/project")
	require.Contains(t, prompt, "# Required Output")
	require.Contains(t, prompt, "shortVerdict")
	require.NotContains(t, prompt, limitedContextMarker)
	require.NotContains(t, prompt, "# Previously Asked Questions")
}

func TestBuildReviewPromptNoCommentUsesPlaceholder(t *testing.T) {
	sctx := promptContext()
	sctx.Comment = "   "

	prompt := buildReviewPrompt(sctx)
	require.Contains(t, prompt, noCommentPlaceholder)
	require.Contains(t, prompt, limitedContextMarker)
}

func TestBuildReviewPromptNoCommentNoLinks(t *testing.T) {
	sctx := promptContext()
	sctx.Comment = ""
	sctx.GithubURL = ""

	prompt := buildReviewPrompt(sctx)
	require.Contains(t, prompt, noCommentPlaceholder)
	require.NotContains(t, prompt, "## Links")
	// The marker is only meaningful when links exist.
	require.NotContains(t, prompt, limitedContextMarker)
}

func TestBuildReviewPromptListsPreviousQuestions(t *testing.T) {
	sctx := promptContext()
	sctx.PreviousQuestions = []string{"Why fiber over net/http?", "How do you handle migrations?"}

	prompt := buildReviewPrompt(sctx)
	require.Contains(t, prompt, "# Previously Asked Questions")
	require.Contains(t, prompt, "- Why fiber over net/http?")
	require.Contains(t, prompt, "- How do you handle migrations?")

	// Prior questions must come before the output instructions.
	require.Less(t, strings.Index(prompt, "# Previously Asked Questions"), strings.Index(prompt, "# Required Output"))
}
