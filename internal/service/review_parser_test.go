package service

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/devtrail/devtrail-api/internal/models"
)

func TestParseReviewResponseEquivalentInputs(t *testing.T) {
	clean := validGeneratorReply
	fenced := "```json\n" + clean + "\n```"
	prose := "Here is the review you asked for:\n" + clean + "\nHope this helps!"

	expected, err := parseReviewResponse(clean)
	require.NoError(t, err)
	require.True(t, expected.Conformant)
	require.Equal(t, "Solid submission with minor gaps.", expected.Analysis.ShortVerdict)
	require.Equal(t, 80, expected.Analysis.Confidence)
	require.Len(t, expected.Questions, 1)

	for _, raw := range []string{fenced, prose} {
		result, err := parseReviewResponse(raw)
		require.NoError(t, err)
		require.Equal(t, expected, result)
	}
}

func TestParseReviewResponseClampsConfidence(t *testing.T) {
	for raw, want := range map[string]int{
		`{"analysis": {"confidence": 250}}`:  100,
		`{"analysis": {"confidence": -5}}`:   0,
		`{"analysis": {"confidence": "85"}}`: 85,
		`{"analysis": {"confidence": "??"}}`: 50,
		`{"analysis": {}}`:                   50,
	} {
		result, err := parseReviewResponse(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, result.Analysis.Confidence, raw)
		require.False(t, result.Conformant, raw)
	}
}

func TestParseReviewResponseEnumFallbacks(t *testing.T) {
	raw := `{"questions": [{"question": "Why?", "type": "wizardry", "difficulty": "extreme", "rationale": "", "source": "internet"}]}`

	result, err := parseReviewResponse(raw)
	require.NoError(t, err)
	require.Len(t, result.Questions, 1)
	require.Equal(t, models.QuestionTypeKnowledge, result.Questions[0].Type)
	require.Equal(t, models.QuestionDifficultyMedium, result.Questions[0].Difficulty)
	require.Equal(t, models.QuestionSourceModule, result.Questions[0].Source)
}

func TestParseReviewResponseCapsQuestions(t *testing.T) {
	entries := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		entries = append(entries, fmt.Sprintf(`{"question": "Q%d?", "type": "knowledge", "difficulty": "easy", "rationale": "", "source": "module"}`, i))
	}
	raw := `{"questions": [` + strings.Join(entries, ",") + `]}`

	result, err := parseReviewResponse(raw)
	require.NoError(t, err)
	require.Len(t, result.Questions, models.MaxReviewQuestions)
	require.Equal(t, "Q0?", result.Questions[0].Question)
}

func TestParseReviewResponseMissingAnalysisDefaults(t *testing.T) {
	result, err := parseReviewResponse(`{"questions": []}`)
	require.NoError(t, err)
	require.Equal(t, fallbackVerdict, result.Analysis.ShortVerdict)
	require.Empty(t, result.Analysis.Strengths)
	require.Equal(t, 50, result.Analysis.Confidence)
	require.Empty(t, result.Questions)
	require.False(t, result.Coverage.SubmissionTextUsed)
	require.False(t, result.Conformant)
}

func TestParseReviewResponseUnparsable(t *testing.T) {
	_, err := parseReviewResponse("I cannot review this submission right now.")
	require.Error(t, err)
	require.ErrorIs(t, err, errUnparsableReply)
	require.Contains(t, err.Error(), "I cannot review this submission")
}

func TestParseReviewResponseTruncatesPreview(t *testing.T) {
	raw := strings.Repeat("x", 500)
	_, err := parseReviewResponse(raw)
	require.Error(t, err)
	require.Less(t, len(err.Error()), 300)
}

func TestParseReviewResponsePreviewKeepsValidUTF8(t *testing.T) {
	_, err := parseReviewResponse(strings.Repeat("日", 300))
	require.Error(t, err)
	require.ErrorIs(t, err, errUnparsableReply)
	require.True(t, utf8.ValidString(err.Error()))
}
