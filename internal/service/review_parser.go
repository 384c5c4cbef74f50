package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/devtrail/devtrail-api/internal/models"
)

// errUnparsableReply means no JSON object could be recovered from the
// generator's reply. Everything less severe is handled by defaulting.
var errUnparsableReply = errors.New("no JSON object found in generator reply")

const fallbackVerdict = "The generator did not provide a verdict for this submission."

// reviewResult is the fully-typed, bounded outcome of one generator reply.
type reviewResult struct {
	Analysis  models.ReviewAnalysis
	Questions []models.ReviewQuestion
	Coverage  models.ReviewCoverage
	// Conformant records whether the recovered JSON matched the output
	// schema as-is; non-conformant replies still produce a usable result.
	Conformant bool
}

// parseReviewResponse turns raw generator output into a reviewResult. Once a
// JSON object has been recovered this never fails: missing or invalid fields
// are defaulted, lists are bounded, enums fall back to documented defaults.
func parseReviewResponse(raw string) (reviewResult, error) {
	payload, err := recoverJSONObject(raw)
	if err != nil {
		return reviewResult{}, err
	}

	result := reviewResult{
		Analysis:  normalizeAnalysis(asObject(payload["analysis"])),
		Questions: normalizeQuestions(payload["questions"]),
		Coverage:  normalizeCoverage(asObject(payload["coverage"])),
	}

	if validationErr := compiledReviewSchema.Validate(payload); validationErr == nil {
		result.Conformant = true
	}

	return result, nil
}

// recoverJSONObject applies the recovery ladder: direct parse after trimming
// an optional markdown fence, then the first-{ to last-} substring, then
// give up with a diagnostic prefix of the raw text.
func recoverJSONObject(raw string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(raw)

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(stripCodeFence(trimmed)), &payload); err == nil {
		return payload, nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &payload); err == nil {
			return payload, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", errUnparsableReply, previewText(raw, 200))
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if newline := strings.Index(text, "\n"); newline >= 0 {
		// Drop the language tag line ("json" etc.).
		text = text[newline+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func previewText(raw string, limit int) string {
	text := strings.TrimSpace(raw)
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)
	if len(runes) > limit {
		text = string(runes[:limit])
	}
	return text
}

func normalizeAnalysis(payload map[string]interface{}) models.ReviewAnalysis {
	analysis := models.ReviewAnalysis{
		ShortVerdict: asString(payload["shortVerdict"]),
		Strengths:    asStringList(payload["strengths"], 10),
		Weaknesses:   asStringList(payload["weaknesses"], 10),
		Gaps:         asStringList(payload["gaps"], 10),
		RiskFlags:    asStringList(payload["riskFlags"], 10),
		Confidence:   asConfidence(payload["confidence"]),
	}

	if strings.TrimSpace(analysis.ShortVerdict) == "" {
		analysis.ShortVerdict = fallbackVerdict
	}
	return analysis
}

func normalizeQuestions(value interface{}) []models.ReviewQuestion {
	items, ok := value.([]interface{})
	if !ok {
		return []models.ReviewQuestion{}
	}

	questions := make([]models.ReviewQuestion, 0, models.MaxReviewQuestions)
	for _, item := range items {
		if len(questions) == models.MaxReviewQuestions {
			break
		}

		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		question := models.ReviewQuestion{
			Question:   asString(entry["question"]),
			Type:       asString(entry["type"]),
			Difficulty: asString(entry["difficulty"]),
			Rationale:  asString(entry["rationale"]),
			Source:     asString(entry["source"]),
		}

		if !models.ValidQuestionType(question.Type) {
			question.Type = defaultQuestionType
		}
		if !models.ValidQuestionDifficulty(question.Difficulty) {
			question.Difficulty = defaultQuestionDifficulty
		}
		if !models.ValidQuestionSource(question.Source) {
			question.Source = defaultQuestionSource
		}

		questions = append(questions, question)
	}
	return questions
}

func normalizeCoverage(payload map[string]interface{}) models.ReviewCoverage {
	return models.ReviewCoverage{
		SubmissionTextUsed: asBool(payload["submissionTextUsed"]),
		FileUsed:           asBool(payload["fileUsed"]),
		ModuleUsed:         asBool(payload["moduleUsed"]),
		TrailUsed:          asBool(payload["trailUsed"]),
		Notes:              asString(payload["notes"]),
	}
}

func asObject(value interface{}) map[string]interface{} {
	if object, ok := value.(map[string]interface{}); ok {
		return object
	}
	return map[string]interface{}{}
}

func asString(value interface{}) string {
	if text, ok := value.(string); ok {
		return text
	}
	return ""
}

func asStringList(value interface{}, limit int) []string {
	items, ok := value.([]interface{})
	if !ok {
		return []string{}
	}

	list := make([]string, 0, limit)
	for _, item := range items {
		if len(list) == limit {
			break
		}
		if text, ok := item.(string); ok {
			list = append(list, text)
		}
	}
	return list
}

// asConfidence coerces any JSON value to an integer in [0, 100], defaulting
// to 50 when it cannot be interpreted as a number.
func asConfidence(value interface{}) int {
	confidence := 50
	switch v := value.(type) {
	case float64:
		confidence = int(v)
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			confidence = int(parsed)
		}
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return confidence
}

func asBool(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	case float64:
		return v != 0
	}
	return false
}
