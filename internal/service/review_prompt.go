package service

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/devtrail/devtrail-api/internal/models"
)

// reviewSystemPrompt frames the generator's role. The exact wording is not a
// contract; the required output shape is (see reviewOutputSchema).
const reviewSystemPrompt = "You are a senior software mentor reviewing a student's module submission " +
	"on a learning platform. Produce an honest, specific critique and a small set of probing " +
	"follow-up questions that test whether the student truly understands their own work. " +
	"Reply with a single JSON object and nothing else, matching exactly the schema given in the " +
	"user message. Do not wrap the JSON in markdown fences or commentary."

// noCommentPlaceholder is embedded when the student supplied no free text.
const noCommentPlaceholder = "No comment provided."

// limitedContextMarker tells the generator it must reason from the module
// requirements alone when the submission consists only of links.
const limitedContextMarker = "LIMITED CONTEXT: the student submitted only links. You cannot open links, " +
	"so do not speculate about their contents; evaluate against the module requirements instead."

// reviewOutputSchema is the single source of truth for the shape the
// generator must return. The prompt embeds it verbatim and the parser uses
// the compiled form to account for non-conformant replies.
const reviewOutputSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["status", "analysis", "questions", "coverage"],
  "properties": {
    "status": {"type": "string"},
    "analysis": {
      "type": "object",
      "required": ["shortVerdict", "strengths", "weaknesses", "gaps", "riskFlags", "confidence"],
      "properties": {
        "shortVerdict": {"type": "string"},
        "strengths": {"type": "array", "items": {"type": "string"}, "maxItems": 10},
        "weaknesses": {"type": "array", "items": {"type": "string"}, "maxItems": 10},
        "gaps": {"type": "array", "items": {"type": "string"}, "maxItems": 10},
        "riskFlags": {"type": "array", "items": {"type": "string"}, "maxItems": 10},
        "confidence": {"type": "integer", "minimum": 0, "maximum": 100}
      }
    },
    "questions": {
      "type": "array",
      "maxItems": 10,
      "items": {
        "type": "object",
        "required": ["question", "type", "difficulty", "rationale", "source"],
        "properties": {
          "question": {"type": "string"},
          "type": {"type": "string", "enum": ["knowledge", "application", "reflection", "verification"]},
          "difficulty": {"type": "string", "enum": ["easy", "medium", "hard"]},
          "rationale": {"type": "string"},
          "source": {"type": "string", "enum": ["submission", "file", "module", "trail"]}
        }
      }
    },
    "rejected_candidates": {"type": "array", "items": {"type": "string"}},
    "coverage": {
      "type": "object",
      "required": ["submissionTextUsed", "fileUsed", "moduleUsed", "trailUsed", "notes"],
      "properties": {
        "submissionTextUsed": {"type": "boolean"},
        "fileUsed": {"type": "boolean"},
        "moduleUsed": {"type": "boolean"},
        "trailUsed": {"type": "boolean"},
        "notes": {"type": "string"}
      }
    }
  }
}`

// compiledReviewSchema is shared by the prompt builder and the parser so the
// output contract lives in one place.
var compiledReviewSchema = jsonschema.MustCompileString("review_output.schema.json", reviewOutputSchema)

// buildReviewPrompt maps a collected submission context to the generator
// request body. Pure and deterministic: no I/O, no clock, no randomness.
func buildReviewPrompt(sctx SubmissionContext) string {
	builder := strings.Builder{}

	builder.WriteString("# Module\n")
	builder.WriteString(sctx.ModuleTitle)
	if sctx.ModuleType != "" {
		builder.WriteString(" (")
		builder.WriteString(sctx.ModuleType)
		builder.WriteString(")")
	}
	builder.WriteString("\n\n## Description\n")
	builder.WriteString(sctx.ModuleDescription)
	builder.WriteString("\n\n## Requirements\n")
	builder.WriteString(sctx.ModuleRequirements)
	builder.WriteString("\n\n## Theory Excerpt\n")
	builder.WriteString(sctx.ModuleContent)

	if sctx.TrailTitle != "" || sctx.TrailDescription != "" {
		builder.WriteString("\n\n# Trail\n")
		builder.WriteString(sctx.TrailTitle)
		builder.WriteString("\n")
		builder.WriteString(sctx.TrailDescription)
	}

	builder.WriteString("\n\n# Student Submission\n")
	if strings.TrimSpace(sctx.Comment) != "" {
		builder.WriteString(sctx.Comment)
	} else {
		builder.WriteString(noCommentPlaceholder)
	}

	links := submissionLinks(sctx)
	if len(links) > 0 {
		builder.WriteString("\n\n## Links\n")
		builder.WriteString(strings.Join(links, "\n"))
	}

	if strings.TrimSpace(sctx.Comment) == "" && len(links) > 0 {
		builder.WriteString("\n\n")
		builder.WriteString(limitedContextMarker)
	}

	if len(sctx.PreviousQuestions) > 0 {
		builder.WriteString("\n\n# Previously Asked Questions\n")
		builder.WriteString("The following questions were already asked in an earlier review. ")
		builder.WriteString("Do not repeat them or ask semantically equivalent variants:\n")
		for _, question := range sctx.PreviousQuestions {
			builder.WriteString("- ")
			builder.WriteString(question)
			builder.WriteString("\n")
		}
	}

	builder.WriteString("\n# Required Output\n")
	builder.WriteString("Return one JSON object conforming to this schema:\n")
	builder.WriteString(reviewOutputSchema)
	builder.WriteString("\nList question candidates you discarded as duplicates in rejected_candidates.\n")

	return builder.String()
}

func submissionLinks(sctx SubmissionContext) []string {
	links := make([]string, 0, 3)
	if sctx.FileURL != "" {
		links = append(links, "File: "+sctx.FileURL)
	}
	if sctx.GithubURL != "" {
		links = append(links, "GitHub: "+sctx.GithubURL)
	}
	if sctx.DeployURL != "" {
		links = append(links, "Deploy: "+sctx.DeployURL)
	}
	return links
}

// defaults applied when the generator returns unrecognised enum values.
const (
	defaultQuestionType       = models.QuestionTypeKnowledge
	defaultQuestionDifficulty = models.QuestionDifficultyMedium
	defaultQuestionSource     = models.QuestionSourceModule
)
