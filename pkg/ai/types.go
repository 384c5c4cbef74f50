package ai

import "context"

// GenerationRequest carries one prompt for the external text generator.
type GenerationRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Generator is a single request/response call to a text-generation service.
// Implementations return the raw reply text; decoding it is the caller's
// concern. No retries happen at this layer.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
