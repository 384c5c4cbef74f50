package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "devtrail",
		Subsystem: "ai",
		Name:      "generation_duration_seconds",
		Help:      "Duration of external generation requests",
	}, []string{"provider", "model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devtrail",
		Subsystem: "ai",
		Name:      "generation_failures_total",
		Help:      "Number of failed external generation requests",
	}, []string{"provider", "model"})
)

// AnthropicConfig defines configuration options for the Anthropic generator.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// AnthropicGenerator implements Generator against the Anthropic messages API.
type AnthropicGenerator struct {
	client *http.Client
	cfg    AnthropicConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewAnthropicGenerator builds a generator using the provided configuration.
func NewAnthropicGenerator(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = anthropicAPIURL
	}

	// An earlier iteration let this call block indefinitely; the client
	// timeout bounds it in addition to the caller's context deadline.
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &AnthropicGenerator{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		tracer: otel.Tracer("github.com/devtrail/devtrail-api/pkg/ai/anthropic"),
		logger: logger,
	}, nil
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
	Usage   anthropicUsage   `json:"usage"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Generate sends one messages request and returns the reply text. A non-2xx
// status or an empty text payload is a hard failure for the run.
func (g *AnthropicGenerator) Generate(parent context.Context, req GenerationRequest) (string, error) {
	ctx, span := g.tracer.Start(parent, "anthropic.generate", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
	))
	defer span.End()

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.cfg.MaxTokens
	}

	body := anthropicRequest{
		Model:     g.cfg.Model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.Prompt},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", g.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	start := time.Now()
	httpResp, err := g.client.Do(httpReq)
	duration := time.Since(start)
	aiDuration.WithLabelValues("anthropic", g.cfg.Model).Observe(duration.Seconds())
	if err != nil {
		return "", g.fail(span, fmt.Errorf("anthropic request: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", g.fail(span, fmt.Errorf("read anthropic response: %w", err))
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return "", g.fail(span, fmt.Errorf("anthropic api status %d: %s", httpResp.StatusCode, truncateBody(respBody)))
	}

	var result anthropicResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", g.fail(span, fmt.Errorf("decode anthropic response: %w", err))
	}

	var content strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	text := content.String()
	if strings.TrimSpace(text) == "" {
		return "", g.fail(span, fmt.Errorf("anthropic returned an empty reply"))
	}

	g.logger.Debug().
		Int("input_tokens", result.Usage.InputTokens).
		Int("output_tokens", result.Usage.OutputTokens).
		Dur("duration", duration).
		Msg("anthropic generation completed")

	return text, nil
}

func (g *AnthropicGenerator) fail(span trace.Span, err error) error {
	aiFailures.WithLabelValues("anthropic", g.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func truncateBody(body []byte) string {
	const limit = 300
	text := strings.TrimSpace(string(body))
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
