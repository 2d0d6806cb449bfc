package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "classroom",
		Subsystem: "ai",
		Name:      "insight_duration_seconds",
		Help:      "Duration of AI insight requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classroom",
		Subsystem: "ai",
		Name:      "insight_failures_total",
		Help:      "Number of AI insight failures",
	}, []string{"model"})
)

const maxHighlights = 5

// OpenAIConfig defines configuration options for the OpenAI narrator.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAINarrator implements Narrator against the OpenAI chat completion API.
type OpenAINarrator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAINarrator builds a new narrator using the provided configuration.
func NewOpenAINarrator(cfg OpenAIConfig) (*OpenAINarrator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 400
	}

	tracer := otel.Tracer("github.com/noah-isme/classroom-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(config)

	return &OpenAINarrator{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger.With().Str("component", "openai_narrator").Logger(),
	}, nil
}

// Summarize sends the aggregated statistics to OpenAI and parses the narrative.
func (n *OpenAINarrator) Summarize(parent context.Context, input InsightInput) (InsightResult, error) {
	ctx, span := n.tracer.Start(parent, "openai.summarize", trace.WithAttributes(
		attribute.String("model", n.cfg.Model),
		attribute.String("scope", input.Scope),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       n.cfg.Model,
		MaxTokens:   n.cfg.MaxTokens,
		Temperature: n.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: narratorSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: BuildPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := n.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(n.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return InsightResult{}, n.fail(span, fmt.Errorf("openai summarize: %w", err))
	}

	if len(resp.Choices) == 0 {
		return InsightResult{}, n.fail(span, fmt.Errorf("no choices returned from openai"))
	}

	result, err := ParseInsight(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		return InsightResult{}, n.fail(span, err)
	}
	result.Model = n.cfg.Model

	n.logger.Debug().Int("tokens", resp.Usage.TotalTokens).Msg("insight generated")
	return result, nil
}

func (n *OpenAINarrator) fail(span trace.Span, err error) error {
	aiFailures.WithLabelValues(n.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func narratorSystemPrompt() string {
	return "You summarise classroom learning statistics for teachers. Respond with a JSON object containing summary " +
		"(two or three sentences) and highlights (a short list of notable observations). Never invent numbers."
}

// BuildPrompt renders the statistics as a deterministic markdown document.
func BuildPrompt(input InsightInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Scope\n")
	builder.WriteString(input.Scope)
	builder.WriteString("\n\n## Period\n")
	builder.WriteString(input.Period)

	if len(input.Metrics) > 0 {
		builder.WriteString("\n\n## Metrics\n")
		keys := make([]string, 0, len(input.Metrics))
		for key := range input.Metrics {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			builder.WriteString("- ")
			builder.WriteString(key)
			builder.WriteString(": ")
			builder.WriteString(strconv.FormatFloat(input.Metrics[key], 'f', 2, 64))
			builder.WriteString("\n")
		}
	}

	names := make([]string, 0, len(input.Series))
	for name := range input.Series {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		builder.WriteString("\n## ")
		builder.WriteString(name)
		builder.WriteString("\n")
		for _, point := range input.Series[name] {
			builder.WriteString("- ")
			builder.WriteString(point.Label)
			builder.WriteString(": ")
			builder.WriteString(strconv.FormatFloat(point.Value, 'f', 2, 64))
			builder.WriteString("\n")
		}
	}

	if len(input.Notes) > 0 {
		builder.WriteString("\n## Notes\n")
		for _, note := range input.Notes {
			builder.WriteString("- ")
			builder.WriteString(note)
			builder.WriteString("\n")
		}
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

// ParseInsight decodes the model's JSON answer.
func ParseInsight(content string) (InsightResult, error) {
	var data InsightResult
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return InsightResult{}, fmt.Errorf("parse insight json: %w", err)
	}

	data.Summary = strings.TrimSpace(data.Summary)
	if data.Summary == "" {
		return InsightResult{}, fmt.Errorf("insight summary is empty")
	}

	highlights := make([]string, 0, len(data.Highlights))
	for _, highlight := range data.Highlights {
		if trimmed := strings.TrimSpace(highlight); trimmed != "" {
			highlights = append(highlights, trimmed)
		}
		if len(highlights) == maxHighlights {
			break
		}
	}
	data.Highlights = highlights
	return data, nil
}
