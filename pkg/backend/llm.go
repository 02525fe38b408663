package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/sidebar/internal/observability"
	"github.com/harun/sidebar/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// llmCaller wraps a Provider with retries, metrics and tracing. It is shared
// by the strategies that talk to a model.
type llmCaller struct {
	provider    Provider
	model       string
	temperature float64
	maxTokens   int
	maxRetries  int
	baseDelay   time.Duration
	logger      zerolog.Logger
}

func newLLMCaller(provider Provider, cfg Config, logger zerolog.Logger) *llmCaller {
	model := cfg.Model
	if model == "" {
		model = DefaultModel(provider.Provider())
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := cfg.RetryDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	return &llmCaller{
		provider:    provider,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  maxRetries,
		baseDelay:   baseDelay,
		logger:      logger,
	}
}

// call sends messages to the model and returns its non-empty text.
func (c *llmCaller) call(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"sidebar.backend",
		"backend.call",
		attribute.String("provider", c.provider.Provider()),
		attribute.String("model", c.model),
		attribute.Int("messages", len(messages)),
	)
	defer span.End()

	start := time.Now()
	text, err := c.callWithRetry(ctx, LLMRequest{
		Model:        c.model,
		Messages:     messages,
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
		SystemPrompt: systemPrompt,
	})
	observability.RecordBackendCall(c.provider.Provider(), time.Since(start), err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

// callWithRetry makes one attempt plus up to maxRetries retries of
// retryable errors, backing off 1x, 2x, 4x the base delay.
func (c *llmCaller) callWithRetry(ctx context.Context, request LLMRequest) (string, error) {
	logger := tracing.LoggerFromContext(ctx, c.logger)
	attempts := c.maxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		response, err := c.provider.Call(ctx, request)
		if err == nil {
			text := strings.TrimSpace(response.Content)
			if text == "" {
				return "", ErrEmptyResponse
			}
			if response.Usage != nil {
				logger.Debug().
					Int("input_tokens", response.Usage.InputTokens).
					Int("output_tokens", response.Usage.OutputTokens).
					Msg("Model call completed")
			}
			return text, nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return "", err
		}

		if attempt == attempts-1 {
			break
		}

		delay := c.baseDelay * time.Duration(1<<attempt)
		logger.Info().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	if c.maxRetries == 0 {
		return "", lastErr
	}
	return "", fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}
