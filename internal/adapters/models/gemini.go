package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"codenerd/internal/logging"
)

// GeminiBackbone implements BackboneClient against Google's genai SDK,
// grounded on NewGenAIEngine/Embed in internal/embedding/genai.go:
// construct a client once, time every call, wrap errors with %w.
type GeminiBackbone struct {
	client *genai.Client
	model  string
}

// NewGeminiBackbone constructs a Gemini-backed backbone client.
func NewGeminiBackbone(ctx context.Context, apiKey, model string) (*GeminiBackbone, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini API key is required", ErrAuthFailed)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiBackbone{client: client, model: model}, nil
}

// Generate issues one chat-completion-style request, retrying failures
// with exponential backoff (factor 2, base 1s, up to 3 retries),
// mirroring internal/perception/client.go's 429-retry loop. Only an
// error wrapping ErrAuthFailed stops the loop early; errors returned by
// the genai client do not wrap it, so every GenerateContent error,
// authentication errors included, is retried.
func (g *GeminiBackbone) Generate(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOpts) (Response, error) {
	timer := logging.StartTimer(logging.CategoryDenoise, "gemini.generate")
	defer timer.Stop()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	const maxRetries = 3
	var lastErr error
	start := time.Now()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(attempt-1)) * time.Second):
			case <-ctx.Done():
				return Response{}, ctx.Err()
			}
		}

		contents := []*genai.Content{
			genai.NewContentFromText(userPrompt, genai.RoleUser),
		}
		cfg := &genai.GenerateContentConfig{
			Temperature:      floatPtr(float32(opts.Temperature)),
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		}
		if opts.MaxTokens > 0 {
			cfg.MaxOutputTokens = int32(opts.MaxTokens)
		}

		result, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
		if err != nil {
			if errors.Is(err, ErrAuthFailed) {
				return Response{}, err
			}
			lastErr = fmt.Errorf("%w: %v", ErrTransient, err)
			logging.Get(logging.CategoryDenoise).Warn("gemini generate attempt %d failed: %v", attempt, err)
			continue
		}

		text := result.Text()
		return Response{
			Content:      text,
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
			FinishReason: finishReasonOf(result),
			ElapsedMs:    time.Since(start).Milliseconds(),
		}, nil
	}

	return Response{}, fmt.Errorf("gemini generate exhausted retries: %w", lastErr)
}

func finishReasonOf(result *genai.GenerateContentResponse) string {
	if len(result.Candidates) == 0 {
		return "unknown"
	}
	return string(result.Candidates[0].FinishReason)
}

func floatPtr(f float32) *float32 { return &f }
