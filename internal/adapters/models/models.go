// Package models defines the polymorphic remote-model capability consumed
// by C3's Denoising Driver and by the planner/compressor collaborators
// described in spec.md §6 and §9: a tagged set of provider variants behind
// one Generate(system, user) capability, no runtime reflection. Grounded
// on internal/embedding/genai.go's client-construction/timed-call idiom
// and internal/perception/client.go's retry-with-backoff loop.
package models

import (
	"context"
	"errors"
	"time"
)

// Response is the shape every provider variant returns, per spec.md §9.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
	FinishReason string
	ElapsedMs    int64
	Cost         float64
}

// GenerateOpts configures one call to a backbone.
type GenerateOpts struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// BackboneClient is the capability consumed by C3 (the diffusion
// backbone) and by the Planner/Compressor collaborators described in
// spec.md §6 - they share the same request/response shape.
type BackboneClient interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOpts) (Response, error)
}

// ErrAuthFailed is non-retryable per spec.md §5's backoff policy.
var ErrAuthFailed = errors.New("authentication failed")

// ErrTransient marks a transport error eligible for the adapter's
// exponential backoff, distinct from C5's semantic-retry budget.
var ErrTransient = errors.New("transient transport error")
