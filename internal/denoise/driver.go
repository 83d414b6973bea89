// Package denoise implements C3, the Denoising Driver: an iterative
// per-span refinement over masked regions against a remote diffusion
// backbone, with classifier-free-guidance mixing and an autoregressive
// fallback. Grounded on internal/embedding/genai.go's timed, wrapped
// client-call idiom, generalized from embeddings to a step loop.
package denoise

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"codenerd/internal/adapters/models"
	"codenerd/internal/logging"
	"codenerd/internal/mask"
)

// Options configures one Driver.Run call.
type Options struct {
	Steps             int
	Schedule          ScheduleKind
	BetaStart         float64
	BetaEnd           float64
	GuidanceScale     float64
	FallbackEnabled   bool
	FallbackMaxPasses int
	Timeout           time.Duration
}

// Sample is a full candidate generation attempt with its provenance
// metadata attached, forwarded to the Ledger by C5 (spec.md §4.3,
// "Timings and step accounting").
type Sample struct {
	Source        []byte
	Steps         int
	GuidanceScale float64
	Backbone      string // "diffusion" | "fallback"
	ElapsedMs     int64
}

// Driver orchestrates the per-span refinement loop against a backbone.
type Driver struct {
	backbone models.BackboneClient
	rng      *rand.Rand
}

// NewDriver constructs a Driver bound to one backbone client. rngSeed
// pins the initial-noise draw for reproducibility (the idempotent-mock
// property in spec.md §8.6 requires byte-identical output across runs
// with fixed inputs).
func NewDriver(backbone models.BackboneClient, rngSeed int64) *Driver {
	return &Driver{backbone: backbone, rng: rand.New(rand.NewSource(rngSeed))}
}

// Run executes the per-span denoising loop of spec.md §4.3 and returns a
// Candidate Source. Spans are processed independently, in order, and
// predictions are substituted in descending-start order so earlier
// offsets stay valid.
func (d *Driver) Run(ctx context.Context, maskedBuffer []byte, spans []mask.Span, condition string, opts Options) (Sample, error) {
	start := time.Now()
	timer := logging.StartTimer(logging.CategoryDenoise, "run")
	defer timer.Stop()

	sched := NewSchedule(opts.Steps, opts.Schedule, opts.BetaStart, opts.BetaEnd)

	predictions := make([]string, len(spans))
	for i, span := range spans {
		pred, err := d.denoiseSpan(ctx, maskedBuffer, span, condition, sched, opts)
		if err != nil {
			return Sample{}, fmt.Errorf("denoise span %d: %w", i, err)
		}
		predictions[i] = pred
	}

	candidate := substitute(maskedBuffer, spans, predictions)
	logging.Denoise("denoised %d spans in %d steps", len(spans), sched.Steps)

	return Sample{
		Source:        candidate,
		Steps:         sched.Steps,
		GuidanceScale: opts.GuidanceScale,
		Backbone:      "diffusion",
		ElapsedMs:     time.Since(start).Milliseconds(),
	}, nil
}

// denoiseSpan runs the reverse schedule (i = N-1 down to 0) for a single
// span, initializing from random vocabulary indices over the span's
// original length and calling the backbone once per step. The backbone
// call embeds classifier-free guidance as a single request carrying both
// the full condition and an empty condition tag (spec.md §4.3) - the
// mixing itself is the backbone's contract, so the driver only needs to
// pass GuidanceScale through.
func (d *Driver) denoiseSpan(ctx context.Context, maskedBuffer []byte, span mask.Span, condition string, sched *Schedule, opts Options) (string, error) {
	state := d.initNoise(span)

	for i := sched.Steps - 1; i >= 0; i-- {
		systemPrompt := fmt.Sprintf("You are a code-denoising step %d/%d (guidance=%.2f). Refine the masked region toward valid, instruction-following code.", sched.Steps-i, sched.Steps, opts.GuidanceScale)
		userPrompt := fmt.Sprintf("Condition: %s\nUnconditional condition: \nFull masked buffer:\n%s\nCurrent span state: %s\nSpan category: %s",
			condition, string(maskedBuffer), state, span.Category)

		resp, err := d.backbone.Generate(ctx, systemPrompt, userPrompt, models.GenerateOpts{Timeout: opts.Timeout})
		if err != nil {
			return "", err
		}
		state = resp.Content
	}
	return state, nil
}

// initNoise draws a random-looking seed string the same length class as
// the original substring; the concrete representation is
// implementation-defined per spec.md §3 ("Denoising State ... opaque").
func (d *Driver) initNoise(span mask.Span) string {
	n := len(span.Original)
	if n == 0 {
		n = 1
	}
	const vocab = "abcdefghijklmnopqrstuvwxyz_ "
	b := make([]byte, minInt(n, 64))
	for i := range b {
		b[i] = vocab[d.rng.Intn(len(vocab))]
	}
	return string(b)
}

// RunFallback issues a single-shot completion with no schedule, using a
// distinct fallback prompt template that embeds the instruction and the
// partially-masked buffer as "???" placeholders (spec.md §4.3). It is
// kept as a separate entry point - never folded into the step loop in Run
// - per the Design Note in spec.md §9.
func (d *Driver) RunFallback(ctx context.Context, maskedBuffer []byte, spans []mask.Span, instruction string, opts Options) (Sample, error) {
	start := time.Now()

	placeholdered := strings.ReplaceAll(string(maskedBuffer), mask.Token, "???")
	systemPrompt := "You are completing code with ??? placeholders. Replace each ??? with working code satisfying the instruction, in order, left to right."
	userPrompt := fmt.Sprintf("Instruction: %s\n\n%s", instruction, placeholdered)

	resp, err := d.backbone.Generate(ctx, systemPrompt, userPrompt, models.GenerateOpts{Timeout: opts.Timeout})
	if err != nil {
		return Sample{}, fmt.Errorf("fallback generate: %w", err)
	}

	predictions := splitFallbackResponse(resp.Content, len(spans))
	candidate := substitute(maskedBuffer, spans, predictions)

	logging.Denoise("fallback generated %d spans", len(spans))
	return Sample{
		Source:    candidate,
		Backbone:  "fallback",
		ElapsedMs: time.Since(start).Milliseconds(),
	}, nil
}

// splitFallbackResponse divides a single-shot fallback completion into
// one prediction per span. The backbone is expected to emit spans
// delimited by "---SPAN---"; if it doesn't (or emits the wrong count) the
// whole response is used for every span, which is always syntactically
// safe to attempt and lets Stage 1 of the Safety Gate reject it cleanly.
func splitFallbackResponse(content string, n int) []string {
	parts := strings.Split(content, "---SPAN---")
	if len(parts) != n {
		out := make([]string, n)
		for i := range out {
			out[i] = strings.TrimSpace(content)
		}
		return out
	}
	out := make([]string, n)
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

// substitute replaces each Mask Token in maskedBuffer with its
// corresponding prediction, in descending-start order (spec.md §3,
// Candidate Source).
func substitute(maskedBuffer []byte, spans []mask.Span, predictions []string) []byte {
	type indexed struct {
		pos  int
		pred string
	}
	occurrences := findTokenOccurrences(maskedBuffer, len(spans))
	items := make([]indexed, len(occurrences))
	for i, pos := range occurrences {
		items[i] = indexed{pos: pos, pred: predictions[i]}
	}
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].pos > items[j-1].pos; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}

	buf := append([]byte(nil), maskedBuffer...)
	for _, item := range items {
		buf = append(buf[:item.pos], append([]byte(item.pred), buf[item.pos+len(mask.Token):]...)...)
	}
	return buf
}

func findTokenOccurrences(buf []byte, expected int) []int {
	var out []int
	token := []byte(mask.Token)
	for i := 0; i+len(token) <= len(buf) && len(out) < expected; i++ {
		match := true
		for j := range token {
			if buf[i+j] != token[j] {
				match = false
				break
			}
		}
		if match {
			out = append(out, i)
			i += len(token) - 1
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
