// Package orchestrator implements C5, the Build Orchestrator: the
// retry state machine that composes C1-C4, emits a Patch with diff,
// risk, and provenance events. Grounded structurally on the teacher's
// internal/verification.TaskVerifier retry-with-corrective-action loop
// (verify, on failure construct a corrective condition, retry up to a
// bound, escalate).
package orchestrator

import (
	"context"
	"fmt"

	"codenerd/internal/adapters/graph"
	"codenerd/internal/denoise"
	"codenerd/internal/diffpatch"
	"codenerd/internal/gate"
	"codenerd/internal/ledger"
	"codenerd/internal/logging"
	"codenerd/internal/mask"
	"codenerd/internal/syntax"
)

// State names the state machine's current node, per spec.md §4.5.
type State string

const (
	StateMasking             State = "masking"
	StateDenoising           State = "denoising"
	StateValidatingSyntax    State = "validating_syntax"
	StateValidatingSemantics State = "validating_semantics"
	StateAccepted            State = "accepted"
	StateRejectedRetry       State = "rejected_retry"
	StateRejectedExhausted   State = "rejected_exhausted"
	StateHardError           State = "hard_error"
)

// Request is one refactor request fed into the orchestrator.
type Request struct {
	FilePath        string
	TargetNames     []string
	Instruction     string
	Language        syntax.Language
	Priority        int
	FallbackEnabled bool
}

// Patch is the final user-visible artifact of spec.md §3.
type Patch struct {
	OriginalSource  []byte
	GeneratedSource []byte
	Diff            string
	Spans           []mask.Span
	Applicable      bool
	RiskScore       float64
	FinalState      State
	Diagnostics     []syntax.Diagnostic
}

// Orchestrator owns one run's composition of C1-C4 plus the Ledger.
type Orchestrator struct {
	engine *syntax.Engine
	driver *denoise.Driver
	gate   *gate.Gate
	graph  *graph.Client

	maxRetries      int
	denoiseOpts     denoise.Options
	fallbackMaxPass int
}

// New constructs an Orchestrator from its already-built collaborators.
// graphClient is optional: a nil client disables context enrichment and
// the Condition is just the instruction plus retry diagnostics, per
// spec.md §6's graceful-degrade contract.
func New(engine *syntax.Engine, driver *denoise.Driver, g *gate.Gate, graphClient *graph.Client, maxRetries int, denoiseOpts denoise.Options, fallbackMaxPasses int) *Orchestrator {
	return &Orchestrator{
		engine:          engine,
		driver:          driver,
		gate:            g,
		graph:           graphClient,
		maxRetries:      maxRetries,
		denoiseOpts:     denoiseOpts,
		fallbackMaxPass: fallbackMaxPasses,
	}
}

// Run drives one Request end to end through the state machine and
// returns its Patch. It never returns a Go error for validation
// rejections or hard errors - those surface as Patch state, per
// spec.md §7; Run's error return is reserved for programmer/transport
// failures that the Ledger still needs recorded by the caller.
func (o *Orchestrator) Run(ctx context.Context, req Request, source []byte, led *ledger.Ledger) (Patch, error) {
	if len(source) == 0 {
		led.Error("empty source buffer")
		return Patch{FinalState: StateHardError, Applicable: false}, nil
	}

	state := StateMasking
	condition := req.Instruction
	if excerpt := o.buildContextExcerpt(ctx, req); excerpt != "" {
		condition = fmt.Sprintf("%s\n\n%s", condition, excerpt)
	}
	attempt := 0
	var maskedBuffer []byte
	var spans []mask.Span
	var diagnostics []syntax.Diagnostic
	var accepted []byte
	var pendingVerdict gate.Verdict

	for {
		switch state {
		case StateMasking:
			mb, sp, err := mask.Build(source, req.TargetNames, req.Language, o.engine)
			if err != nil {
				led.Error(fmt.Sprintf("mask build failed: %v", err))
				state = StateHardError
				continue
			}
			if len(sp) == 0 {
				led.Error(fmt.Sprintf("no matching constructs for names=%v", req.TargetNames))
				state = StateHardError
				continue
			}
			maskedBuffer, spans = mb, sp
			state = StateDenoising

		case StateDenoising:
			sample, err := o.denoiseAttempt(ctx, maskedBuffer, spans, condition, req, attempt, led)
			if err != nil {
				led.Error(fmt.Sprintf("denoise attempt %d failed: %v", attempt, err))
				diagnostics = nil
				state = o.nextAfterFailure(&attempt)
				continue
			}
			accepted = sample.Source
			state = StateValidatingSyntax

		case StateValidatingSyntax:
			verdict, err := o.gate.Validate(ctx, accepted, req.Language)
			if err != nil {
				led.Error(fmt.Sprintf("gate validate failed: %v", err))
				state = o.nextAfterFailure(&attempt)
				continue
			}
			led.SafetyCheck("syntactic", verdict.Kind != gate.VerdictSyntacticError, verdict.Summary)
			if verdict.Kind == gate.VerdictSyntacticError {
				diagnostics = verdict.Diagnostics
				state = o.retryOrExhaust(verdict.Summary, &condition, &attempt, led)
				continue
			}
			state = StateValidatingSemantics
			pendingVerdict = verdict

		case StateValidatingSemantics:
			verdict := pendingVerdict
			passed := verdict.Kind == gate.VerdictOK || verdict.Kind == gate.VerdictToolingUnavailable
			led.SafetyCheck("semantic", passed, verdict.Summary)
			if !passed {
				diagnostics = verdict.Diagnostics
				state = o.retryOrExhaust(verdict.Summary, &condition, &attempt, led)
				continue
			}
			diagnostics = nil
			state = StateAccepted

		case StateAccepted:
			diff := diffpatch.Unified(req.FilePath, source, accepted)
			risk := riskScore(false, len(diagnostics) > 0, diffpatch.CountChangedLines(source, accepted))
			patch := Patch{
				OriginalSource:  source,
				GeneratedSource: accepted,
				Diff:            diff,
				Spans:           spans,
				Applicable:      risk < 1.0 && len(diagnostics) == 0,
				RiskScore:       risk,
				FinalState:      StateAccepted,
			}
			logging.Orchestrator("accepted request for %s after %d attempt(s), risk=%.2f", req.FilePath, attempt+1, risk)
			return patch, nil

		case StateRejectedRetry:
			state = StateDenoising

		case StateRejectedExhausted:
			risk := riskScore(true, true, 0)
			return Patch{
				OriginalSource: source,
				Diagnostics:    diagnostics,
				Applicable:     false,
				RiskScore:      risk,
				FinalState:     StateRejectedExhausted,
			}, nil

		case StateHardError:
			return Patch{OriginalSource: source, Applicable: false, FinalState: StateHardError}, nil
		}
	}
}

// denoiseAttempt runs exactly one Denoising pass: the main diffusion
// loop, or - once fallbackMaxPass independent passes have been rejected
// - the autoregressive fallback, per spec.md §4.3's Design Note (kept
// as a distinct entry point, never folded into the step loop).
func (o *Orchestrator) denoiseAttempt(ctx context.Context, maskedBuffer []byte, spans []mask.Span, condition string, req Request, attempt int, led *ledger.Ledger) (denoise.Sample, error) {
	useFallback := req.FallbackEnabled && attempt >= o.fallbackMaxPass
	var sample denoise.Sample
	var err error
	if useFallback {
		sample, err = o.driver.RunFallback(ctx, maskedBuffer, spans, condition, o.denoiseOpts)
	} else {
		sample, err = o.driver.Run(ctx, maskedBuffer, spans, condition, o.denoiseOpts)
	}
	if err != nil {
		return denoise.Sample{}, err
	}
	led.ModelUse("denoise", sample.Backbone, "generation", 0, 0, sample.ElapsedMs)
	return sample, nil
}

// nextAfterFailure decides the next state when the denoising call
// itself fails (transport/programmer error), counting as a Stage-1
// failure per spec.md §7. It increments *attemptPtr exactly once when
// retrying, mirroring retryOrExhaust, so StateRejectedRetry's handler
// never has to increment on its callers' behalf.
func (o *Orchestrator) nextAfterFailure(attemptPtr *int) State {
	if *attemptPtr >= o.maxRetries {
		return StateRejectedExhausted
	}
	*attemptPtr++
	return StateRejectedRetry
}

// retryOrExhaust appends a diagnostic-suffixed Condition revision and
// returns to Denoising, or gives up, per spec.md §4.5's
// Rejected_Retry/Rejected_Exhausted transitions.
func (o *Orchestrator) retryOrExhaust(summary string, condition *string, attemptPtr *int, led *ledger.Ledger) State {
	if *attemptPtr >= o.maxRetries {
		return StateRejectedExhausted
	}
	*attemptPtr++
	*condition = fmt.Sprintf("%s\nIMPORTANT: Previous attempt had errors. Fix these issues: %s", *condition, summary)
	led.ConditionRevision(*attemptPtr, summary)
	return StateDenoising
}

// riskScore implements spec.md §4.5's deterministic risk function.
func riskScore(syntaxInvalid, validationErrorRemains bool, changedLines int) float64 {
	score := 0.0
	if syntaxInvalid {
		score += 0.5
	}
	if validationErrorRemains {
		score += 0.3
	}
	if changedLines > 100 {
		score += 0.2
	} else if changedLines > 50 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
