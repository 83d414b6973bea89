package denoise

import "math"

// ScheduleKind selects one of the three noise schedules of spec.md §4.3.
type ScheduleKind string

const (
	Linear ScheduleKind = "linear"
	Cosine ScheduleKind = "cosine"
	Sqrt   ScheduleKind = "sqrt"
)

// Schedule precomputes the per-step noise level (beta_i) and the
// cumulative product of (1 - beta_i) up to and including each step, used
// to initialize and drive the reverse diffusion loop.
type Schedule struct {
	Betas           []float64
	AlphaCumProd    []float64
	Steps           int
}

// NewSchedule builds a fixed-cardinality schedule of N steps. The cosine
// variant follows the squared-cosine schedule capped at 0.999, as spec.md
// §4.3 requires, so the cumulative product never collapses to exactly
// zero.
func NewSchedule(steps int, kind ScheduleKind, betaStart, betaEnd float64) *Schedule {
	if steps <= 0 {
		steps = 1
	}
	betas := make([]float64, steps)

	switch kind {
	case Linear:
		for i := 0; i < steps; i++ {
			t := float64(i) / float64(maxInt(steps-1, 1))
			betas[i] = betaStart + t*(betaEnd-betaStart)
		}
	case Sqrt:
		for i := 0; i < steps; i++ {
			t := float64(i+1) / float64(steps)
			betas[i] = math.Min(1-math.Sqrt(1-t), 0.999)
		}
	case Cosine:
		fallthrough
	default:
		s := 0.008
		fCos := func(t float64) float64 {
			return math.Cos((t+s)/(1+s)*math.Pi/2) * math.Cos((t+s)/(1+s)*math.Pi/2)
		}
		f0 := fCos(0)
		prevAlphaBar := 1.0
		for i := 0; i < steps; i++ {
			t := float64(i+1) / float64(steps)
			alphaBar := fCos(t) / f0
			beta := 1 - alphaBar/prevAlphaBar
			if beta > 0.999 {
				beta = 0.999
			}
			if beta < 0 {
				beta = 0
			}
			betas[i] = beta
			prevAlphaBar = alphaBar
		}
	}

	alphaCumProd := make([]float64, steps)
	running := 1.0
	for i, b := range betas {
		running *= 1 - b
		alphaCumProd[i] = running
	}

	return &Schedule{Betas: betas, AlphaCumProd: alphaCumProd, Steps: steps}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
