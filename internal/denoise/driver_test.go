package denoise

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/adapters/models"
	"codenerd/internal/mask"
)

func testOpts() Options {
	return Options{
		Steps:         3,
		Schedule:      Cosine,
		BetaStart:     0.0001,
		BetaEnd:       0.02,
		GuidanceScale: 1.5,
	}
}

func TestRunSingleSpanReplacesToken(t *testing.T) {
	backbone := models.NewMockBackbone("def add(a, b):\n    return a + b")
	driver := NewDriver(backbone, 1)

	masked := []byte("[MASK]\n")
	spans := []mask.Span{{Start: 0, End: 6, Original: "def add(a, b):\n    pass", Category: "function_definition"}}

	sample, err := driver.Run(context.Background(), masked, spans, "add two numbers", testOpts())
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(sample.Source), mask.Token))
	assert.Contains(t, string(sample.Source), "return a + b")
	assert.Equal(t, "diffusion", sample.Backbone)
	assert.Equal(t, 3, sample.Steps)
}

func TestRunMultipleSpansSubstitutedInOrder(t *testing.T) {
	// testOpts runs three steps per span; the last step's response is the
	// span's prediction.
	backbone := models.NewMockBackbone("noise-1", "noise-2", "FIRST", "noise-3", "noise-4", "SECOND")
	driver := NewDriver(backbone, 2)

	masked := []byte("head [MASK] mid [MASK] tail")
	spans := []mask.Span{
		{Start: 5, End: 11, Original: "one"},
		{Start: 17, End: 23, Original: "two"},
	}

	sample, err := driver.Run(context.Background(), masked, spans, "condition", testOpts())
	require.NoError(t, err)
	assert.Equal(t, "head FIRST mid SECOND tail", string(sample.Source))
}

func TestRunWithNoMockResponsesYieldsEmptyPrediction(t *testing.T) {
	driver := NewDriver(models.NewMockBackbone(), 3)
	masked := []byte("[MASK]")
	spans := []mask.Span{{Start: 0, End: 6, Original: "x"}}

	_, err := driver.Run(context.Background(), masked, spans, "cond", Options{Steps: 1, Schedule: Linear})
	assert.NoError(t, err) // empty responses still produce an empty string, not an error
}

func TestRunFallbackUsesDistinctBackboneTag(t *testing.T) {
	backbone := models.NewMockBackbone("alpha---SPAN---beta")
	driver := NewDriver(backbone, 4)

	masked := []byte("[MASK] and [MASK]")
	spans := []mask.Span{
		{Start: 0, End: 6, Original: "a"},
		{Start: 11, End: 17, Original: "b"},
	}

	sample, err := driver.RunFallback(context.Background(), masked, spans, "fix it", testOpts())
	require.NoError(t, err)
	assert.Equal(t, "fallback", sample.Backbone)
	assert.Equal(t, "alpha and beta", string(sample.Source))
}

func TestRunFallbackMismatchedSpanCountFallsBackToWholeResponse(t *testing.T) {
	backbone := models.NewMockBackbone("single completion with no delimiter")
	driver := NewDriver(backbone, 5)

	masked := []byte("[MASK]-[MASK]")
	spans := []mask.Span{
		{Start: 0, End: 6, Original: "a"},
		{Start: 7, End: 13, Original: "b"},
	}

	sample, err := driver.RunFallback(context.Background(), masked, spans, "fix it", testOpts())
	require.NoError(t, err)
	assert.Equal(t, "single completion with no delimiter-single completion with no delimiter", string(sample.Source))
}

func TestNewScheduleProducesMonotonicCumulativeProduct(t *testing.T) {
	sched := NewSchedule(10, Cosine, 0.0001, 0.02)
	require.Len(t, sched.AlphaCumProd, 10)
	for i := 1; i < len(sched.AlphaCumProd); i++ {
		assert.LessOrEqual(t, sched.AlphaCumProd[i], sched.AlphaCumProd[i-1])
	}
}
