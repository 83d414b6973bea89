package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/adapters/models"
	"codenerd/internal/denoise"
	"codenerd/internal/gate"
	"codenerd/internal/ledger"
	"codenerd/internal/syntax"
)

func newTestOrchestrator(t *testing.T, responses []string, maxRetries int) (*Orchestrator, *syntax.Engine) {
	t.Helper()
	engine := syntax.NewEngine()
	t.Cleanup(engine.Close)

	backbone := models.NewMockBackbone(responses...)
	driver := denoise.NewDriver(backbone, 1)
	g := gate.New(engine, 2*time.Second, 1*time.Second)

	opts := denoise.Options{Steps: 1, Schedule: denoise.Linear, BetaStart: 0.0001, BetaEnd: 0.02, GuidanceScale: 1.0}
	return New(engine, driver, g, nil, maxRetries, opts, 1), engine
}

func TestRunAcceptsValidSingleSpanRewrite(t *testing.T) {
	o, _ := newTestOrchestrator(t, []string{"def mock_function():\n    pass"}, 0)

	source := []byte("def add(a,b):\n    return a+b\n")
	req := Request{FilePath: "file.py", TargetNames: []string{"add"}, Instruction: "Rename parameters to x,y", Language: syntax.Python}

	led := ledger.New("rename add")
	patch, err := o.Run(context.Background(), req, source, led)
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, patch.FinalState)
	assert.Contains(t, string(patch.GeneratedSource), "mock_function")
	assert.Less(t, patch.RiskScore, 0.3)
	assert.Contains(t, patch.Diff, "file.py")
	require.Len(t, patch.Spans, 1)
	assert.Equal(t, "function_definition", patch.Spans[0].Category)
}

func TestRunTargetNotFoundIsHardError(t *testing.T) {
	o, _ := newTestOrchestrator(t, []string{"anything"}, 0)

	source := []byte("def add(a,b):\n    return a+b\n")
	req := Request{FilePath: "file.py", TargetNames: []string{"missing"}, Instruction: "x", Language: syntax.Python}

	led := ledger.New("missing target")
	patch, err := o.Run(context.Background(), req, source, led)
	require.NoError(t, err)
	assert.Equal(t, StateHardError, patch.FinalState)
	assert.False(t, patch.Applicable)
	assert.Empty(t, patch.Diff)
}

func TestRunSyntaxRejectThenAccept(t *testing.T) {
	o, _ := newTestOrchestrator(t, []string{"def x(: ", "def x():\n    pass"}, 1)

	source := []byte("def x():\n    pass\n")
	req := Request{FilePath: "file.py", TargetNames: []string{"x"}, Instruction: "fix", Language: syntax.Python}

	led := ledger.New("fix x")
	patch, err := o.Run(context.Background(), req, source, led)
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, patch.FinalState)
	assert.True(t, patch.Applicable)
}

func TestRunAllRetriesExhausted(t *testing.T) {
	o, _ := newTestOrchestrator(t, []string{"def x(:", "def x(:", "def x(:"}, 2)

	source := []byte("def x():\n    pass\n")
	req := Request{FilePath: "file.py", TargetNames: []string{"x"}, Instruction: "fix", Language: syntax.Python}

	led := ledger.New("fix x exhausted")
	patch, err := o.Run(context.Background(), req, source, led)
	require.NoError(t, err)
	assert.Equal(t, StateRejectedExhausted, patch.FinalState)
	assert.False(t, patch.Applicable)
	assert.NotEmpty(t, patch.Diagnostics)
}

func TestRunEmptySourceIsHardErrorWithEmptyDiff(t *testing.T) {
	o, _ := newTestOrchestrator(t, []string{"x"}, 0)
	req := Request{FilePath: "file.py", TargetNames: []string{"x"}, Instruction: "x", Language: syntax.Python}

	led := ledger.New("empty")
	patch, err := o.Run(context.Background(), req, []byte{}, led)
	require.NoError(t, err)
	assert.Equal(t, StateHardError, patch.FinalState)
	assert.False(t, patch.Applicable)
	assert.Empty(t, patch.Diff)
}

func TestRunBatchPreservesInputOrderAndPriorityCallOrder(t *testing.T) {
	dir := t.TempDir()
	paths := make([]string, 3)
	for i, name := range []string{"a.py", "b.py", "c.py"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("def f():\n    pass\n"), 0644))
		paths[i] = p
	}

	engine := syntax.NewEngine()
	t.Cleanup(engine.Close)
	mockBackbone := models.NewMockBackbone("def f():\n    return 1")
	driver := denoise.NewDriver(mockBackbone, 1)
	g := gate.New(engine, 2*time.Second, 1*time.Second)
	opts := denoise.Options{Steps: 1, Schedule: denoise.Linear, BetaStart: 0.0001, BetaEnd: 0.02, GuidanceScale: 1.0}
	o := New(engine, driver, g, nil, 0, opts, 1)

	requests := []Request{
		{FilePath: paths[0], TargetNames: []string{"f"}, Instruction: "1", Language: syntax.Python, Priority: 1},
		{FilePath: paths[1], TargetNames: []string{"f"}, Instruction: "2", Language: syntax.Python, Priority: 5},
		{FilePath: paths[2], TargetNames: []string{"f"}, Instruction: "3", Language: syntax.Python, Priority: 3},
	}

	artifactsDir := t.TempDir()
	patches, ledgers := RunBatch(context.Background(), o, requests, "batch test", artifactsDir, nil)

	require.Len(t, patches, 3)
	require.Len(t, ledgers, 3)
	for i, p := range patches {
		assert.Equal(t, StateAccepted, p.FinalState, "request %d should be accepted", i)
		assert.Contains(t, p.Diff, paths[i], "patch %d should belong to input %d", i, i)
	}

	// Priorities [1, 5, 3]: the backbone sees instructions "2", "3", "1".
	require.Len(t, mockBackbone.Calls, 3)
	for i, instruction := range []string{"2", "3", "1"} {
		assert.Contains(t, mockBackbone.Calls[i].UserPrompt, "Condition: "+instruction+"\n")
	}
}
