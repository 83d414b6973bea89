package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/syntax"
)

func newTestGate(t *testing.T) (*Gate, *syntax.Engine) {
	t.Helper()
	engine := syntax.NewEngine()
	t.Cleanup(engine.Close)
	return New(engine, 5*time.Second, 2*time.Second), engine
}

func TestValidateAcceptsWellFormedPython(t *testing.T) {
	g, _ := newTestGate(t)
	src := []byte("def add(a, b):\n    return a + b\n")

	verdict, err := g.Validate(context.Background(), src, syntax.Python)
	require.NoError(t, err)
	assert.Contains(t, []VerdictKind{VerdictOK, VerdictToolingUnavailable, VerdictSemanticError}, verdict.Kind)
}

func TestValidateRejectsMalformedPythonAtStageOne(t *testing.T) {
	g, _ := newTestGate(t)
	src := []byte("def add(a, b:\n    return a +\n")

	verdict, err := g.Validate(context.Background(), src, syntax.Python)
	require.NoError(t, err)
	assert.Equal(t, VerdictSyntacticError, verdict.Kind)
	assert.NotEmpty(t, verdict.Diagnostics)
	assert.NotEmpty(t, verdict.Summary)
}

func TestValidateUnsupportedLanguageReturnsToolingUnavailableAfterParse(t *testing.T) {
	g, _ := newTestGate(t)
	src := []byte("function add(a, b) { return a + b; }")

	verdict, err := g.Validate(context.Background(), src, syntax.JavaScript)
	require.NoError(t, err)
	assert.Equal(t, VerdictToolingUnavailable, verdict.Kind)
}

func TestPickAvailableCheckerReturnsFalseWhenNoneResolve(t *testing.T) {
	g, _ := newTestGate(t)
	_, found := g.pickAvailableChecker([]Checker{
		{Name: "nonexistent-checker-1", Binary: "nonexistent-checker-1-binary"},
		{Name: "nonexistent-checker-2", Binary: "nonexistent-checker-2-binary"},
	})
	assert.False(t, found)
}

func TestSummarizeJoinsMultipleDiagnostics(t *testing.T) {
	diags := []syntax.Diagnostic{
		{Line: 0, Message: "first"},
		{Line: 4, Message: "second"},
	}
	summary := summarize(diags)
	assert.Equal(t, "line 1: first; line 5: second", summary)
}

func TestParseMypyOutputExtractsErrorsOnly(t *testing.T) {
	stdout := "foo.py:3:5: error: Incompatible return value type\nfoo.py:4: note: See docs\n"
	diags := parseMypyOutput(stdout, "", "foo.py")
	require.Len(t, diags, 1)
	assert.Equal(t, 2, diags[0].Line)
	assert.Equal(t, 4, diags[0].Column)
}

func TestParseTscOutputExtractsLineAndColumn(t *testing.T) {
	stdout := "foo.ts(10,3): error TS2322: Type 'string' is not assignable to type 'number'.\n"
	diags := parseTscOutput(stdout, "", "foo.ts")
	require.Len(t, diags, 1)
	assert.Equal(t, 9, diags[0].Line)
	assert.Equal(t, 2, diags[0].Column)
}

func TestParsePyrightOutputFiltersBySeverityAndFile(t *testing.T) {
	stdout := `{"generalDiagnostics":[
		{"file":"foo.py","severity":"error","message":"bad type","range":{"start":{"line":2,"character":4}}},
		{"file":"foo.py","severity":"warning","message":"unused import","range":{"start":{"line":0,"character":0}}}
	]}`
	diags := parsePyrightOutput(stdout, "", "foo.py")
	require.Len(t, diags, 1)
	assert.Equal(t, "bad type", diags[0].Message)
}
