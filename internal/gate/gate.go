// Package gate implements C4, the Safety Gate: a two-stage validator
// that re-parses a Candidate Source syntactically (via C1) and then,
// when tooling allows, semantically through an external type-checker
// subprocess. Grounded on the teacher's bounded-timeout subprocess
// invocation style in internal/tactile (exec.CommandContext with
// stdout/stderr capture).
package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"codenerd/internal/logging"
	"codenerd/internal/syntax"
)

// VerdictKind is the sum type of spec.md §4.4's Validation Verdict.
type VerdictKind string

const (
	VerdictOK                 VerdictKind = "ok"
	VerdictSyntacticError      VerdictKind = "syntactic_error"
	VerdictSemanticError       VerdictKind = "semantic_error"
	VerdictToolingUnavailable  VerdictKind = "tooling_unavailable"
)

// Verdict is the result of running both gate stages against one
// Candidate Source.
type Verdict struct {
	Kind          VerdictKind
	Diagnostics   []syntax.Diagnostic
	Summary       string // compact human-readable diagnostic for the retry condition
	ParseMs       int64
	TypeCheckMs   int64
	CheckerUsed   string
}

// Checker describes one external type-checker candidate in preference
// order for a language.
type Checker struct {
	Name        string
	Binary      string
	BuildArgs   func(filePath string) []string
	ParseOutput func(stdout, stderr string, filePath string) []syntax.Diagnostic
}

// Gate runs both validation stages.
type Gate struct {
	engine               *syntax.Engine
	checkersByLanguage   map[syntax.Language][]Checker
	typeCheckTimeout     time.Duration
	versionProbeTimeout  time.Duration
}

// New constructs a Gate bound to a syntax engine and the default
// checker preference lists (pyright then mypy for Python, tsc for
// TypeScript) per spec.md §4.4.
func New(engine *syntax.Engine, typeCheckTimeout, versionProbeTimeout time.Duration) *Gate {
	return &Gate{
		engine:              engine,
		checkersByLanguage:  defaultCheckers(),
		typeCheckTimeout:    typeCheckTimeout,
		versionProbeTimeout: versionProbeTimeout,
	}
}

func defaultCheckers() map[syntax.Language][]Checker {
	return map[syntax.Language][]Checker{
		syntax.Python: {
			{Name: "pyright", Binary: "pyright", BuildArgs: func(p string) []string { return []string{"--outputjson", p} }, ParseOutput: parsePyrightOutput},
			{Name: "mypy", Binary: "mypy", BuildArgs: func(p string) []string { return []string{"--no-color-output", p} }, ParseOutput: parseMypyOutput},
		},
		syntax.TypeScript: {
			{Name: "tsc", Binary: "tsc", BuildArgs: func(p string) []string { return []string{"--noEmit", "--pretty", "false", p} }, ParseOutput: parseTscOutput},
		},
	}
}

// Validate runs Stage 1 then, conditionally, Stage 2 against one
// candidate source buffer.
func (g *Gate) Validate(ctx context.Context, source []byte, lang syntax.Language) (Verdict, error) {
	timer := logging.StartTimer(logging.CategoryGate, "validate")
	defer timer.Stop()

	parseStart := time.Now()
	tree, err := g.engine.Parse(ctx, source, lang)
	if err != nil {
		return Verdict{}, fmt.Errorf("stage 1 parse: %w", err)
	}
	defer tree.Close()
	parseMs := time.Since(parseStart).Milliseconds()

	if hasErrors, diags := g.engine.HasErrors(tree); hasErrors {
		logging.GateDebug("stage 1 rejected: %d diagnostics", len(diags))
		return Verdict{
			Kind:        VerdictSyntacticError,
			Diagnostics: diags,
			Summary:     summarize(diags),
			ParseMs:     parseMs,
		}, nil
	}

	checkers := g.checkersByLanguage[lang]
	if len(checkers) == 0 {
		logging.Gate("no type checker configured for %s, conditional accept", lang)
		return Verdict{Kind: VerdictToolingUnavailable, ParseMs: parseMs}, nil
	}

	chosen, found := g.pickAvailableChecker(checkers)
	if !found {
		logging.Gate("no type checker binary found in PATH for %s, conditional accept", lang)
		return Verdict{Kind: VerdictToolingUnavailable, ParseMs: parseMs}, nil
	}

	diags, elapsedMs, err := g.runChecker(ctx, chosen, source, lang)
	if err != nil {
		return Verdict{}, fmt.Errorf("stage 2 %s: %w", chosen.Name, err)
	}
	if len(diags) > 0 {
		logging.GateDebug("stage 2 (%s) rejected: %d diagnostics", chosen.Name, len(diags))
		return Verdict{
			Kind:        VerdictSemanticError,
			Diagnostics: diags,
			Summary:     summarize(diags),
			ParseMs:     parseMs,
			TypeCheckMs: elapsedMs,
			CheckerUsed: chosen.Name,
		}, nil
	}

	return Verdict{Kind: VerdictOK, ParseMs: parseMs, TypeCheckMs: elapsedMs, CheckerUsed: chosen.Name}, nil
}

// pickAvailableChecker returns the first checker in preference order
// whose binary resolves via exec.LookPath.
func (g *Gate) pickAvailableChecker(checkers []Checker) (Checker, bool) {
	for _, c := range checkers {
		if _, err := exec.LookPath(c.Binary); err == nil {
			return c, true
		}
	}
	return Checker{}, false
}

// runChecker writes the candidate to a temp file, invokes the checker
// with a bounded context timeout, and parses its combined output.
func (g *Gate) runChecker(ctx context.Context, checker Checker, source []byte, lang syntax.Language) ([]syntax.Diagnostic, int64, error) {
	ext := extensionFor(lang)
	tmpFile, err := os.CreateTemp("", "candidate-*"+ext)
	if err != nil {
		return nil, 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(source); err != nil {
		tmpFile.Close()
		return nil, 0, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, 0, fmt.Errorf("close temp file: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, g.typeCheckTimeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(checkCtx, checker.Binary, checker.BuildArgs(tmpPath)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	elapsedMs := time.Since(start).Milliseconds()

	if checkCtx.Err() != nil {
		return nil, elapsedMs, fmt.Errorf("%s timed out after %s: %w", checker.Name, g.typeCheckTimeout, checkCtx.Err())
	}

	diags := checker.ParseOutput(stdout.String(), stderr.String(), tmpPath)
	_ = runErr // non-zero exit is expected when diagnostics are present
	return diags, elapsedMs, nil
}

func extensionFor(lang syntax.Language) string {
	switch lang {
	case syntax.Python:
		return ".py"
	case syntax.TypeScript:
		return ".ts"
	case syntax.JavaScript:
		return ".js"
	default:
		return ".txt"
	}
}

func summarize(diags []syntax.Diagnostic) string {
	var sb strings.Builder
	for i, d := range diags {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("line %d: %s", d.Line+1, d.Message))
	}
	return sb.String()
}

// mypyLineRe matches mypy's "path:line:col: severity: message" format.
var mypyLineRe = regexp.MustCompile(`^(.+?):(\d+):(?:(\d+):)?\s*(error|warning|note):\s*(.+)$`)

func parseMypyOutput(stdout, _ string, filePath string) []syntax.Diagnostic {
	var diags []syntax.Diagnostic
	for _, line := range strings.Split(stdout, "\n") {
		if !strings.Contains(line, filePath) {
			continue
		}
		m := mypyLineRe.FindStringSubmatch(line)
		if m == nil || m[4] != "error" {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col := 0
		if m[3] != "" {
			col, _ = strconv.Atoi(m[3])
			col--
		}
		diags = append(diags, syntax.Diagnostic{Line: lineNo - 1, Column: col, Message: m[5], Severity: "error"})
	}
	return diags
}

// tscLineRe matches tsc's "path(line,col): error TSxxxx: message" format.
var tscLineRe = regexp.MustCompile(`^(.+)\((\d+),(\d+)\):\s*error\s+TS\d+:\s*(.+)$`)

func parseTscOutput(stdout, _ string, filePath string) []syntax.Diagnostic {
	var diags []syntax.Diagnostic
	for _, line := range strings.Split(stdout, "\n") {
		m := tscLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		diags = append(diags, syntax.Diagnostic{Line: lineNo - 1, Column: col - 1, Message: m[4], Severity: "error"})
	}
	return diags
}

// pyrightOutput mirrors pyright's --outputjson schema, trimmed to the
// fields this gate needs.
type pyrightOutput struct {
	GeneralDiagnostics []struct {
		File     string `json:"file"`
		Severity string `json:"severity"`
		Message  string `json:"message"`
		Range    struct {
			Start struct {
				Line      int `json:"line"`
				Character int `json:"character"`
			} `json:"start"`
		} `json:"range"`
	} `json:"generalDiagnostics"`
}

func parsePyrightOutput(stdout, _ string, filePath string) []syntax.Diagnostic {
	var parsed pyrightOutput
	if err := json.Unmarshal([]byte(stdout), &parsed); err != nil {
		return nil
	}
	var diags []syntax.Diagnostic
	for _, d := range parsed.GeneralDiagnostics {
		if d.Severity != "error" {
			continue
		}
		if d.File != "" && filepath.Clean(d.File) != filepath.Clean(filePath) {
			continue
		}
		diags = append(diags, syntax.Diagnostic{
			Line:     d.Range.Start.Line,
			Column:   d.Range.Start.Character,
			Message:  d.Message,
			Severity: "error",
		})
	}
	return diags
}
