// Package mask implements C2, the Mask Builder: given a source buffer and a
// set of target names, it excises the matching named constructs (located
// by C1) and replaces each with a single Mask Token, returning the masked
// buffer and the ordered list of Mask Spans that can later restitch the
// original source. Grounded on the teacher's PythonCodeParser element
// extraction (byte-range capture per node) combined with the descending-
// offset buffer surgery used by internal/tools/codedom/lines.go.
package mask

import (
	"context"

	"codenerd/internal/logging"
	"codenerd/internal/syntax"
)

// Token is the fixed literal inserted once per Mask Span.
const Token = "[MASK]"

// Point is a 0-indexed line/column position, matching tree-sitter's and
// spec.md's convention.
type Point struct {
	Line   int
	Column int
}

// Span is a half-open byte interval inside the original Source Buffer,
// plus the metadata needed to recover it: original substring, syntactic
// category, start/end points, and parent category (spec.md §3).
type Span struct {
	Start          int
	End            int
	Original       string
	Category       string
	ParentCategory string
	StartPoint     Point
	EndPoint       Point
}

// Build runs the five-step algorithm of spec.md §4.2. Requested names not
// found in the tree yield an empty span list and the untouched source -
// the caller (C5) treats that as a hard error. Names is deliberately not
// checked for duplicates here: C1 dedupes by node identity when two
// requested names resolve to the same node.
func Build(source []byte, names []string, lang syntax.Language, engine *syntax.Engine) ([]byte, []Span, error) {
	timer := logging.StartTimer(logging.CategoryMask, "build")
	defer timer.Stop()

	tree, err := engine.Parse(context.Background(), source, lang)
	if err != nil {
		return nil, nil, err
	}
	defer tree.Close()

	matches := syntax.FindNamedTopLevelConstructs(tree, source, names, lang)
	if len(matches) == 0 {
		logging.MaskDebug("no matches for names=%v lang=%s", names, lang)
		return source, nil, nil
	}

	spans := make([]Span, 0, len(matches))
	for _, m := range matches {
		spans = append(spans, Span{
			Start:          int(m.Node.StartByte()),
			End:            int(m.Node.EndByte()),
			Original:       string(source[m.Node.StartByte():m.Node.EndByte()]),
			Category:       m.Category,
			ParentCategory: m.ParentCategory,
			StartPoint:     Point{Line: int(m.Node.StartPoint().Row), Column: int(m.Node.StartPoint().Column)},
			EndPoint:       Point{Line: int(m.Node.EndPoint().Row), Column: int(m.Node.EndPoint().Column)},
		})
	}

	// Step 3: sort by descending start byte so we replace right-to-left
	// and earlier byte offsets stay valid as we mutate the buffer.
	descending := make([]Span, len(spans))
	copy(descending, spans)
	sortDescendingByStart(descending)

	buf := append([]byte(nil), source...)
	for _, s := range descending {
		buf = append(buf[:s.Start], append([]byte(Token), buf[s.End:]...)...)
	}

	// Step 5: return spans in ascending start-byte order (they were
	// already built in pre-order tree-walk order; re-sort defensively to
	// guarantee the invariant regardless of walk order).
	ascending := append([]Span(nil), spans...)
	sortAscendingByStart(ascending)

	logging.Mask("masked %d spans for names=%v lang=%s", len(ascending), names, lang)
	return buf, ascending, nil
}

func sortDescendingByStart(spans []Span) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].Start > spans[j-1].Start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
}

func sortAscendingByStart(spans []Span) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].Start < spans[j-1].Start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
}

// Restore reconstructs the original source from a masked buffer and its
// spans, used by the masking-fidelity property test (spec.md §8.1): walk
// the spans in ascending order, replacing each Mask Token occurrence with
// the span's original substring in turn.
func Restore(masked []byte, spans []Span) []byte {
	buf := masked
	for _, s := range spans {
		idx := indexOf(buf, []byte(Token))
		if idx < 0 {
			continue
		}
		out := make([]byte, 0, len(buf)-len(Token)+len(s.Original))
		out = append(out, buf[:idx]...)
		out = append(out, []byte(s.Original)...)
		out = append(out, buf[idx+len(Token):]...)
		buf = out
	}
	return buf
}

func indexOf(haystack, needle []byte) int {
	n, m := len(haystack), len(needle)
	if m == 0 || m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		match := true
		for j := 0; j < m; j++ {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
