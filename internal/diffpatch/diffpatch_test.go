package diffpatch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnifiedNoChangeReturnsEmpty(t *testing.T) {
	src := []byte("a\nb\nc\n")
	assert.Empty(t, Unified("foo.py", src, src))
}

func TestUnifiedSingleLineChangeHasHeaders(t *testing.T) {
	original := []byte("def add(a, b):\n    return a + b\n")
	generated := []byte("def add(x, y):\n    return x + y\n")

	diff := Unified("foo.py", original, generated)
	assert.True(t, strings.HasPrefix(diff, "--- a/foo.py\n+++ b/foo.py\n"))
	assert.Contains(t, diff, "@@")
	assert.Contains(t, diff, "-def add(a, b):")
	assert.Contains(t, diff, "+def add(x, y):")
}

func TestUnifiedIncludesThreeLinesOfContext(t *testing.T) {
	original := []byte("1\n2\n3\n4\n5\nold\n7\n8\n9\n10\n")
	generated := []byte("1\n2\n3\n4\n5\nnew\n7\n8\n9\n10\n")

	diff := Unified("f.txt", original, generated)
	lines := strings.Split(diff, "\n")
	var contextBefore, contextAfter int
	inHunk := false
	for _, l := range lines {
		if strings.HasPrefix(l, "@@") {
			inHunk = true
			continue
		}
		if !inHunk {
			continue
		}
		if strings.HasPrefix(l, "-old") {
			break
		}
		if strings.HasPrefix(l, " ") {
			contextBefore++
		}
	}
	assert.Equal(t, 3, contextBefore)
	_ = contextAfter
}

func TestUnifiedEmptyOriginalAndGeneratedReturnsEmpty(t *testing.T) {
	assert.Empty(t, Unified("f.py", []byte{}, []byte{}))
}

func TestCountChangedLinesCountsAddsAndDeletes(t *testing.T) {
	original := []byte("a\nb\nc\n")
	generated := []byte("a\nx\ny\nc\n")
	assert.Equal(t, 3, CountChangedLines(original, generated))
}

func TestCountChangedLinesZeroWhenIdentical(t *testing.T) {
	src := []byte("a\nb\n")
	assert.Equal(t, 0, CountChangedLines(src, src))
}

func TestUnifiedSeparatesDistantHunks(t *testing.T) {
	var aLines, bLines []string
	for i := 0; i < 30; i++ {
		aLines = append(aLines, "line")
		bLines = append(bLines, "line")
	}
	aLines[2] = "changed-a-1"
	bLines[2] = "changed-b-1"
	aLines[27] = "changed-a-2"
	bLines[27] = "changed-b-2"

	original := []byte(strings.Join(aLines, "\n") + "\n")
	generated := []byte(strings.Join(bLines, "\n") + "\n")

	diff := Unified("f.txt", original, generated)
	assert.Equal(t, 2, strings.Count(diff, "@@ -"))
}
