package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowSplitSmallInput(t *testing.T) {
	src := []byte("line one\nline two\nline three")
	chunks := NewWindowSplitter().Split(src)

	require.Len(t, chunks, 1)
	assert.Equal(t, "window", chunks[0].Kind)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
	assert.Equal(t, "line one\nline two\nline three", chunks[0].Text)
}

func TestWindowSplitSkipsLeadingBlanks(t *testing.T) {
	src := []byte("\n\n\nfirst real line\n")
	chunks := NewWindowSplitter().Split(src)

	require.Len(t, chunks, 1)
	assert.Equal(t, 4, chunks[0].StartLine)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "first real line"))
}

func TestWindowSplitLargeInputOverlaps(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("a line that is long enough to fill the window quickly padpadpad\n")
	}
	chunks := NewWindowSplitter().Split([]byte(b.String()))

	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.LessOrEqual(t, cur.StartLine, prev.EndLine,
			"window %d should overlap its predecessor", i)
		assert.Greater(t, cur.StartLine, prev.StartLine,
			"window %d must make forward progress", i)
		assert.GreaterOrEqual(t, cur.EndLine, cur.StartLine)
	}
}

func TestWindowSplitLongSingleLine(t *testing.T) {
	// A single line larger than the target still produces one window.
	src := []byte(strings.Repeat("x", 5000))
	chunks := NewWindowSplitter().Split(src)

	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
}
