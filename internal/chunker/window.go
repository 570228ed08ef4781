package chunker

import "strings"

// WindowSplitter is the universal fallback for files without a grammar.
// It packs whole lines into windows of roughly targetBytes, carrying
// overlapBytes worth of trailing lines into the next window so context that
// straddles a cut is not lost.
type WindowSplitter struct {
	targetBytes  int
	overlapBytes int
}

// NewWindowSplitter creates a splitter with the default window geometry.
func NewWindowSplitter() *WindowSplitter {
	return &WindowSplitter{targetBytes: 1500, overlapBytes: 200}
}

// Split divides src into ordered line-aligned windows. Blank-only regions
// between windows are skipped; spans always describe real source lines.
func (w *WindowSplitter) Split(src []byte) []Chunk {
	lines := strings.Split(string(src), "\n")

	var chunks []Chunk
	i := 0
	for i < len(lines) {
		// Skip leading blank lines so spans start on content.
		for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
			i++
		}
		if i >= len(lines) {
			break
		}

		start := i
		size := 0
		for i < len(lines) {
			lineSize := len(lines[i]) + 1
			if size > 0 && size+lineSize > w.targetBytes {
				break
			}
			size += lineSize
			i++
		}
		end := i // exclusive

		chunks = append(chunks, Chunk{
			Kind:      "window",
			StartLine: start + 1,
			EndLine:   end,
			Text:      strings.Join(lines[start:end], "\n"),
		})

		if end >= len(lines) {
			break
		}

		// Back up far enough to carry overlapBytes of context, but always
		// make forward progress.
		back := 0
		overlap := 0
		for j := end - 1; j > start && overlap < w.overlapBytes; j-- {
			overlap += len(lines[j]) + 1
			back++
		}
		if end-back <= start {
			back = 0
		}
		i = end - back
	}
	return chunks
}
