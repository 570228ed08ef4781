// Package chunker splits source files into semantically coherent chunks.
//
// Files with a registered tree-sitter grammar are split at structural
// boundaries (functions, classes, types). Everything else goes through a
// line-window fallback splitter. Chunk text is always the exact byte span
// of the original file, so spans remain the source of truth.
package chunker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	sitter "github.com/smacker/go-tree-sitter"
)

const (
	// maxChunkBytes bounds a single chunk; oversized structural units are
	// split into ordered sub-chunks.
	maxChunkBytes = 8192
	// minChunkBytes is the threshold below which a trailing chunk is merged
	// into its predecessor.
	minChunkBytes = 48
)

// idNamespace seeds deterministic UUIDv5 chunk identifiers.
var idNamespace = uuid.MustParse("8a4be1f6-93b2-4d27-a49c-52c1f15c9d10")

// Chunk is one embeddable unit extracted from a source file.
type Chunk struct {
	// Ordinal is the chunk's position within its file, starting at 0.
	Ordinal   int
	Name      string
	Kind      string
	StartLine int
	EndLine   int
	// Text is the exact source text covered by [StartLine, EndLine].
	Text string
	// Fingerprint is the sha256 hex digest of Text.
	Fingerprint string
}

// ID derives the stable chunk identifier for a repository, file path, and
// ordinal. Re-chunking unchanged content reproduces identical identifiers.
func ID(repoID, relPath string, ordinal int) string {
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%s:%s:%d", repoID, relPath, ordinal))).String()
}

// Fingerprint hashes content for change detection.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Chunker splits files structurally where a grammar exists, by window
// otherwise.
type Chunker struct {
	registry *Registry
	window   *WindowSplitter
}

// New creates a chunker backed by the given registry.
func New(r *Registry) *Chunker {
	return &Chunker{registry: r, window: NewWindowSplitter()}
}

// Chunk splits src into an ordered sequence of chunks. Empty or blank files
// produce an empty sequence. Structural parse failures fall back to window
// splitting rather than failing the file.
func (c *Chunker) Chunk(path string, src []byte) ([]Chunk, error) {
	if len(strings.TrimSpace(string(src))) == 0 {
		return nil, nil
	}

	var chunks []Chunk
	if spec, _ := c.registry.Lookup(path); spec != nil {
		var err error
		chunks, err = c.structural(spec, src)
		if err != nil {
			chunks = nil // grammar rejected the file; fall through
		}
		if chunks != nil {
			chunks = c.coverGaps(chunks, src)
		}
	}
	if chunks == nil {
		chunks = c.window.Split(src)
	}

	chunks = mergeSmall(chunks, src)
	for i := range chunks {
		chunks[i].Ordinal = i
		chunks[i].Fingerprint = Fingerprint([]byte(chunks[i].Text))
	}
	return chunks, nil
}

// structural parses src with the language grammar and extracts one chunk
// per captured definition.
func (c *Chunker) structural(spec *LanguageSpec, src []byte) ([]Chunk, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(spec.Language)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	q, err := sitter.NewQuery([]byte(spec.Query), spec.Language)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var captures []capture
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var chunkNode *sitter.Node
		var nameStr string
		for _, cap := range m.Captures {
			switch q.CaptureNameForId(cap.Index) {
			case "chunk":
				chunkNode = cap.Node
			case "name":
				nameStr = cap.Node.Content(src)
			}
		}
		if chunkNode == nil {
			continue
		}
		captures = append(captures, capture{
			name:      nameStr,
			kind:      chunkNode.Type(),
			startLine: int(chunkNode.StartPoint().Row) + 1,
			endLine:   int(chunkNode.EndPoint().Row) + 1,
			startByte: chunkNode.StartByte(),
			endByte:   chunkNode.EndByte(),
		})
	}
	if len(captures) == 0 {
		return nil, nil
	}

	captures = dedup(captures)

	lines := strings.Split(string(src), "\n")
	var chunks []Chunk
	for _, cap := range captures {
		text := spanText(lines, cap.startLine, cap.endLine)
		if len(text) > maxChunkBytes {
			chunks = append(chunks, splitOversized(lines, cap.name, cap.kind, cap.startLine, cap.endLine)...)
		} else {
			chunks = append(chunks, Chunk{
				Name:      cap.name,
				Kind:      cap.kind,
				StartLine: cap.startLine,
				EndLine:   cap.endLine,
				Text:      text,
			})
		}
	}
	return chunks, nil
}

// dedup removes captures fully contained within a larger capture, keeping
// the outer node.
func dedup(caps []capture) []capture {
	if len(caps) <= 1 {
		return caps
	}
	sort.Slice(caps, func(i, j int) bool {
		if caps[i].startByte != caps[j].startByte {
			return caps[i].startByte < caps[j].startByte
		}
		return (caps[i].endByte - caps[i].startByte) > (caps[j].endByte - caps[j].startByte)
	})

	var result []capture
	var lastEnd uint32
	for _, c := range caps {
		if c.startByte >= lastEnd || lastEnd == 0 {
			result = append(result, c)
			if c.endByte > lastEnd {
				lastEnd = c.endByte
			}
		}
	}
	return result
}

// spanText reconstructs the exact text of a 1-indexed inclusive line span.
func spanText(lines []string, startLine, endLine int) string {
	start := startLine - 1
	if start < 0 {
		start = 0
	}
	end := endLine
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start:end], "\n")
}

// splitOversized splits a structural unit that exceeds maxChunkBytes into
// ordered sub-chunks at line boundaries, with overlap to preserve context
// across the cuts.
func splitOversized(lines []string, name, kind string, startLine, endLine int) []Chunk {
	const windowLines = 80
	const overlapLines = 10

	var chunks []Chunk
	for i := startLine; i <= endLine; {
		end := i + windowLines - 1
		if end > endLine {
			end = endLine
		}
		chunks = append(chunks, Chunk{
			Name:      name,
			Kind:      kind,
			StartLine: i,
			EndLine:   end,
			Text:      spanText(lines, i, end),
		})
		if end >= endLine {
			break
		}
		i = end - overlapLines + 1
	}
	return chunks
}

// coverGaps makes structural chunking span the whole file. Each definition
// first absorbs the comment block directly above it, then every uncovered
// region that still contains code (package clauses, imports, top-level
// consts and vars) is window-split into its own chunks. What remains
// uncovered is whitespace and comments only.
func (c *Chunker) coverGaps(chunks []Chunk, src []byte) []Chunk {
	lines := strings.Split(string(src), "\n")
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].StartLine < chunks[j].StartLine })

	prevEnd := 0
	for i := range chunks {
		start := chunks[i].StartLine
		for start-2 >= prevEnd && isCommentLine(lines[start-2]) {
			start--
		}
		if start != chunks[i].StartLine {
			chunks[i].StartLine = start
			chunks[i].Text = spanText(lines, start, chunks[i].EndLine)
		}
		if chunks[i].EndLine > prevEnd {
			prevEnd = chunks[i].EndLine
		}
	}

	covered := make([]bool, len(lines)+1)
	for _, ch := range chunks {
		for l := ch.StartLine; l <= ch.EndLine && l <= len(lines); l++ {
			covered[l] = true
		}
	}

	var gaps []Chunk
	for l := 1; l <= len(lines); {
		if covered[l] {
			l++
			continue
		}
		start := l
		for l <= len(lines) && !covered[l] {
			l++
		}
		gaps = append(gaps, c.splitGap(lines, start, l-1)...)
	}
	if len(gaps) == 0 {
		return chunks
	}

	chunks = append(chunks, gaps...)
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].StartLine < chunks[j].StartLine })
	return chunks
}

// splitGap window-splits one uncovered line range, or returns nothing when
// the range holds no code.
func (c *Chunker) splitGap(lines []string, startLine, endLine int) []Chunk {
	hasCode := false
	for l := startLine; l <= endLine; l++ {
		if t := strings.TrimSpace(lines[l-1]); t != "" && !isCommentLine(lines[l-1]) {
			hasCode = true
			break
		}
	}
	if !hasCode {
		return nil
	}

	windows := c.window.Split([]byte(spanText(lines, startLine, endLine)))
	for i := range windows {
		windows[i].StartLine += startLine - 1
		windows[i].EndLine += startLine - 1
	}
	return windows
}

// isCommentLine reports whether a line is a comment under the common
// single-line and block comment markers. The check is syntactic, not
// grammar-aware, which is enough to decide whether a gap holds code.
func isCommentLine(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" {
		return false
	}
	for _, p := range []string{"//", "#", "/*", "*/", "* ", "--"} {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return t == "*"
}

// mergeSmall merges chunks under minChunkBytes into a neighbor so the index
// is not polluted with fragments. A fragment leader folds forward into the
// chunk that follows it, anything else folds back into its predecessor.
func mergeSmall(chunks []Chunk, src []byte) []Chunk {
	if len(chunks) < 2 {
		return chunks
	}
	lines := strings.Split(string(src), "\n")

	if first := chunks[0]; len(first.Text) < minChunkBytes && chunks[1].StartLine > first.EndLine {
		chunks[1].StartLine = first.StartLine
		chunks[1].Text = spanText(lines, chunks[1].StartLine, chunks[1].EndLine)
		chunks = chunks[1:]
		if len(chunks) < 2 {
			return chunks
		}
	}

	out := chunks[:1]
	for _, c := range chunks[1:] {
		last := &out[len(out)-1]
		if len(c.Text) < minChunkBytes && c.StartLine > last.EndLine {
			// Extend the previous chunk's span to absorb the fragment.
			last.EndLine = c.EndLine
			last.Text = spanText(lines, last.StartLine, last.EndLine)
			continue
		}
		out = append(out, c)
	}
	return out
}

type capture struct {
	name      string
	kind      string
	startLine int
	endLine   int
	startByte uint32
	endByte   uint32
}
