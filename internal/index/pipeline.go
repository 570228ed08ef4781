package index

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"codescout/internal/catalog"
	"codescout/internal/chunker"
	"codescout/internal/vectorstore"
	"codescout/internal/walker"
)

// fileData is one enumerated file with its content and fingerprint.
type fileData struct {
	info        walker.FileInfo
	fingerprint string
	lang        string
	src         []byte
}

func (idx *Indexer) workers() int {
	if idx.cfg.Workers > 0 {
		return idx.cfg.Workers
	}
	return runtime.NumCPU()
}

// walk enumerates the repository and fingerprints every candidate file.
// Unreadable and binary files are skipped (counted, never fatal).
func (idx *Indexer) walk(ctx context.Context, repo catalog.Repo, stats *Stats) (map[string]fileData, error) {
	fileCh, walkErrCh := walker.Walk(repo.Root, walker.Options{
		Extensions:  idx.registry.Extensions(),
		MaxFileSize: idx.cfg.MaxFileSize,
	})

	var mu sync.Mutex
	files := make(map[string]fileData)
	var skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers())

	for fi := range fileCh {
		fi := fi
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			src, err := os.ReadFile(fi.Path)
			if err != nil {
				skipped.Add(1)
				return nil
			}
			// The pipeline ships text to remote services; binaries have no
			// place in a semantic index.
			if !utf8.Valid(src) {
				skipped.Add(1)
				return nil
			}
			fd := fileData{
				info:        fi,
				fingerprint: chunker.Fingerprint(src),
				lang:        idx.registry.LanguageName(fi.Path),
				src:         src,
			}
			mu.Lock()
			files[fi.RelPath] = fd
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := <-walkErrCh; err != nil {
		return nil, err
	}

	stats.FilesSkipped = int(skipped.Load())
	return files, nil
}

// chunkFiles splits the given paths concurrently. Chunk ordering within a
// file is assigned by the chunker before fan-out returns, so identifiers
// stay deterministic regardless of scheduling.
func (idx *Indexer) chunkFiles(ctx context.Context, files map[string]fileData, paths []string) (map[string][]chunker.Chunk, error) {
	var mu sync.Mutex
	chunked := make(map[string][]chunker.Chunk, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers())

	for _, path := range paths {
		path := path
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			fd := files[path]
			chunks, err := idx.chunker.Chunk(path, fd.src)
			if err != nil {
				return fmt.Errorf("chunk %s: %w", path, err)
			}
			mu.Lock()
			chunked[path] = chunks
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunked, nil
}

// embedAndUpsert processes each changed file: embed its chunks in bounded
// batches, upsert the new entries, then delete any leftover entries from a
// previous, longer version of the file. Upserting before deleting keeps
// the file queryable throughout. Concurrency across files is bounded by
// the worker count, which also bounds in-flight embedding batches.
func (idx *Indexer) embedAndUpsert(ctx context.Context, repo catalog.Repo,
	files map[string]fileData, chunked map[string][]chunker.Chunk,
	snapshot map[string]catalog.FileRecord, paths []string, stats *Stats) ([]catalog.FileRecord, error) {

	var mu sync.Mutex
	records := make([]catalog.FileRecord, 0, len(paths))
	var chunksIndexed, chunksDeleted atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers())

	for _, path := range paths {
		path := path
		g.Go(func() error {
			fd := files[path]
			chunks := chunked[path]

			entries := make([]vectorstore.Entry, len(chunks))
			for i, c := range chunks {
				entries[i] = vectorstore.Entry{
					ID: chunker.ID(repo.ID, path, c.Ordinal),
					Payload: vectorstore.Payload{
						RepoID:          repo.ID,
						Path:            path,
						StartLine:       c.StartLine,
						EndLine:         c.EndLine,
						Language:        fd.lang,
						Name:            c.Name,
						Kind:            c.Kind,
						Text:            c.Text,
						FileFingerprint: fd.fingerprint,
					},
				}
			}

			// Embed in provider-sized batches.
			batch := idx.embedder.MaxBatchSize()
			for i := 0; i < len(chunks); i += batch {
				end := i + batch
				if end > len(chunks) {
					end = len(chunks)
				}
				texts := make([]string, end-i)
				for j := i; j < end; j++ {
					texts[j-i] = embedText(path, fd.lang, chunks[j])
				}
				vectors, err := idx.embedder.Embed(gctx, texts)
				if err != nil {
					return stageError(StageEmbedding, repo.ID, fmt.Errorf("%s: %w", path, err))
				}
				for j := range vectors {
					entries[i+j].Vector = vectors[j]
				}
			}

			if err := idx.store.Upsert(gctx, repo.Namespace, entries); err != nil {
				return stageError(StageUpserting, repo.ID, fmt.Errorf("%s: %w", path, err))
			}

			// A previous version of the file may have produced more chunks
			// than this one; those trailing identifiers are now stale.
			if prev, ok := snapshot[path]; ok && prev.ChunkCount > len(chunks) {
				stale := make([]string, 0, prev.ChunkCount-len(chunks))
				for i := len(chunks); i < prev.ChunkCount; i++ {
					stale = append(stale, chunker.ID(repo.ID, path, i))
				}
				if err := idx.store.Delete(gctx, repo.Namespace, stale); err != nil {
					return stageError(StageUpserting, repo.ID, fmt.Errorf("%s: %w", path, err))
				}
				chunksDeleted.Add(int64(len(stale)))
			}

			chunksIndexed.Add(int64(len(chunks)))
			mu.Lock()
			records = append(records, catalog.FileRecord{
				Path:        path,
				Fingerprint: fd.fingerprint,
				ChunkCount:  len(chunks),
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.ChunksIndexed = int(chunksIndexed.Load())
	stats.ChunksDeleted += int(chunksDeleted.Load())
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records, nil
}

// embedText prefixes the chunk with a small header so the embedding model
// sees the file and symbol context, not just the raw span.
func embedText(path, lang string, c chunker.Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// File: %s\n", path)
	if lang != "" {
		fmt.Fprintf(&b, "// Language: %s\n", lang)
	}
	if c.Name != "" {
		fmt.Fprintf(&b, "// %s: %s\n", c.Kind, c.Name)
	}
	b.WriteString(c.Text)
	return b.String()
}
