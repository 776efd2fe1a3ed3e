package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/manicule/manicule/internal/provider"
	"github.com/manicule/manicule/internal/retrieve"
	"github.com/manicule/manicule/internal/store"
)

const (
	// chunkSize and chunkOverlap mirror the external indexer's chunking so
	// both index paths produce comparable retrieval granularity.
	chunkSize    = 1000
	chunkOverlap = 300

	// maxFileBytes skips generated bundles and other oversized blobs.
	maxFileBytes = 512 * 1024
)

// indexableExtensions are the source-code file types worth embedding.
var indexableExtensions = map[string]bool{
	".js":   true,
	".jsx":  true,
	".ts":   true,
	".tsx":  true,
	".py":   true,
	".java": true,
	".go":   true,
	".c":    true,
	".h":    true,
	".cpp":  true,
	".rb":   true,
	".rs":   true,
}

// skippedDirs are never descended into during indexing.
var skippedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	".git":         true,
}

// EmbedRunner is the built-in indexer: it walks the staged checkout, splits
// source files into overlapping chunks, embeds each chunk, and stores the
// vectors in the embedding index.
type EmbedRunner struct {
	embedder provider.Embedder
	store    store.EmbeddingStore
	logger   *slog.Logger
}

// NewEmbedRunner creates the built-in embedding indexer.
func NewEmbedRunner(embedder provider.Embedder, st store.EmbeddingStore, logger *slog.Logger) *EmbedRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbedRunner{embedder: embedder, store: st, logger: logger}
}

func (r *EmbedRunner) Run(ctx context.Context, repoID int64, root string) error {
	// Re-indexing replaces the repository's index wholesale.
	if err := r.store.ClearEmbeddingsForRepo(repoID); err != nil {
		return fmt.Errorf("clearing previous index: %w", err)
	}

	var indexed, failed int
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsIndexableFile(path) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		n, err := r.indexFile(ctx, repoID, path, rel)
		if err != nil {
			// One bad file must not sink the whole index build.
			failed++
			r.logger.Warn("file indexing failed", "repo_id", repoID, "path", rel, "error", err)
			return nil
		}
		indexed += n
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", root, err)
	}

	r.logger.Info("repository indexed", "repo_id", repoID, "chunks", indexed, "failed_files", failed)
	return nil
}

func (r *EmbedRunner) indexFile(ctx context.Context, repoID int64, path, rel string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.Size() > maxFileBytes {
		return 0, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return 0, nil
	}

	var stored int
	for _, chunk := range ChunkText(content, chunkSize, chunkOverlap) {
		vec, err := r.embedder.Embed(ctx, chunk)
		if err != nil {
			return stored, fmt.Errorf("embedding chunk: %w", err)
		}
		if err := r.store.InsertEmbedding(repoID, rel, chunk, retrieve.EncodeEmbedding(vec)); err != nil {
			return stored, fmt.Errorf("storing chunk: %w", err)
		}
		stored++
	}
	return stored, nil
}

// IsIndexableFile reports whether the path is a source file the indexer
// should embed.
func IsIndexableFile(path string) bool {
	return indexableExtensions[strings.ToLower(filepath.Ext(path))]
}

// ChunkText splits text into chunks of at most size runes with the given
// overlap between consecutive chunks.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
