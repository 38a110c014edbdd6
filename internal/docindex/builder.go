package docindex

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"rulegen-backend/internal/config"
	"rulegen-backend/internal/logger"
)

var (
	ErrEmptyBatch = errors.New("no supported documents in batch")
	ErrNoText     = errors.New("no text could be extracted from the batch")
)

// Builder loads a batch directory and builds an Index over it.
type Builder struct {
	loader  *Loader
	chunker *Chunker
	workers int
	log     *logger.Logger
}

func NewBuilder(cfg config.IndexConfig, log *logger.Logger, opts ...LoaderOption) *Builder {
	loaderOpts := append([]LoaderOption{WithPDFToText(cfg.PDFToText)}, opts...)
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Builder{
		loader:  NewLoader(loaderOpts...),
		chunker: NewChunker(WithChunkSize(cfg.ChunkSize), WithOverlap(cfg.ChunkOverlap)),
		workers: workers,
		log:     logger.OrNop(log),
	}
}

// Build indexes every supported file directly inside dir. Any file that
// fails to load fails the whole build. Documents whose text is identical to
// an earlier one are skipped.
func (b *Builder) Build(ctx context.Context, dir string) (*Index, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read batch dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && Supported(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, ErrEmptyBatch
	}
	sort.Strings(paths)

	docs := make([]Document, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, p := range paths {
		g.Go(func() error {
			doc, err := b.loader.Load(gctx, p)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]string)
	var chunks []Chunk
	var sources []string
	for _, doc := range docs {
		if doc.Text == "" {
			b.log.Warn("document has no text", "document", doc.Name)
			continue
		}
		fp := fingerprint(doc.Text)
		if first, dup := seen[fp]; dup {
			b.log.Info("duplicate document skipped", "document", doc.Name, "duplicate_of", first)
			continue
		}
		seen[fp] = doc.Name
		sources = append(sources, doc.Name)
		for pos, text := range b.chunker.Split(doc.Text) {
			chunks = append(chunks, Chunk{Source: doc.Name, Position: pos, Text: text})
		}
	}
	if len(chunks) == 0 {
		return nil, ErrNoText
	}

	b.log.Debug("index built", "documents", len(sources), "chunks", len(chunks))
	return newIndex(chunks, sources), nil
}

// fingerprint hashes whitespace-normalized text.
func fingerprint(text string) string {
	sum := blake2b.Sum256([]byte(strings.Join(strings.Fields(text), " ")))
	return hex.EncodeToString(sum[:])
}
