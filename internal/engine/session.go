package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"rulegen-backend/internal/docindex"
	"rulegen-backend/internal/instrument"
	"rulegen-backend/internal/logger"
	"rulegen-backend/internal/metadata"
	"rulegen-backend/internal/storage"
)

// UploadFile is one document of an upload batch.
type UploadFile struct {
	Name    string
	Content io.Reader
}

// Ingestor replaces the working document set with a new batch and indexes it.
// Ingestions run one at a time: each prunes every batch but its own.
type Ingestor struct {
	mu       sync.Mutex
	storage  storage.DocumentStorage
	builder  *docindex.Builder
	registry *docindex.Registry
	uploads  UploadStore
	allowed  []string
	log      *logger.Logger
}

func NewIngestor(st storage.DocumentStorage, builder *docindex.Builder, registry *docindex.Registry, uploads UploadStore, allowed []string, log *logger.Logger) *Ingestor {
	return &Ingestor{
		storage:  st,
		builder:  builder,
		registry: registry,
		uploads:  uploads,
		allowed:  allowed,
		log:      logger.OrNop(log),
	}
}

// Ingest saves files as a new batch, builds and registers its index and
// removes every earlier batch. On index failure the new batch is removed and
// no upload is recorded.
func (in *Ingestor) Ingest(ctx context.Context, files []UploadFile) (*metadata.Upload, docindex.Handle, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "ingestor", "ingest")
	defer span.End()
	span.SetMetadata("files", len(files))

	in.mu.Lock()
	upload, handle, err := in.ingest(ctx, files)
	in.mu.Unlock()
	if err != nil {
		span.SetError(err)
		return nil, docindex.Handle{}, err
	}
	span.SetMetadata("document", upload.FileName)
	return upload, handle, nil
}

func (in *Ingestor) ingest(ctx context.Context, files []UploadFile) (*metadata.Upload, docindex.Handle, error) {
	if len(files) == 0 {
		return nil, docindex.Handle{}, InvalidPayloadError("No files provided")
	}
	var rejected []ErrorDetail
	for _, f := range files {
		if !storage.AllowedExtension(f.Name, in.allowed) {
			rejected = append(rejected, ErrorDetail{
				Field:   f.Name,
				Rule:    "extension",
				Message: "allowed extensions: " + strings.Join(in.allowed, ", "),
			})
		}
	}
	if len(rejected) > 0 {
		return nil, docindex.Handle{}, InvalidPayloadError("Unsupported file type", rejected...)
	}

	batch, err := in.storage.NewBatch(ctx)
	if err != nil {
		return nil, docindex.Handle{}, fmt.Errorf("create batch: %w", err)
	}
	for _, f := range files {
		if _, err := in.storage.Save(ctx, batch, f.Name, f.Content); err != nil {
			in.discard(ctx, batch)
			if errors.Is(err, storage.ErrFileTooLarge) {
				return nil, docindex.Handle{}, InvalidPayloadError(fmt.Sprintf("File %s is too large", f.Name),
					ErrorDetail{Field: f.Name, Rule: "max_file_size", Message: err.Error()})
			}
			return nil, docindex.Handle{}, fmt.Errorf("save %s: %w", f.Name, err)
		}
	}

	idx, err := in.builder.Build(ctx, batch)
	if err != nil {
		in.discard(ctx, batch)
		in.log.Warn("index build failed", "code", CodeIndexFailed, "error", err)
		return nil, docindex.Handle{}, IndexFailedError(err)
	}

	handle := in.registry.Register(idx)
	if err := in.storage.PruneExcept(ctx, batch); err != nil {
		in.log.Warn("old batches not pruned", "error", err)
	}

	// The last file names the session.
	fileName := files[len(files)-1].Name
	upload, err := in.uploads.Create(ctx, fileName, handle.SessionID)
	if err != nil {
		in.log.Warn("upload row not stored",
			"code", CodePersistenceError,
			"file_name", fileName,
			"error", err,
		)
		upload = &metadata.Upload{FileName: fileName, IndexReference: handle.SessionID}
	}

	in.log.Info("documents indexed",
		"file_name", fileName,
		"files", len(files),
		"chunks", idx.Len(),
		"session_id", handle.SessionID,
		"generation", handle.Generation,
	)
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "documents.indexed", fileName, map[string]any{
		"files":  len(files),
		"chunks": idx.Len(),
	})
	return upload, handle, nil
}

func (in *Ingestor) discard(ctx context.Context, batch string) {
	if err := in.storage.RemoveBatch(ctx, batch); err != nil {
		in.log.Warn("batch not removed", "batch", batch, "error", err)
	}
}

