package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalStorage stores document batches on the local filesystem under
// basePath/<batch-id>/<uuid>_<name>.
type LocalStorage struct {
	basePath string
	maxSize  int64
}

// NewLocalStorage creates the base directory if needed. A maxSize of zero
// disables the size limit.
func NewLocalStorage(basePath string, maxSize int64) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStorage{basePath: basePath, maxSize: maxSize}, nil
}

func (s *LocalStorage) BasePath() string { return s.basePath }

func (s *LocalStorage) NewBatch(_ context.Context) (string, error) {
	dir := filepath.Join(s.basePath, uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create batch dir: %w", err)
	}
	return dir, nil
}

func (s *LocalStorage) Save(_ context.Context, batchDir, filename string, reader io.Reader) (string, error) {
	storagePath := filepath.Join(batchDir, uuid.NewString()+"_"+SafeName(filename))
	f, err := os.Create(storagePath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	src := reader
	if s.maxSize > 0 {
		src = io.LimitReader(reader, s.maxSize+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		os.Remove(storagePath)
		return "", fmt.Errorf("write file: %w", err)
	}
	if s.maxSize > 0 && n > s.maxSize {
		f.Close()
		os.Remove(storagePath)
		return "", fmt.Errorf("%s: %w", filename, ErrFileTooLarge)
	}
	return storagePath, nil
}

func (s *LocalStorage) Open(_ context.Context, storagePath string) (io.ReadCloser, error) {
	f, err := os.Open(storagePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *LocalStorage) RemoveBatch(_ context.Context, batchDir string) error {
	if err := os.RemoveAll(batchDir); err != nil {
		return fmt.Errorf("remove batch: %w", err)
	}
	return nil
}

func (s *LocalStorage) PruneExcept(ctx context.Context, keep string) error {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return fmt.Errorf("read storage dir: %w", err)
	}
	keep = filepath.Clean(keep)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.basePath, e.Name())
		if filepath.Clean(dir) == keep {
			continue
		}
		if err := s.RemoveBatch(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

var _ DocumentStorage = (*LocalStorage)(nil)
