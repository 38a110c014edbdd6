package store

import (
	"context"
	"fmt"
	"sync"

	"rulegen-backend/internal/metadata"
)

// UploadRepository records indexed document batches.
type UploadRepository struct {
	store *Store
	mu    sync.Mutex
}

func NewUploadRepository(s *Store) *UploadRepository {
	return &UploadRepository{store: s}
}

// Create inserts an upload row and returns it with its id set.
func (r *UploadRepository) Create(ctx context.Context, fileName, indexReference string) (*metadata.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pb := r.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"INSERT INTO uploads (file_name, index_reference) VALUES (%s, %s) RETURNING id, created_at",
		pb.Add(fileName), pb.Add(indexReference),
	)
	up := &metadata.Upload{FileName: fileName, IndexReference: indexReference}
	var created any
	if err := r.store.DB.QueryRowContext(ctx, sqlStr, pb.Params()...).Scan(&up.ID, &created); err != nil {
		return nil, fmt.Errorf("insert upload: %w", MapError(r.store.Dialect, err))
	}
	up.CreatedAt = scanTime(created)
	return up, nil
}

// List returns uploads, newest first.
func (r *UploadRepository) List(ctx context.Context) ([]metadata.Upload, error) {
	rows, err := r.store.DB.QueryContext(ctx,
		"SELECT id, file_name, index_reference, created_at FROM uploads ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	uploads := []metadata.Upload{}
	for rows.Next() {
		var up metadata.Upload
		var created any
		if err := rows.Scan(&up.ID, &up.FileName, &up.IndexReference, &created); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		up.CreatedAt = scanTime(created)
		uploads = append(uploads, up)
	}
	return uploads, rows.Err()
}
