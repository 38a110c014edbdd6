package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_SaveOpen(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir(), 0)
	require.NoError(t, err)

	batch, err := s.NewBatch(ctx)
	require.NoError(t, err)

	path, err := s.Save(ctx, batch, "../../policy doc.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, batch, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "_policy_doc.txt"))

	rc, err := s.Open(ctx, path)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLocalStorage_MaxSize(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir(), 4)
	require.NoError(t, err)
	batch, err := s.NewBatch(ctx)
	require.NoError(t, err)

	_, err = s.Save(ctx, batch, "big.txt", strings.NewReader("too large"))
	assert.True(t, errors.Is(err, ErrFileTooLarge))

	entries, err := os.ReadDir(batch)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.Save(ctx, batch, "ok.txt", strings.NewReader("fits"))
	assert.NoError(t, err)
}

func TestLocalStorage_PruneExcept(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewLocalStorage(base, 0)
	require.NoError(t, err)

	old, err := s.NewBatch(ctx)
	require.NoError(t, err)
	_, err = s.Save(ctx, old, "a.txt", strings.NewReader("a"))
	require.NoError(t, err)

	current, err := s.NewBatch(ctx)
	require.NoError(t, err)

	require.NoError(t, s.PruneExcept(ctx, current))

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(current), entries[0].Name())
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		`C:\docs\policy.docx`: "policy.docx",
		"my file (1).txt":     "my_file_1_.txt",
		"...":                 "upload",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeName(in), in)
	}
}

func TestAllowedExtension(t *testing.T) {
	allowed := []string{"pdf", "docx", ".txt"}
	assert.True(t, AllowedExtension("a.PDF", allowed))
	assert.True(t, AllowedExtension("a.txt", allowed))
	assert.False(t, AllowedExtension("a.exe", allowed))
	assert.False(t, AllowedExtension("noext", allowed))
}
