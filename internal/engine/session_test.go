package engine

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulegen-backend/internal/instrument"
)

func batchDirs(t *testing.T, env *testEnv) []string {
	t.Helper()
	entries, err := os.ReadDir(env.docs.BasePath())
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs
}

func TestIngest_IndexesBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	upload, handle, err := env.svc.Ingestor.Ingest(ctx, []UploadFile{
		{Name: "intro.md", Content: strings.NewReader("# Lending\nThis policy covers personal loans.")},
		{Name: "policy.txt", Content: strings.NewReader(policyText)},
	})
	require.NoError(t, err)

	assert.False(t, handle.IsZero())
	assert.Equal(t, uint64(1), handle.Generation)
	assert.Equal(t, "policy.txt", upload.FileName)
	assert.Equal(t, handle.SessionID, upload.IndexReference)

	idx, err := env.registry.Lookup(handle)
	require.NoError(t, err)
	assert.Len(t, idx.Sources(), 2)

	uploads, err := env.uploads.List(ctx)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, handle.SessionID, uploads[0].IndexReference)
	assert.Len(t, batchDirs(t, env), 1)
}

func TestIngest_ReplacesPreviousBatch(t *testing.T) {
	env := newTestEnv(t)
	first := env.index(t, "a.txt")
	second := env.index(t, "b.txt")

	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.Generation+1, second.Generation)
	assert.Len(t, batchDirs(t, env), 1)

	current, ok := env.registry.Current()
	require.True(t, ok)
	assert.Equal(t, second, current)
}

func TestIngest_RejectsInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.svc.Ingestor.Ingest(ctx, nil)
	requireAppError(t, err, CodeInvalidPayload)

	_, _, err = env.svc.Ingestor.Ingest(ctx, []UploadFile{
		{Name: "ok.txt", Content: strings.NewReader("text")},
		{Name: "script.exe", Content: strings.NewReader("MZ")},
	})
	appErr := requireAppError(t, err, CodeInvalidPayload)
	require.Len(t, appErr.Details, 1)
	assert.Equal(t, "script.exe", appErr.Details[0].Field)

	assert.Empty(t, batchDirs(t, env))
	_, ok := env.registry.Current()
	assert.False(t, ok)
}

func TestIngest_FileTooLarge(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.svc.Ingestor.Ingest(context.Background(), []UploadFile{
		{Name: "big.txt", Content: strings.NewReader(strings.Repeat("a", 1<<20+10))},
	})
	appErr := requireAppError(t, err, CodeInvalidPayload)
	assert.Contains(t, appErr.Message, "big.txt")
	assert.Empty(t, batchDirs(t, env))
}

func TestIngest_IndexFailureKeepsPreviousIndex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	previous := env.index(t, "policy.txt")
	before := batchDirs(t, env)

	_, handle, err := env.svc.Ingestor.Ingest(ctx, []UploadFile{
		{Name: "blank.txt", Content: strings.NewReader("   \n\t ")},
	})
	appErr := requireAppError(t, err, CodeIndexFailed)
	assert.Equal(t, 422, appErr.Status)
	assert.True(t, handle.IsZero())

	assert.Equal(t, before, batchDirs(t, env))
	uploads, err := env.uploads.List(ctx)
	require.NoError(t, err)
	assert.Len(t, uploads, 1)

	_, err = env.registry.Lookup(previous)
	assert.NoError(t, err)
}

func TestIngest_EmitsEvent(t *testing.T) {
	env := newTestEnv(t)
	events := instrument.NewEventBuffer(16)
	ctx := instrument.WithInstrumenter(context.Background(), instrument.NewInstrumenter(events, nil))

	_, _, err := env.svc.Ingestor.Ingest(ctx, []UploadFile{{Name: "policy.txt", Content: strings.NewReader(policyText)}})
	require.NoError(t, err)

	got := events.Recent(0, func(e instrument.Event) bool { return e.Action == "documents.indexed" })
	require.Len(t, got, 1)
	assert.Equal(t, "policy.txt", got[0].Document)
	assert.Equal(t, 1, got[0].Metadata["files"])
}

func TestIngest_ConcurrentBatchesKeepLatest(t *testing.T) {
	env := newTestEnv(t)
	const n = 4

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = env.svc.Ingestor.Ingest(context.Background(), []UploadFile{
				{Name: "policy.txt", Content: strings.NewReader(policyText)},
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, batchDirs(t, env), 1)
	current, ok := env.registry.Current()
	require.True(t, ok)
	assert.Equal(t, uint64(n), current.Generation)

	uploads, err := env.uploads.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, uploads, n)
}
