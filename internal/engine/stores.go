package engine

import (
	"context"

	"rulegen-backend/internal/metadata"
	"rulegen-backend/internal/store"
)

// RuleStore is the append-only rule repository.
type RuleStore interface {
	Store(ctx context.Context, sourceDocument string, rules []metadata.RuleContent) []int64
	List(ctx context.Context, sourceDocument string) ([]metadata.Rule, error)
	Get(ctx context.Context, id int64) (*metadata.Rule, error)
}

// ValidatorStore persists compiled validator artifacts.
type ValidatorStore interface {
	Store(ctx context.Context, validators []metadata.CompiledValidator) int
	List(ctx context.Context, fileName string) ([]metadata.CompiledValidator, error)
}

// FlaggedStore persists violations and their remediation.
type FlaggedStore interface {
	Store(ctx context.Context, items []metadata.FlaggedItem) int
	List(ctx context.Context, status string) ([]metadata.FlaggedItem, error)
	Get(ctx context.Context, id int64) (*metadata.FlaggedItem, error)
	SetRemediation(ctx context.Context, id int64, remediation string) error
	SetStatus(ctx context.Context, id int64, status string) error
	Summary(ctx context.Context) ([]store.RuleSummary, error)
}

// UploadStore records indexed upload batches.
type UploadStore interface {
	Create(ctx context.Context, fileName, indexReference string) (*metadata.Upload, error)
	List(ctx context.Context) ([]metadata.Upload, error)
}

var (
	_ RuleStore      = (*store.RuleRepository)(nil)
	_ ValidatorStore = (*store.ValidatorRepository)(nil)
	_ FlaggedStore   = (*store.FlaggedRepository)(nil)
	_ UploadStore    = (*store.UploadRepository)(nil)
)
