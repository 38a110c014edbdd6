package engine

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"rulegen-backend/internal/config"
	"rulegen-backend/internal/docindex"
	"rulegen-backend/internal/metadata"
	"rulegen-backend/internal/storage"
	"rulegen-backend/internal/store"
)

// fakeLLM answers every prompt with a fixed response or error.
type fakeLLM struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string, _ int, _ float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type testEnv struct {
	store      *store.Store
	rules      *store.RuleRepository
	validators *store.ValidatorRepository
	flagged    *store.FlaggedRepository
	uploads    *store.UploadRepository
	registry   *docindex.Registry
	docs       *storage.LocalStorage
	llm        *fakeLLM
	svc        Services
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Name: "test", Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Bootstrap(ctx))

	docs, err := storage.NewLocalStorage(t.TempDir(), 1<<20)
	require.NoError(t, err)

	env := &testEnv{
		store:      db,
		rules:      store.NewRuleRepository(db, nil),
		validators: store.NewValidatorRepository(db, nil),
		flagged:    store.NewFlaggedRepository(db, nil),
		uploads:    store.NewUploadRepository(db),
		registry:   docindex.NewRegistry(),
		docs:       docs,
		llm:        &fakeLLM{},
	}

	builder := docindex.NewBuilder(config.IndexConfig{ChunkSize: 200, ChunkOverlap: 20, TopK: 4, Workers: 2}, nil)
	opts := ExtractorOptions{TopK: 4, MaxTokens: 512, Temperature: 0.2}
	compiler := NewCompiler(env.rules, env.validators, nil)
	env.svc = Services{
		Ingestor:   NewIngestor(docs, builder, env.registry, env.uploads, []string{"pdf", "docx", "txt", "md"}, nil),
		Extractor:  NewExtractor(env.registry, env.llm, env.rules, opts, nil),
		Compiler:   compiler,
		Runner:     NewRunner(compiler, env.validators, env.flagged, nil),
		Remediator: NewRemediator(env.llm, env.flagged, env.rules, opts, nil),
		Rules:      env.rules,
		Uploads:    env.uploads,
		Flagged:    env.flagged,
	}
	return env
}

const policyText = `Applicant eligibility policy.
Applicants must be between 18 and 65 years of age.
Annual income must be a positive amount.
Every applicant must provide an email address.`

// index ingests a single text document and returns its handle.
func (e *testEnv) index(t *testing.T, name string) docindex.Handle {
	t.Helper()
	_, handle, err := e.svc.Ingestor.Ingest(context.Background(), []UploadFile{
		{Name: name, Content: strings.NewReader(policyText)},
	})
	require.NoError(t, err)
	return handle
}

// seedRules stores rules for sourceDocument directly.
func (e *testEnv) seedRules(t *testing.T, sourceDocument string, rules ...metadata.RuleContent) []int64 {
	t.Helper()
	ids := e.rules.Store(context.Background(), sourceDocument, rules)
	require.Len(t, ids, len(rules))
	return ids
}

func ageRule() metadata.RuleContent {
	return metadata.RuleContent{
		RuleName:        "age_range",
		RuleDescription: "Applicants must be between 18 and 65",
		RuleCondition:   "18 <= age <= 65",
		ErrorMessage:    "Age must be between 18 and 65",
	}
}

func incomeRule() metadata.RuleContent {
	return metadata.RuleContent{
		RuleName:        "positive_income",
		RuleDescription: "Annual income must be positive",
		RuleCondition:   "income > 0",
		ErrorMessage:    "Income must be positive",
	}
}

const twoRulesJSON = `{"rules": [
  {"rule_name": "age_range", "rule_description": "Applicants must be between 18 and 65", "rule_condition": "18 <= age <= 65", "error_message": "Age must be between 18 and 65"},
  {"rule_name": "positive_income", "rule_description": "Annual income must be positive", "rule_condition": "income > 0", "error_message": "Income must be positive"}
]}`
