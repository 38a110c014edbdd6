// Package app assembles the pipeline from configuration. Both the HTTP
// server and the CLI build their components through it.
package app

import (
	"context"
	"fmt"

	"rulegen-backend/internal/ai"
	"rulegen-backend/internal/config"
	"rulegen-backend/internal/docindex"
	"rulegen-backend/internal/engine"
	"rulegen-backend/internal/instrument"
	"rulegen-backend/internal/logger"
	"rulegen-backend/internal/storage"
	"rulegen-backend/internal/store"
)

// App holds every long-lived component.
type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Store    *store.Store
	Registry *docindex.Registry
	LLM      engine.Completer
	Events   *instrument.EventBuffer
	Tracer   *instrument.InstrumenterImpl
	Services engine.Services
}

// New connects the store, bootstraps the schema and wires the services.
// A missing LLM configuration is logged, not fatal.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	log = logger.OrNop(log)

	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Bootstrap(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	docs, err := storage.NewLocalStorage(cfg.Storage.DocumentsDir, cfg.Storage.MaxFileSize)
	if err != nil {
		db.Close()
		return nil, err
	}

	llm, err := ai.New(cfg.LLM)
	if err != nil {
		db.Close()
		return nil, err
	}
	if llm == nil {
		log.Warn("no language model configured; extraction and remediation are disabled",
			"provider", cfg.LLM.Provider)
	}

	rules := store.NewRuleRepository(db, log)
	validators := store.NewValidatorRepository(db, log)
	flagged := store.NewFlaggedRepository(db, log)
	uploads := store.NewUploadRepository(db)

	registry := docindex.NewRegistry()
	builder := docindex.NewBuilder(cfg.Index, log)
	opts := engine.ExtractorOptions{
		TopK:        cfg.Index.TopK,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}
	compiler := engine.NewCompiler(rules, validators, log)

	events := instrument.NewEventBuffer(instrument.DefaultBufferSize)
	return &App{
		Config:   cfg,
		Log:      log,
		Store:    db,
		Registry: registry,
		LLM:      llm,
		Events:   events,
		Tracer:   instrument.NewInstrumenter(events, log),
		Services: engine.Services{
			Ingestor:   engine.NewIngestor(docs, builder, registry, uploads, cfg.Storage.AllowedExtensions, log),
			Extractor:  engine.NewExtractor(registry, llm, rules, opts, log),
			Compiler:   compiler,
			Runner:     engine.NewRunner(compiler, validators, flagged, log),
			Remediator: engine.NewRemediator(llm, flagged, rules, opts, log),
			Rules:      rules,
			Uploads:    uploads,
			Flagged:    flagged,
		},
	}, nil
}

// Close releases the database.
func (a *App) Close() {
	a.Store.Close()
}
