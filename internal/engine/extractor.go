package engine

import (
	"context"
	"strings"

	"rulegen-backend/internal/docindex"
	"rulegen-backend/internal/instrument"
	"rulegen-backend/internal/logger"
	"rulegen-backend/internal/metadata"
)

// ExtractorOptions tunes the inference call and retrieval.
type ExtractorOptions struct {
	TopK        int
	MaxTokens   int
	Temperature float64
}

func (o ExtractorOptions) withDefaults() ExtractorOptions {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 2048
	}
	if o.Temperature < 0 {
		o.Temperature = 0.3
	}
	return o
}

// Extractor asks the language model for validation rules grounded in the
// indexed documents and stores the result.
type Extractor struct {
	registry *docindex.Registry
	llm      Completer
	rules    RuleStore
	opts     ExtractorOptions
	log      *logger.Logger
}

func NewExtractor(registry *docindex.Registry, llm Completer, rules RuleStore, opts ExtractorOptions, log *logger.Logger) *Extractor {
	return &Extractor{
		registry: registry,
		llm:      llm,
		rules:    rules,
		opts:     opts.withDefaults(),
		log:      logger.OrNop(log),
	}
}

// Extract returns the validated rules for query. Nothing is stored unless
// every rule in the response is valid. The returned rules are not truncated.
func (e *Extractor) Extract(ctx context.Context, handle docindex.Handle, sourceDocument, query string) ([]metadata.RuleContent, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "extractor", "extract")
	defer span.End()

	rules, err := e.extract(ctx, handle, sourceDocument, query, span)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return rules, nil
}

func (e *Extractor) extract(ctx context.Context, handle docindex.Handle, sourceDocument, query string, span instrument.Span) ([]metadata.RuleContent, error) {
	if handle.IsZero() {
		return nil, NotIndexedError("Please load documents first")
	}
	idx, err := e.registry.Lookup(handle)
	if err != nil {
		return nil, NotIndexedError("The document index is no longer available. Please load documents again")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, InvalidPayloadError("query is required", ErrorDetail{Field: "query", Rule: "required", Message: "query is required"})
	}
	if e.llm == nil {
		return nil, TransportError("no language model is configured")
	}
	if sourceDocument == "" {
		sourceDocument = handle.SessionID
	}
	span.SetMetadata("document", sourceDocument)

	chunks := idx.Query(query, e.opts.TopK)
	span.SetMetadata("chunks", len(chunks))
	prompt := BuildExtractionPrompt(query, chunks)

	raw, err := e.llm.Complete(ctx, prompt, e.opts.MaxTokens, e.opts.Temperature)
	if err != nil {
		if ErrorCode(err) == "" {
			return nil, TransportError("language model request failed: %v", err)
		}
		return nil, err
	}

	rules, repaired, err := ParseRules(raw)
	if err != nil {
		e.log.Warn("model response rejected",
			"code", ErrorCode(err),
			"document", sourceDocument,
			"response_len", len(raw),
		)
		return nil, err
	}
	if repaired {
		e.log.Warn("model response repaired before parsing", "document", sourceDocument)
	}

	ids := e.rules.Store(ctx, sourceDocument, rules)
	span.SetMetadata("rules", len(rules))
	span.SetMetadata("stored", len(ids))
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "rules.extracted", sourceDocument, map[string]any{
		"rules":  len(rules),
		"stored": len(ids),
	})
	return rules, nil
}
