package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rulegen-backend/internal/instrument"
	"rulegen-backend/internal/logger"
	"rulegen-backend/internal/metadata"
	"rulegen-backend/internal/store"
)

// Remediator asks the language model how to fix a flagged record.
type Remediator struct {
	llm       Completer
	flagged   FlaggedStore
	rules     RuleStore
	maxTokens int
	temp      float64
	log       *logger.Logger
}

func NewRemediator(llm Completer, flagged FlaggedStore, rules RuleStore, opts ExtractorOptions, log *logger.Logger) *Remediator {
	opts = opts.withDefaults()
	return &Remediator{
		llm:       llm,
		flagged:   flagged,
		rules:     rules,
		maxTokens: opts.MaxTokens,
		temp:      opts.Temperature,
		log:       logger.OrNop(log),
	}
}

// Remediate generates markdown remediation steps for a flagged item and
// stores them on it. The text is returned even if it could not be stored.
func (r *Remediator) Remediate(ctx context.Context, flaggedID int64) (string, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "remediator", "remediate")
	defer span.End()
	span.SetMetadata("flagged_id", flaggedID)

	text, err := r.remediate(ctx, flaggedID)
	if err != nil {
		span.SetError(err)
		return "", err
	}
	return text, nil
}

func (r *Remediator) remediate(ctx context.Context, flaggedID int64) (string, error) {
	item, err := r.flagged.Get(ctx, flaggedID)
	if errors.Is(err, store.ErrNotFound) {
		return "", NotFoundError("flagged item", flaggedID)
	}
	if err != nil {
		return "", fmt.Errorf("load flagged item: %w", err)
	}

	var rule *metadata.Rule
	if item.RuleID != 0 {
		rule, err = r.rules.Get(ctx, item.RuleID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("load rule: %w", err)
		}
	}

	if r.llm == nil {
		return "", TransportError("no language model is configured")
	}
	text, err := r.llm.Complete(ctx, BuildRemediationPrompt(item, rule), r.maxTokens, r.temp)
	if err != nil {
		if ErrorCode(err) == "" {
			return "", TransportError("language model request failed: %v", err)
		}
		return "", err
	}
	text = strings.TrimSpace(text)

	if err := r.flagged.SetRemediation(ctx, flaggedID, text); err != nil {
		r.log.Warn("remediation not stored",
			"code", CodePersistenceError,
			"flagged_id", flaggedID,
			"error", err,
		)
	}
	return text, nil
}
