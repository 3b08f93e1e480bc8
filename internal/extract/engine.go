// Package extract turns free-text meeting summaries into validated
// ExtractedRecords through a language-model completion.
package extract

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-extract/internal/apperr"
	"github.com/sells-group/crm-extract/internal/llm"
	"github.com/sells-group/crm-extract/internal/model"
)

// Recorder persists extractions.
type Recorder interface {
	CreateExtraction(ctx context.Context, meetingSummary, extractedData string) (*model.Extraction, error)
}

// Engine extracts CRM records. It performs no retries; a failed extraction
// returns an error and nothing else.
type Engine struct {
	completer llm.Completer
}

// NewEngine creates an Engine backed by the given completion capability.
func NewEngine(c llm.Completer) *Engine {
	return &Engine{completer: c}
}

// Extract returns the validated record for a meeting summary. Completion
// output that is not parseable JSON is treated as an empty object, which
// yields a record with every field absent and every confidence 0.
func (e *Engine) Extract(ctx context.Context, meetingSummary string) (model.ExtractedRecord, error) {
	if err := CheckSummary(meetingSummary); err != nil {
		return model.ExtractedRecord{}, err
	}

	raw, err := e.completer.Complete(ctx, SystemPrompt(), meetingSummary, true)
	if err != nil {
		zap.L().Error("extract: completion failed", zap.Error(err))
		return model.ExtractedRecord{}, apperr.ExtractionFailed(err)
	}

	rec, err := model.DecodeLenient(cleanJSON(raw))
	if err != nil {
		zap.L().Warn("extract: completion failed validation",
			zap.Int("raw_len", len(raw)),
			zap.Error(err),
		)
		return model.ExtractedRecord{}, apperr.ExtractionFailed(err)
	}

	zap.L().Info("extract: record extracted",
		zap.Int("contact_confidence", rec.Contact.Confidence),
		zap.Int("company_confidence", rec.Company.Confidence),
		zap.Int("deal_confidence", rec.Deal.Confidence),
	)
	return rec, nil
}

// ExtractAndSave extracts a record and persists it as a new, unsynced
// Extraction. Nothing is stored when extraction fails.
func (e *Engine) ExtractAndSave(ctx context.Context, rec Recorder, meetingSummary string) (*model.Extraction, model.ExtractedRecord, error) {
	data, err := e.Extract(ctx, meetingSummary)
	if err != nil {
		return nil, model.ExtractedRecord{}, err
	}
	ext, err := Save(ctx, rec, meetingSummary, data)
	if err != nil {
		return nil, model.ExtractedRecord{}, err
	}
	return ext, data, nil
}

// Save persists an already-validated record with its meeting summary.
func Save(ctx context.Context, rec Recorder, meetingSummary string, data model.ExtractedRecord) (*model.Extraction, error) {
	if err := CheckSummary(meetingSummary); err != nil {
		return nil, err
	}
	text, err := data.Marshal()
	if err != nil {
		return nil, err
	}
	ext, err := rec.CreateExtraction(ctx, meetingSummary, text)
	if err != nil {
		return nil, eris.Wrap(err, "extract: store extraction")
	}
	return ext, nil
}

// CheckSummary rejects empty or whitespace-only meeting summaries.
func CheckSummary(meetingSummary string) error {
	if strings.TrimSpace(meetingSummary) == "" {
		return apperr.Validation("meeting summary is required",
			apperr.FieldError{Path: "meetingSummary", Message: "must not be empty"})
	}
	return nil
}

// cleanJSON strips markdown code fences and surrounding prose from model
// output, leaving the outermost JSON object when one is present.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
