package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/llmjson"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

func (uc *FeatureUseCase) ExtractEntities(ctx context.Context, req domain.EntityRequest) (*domain.EntityResult, error) {
	if isBlank(req.DocumentID) {
		return nil, invalidInput(msgOCRIDRequired)
	}
	doc, err := loadAnalyzed(ctx, uc.docs, req.DocumentID, msgRecordNotFound, msgAnalysisMissing)
	if err != nil {
		return nil, err
	}

	fields := cleanFields(req.Fields)
	var prompt string
	if len(fields) > 0 {
		uc.logger.Info("entity extraction", zap.String("document_id", doc.ID), zap.Strings("fields", fields))
		prompt = uc.prompts.Render(ports.PromptEntityFields, map[string]string{"FIELDS": bulletList(fields)})
	} else {
		uc.logger.Info("auto entity extraction", zap.String("document_id", doc.ID))
		prompt = uc.prompts.Template(ports.PromptEntityAuto)
	}

	raw, err := uc.generate(ctx, domain.KindEntity, withSection(prompt, "TEXT TO ANALYZE:", doc.Analysis))
	if err != nil {
		return nil, err
	}

	entities, ok := llmjson.DecodeObject(raw)
	if !ok {
		uc.logger.Warn("entity output is not json", zap.String("document_id", doc.ID))
		entities = map[string]any{}
	}
	// Requested keys are always present, verbatim.
	for _, field := range fields {
		if _, present := entities[field]; !present {
			entities[field] = nil
		}
	}

	result := &domain.EntityResult{
		ID:        uc.newID(),
		OCRID:     doc.ID,
		Fields:    fields,
		Entities:  entities,
		CreatedAt: uc.now(),
	}
	if err := uc.appendResult(ctx, domain.KindEntity, result.ID, doc.ID, "", string(domain.PhaseSuccess), result.CreatedAt, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (uc *FeatureUseCase) EntityHistory(ctx context.Context, query domain.HistoryQuery) ([]domain.EntityResult, error) {
	return history[domain.EntityResult](ctx, uc.results, domain.KindEntity, query)
}

func cleanFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if isBlank(field) {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		out = append(out, field)
	}
	return out
}

func bulletList(items []string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(item)
	}
	return b.String()
}
