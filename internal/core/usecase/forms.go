package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/llmjson"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

const defaultFormType = "custom"

type formOutput struct {
	FormData      map[string]any `json:"form_data"`
	MissingFields []string       `json:"missing_fields"`
}

func (uc *FeatureUseCase) FillForm(ctx context.Context, req domain.FormRequest) (*domain.FormResult, error) {
	if isBlank(req.DocumentID) {
		return nil, invalidInput(msgOCRIDRequired)
	}
	if req.Schema == nil {
		return nil, invalidInput(msgSchemaRequired)
	}
	doc, err := loadAnalyzed(ctx, uc.docs, req.DocumentID, msgRecordNotFound, msgAnalysisMissing)
	if err != nil {
		return nil, err
	}

	schema, err := json.MarshalIndent(req.Schema, "", "  ")
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode form schema", err)
	}
	prompt := uc.prompts.Render(ports.PromptFormFill, map[string]string{"SCHEMA": string(schema)})

	uc.logger.Info("form filling", zap.String("document_id", doc.ID))
	raw, err := uc.generate(ctx, domain.KindForm, withSection(prompt, "TEXT TO MAP:", doc.Analysis))
	if err != nil {
		return nil, err
	}

	var out formOutput
	if value, ok := llmjson.DecodeObject(raw); ok {
		if !remarshal(value, &out) {
			uc.logger.Warn("form output has unexpected shape", zap.String("document_id", doc.ID))
		}
	} else {
		uc.logger.Warn("form output is not json", zap.String("document_id", doc.ID))
	}
	if out.FormData == nil {
		out.FormData = map[string]any{}
	}
	if out.MissingFields == nil {
		out.MissingFields = []string{}
	}

	formType := req.FormType
	if isBlank(formType) {
		formType = defaultFormType
	}
	result := &domain.FormResult{
		ID:        uc.newID(),
		OCRID:     doc.ID,
		FormType:  formType,
		FormData:  out.FormData,
		Meta:      domain.FormMeta{MissingFields: out.MissingFields},
		CreatedAt: uc.now(),
	}
	if err := uc.appendResult(ctx, domain.KindForm, result.ID, doc.ID, "", string(domain.PhaseSuccess), result.CreatedAt, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (uc *FeatureUseCase) FormHistory(ctx context.Context, query domain.HistoryQuery) ([]domain.FormResult, error) {
	items, err := history[domain.FormResult](ctx, uc.results, domain.KindForm, query)
	if err != nil {
		return nil, fmt.Errorf("form history: %w", err)
	}
	return items, nil
}
