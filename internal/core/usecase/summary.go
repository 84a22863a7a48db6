package usecase

import (
	"context"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

func (uc *FeatureUseCase) Summarize(ctx context.Context, req domain.SummaryRequest) (*domain.SummaryResult, error) {
	if isBlank(req.DocumentID) {
		return nil, invalidInput(msgOCRIDRequired)
	}
	doc, err := loadAnalyzed(ctx, uc.docs, req.DocumentID, msgRecordNotFound, msgAnalysisMissing)
	if err != nil {
		return nil, err
	}

	prompt := req.Prompt
	if isBlank(prompt) {
		prompt = uc.prompts.Template(ports.PromptSummaryAuto)
	}
	summary, err := uc.generate(ctx, domain.KindSummary, withSection(prompt, "TEXT TO SUMMARIZE:", doc.Analysis))
	if err != nil {
		return nil, err
	}

	result := &domain.SummaryResult{
		ID:        uc.newID(),
		OCRID:     doc.ID,
		Summary:   summary,
		CreatedAt: uc.now(),
	}
	if !isBlank(req.Prompt) {
		result.CustomPrompt = req.Prompt
	}
	if err := uc.appendResult(ctx, domain.KindSummary, result.ID, doc.ID, "", string(domain.PhaseSuccess), result.CreatedAt, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (uc *FeatureUseCase) SummaryHistory(ctx context.Context, query domain.HistoryQuery) ([]domain.SummaryResult, error) {
	return history[domain.SummaryResult](ctx, uc.results, domain.KindSummary, query)
}
