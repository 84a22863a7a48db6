package usecase

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/llmjson"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

func (uc *FeatureUseCase) AnalyzeResume(ctx context.Context, req domain.ResumeRequest) (*domain.ResumeResult, error) {
	if isBlank(req.DocumentID) || isBlank(req.JobDescription) {
		return nil, invalidInput(msgResumeRequired)
	}
	doc, err := loadAnalyzed(ctx, uc.docs, req.DocumentID, msgResumeNotFound, msgResumeNotAnalyzed)
	if err != nil {
		return nil, err
	}

	prompt := uc.prompts.Template(ports.PromptResume) +
		"\n\n=== JOB DESCRIPTION ===\n" + req.JobDescription +
		"\n\n=== RESUME CONTENT ===\n" + doc.Analysis + "\n"

	raw, err := uc.generate(ctx, domain.KindResume, prompt)
	if err != nil {
		return nil, err
	}
	parsed, ok := llmjson.DecodeObject(raw)
	if !ok {
		uc.logger.Warn("resume output is not json", zap.String("document_id", doc.ID))
		parsed = llmjson.ErrorObject(resultParseError, raw)
	}

	profile := objectOrEmpty(parsed["candidate_profile"])
	match := objectOrEmpty(parsed["match_analysis"])
	result := &domain.ResumeResult{
		ID:                uc.newID(),
		OCRID:             doc.ID,
		JobDescription:    req.JobDescription,
		ParsedProfile:     profile,
		MatchResult:       match,
		OverallMatchScore: matchScore(match["overall_match_percentage"]),
		CreatedAt:         uc.now(),
	}
	if err := uc.appendResult(ctx, domain.KindResume, result.ID, doc.ID, "", string(domain.PhaseSuccess), result.CreatedAt, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (uc *FeatureUseCase) ResumeHistory(ctx context.Context, query domain.HistoryQuery) ([]domain.ResumeResult, error) {
	return history[domain.ResumeResult](ctx, uc.results, domain.KindResume, query)
}

func objectOrEmpty(v any) map[string]any {
	if obj, ok := v.(map[string]any); ok {
		return obj
	}
	return map[string]any{}
}

// matchScore accepts numbers and numeric strings such as "85" or "85%".
func matchScore(v any) float64 {
	switch score := v.(type) {
	case float64:
		return score
	case string:
		trimmed := score
		if n := len(trimmed); n > 0 && trimmed[n-1] == '%' {
			trimmed = trimmed[:n-1]
		}
		if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return parsed
		}
	}
	return 0
}
