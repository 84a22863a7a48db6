package usecase

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/llmjson"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

func (uc *FeatureUseCase) Compare(ctx context.Context, req domain.CompareRequest) (*domain.CompareResult, error) {
	if isBlank(req.SourceID) || isBlank(req.TargetID) {
		return nil, invalidInput(msgCompareIDsRequired)
	}
	source, target, err := uc.loadPair(ctx, req.SourceID, req.TargetID, msgCompareNotFound)
	if err != nil {
		return nil, err
	}
	if !source.Analyzed() || !target.Analyzed() {
		return nil, domain.NewError(domain.ErrNotAnalyzed, msgCompareNotAnalyzed)
	}

	prompt := uc.prompts.Template(ports.PromptCompare) +
		"\n\n=== SOURCE DOCUMENT (Original) ===\n" + source.Analysis +
		"\n\n=== TARGET DOCUMENT (New) ===\n" + target.Analysis + "\n"

	raw, err := uc.generate(ctx, domain.KindCompare, prompt)
	if err != nil {
		return nil, err
	}
	comparison, ok := llmjson.DecodeObject(raw)
	if !ok {
		uc.logger.Warn("comparison output is not json", zap.String("source_id", source.ID), zap.String("target_id", target.ID))
		comparison = llmjson.ErrorObject(compareParseError, raw)
	}

	result := &domain.CompareResult{
		ID:               uc.newID(),
		SourceOCRID:      source.ID,
		TargetOCRID:      target.ID,
		ComparisonResult: comparison,
		Status:           domain.PhaseSuccess,
		CreatedAt:        uc.now(),
	}
	if err := uc.appendResult(ctx, domain.KindCompare, result.ID, source.ID, target.ID, string(result.Status), result.CreatedAt, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (uc *FeatureUseCase) CompareHistory(ctx context.Context, query domain.HistoryQuery) ([]domain.CompareResult, error) {
	return history[domain.CompareResult](ctx, uc.results, domain.KindCompare, query)
}

// loadPair fetches two records concurrently. Either one missing yields the
// same not-found message.
func (uc *FeatureUseCase) loadPair(ctx context.Context, idA, idB, notFound string) (*domain.Document, *domain.Document, error) {
	var a, b *domain.Document
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := loadDocument(gctx, uc.docs, idA, notFound)
		a = doc
		return err
	})
	g.Go(func() error {
		doc, err := loadDocument(gctx, uc.docs, idB, notFound)
		b = doc
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}
