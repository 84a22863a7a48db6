package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

// FeatureUseCase runs the derived features: each one reads analysed
// records, prompts the model and appends its result to a history.
type FeatureUseCase struct {
	docs     ports.DocumentRepository
	results  ports.ResultRepository
	gen      ports.GenerationGateway
	prompts  ports.PromptStore
	storage  ports.ObjectStorage
	observer ports.FeatureObserver
	logger   *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewFeatureUseCase(
	docs ports.DocumentRepository,
	results ports.ResultRepository,
	gen ports.GenerationGateway,
	prompts ports.PromptStore,
	storage ports.ObjectStorage,
	observer ports.FeatureObserver,
	logger *zap.Logger,
) *FeatureUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeatureUseCase{
		docs:     docs,
		results:  results,
		gen:      gen,
		prompts:  prompts,
		storage:  storage,
		observer: observer,
		logger:   logger,
		now:      utcNow,
		newID:    newUUID,
	}
}

// appendResult stores a finished result. The observer sees the outcome of
// the whole feature call, including the append.
func (uc *FeatureUseCase) appendResult(
	ctx context.Context,
	kind domain.ResultKind,
	id, documentID, relatedID, status string,
	createdAt time.Time,
	payload any,
) error {
	rec, err := domain.NewDerivedRecord(kind, id, documentID, relatedID, status, createdAt, payload)
	if err == nil {
		err = uc.results.Append(ctx, rec)
	}
	if err != nil {
		err = fmt.Errorf("append %s result: %w", kind, err)
	}
	uc.observe(kind, err)
	return err
}

func (uc *FeatureUseCase) observe(kind domain.ResultKind, err error) {
	if uc.observer != nil {
		uc.observer.RecordFeatureResult(string(kind), err)
	}
}

// generate calls the model and reports a failure against the feature kind.
func (uc *FeatureUseCase) generate(ctx context.Context, kind domain.ResultKind, prompt string) (string, error) {
	raw, err := uc.gen.GenerateText(ctx, prompt)
	if err != nil {
		uc.observe(kind, err)
		return "", fmt.Errorf("generate %s: %w", kind, err)
	}
	return raw, nil
}
