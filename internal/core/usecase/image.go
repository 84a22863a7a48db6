package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

const (
	generatedPrefix   = "generated/"
	filesRoute        = "/api/files/"
	imageContentLimit = 1000
)

func (uc *FeatureUseCase) GenerateDocumentImage(ctx context.Context, documentID string) (*domain.ImageResult, error) {
	if isBlank(documentID) {
		return nil, invalidInput(msgOCRIDRequired)
	}
	doc, err := loadAnalyzed(ctx, uc.docs, documentID, msgRecordNotFound, msgImageNoAnalysis)
	if err != nil {
		return nil, err
	}

	content, err := uc.imageContent(ctx, doc)
	if err != nil {
		return nil, err
	}
	prompt := uc.prompts.Render(ports.PromptImageDocument, map[string]string{"CONTENT": content})

	encoded, err := uc.gen.GenerateImage(ctx, prompt)
	if err != nil {
		uc.observe(domain.KindImage, err)
		return nil, fmt.Errorf("generate image: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		err = domain.WrapError(domain.ErrTemporary, "decode generated image", err)
		uc.observe(domain.KindImage, err)
		return nil, err
	}

	id := uc.newID()
	key := generatedPrefix + id + ".png"
	if err := uc.storage.Save(ctx, key, bytes.NewReader(data)); err != nil {
		uc.observe(domain.KindImage, err)
		return nil, fmt.Errorf("store generated image: %w", err)
	}
	uc.logger.Info("document image generated", zap.String("document_id", doc.ID), zap.String("key", key))

	result := &domain.ImageResult{
		ID:        id,
		OCRID:     doc.ID,
		ImageURL:  filesRoute + key,
		Prompt:    prompt,
		CreatedAt: uc.now(),
	}
	if err := uc.appendResult(ctx, domain.KindImage, result.ID, doc.ID, "", string(domain.PhaseSuccess), result.CreatedAt, result); err != nil {
		return nil, err
	}
	return result, nil
}

// imageContent prefers the latest entity extraction over raw analysis.
func (uc *FeatureUseCase) imageContent(ctx context.Context, doc *domain.Document) (string, error) {
	rec, err := uc.results.Latest(ctx, domain.KindEntity, doc.ID)
	if err != nil {
		return "", fmt.Errorf("latest entities for %s: %w", doc.ID, err)
	}
	if rec != nil {
		entity, err := domain.DecodePayload[domain.EntityResult](*rec)
		if err != nil {
			return "", err
		}
		if len(entity.Entities) > 0 {
			return "Structured Details: " + entityProjection(entity.Entities) + ".", nil
		}
	}
	return "Content: " + truncateRunes(doc.Analysis, imageContentLimit), nil
}

func entityProjection(entities map[string]any) string {
	keys := make([]string, 0, len(entities))
	for key := range entities {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, strings.ReplaceAll(key, "_", " ")+": "+displayValue(entities[key]))
	}
	return strings.Join(parts, ", ")
}

func displayValue(v any) string {
	switch value := v.(type) {
	case nil:
		return "null"
	case string:
		return value
	case []any:
		items := make([]string, 0, len(value))
		for _, item := range value {
			items = append(items, displayValue(item))
		}
		return strings.Join(items, ",")
	case map[string]any:
		raw, _ := json.Marshal(value)
		return string(raw)
	default:
		return fmt.Sprint(value)
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
