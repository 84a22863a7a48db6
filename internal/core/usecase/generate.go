package usecase

import (
	"context"
	"fmt"
)

func (uc *FeatureUseCase) GenerateFromPrompt(ctx context.Context, prompt string) (string, error) {
	if isBlank(prompt) {
		return "", invalidInput(msgPromptRequired)
	}
	text, err := uc.gen.GenerateText(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate text: %w", err)
	}
	return text, nil
}
