package usecase

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/llmjson"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

const defaultFraudRisk = "LOW"

func (uc *FeatureUseCase) Verify(ctx context.Context, req domain.IdentityRequest) (*domain.IdentityResult, error) {
	if isBlank(req.DocAID) || isBlank(req.DocBID) {
		return nil, invalidInput(msgIdentityRequired)
	}
	docA, docB, err := uc.loadPair(ctx, req.DocAID, req.DocBID, msgIdentityNotFound)
	if err != nil {
		return nil, err
	}
	if !docA.Analyzed() || !docB.Analyzed() {
		return nil, domain.NewError(domain.ErrNotAnalyzed, msgIdentityNotReady)
	}

	prompt := uc.prompts.Template(ports.PromptIdentity) +
		identitySection("=== DOCUMENT A DATA ===", docA) +
		identitySection("=== DOCUMENT B DATA ===", docB) +
		"\n\n" + uc.prompts.Template(ports.PromptIdentityNote)

	raw, err := uc.generate(ctx, domain.KindIdentity, prompt)
	if err != nil {
		return nil, err
	}

	verification, ok := llmjson.DecodeObject(raw)
	status, risk := domain.VerificationFailed, defaultFraudRisk
	if ok {
		status, risk = identityVerdict(verification)
	} else {
		uc.logger.Warn("identity output is not json", zap.String("doc_a", docA.ID), zap.String("doc_b", docB.ID))
		verification = llmjson.ErrorObject(resultParseError, raw)
	}

	result := &domain.IdentityResult{
		ID:                 uc.newID(),
		DocAID:             docA.ID,
		DocBID:             docB.ID,
		VerificationResult: verification,
		OverallStatus:      status,
		FraudRisk:          risk,
		CreatedAt:          uc.now(),
	}
	if err := uc.appendResult(ctx, domain.KindIdentity, result.ID, docA.ID, docB.ID, string(status), result.CreatedAt, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (uc *FeatureUseCase) IdentityHistory(ctx context.Context, query domain.HistoryQuery) ([]domain.IdentityResult, error) {
	return history[domain.IdentityResult](ctx, uc.results, domain.KindIdentity, query)
}

func identitySection(heading string, doc *domain.Document) string {
	meta, _ := json.Marshal(doc.Metadata)
	return "\n\n" + heading + "\n" + doc.Analysis + "\nMetadata: " + string(meta)
}

// identityVerdict reads 1_document_summary. Without it the verdict stays
// PENDING.
func identityVerdict(verification map[string]any) (domain.VerificationStatus, string) {
	summary, ok := verification["1_document_summary"].(map[string]any)
	if !ok {
		return domain.VerificationPending, defaultFraudRisk
	}

	status := domain.VerificationManualReview
	switch verdict, _ := summary["final_verdict"].(string); verdict {
	case "matched":
		status = domain.VerificationApproved
	case "mismatched":
		status = domain.VerificationRejected
	}

	risk := defaultFraudRisk
	if level, _ := summary["fraud_risk_level"].(string); level != "" {
		risk = strings.ToUpper(level)
	}
	return status, risk
}
