package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResultKind names a derived-feature history.
type ResultKind string

const (
	KindEntity   ResultKind = "entity"
	KindSummary  ResultKind = "summary"
	KindForm     ResultKind = "form"
	KindCompare  ResultKind = "compare"
	KindIdentity ResultKind = "identity"
	KindResume   ResultKind = "resume"
	KindImage    ResultKind = "image"
)

func (k ResultKind) Valid() bool {
	switch k {
	case KindEntity, KindSummary, KindForm, KindCompare, KindIdentity, KindResume, KindImage:
		return true
	default:
		return false
	}
}

// DerivedRecord is one immutable entry of a feature history. Payload holds
// the feature-specific result as JSON.
type DerivedRecord struct {
	ID                string
	Kind              ResultKind
	DocumentID        string
	RelatedDocumentID string
	Status            string
	Payload           json.RawMessage
	CreatedAt         time.Time
}

type HistoryQuery struct {
	DocumentID string
	Limit      int
}

// NewDerivedRecord marshals a typed result into a history entry.
func NewDerivedRecord(kind ResultKind, id, documentID, relatedID, status string, createdAt time.Time, payload any) (DerivedRecord, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return DerivedRecord{}, fmt.Errorf("marshal %s result: %w", kind, err)
	}
	return DerivedRecord{
		ID:                id,
		Kind:              kind,
		DocumentID:        documentID,
		RelatedDocumentID: relatedID,
		Status:            status,
		Payload:           raw,
		CreatedAt:         createdAt,
	}, nil
}

// DecodePayload unmarshals a history entry back into its typed result.
func DecodePayload[T any](rec DerivedRecord) (T, error) {
	var out T
	if err := json.Unmarshal(rec.Payload, &out); err != nil {
		return out, fmt.Errorf("decode %s result %s: %w", rec.Kind, rec.ID, err)
	}
	return out, nil
}

type EntityResult struct {
	ID        string         `json:"id"`
	OCRID     string         `json:"ocrId"`
	Fields    []string       `json:"fields,omitempty"`
	Entities  map[string]any `json:"entities"`
	CreatedAt time.Time      `json:"createdAt"`
}

type SummaryResult struct {
	ID           string    `json:"id"`
	OCRID        string    `json:"ocrId"`
	Summary      string    `json:"summary"`
	CustomPrompt string    `json:"customPrompt,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type FormMeta struct {
	MissingFields []string `json:"missingFields"`
}

type FormResult struct {
	ID        string         `json:"id"`
	OCRID     string         `json:"ocrId"`
	FormType  string         `json:"formType"`
	FormData  map[string]any `json:"formData"`
	Meta      FormMeta       `json:"meta"`
	CreatedAt time.Time      `json:"createdAt"`
}

type CompareResult struct {
	ID               string         `json:"id"`
	SourceOCRID      string         `json:"sourceOcrId"`
	TargetOCRID      string         `json:"targetOcrId"`
	ComparisonResult map[string]any `json:"comparisonResult"`
	Status           PhaseStatus    `json:"status"`
	CreatedAt        time.Time      `json:"createdAt"`
}

type VerificationStatus string

const (
	VerificationApproved     VerificationStatus = "APPROVED"
	VerificationRejected     VerificationStatus = "REJECTED"
	VerificationManualReview VerificationStatus = "MANUAL_REVIEW"
	VerificationPending      VerificationStatus = "PENDING"
	VerificationFailed       VerificationStatus = "FAILED"
)

type IdentityResult struct {
	ID                 string             `json:"id"`
	DocAID             string             `json:"docA_Id"`
	DocBID             string             `json:"docB_Id"`
	VerificationResult map[string]any     `json:"verificationResult"`
	OverallStatus      VerificationStatus `json:"overallStatus"`
	FraudRisk          string             `json:"fraudRisk"`
	CreatedAt          time.Time          `json:"createdAt"`
}

type ResumeResult struct {
	ID                string    `json:"id"`
	OCRID             string    `json:"ocrId"`
	JobDescription    string    `json:"jobDescription"`
	ParsedProfile     any       `json:"parsedProfile"`
	MatchResult       any       `json:"matchResult"`
	OverallMatchScore float64   `json:"overallMatchScore"`
	CreatedAt         time.Time `json:"createdAt"`
}

type ImageResult struct {
	ID        string    `json:"id"`
	OCRID     string    `json:"ocrId"`
	ImageURL  string    `json:"imageUrl"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"createdAt"`
}
