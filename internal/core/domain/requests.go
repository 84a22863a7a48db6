package domain

import "io"

// UploadInput is an incoming file for analysis.
type UploadInput struct {
	OriginalName string
	MimeType     string
	Size         int64
	Body         io.Reader
}

// AnalysisOutcome is returned once the synchronous phase finished.
type AnalysisOutcome struct {
	ID       string         `json:"id"`
	Status   DocumentStatus `json:"status"`
	Timing   Timing         `json:"timing"`
	Metadata Metadata       `json:"metadata"`
	Analysis string         `json:"analysis"`
	JobID    string         `json:"jobId,omitempty"`
}

type EntityRequest struct {
	DocumentID string
	Fields     []string
}

type SummaryRequest struct {
	DocumentID string
	Prompt     string
}

type FormRequest struct {
	DocumentID string
	Schema     map[string]any
	FormType   string
}

type CompareRequest struct {
	SourceID string
	TargetID string
}

type IdentityRequest struct {
	DocAID string
	DocBID string
}

type ResumeRequest struct {
	DocumentID     string
	JobDescription string
}
