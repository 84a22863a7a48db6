package domain

import "time"

type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobSuccess JobStatus = "SUCCESS"
	JobFailed  JobStatus = "FAILED"
)

// EnrichmentJob is the queued background phase of an analysis.
type EnrichmentJob struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"documentId"`
	StorageKey string     `json:"storageKey,omitempty"`
	MimeType   string     `json:"mimeType"`
	FileRef    *FileRef   `json:"fileRef,omitempty"`
	Status     JobStatus  `json:"status"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

func (j *EnrichmentJob) Done() bool {
	return j.Status == JobSuccess || j.Status == JobFailed
}
