package domain

import "time"

// PhaseStatus is the state of one processing phase of a document.
type PhaseStatus string

const (
	PhasePending PhaseStatus = "PENDING"
	PhaseSuccess PhaseStatus = "SUCCESS"
	PhaseFailed  PhaseStatus = "FAILED"
	// PhaseSkipped is only used by the rag phase.
	PhaseSkipped PhaseStatus = "SKIPPED"
)

func (s PhaseStatus) Terminal() bool {
	return s == PhaseSuccess || s == PhaseFailed || s == PhaseSkipped
}

type DocumentStatus struct {
	Upload           PhaseStatus `json:"upload"`
	VisualProcessing PhaseStatus `json:"visualProcessing"`
	Enrichment       PhaseStatus `json:"enrichment"`
	RAG              PhaseStatus `json:"rag"`
	Overall          PhaseStatus `json:"overall"`
}

func NewPendingStatus() DocumentStatus {
	return DocumentStatus{
		Upload:           PhasePending,
		VisualProcessing: PhasePending,
		Enrichment:       PhasePending,
		RAG:              PhasePending,
		Overall:          PhasePending,
	}
}

type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
}

// Timing holds wall-clock bounds of processing. Duration is in milliseconds.
type Timing struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Duration  *int64     `json:"duration,omitempty"`
}

// Finish stamps the end time and duration.
func (t *Timing) Finish(end time.Time) {
	ms := end.Sub(t.StartTime).Milliseconds()
	t.EndTime = &end
	t.Duration = &ms
}

// Document is the aggregation root for an uploaded file.
type Document struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	OriginalName string         `json:"originalName"`
	MimeType     string         `json:"mimetype"`
	Size         int64          `json:"size"`
	PageCount    int            `json:"pageCount,omitempty"`
	Analysis     string         `json:"analysis"`
	Metadata     Metadata       `json:"metadata"`
	Mindmap      string         `json:"mindmap"`
	Timing       Timing         `json:"timing"`
	Status       DocumentStatus `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func (d *Document) Analyzed() bool {
	return d != nil && d.Analysis != ""
}

// DocumentView is a record plus the latest derived results for it.
type DocumentView struct {
	Document
	EntityResult map[string]any `json:"entityResult,omitempty"`
	Summary      string         `json:"summary,omitempty"`
}

// DocumentStatusView is the polling projection of a record.
type DocumentStatusView struct {
	ID        string         `json:"id"`
	Status    DocumentStatus `json:"status"`
	Timing    Timing         `json:"timing"`
	Filename  string         `json:"filename"`
	CreatedAt time.Time      `json:"createdAt"`
	Job       *EnrichmentJob `json:"job,omitempty"`
}

// Phase1Result is what the synchronous analysis phase writes back.
type Phase1Result struct {
	Analysis  string
	Metadata  Metadata
	PageCount int
	Status    PhaseStatus
	Overall   PhaseStatus
	RAG       PhaseStatus
	Timing    Timing
}

// EnrichmentResult is what the background phase writes back.
type EnrichmentResult struct {
	Mindmap    string
	Enrichment PhaseStatus
	// PromoteOverall sets overall=SUCCESS, and restamps the end of timing,
	// when visual processing already succeeded.
	PromoteOverall bool
	FinishedAt     time.Time
}

type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

type ListQuery struct {
	Page   int
	Limit  int
	Search string
	Order  SortOrder
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Normalize clamps page and limit to at least 1.
func (q ListQuery) Normalize() ListQuery {
	out := q
	if out.Page < 1 {
		out.Page = 1
	}
	if out.Limit < 1 {
		out.Limit = DefaultPageLimit
	}
	if out.Limit > MaxPageLimit {
		out.Limit = MaxPageLimit
	}
	if out.Order != SortAsc {
		out.Order = SortDesc
	}
	return out
}

func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

func NewPagination(total int, q ListQuery) Pagination {
	pages := 0
	if q.Limit > 0 {
		pages = (total + q.Limit - 1) / q.Limit
	}
	return Pagination{Total: total, Page: q.Page, Limit: q.Limit, TotalPages: pages}
}

type DocumentPage struct {
	Data       []Document `json:"data"`
	Pagination Pagination `json:"pagination"`
}
