package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type docRepoFake struct {
	mu          sync.Mutex
	docs        map[string]*domain.Document
	getErr      error
	saveErr     error
	created     []*domain.Document
	uploads     []domain.PhaseStatus
	phase1      []domain.Phase1Result
	enrichments []domain.EnrichmentResult
	ragStatuses []domain.PhaseStatus
	listQuery   domain.ListQuery
	listTotal   int
}

func newDocRepoFake(docs ...*domain.Document) *docRepoFake {
	f := &docRepoFake{docs: map[string]*domain.Document{}}
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return f
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	f.created = append(f.created, &copyDoc)
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docRepoFake) List(_ context.Context, query domain.ListQuery) ([]domain.Document, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listQuery = query
	out := make([]domain.Document, 0, len(f.docs))
	for _, doc := range f.docs {
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, f.listTotal, nil
}

func (f *docRepoFake) UpdateUploadStatus(_ context.Context, id string, status domain.PhaseStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, status)
	if doc, ok := f.docs[id]; ok {
		doc.Status.Upload = status
	}
	return nil
}

func (f *docRepoFake) SavePhase1(_ context.Context, id string, result domain.Phase1Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phase1 = append(f.phase1, result)
	if doc, ok := f.docs[id]; ok {
		doc.Analysis = result.Analysis
		doc.Metadata = result.Metadata
		doc.Status.VisualProcessing = result.Status
		doc.Status.Overall = result.Overall
		doc.Status.RAG = result.RAG
		doc.Timing = result.Timing
	}
	return nil
}

func (f *docRepoFake) SaveEnrichment(_ context.Context, id string, result domain.EnrichmentResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.enrichments = append(f.enrichments, result)
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "save enrichment", errors.New(id))
	}
	if result.Mindmap != "" {
		doc.Mindmap = result.Mindmap
	}
	doc.Status.Enrichment = result.Enrichment
	if result.PromoteOverall && doc.Status.VisualProcessing == domain.PhaseSuccess {
		doc.Status.Overall = domain.PhaseSuccess
	}
	return nil
}

func (f *docRepoFake) UpdateRAGStatus(_ context.Context, id string, status domain.PhaseStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ragStatuses = append(f.ragStatuses, status)
	if doc, ok := f.docs[id]; ok {
		doc.Status.RAG = status
	}
	return nil
}

type resultRepoFake struct {
	mu        sync.Mutex
	records   []domain.DerivedRecord
	appendErr error
	lastQuery domain.HistoryQuery
}

func (f *resultRepoFake) Append(_ context.Context, rec domain.DerivedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *resultRepoFake) Latest(_ context.Context, kind domain.ResultKind, documentID string) (*domain.DerivedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.records) - 1; i >= 0; i-- {
		rec := f.records[i]
		if rec.Kind == kind && rec.DocumentID == documentID {
			return &rec, nil
		}
	}
	return nil, nil
}

func (f *resultRepoFake) List(_ context.Context, kind domain.ResultKind, query domain.HistoryQuery) ([]domain.DerivedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = query
	var out []domain.DerivedRecord
	for i := len(f.records) - 1; i >= 0; i-- {
		rec := f.records[i]
		if rec.Kind != kind {
			continue
		}
		if query.DocumentID != "" && rec.DocumentID != query.DocumentID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

type jobStoreFake struct {
	mu        sync.Mutex
	jobs      map[string]*domain.EnrichmentJob
	createErr error
	finished  map[string]domain.JobStatus
	messages  map[string]string
}

func newJobStoreFake() *jobStoreFake {
	return &jobStoreFake{
		jobs:     map[string]*domain.EnrichmentJob{},
		finished: map[string]domain.JobStatus{},
		messages: map[string]string{},
	}
}

func (f *jobStoreFake) CreateJob(_ context.Context, job *domain.EnrichmentJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyJob := *job
	f.jobs[job.ID] = &copyJob
	return nil
}

func (f *jobStoreFake) MarkRunning(_ context.Context, id string) (*domain.EnrichmentJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrJobNotFound, "mark running", errors.New(id))
	}
	job.Status = domain.JobRunning
	job.Attempts++
	copyJob := *job
	return &copyJob, nil
}

func (f *jobStoreFake) FinishJob(_ context.Context, id string, status domain.JobStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[id] = status
	f.messages[id] = errMessage
	job, ok := f.jobs[id]
	if !ok {
		return domain.WrapError(domain.ErrJobNotFound, "finish job", errors.New(id))
	}
	job.Status = status
	job.Error = errMessage
	return nil
}

func (f *jobStoreFake) GetJob(_ context.Context, id string) (*domain.EnrichmentJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrJobNotFound, "get job", errors.New(id))
	}
	copyJob := *job
	return &copyJob, nil
}

func (f *jobStoreFake) ListJobsByDocument(_ context.Context, documentID string) ([]domain.EnrichmentJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.EnrichmentJob
	for _, job := range f.jobs {
		if job.DocumentID == documentID {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveErr error
	deleted []string
}

func newStorageFake() *storageFake {
	return &storageFake{objects: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type queueFake struct {
	jobs []domain.EnrichmentJob
	err  error
}

func (f *queueFake) Enqueue(_ context.Context, job domain.EnrichmentJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type extractorFake struct {
	textual bool
	text    string
	err     error
	pages   int
}

func (f *extractorFake) Supports(string, string) bool { return f.textual }

func (f *extractorFake) Extract(context.Context, string, string, []byte) (string, error) {
	return f.text, f.err
}

func (f *extractorFake) PageCount(string, []byte) int { return f.pages }

type mimeFake struct {
	mimeType string
}

func (f mimeFake) DetectMIME(declared, _ string, _ []byte) string {
	if f.mimeType != "" {
		return f.mimeType
	}
	return declared
}

// genFake answers prompts by substring rules, in order.
type genFake struct {
	mu          sync.Mutex
	rules       []genRule
	fallback    string
	err         error
	image       string
	embedErr    error
	prompts     []string
	files       []*domain.FileRef
	uploads     []string
	released    []string
	embedCalls  int
	textCalls   int
	uploadErr   error
	vectorForFn func(text string) []float32
}

type genRule struct {
	contains string
	reply    string
}

func (f *genFake) GenerateText(ctx context.Context, prompt string) (string, error) {
	return f.GenerateMultimodal(ctx, prompt, nil)
}

func (f *genFake) GenerateMultimodal(_ context.Context, prompt string, file *domain.FileRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls++
	f.prompts = append(f.prompts, prompt)
	f.files = append(f.files, file)
	if f.err != nil {
		return "", f.err
	}
	for _, rule := range f.rules {
		if strings.Contains(prompt, rule.contains) {
			return rule.reply, nil
		}
	}
	return f.fallback, nil
}

func (f *genFake) UploadFile(_ context.Context, name, mimeType string, _ io.Reader) (domain.FileRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return domain.FileRef{}, f.uploadErr
	}
	f.uploads = append(f.uploads, name)
	return domain.FileRef{URI: "files/" + name, MimeType: mimeType}, nil
}

func (f *genFake) ReleaseFile(_ context.Context, ref domain.FileRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, ref.URI)
	return nil
}

func (f *genFake) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	if f.vectorForFn != nil {
		return f.vectorForFn(text), nil
	}
	return []float32{1, 0}, nil
}

func (f *genFake) GenerateImage(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.image, nil
}

// promptFake renders templates named "<name>" with {{KEY}} substitution.
type promptFake struct{}

func (promptFake) Template(name string) string {
	return "[" + name + "]"
}

func (p promptFake) Render(name string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := p.Template(name)
	for _, key := range keys {
		out += "\n" + key + "=" + vars[key]
	}
	return out
}

type featureObserverFake struct {
	mu      sync.Mutex
	results []string
}

func (f *featureObserverFake) RecordFeatureResult(kind string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	f.results = append(f.results, kind+":"+outcome)
}

func analyzedDoc(id, analysis string) *domain.Document {
	return &domain.Document{
		ID:           id,
		OriginalName: id + ".txt",
		Analysis:     analysis,
		Metadata:     domain.Metadata{Title: "Title " + id},
		Timing:       domain.Timing{StartTime: fixedNow.Add(-time.Minute)},
		Status: domain.DocumentStatus{
			Upload:           domain.PhaseSuccess,
			VisualProcessing: domain.PhaseSuccess,
			Enrichment:       domain.PhasePending,
			RAG:              domain.PhasePending,
			Overall:          domain.PhasePending,
		},
		CreatedAt: fixedNow.Add(-time.Minute),
	}
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}

type vectorFake struct {
	mu       sync.Mutex
	points   map[string]domain.Chunk
	upserts  int
	matches  []domain.RetrievedChunk
	filters  []domain.VectorFilter
	queryErr error
}

func newVectorFake() *vectorFake {
	return &vectorFake{points: map[string]domain.Chunk{}}
}

func (f *vectorFake) Upsert(_ context.Context, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	for _, chunk := range chunks {
		f.points[chunk.ID] = chunk
	}
	return nil
}

// Query returns the configured matches, or every stored point of the
// filtered document in index order.
func (f *vectorFake) Query(_ context.Context, _ []float32, topK int, filter domain.VectorFilter) ([]domain.RetrievedChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.matches != nil {
		return f.matches, nil
	}
	var out []domain.RetrievedChunk
	for _, chunk := range f.points {
		if filter.DocumentID != "" && chunk.DocumentID != filter.DocumentID {
			continue
		}
		out = append(out, domain.RetrievedChunk{ID: chunk.ID, DocumentID: chunk.DocumentID, ChunkIndex: chunk.Index, Text: chunk.Text, Score: 0.9})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

type chunkerFake struct{}

// Split cuts on blank lines.
func (chunkerFake) Split(text string) []string {
	var out []string
	for _, part := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(part) != "" {
			out = append(out, part)
		}
	}
	return out
}
