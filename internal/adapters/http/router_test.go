package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirillkom/document-intelligence/internal/config"
	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// servicesFake implements every inbound port plus object storage.
type servicesFake struct {
	err error

	upload    domain.UploadInput
	uploaded  string
	listQuery domain.ListQuery
	search    [2]string
	chatTurns []domain.ChatTurn
	history   domain.HistoryQuery
	answer    *domain.Answer
	files     map[string]string
}

func (f *servicesFake) Analyze(_ context.Context, input domain.UploadInput) (*domain.AnalysisOutcome, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, _ := io.ReadAll(input.Body)
	f.upload = input
	f.uploaded = string(raw)
	return &domain.AnalysisOutcome{ID: "doc-1", Analysis: "analysis", JobID: "job-1"}, nil
}

func (f *servicesFake) GetDocument(_ context.Context, id string) (*domain.DocumentView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.DocumentView{Document: domain.Document{ID: id}, Summary: "short"}, nil
}

func (f *servicesFake) GetStatus(_ context.Context, id string) (*domain.DocumentStatusView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.DocumentStatusView{ID: id, Status: domain.NewPendingStatus()}, nil
}

func (f *servicesFake) ListDocuments(_ context.Context, q domain.ListQuery) (*domain.DocumentPage, error) {
	f.listQuery = q
	return &domain.DocumentPage{Data: []domain.Document{}}, f.err
}

func (f *servicesFake) GetJob(_ context.Context, id string) (*domain.EnrichmentJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.EnrichmentJob{ID: id, Status: domain.JobSuccess}, nil
}

func (f *servicesFake) ListJobs(context.Context, string) ([]domain.EnrichmentJob, error) {
	return []domain.EnrichmentJob{}, f.err
}

func (f *servicesFake) EnsureIngested(context.Context, string) error { return f.err }

func (f *servicesFake) Search(_ context.Context, documentID, query string) (*domain.Answer, error) {
	f.search = [2]string{documentID, query}
	return f.answer, f.err
}

func (f *servicesFake) Chat(_ context.Context, _ string, _ string, turns []domain.ChatTurn) (*domain.Answer, error) {
	f.chatTurns = turns
	return f.answer, f.err
}

func (f *servicesFake) ExtractEntities(_ context.Context, req domain.EntityRequest) (*domain.EntityResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.EntityResult{OCRID: req.DocumentID, Fields: req.Fields, Entities: map[string]any{}}, nil
}

func (f *servicesFake) EntityHistory(_ context.Context, q domain.HistoryQuery) ([]domain.EntityResult, error) {
	f.history = q
	return []domain.EntityResult{}, f.err
}

func (f *servicesFake) Summarize(context.Context, domain.SummaryRequest) (*domain.SummaryResult, error) {
	return &domain.SummaryResult{}, f.err
}

func (f *servicesFake) SummaryHistory(context.Context, domain.HistoryQuery) ([]domain.SummaryResult, error) {
	return nil, f.err
}

func (f *servicesFake) FillForm(_ context.Context, req domain.FormRequest) (*domain.FormResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.FormResult{OCRID: req.DocumentID, FormType: req.FormType, FormData: req.Schema}, nil
}

func (f *servicesFake) FormHistory(context.Context, domain.HistoryQuery) ([]domain.FormResult, error) {
	return nil, f.err
}

func (f *servicesFake) Compare(context.Context, domain.CompareRequest) (*domain.CompareResult, error) {
	return &domain.CompareResult{}, f.err
}

func (f *servicesFake) CompareHistory(context.Context, domain.HistoryQuery) ([]domain.CompareResult, error) {
	return nil, f.err
}

func (f *servicesFake) Verify(context.Context, domain.IdentityRequest) (*domain.IdentityResult, error) {
	return &domain.IdentityResult{}, f.err
}

func (f *servicesFake) IdentityHistory(context.Context, domain.HistoryQuery) ([]domain.IdentityResult, error) {
	return nil, f.err
}

func (f *servicesFake) AnalyzeResume(context.Context, domain.ResumeRequest) (*domain.ResumeResult, error) {
	return &domain.ResumeResult{}, f.err
}

func (f *servicesFake) ResumeHistory(context.Context, domain.HistoryQuery) ([]domain.ResumeResult, error) {
	return nil, f.err
}

func (f *servicesFake) GenerateDocumentImage(context.Context, string) (*domain.ImageResult, error) {
	return &domain.ImageResult{}, f.err
}

func (f *servicesFake) GenerateFromPrompt(_ context.Context, prompt string) (string, error) {
	return "echo: " + prompt, f.err
}

func (f *servicesFake) Save(context.Context, string, io.Reader) error { return nil }

func (f *servicesFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := f.files[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrObjectNotFound, "open", errors.New(key))
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *servicesFake) Delete(context.Context, string) error { return nil }

func newTestHandler(t *testing.T, cfg config.Config, fake *servicesFake) http.Handler {
	t.Helper()
	rt, err := NewRouter(cfg, Services{
		Analyzer:  fake,
		Documents: fake,
		Jobs:      fake,
		QA:        fake,
		Entities:  fake,
		Summaries: fake,
		Forms:     fake,
		Compare:   fake,
		Identity:  fake,
		Resume:    fake,
		Images:    fake,
		Generator: fake,
		Files:     fake,
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return rt.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	var env envelope
	if strings.HasPrefix(res.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(res.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v (%s)", err, res.Body.String())
		}
	}
	return res, env
}

func TestHealthEndpoint(t *testing.T) {
	res, env := doJSON(t, newTestHandler(t, config.Config{}, &servicesFake{}), http.MethodGet, "/health", nil)
	if res.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected healthy envelope, got %d %+v", res.Code, env)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestAnalyzeRequiresFile(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &servicesFake{})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("note", "no file here")
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/ocr/analyze", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "File is required") {
		t.Fatalf("unexpected body: %s", res.Body.String())
	}
}

func TestAnalyzeUploadsMultipartFile(t *testing.T) {
	fake := &servicesFake{}
	handler := newTestHandler(t, config.Config{MaxUploadBytes: 1 << 20}, fake)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "invoice.txt")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	_, _ = part.Write([]byte("Invoice #123"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/ocr/analyze", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if fake.upload.OriginalName != "invoice.txt" || fake.uploaded != "Invoice #123" {
		t.Fatalf("unexpected upload: %+v %q", fake.upload, fake.uploaded)
	}
	if !strings.Contains(res.Body.String(), `"message":"File analyzed successfully"`) {
		t.Fatalf("unexpected body: %s", res.Body.String())
	}
}

func TestDomainErrorsMapToEnvelope(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", domain.NewError(domain.ErrDocumentNotFound, "OCR Record not found"), http.StatusNotFound, "OCR Record not found"},
		{"job not found", domain.NewError(domain.ErrJobNotFound, "Job not found"), http.StatusNotFound, "Job not found"},
		{"not analyzed", domain.NewError(domain.ErrNotAnalyzed, "Analysis text not found."), http.StatusBadRequest, "Analysis text not found."},
		{"temporary", domain.WrapError(domain.ErrTemporary, "enqueue", errors.New("queue full")), http.StatusServiceUnavailable, "Service temporarily unavailable"},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, "Something went wrong"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(t, config.Config{}, &servicesFake{err: tc.err})
			res, env := doJSON(t, handler, http.MethodGet, "/api/ocr/status/doc-1", nil)
			if res.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, res.Code)
			}
			if env.Success || env.Message != tc.message {
				t.Fatalf("unexpected envelope: %+v", env)
			}
		})
	}
}

func TestListDocumentsPassesQuery(t *testing.T) {
	fake := &servicesFake{}
	handler := newTestHandler(t, config.Config{}, fake)

	res, _ := doJSON(t, handler, http.MethodGet, "/api/ocr/list?page=2&limit=abc&search=%20invoice%20&order=ASC", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	want := domain.ListQuery{Page: 2, Limit: 0, Search: "invoice", Order: domain.SortAsc}
	if fake.listQuery != want {
		t.Fatalf("unexpected query: %+v", fake.listQuery)
	}
}

func TestSearchFallsBackToQuestion(t *testing.T) {
	fake := &servicesFake{answer: &domain.Answer{Answer: "No relevant context found in this document."}}
	handler := newTestHandler(t, config.Config{}, fake)

	res, env := doJSON(t, handler, http.MethodPost, "/api/rag/search", map[string]string{"ocrId": "doc-1", "question": "total?"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if fake.search != [2]string{"doc-1", "total?"} {
		t.Fatalf("unexpected search args: %v", fake.search)
	}
	if env.Message != "Answer" {
		t.Fatalf("no-context answer must use the short message, got %q", env.Message)
	}

	fake.answer = &domain.Answer{Answer: "$50", Sources: []domain.Source{{ID: "doc-1-chunk-0", Score: 0.9}}}
	_, env = doJSON(t, handler, http.MethodPost, "/api/rag/search", map[string]string{"ocrId": "doc-1", "query": "total?"})
	if env.Message != "Answer generated" {
		t.Fatalf("unexpected message: %q", env.Message)
	}
}

func TestChatDecodesHistory(t *testing.T) {
	fake := &servicesFake{answer: &domain.Answer{Answer: "42"}}
	handler := newTestHandler(t, config.Config{}, fake)

	res, _ := doJSON(t, handler, http.MethodPost, "/api/rag/chat", map[string]any{
		"ocrId":    "doc-1",
		"question": "age?",
		"history":  []map[string]string{{"role": "user", "content": "who?"}},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(fake.chatTurns) != 1 || fake.chatTurns[0].Role != domain.RoleUser {
		t.Fatalf("unexpected turns: %+v", fake.chatTurns)
	}
}

func TestInvalidJSONIsRejected(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &servicesFake{})
	req := httptest.NewRequest(http.MethodPost, "/api/entities", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestEmptyBodyReachesUseCase(t *testing.T) {
	fake := &servicesFake{err: domain.NewError(domain.ErrInvalidInput, "Prompt is required")}
	handler := newTestHandler(t, config.Config{}, fake)

	req := httptest.NewRequest(http.MethodPost, "/api/ai/generate", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest || !strings.Contains(res.Body.String(), "Prompt is required") {
		t.Fatalf("unexpected response: %d %s", res.Code, res.Body.String())
	}
}

func TestHistoryReadsQuery(t *testing.T) {
	fake := &servicesFake{}
	handler := newTestHandler(t, config.Config{}, fake)

	res, env := doJSON(t, handler, http.MethodGet, "/api/entities/history?ocrId=doc-1&limit=5", nil)
	if res.Code != http.StatusOK || !env.Success {
		t.Fatalf("unexpected response: %d %+v", res.Code, env)
	}
	if fake.history.DocumentID != "doc-1" || fake.history.Limit != 5 {
		t.Fatalf("unexpected history query: %+v", fake.history)
	}
}

func TestServeFile(t *testing.T) {
	fake := &servicesFake{files: map[string]string{"generated/img-1.png": "PNGDATA"}}
	handler := newTestHandler(t, config.Config{}, fake)

	req := httptest.NewRequest(http.MethodGet, "/api/files/generated/img-1.png", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK || res.Body.String() != "PNGDATA" {
		t.Fatalf("unexpected response: %d %q", res.Code, res.Body.String())
	}
	if res.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected content type: %s", res.Header().Get("Content-Type"))
	}

	for _, path := range []string{"/api/files/generated/missing.png", "/api/files/secrets/key.pem", "/api/files/generated/../uploads/x"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, res.Code)
		}
	}
}

func TestOpenAPIDocumentServed(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &servicesFake{})
	req := httptest.NewRequest(http.MethodGet, "/api/docs/openapi.json", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/api/rag/search"]; !ok {
		t.Fatalf("expected /api/rag/search in document")
	}
}

func TestOpenAPIValidationRejectsWrongTypes(t *testing.T) {
	handler := newTestHandler(t, config.Config{OpenAPIValidation: true}, &servicesFake{})

	res, env := doJSON(t, handler, http.MethodPost, "/api/entities", map[string]any{"ocrId": 42})
	if res.Code != http.StatusBadRequest || env.Success {
		t.Fatalf("expected schema rejection, got %d %+v", res.Code, env)
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	handler := newTestHandler(t, config.Config{RateLimitRequests: 1, RateLimitWindow: time.Minute}, &servicesFake{})

	res1, _ := doJSON(t, handler, http.MethodGet, "/api/jobs/job-1", nil)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}
	res2, env := doJSON(t, handler, http.MethodGet, "/api/jobs/job-1", nil)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" || env.Success {
		t.Fatalf("expected Retry-After header and failure envelope")
	}

	// Health checks are not rate limited.
	res3, _ := doJSON(t, handler, http.MethodGet, "/health", nil)
	if res3.Code != http.StatusOK {
		t.Fatalf("health expected 200, got %d", res3.Code)
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	r := gin.New()
	r.Use(backpressureMiddleware(1, 20*time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		started <- struct{}{}
		<-release
		c.Status(http.StatusNoContent)
	})

	go func() {
		res := httptest.NewRecorder()
		r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/slow", nil))
		done <- res.Code
	}()

	<-started

	res2 := httptest.NewRecorder()
	r.ServeHTTP(res2, httptest.NewRequest(http.MethodGet, "/slow", nil))
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(bytes.NewReader(res2.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if resp["error"] != "overloaded" {
		t.Fatalf("expected overload error in response, got %v", resp["error"])
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}

func TestClientLimiterSweepsIdleClients(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	limiter := newClientLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }

	if d := limiter.reserve("10.0.0.1"); d != 0 {
		t.Fatalf("expected admission, got delay %s", d)
	}
	now = now.Add(2 * time.Minute)
	limiter.reserve("10.0.0.2")
	if _, ok := limiter.clients["10.0.0.1"]; ok {
		t.Fatalf("idle client must be swept")
	}
}
