package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	qc "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/resilience"
)

type pointsFake struct {
	mu          sync.Mutex
	exists      bool
	existsErr   error
	createErr   error
	queryErr    error
	queryErrs   []error
	created     []*qc.CreateCollection
	indexes     []*qc.CreateFieldIndexCollection
	upserts     []*qc.UpsertPoints
	queries     []*qc.QueryPoints
	queryResult []*qc.ScoredPoint
}

func (f *pointsFake) CollectionExists(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists, f.existsErr
}

func (f *pointsFake) CreateCollection(_ context.Context, req *qc.CreateCollection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	return f.createErr
}

func (f *pointsFake) CreateFieldIndex(_ context.Context, req *qc.CreateFieldIndexCollection) (*qc.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexes = append(f.indexes, req)
	return &qc.UpdateResult{}, nil
}

func (f *pointsFake) Upsert(_ context.Context, req *qc.UpsertPoints) (*qc.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, req)
	return &qc.UpdateResult{}, nil
}

func (f *pointsFake) Query(_ context.Context, req *qc.QueryPoints) ([]*qc.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, req)
	if len(f.queryErrs) > 0 {
		err := f.queryErrs[0]
		f.queryErrs = f.queryErrs[1:]
		return nil, err
	}
	return f.queryResult, f.queryErr
}

func testChunks() []domain.Chunk {
	return []domain.Chunk{
		{ID: "doc-1-chunk-0", DocumentID: "doc-1", Index: 0, Text: "a", Vector: []float32{0.1, 0.2}},
		{ID: "doc-1-chunk-1", DocumentID: "doc-1", Index: 1, Text: "b", Vector: []float32{0.3, 0.4}},
	}
}

func pointIDs(req *qc.UpsertPoints) []string {
	ids := make([]string, 0, len(req.GetPoints()))
	for _, p := range req.GetPoints() {
		ids = append(ids, p.GetId().GetUuid())
	}
	return ids
}

func TestUpsertEnsuresCollectionOncePerVectorSize(t *testing.T) {
	api := &pointsFake{}
	client := newClient(api, "docs", nil)

	if err := client.Upsert(context.Background(), testChunks()); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}
	if err := client.Upsert(context.Background(), testChunks()); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	if len(api.created) != 1 {
		t.Fatalf("expected collection created once, got %d", len(api.created))
	}
	if size := api.created[0].GetVectorsConfig().GetParams().GetSize(); size != 2 {
		t.Fatalf("unexpected vector size %d", size)
	}
	if len(api.indexes) != 1 || api.indexes[0].GetFieldName() != "ocrId" || api.indexes[0].GetFieldType() != qc.FieldType_FieldTypeKeyword {
		t.Fatalf("expected keyword index on document id, got %+v", api.indexes)
	}
	if len(api.upserts) != 2 || strings.Join(pointIDs(api.upserts[0]), ",") != strings.Join(pointIDs(api.upserts[1]), ",") {
		t.Fatalf("point ids must be stable across upserts")
	}
	first := api.upserts[0].GetPoints()[0]
	if first.GetId().GetUuid() != PointID("doc-1-chunk-0") {
		t.Fatalf("unexpected point id %s", first.GetId().GetUuid())
	}
	payload := first.GetPayload()
	if payload["ocrId"].GetStringValue() != "doc-1" || payload["chunk_id"].GetStringValue() != "doc-1-chunk-0" || payload["chunkIndex"].GetIntegerValue() != 0 {
		t.Fatalf("unexpected payload %v", payload)
	}
	if !api.upserts[0].GetWait() {
		t.Fatalf("upserts must wait for the write")
	}
}

func TestUpsertSkipsCreateForExistingCollection(t *testing.T) {
	api := &pointsFake{exists: true}
	if err := newClient(api, "docs", nil).Upsert(context.Background(), testChunks()); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if len(api.created) != 0 || len(api.indexes) != 1 {
		t.Fatalf("expected index only, created=%d indexes=%d", len(api.created), len(api.indexes))
	}
}

func TestUpsertToleratesConcurrentCreate(t *testing.T) {
	api := &pointsFake{createErr: status.Error(codes.AlreadyExists, "collection docs already exists")}
	if err := newClient(api, "docs", nil).Upsert(context.Background(), testChunks()); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if len(api.upserts) != 1 {
		t.Fatalf("expected points written after a racing create")
	}
}

func TestEnsureCollectionErrorStopsUpsert(t *testing.T) {
	api := &pointsFake{existsErr: status.Error(codes.Internal, "boom")}
	err := newClient(api, "docs", nil).Upsert(context.Background(), testChunks())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected ensure error, got %v", err)
	}
	if len(api.upserts) != 0 {
		t.Fatalf("no points may be written without a collection")
	}
}

func TestQueryFiltersByDocument(t *testing.T) {
	api := &pointsFake{queryResult: []*qc.ScoredPoint{{
		Score: 0.9,
		Payload: qc.NewValueMap(map[string]any{
			"chunk_id":   "doc-1-chunk-3",
			"ocrId":      "doc-1",
			"text":       "Total $50",
			"chunkIndex": int64(3),
		}),
	}}}

	got, err := newClient(api, "docs", nil).Query(context.Background(), []float32{0.1, 0.2}, 5, domain.VectorFilter{DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "doc-1-chunk-3" || got[0].ChunkIndex != 3 || got[0].Text != "Total $50" || got[0].DocumentID != "doc-1" {
		t.Fatalf("unexpected result %+v", got)
	}
	if got[0].Score < 0.89 || got[0].Score > 0.91 {
		t.Fatalf("unexpected score %v", got[0].Score)
	}

	req := api.queries[0]
	if req.GetCollectionName() != "docs" || req.GetLimit() != 5 {
		t.Fatalf("unexpected request %+v", req)
	}
	must := req.GetFilter().GetMust()
	if len(must) != 1 || must[0].GetField().GetKey() != "ocrId" || must[0].GetField().GetMatch().GetKeyword() != "doc-1" {
		t.Fatalf("expected document filter, got %v", req.GetFilter())
	}
}

func TestQueryWithoutScopeOmitsFilter(t *testing.T) {
	api := &pointsFake{}
	if _, err := newClient(api, "docs", nil).Query(context.Background(), []float32{1}, 5, domain.VectorFilter{}); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if api.queries[0].GetFilter() != nil {
		t.Fatalf("filter must be omitted for global search")
	}
}

func TestQueryMissingCollectionIsEmpty(t *testing.T) {
	api := &pointsFake{queryErr: status.Error(codes.NotFound, "Collection docs not found")}
	got, err := newClient(api, "docs", nil).Query(context.Background(), []float32{1}, 5, domain.VectorFilter{})
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v / %v", got, err)
	}
}

func TestQueryRetriesUnavailableServer(t *testing.T) {
	api := &pointsFake{queryErrs: []error{status.Error(codes.Unavailable, "connection refused")}}
	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: 1,
		RetryMaxBackoff:     1,
	}, nil)

	if _, err := newClient(api, "docs", executor).Query(context.Background(), []float32{1}, 5, domain.VectorFilter{}); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(api.queries) != 2 {
		t.Fatalf("expected one retry, got %d calls", len(api.queries))
	}
}

func TestUnavailableServerIsTemporary(t *testing.T) {
	api := &pointsFake{queryErr: status.Error(codes.Unavailable, "down")}
	_, err := newClient(api, "docs", nil).Query(context.Background(), []float32{1}, 5, domain.VectorFilter{})
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestUpsertBatchesLargeDocuments(t *testing.T) {
	api := &pointsFake{}
	chunks := make([]domain.Chunk, upsertBatch+2)
	for i := range chunks {
		chunks[i] = domain.Chunk{ID: fmt.Sprintf("doc-1-chunk-%d", i), DocumentID: "doc-1", Index: i, Vector: []float32{1, 0}}
	}
	if err := newClient(api, "docs", nil).Upsert(context.Background(), chunks); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if len(api.upserts) != 2 || len(api.upserts[0].GetPoints()) != upsertBatch || len(api.upserts[1].GetPoints()) != 2 {
		t.Fatalf("unexpected batches: %d requests", len(api.upserts))
	}
}

func TestUpsertRejectsMixedVectorSizes(t *testing.T) {
	api := &pointsFake{}
	chunks := testChunks()
	chunks[1].Vector = []float32{1}
	if err := newClient(api, "docs", nil).Upsert(context.Background(), chunks); err == nil {
		t.Fatalf("expected vector size error")
	}
	if len(api.created) != 0 {
		t.Fatalf("collection must not be touched for invalid input")
	}
}

func TestParseAddr(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port int
		tls  bool
		bad  bool
	}{
		{in: "localhost:6334", host: "localhost", port: 6334},
		{in: "qdrant", host: "qdrant", port: defaultPort},
		{in: "http://qdrant:7000", host: "qdrant", port: 7000},
		{in: "https://cloud.example", host: "cloud.example", port: defaultPort, tls: true},
		{in: "qdrant:zero", bad: true},
		{in: "", bad: true},
	}
	for _, tc := range cases {
		host, port, tls, err := parseAddr(tc.in)
		if tc.bad {
			if err == nil {
				t.Fatalf("parseAddr(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || host != tc.host || port != tc.port || tls != tc.tls {
			t.Fatalf("parseAddr(%q) = %s %d %v %v", tc.in, host, port, tls, err)
		}
	}
}
