// Package qdrant indexes document chunks in a Qdrant collection through the
// official gRPC client.
package qdrant

import (
	"cmp"
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	qc "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/resilience"
)

// pointNamespace derives stable point ids from chunk ids; Qdrant only
// accepts unsigned integers or UUIDs as ids.
var pointNamespace = uuid.MustParse("7d3c1f2a-52b4-4f0e-9a59-2f9b7a1c6e10")

const (
	// upsertBatch caps points per request; long documents produce hundreds
	// of chunks.
	upsertBatch = 128
	defaultPort = 6334

	fieldChunkID    = "chunk_id"
	fieldDocumentID = "ocrId"
	fieldText       = "text"
	fieldChunkIndex = "chunkIndex"
)

// pointsAPI is the part of *qc.Client the index needs.
type pointsAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qc.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qc.CreateFieldIndexCollection) (*qc.UpdateResult, error)
	Upsert(ctx context.Context, request *qc.UpsertPoints) (*qc.UpdateResult, error)
	Query(ctx context.Context, request *qc.QueryPoints) ([]*qc.ScoredPoint, error)
}

type Config struct {
	// Addr is host:port of the gRPC endpoint; an http(s) URL is accepted
	// and https turns on TLS.
	Addr       string
	Collection string
	APIKey     string
}

type Client struct {
	api        pointsAPI
	conn       *qc.Client
	collection string
	executor   *resilience.Executor

	mu         sync.Mutex
	vectorSize int // of the collection known to exist; 0 before the first upsert
}

func New(cfg Config, executor *resilience.Executor) (*Client, error) {
	host, port, useTLS, err := parseAddr(cfg.Addr)
	if err != nil {
		return nil, err
	}
	conn, err := qc.NewClient(&qc.Config{
		Host:   host,
		Port:   port,
		APIKey: strings.TrimSpace(cfg.APIKey),
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	c := newClient(conn, cfg.Collection, executor)
	c.conn = conn
	return c, nil
}

func newClient(api pointsAPI, collection string, executor *resilience.Executor) *Client {
	return &Client{
		api:        api,
		collection: cmp.Or(collection, "documents"),
		executor:   executor,
	}
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// PointID maps a chunk id onto its deterministic Qdrant point id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// Upsert overwrites points with the same chunk ids, so re-ingestion never
// duplicates entries. All chunks must share one vector size.
func (c *Client) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	size := len(chunks[0].Vector)
	points := make([]*qc.PointStruct, 0, len(chunks))
	for _, ch := range chunks {
		if len(ch.Vector) != size {
			return fmt.Errorf("qdrant upsert: chunk %s has vector size %d, want %d", ch.ID, len(ch.Vector), size)
		}
		points = append(points, &qc.PointStruct{
			Id:      qc.NewIDUUID(PointID(ch.ID)),
			Vectors: qc.NewVectors(ch.Vector...),
			Payload: qc.NewValueMap(map[string]any{
				fieldChunkID:    ch.ID,
				fieldDocumentID: ch.DocumentID,
				fieldText:       ch.Text,
				fieldChunkIndex: int64(ch.Index),
			}),
		})
	}
	if err := c.ensureCollection(ctx, size); err != nil {
		return err
	}

	for start := 0; start < len(points); start += upsertBatch {
		batch := points[start:min(start+upsertBatch, len(points))]
		err := c.execute(ctx, "upsert", func(ctx context.Context) error {
			_, err := c.api.Upsert(ctx, &qc.UpsertPoints{
				CollectionName: c.collection,
				Wait:           qc.PtrOf(true),
				Points:         batch,
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("qdrant upsert: %w", err)
		}
	}
	return nil
}

func (c *Client) Query(ctx context.Context, vector []float32, topK int, filter domain.VectorFilter) ([]domain.RetrievedChunk, error) {
	req := &qc.QueryPoints{
		CollectionName: c.collection,
		Query:          qc.NewQuery(vector...),
		Limit:          qc.PtrOf(uint64(max(topK, 1))),
		WithPayload:    qc.NewWithPayload(true),
	}
	if filter.DocumentID != "" {
		req.Filter = &qc.Filter{Must: []*qc.Condition{qc.NewMatch(fieldDocumentID, filter.DocumentID)}}
	}

	var scored []*qc.ScoredPoint
	err := c.execute(ctx, "query", func(ctx context.Context) error {
		var err error
		scored, err = c.api.Query(ctx, req)
		return err
	})
	if err != nil {
		// Searching before anything was ingested is not an error.
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	out := make([]domain.RetrievedChunk, 0, len(scored))
	for _, p := range scored {
		out = append(out, domain.RetrievedChunk{
			ID:         p.GetPayload()[fieldChunkID].GetStringValue(),
			DocumentID: p.GetPayload()[fieldDocumentID].GetStringValue(),
			ChunkIndex: int(p.GetPayload()[fieldChunkIndex].GetIntegerValue()),
			Text:       p.GetPayload()[fieldText].GetStringValue(),
			Score:      float64(p.GetScore()),
		})
	}
	return out, nil
}

// ensureCollection creates the collection and its document id index once
// per vector size. A concurrently created collection counts as created.
func (c *Client) ensureCollection(ctx context.Context, size int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vectorSize == size {
		return nil
	}

	var exists bool
	err := c.execute(ctx, "collection_exists", func(ctx context.Context) error {
		var err error
		exists, err = c.api.CollectionExists(ctx, c.collection)
		return err
	})
	if err != nil {
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}
	if !exists {
		err = c.execute(ctx, "create_collection", func(ctx context.Context) error {
			return c.api.CreateCollection(ctx, &qc.CreateCollection{
				CollectionName: c.collection,
				VectorsConfig: qc.NewVectorsConfig(&qc.VectorParams{
					Size:     uint64(size),
					Distance: qc.Distance_Cosine,
				}),
			})
		})
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("qdrant ensure collection: %w", err)
		}
	}

	err = c.execute(ctx, "create_index", func(ctx context.Context) error {
		_, err := c.api.CreateFieldIndex(ctx, &qc.CreateFieldIndexCollection{
			CollectionName: c.collection,
			FieldName:      fieldDocumentID,
			FieldType:      qc.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qc.PtrOf(true),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("qdrant ensure document index: %w", err)
	}
	c.vectorSize = size
	return nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	if c.executor == nil {
		err = fn(ctx)
	} else {
		err = c.executor.Execute(ctx, "qdrant."+operation, fn, classify)
	}
	return resilience.Temporary("qdrant "+operation, err, classify)
}

// classify retries the gRPC codes a busy or restarting server answers with.
func classify(err error) resilience.Class {
	if resilience.Cancelled(err) {
		return resilience.Rejected
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.Transient
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return resilience.Transient
	case codes.Canceled:
		return resilience.Rejected
	case codes.Unknown:
		return resilience.Permanent
	default:
		return resilience.Rejected
	}
}

func parseAddr(addr string) (host string, port int, useTLS bool, err error) {
	addr = strings.TrimSpace(addr)
	if strings.Contains(addr, "://") {
		u, err := url.Parse(addr)
		if err != nil || u.Host == "" {
			return "", 0, false, fmt.Errorf("parse qdrant address %q: invalid url", addr)
		}
		useTLS = u.Scheme == "https"
		addr = u.Host
	}
	host, portText, splitErr := net.SplitHostPort(addr)
	if splitErr != nil {
		host, portText = addr, ""
	}
	if host == "" {
		return "", 0, false, fmt.Errorf("parse qdrant address %q: missing host", addr)
	}
	port = defaultPort
	if portText != "" {
		if port, err = strconv.Atoi(portText); err != nil || port <= 0 {
			return "", 0, false, fmt.Errorf("parse qdrant address %q: invalid port", addr)
		}
	}
	return host, port, useTLS, nil
}
