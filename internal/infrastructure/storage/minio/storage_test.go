package minio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

func newTestStorage(t *testing.T, handler http.HandlerFunc) *Storage {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store, err := New(Config{
		Endpoint:  strings.TrimPrefix(server.URL, "http://"),
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "docs",
		Region:    "us-east-1",
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return store
}

func TestOpenMissingObjectReturnsNotFound(t *testing.T) {
	store := newTestStorage(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := store.Open(context.Background(), "generated/missing.png")
	if !domain.IsKind(err, domain.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestDeleteSendsRemoveRequest(t *testing.T) {
	var method, path string
	store := newTestStorage(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	if err := store.Delete(context.Background(), "uploads/a.pdf"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if method != http.MethodDelete || path != "/docs/uploads/a.pdf" {
		t.Fatalf("unexpected request %s %s", method, path)
	}
}
