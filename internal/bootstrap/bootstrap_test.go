package bootstrap

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kirillkom/document-intelligence/internal/config"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/queue/inproc"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/resilience"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/storage/localfs"
)

func TestResilienceConfigClampsNegativeBreakerCounts(t *testing.T) {
	cfg := config.Config{
		ResilienceRetryMaxAttempts:        3,
		ResilienceBreakerMinRequests:      -1,
		ResilienceBreakerHalfOpenMaxCalls: 5,
		ResilienceBreakerOpenTimeout:      time.Second,
	}
	got := resilienceConfig(cfg)
	if got.BreakerMinRequests != 0 || got.BreakerHalfOpenMaxCalls != 5 {
		t.Fatalf("unexpected breaker counts: %+v", got)
	}
	if got.RetryMaxAttempts != 3 || got.BreakerOpenTimeout != time.Second {
		t.Fatalf("unexpected resilience config: %+v", got)
	}
}

func TestNewGeneratorRequiresGeminiKey(t *testing.T) {
	executor := resilience.NewExecutor(resilience.DefaultConfig(), zap.NewNop())

	if _, err := newGenerator(config.Config{LLMProvider: config.ProviderGemini}, nil, executor, nil); err == nil {
		t.Fatalf("expected error without GEMINI_API_KEY")
	}
	if _, err := newGenerator(config.Config{LLMProvider: "openai"}, nil, executor, nil); err == nil || !strings.Contains(err.Error(), "openai") {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
	gen, err := newGenerator(config.Config{LLMProvider: config.ProviderOllama, OllamaURL: "http://localhost:11434"}, nil, executor, nil)
	if err != nil || gen == nil {
		t.Fatalf("newGenerator(ollama) = %v, %v", gen, err)
	}
}

func TestNewStorageSelectsBackend(t *testing.T) {
	storage, err := newStorage(context.Background(), config.Config{StorageBackend: config.StorageLocal, StoragePath: t.TempDir()}, zap.NewNop())
	if err != nil {
		t.Fatalf("newStorage(localfs) error = %v", err)
	}
	if _, ok := storage.(*localfs.Storage); !ok {
		t.Fatalf("expected localfs storage, got %T", storage)
	}
	if _, err := newStorage(context.Background(), config.Config{StorageBackend: "s3"}, zap.NewNop()); err == nil {
		t.Fatalf("expected unknown storage backend error")
	}
}

func TestInitQueueInprocServesAsConsumer(t *testing.T) {
	app := &App{
		Config: config.Config{QueueBackend: config.QueueInproc, WorkerCount: 1, QueueDepth: 4},
		Logger: zap.NewNop(),
	}
	if err := app.initQueue(nil); err != nil {
		t.Fatalf("initQueue() error = %v", err)
	}
	pool, ok := app.Queue.(*inproc.Pool)
	if !ok {
		t.Fatalf("expected inproc pool, got %T", app.Queue)
	}
	if app.Consumer() != pool {
		t.Fatalf("consumer must be the same pool that receives jobs")
	}
	if !app.InProcessQueue() {
		t.Fatalf("expected in-process queue")
	}

	app = &App{Config: config.Config{QueueBackend: "kafka"}, Logger: zap.NewNop()}
	if err := app.initQueue(nil); err == nil {
		t.Fatalf("expected unknown queue backend error")
	}
}

func TestLoadPromptsDefaultsWithoutFile(t *testing.T) {
	store, err := loadPrompts("")
	if err != nil || store == nil {
		t.Fatalf("loadPrompts(\"\") = %v, %v", store, err)
	}
	if _, err := loadPrompts("/nonexistent/prompts.yaml"); err == nil {
		t.Fatalf("expected error for missing prompts file")
	}
}

func TestCloseRunsClosersInReverse(t *testing.T) {
	var order []int
	app := &App{}
	app.onClose(func() { order = append(order, 1) })
	app.onClose(func() { order = append(order, 2) })
	app.Close()
	app.Close()
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("unexpected close order: %v", order)
	}
}
