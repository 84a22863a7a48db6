package inproc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

func TestEnqueueRejectsWhenFull(t *testing.T) {
	pool := New(Config{Workers: 1, QueueDepth: 1}, nil)
	ctx := context.Background()

	if err := pool.Enqueue(ctx, domain.EnrichmentJob{ID: "a"}); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}
	err := pool.Enqueue(ctx, domain.EnrichmentJob{ID: "b"})
	if !errors.Is(err, ErrQueueFull) || !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary queue-full error, got %v", err)
	}
}

func TestConsumeProcessesJobsAndStopsOnCancel(t *testing.T) {
	pool := New(Config{Workers: 2, QueueDepth: 8}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	wg.Add(3)
	for _, id := range []string{"a", "b", "c"} {
		if err := pool.Enqueue(ctx, domain.EnrichmentJob{ID: id}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		_ = pool.Consume(ctx, func(_ context.Context, job domain.EnrichmentJob) error {
			mu.Lock()
			seen[job.ID] = true
			mu.Unlock()
			wg.Done()
			return nil
		})
		close(done)
	}()

	wg.Wait()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Consume did not return after cancel")
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 jobs processed, got %v", seen)
	}
}

func TestJobTimeoutAndPanicDoNotKillWorker(t *testing.T) {
	pool := New(Config{Workers: 1, QueueDepth: 4, JobTimeout: 10 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan string, 2)
	_ = pool.Enqueue(ctx, domain.EnrichmentJob{ID: "panics"})
	_ = pool.Enqueue(ctx, domain.EnrichmentJob{ID: "times-out"})

	go func() {
		_ = pool.Consume(ctx, func(jobCtx context.Context, job domain.EnrichmentJob) error {
			if job.ID == "panics" {
				results <- job.ID
				panic("boom")
			}
			<-jobCtx.Done()
			results <- job.ID
			return jobCtx.Err()
		})
	}()

	for _, want := range []string{"panics", "times-out"} {
		select {
		case got := <-results:
			if got != want {
				t.Fatalf("expected %s, got %s", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestStopLetsInFlightAndBufferedJobsFinish(t *testing.T) {
	pool := New(Config{Workers: 1, QueueDepth: 4}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	for _, id := range []string{"running", "buffered-1", "buffered-2"} {
		if err := pool.Enqueue(ctx, domain.EnrichmentJob{ID: id}); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
	}

	started := make(chan struct{})
	release := make(chan struct{})
	var (
		mu       sync.Mutex
		finished []string
		ctxErrs  []error
	)
	done := make(chan struct{})
	go func() {
		_ = pool.Consume(ctx, func(jobCtx context.Context, job domain.EnrichmentJob) error {
			if job.ID == "running" {
				close(started)
				<-release
			}
			mu.Lock()
			finished = append(finished, job.ID)
			ctxErrs = append(ctxErrs, jobCtx.Err())
			mu.Unlock()
			return nil
		})
		close(done)
	}()

	<-started
	cancel()
	select {
	case <-done:
		t.Fatalf("Consume returned while a job was still running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Consume did not return after draining")
	}
	if len(finished) != 3 {
		t.Fatalf("expected all jobs to finish, got %v", finished)
	}
	for i, err := range ctxErrs {
		if err != nil {
			t.Fatalf("job %s saw cancelled context: %v", finished[i], err)
		}
	}
}

func TestEnqueueAfterStopIsRejected(t *testing.T) {
	pool := New(Config{Workers: 1, QueueDepth: 4}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = pool.Consume(ctx, func(context.Context, domain.EnrichmentJob) error { return nil })
		close(done)
	}()
	cancel()
	<-done

	err := pool.Enqueue(context.Background(), domain.EnrichmentJob{ID: "late"})
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected closed queue error, got %v", err)
	}
	if len(pool.jobs) != 0 {
		t.Fatalf("rejected job must not be buffered, len=%d", len(pool.jobs))
	}
}
