package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool_Defaults(t *testing.T) {
	pool := NewPool[string](context.Background(), 0, -1)
	defer pool.Close()

	if pool.Workers() != 1 {
		t.Errorf("Expected 1 worker (default), got %d", pool.Workers())
	}
}

func TestPool_RunAll_CollectsEveryResult(t *testing.T) {
	pool := NewPool[int](context.Background(), 3, 2)
	defer pool.Close()

	jobs := make([]Job[int], 10)
	for i := range jobs {
		i := i
		jobs[i] = Job[int]{
			ID: fmt.Sprintf("job-%d", i),
			Run: func(ctx context.Context) (int, error) {
				return i * 2, nil
			},
		}
	}

	results := pool.RunAll(jobs)

	if len(results) != 10 {
		t.Fatalf("Expected 10 results, got %d", len(results))
	}
	values := make([]int, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("Job %s failed: %v", r.JobID, r.Err)
		}
		values = append(values, r.Value)
	}
	sort.Ints(values)
	for i, v := range values {
		if v != i*2 {
			t.Fatalf("Missing or wrong value at %d: %v", i, values)
		}
	}
}

func TestPool_RunAll_MoreJobsThanQueue(t *testing.T) {
	// Queue smaller than the job list must not deadlock.
	pool := NewPool[int](context.Background(), 1, 0)
	defer pool.Close()

	jobs := make([]Job[int], 25)
	for i := range jobs {
		jobs[i] = Job[int]{Run: func(ctx context.Context) (int, error) { return 1, nil }}
	}

	done := make(chan []Result[int], 1)
	go func() { done <- pool.RunAll(jobs) }()

	select {
	case results := <-done:
		if len(results) != 25 {
			t.Fatalf("Expected 25 results, got %d", len(results))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunAll deadlocked")
	}
}

func TestPool_BoundedConcurrency(t *testing.T) {
	const workers = 2
	pool := NewPool[struct{}](context.Background(), workers, 0)
	defer pool.Close()

	var active, peak int32
	jobs := make([]Job[struct{}], 8)
	for i := range jobs {
		jobs[i] = Job[struct{}]{
			Run: func(ctx context.Context) (struct{}, error) {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return struct{}{}, nil
			},
		}
	}

	pool.RunAll(jobs)

	if got := atomic.LoadInt32(&peak); got > workers {
		t.Fatalf("Expected at most %d concurrent jobs, observed %d", workers, got)
	}
}

func TestPool_ErrorsAreIsolatedPerJob(t *testing.T) {
	pool := NewPool[string](context.Background(), 2, 4)
	defer pool.Close()

	boom := errors.New("boom")
	jobs := []Job[string]{
		{ID: "ok", Run: func(ctx context.Context) (string, error) { return "fine", nil }},
		{ID: "bad", Run: func(ctx context.Context) (string, error) { return "", boom }},
	}

	results := pool.RunAll(jobs)

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		switch r.JobID {
		case "ok":
			if r.Err != nil || r.Value != "fine" {
				t.Fatalf("ok job: %+v", r)
			}
		case "bad":
			if !errors.Is(r.Err, boom) {
				t.Fatalf("bad job expected boom, got %v", r.Err)
			}
		}
	}
}

func TestPool_SubmitAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool[int](ctx, 1, 1)
	defer pool.Close()

	cancel()
	time.Sleep(10 * time.Millisecond)

	err := pool.Submit(Job[int]{Run: func(ctx context.Context) (int, error) { return 0, nil }})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}
