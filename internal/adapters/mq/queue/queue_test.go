package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/jobrank/internal/domain/model"
)

func task(id string) Task {
	return Task{
		Fingerprint: model.Fingerprint("fp-" + id),
		Posting:     model.JobPosting{ExternalID: id, Title: "Engineer", Company: "Acme"},
	}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, task("job1")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue()
	if got.Posting.ExternalID != "job1" {
		t.Errorf("expected job1, got %v", got.Posting.ExternalID)
	}
	if got.Fingerprint != "fp-job1" {
		t.Errorf("expected fp-job1, got %v", got.Fingerprint)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, task("job1")) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, task("job2")) {
		t.Error("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, task("job3")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, task("job1")) {
		t.Error("expected enqueue to fail with a cancelled context")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(50))
	ctx := context.Background()
	numProducers := 10
	numTasks := 100

	var producers sync.WaitGroup
	for i := range numProducers {
		producers.Add(1)
		go func(id int) {
			defer producers.Done()
			for j := range numTasks {
				for !q.Enqueue(ctx, task(fmt.Sprintf("job%d_%d", id, j))) {
					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}

	var (
		consumers sync.WaitGroup
		mu        sync.Mutex
		seen      = make(map[string]int)
	)
	for range 4 {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for tk := range q.Dequeue() {
				mu.Lock()
				seen[tk.Posting.ExternalID]++
				mu.Unlock()
			}
		}()
	}

	producers.Wait()
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	consumers.Wait()

	if len(seen) != numProducers*numTasks {
		t.Errorf("expected %d distinct tasks, got %d", numProducers*numTasks, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("task %s delivered %d times", id, n)
		}
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, task("job1")) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, task("job2")) {
		t.Error("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, task("job3")) {
		t.Error("expected enqueue to fail after closing")
	}

	// Tasks queued before Close are still delivered.
	var drained []string
	timeout := time.After(time.Second)
	ch := q.Dequeue()
	for done := false; !done; {
		select {
		case tk, ok := <-ch:
			if !ok {
				done = true
				break
			}
			drained = append(drained, tk.Posting.ExternalID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
	if len(drained) != 2 || drained[0] != "job1" || drained[1] != "job2" {
		t.Errorf("expected [job1 job2], got %v", drained)
	}

	if err := q.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on second close, got %v", err)
	}
}
