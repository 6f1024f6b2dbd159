package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestQueueProcessesJob(t *testing.T) {
	q := New(10, 1, time.Second, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var processed int32
	done := make(chan struct{})
	ok := q.Enqueue(Job{
		ID:     "job1",
		Source: "test",
		Work: func(ctx context.Context) error {
			atomic.AddInt32(&processed, 1)
			close(done)
			return nil
		},
	})
	if !ok {
		t.Fatalf("expected enqueue to succeed")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("job did not complete")
	}
	if atomic.LoadInt32(&processed) != 1 {
		t.Fatalf("job not processed")
	}
}

func TestQueueRejectsWhenFull(t *testing.T) {
	q := New(1, 0, 100*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	ok := q.Enqueue(Job{ID: "slow", Source: "test", Work: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	if !ok {
		t.Fatalf("expected first enqueue to succeed")
	}

	if ok := q.Enqueue(Job{ID: "drop", Source: "test", Work: func(ctx context.Context) error { return nil }}); ok {
		t.Fatalf("expected enqueue to be rejected when queue is full")
	}
	if stats := q.Stats(); stats.Length != 1 || stats.Capacity != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestEnqueueBeforeStart(t *testing.T) {
	q := New(1, 1, time.Second, zerolog.Nop())
	if q.Enqueue(Job{ID: "early", Work: func(context.Context) error { return nil }}) {
		t.Fatalf("expected enqueue before start to fail")
	}
	if q.Healthy() {
		t.Fatalf("unstarted queue reported healthy")
	}
}

func TestSubmitReturnsJobResult(t *testing.T) {
	q := New(4, 2, time.Second, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	boom := errors.New("boom")
	ok, err := q.Submit(ctx, "run1", "test", func(context.Context) error { return boom })
	if !ok {
		t.Fatalf("expected submit to be accepted")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
	if stats := q.Stats(); stats.Processed != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestJobTimeoutAndPanic(t *testing.T) {
	q := New(4, 1, 50*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	_, err := q.Submit(ctx, "slow", "test", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	_, err = q.Submit(ctx, "panic", "test", func(context.Context) error { panic("bad job") })
	if err == nil {
		t.Fatalf("expected panic to surface as error")
	}
}

func TestStopRejectsNewJobs(t *testing.T) {
	q := New(2, 1, time.Second, zerolog.Nop())
	q.Start(context.Background())

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Stop(stopCtx)

	if q.Enqueue(Job{ID: "late", Work: func(context.Context) error { return nil }}) {
		t.Fatalf("expected enqueue after stop to fail")
	}
	if q.Healthy() {
		t.Fatalf("stopped queue reported healthy")
	}
}
