package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestQueue_RunsAndDrains(t *testing.T) {
	q := NewQueue(Config{WorkerCount: 2, QueueSize: 10}, zap.NewNop())

	var done int32
	for i := 0; i < 5; i++ {
		if !q.Go("count", func(ctx context.Context) error {
			atomic.AddInt32(&done, 1)
			return nil
		}) {
			t.Fatal("task rejected with room in the queue")
		}
	}

	if err := q.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := atomic.LoadInt32(&done); got != 5 {
		t.Errorf("ran %d tasks, want 5", got)
	}

	if q.Go("late", func(ctx context.Context) error { return nil }) {
		t.Error("closed queue accepted a task")
	}
}

func TestQueue_DropsWhenFull(t *testing.T) {
	q := NewQueue(Config{WorkerCount: 1, QueueSize: 1}, zap.NewNop())
	release := make(chan struct{})
	started := make(chan struct{})

	q.Go("blocker", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	if !q.Go("queued", func(ctx context.Context) error { return nil }) {
		t.Fatal("one slot should be free")
	}
	if q.Go("overflow", func(ctx context.Context) error { return nil }) {
		t.Error("full queue must drop instead of blocking")
	}

	close(release)
	q.Shutdown(context.Background())
}

func TestQueue_SurvivesPanicsAndErrors(t *testing.T) {
	q := NewQueue(Config{WorkerCount: 1, QueueSize: 4}, zap.NewNop())

	var after int32
	q.Go("panics", func(ctx context.Context) error { panic("boom") })
	q.Go("fails", func(ctx context.Context) error { return errors.New("provider down") })
	q.Go("after", func(ctx context.Context) error {
		atomic.StoreInt32(&after, 1)
		return nil
	})

	q.Shutdown(context.Background())
	if atomic.LoadInt32(&after) != 1 {
		t.Error("worker stopped after a panicking task")
	}
}

func TestQueue_ShutdownHonorsDeadline(t *testing.T) {
	q := NewQueue(Config{WorkerCount: 1, QueueSize: 1}, zap.NewNop())
	release := make(chan struct{})
	defer close(release)

	q.Go("slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestInline_RunsImmediately(t *testing.T) {
	ran := false
	Inline{}.Go("now", func(ctx context.Context) error {
		ran = true
		return errors.New("logged, not returned")
	})
	if !ran {
		t.Error("Inline did not run the task")
	}
}
