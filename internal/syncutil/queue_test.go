package syncutil

import (
	"testing"

	"go.uber.org/zap"
)

func TestBoundedQueuePushAndDrain(t *testing.T) {
	q := NewBoundedQueue[int](2, "test", zap.NewNop())
	if !q.Push(1) || !q.Push(2) {
		t.Fatal("expected both pushes to succeed within capacity")
	}
	if q.Push(3) {
		t.Fatal("expected the third push to be dropped, queue is full")
	}
	if got := <-q.C(); got != 1 {
		t.Fatalf("expected FIFO order, got %d", got)
	}
	if got := <-q.C(); got != 2 {
		t.Fatalf("expected FIFO order, got %d", got)
	}
}

func TestBoundedQueuePushAfterDrainSucceeds(t *testing.T) {
	q := NewBoundedQueue[int](1, "test", zap.NewNop())
	if !q.Push(1) {
		t.Fatal("expected the first push to succeed")
	}
	<-q.C()
	if !q.Push(2) {
		t.Fatal("expected a push to succeed again after draining")
	}
}
