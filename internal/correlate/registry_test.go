package correlate

import (
	"context"
	"testing"
	"time"
)

func TestRegisterResolve(t *testing.T) {
	r := New[string]()
	ctx := context.Background()
	ch := r.Register(ctx, "req-1", time.Second)

	if !r.Resolve("req-1", "hello") {
		t.Fatal("Resolve returned false for pending id")
	}

	select {
	case v := <-ch:
		if v != "hello" {
			t.Fatalf("got %q, want hello", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resolution")
	}
}

func TestRegisterTimeoutYieldsZeroValue(t *testing.T) {
	r := New[string]()
	ctx := context.Background()
	ch := r.Register(ctx, "req-timeout", 20*time.Millisecond)

	select {
	case v := <-ch:
		if v != "" {
			t.Fatalf("got %q, want empty zero value on timeout", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for timeout result")
	}
}

func TestResolveUnknownIDIsNoop(t *testing.T) {
	r := New[string]()
	if r.Resolve("never-registered", "x") {
		t.Fatal("Resolve should return false for unknown id")
	}
}

func TestAtMostOnePendingPerID(t *testing.T) {
	r := New[string]()
	ctx := context.Background()
	_ = r.Register(ctx, "dup", time.Second)
	_ = r.Register(ctx, "dup", time.Second)
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestCancelPreventsLeak(t *testing.T) {
	r := New[string]()
	ctx := context.Background()
	_ = r.Register(ctx, "cancel-me", 5*time.Second)
	r.Cancel("cancel-me")
	if r.Resolve("cancel-me", "late") {
		t.Fatal("Resolve should fail after Cancel")
	}
}
