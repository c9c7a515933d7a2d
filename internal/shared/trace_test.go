package shared

import (
	"context"
	"testing"
)

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := TraceID(ctx); got != "-" {
		t.Fatalf("expected '-', got %q", got)
	}
	id := NewTraceID()
	ctx = WithTraceID(ctx, id)
	if got := TraceID(ctx); got != id {
		t.Fatalf("expected %q, got %q", id, got)
	}
}

func TestTaskAndJobID_DefaultEmpty(t *testing.T) {
	ctx := context.Background()
	if got := TaskID(ctx); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	ctx = WithTaskID(ctx, "t-42")
	ctx = WithJobID(ctx, "j-7")
	if got := TaskID(ctx); got != "t-42" {
		t.Fatalf("expected t-42, got %q", got)
	}
	if got := JobID(ctx); got != "j-7" {
		t.Fatalf("expected j-7, got %q", got)
	}
}
