package redis

import (
	"context"
	"testing"
	"time"
)

func TestCompletionStoreRecordsAndReads(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewCompletionStore(client)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "a@x.com", "skin_type"); err != nil || ok {
		t.Fatalf("expected empty record, got ok=%v err=%v", ok, err)
	}

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first, err := store.Increment(ctx, "a@x.com", "skin_type", 30, at)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if first.CompletionCount != 1 {
		t.Fatalf("expected first completion, got %+v", first)
	}
	if _, err := store.Increment(ctx, "a@x.com", "skin_type", 30, at.Add(time.Hour)); err != nil {
		t.Fatalf("increment 2: %v", err)
	}

	record, ok, err := store.Get(ctx, "a@x.com", "skin_type")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if record.CompletionCount != 2 || record.LastAwardedPoints != 30 || !record.LastCompletedAt.Equal(at.Add(time.Hour)) {
		t.Fatalf("unexpected record %+v", record)
	}
	if got := mr.HGet("quiz:completion:skin_type:a@x.com", "count"); got != "2" {
		t.Fatalf("expected count field 2, got %q", got)
	}
}
