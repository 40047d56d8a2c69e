package state

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_PutGetRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	entry := Entry{Triggered: true, LastSerialization: []byte("abc")}
	if err := s.Put(ctx, "alert1", entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.Get(ctx, "alert1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Triggered != true || string(got.LastSerialization) != "abc" {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestMemoryStore_GetMissingReturnsZeroValue(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Triggered {
		t.Fatal("expected zero-value entry for missing key")
	}
}

func TestMemoryStore_PauseAndExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	until := time.Now().Add(time.Hour)
	if err := s.Pause(ctx, "alert1", until); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry, _ := s.Get(ctx, "alert1")
	if !entry.Paused(time.Now()) {
		t.Fatal("expected entry to be paused")
	}
	if entry.Paused(until.Add(time.Minute)) {
		t.Fatal("expected pause to have expired")
	}
}

func TestMemoryStore_DeleteRemovesEntry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Put(ctx, "alert1", Entry{Triggered: true})
	if err := s.Delete(ctx, "alert1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := s.Get(ctx, "alert1")
	if got.Triggered {
		t.Fatal("expected entry to be gone after delete")
	}
}

func TestMemoryStore_ListReturnsSnapshot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Put(ctx, "a", Entry{Triggered: true})
	s.Put(ctx, "b", Entry{Triggered: false})
	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	entry := Entry{Triggered: true, LastSerialization: []byte("xyz")}
	data, err := encode(entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Triggered != entry.Triggered || string(got.LastSerialization) != string(entry.LastSerialization) {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, entry)
	}
}
