package auditlog

import (
	"context"
	"errors"
	"testing"
)

var ctx = context.Background()

func TestNewMemory_genesisEntry(t *testing.T) {
	l := NewMemory()

	n, err := l.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 genesis entry, got %d", n)
	}

	e, err := l.Get(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if e.Action != ActionGenesis || e.Actor != SystemActor {
		t.Errorf("genesis: got action %q actor %q", e.Action, e.Actor)
	}
	if e.Hash != GenesisHash {
		t.Errorf("genesis hash: got %q", e.Hash)
	}
}

func TestAppend_chains(t *testing.T) {
	l := NewMemory()

	e1, err := l.Append(ctx, Record{
		ThreatModelID: "tm-1", Subject: "an-1", Action: ActionAnalysis,
		Actor: "alice", Summary: "stride: 4 threats", Payload: map[string]int{"threats": 4},
	})
	if err != nil {
		t.Fatal(err)
	}
	e2, err := l.Append(ctx, Record{Subject: "web-xss", Action: ActionPatternRemoved})
	if err != nil {
		t.Fatal(err)
	}

	if e1.PrevHash != GenesisHash {
		t.Errorf("first entry should link to genesis, got %q", e1.PrevHash)
	}
	if e2.PrevHash != e1.Hash {
		t.Errorf("chain broken: e2.PrevHash=%q, want %q", e2.PrevHash, e1.Hash)
	}
	if e2.Seq != 2 {
		t.Errorf("seq: got %d, want 2", e2.Seq)
	}
	if e2.Actor != SystemActor {
		t.Errorf("empty actor should default to %q, got %q", SystemActor, e2.Actor)
	}

	head, err := l.Head(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if head != e2.Hash {
		t.Errorf("Head(): got %q, want %q", head, e2.Hash)
	}
}

func TestAppend_samePayloadSameDigest(t *testing.T) {
	l := NewMemory()
	a, _ := l.Append(ctx, Record{Action: ActionAnalysis, Payload: []string{"x"}})
	b, _ := l.Append(ctx, Record{Action: ActionAnalysis, Payload: []string{"x"}})
	if a.Digest != b.Digest {
		t.Error("identical payloads should share a digest")
	}
	if a.Hash == b.Hash {
		t.Error("distinct entries must not share a hash")
	}
}

func TestAppend_unencodablePayload(t *testing.T) {
	l := NewMemory()
	if _, err := l.Append(ctx, Record{Action: ActionAnalysis, Payload: make(chan int)}); err == nil {
		t.Fatal("expected encode error")
	}
	if n, _ := l.Len(ctx); n != 1 {
		t.Errorf("failed append must not grow the chain, len %d", n)
	}
}

func TestVerify(t *testing.T) {
	l := NewMemory()
	if err := l.Verify(ctx); err != nil {
		t.Errorf("genesis-only chain should verify: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := l.Append(ctx, Record{ThreatModelID: "tm", Action: ActionAnalysis}); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Verify(ctx); err != nil {
		t.Errorf("valid chain failed: %v", err)
	}

	l.entries[2].Summary = "rewritten"
	err := l.Verify(ctx)
	var ce *ChainError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ChainError, got %v", err)
	}
	if ce.Seq != 2 {
		t.Errorf("tampered seq: got %d, want 2", ce.Seq)
	}
}

func TestGet_outOfRange(t *testing.T) {
	l := NewMemory()
	if _, err := l.Get(ctx, 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := l.Get(ctx, -1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecent_newestFirst(t *testing.T) {
	l := NewMemory()
	for i := 0; i < 4; i++ {
		_, _ = l.Append(ctx, Record{Action: ActionAnalysis})
	}
	got, err := l.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Seq != 4 || got[1].Seq != 3 {
		t.Errorf("Recent(2): got %+v", got)
	}
	all, _ := l.Recent(ctx, 0)
	if len(all) != 5 {
		t.Errorf("Recent(0) should return every entry, got %d", len(all))
	}
}
