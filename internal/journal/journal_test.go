package journal_test

import (
	"testing"

	"github.com/oriys/durablevm/internal/journal"
	"github.com/oriys/durablevm/internal/wireproto"
)

func TestAppendIsOneIndexedAndDense(t *testing.T) {
	j := journal.New()
	i1 := j.Append(journal.Entry{Kind: journal.KindGetState})
	i2 := j.Append(journal.Entry{Kind: journal.KindSetState})
	if i1 != 1 || i2 != 2 {
		t.Fatalf("got indexes %d, %d; want 1, 2", i1, i2)
	}
	if j.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", j.Len())
	}
}

func TestGetOutOfRange(t *testing.T) {
	j := journal.New()
	j.Append(journal.Entry{Kind: journal.KindGetState})
	if _, ok := j.Get(0); ok {
		t.Fatalf("Get(0) should miss")
	}
	if _, ok := j.Get(2); ok {
		t.Fatalf("Get(2) should miss on a 1-entry journal")
	}
	if _, ok := j.Get(1); !ok {
		t.Fatalf("Get(1) should hit")
	}
}

func TestSetResultOnceThenRejects(t *testing.T) {
	j := journal.New()
	idx := j.Append(journal.Entry{Kind: journal.KindGetState})
	if j.IsReady(idx) {
		t.Fatalf("fresh entry should not be ready")
	}
	if err := j.SetResult(idx, wireproto.SuccessValue([]byte("a"))); err != nil {
		t.Fatalf("SetResult: %v", err)
	}
	if !j.IsReady(idx) {
		t.Fatalf("entry should be ready after SetResult")
	}
	if err := j.SetResult(idx, wireproto.SuccessValue([]byte("b"))); err == nil {
		t.Fatalf("expected error re-resolving an already-resolved entry")
	}
}

func TestSetResultUnknownIndex(t *testing.T) {
	j := journal.New()
	if err := j.SetResult(5, wireproto.VoidValue()); err == nil {
		t.Fatalf("expected error setting result on out-of-range index")
	}
}

func TestNextReplayIndex(t *testing.T) {
	j := journal.New()
	j.SetKnownEntries(2)
	idx, ok := j.NextReplayIndex()
	if !ok || idx != 1 {
		t.Fatalf("NextReplayIndex = %d, %v; want 1, true", idx, ok)
	}
	j.Append(journal.Entry{Kind: journal.KindGetState})
	idx, ok = j.NextReplayIndex()
	if !ok || idx != 2 {
		t.Fatalf("NextReplayIndex = %d, %v; want 2, true", idx, ok)
	}
	j.Append(journal.Entry{Kind: journal.KindGetState})
	if _, ok := j.NextReplayIndex(); ok {
		t.Fatalf("NextReplayIndex should report exhausted once knownEntries reached")
	}
}
