package eagerstate_test

import (
	"testing"

	"github.com/oriys/durablevm/internal/eagerstate"
)

func TestPartialAbsentIsUnknown(t *testing.T) {
	m := eagerstate.New(nil, true)
	status, _ := m.Get("STATE")
	if status != eagerstate.Unknown {
		t.Fatalf("Get on partial empty map = %v, want Unknown", status)
	}
}

func TestCompleteAbsentIsEmpty(t *testing.T) {
	m := eagerstate.New(nil, false)
	status, _ := m.Get("STATE")
	if status != eagerstate.Empty {
		t.Fatalf("Get on complete empty map = %v, want Empty", status)
	}
}

func TestSnapshotValueIsFound(t *testing.T) {
	m := eagerstate.New(map[string][]byte{"STATE": []byte("Francesco")}, true)
	status, v := m.Get("STATE")
	if status != eagerstate.Found || string(v) != "Francesco" {
		t.Fatalf("Get = %v %q, want Found \"Francesco\"", status, v)
	}
}

func TestSetThenGetServesLocalRegardlessOfPartial(t *testing.T) {
	m := eagerstate.New(nil, true)
	m.Set("STATE", []byte("FrancescoTill"))
	status, v := m.Get("STATE")
	if status != eagerstate.Found || string(v) != "FrancescoTill" {
		t.Fatalf("Get after Set = %v %q, want Found \"FrancescoTill\"", status, v)
	}
}

func TestClearThenGetIsEmptyEvenWhenPartial(t *testing.T) {
	m := eagerstate.New(map[string][]byte{"STATE": []byte("x")}, true)
	m.Clear("STATE")
	status, _ := m.Get("STATE")
	if status != eagerstate.Empty {
		t.Fatalf("Get after Clear = %v, want Empty", status)
	}
}

func TestClearAllThenGetIsEmptyForEveryKey(t *testing.T) {
	m := eagerstate.New(map[string][]byte{"STATE": []byte("a"), "ANOTHER_STATE": []byte("b")}, true)
	m.ClearAll()
	for _, k := range []string{"STATE", "ANOTHER_STATE", "UNSEEN"} {
		if status, _ := m.Get(k); status != eagerstate.Empty {
			t.Fatalf("Get(%q) after ClearAll = %v, want Empty", k, status)
		}
	}
}

func TestSetAfterClearAllResolvesOnlyThatKey(t *testing.T) {
	m := eagerstate.New(map[string][]byte{"STATE": []byte("a")}, true)
	m.ClearAll()
	m.Set("STATE", []byte("b"))
	status, v := m.Get("STATE")
	if status != eagerstate.Found || string(v) != "b" {
		t.Fatalf("Get(STATE) after ClearAll+Set = %v %q, want Found \"b\"", status, v)
	}
	if status, _ := m.Get("OTHER"); status != eagerstate.Empty {
		t.Fatalf("Get(OTHER) after ClearAll should still be Empty")
	}
}
