package coordinatorstub_test

import (
	"context"
	"testing"

	"github.com/oriys/durablevm/internal/asyncresult"
	"github.com/oriys/durablevm/internal/coordinatorstub"
	"github.com/oriys/durablevm/internal/invocation"
	"github.com/oriys/durablevm/internal/wireproto"
)

// greeterHandler mirrors spec.md scenario 6: it reads STATE, appends the
// input, writes it back, and re-reads it before echoing the result.
func greeterHandler(m *invocation.Machine) error {
	in, err := m.SysInput()
	if err != nil {
		return err
	}

	h, err := m.SysGetState("STATE")
	if err != nil {
		return err
	}
	if err := m.NotifyAwaitPoint(h); err != nil {
		return err
	}
	outcome, val, err := m.TakeAsyncResult(h)
	if err != nil {
		return err
	}
	if outcome == asyncresult.Suspended {
		return nil
	}

	greeting := string(val.Success) + string(in)
	if err := m.SysSetState("STATE", []byte(greeting)); err != nil {
		return err
	}

	h2, err := m.SysGetState("STATE")
	if err != nil {
		return err
	}
	if err := m.NotifyAwaitPoint(h2); err != nil {
		return err
	}
	outcome2, val2, err := m.TakeAsyncResult(h2)
	if err != nil {
		return err
	}
	if outcome2 == asyncresult.Suspended {
		return nil
	}

	if err := m.SysWriteOutput(wireproto.SuccessValue(val2.Success)); err != nil {
		return err
	}
	return m.SysEnd()
}

func TestFakeCoordinatorResumesAcrossSuspension(t *testing.T) {
	// The store starts empty, so the handler's first STATE read cannot
	// be served from the eager snapshot: attempt 1 emits a lazy
	// GetStateEntryMessage and suspends. The coordinator resolves it to
	// Void, and attempt 2 replays that inline result and runs to
	// completion, setting STATE along the way.
	store := coordinatorstub.NewMemStore()
	coord := coordinatorstub.NewFakeCoordinator(store)
	coord.MaxAttempts = 4

	m, err := coord.Run(context.Background(), "my-greeter", []byte("Till"), greeterHandler)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.CloseReason() != invocation.CloseEnded {
		t.Fatalf("CloseReason = %v, want CloseEnded", m.CloseReason())
	}

	final, err := store.Get(context.Background(), "my-greeter", "STATE")
	if err != nil {
		t.Fatalf("final Get: %v", err)
	}
	if string(final.Value) != "Till" {
		t.Fatalf("final STATE = %q, want Till", final.Value)
	}
}

func TestFakeCoordinatorAbsentKeyResolvesVoid(t *testing.T) {
	store := coordinatorstub.NewMemStore()
	coord := coordinatorstub.NewFakeCoordinator(store)
	coord.MaxAttempts = 4

	var sawVoid bool
	handler := func(m *invocation.Machine) error {
		if _, err := m.SysInput(); err != nil {
			return err
		}
		h, err := m.SysGetState("MISSING")
		if err != nil {
			return err
		}
		if err := m.NotifyAwaitPoint(h); err != nil {
			return err
		}
		outcome, val, err := m.TakeAsyncResult(h)
		if err != nil {
			return err
		}
		if outcome == asyncresult.Suspended {
			return nil
		}
		sawVoid = val.Kind == wireproto.ValueVoid
		if err := m.SysWriteOutput(wireproto.VoidValue()); err != nil {
			return err
		}
		return m.SysEnd()
	}

	if _, err := coord.Run(context.Background(), "empty-object", nil, handler); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sawVoid {
		t.Fatalf("expected missing key to resolve Void")
	}
}
