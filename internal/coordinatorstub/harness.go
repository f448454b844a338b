package coordinatorstub

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/durablevm/internal/invocation"
	"github.com/oriys/durablevm/internal/wireproto"
)

// PendingGet names a still-unresolved get-state entry the fake
// coordinator must answer before the handler can make progress.
type PendingGet struct {
	Index uint32
	Key   string
}

// ResolvePending fetches every pending key concurrently, the way
// executor.Invoke's parallel pre-fetch uses errgroup.WithContext to fan
// out several independent store reads before resuming sequential work.
// A missing key resolves to Void, matching sys_get_state's own
// eager-state Empty semantics rather than surfacing as an error.
func ResolvePending(ctx context.Context, store Store, objectKey string, pending []PendingGet) ([]wireproto.CompletionMessage, error) {
	results := make([]wireproto.Value, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range pending {
		i, p := i, p
		g.Go(func() error {
			entry, err := store.Get(gctx, objectKey, p.Key)
			switch {
			case errors.Is(err, ErrStateNotFound):
				results[i] = wireproto.VoidValue()
				return nil
			case err != nil:
				return fmt.Errorf("resolve %q: %w", p.Key, err)
			default:
				results[i] = wireproto.SuccessValue(entry.Value)
				return nil
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	completions := make([]wireproto.CompletionMessage, len(pending))
	for i, p := range pending {
		completions[i] = wireproto.CompletionMessage{EntryIndex: p.Index, Result: results[i]}
	}
	return completions, nil
}

// HandlerFunc is a test handler written directly against the invocation
// Machine's public API, the same shape a real SDK binding would present
// to generated user code.
type HandlerFunc func(m *invocation.Machine) error

// FakeCoordinator drives a handler across however many suspend/resume
// attempts it takes to reach EndMessage, persisting state writes to a
// Store and replaying prior attempts' entries verbatim (§4.5 deterministic
// replay) rather than keeping the suspended Machine around — exactly how
// a real coordinator treats suspension: the process that suspended is
// gone, and resumption is a fresh attempt with a longer known replay
// prefix.
type FakeCoordinator struct {
	Store       Store
	Partial     bool // whether attempts declare partial_state=true
	MachineOpts []invocation.Option
	MaxAttempts int // 0 means unbounded
}

// NewFakeCoordinator returns a FakeCoordinator backed by store, defaulting
// to partial eager-state snapshots (so most gets exercise the lazy path).
func NewFakeCoordinator(store Store) *FakeCoordinator {
	return &FakeCoordinator{Store: store, Partial: true}
}

// Run drives handler against objectKey and input, resuming across
// suspensions until the invocation ends. It returns the Machine from the
// final, successful attempt.
func (c *FakeCoordinator) Run(ctx context.Context, objectKey string, input []byte, handler HandlerFunc) (*invocation.Machine, error) {
	var priorEntries []wireproto.Message

	for attempt := 1; ; attempt++ {
		if c.MaxAttempts != 0 && attempt > c.MaxAttempts {
			return nil, fmt.Errorf("coordinatorstub: exceeded %d attempts without reaching End", c.MaxAttempts)
		}

		m := invocation.New(c.MachineOpts...)
		snapshot, err := c.Store.List(ctx, objectKey)
		if err != nil {
			return nil, fmt.Errorf("list state for %q: %w", objectKey, err)
		}
		stateMap := make([]wireproto.StateEntry, len(snapshot))
		for i, e := range snapshot {
			stateMap[i] = wireproto.StateEntry{Key: []byte(e.Key), Value: e.Value}
		}

		if err := m.Start(&wireproto.StartMessage{
			ID:           []byte(fmt.Sprintf("%s-%d", objectKey, attempt)),
			KnownEntries: uint32(1 + len(priorEntries)),
			StateMap:     stateMap,
			PartialState: c.Partial,
			Key:          objectKey,
			Version:      invocation.ProtocolVersionV1,
		}); err != nil {
			return nil, fmt.Errorf("attempt %d: start: %w", attempt, err)
		}
		if err := m.FeedReplayEntry(&wireproto.InputEntryMessage{Value: input}); err != nil {
			return nil, fmt.Errorf("attempt %d: feed input: %w", attempt, err)
		}
		for _, e := range priorEntries {
			if err := m.FeedReplayEntry(e); err != nil {
				return nil, fmt.Errorf("attempt %d: feed replay entry: %w", attempt, err)
			}
		}

		if err := handler(m); err != nil {
			return nil, fmt.Errorf("attempt %d: handler: %w", attempt, err)
		}

		outbox := m.Drain()
		if m.CloseReason() != invocation.CloseEnded && m.CloseReason() != invocation.CloseSuspended {
			return nil, fmt.Errorf("attempt %d: machine closed without ending or suspending (reason=%v)", attempt, m.CloseReason())
		}

		var pending []PendingGet
		for _, msg := range outbox {
			switch t := msg.(type) {
			case *wireproto.GetStateEntryMessage:
				idx := uint32(len(priorEntries) + 1) // journal-local index: first post-input entry is 1
				pending = append(pending, PendingGet{Index: idx, Key: string(t.Key)})
				priorEntries = append(priorEntries, t)
			case *wireproto.SetStateEntryMessage:
				if _, err := c.Store.Put(ctx, objectKey, string(t.Key), t.Value); err != nil {
					return nil, fmt.Errorf("apply set-state: %w", err)
				}
				priorEntries = append(priorEntries, t)
			case *wireproto.ClearStateEntryMessage:
				if err := c.Store.Delete(ctx, objectKey, string(t.Key)); err != nil {
					return nil, fmt.Errorf("apply clear-state: %w", err)
				}
				priorEntries = append(priorEntries, t)
			case *wireproto.ClearAllStateEntryMessage:
				if err := c.Store.DeleteAll(ctx, objectKey); err != nil {
					return nil, fmt.Errorf("apply clear-all-state: %w", err)
				}
				priorEntries = append(priorEntries, t)
			case *wireproto.SuspensionMessage:
				// Informational only; carries no replay semantics of its own.
			default:
				priorEntries = append(priorEntries, msg)
			}
		}

		if m.CloseReason() == invocation.CloseEnded {
			return m, nil
		}

		if len(pending) == 0 {
			return nil, fmt.Errorf("attempt %d: suspended with nothing resolvable, would loop forever", attempt)
		}

		completions, err := ResolvePending(ctx, c.Store, objectKey, pending)
		if err != nil {
			return nil, fmt.Errorf("attempt %d: resolve pending: %w", attempt, err)
		}
		for _, comp := range completions {
			placeholderIdx := int(comp.EntryIndex) - 1 // undo the +1 offset above
			g, ok := priorEntries[placeholderIdx].(*wireproto.GetStateEntryMessage)
			if !ok {
				return nil, fmt.Errorf("attempt %d: internal bookkeeping error at index %d", attempt, comp.EntryIndex)
			}
			res := comp.Result
			priorEntries[placeholderIdx] = &wireproto.GetStateEntryMessage{Key: g.Key, Result: &res}
		}
	}
}
