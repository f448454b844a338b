// Package asyncresult implements the open-handle registry that
// correlates asynchronous operations the handler initiated with their
// eventual journal completions (§4.3).
package asyncresult

import (
	"fmt"
	"sort"

	"github.com/oriys/durablevm/internal/journal"
	"github.com/oriys/durablevm/internal/wireproto"
)

// Handle is an opaque token bound to exactly one journal index. It
// carries no back-pointer to the registry or the journal, so a handle
// can be freely copied and compared without pinning any machinery (§9).
type Handle struct {
	index uint32
}

// Index returns the journal index this handle is bound to.
func (h Handle) Index() uint32 {
	return h.index
}

func (h Handle) String() string {
	return fmt.Sprintf("Handle(%d)", h.index)
}

// TakeOutcome is the three-way result of Take.
type TakeOutcome uint8

const (
	// NotReady means the underlying entry has no committed result yet
	// and the handler has not declared itself awaiting — used
	// internally; handler code always calls NotifyAwait before Take.
	NotReady TakeOutcome = iota
	// Ready means the underlying journal entry has a committed result.
	Ready
	// Suspended means the handler is awaiting this handle, no further
	// replay input remains for its index, and no completion has
	// arrived — the caller must cease handler work.
	Suspended
)

func (o TakeOutcome) String() string {
	switch o {
	case NotReady:
		return "NotReady"
	case Ready:
		return "Ready"
	case Suspended:
		return "Suspended"
	default:
		return fmt.Sprintf("TakeOutcome(%d)", o)
	}
}

// Registry maps open handles to their awaiting state. It holds no
// reference to the journal; every Take call is given the journal and
// a flag saying whether replay input for the index is exhausted,
// keeping the registry itself free of journal internals.
//
// Not safe for concurrent use (§5): one registry per invocation.
type Registry struct {
	awaiting map[uint32]bool // journal index -> handler is awaiting
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{awaiting: make(map[uint32]bool)}
}

// Open binds a new handle to a journal index. At most one handle is ever
// bound to a given index (§3 invariant) — callers must not call Open
// twice for the same index.
func (r *Registry) Open(index uint32) Handle {
	return Handle{index: index}
}

// NotifyAwait marks that the handler is now blocked on h.
func (r *Registry) NotifyAwait(h Handle) {
	r.awaiting[h.index] = true
}

// IsAwaiting reports whether the handler has declared itself blocked on h.
func (r *Registry) IsAwaiting(h Handle) bool {
	return r.awaiting[h.index]
}

// Take resolves h against j. replayExhausted reports whether no further
// replayed entries remain buffered for h's index (i.e. live execution has
// begun and no completion frame can still be expected from the replay
// prefix itself — a live-emitted entry always satisfies this).
func (r *Registry) Take(h Handle, j *journal.Journal, replayExhausted bool) (TakeOutcome, wireproto.Value, error) {
	e, ok := j.Get(h.index)
	if !ok {
		return NotReady, wireproto.Value{}, fmt.Errorf("asyncresult: take: unknown handle index %d", h.index)
	}
	if e.Ready() {
		return Ready, *e.Result, nil
	}
	if r.awaiting[h.index] && replayExhausted {
		return Suspended, wireproto.Value{}, nil
	}
	return NotReady, wireproto.Value{}, nil
}

// AwaitingIndexes returns the journal indices of every handle the
// handler currently has open with NotifyAwait, ascending and deduped —
// exactly the set a SuspensionMessage must name (§4.5 step 1).
func (r *Registry) AwaitingIndexes() []uint32 {
	indexes := make([]uint32, 0, len(r.awaiting))
	for idx, awaiting := range r.awaiting {
		if awaiting {
			indexes = append(indexes, idx)
		}
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	return indexes
}

// Discharge forgets a handle's awaiting bit once it has resolved, so a
// stale await doesn't linger for an index that will never be queried
// again.
func (r *Registry) Discharge(h Handle) {
	delete(r.awaiting, h.index)
}
