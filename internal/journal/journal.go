// Package journal implements the ordered, 1-indexed entry log that makes
// an invocation's handler execution deterministic under replay (§4.2).
//
// The input entry is deliberately not part of this journal: it is always
// exactly the invocation's first inbound frame and carries no handle or
// completion semantics, so the Machine tracks it separately and reserves
// journal index 1 for the invocation's first post-input operation.
package journal

import (
	"fmt"

	"github.com/oriys/durablevm/internal/wireproto"
)

// Kind identifies what an entry records, independent of its wire message
// type — the journal only cares about kind for diagnostics and invariant
// checks, not for dispatch (that's the Machine's job).
type Kind uint8

const (
	KindGetState Kind = iota
	KindGetStateKeys
	KindSetState
	KindClearState
	KindClearAllState
	KindOutput
	KindEnd
)

func (k Kind) String() string {
	switch k {
	case KindGetState:
		return "GetState"
	case KindGetStateKeys:
		return "GetStateKeys"
	case KindSetState:
		return "SetState"
	case KindClearState:
		return "ClearState"
	case KindClearAllState:
		return "ClearAllState"
	case KindOutput:
		return "Output"
	case KindEnd:
		return "End"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Entry is a single recorded effect. Payload holds kind-specific data (the
// key bytes for get/set/clear entries); Result, once non-nil, is
// committed and immutable.
type Entry struct {
	Kind    Kind
	Payload []byte
	Result  *wireproto.Value
	// Keys holds the known-key listing for a KindGetStateKeys entry.
	// Unlike Result, it is populated atomically with the entry itself —
	// the listing is always locally derivable, so it never needs an
	// out-of-band completion.
	Keys [][]byte
}

// Ready reports whether this entry has a committed result. A
// KindGetStateKeys entry is always ready the moment it exists.
func (e *Entry) Ready() bool {
	return e.Result != nil || e.Kind == KindGetStateKeys
}

// Journal is the ordered, append-only, 1-indexed entry log owned
// exclusively by one invocation's Machine. It performs no locking: per
// §5, a Journal is single-threaded, owned by exactly one VM instance.
type Journal struct {
	entries      []Entry // entries[0] is index 1
	knownEntries uint32
}

// New returns an empty Journal.
func New() *Journal {
	return &Journal{}
}

// SetKnownEntries records how many post-input entries the replay prefix
// declares (the start message's known_entries minus the input entry
// itself; see the package doc).
func (j *Journal) SetKnownEntries(n uint32) {
	j.knownEntries = n
}

// KnownEntries returns the declared post-input replay prefix length.
func (j *Journal) KnownEntries() uint32 {
	return j.knownEntries
}

// NextReplayIndex returns the next index still expected from the replay
// prefix, or false once the journal holds knownEntries entries and live
// execution can begin.
func (j *Journal) NextReplayIndex() (uint32, bool) {
	n := j.Len()
	if n >= j.knownEntries {
		return 0, false
	}
	return n + 1, true
}

// Append records a new entry and returns its 1-based index.
func (j *Journal) Append(e Entry) uint32 {
	j.entries = append(j.entries, e)
	return uint32(len(j.entries))
}

// Len reports how many entries have been appended.
func (j *Journal) Len() uint32 {
	return uint32(len(j.entries))
}

// Get returns the entry at index, or false if index is out of range.
// Indices are 1-based; Get(0) always misses.
func (j *Journal) Get(index uint32) (*Entry, bool) {
	if index == 0 || index > uint32(len(j.entries)) {
		return nil, false
	}
	return &j.entries[index-1], true
}

// SetResult commits a result to the entry at index. It is an error to
// call this on an already-resolved entry or an out-of-range index — a
// handle is resolved at most once (§3 invariants).
func (j *Journal) SetResult(index uint32, v wireproto.Value) error {
	e, ok := j.Get(index)
	if !ok {
		return fmt.Errorf("journal: set_result: index %d out of range (len=%d)", index, j.Len())
	}
	if e.Ready() {
		return fmt.Errorf("journal: set_result: index %d already resolved", index)
	}
	e.Result = &v
	return nil
}

// IsReady reports whether the entry at index has a committed result.
// An out-of-range index is never ready.
func (j *Journal) IsReady(index uint32) bool {
	e, ok := j.Get(index)
	return ok && e.Ready()
}
