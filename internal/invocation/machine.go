// Package invocation implements the invocation state machine (§4.5), the
// orchestrator that ties the wire codec, journal, async result registry,
// and eager state map into the replay/record protocol described by the
// rest of this module.
package invocation

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/oriys/durablevm/internal/asyncresult"
	"github.com/oriys/durablevm/internal/eagerstate"
	"github.com/oriys/durablevm/internal/journal"
	"github.com/oriys/durablevm/internal/observability"
	"github.com/oriys/durablevm/internal/vmerrors"
	"github.com/oriys/durablevm/internal/vmmetrics"
	"github.com/oriys/durablevm/internal/wireproto"
)

// Phase is the invocation's position in its lifecycle (§4.5).
type Phase uint8

const (
	PhaseExpectStart Phase = iota
	PhaseReplayingPrefix
	PhaseLiveExecution
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseExpectStart:
		return "ExpectStart"
	case PhaseReplayingPrefix:
		return "ReplayingPrefix"
	case PhaseLiveExecution:
		return "LiveExecution"
	case PhaseClosed:
		return "Closed"
	default:
		return "Invalid"
	}
}

// CloseReason distinguishes the three ways a Closed invocation got there.
type CloseReason uint8

const (
	CloseNone CloseReason = iota
	CloseEnded
	CloseSuspended
	CloseError
)

// ProtocolVersionV1 is the only protocol version this VM accepts (§6,
// SPEC_FULL versioning note).
const ProtocolVersionV1 = 1

// Machine is the invocation state machine. It owns a journal, an eager
// state map, and an async result registry, and buffers outbound wire
// messages for an external I/O pump to Drain() (§5: the VM performs no
// I/O of its own). Not safe for concurrent use — exactly one Machine per
// invocation, on one goroutine, per §5's single-threaded model.
type Machine struct {
	phase       Phase
	closeReason CloseReason

	id      []byte
	debugID string
	key     string
	version uint32

	journal  *journal.Journal
	eager    *eagerstate.Map
	registry *asyncresult.Registry

	inputReceived bool
	inputValue    []byte
	inputRead     bool

	// opCursor is the journal index the handler's next sequential
	// operation will occupy. It starts at 1 and advances once per Sys*
	// call, independent of journal.Len() — once the replay prefix has
	// been fully buffered, the journal already holds KnownEntries()
	// entries before the handler makes its first call, so the handler's
	// own call count cannot be read back off the journal's length.
	opCursor uint32

	outbox []wireproto.Message

	log               *slog.Logger
	logOverridden     bool
	maxJournalEntries uint32
	genDebugID        func() string

	tracer    trace.Tracer
	span      trace.Span
	startedAt time.Time
}

// New constructs a Machine in PhaseExpectStart.
func New(opts ...Option) *Machine {
	m := &Machine{
		phase:      PhaseExpectStart,
		journal:    journal.New(),
		registry:   asyncresult.New(),
		log:        defaultLogger(),
		genDebugID: func() string { return uuid.New().String() },
		tracer:     observability.Tracer(),
		opCursor:   1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Phase reports the invocation's current lifecycle phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// CloseReason reports why the invocation reached PhaseClosed, or
// CloseNone if it has not closed yet.
func (m *Machine) CloseReason() CloseReason {
	return m.closeReason
}

// DebugID returns the invocation's debug-visible correlation id.
func (m *Machine) DebugID() string {
	return m.debugID
}

// Drain returns and clears the buffered outbound messages. The caller
// (the transport pump) owns writing them to the wire in order.
func (m *Machine) Drain() []wireproto.Message {
	out := m.outbox
	m.outbox = nil
	return out
}

func (m *Machine) emit(msg wireproto.Message) {
	m.outbox = append(m.outbox, msg)
}

// nextIndex is the journal index the next sequential handler operation
// will occupy, whether served from the replay prefix or emitted live.
// It is tracked by opCursor rather than journal.Len()+1: once the full
// replay prefix has been buffered ahead of time, the journal already
// holds knownEntries() entries before the handler makes its first call,
// so the handler's own call count can't be read back off the journal's
// length.
func (m *Machine) nextIndex() uint32 {
	return m.opCursor
}

// advanceCursor moves the op cursor past the index just served. Every
// Sys* call that allocates a sequential index calls this exactly once,
// regardless of whether the index was adopted from the replay prefix or
// freshly appended live.
func (m *Machine) advanceCursor() {
	m.opCursor++
}

// withinReplayPrefix reports whether idx was already populated while
// buffering the start message's declared replay prefix, meaning this
// operation must be served without touching the wire.
func (m *Machine) withinReplayPrefix(idx uint32) bool {
	return idx <= m.journal.KnownEntries()
}

func (m *Machine) checkNotClosed() error {
	if m.phase == PhaseClosed {
		return vmerrors.ErrClosed
	}
	return nil
}

// spanError records err on the invocation's span, if one is open, and
// returns err unchanged so callers can wrap it inline in a return.
func (m *Machine) spanError(err error) error {
	if err != nil && m.span != nil {
		m.span.RecordError(err)
	}
	return err
}

func (m *Machine) checkOverCapacity() error {
	if m.maxJournalEntries != 0 && m.journal.Len() >= m.maxJournalEntries {
		return vmerrors.Protocol("journal entry cap (%d) reached", m.maxJournalEntries)
	}
	return nil
}
