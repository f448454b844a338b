package invocation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/oriys/durablevm/internal/eagerstate"
	"github.com/oriys/durablevm/internal/journal"
	"github.com/oriys/durablevm/internal/logging"
	"github.com/oriys/durablevm/internal/vmerrors"
	"github.com/oriys/durablevm/internal/vmmetrics"
	"github.com/oriys/durablevm/internal/wireproto"
)

// Start consumes the mandatory first inbound frame. It must be called
// exactly once, before any FeedReplayEntry or Sys* call.
func (m *Machine) Start(msg *wireproto.StartMessage) error {
	if m.phase != PhaseExpectStart {
		return vmerrors.Protocol("%w", vmerrors.ErrAlreadyStarted)
	}
	if msg.Version != ProtocolVersionV1 {
		m.phase = PhaseClosed
		m.closeReason = CloseError
		return vmerrors.Protocol("%w: got %d, want %d", vmerrors.ErrUnsupportedVersion, msg.Version, ProtocolVersionV1)
	}

	m.id = msg.ID
	m.debugID = msg.DebugID
	if m.debugID == "" {
		m.debugID = m.genDebugID()
	}
	m.key = msg.Key
	m.version = msg.Version

	snapshot := make(map[string][]byte, len(msg.StateMap))
	for _, e := range msg.StateMap {
		snapshot[string(e.Key)] = e.Value
	}
	m.eager = eagerstate.New(snapshot, msg.PartialState)

	if msg.KnownEntries < 1 {
		m.phase = PhaseClosed
		m.closeReason = CloseError
		return vmerrors.Protocol("known_entries must be at least 1 (the input entry), got %d", msg.KnownEntries)
	}
	m.journal.SetKnownEntries(msg.KnownEntries - 1)
	m.phase = PhaseReplayingPrefix
	m.startedAt = time.Now()
	vmmetrics.IncActiveInvocations()

	_, m.span = m.tracer.Start(context.Background(), "invocation.run")
	m.span.SetAttributes(
		attribute.String("invocation.debug_id", m.debugID),
		attribute.String("invocation.key", m.key),
		attribute.Int64("invocation.known_entries", int64(msg.KnownEntries)),
	)

	// Once a span is open, every subsequent log line for this invocation
	// carries its trace and span ids so operational logs and traces can
	// be correlated in whatever backend ingests both. Skipped if the
	// caller supplied its own logger via WithLogger.
	if !m.logOverridden {
		if sc := m.span.SpanContext(); sc.IsValid() {
			m.log = logging.OpWithTrace(sc.TraceID().String(), sc.SpanID().String())
		}
	}

	m.log.Debug("invocation started",
		"debug_id", m.debugID, "key", m.key, "known_entries", msg.KnownEntries, "partial_state", msg.PartialState)

	return nil
}

// FeedReplayEntry consumes one inbound replay-prefix frame. The very
// first call must carry the InputEntryMessage, which is stored directly
// rather than journaled (see the journal package doc). Subsequent calls
// append to the journal verbatim, including whatever inline result they
// carry. Once the journal reaches the declared post-input prefix length,
// the invocation transitions to PhaseLiveExecution and handler execution
// may begin.
func (m *Machine) FeedReplayEntry(msg wireproto.Message) error {
	if m.phase != PhaseReplayingPrefix {
		return vmerrors.Protocol("FeedReplayEntry called outside ReplayingPrefix (phase=%s)", m.phase)
	}

	if !m.inputReceived {
		in, ok := msg.(*wireproto.InputEntryMessage)
		if !ok {
			return vmerrors.Protocol("first replayed frame must be InputEntryMessage, got %T", msg)
		}
		m.inputValue = in.Value
		m.inputReceived = true
		if m.journal.Len() >= m.journal.KnownEntries() {
			m.phase = PhaseLiveExecution
			m.log.Debug("replay prefix complete, handing control to handler", "debug_id", m.debugID, "entries", m.journal.Len())
		}
		return nil
	}

	if m.journal.Len() >= m.journal.KnownEntries() {
		return vmerrors.Protocol("replay prefix already fully buffered (known_entries=%d)", m.journal.KnownEntries())
	}

	entry, err := entryFromReplayMessage(msg)
	if err != nil {
		return vmerrors.Protocol("%v", err)
	}
	m.journal.Append(entry)
	vmmetrics.RecordEntry("replay", entry.Kind.String())

	if m.journal.Len() >= m.journal.KnownEntries() {
		m.phase = PhaseLiveExecution
		m.log.Debug("replay prefix complete, handing control to handler", "debug_id", m.debugID, "entries", m.journal.Len())
	}
	return nil
}

func entryFromReplayMessage(msg wireproto.Message) (journal.Entry, error) {
	switch t := msg.(type) {
	case *wireproto.GetStateEntryMessage:
		return journal.Entry{Kind: journal.KindGetState, Payload: t.Key, Result: t.Result}, nil
	case *wireproto.GetStateKeysEntryMessage:
		e := journal.Entry{Kind: journal.KindGetStateKeys}
		if t.Result {
			e.Keys = t.Keys
		}
		return e, nil
	case *wireproto.SetStateEntryMessage:
		v := wireproto.VoidValue()
		return journal.Entry{Kind: journal.KindSetState, Payload: t.Key, Result: &v}, nil
	case *wireproto.ClearStateEntryMessage:
		v := wireproto.VoidValue()
		return journal.Entry{Kind: journal.KindClearState, Payload: t.Key, Result: &v}, nil
	case *wireproto.ClearAllStateEntryMessage:
		v := wireproto.VoidValue()
		return journal.Entry{Kind: journal.KindClearAllState, Result: &v}, nil
	case *wireproto.OutputEntryMessage:
		v := t.Result
		return journal.Entry{Kind: journal.KindOutput, Result: &v}, nil
	case *wireproto.EndMessage:
		v := wireproto.VoidValue()
		return journal.Entry{Kind: journal.KindEnd, Result: &v}, nil
	default:
		return journal.Entry{}, vmerrors.Protocol("unexpected message type in replay prefix: %T", msg)
	}
}

// ApplyCompletion routes an out-of-band CompletionMessage to the journal
// entry it names, resolving any handle bound to that index. It may
// arrive at any point after the entry was emitted and before end or
// suspension (§4.5 ordering guarantees); the order multiple completions
// arrive in has no effect on the eventual handle states.
func (m *Machine) ApplyCompletion(msg *wireproto.CompletionMessage) error {
	if err := m.checkNotClosed(); err != nil {
		return nil // a completion racing a just-closed invocation is not an error to the caller
	}
	entry, ok := m.journal.Get(msg.EntryIndex)
	if !ok {
		return m.spanError(vmerrors.Protocol("completion for unknown index %d", msg.EntryIndex))
	}
	if entry.Ready() {
		return m.spanError(vmerrors.Protocol("completion for already-resolved index %d", msg.EntryIndex))
	}
	if err := m.journal.SetResult(msg.EntryIndex, msg.Result); err != nil {
		return m.spanError(vmerrors.Protocol("%v", err))
	}
	m.log.Debug("completion applied", "debug_id", m.debugID, "entry_index", msg.EntryIndex, "result", msg.Result)
	return nil
}
