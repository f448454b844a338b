package invocation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/oriys/durablevm/internal/asyncresult"
	"github.com/oriys/durablevm/internal/eagerstate"
	"github.com/oriys/durablevm/internal/journal"
	"github.com/oriys/durablevm/internal/vmerrors"
	"github.com/oriys/durablevm/internal/vmmetrics"
	"github.com/oriys/durablevm/internal/wireproto"
)

// emitEntrySpan opens and immediately closes a child span around one
// live journal entry emission, named after the entry's kind. The
// invocation span is the only long-lived span (§4.5); this gives a
// trace backend a per-entry timeline nested under it without the
// Machine itself holding any span open longer than a single emission.
func (m *Machine) emitEntrySpan(kind journal.Kind) {
	if m.span == nil {
		return
	}
	ctx := trace.ContextWithSpan(context.Background(), m.span)
	_, child := m.tracer.Start(ctx, "invocation.entry."+kind.String())
	child.End()
}

// SysInput returns the invocation's input payload. It may be called
// exactly once, and only once the replay prefix has been fully buffered
// (the input entry is held apart from the journal and occupies no journal
// index; see the journal package doc).
func (m *Machine) SysInput() ([]byte, error) {
	if err := m.checkNotClosed(); err != nil {
		return nil, err
	}
	if m.phase != PhaseLiveExecution {
		return nil, vmerrors.Misuse("sys_input called before start completed")
	}
	if m.inputRead {
		return nil, vmerrors.Misuse("%w", vmerrors.ErrInputAlreadyRead)
	}
	m.inputRead = true
	return m.inputValue, nil
}

// SysGetState requests or replays a keyed state read (§4.5 get-state
// policy). The eager view is always consulted first; only an Unknown
// result ever needs a journal round trip.
func (m *Machine) SysGetState(key string) (asyncresult.Handle, error) {
	var zero asyncresult.Handle
	if err := m.checkNotClosed(); err != nil {
		return zero, err
	}
	if m.phase != PhaseLiveExecution {
		return zero, vmerrors.Misuse("sys_get_state called before start completed")
	}

	idx := m.nextIndex()
	withinReplay := m.withinReplayPrefix(idx)

	status, val := m.eager.Get(key)

	var resolved *wireproto.Value
	switch status {
	case eagerstate.Found:
		v := wireproto.SuccessValue(val)
		resolved = &v
	case eagerstate.Empty:
		v := wireproto.VoidValue()
		resolved = &v
	case eagerstate.Unknown:
		if withinReplay {
			e, ok := m.journal.Get(idx)
			if !ok {
				return zero, vmerrors.Protocol("replay prefix missing entry at index %d", idx)
			}
			resolved = e.Result // may be nil: unresolved lazy entry
		}
		// else: live and unknown — resolved stays nil, a fresh entry is emitted below.
	}

	if withinReplay {
		m.advanceCursor()
		return m.registry.Open(idx), nil
	}

	if err := m.checkOverCapacity(); err != nil {
		return zero, err
	}
	entry := journal.Entry{Kind: journal.KindGetState, Payload: []byte(key), Result: resolved}
	newIdx := m.journal.Append(entry)
	vmmetrics.RecordEntry("live", journal.KindGetState.String())
	msg := &wireproto.GetStateEntryMessage{Key: []byte(key), Result: resolved}
	m.emit(msg)
	m.emitEntrySpan(journal.KindGetState)
	m.advanceCursor()
	return m.registry.Open(newIdx), nil
}

// SysGetStateKeys returns the invocation's currently known state keys.
// Unlike get-state, the known-key listing is always locally derivable
// from the eager view (no pattern filtering, per SPEC_FULL's Non-goal),
// so it resolves synchronously and never returns a handle or suspends.
func (m *Machine) SysGetStateKeys() ([]string, error) {
	if err := m.checkNotClosed(); err != nil {
		return nil, err
	}
	if m.phase != PhaseLiveExecution {
		return nil, vmerrors.Misuse("sys_get_state_keys called before start completed")
	}

	idx := m.nextIndex()
	if m.withinReplayPrefix(idx) {
		e, ok := m.journal.Get(idx)
		if !ok || e.Kind != journal.KindGetStateKeys {
			return nil, vmerrors.Protocol("replay prefix missing get-state-keys entry at index %d", idx)
		}
		keys := make([]string, len(e.Keys))
		for i, k := range e.Keys {
			keys[i] = string(k)
		}
		m.advanceCursor()
		return keys, nil
	}

	if err := m.checkOverCapacity(); err != nil {
		return nil, err
	}
	keys := m.eager.Keys()
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		raw[i] = []byte(k)
	}
	m.journal.Append(journal.Entry{Kind: journal.KindGetStateKeys, Keys: raw})
	vmmetrics.RecordEntry("live", journal.KindGetStateKeys.String())
	m.emit(&wireproto.GetStateKeysEntryMessage{Keys: raw, Result: true})
	m.emitEntrySpan(journal.KindGetStateKeys)
	m.advanceCursor()
	return keys, nil
}

// SysSetState records a state write and updates the eager view
// immediately, so any subsequent get of the same key this invocation
// serves the local value (§3).
func (m *Machine) SysSetState(key string, value []byte) error {
	return m.writeStateOp(journal.KindSetState, key, func() {
		m.eager.Set(key, value)
	}, func() wireproto.Message {
		return &wireproto.SetStateEntryMessage{Key: []byte(key), Value: value}
	})
}

// SysClearState records a single-key clear.
func (m *Machine) SysClearState(key string) error {
	return m.writeStateOp(journal.KindClearState, key, func() {
		m.eager.Clear(key)
	}, func() wireproto.Message {
		return &wireproto.ClearStateEntryMessage{Key: []byte(key)}
	})
}

// SysClearAllState records a clear of every key.
func (m *Machine) SysClearAllState() error {
	return m.writeStateOp(journal.KindClearAllState, "", func() {
		m.eager.ClearAll()
	}, func() wireproto.Message {
		return &wireproto.ClearAllStateEntryMessage{}
	})
}

func (m *Machine) writeStateOp(kind journal.Kind, key string, mutate func(), build func() wireproto.Message) error {
	if err := m.checkNotClosed(); err != nil {
		return err
	}
	if m.phase != PhaseLiveExecution {
		return vmerrors.Misuse("state write called before start completed")
	}

	idx := m.nextIndex()
	mutate()

	if m.withinReplayPrefix(idx) {
		m.advanceCursor()
		return nil
	}

	if err := m.checkOverCapacity(); err != nil {
		return err
	}
	v := wireproto.VoidValue()
	var payload []byte
	if key != "" {
		payload = []byte(key)
	}
	m.journal.Append(journal.Entry{Kind: kind, Payload: payload, Result: &v})
	vmmetrics.RecordEntry("live", kind.String())
	m.emit(build())
	m.emitEntrySpan(kind)
	m.advanceCursor()
	return nil
}

// SysWriteOutput records the invocation's terminal result.
func (m *Machine) SysWriteOutput(v wireproto.Value) error {
	if err := m.checkNotClosed(); err != nil {
		return err
	}
	if m.phase != PhaseLiveExecution {
		return vmerrors.Misuse("sys_write_output called before start completed")
	}

	idx := m.nextIndex()
	if m.withinReplayPrefix(idx) {
		m.advanceCursor()
		return nil
	}
	if err := m.checkOverCapacity(); err != nil {
		return err
	}
	m.journal.Append(journal.Entry{Kind: journal.KindOutput, Result: &v})
	vmmetrics.RecordEntry("live", journal.KindOutput.String())
	m.emit(&wireproto.OutputEntryMessage{Result: v})
	m.emitEntrySpan(journal.KindOutput)
	m.advanceCursor()
	return nil
}

// SysEnd terminates the invocation successfully. After End, the VM
// emits nothing further (§3).
func (m *Machine) SysEnd() error {
	if err := m.checkNotClosed(); err != nil {
		return err
	}
	if m.phase != PhaseLiveExecution {
		return vmerrors.Misuse("sys_end called before start completed")
	}

	idx := m.nextIndex()
	if !m.withinReplayPrefix(idx) {
		if err := m.checkOverCapacity(); err != nil {
			return err
		}
		v := wireproto.VoidValue()
		m.journal.Append(journal.Entry{Kind: journal.KindEnd, Result: &v})
		m.emit(&wireproto.EndMessage{})
		m.emitEntrySpan(journal.KindEnd)
	}
	m.advanceCursor()
	m.phase = PhaseClosed
	m.closeReason = CloseEnded
	m.log.Debug("invocation ended", "debug_id", m.debugID)
	m.recordClose("ended")
	if m.span != nil {
		m.span.End()
	}
	return nil
}

// recordClose reports the terminal outcome of this invocation attempt to
// vmmetrics exactly once, from whichever close path (end or suspend)
// reached it. Start's own protocol-error closes do not call it.
func (m *Machine) recordClose(outcome string) {
	vmmetrics.DecActiveInvocations()
	var durationMs float64
	if !m.startedAt.IsZero() {
		durationMs = float64(time.Since(m.startedAt).Microseconds()) / 1000
	}
	vmmetrics.RecordInvocation(outcome, durationMs, int(m.journal.Len()))
}

// NotifyAwaitPoint marks that the handler is now blocked on h.
func (m *Machine) NotifyAwaitPoint(h asyncresult.Handle) error {
	if err := m.checkNotClosed(); err != nil {
		return err
	}
	m.registry.NotifyAwait(h)
	return nil
}

// TakeAsyncResult resolves h, suspending the invocation if nothing has
// completed and no more replay input can resolve it (§4.3, §4.5). Per
// the cooperative-suspension convention (§9), once the invocation has
// suspended every subsequent call is a silent no-op that returns the
// cached Suspended outcome — never a second SuspensionMessage.
func (m *Machine) TakeAsyncResult(h asyncresult.Handle) (asyncresult.TakeOutcome, wireproto.Value, error) {
	if m.phase == PhaseClosed && m.closeReason == CloseSuspended {
		return asyncresult.Suspended, wireproto.Value{}, nil
	}
	if err := m.checkNotClosed(); err != nil {
		return asyncresult.NotReady, wireproto.Value{}, err
	}

	outcome, value, err := m.registry.Take(h, m.journal, true)
	if err != nil {
		return asyncresult.NotReady, wireproto.Value{}, vmerrors.Misuse("%w: %v", vmerrors.ErrUnknownHandle, err)
	}

	switch outcome {
	case asyncresult.Ready:
		m.registry.Discharge(h)
		return outcome, value, nil
	case asyncresult.Suspended:
		m.suspend()
		return asyncresult.Suspended, wireproto.Value{}, nil
	default:
		return outcome, value, nil
	}
}

func (m *Machine) suspend() {
	indexes := m.registry.AwaitingIndexes()
	m.emit(&wireproto.SuspensionMessage{EntryIndexes: indexes})
	m.phase = PhaseClosed
	m.closeReason = CloseSuspended
	m.log.Debug("invocation suspended", "debug_id", m.debugID, "awaiting", indexes)
	m.recordClose("suspended")
	if m.span != nil {
		m.span.SetStatus(codes.Ok, "suspended")
		m.span.End()
	}
}
