package invocation_test

import (
	"testing"

	"github.com/oriys/durablevm/internal/asyncresult"
	"github.com/oriys/durablevm/internal/invocation"
	"github.com/oriys/durablevm/internal/wireproto"
)

func start(t *testing.T, m *invocation.Machine, known uint32, partial bool, stateMap []wireproto.StateEntry, key string) {
	t.Helper()
	err := m.Start(&wireproto.StartMessage{
		ID:           []byte("abc"),
		KnownEntries: known,
		PartialState: partial,
		StateMap:     stateMap,
		Key:          key,
		Version:      invocation.ProtocolVersionV1,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func feedInput(t *testing.T, m *invocation.Machine, value string) {
	t.Helper()
	if err := m.FeedReplayEntry(&wireproto.InputEntryMessage{Value: []byte(value)}); err != nil {
		t.Fatalf("FeedReplayEntry(input): %v", err)
	}
}

// Scenario 1: echo.
func TestScenarioEcho(t *testing.T) {
	m := invocation.New()
	start(t, m, 1, false, nil, "")
	feedInput(t, m, "my-data")

	if m.Phase() != invocation.PhaseLiveExecution {
		t.Fatalf("phase = %s, want LiveExecution", m.Phase())
	}
	in, err := m.SysInput()
	if err != nil || string(in) != "my-data" {
		t.Fatalf("SysInput = %q, %v", in, err)
	}
	if err := m.SysWriteOutput(wireproto.SuccessValue(in)); err != nil {
		t.Fatalf("SysWriteOutput: %v", err)
	}
	if err := m.SysEnd(); err != nil {
		t.Fatalf("SysEnd: %v", err)
	}

	out := m.Drain()
	wantSeq(t, out, []wireproto.MessageType{wireproto.MessageTypeOutputEntry, wireproto.MessageTypeEnd})
	oe := out[0].(*wireproto.OutputEntryMessage)
	if string(oe.Result.Success) != "my-data" {
		t.Fatalf("output = %q, want my-data", oe.Result.Success)
	}
}

// Scenario 2: replay with inline value.
func TestScenarioReplayWithInlineValue(t *testing.T) {
	m := invocation.New()
	start(t, m, 2, true, nil, "")
	feedInput(t, m, "Till")
	v := wireproto.SuccessValue([]byte("Francesco"))
	if err := m.FeedReplayEntry(&wireproto.GetStateEntryMessage{Key: []byte("STATE"), Result: &v}); err != nil {
		t.Fatalf("feed get-state: %v", err)
	}
	if m.Phase() != invocation.PhaseLiveExecution {
		t.Fatalf("phase = %s, want LiveExecution", m.Phase())
	}

	m.SysInput()
	h, err := m.SysGetState("STATE")
	if err != nil {
		t.Fatalf("SysGetState: %v", err)
	}
	outcome, val, err := m.TakeAsyncResult(h)
	if err != nil || outcome != asyncresult.Ready || string(val.Success) != "Francesco" {
		t.Fatalf("TakeAsyncResult = %v %v %v", outcome, val, err)
	}
	m.SysWriteOutput(val)
	m.SysEnd()

	out := m.Drain()
	wantSeq(t, out, []wireproto.MessageType{wireproto.MessageTypeOutputEntry, wireproto.MessageTypeEnd})
}

// Scenario 3: new entry, suspends.
func TestScenarioNewEntrySuspends(t *testing.T) {
	m := invocation.New()
	start(t, m, 1, true, nil, "")
	feedInput(t, m, "Till")

	h, err := m.SysGetState("STATE")
	if err != nil {
		t.Fatalf("SysGetState: %v", err)
	}
	m.NotifyAwaitPoint(h)
	outcome, _, err := m.TakeAsyncResult(h)
	if err != nil || outcome != asyncresult.Suspended {
		t.Fatalf("TakeAsyncResult = %v, %v, want Suspended", outcome, err)
	}
	if m.CloseReason() != invocation.CloseSuspended {
		t.Fatalf("CloseReason = %v, want CloseSuspended", m.CloseReason())
	}

	out := m.Drain()
	wantSeq(t, out, []wireproto.MessageType{wireproto.MessageTypeGetStateEntry, wireproto.MessageTypeSuspension})
	ge := out[0].(*wireproto.GetStateEntryMessage)
	if ge.Result != nil {
		t.Fatalf("expected no inline result on fresh get-state emission")
	}
	susp := out[1].(*wireproto.SuspensionMessage)
	if len(susp.EntryIndexes) != 1 || susp.EntryIndexes[0] != 1 {
		t.Fatalf("suspension indexes = %v, want [1]", susp.EntryIndexes)
	}
}

// Scenario 4: new entry resolved by completion.
func TestScenarioNewEntryResolvedByCompletion(t *testing.T) {
	m := invocation.New()
	start(t, m, 1, true, nil, "")
	feedInput(t, m, "Till")

	h, err := m.SysGetState("STATE")
	if err != nil {
		t.Fatalf("SysGetState: %v", err)
	}
	m.Drain()

	if err := m.ApplyCompletion(&wireproto.CompletionMessage{EntryIndex: 1, Result: wireproto.SuccessValue([]byte("Francesco"))}); err != nil {
		t.Fatalf("ApplyCompletion: %v", err)
	}

	m.NotifyAwaitPoint(h)
	outcome, val, err := m.TakeAsyncResult(h)
	if err != nil || outcome != asyncresult.Ready || string(val.Success) != "Francesco" {
		t.Fatalf("TakeAsyncResult = %v %v %v", outcome, val, err)
	}
	m.SysWriteOutput(val)
	m.SysEnd()

	out := m.Drain()
	wantSeq(t, out, []wireproto.MessageType{wireproto.MessageTypeOutputEntry, wireproto.MessageTypeEnd})
}

// Scenario 5: eager complete state, absent key.
func TestScenarioEagerCompleteAbsentKey(t *testing.T) {
	m := invocation.New()
	start(t, m, 1, false, nil, "")
	feedInput(t, m, "")

	h, err := m.SysGetState("STATE")
	if err != nil {
		t.Fatalf("SysGetState: %v", err)
	}
	outcome, val, err := m.TakeAsyncResult(h)
	if err != nil || outcome != asyncresult.Ready || val.Kind != wireproto.ValueVoid {
		t.Fatalf("TakeAsyncResult = %v %v %v", outcome, val, err)
	}
	m.SysWriteOutput(wireproto.SuccessValue([]byte("true")))
	m.SysEnd()

	out := m.Drain()
	wantSeq(t, out, []wireproto.MessageType{
		wireproto.MessageTypeGetStateEntry, wireproto.MessageTypeOutputEntry, wireproto.MessageTypeEnd,
	})
	ge := out[0].(*wireproto.GetStateEntryMessage)
	if ge.Result == nil || ge.Result.Kind != wireproto.ValueVoid {
		t.Fatalf("expected inline Void result on eager-empty get-state emission")
	}
}

// Scenario 6: eager partial state, append.
func TestScenarioEagerPartialAppend(t *testing.T) {
	m := invocation.New()
	start(t, m, 1, true, []wireproto.StateEntry{{Key: []byte("STATE"), Value: []byte("Francesco")}}, "my-greeter")
	feedInput(t, m, "Till")

	h1, _ := m.SysGetState("STATE")
	_, v1, _ := m.TakeAsyncResult(h1)
	if string(v1.Success) != "Francesco" {
		t.Fatalf("first get = %q, want Francesco", v1.Success)
	}

	if err := m.SysSetState("STATE", []byte("FrancescoTill")); err != nil {
		t.Fatalf("SysSetState: %v", err)
	}

	h2, _ := m.SysGetState("STATE")
	_, v2, _ := m.TakeAsyncResult(h2)
	if string(v2.Success) != "FrancescoTill" {
		t.Fatalf("second get = %q, want FrancescoTill", v2.Success)
	}

	m.SysWriteOutput(v2)
	m.SysEnd()

	out := m.Drain()
	wantSeq(t, out, []wireproto.MessageType{
		wireproto.MessageTypeGetStateEntry, wireproto.MessageTypeSetStateEntry,
		wireproto.MessageTypeGetStateEntry, wireproto.MessageTypeOutputEntry, wireproto.MessageTypeEnd,
	})
}

// Scenario 7: clear-all then get.
func TestScenarioClearAllThenGet(t *testing.T) {
	m := invocation.New()
	start(t, m, 1, true, []wireproto.StateEntry{
		{Key: []byte("STATE"), Value: []byte("Francesco")},
		{Key: []byte("ANOTHER_STATE"), Value: []byte("Francesco")},
	}, "")
	feedInput(t, m, "")

	h1, _ := m.SysGetState("STATE")
	_, v1, _ := m.TakeAsyncResult(h1)
	if string(v1.Success) != "Francesco" {
		t.Fatalf("first get = %q", v1.Success)
	}

	if err := m.SysClearAllState(); err != nil {
		t.Fatalf("SysClearAllState: %v", err)
	}

	h2, _ := m.SysGetState("STATE")
	_, v2, _ := m.TakeAsyncResult(h2)
	if v2.Kind != wireproto.ValueVoid {
		t.Fatalf("get STATE after clear_all = %v, want Void", v2)
	}

	h3, _ := m.SysGetState("ANOTHER_STATE")
	_, v3, _ := m.TakeAsyncResult(h3)
	if v3.Kind != wireproto.ValueVoid {
		t.Fatalf("get ANOTHER_STATE after clear_all = %v, want Void", v3)
	}

	m.SysWriteOutput(wireproto.SuccessValue([]byte("Francesco")))
	m.SysEnd()

	out := m.Drain()
	wantSeq(t, out, []wireproto.MessageType{
		wireproto.MessageTypeGetStateEntry, wireproto.MessageTypeClearAllStateEntry,
		wireproto.MessageTypeGetStateEntry, wireproto.MessageTypeGetStateEntry,
		wireproto.MessageTypeOutputEntry, wireproto.MessageTypeEnd,
	})
}

// Scenario 8: replay failure.
func TestScenarioReplayFailure(t *testing.T) {
	m := invocation.New()
	start(t, m, 2, true, nil, "")
	feedInput(t, m, "Till")
	fv := wireproto.FailureValue(409, "conflict")
	if err := m.FeedReplayEntry(&wireproto.GetStateEntryMessage{Key: []byte("STATE"), Result: &fv}); err != nil {
		t.Fatalf("feed get-state failure: %v", err)
	}

	m.SysInput()
	h, _ := m.SysGetState("STATE")
	outcome, val, err := m.TakeAsyncResult(h)
	if err != nil || outcome != asyncresult.Ready || val.Kind != wireproto.ValueFailure || val.FailureCode != 409 {
		t.Fatalf("TakeAsyncResult = %v %v %v", outcome, val, err)
	}
	m.SysWriteOutput(val)
	m.SysEnd()

	out := m.Drain()
	wantSeq(t, out, []wireproto.MessageType{wireproto.MessageTypeOutputEntry, wireproto.MessageTypeEnd})
	oe := out[0].(*wireproto.OutputEntryMessage)
	if oe.Result.Kind != wireproto.ValueFailure || oe.Result.FailureCode != 409 {
		t.Fatalf("output = %v, want Failure(409)", oe.Result)
	}
}

// Once suspended, further calls are silent no-ops: no second suspension frame.
func TestSuspensionIsCooperativeAndSingular(t *testing.T) {
	m := invocation.New()
	start(t, m, 1, true, nil, "")
	feedInput(t, m, "Till")

	h, _ := m.SysGetState("STATE")
	m.NotifyAwaitPoint(h)
	m.TakeAsyncResult(h)
	m.Drain()

	outcome, _, err := m.TakeAsyncResult(h)
	if err != nil || outcome != asyncresult.Suspended {
		t.Fatalf("second TakeAsyncResult = %v, %v, want Suspended, nil", outcome, err)
	}
	if len(m.Drain()) != 0 {
		t.Fatalf("expected no further wire traffic after suspension")
	}
}

func wantSeq(t *testing.T, got []wireproto.Message, want []wireproto.MessageType) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d: %v", len(got), len(want), got)
	}
	for i, msg := range got {
		if msg.Type() != want[i] {
			t.Fatalf("message %d type = %s, want %s", i, msg.Type(), want[i])
		}
	}
}
