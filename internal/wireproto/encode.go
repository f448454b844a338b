package wireproto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for the nested Value submessage, shared by every message
// that embeds one (GetStateEntryMessage.Result, CompletionMessage.Result,
// OutputEntryMessage.Result).
const (
	fieldValueKind    protowire.Number = 1
	fieldValueSuccess protowire.Number = 2
	fieldValueFailCode protowire.Number = 3
	fieldValueFailMsg protowire.Number = 4
)

func appendValue(b []byte, v Value) []byte {
	b = protowire.AppendTag(b, fieldValueKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v.Kind))
	switch v.Kind {
	case ValueSuccess:
		b = protowire.AppendTag(b, fieldValueSuccess, protowire.BytesType)
		b = protowire.AppendBytes(b, v.Success)
	case ValueFailure:
		b = protowire.AppendTag(b, fieldValueFailCode, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.FailureCode))
		b = protowire.AppendTag(b, fieldValueFailMsg, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(v.FailureMessage))
	}
	return b
}

func parseValue(buf []byte) (Value, error) {
	var v Value
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return v, fmt.Errorf("wireproto: bad Value tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]
		switch num {
		case fieldValueKind:
			x, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return v, fmt.Errorf("wireproto: bad Value.kind: %w", protowire.ParseError(n))
			}
			v.Kind = ValueKind(x)
			buf = buf[n:]
		case fieldValueSuccess:
			x, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return v, fmt.Errorf("wireproto: bad Value.success: %w", protowire.ParseError(n))
			}
			v.Success = append([]byte(nil), x...)
			buf = buf[n:]
		case fieldValueFailCode:
			x, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return v, fmt.Errorf("wireproto: bad Value.failure_code: %w", protowire.ParseError(n))
			}
			v.FailureCode = uint32(x)
			buf = buf[n:]
		case fieldValueFailMsg:
			x, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return v, fmt.Errorf("wireproto: bad Value.failure_message: %w", protowire.ParseError(n))
			}
			v.FailureMessage = string(x)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return v, fmt.Errorf("wireproto: bad Value field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return v, nil
}

// Top-level field numbers, one block per message type. Kept stable across
// protocol versions; a field is never renumbered, only added.
const (
	startID           protowire.Number = 1
	startDebugID      protowire.Number = 2
	startKnownEntries protowire.Number = 3
	startStateMap     protowire.Number = 4
	startPartial      protowire.Number = 5
	startKey          protowire.Number = 6
	startVersion      protowire.Number = 7

	stateEntryKey   protowire.Number = 1
	stateEntryValue protowire.Number = 2

	headerKey   protowire.Number = 1
	headerValue protowire.Number = 2

	inputHeaders protowire.Number = 1
	inputValue   protowire.Number = 2

	getStateKey    protowire.Number = 1
	getStateResult protowire.Number = 2

	getStateKeysKeys   protowire.Number = 1
	getStateKeysResult protowire.Number = 2

	setStateKey   protowire.Number = 1
	setStateValue protowire.Number = 2

	clearStateKey protowire.Number = 1

	completionIndex  protowire.Number = 1
	completionResult protowire.Number = 2

	outputResult protowire.Number = 1

	suspensionIndexes protowire.Number = 1

	errCode        protowire.Number = 1
	errMessage     protowire.Number = 2
	errDescription protowire.Number = 3
	errRelIndex    protowire.Number = 4
	errRelType     protowire.Number = 5
)

// Encode serializes msg's payload (not including the frame header) using
// the protobuf wire format.
func Encode(msg Message) ([]byte, error) {
	var b []byte
	switch m := msg.(type) {
	case *StartMessage:
		b = protowire.AppendTag(b, startID, protowire.BytesType)
		b = protowire.AppendBytes(b, m.ID)
		b = protowire.AppendTag(b, startDebugID, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(m.DebugID))
		b = protowire.AppendTag(b, startKnownEntries, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.KnownEntries))
		for _, e := range m.StateMap {
			var eb []byte
			eb = protowire.AppendTag(eb, stateEntryKey, protowire.BytesType)
			eb = protowire.AppendBytes(eb, e.Key)
			eb = protowire.AppendTag(eb, stateEntryValue, protowire.BytesType)
			eb = protowire.AppendBytes(eb, e.Value)
			b = protowire.AppendTag(b, startStateMap, protowire.BytesType)
			b = protowire.AppendBytes(b, eb)
		}
		b = protowire.AppendTag(b, startPartial, protowire.VarintType)
		b = protowire.AppendVarint(b, boolVarint(m.PartialState))
		b = protowire.AppendTag(b, startKey, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(m.Key))
		b = protowire.AppendTag(b, startVersion, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Version))

	case *InputEntryMessage:
		for _, h := range m.Headers {
			var hb []byte
			hb = protowire.AppendTag(hb, headerKey, protowire.BytesType)
			hb = protowire.AppendBytes(hb, []byte(h.Key))
			hb = protowire.AppendTag(hb, headerValue, protowire.BytesType)
			hb = protowire.AppendBytes(hb, []byte(h.Value))
			b = protowire.AppendTag(b, inputHeaders, protowire.BytesType)
			b = protowire.AppendBytes(b, hb)
		}
		b = protowire.AppendTag(b, inputValue, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Value)

	case *GetStateEntryMessage:
		b = protowire.AppendTag(b, getStateKey, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Key)
		if m.Result != nil {
			b = protowire.AppendTag(b, getStateResult, protowire.BytesType)
			b = protowire.AppendBytes(b, appendValue(nil, *m.Result))
		}

	case *GetStateKeysEntryMessage:
		if m.Result {
			for _, k := range m.Keys {
				b = protowire.AppendTag(b, getStateKeysKeys, protowire.BytesType)
				b = protowire.AppendBytes(b, k)
			}
			b = protowire.AppendTag(b, getStateKeysResult, protowire.VarintType)
			b = protowire.AppendVarint(b, boolVarint(m.Result))
		}

	case *SetStateEntryMessage:
		b = protowire.AppendTag(b, setStateKey, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Key)
		b = protowire.AppendTag(b, setStateValue, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Value)

	case *ClearStateEntryMessage:
		b = protowire.AppendTag(b, clearStateKey, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Key)

	case *ClearAllStateEntryMessage:
		// No fields.

	case *CompletionMessage:
		b = protowire.AppendTag(b, completionIndex, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.EntryIndex))
		b = protowire.AppendTag(b, completionResult, protowire.BytesType)
		b = protowire.AppendBytes(b, appendValue(nil, m.Result))

	case *OutputEntryMessage:
		b = protowire.AppendTag(b, outputResult, protowire.BytesType)
		b = protowire.AppendBytes(b, appendValue(nil, m.Result))

	case *EndMessage:
		// No fields.

	case *SuspensionMessage:
		for _, idx := range m.EntryIndexes {
			b = protowire.AppendTag(b, suspensionIndexes, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(idx))
		}

	case *ErrorMessage:
		b = protowire.AppendTag(b, errCode, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Code))
		b = protowire.AppendTag(b, errMessage, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(m.Message))
		b = protowire.AppendTag(b, errDescription, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(m.Description))
		if m.RelatedEntryIndex != 0 {
			b = protowire.AppendTag(b, errRelIndex, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(m.RelatedEntryIndex))
		}
		if m.RelatedEntryType != 0 {
			b = protowire.AppendTag(b, errRelType, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(m.RelatedEntryType))
		}

	default:
		return nil, fmt.Errorf("wireproto: unknown message type %T", msg)
	}
	return b, nil
}

func boolVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
