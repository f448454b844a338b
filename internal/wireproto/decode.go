package wireproto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Decode parses a frame payload of the given type into its Message.
// Unknown fields are skipped rather than rejected, so a coordinator built
// against a newer protocol revision can still talk to this VM for fields
// both sides understand.
func Decode(t MessageType, payload []byte) (Message, error) {
	switch t {
	case MessageTypeStart:
		return decodeStart(payload)
	case MessageTypeInputEntry:
		return decodeInputEntry(payload)
	case MessageTypeGetStateEntry:
		return decodeGetStateEntry(payload)
	case MessageTypeGetStateKeysEntry:
		return decodeGetStateKeysEntry(payload)
	case MessageTypeSetStateEntry:
		return decodeSetStateEntry(payload)
	case MessageTypeClearStateEntry:
		return decodeClearStateEntry(payload)
	case MessageTypeClearAllStateEntry:
		return &ClearAllStateEntryMessage{}, nil
	case MessageTypeCompletion:
		return decodeCompletion(payload)
	case MessageTypeOutputEntry:
		return decodeOutputEntry(payload)
	case MessageTypeEnd:
		return &EndMessage{}, nil
	case MessageTypeSuspension:
		return decodeSuspension(payload)
	case MessageTypeError:
		return decodeError(payload)
	default:
		return nil, fmt.Errorf("wireproto: unknown message type 0x%02x", uint16(t))
	}
}

func decodeStart(buf []byte) (*StartMessage, error) {
	m := &StartMessage{}
	for len(buf) > 0 {
		num, typ, n, err := consumeTag(buf)
		if err != nil {
			return nil, fmt.Errorf("wireproto: StartMessage: %w", err)
		}
		buf = buf[n:]
		switch num {
		case startID:
			v, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			m.ID = v
			buf = buf[n:]
		case startDebugID:
			v, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			m.DebugID = string(v)
			buf = buf[n:]
		case startKnownEntries:
			v, n, err := consumeVarint(buf)
			if err != nil {
				return nil, err
			}
			m.KnownEntries = uint32(v)
			buf = buf[n:]
		case startStateMap:
			eb, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			entry, err := decodeStateEntry(eb)
			if err != nil {
				return nil, err
			}
			m.StateMap = append(m.StateMap, entry)
			buf = buf[n:]
		case startPartial:
			v, n, err := consumeVarint(buf)
			if err != nil {
				return nil, err
			}
			m.PartialState = v != 0
			buf = buf[n:]
		case startKey:
			v, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			m.Key = string(v)
			buf = buf[n:]
		case startVersion:
			v, n, err := consumeVarint(buf)
			if err != nil {
				return nil, err
			}
			m.Version = uint32(v)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, fmt.Errorf("wireproto: StartMessage: bad field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return m, nil
}

func decodeStateEntry(buf []byte) (StateEntry, error) {
	var e StateEntry
	for len(buf) > 0 {
		num, typ, n, err := consumeTag(buf)
		if err != nil {
			return e, err
		}
		buf = buf[n:]
		switch num {
		case stateEntryKey:
			v, n, err := consumeBytes(buf)
			if err != nil {
				return e, err
			}
			e.Key = v
			buf = buf[n:]
		case stateEntryValue:
			v, n, err := consumeBytes(buf)
			if err != nil {
				return e, err
			}
			e.Value = v
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return e, fmt.Errorf("wireproto: StateEntry: bad field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return e, nil
}

func decodeInputEntry(buf []byte) (*InputEntryMessage, error) {
	m := &InputEntryMessage{}
	for len(buf) > 0 {
		num, typ, n, err := consumeTag(buf)
		if err != nil {
			return nil, fmt.Errorf("wireproto: InputEntryMessage: %w", err)
		}
		buf = buf[n:]
		switch num {
		case inputHeaders:
			hb, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			h, err := decodeHeader(hb)
			if err != nil {
				return nil, err
			}
			m.Headers = append(m.Headers, h)
			buf = buf[n:]
		case inputValue:
			v, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			m.Value = v
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, fmt.Errorf("wireproto: InputEntryMessage: bad field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return m, nil
}

func decodeHeader(buf []byte) (Header, error) {
	var h Header
	for len(buf) > 0 {
		num, typ, n, err := consumeTag(buf)
		if err != nil {
			return h, err
		}
		buf = buf[n:]
		switch num {
		case headerKey:
			v, n, err := consumeBytes(buf)
			if err != nil {
				return h, err
			}
			h.Key = string(v)
			buf = buf[n:]
		case headerValue:
			v, n, err := consumeBytes(buf)
			if err != nil {
				return h, err
			}
			h.Value = string(v)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return h, fmt.Errorf("wireproto: Header: bad field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return h, nil
}

func decodeGetStateEntry(buf []byte) (*GetStateEntryMessage, error) {
	m := &GetStateEntryMessage{}
	for len(buf) > 0 {
		num, typ, n, err := consumeTag(buf)
		if err != nil {
			return nil, fmt.Errorf("wireproto: GetStateEntryMessage: %w", err)
		}
		buf = buf[n:]
		switch num {
		case getStateKey:
			v, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			m.Key = v
			buf = buf[n:]
		case getStateResult:
			vb, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			val, err := parseValue(vb)
			if err != nil {
				return nil, err
			}
			m.Result = &val
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, fmt.Errorf("wireproto: GetStateEntryMessage: bad field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return m, nil
}

func decodeGetStateKeysEntry(buf []byte) (*GetStateKeysEntryMessage, error) {
	m := &GetStateKeysEntryMessage{}
	for len(buf) > 0 {
		num, typ, n, err := consumeTag(buf)
		if err != nil {
			return nil, fmt.Errorf("wireproto: GetStateKeysEntryMessage: %w", err)
		}
		buf = buf[n:]
		switch num {
		case getStateKeysKeys:
			v, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			m.Keys = append(m.Keys, v)
			buf = buf[n:]
		case getStateKeysResult:
			v, n, err := consumeVarint(buf)
			if err != nil {
				return nil, err
			}
			m.Result = v != 0
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, fmt.Errorf("wireproto: GetStateKeysEntryMessage: bad field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return m, nil
}

func decodeSetStateEntry(buf []byte) (*SetStateEntryMessage, error) {
	m := &SetStateEntryMessage{}
	for len(buf) > 0 {
		num, typ, n, err := consumeTag(buf)
		if err != nil {
			return nil, fmt.Errorf("wireproto: SetStateEntryMessage: %w", err)
		}
		buf = buf[n:]
		switch num {
		case setStateKey:
			v, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			m.Key = v
			buf = buf[n:]
		case setStateValue:
			v, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			m.Value = v
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, fmt.Errorf("wireproto: SetStateEntryMessage: bad field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return m, nil
}

func decodeClearStateEntry(buf []byte) (*ClearStateEntryMessage, error) {
	m := &ClearStateEntryMessage{}
	for len(buf) > 0 {
		num, typ, n, err := consumeTag(buf)
		if err != nil {
			return nil, fmt.Errorf("wireproto: ClearStateEntryMessage: %w", err)
		}
		buf = buf[n:]
		switch num {
		case clearStateKey:
			v, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			m.Key = v
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, fmt.Errorf("wireproto: ClearStateEntryMessage: bad field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return m, nil
}

func decodeCompletion(buf []byte) (*CompletionMessage, error) {
	m := &CompletionMessage{}
	for len(buf) > 0 {
		num, typ, n, err := consumeTag(buf)
		if err != nil {
			return nil, fmt.Errorf("wireproto: CompletionMessage: %w", err)
		}
		buf = buf[n:]
		switch num {
		case completionIndex:
			v, n, err := consumeVarint(buf)
			if err != nil {
				return nil, err
			}
			m.EntryIndex = uint32(v)
			buf = buf[n:]
		case completionResult:
			vb, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			val, err := parseValue(vb)
			if err != nil {
				return nil, err
			}
			m.Result = val
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, fmt.Errorf("wireproto: CompletionMessage: bad field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	if m.EntryIndex == 0 {
		return nil, fmt.Errorf("wireproto: CompletionMessage missing entry_index")
	}
	return m, nil
}

func decodeOutputEntry(buf []byte) (*OutputEntryMessage, error) {
	m := &OutputEntryMessage{}
	for len(buf) > 0 {
		num, typ, n, err := consumeTag(buf)
		if err != nil {
			return nil, fmt.Errorf("wireproto: OutputEntryMessage: %w", err)
		}
		buf = buf[n:]
		switch num {
		case outputResult:
			vb, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			val, err := parseValue(vb)
			if err != nil {
				return nil, err
			}
			m.Result = val
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, fmt.Errorf("wireproto: OutputEntryMessage: bad field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return m, nil
}

func decodeSuspension(buf []byte) (*SuspensionMessage, error) {
	m := &SuspensionMessage{}
	for len(buf) > 0 {
		num, typ, n, err := consumeTag(buf)
		if err != nil {
			return nil, fmt.Errorf("wireproto: SuspensionMessage: %w", err)
		}
		buf = buf[n:]
		switch num {
		case suspensionIndexes:
			v, n, err := consumeVarint(buf)
			if err != nil {
				return nil, err
			}
			m.EntryIndexes = append(m.EntryIndexes, uint32(v))
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, fmt.Errorf("wireproto: SuspensionMessage: bad field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return m, nil
}

func decodeError(buf []byte) (*ErrorMessage, error) {
	m := &ErrorMessage{}
	for len(buf) > 0 {
		num, typ, n, err := consumeTag(buf)
		if err != nil {
			return nil, fmt.Errorf("wireproto: ErrorMessage: %w", err)
		}
		buf = buf[n:]
		switch num {
		case errCode:
			v, n, err := consumeVarint(buf)
			if err != nil {
				return nil, err
			}
			m.Code = uint32(v)
			buf = buf[n:]
		case errMessage:
			v, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			m.Message = string(v)
			buf = buf[n:]
		case errDescription:
			v, n, err := consumeBytes(buf)
			if err != nil {
				return nil, err
			}
			m.Description = string(v)
			buf = buf[n:]
		case errRelIndex:
			v, n, err := consumeVarint(buf)
			if err != nil {
				return nil, err
			}
			m.RelatedEntryIndex = uint32(v)
			buf = buf[n:]
		case errRelType:
			v, n, err := consumeVarint(buf)
			if err != nil {
				return nil, err
			}
			m.RelatedEntryType = uint32(v)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, fmt.Errorf("wireproto: ErrorMessage: bad field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return m, nil
}

// consumeTag/consumeBytes/consumeVarint wrap protowire's Consume* family,
// which report errors via a sentinel negative length rather than an error
// value, and convert them into ordinary Go errors.
func consumeTag(buf []byte) (protowire.Number, protowire.Type, int, error) {
	num, typ, n := protowire.ConsumeTag(buf)
	if n < 0 {
		return 0, 0, 0, protowire.ParseError(n)
	}
	return num, typ, n, nil
}

func consumeBytes(buf []byte) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(buf)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return append([]byte(nil), v...), n, nil
}

func consumeVarint(buf []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}
