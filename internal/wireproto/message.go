// Package wireproto implements the length-delimited wire framing and
// message catalog exchanged between the invocation VM and its runtime
// coordinator (service_protocol, §6). Payloads are encoded with the
// protobuf wire format (via protowire) but the message catalog is fixed
// and hand-maintained rather than generated from .proto sources, since
// the catalog never grows without a protocol version bump.
package wireproto

import "fmt"

// MessageType is the numeric type tag carried in every frame header.
type MessageType uint16

const (
	MessageTypeStart                 MessageType = 0x01
	MessageTypeInputEntry             MessageType = 0x02
	MessageTypeGetStateEntry          MessageType = 0x03
	MessageTypeSetStateEntry          MessageType = 0x04
	MessageTypeClearStateEntry        MessageType = 0x05
	MessageTypeClearAllStateEntry     MessageType = 0x06
	MessageTypeGetStateKeysEntry      MessageType = 0x07
	MessageTypeCompletion             MessageType = 0x08
	MessageTypeOutputEntry            MessageType = 0x09
	MessageTypeEnd                    MessageType = 0x0A
	MessageTypeSuspension             MessageType = 0x0B
	MessageTypeError                  MessageType = 0x0C
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeStart:
		return "Start"
	case MessageTypeInputEntry:
		return "InputEntry"
	case MessageTypeGetStateEntry:
		return "GetStateEntry"
	case MessageTypeSetStateEntry:
		return "SetStateEntry"
	case MessageTypeClearStateEntry:
		return "ClearStateEntry"
	case MessageTypeClearAllStateEntry:
		return "ClearAllStateEntry"
	case MessageTypeGetStateKeysEntry:
		return "GetStateKeysEntry"
	case MessageTypeCompletion:
		return "Completion"
	case MessageTypeOutputEntry:
		return "OutputEntry"
	case MessageTypeEnd:
		return "End"
	case MessageTypeSuspension:
		return "Suspension"
	case MessageTypeError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint16(t))
	}
}

// Message is implemented by every frame payload in the catalog.
type Message interface {
	Type() MessageType
}

// ValueKind distinguishes the three shapes a completion can take.
type ValueKind uint8

const (
	ValueVoid ValueKind = iota
	ValueSuccess
	ValueFailure
)

// Value is the completion payload carried by get-state results,
// completions, and output entries: exactly one of Void, a success byte
// string, or a failure code+message.
type Value struct {
	Kind           ValueKind
	Success        []byte
	FailureCode    uint32
	FailureMessage string
}

func VoidValue() Value { return Value{Kind: ValueVoid} }

func SuccessValue(b []byte) Value { return Value{Kind: ValueSuccess, Success: b} }

func FailureValue(code uint32, message string) Value {
	return Value{Kind: ValueFailure, FailureCode: code, FailureMessage: message}
}

func (v Value) String() string {
	switch v.Kind {
	case ValueVoid:
		return "Void"
	case ValueSuccess:
		return fmt.Sprintf("Success(%d bytes)", len(v.Success))
	case ValueFailure:
		return fmt.Sprintf("Failure(%d, %q)", v.FailureCode, v.FailureMessage)
	default:
		return "Invalid"
	}
}

// StateEntry is a single key/value pair carried in a StartMessage's eager
// state snapshot.
type StateEntry struct {
	Key   []byte
	Value []byte
}

// Header is an opaque name/value pair carried on the input entry.
type Header struct {
	Key   string
	Value string
}

// StartMessage begins an invocation. It MUST be the first inbound frame.
type StartMessage struct {
	ID            []byte
	DebugID       string
	KnownEntries  uint32
	StateMap      []StateEntry
	PartialState  bool
	Key           string
	Version       uint32
}

func (*StartMessage) Type() MessageType { return MessageTypeStart }

// InputEntryMessage carries the invocation's input payload. It is the
// first replayed frame after Start and is not stored in the journal, so
// it occupies no journal index.
type InputEntryMessage struct {
	Headers []Header
	Value   []byte
}

func (*InputEntryMessage) Type() MessageType { return MessageTypeInputEntry }

// GetStateEntryMessage records a keyed state read. Result is nil while
// the read awaits the coordinator (a fresh lazy emission, or a replayed
// entry not yet completed) and carries the value once it is known (an
// eager-state read emitted live, or a replayed inline result).
type GetStateEntryMessage struct {
	Key    []byte
	Result *Value
}

func (*GetStateEntryMessage) Type() MessageType { return MessageTypeGetStateEntry }

// GetStateKeysEntryMessage requests or replays the full known-key set.
type GetStateKeysEntryMessage struct {
	Keys    [][]byte
	Result  bool // true once Keys has been populated (replay path)
}

func (*GetStateKeysEntryMessage) Type() MessageType { return MessageTypeGetStateKeysEntry }

// SetStateEntryMessage records a state write.
type SetStateEntryMessage struct {
	Key   []byte
	Value []byte
}

func (*SetStateEntryMessage) Type() MessageType { return MessageTypeSetStateEntry }

// ClearStateEntryMessage records a single-key clear.
type ClearStateEntryMessage struct {
	Key []byte
}

func (*ClearStateEntryMessage) Type() MessageType { return MessageTypeClearStateEntry }

// ClearAllStateEntryMessage records a clear of every key.
type ClearAllStateEntryMessage struct{}

func (*ClearAllStateEntryMessage) Type() MessageType { return MessageTypeClearAllStateEntry }

// CompletionMessage resolves a previously emitted journal entry
// out-of-band, by index.
type CompletionMessage struct {
	EntryIndex uint32
	Result     Value
}

func (*CompletionMessage) Type() MessageType { return MessageTypeCompletion }

// OutputEntryMessage carries the invocation's terminal result.
type OutputEntryMessage struct {
	Result Value
}

func (*OutputEntryMessage) Type() MessageType { return MessageTypeOutputEntry }

// EndMessage terminates the invocation successfully. No further frames
// may follow.
type EndMessage struct{}

func (*EndMessage) Type() MessageType { return MessageTypeEnd }

// SuspensionMessage cooperatively suspends the invocation, naming every
// journal index the handler is still awaiting.
type SuspensionMessage struct {
	EntryIndexes []uint32
}

func (*SuspensionMessage) Type() MessageType { return MessageTypeSuspension }

// ErrorMessage reports a fatal protocol violation or handler misuse.
type ErrorMessage struct {
	Code               uint32
	Message            string
	Description        string
	RelatedEntryIndex  uint32 // 0 means absent; journal indices are 1-based
	RelatedEntryType   uint32
}

func (*ErrorMessage) Type() MessageType { return MessageTypeError }
