package main

import (
	"fmt"
	"os"

	"github.com/oriys/durablevm/internal/wireproto"
)

// loadFrames decodes every frame in a saved dump file, in order. The dump
// format is exactly the wire framing the VM itself speaks (§4.1): a
// concatenation of length-delimited frames, normally captured by a host
// process tee-ing its transport. durablevmctl never produces a dump
// itself — it is a read-only diagnostic over one a host already wrote.
func loadFrames(path string) ([]wireproto.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("durablevmctl: read frame dump %s: %w", path, err)
	}

	dec := wireproto.NewDecoder()
	dec.PushBytes(data)

	var msgs []wireproto.Message
	for {
		msg, ok, err := dec.Next()
		if err != nil {
			return nil, fmt.Errorf("durablevmctl: decode frame dump %s: %w", path, err)
		}
		if !ok {
			break
		}
		msgs = append(msgs, msg)
	}
	if dec.Pending() > 0 {
		return nil, fmt.Errorf("durablevmctl: frame dump %s ends with %d trailing undecodable bytes", path, dec.Pending())
	}
	return msgs, nil
}

func describeFrame(msg wireproto.Message) string {
	switch t := msg.(type) {
	case *wireproto.StartMessage:
		return fmt.Sprintf("Start{debug_id=%q known_entries=%d partial=%v key=%q version=%d}",
			t.DebugID, t.KnownEntries, t.PartialState, t.Key, t.Version)
	case *wireproto.InputEntryMessage:
		return fmt.Sprintf("InputEntry{%d bytes}", len(t.Value))
	case *wireproto.GetStateEntryMessage:
		if t.Result != nil {
			return fmt.Sprintf("GetStateEntry{key=%q result=%s}", t.Key, t.Result)
		}
		return fmt.Sprintf("GetStateEntry{key=%q}", t.Key)
	case *wireproto.GetStateKeysEntryMessage:
		return fmt.Sprintf("GetStateKeysEntry{keys=%d result=%v}", len(t.Keys), t.Result)
	case *wireproto.SetStateEntryMessage:
		return fmt.Sprintf("SetStateEntry{key=%q, %d bytes}", t.Key, len(t.Value))
	case *wireproto.ClearStateEntryMessage:
		return fmt.Sprintf("ClearStateEntry{key=%q}", t.Key)
	case *wireproto.ClearAllStateEntryMessage:
		return "ClearAllStateEntry{}"
	case *wireproto.CompletionMessage:
		return fmt.Sprintf("Completion{entry_index=%d result=%s}", t.EntryIndex, t.Result)
	case *wireproto.OutputEntryMessage:
		return fmt.Sprintf("OutputEntry{result=%s}", t.Result)
	case *wireproto.EndMessage:
		return "End{}"
	case *wireproto.SuspensionMessage:
		return fmt.Sprintf("Suspension{entry_indexes=%v}", t.EntryIndexes)
	case *wireproto.ErrorMessage:
		return fmt.Sprintf("Error{code=%d message=%q}", t.Code, t.Message)
	default:
		return fmt.Sprintf("%T", msg)
	}
}
