package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oriys/durablevm/internal/invocation"
	"github.com/oriys/durablevm/internal/wireproto"
)

// replayCmd feeds a captured dump of inbound frames — a StartMessage,
// the replay-prefix entries that followed it, and any completions —
// through a bare invocation.Machine and reports whether the sequence
// obeys the protocol (§7): correct ordering, a matching known_entries
// count, a supported version. There is no handler behind this command,
// so it cannot show what a real invocation would have emitted live; it
// can only confirm the inbound half of the transcript is well-formed,
// which is exactly the question an operator debugging a stuck
// invocation usually has.
func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <frame-dump>",
		Short: "Validate a captured inbound frame transcript against the protocol",
		Long: "replay feeds a dump of inbound frames through the invocation " +
			"state machine and reports the phase it reaches and any protocol " +
			"violation encountered along the way. It never talks to a live " +
			"coordinator and never invokes handler code.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := loadFrames(args[0])
			if err != nil {
				return err
			}
			return runReplay(cmd, msgs)
		},
	}
	return cmd
}

func runReplay(cmd *cobra.Command, msgs []wireproto.Message) error {
	out := cmd.OutOrStdout()
	if len(msgs) == 0 {
		return fmt.Errorf("durablevmctl: empty frame dump")
	}

	start, ok := msgs[0].(*wireproto.StartMessage)
	if !ok {
		return fmt.Errorf("durablevmctl: first frame must be StartMessage, got %T", msgs[0])
	}

	m := invocation.New()
	if err := m.Start(start); err != nil {
		fmt.Fprintf(out, "Start: PROTOCOL VIOLATION: %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "Start: ok (debug_id=%q known_entries=%d)\n", m.DebugID(), start.KnownEntries)

	replayed := 0
	for _, msg := range msgs[1:] {
		if comp, ok := msg.(*wireproto.CompletionMessage); ok {
			if err := m.ApplyCompletion(comp); err != nil {
				fmt.Fprintf(out, "Completion(index=%d): PROTOCOL VIOLATION: %v\n", comp.EntryIndex, err)
				return nil
			}
			fmt.Fprintf(out, "Completion(index=%d): applied\n", comp.EntryIndex)
			continue
		}
		if m.Phase() != invocation.PhaseReplayingPrefix {
			fmt.Fprintf(out, "%s: unexpected after replay prefix closed (phase=%s)\n", describeFrame(msg), m.Phase())
			return nil
		}
		if err := m.FeedReplayEntry(msg); err != nil {
			fmt.Fprintf(out, "%s: PROTOCOL VIOLATION: %v\n", describeFrame(msg), err)
			return nil
		}
		replayed++
		fmt.Fprintf(out, "%s: fed (phase=%s)\n", describeFrame(msg), m.Phase())
	}

	fmt.Fprintf(out, "final phase: %s (%d replay-prefix frames fed)\n", m.Phase(), replayed)
	return nil
}
