package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func inspectCmd() *cobra.Command {
	var framePath string

	cmd := &cobra.Command{
		Use:   "inspect <frame-dump>",
		Short: "Print every frame in a captured dump, in order",
		Long: "inspect decodes a saved frame dump — the same length-delimited " +
			"framing the VM speaks over its transport — and prints a " +
			"one-line summary of each frame. It never contacts a live " +
			"coordinator; the dump is the only input.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			framePath = args[0]
			msgs, err := loadFrames(framePath)
			if err != nil {
				return err
			}
			for i, msg := range msgs {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", i+1, describeFrame(msg))
			}
			return nil
		},
	}
	return cmd
}
