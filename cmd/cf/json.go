package main

import (
	"context"
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)


var jsonCmd = &cobra.Command{
	Use:     "json <id>",
	Short:   "Print the certificate JSON, or copy it to the clipboard",
	GroupID: "complete",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := certClient.CopyJSON(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("copying JSON of %s: %w", args[0], err)
		}
		if copyFlag, _ := cmd.Flags().GetBool("copy"); !copyFlag {
			fmt.Println(string(data))
			return nil
		}
		if clipboard.Unsupported {
			return fmt.Errorf("no clipboard available; run without --copy")
		}
		if err := clipboard.WriteAll(string(data)); err != nil {
			return fmt.Errorf("writing clipboard: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Copied %d bytes of JSON to the clipboard\n", len(data))
		return nil
	},
}

func init() {
	jsonCmd.Flags().BoolP("copy", "c", false, "copy to the system clipboard")
}
