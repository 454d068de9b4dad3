package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/certflow/internal/client"
	"github.com/alfredjeanlab/certflow/internal/ui"
)

var summaryCmd = &cobra.Command{
	Use:     "summary <id>",
	Short:   "Show the completion summary (over gRPC)",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.NewGRPCClient(grpcAddr, authToken)
		if err != nil {
			return err
		}
		defer c.Close()

		s, err := c.Summary(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("summary of %s: %w", args[0], err)
		}
		if jsonOutput {
			return printJSON(s)
		}
		fmt.Fprintf(os.Stdout, "%s %s  %s\n", s.CertificateType, s.CertificateID, ui.ProgressBar(s.Percentage, 20))
		for _, l := range s.Lines {
			fmt.Printf("  %-14s %s\n", l.Label+":", l.Value)
		}
		for _, m := range s.Missing {
			fmt.Printf("  %s %s\n", ui.RenderWarn("missing"), m)
		}
		return nil
	},
}
