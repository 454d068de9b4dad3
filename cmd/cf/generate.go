package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/certflow/internal/workflow"
)

// errWaitTimeout is returned by poll when done never reports true.
var errWaitTimeout = errors.New("timed out waiting")

// poll calls done every interval until it reports true, fails, or timeout
// elapses.
func poll(ctx context.Context, interval, timeout time.Duration, done func(context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		ok, err := done(ctx)
		if err != nil || ok {
			return err
		}
		select {
		case <-ctx.Done():
			return errWaitTimeout
		case <-time.After(interval):
		}
	}
}

// generating reports whether a render is still running.
func generating(st *workflow.Status) bool {
	return st.Actions.GenerateLabel == "Generating..."
}

var generateCmd = &cobra.Command{
	Use:     "generate <id>",
	Short:   "Render the certificate PDF",
	GroupID: "complete",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		id := args[0]
		wait, _ := cmd.Flags().GetBool("wait")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		out, _ := cmd.Flags().GetString("output")

		st, err := certClient.Generate(ctx, id)
		if err != nil {
			return fmt.Errorf("generating %s: %w", id, describeError(err))
		}
		if !wait && out == "" {
			return output(st, printStatus)
		}

		err = poll(ctx, 250*time.Millisecond, timeout, func(ctx context.Context) (bool, error) {
			st, err = certClient.Status(ctx, id)
			if err != nil {
				return false, err
			}
			return !generating(st), nil
		})
		if err != nil {
			return fmt.Errorf("generating %s: %w", id, err)
		}
		if st.LastError != "" {
			return fmt.Errorf("generating %s: %s", id, st.LastError)
		}
		if out != "" {
			if err := downloadDocument(ctx, id, out); err != nil {
				return err
			}
		}
		return output(st, printStatus)
	},
}

var pdfCmd = &cobra.Command{
	Use:     "pdf <id>",
	Short:   "Download the generated PDF",
	GroupID: "complete",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		return downloadDocument(context.Background(), args[0], out)
	},
}

// downloadDocument writes the certificate PDF to path. An empty path uses
// the server's filename in the current directory.
func downloadDocument(ctx context.Context, id, path string) error {
	doc, err := certClient.Document(ctx, id)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", id, err)
	}
	if path == "" {
		path = doc.Filename
	}
	if path == "" {
		path = id + ".pdf"
	}
	if err := os.WriteFile(path, doc.Data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if !jsonOutput {
		fmt.Fprintf(os.Stderr, "Wrote %s (%d bytes)\n", path, len(doc.Data))
	}
	return nil
}

func init() {
	generateCmd.Flags().Bool("wait", false, "wait for rendering to finish")
	generateCmd.Flags().Duration("timeout", time.Minute, "how long to wait")
	generateCmd.Flags().StringP("output", "o", "", "download the PDF to this path once generated")
	pdfCmd.Flags().StringP("output", "o", "", "output path (default: the server's filename)")
}
