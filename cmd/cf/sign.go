package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/certflow/internal/signing"
)

var signCmd = &cobra.Command{
	Use:     "sign",
	Short:   "Capture the inspector and authoriser signatures",
	GroupID: "complete",
}

// snapshotCmd builds a sign subcommand that prints the resulting snapshot.
func snapshotCmd(use, short string, call func(ctx context.Context, cmd *cobra.Command, id string) (*signing.Snapshot, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := call(context.Background(), cmd, args[0])
			if err != nil {
				return fmt.Errorf("sign %s: %w", use, err)
			}
			return output(snap, printSnapshot)
		},
	}
}

// signaturePatch builds a patch from the changed record flags.
func signaturePatch(cmd *cobra.Command) (signing.Patch, error) {
	var p signing.Patch
	for _, f := range []struct {
		flag string
		dst  **string
	}{
		{"name", &p.Name},
		{"signature", &p.Signature},
		{"company", &p.Company},
		{"position", &p.Position},
		{"address", &p.Address},
		{"membership-no", &p.MembershipNo},
		{"date", &p.Date},
	} {
		if cmd.Flags().Changed(f.flag) {
			v, _ := cmd.Flags().GetString(f.flag)
			*f.dst = &v
		}
	}
	if path, _ := cmd.Flags().GetString("signature-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return p, fmt.Errorf("reading signature: %w", err)
		}
		sig := strings.TrimSpace(string(data))
		p.Signature = &sig
	}
	return p, nil
}

var signSetCmd = snapshotCmd("set", "Edit the active signature record",
	func(ctx context.Context, cmd *cobra.Command, id string) (*signing.Snapshot, error) {
		p, err := signaturePatch(cmd)
		if err != nil {
			return nil, err
		}
		return certClient.ApplySigning(ctx, id, p)
	})

var signSameAsCmd = snapshotCmd("same-as", "Make the authoriser the same as the inspector",
	func(ctx context.Context, cmd *cobra.Command, id string) (*signing.Snapshot, error) {
		off, _ := cmd.Flags().GetBool("off")
		return certClient.SameAsInspected(ctx, id, !off)
	})

var signFinishCmd = &cobra.Command{
	Use:   "finish <id>",
	Short: "Complete the signatures and store them on the certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := certClient.FinishSigning(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("sign finish: %w", err)
		}
		if jsonOutput {
			return printJSON(resp)
		}
		fmt.Printf("Inspected by %s, authorised by %s\n",
			resp.Signatures.InspectedBy.Name, resp.Signatures.AuthorisedBy.Name)
		printStatus(os.Stdout, &resp.Status)
		return nil
	},
}

func init() {
	for _, flag := range []struct{ name, usage string }{
		{"name", "signer name (stored upper case)"},
		{"signature", "signature image as a data URL"},
		{"company", "company"},
		{"position", "position"},
		{"address", "company address"},
		{"membership-no", "scheme membership number"},
		{"date", "date signed (YYYY-MM-DD)"},
	} {
		signSetCmd.Flags().String(flag.name, "", flag.usage)
	}
	signSetCmd.Flags().String("signature-file", "", "read the signature data URL from a file")
	signSameAsCmd.Flags().Bool("off", false, "turn same-as-inspector off")

	signCmd.AddCommand(
		snapshotCmd("show", "Show the signature session", func(ctx context.Context, _ *cobra.Command, id string) (*signing.Snapshot, error) {
			return certClient.Signing(ctx, id)
		}),
		snapshotCmd("open", "Open the signature session", func(ctx context.Context, _ *cobra.Command, id string) (*signing.Snapshot, error) {
			return certClient.OpenSigning(ctx, id)
		}),
		signSetCmd,
		snapshotCmd("saved", "Use the saved inspector signature", func(ctx context.Context, _ *cobra.Command, id string) (*signing.Snapshot, error) {
			return certClient.UseSavedSignature(ctx, id)
		}),
		snapshotCmd("clear", "Clear the active signature", func(ctx context.Context, _ *cobra.Command, id string) (*signing.Snapshot, error) {
			return certClient.ClearSignature(ctx, id)
		}),
		signSameAsCmd,
		snapshotCmd("next", "Move on to the authoriser", func(ctx context.Context, _ *cobra.Command, id string) (*signing.Snapshot, error) {
			return certClient.NextSigningStep(ctx, id)
		}),
		snapshotCmd("back", "Return to the inspector", func(ctx context.Context, _ *cobra.Command, id string) (*signing.Snapshot, error) {
			return certClient.PrevSigningStep(ctx, id)
		}),
		signFinishCmd,
		snapshotCmd("close", "Abandon the signature session", func(ctx context.Context, _ *cobra.Command, id string) (*signing.Snapshot, error) {
			return certClient.CloseSigning(ctx, id)
		}),
	)
}
