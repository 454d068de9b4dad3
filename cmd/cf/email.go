package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/certflow/internal/client"
	"github.com/alfredjeanlab/certflow/internal/dispatch"
	"github.com/alfredjeanlab/certflow/internal/model"
)

var emailCmd = &cobra.Command{
	Use:     "email",
	Short:   "Email the certificate to the client",
	GroupID: "complete",
}

func emailStateCmd(use, short string, call func(ctx context.Context, id string) (*dispatch.State, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := call(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("email %s: %w", use, err)
			}
			return output(st, printEmailState)
		},
	}
}

// emailEdit builds a partial edit from the changed flags; nil when none
// changed.
func emailEdit(cmd *cobra.Command) *client.EditEmailRequest {
	req := &client.EditEmailRequest{}
	changed := false
	for _, f := range []struct {
		flag string
		dst  **string
	}{
		{"to", &req.Recipient},
		{"cc", &req.CC},
		{"message", &req.Message},
	} {
		if cmd.Flags().Changed(f.flag) {
			v, _ := cmd.Flags().GetString(f.flag)
			*f.dst = &v
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return req
}

var emailSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Edit the recipient, CC list or message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := emailEdit(cmd)
		if req == nil {
			return fmt.Errorf("nothing to change: pass --to, --cc or --message")
		}
		st, err := certClient.EditEmail(context.Background(), args[0], req)
		if err != nil {
			return fmt.Errorf("email set: %w", err)
		}
		return output(st, printEmailState)
	},
}

var emailSendCmd = &cobra.Command{
	Use:   "send <id>",
	Short: "Open the email form if needed, apply edits and send",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		id := args[0]
		timeout, _ := cmd.Flags().GetDuration("timeout")

		st, err := certClient.Email(ctx, id)
		if err != nil {
			return fmt.Errorf("email send: %w", err)
		}
		if !st.Open {
			if _, err := certClient.OpenEmail(ctx, id); err != nil {
				return fmt.Errorf("email send: %w", err)
			}
		}
		if req := emailEdit(cmd); req != nil {
			if _, err := certClient.EditEmail(ctx, id, req); err != nil {
				return fmt.Errorf("email send: %w", err)
			}
		}
		if _, err := certClient.SendEmail(ctx, id); err != nil {
			return fmt.Errorf("email send: %w", err)
		}

		err = poll(ctx, 250*time.Millisecond, timeout, func(ctx context.Context) (bool, error) {
			st, err = certClient.Email(ctx, id)
			if err != nil {
				return false, err
			}
			return st.Status != model.DispatchSending, nil
		})
		if err != nil {
			return fmt.Errorf("email send: %w", err)
		}
		if jsonOutput {
			return printJSON(st)
		}
		if st.Status == model.DispatchError {
			return fmt.Errorf("email send: %s", st.Error)
		}
		printEmailState(os.Stdout, st)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{emailSetCmd, emailSendCmd} {
		c.Flags().String("to", "", "recipient address")
		c.Flags().String("cc", "", "comma-separated CC addresses")
		c.Flags().String("message", "", "custom message body")
	}
	emailSendCmd.Flags().Duration("timeout", time.Minute, "how long to wait for delivery")

	emailCmd.AddCommand(
		emailStateCmd("show", "Show the email form", func(ctx context.Context, id string) (*dispatch.State, error) {
			return certClient.Email(ctx, id)
		}),
		emailStateCmd("open", "Open the email form (requires both signatures)", func(ctx context.Context, id string) (*dispatch.State, error) {
			return certClient.OpenEmail(ctx, id)
		}),
		emailSetCmd,
		emailSendCmd,
		emailStateCmd("close", "Close the email form", func(ctx context.Context, id string) (*dispatch.State, error) {
			return certClient.CloseEmail(ctx, id)
		}),
	)
}
