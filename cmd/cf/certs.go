package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/certflow/internal/client"
	"github.com/alfredjeanlab/certflow/internal/model"
)

// readCertificateFile decodes a certificate from path, or stdin for "-".
func readCertificateFile(path string) (*model.Certificate, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var c model.Certificate
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &c, nil
}

// applyCertificateFlags copies every changed field flag onto c.
func applyCertificateFlags(cmd *cobra.Command, c *model.Certificate) {
	fields := []struct {
		flag string
		dst  *string
	}{
		{"number", &c.Number},
		{"client", &c.ClientName},
		{"email", &c.ClientEmail},
		{"address", &c.InstallationAddress},
		{"date", &c.InspectionDate},
		{"company", &c.CompanyName},
	}
	for _, f := range fields {
		if cmd.Flags().Changed(f.flag) {
			*f.dst, _ = cmd.Flags().GetString(f.flag)
		}
	}
	if cmd.Flags().Changed("assessment") {
		v, _ := cmd.Flags().GetString("assessment")
		c.Assessment = model.Assessment(v)
	}
	if cmd.Flags().Changed("type") {
		v, _ := cmd.Flags().GetString("type")
		c.Type = model.CertificateType(v)
	}
}

func addCertificateFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("type", "t", "", "certificate type (EICR or EIC)")
	cmd.Flags().String("number", "", "certificate number")
	cmd.Flags().String("client", "", "client name")
	cmd.Flags().String("email", "", "client email address")
	cmd.Flags().StringP("address", "a", "", "installation address")
	cmd.Flags().String("date", "", "inspection date (YYYY-MM-DD)")
	cmd.Flags().String("company", "", "contractor company name")
	cmd.Flags().String("assessment", "", "overall assessment (satisfactory or unsatisfactory)")
	cmd.Flags().StringP("file", "f", "", "read the certificate from a JSON file (- for stdin)")
}

// describeError adds validation field details to API errors.
func describeError(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || len(apiErr.Fields) == 0 {
		return err
	}
	msg := apiErr.Message
	for _, f := range apiErr.Fields {
		msg += fmt.Sprintf("\n  %s: %s", f.Field, f.Message)
	}
	return fmt.Errorf("%s", msg)
}

var createCmd = &cobra.Command{
	Use:     "create",
	Short:   "Create a certificate",
	GroupID: "certs",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cert := &model.Certificate{}
		if path, _ := cmd.Flags().GetString("file"); path != "" {
			var err error
			if cert, err = readCertificateFile(path); err != nil {
				return err
			}
		}
		applyCertificateFlags(cmd, cert)

		created, err := certClient.CreateCertificate(context.Background(), cert)
		if err != nil {
			return fmt.Errorf("creating certificate: %w", describeError(err))
		}
		if jsonOutput {
			return printJSON(created)
		}
		fmt.Printf("Created %s\n", created.ID)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	Short:   "Show a certificate",
	GroupID: "certs",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cert, err := certClient.GetCertificate(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting certificate %s: %w", args[0], err)
		}
		return output(cert, printCertificate)
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List certificates",
	GroupID: "certs",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetStringSlice("status")
		certType, _ := cmd.Flags().GetStringSlice("type")
		search, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		resp, err := certClient.ListCertificates(context.Background(), &client.ListCertificatesRequest{
			Status: status,
			Type:   certType,
			Search: search,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return fmt.Errorf("listing certificates: %w", err)
		}
		if jsonOutput {
			return printJSON(resp.Certificates)
		}
		printCertificateList(os.Stdout, resp.Certificates, resp.Total)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:     "edit <id>",
	Short:   "Change fields of the working copy (save to persist)",
	GroupID: "certs",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		id := args[0]

		var cert *model.Certificate
		var err error
		if path, _ := cmd.Flags().GetString("file"); path != "" {
			cert, err = readCertificateFile(path)
		} else {
			cert, err = certClient.GetCertificate(ctx, id)
		}
		if err != nil {
			return err
		}
		cert.ID = id
		applyCertificateFlags(cmd, cert)

		st, err := certClient.EditCertificate(ctx, cert)
		if err != nil {
			return fmt.Errorf("editing certificate %s: %w", id, describeError(err))
		}
		if save, _ := cmd.Flags().GetBool("save"); save {
			if st, err = certClient.Save(ctx, id); err != nil {
				return fmt.Errorf("saving certificate %s: %w", id, describeError(err))
			}
		}
		return output(st, printStatus)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Short:   "Delete a certificate",
	GroupID: "certs",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := certClient.DeleteCertificate(context.Background(), args[0]); err != nil {
			return fmt.Errorf("deleting certificate %s: %w", args[0], err)
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var saveCmd = &cobra.Command{
	Use:     "save <id>",
	Short:   "Persist the working copy",
	GroupID: "complete",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := certClient.Save(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("saving certificate %s: %w", args[0], describeError(err))
		}
		return output(st, printStatus)
	},
}

var closeCmd = &cobra.Command{
	Use:     "close <id>",
	Short:   "Close the workspace, discarding unsaved edits",
	GroupID: "complete",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		closed, err := certClient.CloseWorkspace(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("closing workspace %s: %w", args[0], err)
		}
		if jsonOutput {
			return printJSON(map[string]bool{"closed": closed})
		}
		if closed {
			fmt.Printf("Closed %s\n", args[0])
		} else {
			fmt.Printf("%s was not open\n", args[0])
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status <id>",
	Short:   "Show completion progress and available actions",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := certClient.Status(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting status of %s: %w", args[0], err)
		}
		return output(st, printStatus)
	},
}

func init() {
	addCertificateFlags(createCmd)
	addCertificateFlags(editCmd)
	editCmd.Flags().Bool("save", false, "save after editing")

	listCmd.Flags().StringSliceP("status", "s", nil, "filter by status (repeatable)")
	listCmd.Flags().StringSliceP("type", "t", nil, "filter by type (repeatable)")
	listCmd.Flags().String("search", "", "match number, client name or address")
	listCmd.Flags().Int("limit", 20, "maximum number of certificates to return")
	listCmd.Flags().Int("offset", 0, "offset for pagination")
}
