package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/certflow/internal/dispatch"
	"github.com/alfredjeanlab/certflow/internal/model"
	"github.com/alfredjeanlab/certflow/internal/presence"
	"github.com/alfredjeanlab/certflow/internal/signing"
	"github.com/alfredjeanlab/certflow/internal/ui"
	"github.com/alfredjeanlab/certflow/internal/workflow"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// output prints v as JSON when --json is set and with table otherwise.
func output[T any](v T, table func(io.Writer, T)) error {
	if jsonOutput {
		return printJSON(v)
	}
	table(os.Stdout, v)
	return nil
}

func printCertificate(w io.Writer, c *model.Certificate) {
	fmt.Fprintf(w, "ID:          %s\n", c.ID)
	fmt.Fprintf(w, "Type:        %s\n", c.Type)
	fmt.Fprintf(w, "Status:      %s\n", ui.RenderStatus(string(c.Status)))
	if c.Number != "" {
		fmt.Fprintf(w, "Number:      %s\n", c.Number)
	}
	if c.ClientName != "" {
		fmt.Fprintf(w, "Client:      %s\n", c.ClientName)
	}
	if c.ClientEmail != "" {
		fmt.Fprintf(w, "Email:       %s\n", c.ClientEmail)
	}
	if c.InstallationAddress != "" {
		fmt.Fprintf(w, "Address:     %s\n", c.InstallationAddress)
	}
	if c.InspectionDate != "" {
		fmt.Fprintf(w, "Inspected:   %s\n", c.InspectionDate)
	}
	if c.Assessment != model.AssessmentNone {
		fmt.Fprintf(w, "Assessment:  %s\n", ui.RenderAssessment(string(c.Assessment)))
	}
	fmt.Fprintf(w, "Circuits:    %d\n", len(c.Circuits))
	fmt.Fprintf(w, "Observations: %d\n", len(c.Observations))
	printSignatureLine(w, "Inspected by", c.InspectedBy)
	printSignatureLine(w, "Authorised by", c.AuthorisedBy)
	if c.GeneratedAt != nil {
		fmt.Fprintf(w, "Generated:   %s\n", c.GeneratedAt.Format(timeLayout))
	}
	if c.CreatedBy != "" {
		fmt.Fprintf(w, "Created By:  %s\n", c.CreatedBy)
	}
	if !c.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated At:  %s\n", c.UpdatedAt.Format(timeLayout))
	}
}

func printSignatureLine(w io.Writer, label string, r *model.SignatureRecord) {
	switch {
	case r == nil:
		fmt.Fprintf(w, "%-13s %s\n", label+":", ui.RenderMuted("(none)"))
	case r.Valid():
		fmt.Fprintf(w, "%-13s %s %s\n", label+":", r.Name, ui.RenderMuted(r.Date))
	default:
		fmt.Fprintf(w, "%-13s %s %s\n", label+":", r.Name, ui.RenderWarn("(incomplete)"))
	}
}

func printCertificateList(w io.Writer, certs []*model.Certificate, total int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tSIGNED\tCLIENT\tADDRESS")
	for _, c := range certs {
		signed := "no"
		if c.Signed() {
			signed = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.Type, c.Status, signed,
			ui.Truncate(c.ClientName, 24),
			ui.Truncate(c.InstallationAddress, 40),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d certificates (%d total)\n", len(certs), total)
}

func printStatus(w io.Writer, st *workflow.Status) {
	fmt.Fprintf(w, "%s  %s\n", st.CertificateID, ui.ProgressBar(st.Summary.Percentage, 20))
	for _, l := range st.Lines {
		fmt.Fprintf(w, "  %-14s %s\n", l.Label+":", l.Value)
	}
	if len(st.Missing) > 0 {
		fmt.Fprintf(w, "  %-14s %s\n", "Missing:", ui.RenderWarn(strings.Join(st.Missing, ", ")))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s  %s  %s\n",
		actionLabel("Save", st.Actions.SaveEnabled),
		actionLabel(st.Actions.GenerateLabel, st.Actions.GenerateEnabled),
		actionLabel("Email", st.Actions.EmailEnabled),
	)
	if st.Actions.Reason != "" {
		fmt.Fprintf(w, "  %s\n", ui.RenderMuted(st.Actions.Reason))
	}
	if st.Actions.Success {
		fmt.Fprintf(w, "  %s\n", ui.RenderPass("Document generated"))
	}
	if st.Signing.Step != signing.StepClosed {
		fmt.Fprintf(w, "  Signing:  %s\n", st.Signing.Step)
	}
	if st.Dispatch.Open {
		fmt.Fprintf(w, "  Email:    %s\n", ui.RenderStatus(string(st.Dispatch.Status)))
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "  %s\n", ui.RenderFail("Error: "+st.LastError))
	}
}

func actionLabel(label string, enabled bool) string {
	if enabled {
		return ui.RenderAccent("[" + label + "]")
	}
	return ui.RenderMuted("[" + label + "]")
}

func printSnapshot(w io.Writer, s *signing.Snapshot) {
	fmt.Fprintf(w, "Step: %s\n", s.Step)
	if s.Step == signing.StepClosed {
		return
	}
	printRecord(w, "Inspected by", s.InspectedBy, s.Step == signing.StepInspected)
	printRecord(w, "Authorised by", s.AuthorisedBy, s.Step == signing.StepAuthorised)
	if s.SameAsInspected {
		fmt.Fprintln(w, ui.RenderMuted("Authoriser is the same as the inspector"))
	}
	if s.CanAdvance {
		fmt.Fprintln(w, ui.RenderPass("Ready to continue"))
	} else {
		fmt.Fprintln(w, ui.RenderWarn("Name and signature are required"))
	}
}

func printRecord(w io.Writer, title string, r model.SignatureRecord, active bool) {
	marker := " "
	if active {
		marker = ui.RenderAccent(">")
	}
	sig := ui.RenderMuted("(unsigned)")
	if r.Signature != "" {
		sig = "(signed)"
	}
	fmt.Fprintf(w, "%s %s\n", marker, title)
	fmt.Fprintf(w, "    Name:       %s %s\n", r.Name, sig)
	for _, f := range [][2]string{
		{"Company", r.Company},
		{"Position", r.Position},
		{"Address", r.Address},
		{"Membership", r.MembershipNo},
		{"Date", r.Date},
	} {
		if f[1] != "" {
			fmt.Fprintf(w, "    %-11s %s\n", f[0]+":", f[1])
		}
	}
}

func printEmailState(w io.Writer, s *dispatch.State) {
	if !s.Open {
		fmt.Fprintln(w, "Email: closed")
		if s.Notice != "" {
			fmt.Fprintln(w, ui.RenderPass(s.Notice))
		}
		return
	}
	fmt.Fprintf(w, "To:      %s\n", s.Recipient)
	if s.CCInput != "" {
		fmt.Fprintf(w, "CC:      %s\n", s.CCInput)
	}
	if s.Message != "" {
		fmt.Fprintf(w, "Message: %s\n", s.Message)
	}
	fmt.Fprintf(w, "Status:  %s\n", ui.RenderStatus(string(s.Status)))
	if s.Error != "" {
		fmt.Fprintln(w, ui.RenderFail(s.Error))
	}
	if s.Notice != "" {
		fmt.Fprintln(w, ui.RenderPass(s.Notice))
	}
}

func printDispatches(w io.Writer, ds []*model.Dispatch) {
	if len(ds) == 0 {
		fmt.Fprintln(w, "No emails sent.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SENT\tRESULT\tTO\tCC\tSUBJECT")
	for _, d := range ds {
		result := ui.RenderPass("ok")
		if !d.Succeeded {
			result = ui.RenderFail("failed")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			d.CreatedAt.Format(timeLayout), result, d.Recipient, strings.Join(d.CC, ","), d.Subject)
	}
	tw.Flush()
}

func printEvents(w io.Writer, evs []*model.Event) {
	for _, e := range evs {
		actor := e.Actor
		if actor == "" {
			actor = "-"
		}
		fmt.Fprintf(w, "%s  %-28s %s\n", e.CreatedAt.Format(timeLayout), e.Topic, ui.RenderMuted(actor))
	}
}

func printWorkspaces(w io.Writer, entries []presence.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No open workspaces.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CERTIFICATE\tACTOR\tOPENED\tIDLE\tREQUESTS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0fs\t%d\n",
			e.CertificateID, e.Actor, e.OpenedAt.Format(timeLayout), e.IdleSecs, e.Requests)
	}
	tw.Flush()
}
