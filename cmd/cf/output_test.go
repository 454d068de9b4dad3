package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/certflow/internal/actionbar"
	"github.com/alfredjeanlab/certflow/internal/dispatch"
	"github.com/alfredjeanlab/certflow/internal/model"
	"github.com/alfredjeanlab/certflow/internal/progress"
	"github.com/alfredjeanlab/certflow/internal/signing"
	"github.com/alfredjeanlab/certflow/internal/ui"
	"github.com/alfredjeanlab/certflow/internal/workflow"
)

func init() {
	ui.ForceNoColor()
}

func TestPrintCertificateList(t *testing.T) {
	certs := []*model.Certificate{
		{ID: "cert-1", Type: model.TypeEICR, Status: model.StatusDraft, ClientName: "Ann", InstallationAddress: "12 High Street"},
		{
			ID: "cert-2", Type: model.TypeEIC, Status: model.StatusCompleted,
			InspectedBy:  &model.SignatureRecord{Name: "J SMITH", Signature: "sig"},
			AuthorisedBy: &model.SignatureRecord{Name: "A JONES", Signature: "sig"},
		},
	}
	var buf bytes.Buffer
	printCertificateList(&buf, certs, 9)
	out := buf.String()

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if !strings.HasPrefix(lines[0], "ID") {
		t.Fatalf("missing header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "cert-1") || !strings.Contains(lines[1], " no ") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "cert-2") || !strings.Contains(lines[2], " yes ") {
		t.Errorf("row 2 = %q", lines[2])
	}
	if !strings.Contains(out, "2 certificates (9 total)") {
		t.Errorf("missing footer in %q", out)
	}
}

func TestPrintStatus(t *testing.T) {
	st := &workflow.Status{
		CertificateID: "cert-1",
		Summary:       progress.Summary{Percentage: 50},
		Lines:         []progress.Line{{Label: "Certificate", Value: "EICR"}},
		Missing:       []string{"Signatures"},
		Actions:       actionbar.View{SaveEnabled: true, GenerateLabel: "Generate", Reason: "Both signatures are required"},
		Signing:       signing.Snapshot{Step: signing.StepAuthorised},
		Dispatch:      dispatch.State{Open: true, Status: model.DispatchError},
		LastError:     "relay refused",
	}
	var buf bytes.Buffer
	printStatus(&buf, st)
	out := buf.String()

	for _, want := range []string{
		"cert-1  [##########----------] 50%",
		"Certificate:   EICR",
		"Missing:       Signatures",
		"[Save]  [Generate]  [Email]",
		"Both signatures are required",
		"Signing:  authorised",
		"Email:    error",
		"Error: relay refused",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintCertificate_Signatures(t *testing.T) {
	generated := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	c := &model.Certificate{
		ID:           "cert-1",
		Type:         model.TypeEICR,
		Status:       model.StatusCompleted,
		Assessment:   model.AssessmentSatisfactory,
		InspectedBy:  &model.SignatureRecord{Name: "J SMITH", Signature: "sig", Date: "2024-05-01"},
		AuthorisedBy: &model.SignatureRecord{Name: "A JONES"},
		GeneratedAt:  &generated,
	}
	var buf bytes.Buffer
	printCertificate(&buf, c)
	out := buf.String()

	for _, want := range []string{
		"Assessment:  satisfactory",
		"Inspected by: J SMITH 2024-05-01",
		"Authorised by: A JONES (incomplete)",
		"Generated:   2024-05-01 09:30:00",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintSnapshot(t *testing.T) {
	for _, tc := range []struct {
		name string
		snap signing.Snapshot
		want []string
	}{
		{"closed", signing.Snapshot{Step: signing.StepClosed}, []string{"Step: closed"}},
		{
			"inspector incomplete",
			signing.Snapshot{Step: signing.StepInspected, InspectedBy: model.SignatureRecord{Name: "J SMITH", Company: "Sparks Ltd"}},
			[]string{"> Inspected by", "Name:       J SMITH (unsigned)", "Company:    Sparks Ltd", "Name and signature are required"},
		},
		{
			"same as",
			signing.Snapshot{Step: signing.StepAuthorised, SameAsInspected: true, CanAdvance: true},
			[]string{"> Authorised by", "same as the inspector", "Ready to continue"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			printSnapshot(&buf, &tc.snap)
			for _, want := range tc.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestPrintDispatches(t *testing.T) {
	var buf bytes.Buffer
	printDispatches(&buf, nil)
	if !strings.Contains(buf.String(), "No emails sent.") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	printDispatches(&buf, []*model.Dispatch{
		{Recipient: "a@b.com", CC: []string{"c@d.com", "e@f.com"}, Subject: "EICR Certificate - 12 High Street", Succeeded: true},
		{Recipient: "a@b.com", Subject: "EICR Certificate - 12 High Street", Error: "relay refused"},
	})
	out := buf.String()
	if !strings.Contains(out, "c@d.com,e@f.com") || !strings.Contains(out, "failed") {
		t.Errorf("output = %q", out)
	}
}

func TestSignaturePatch(t *testing.T) {
	cmd := &cobra.Command{}
	for _, f := range []string{"name", "signature", "company", "position", "address", "membership-no", "date", "signature-file"} {
		cmd.Flags().String(f, "", "")
	}
	if err := cmd.Flags().Parse([]string{"--name", "j smith", "--company", ""}); err != nil {
		t.Fatal(err)
	}

	p, err := signaturePatch(cmd)
	if err != nil {
		t.Fatalf("signaturePatch() error = %v", err)
	}
	if p.Name == nil || *p.Name != "j smith" {
		t.Errorf("Name = %v", p.Name)
	}
	if p.Company == nil || *p.Company != "" {
		t.Errorf("an explicitly emptied flag should clear the field, got %v", p.Company)
	}
	if p.Signature != nil || p.Date != nil {
		t.Errorf("unchanged flags should stay nil: %+v", p)
	}
}

func TestEmailEdit(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		cmd := &cobra.Command{}
		cmd.Flags().String("to", "", "")
		cmd.Flags().String("cc", "", "")
		cmd.Flags().String("message", "", "")
		if err := cmd.Flags().Parse(args); err != nil {
			t.Fatal(err)
		}
		return cmd
	}

	if req := emailEdit(newCmd()); req != nil {
		t.Errorf("no flags should give nil, got %+v", req)
	}
	req := emailEdit(newCmd("--cc", "c@d.com"))
	if req == nil || req.CC == nil || *req.CC != "c@d.com" || req.Recipient != nil {
		t.Errorf("req = %+v", req)
	}
}

func TestColorizeHelp(t *testing.T) {
	// Styling functions return their input unchanged with color disabled,
	// so the text must survive every rule intact.
	in := "Usage:\n  cf <command>\n\nCompletion:\n  sign        Capture signatures\n\nFlags:\n      --http-url string   HTTP server URL (default \"http://localhost:8080\")\n"
	if got := colorizeHelp(in); got != in {
		t.Errorf("colorizeHelp changed text without color:\n%s", got)
	}
}
