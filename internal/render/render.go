// Package render produces the certificate PDF handed to the archive and to
// mail delivery. The layout is deliberately plain: a summary block, the
// schedule of circuits, observations and the two signature declarations.
package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/jung-kurt/gofpdf"

	"github.com/alfredjeanlab/certflow/internal/model"
	"github.com/alfredjeanlab/certflow/internal/progress"
)

// ContentType is the MIME type of rendered documents.
const ContentType = "application/pdf"

// ErrNilCertificate is returned when Render is called without a certificate.
var ErrNilCertificate = errors.New("render: certificate is nil")

const (
	pageMargin  = 15.0
	lineHeight  = 6.0
	labelWidth  = 45.0
	sigBoxWidth = 60.0
	sigBoxHigh  = 20.0
)

// Renderer turns certificates into PDF bytes.
type Renderer struct {
	clock  clockwork.Clock
	issuer string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithClock sets the clock used for document timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(r *Renderer) { r.clock = c }
}

// WithIssuer sets the name printed in the page header when the certificate
// carries no company name.
func WithIssuer(name string) Option {
	return func(r *Renderer) { r.issuer = name }
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{clock: clockwork.NewRealClock()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Filename returns the attachment name used for a certificate document.
func Filename(cert *model.Certificate) string {
	name := cert.Number
	if name == "" {
		name = cert.ID
	}
	return fmt.Sprintf("%s-%s.pdf", cert.Type, name)
}

// Render builds the PDF for cert. percentage is shown in the summary block
// and is expected to be clamped already.
func (r *Renderer) Render(cert *model.Certificate, percentage int) ([]byte, error) {
	if cert == nil {
		return nil, ErrNilCertificate
	}

	now := r.clock.Now()
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(now)
	pdf.SetModificationDate(now)
	pdf.SetTitle(fmt.Sprintf("%s Certificate %s", cert.Type, cert.Number), true)
	pdf.SetCreator("certflow", false)
	pdf.SetMargins(pageMargin, 20, pageMargin)
	pdf.SetAutoPageBreak(true, 20)

	heading := cert.CompanyName
	if heading == "" {
		heading = r.issuer
	}
	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Arial", "B", 14)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, 8, tr(title(cert.Type)), "", 1, "L", false, 0, "")
		if heading != "" {
			pdf.SetFont("Arial", "", 9)
			pdf.SetTextColor(90, 90, 90)
			pdf.CellFormat(0, 5, tr(heading), "", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Generated %s - Page %d", now.UTC().Format("2006-01-02 15:04 MST"), pdf.PageNo()),
			"", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	d := &doc{pdf: pdf, tr: tr}
	d.summary(progress.Summarize(cert, percentage))
	d.client(cert)
	d.circuits(cert.Circuits)
	d.observations(cert.Observations)
	d.signatures(cert.InspectedBy, cert.AuthorisedBy)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", cert.ID, err)
	}
	return buf.Bytes(), nil
}

func title(t model.CertificateType) string {
	switch t {
	case model.TypeEICR:
		return "Electrical Installation Condition Report"
	case model.TypeEIC:
		return "Electrical Installation Certificate"
	}
	return "Electrical Certificate"
}

type doc struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
	img int
}

func (d *doc) section(name string) {
	d.pdf.Ln(3)
	d.pdf.SetFont("Arial", "B", 11)
	d.pdf.SetTextColor(0, 0, 0)
	d.pdf.SetFillColor(230, 230, 230)
	d.pdf.CellFormat(0, 7, d.tr(name), "", 1, "L", true, 0, "")
	d.pdf.Ln(1)
}

func (d *doc) row(label, value string) {
	d.pdf.SetFont("Arial", "B", 9)
	d.pdf.CellFormat(labelWidth, lineHeight, d.tr(label), "", 0, "L", false, 0, "")
	d.pdf.SetFont("Arial", "", 9)
	d.pdf.MultiCell(0, lineHeight, d.tr(value), "", "L", false)
}

func (d *doc) summary(s progress.Summary) {
	d.section("Summary")
	for _, l := range progress.Lines(s) {
		d.row(l.Label, l.Value)
	}
}

func (d *doc) client(cert *model.Certificate) {
	if cert.ClientName == "" && cert.ClientEmail == "" {
		return
	}
	d.section("Client")
	if cert.ClientName != "" {
		d.row("Name", cert.ClientName)
	}
	if cert.ClientEmail != "" {
		d.row("Email", cert.ClientEmail)
	}
}

func (d *doc) circuits(cs []model.Circuit) {
	if len(cs) == 0 {
		return
	}
	d.section("Schedule of circuits")
	d.pdf.SetFont("Arial", "B", 9)
	d.pdf.CellFormat(20, lineHeight, "No.", "1", 0, "L", false, 0, "")
	d.pdf.CellFormat(50, lineHeight, "Designation", "1", 0, "L", false, 0, "")
	d.pdf.CellFormat(0, lineHeight, "Description", "1", 1, "L", false, 0, "")
	d.pdf.SetFont("Arial", "", 9)
	for _, c := range cs {
		d.pdf.CellFormat(20, lineHeight, d.tr(c.Number), "1", 0, "L", false, 0, "")
		d.pdf.CellFormat(50, lineHeight, d.tr(c.Designation), "1", 0, "L", false, 0, "")
		d.pdf.CellFormat(0, lineHeight, d.tr(c.Description), "1", 1, "L", false, 0, "")
	}
}

func (d *doc) observations(obs []model.Observation) {
	if len(obs) == 0 {
		return
	}
	d.section("Observations")
	for _, o := range obs {
		d.pdf.SetFont("Arial", "B", 9)
		r, g, b := codeColour(o.Code)
		d.pdf.SetTextColor(r, g, b)
		d.pdf.CellFormat(12, lineHeight, string(o.Code), "", 0, "L", false, 0, "")
		d.pdf.SetTextColor(0, 0, 0)
		d.pdf.SetFont("Arial", "", 9)
		text := o.Description
		if o.Item != "" {
			text = o.Item + ": " + text
		}
		if o.Location != "" {
			text += " (" + o.Location + ")"
		}
		d.pdf.MultiCell(0, lineHeight, d.tr(text), "", "L", false)
	}
}

func codeColour(c model.ObservationCode) (int, int, int) {
	switch c {
	case model.CodeC1:
		return 200, 30, 30
	case model.CodeC2:
		return 220, 120, 0
	case model.CodeC3:
		return 30, 90, 180
	}
	return 80, 80, 80
}

func (d *doc) signatures(inspected, authorised *model.SignatureRecord) {
	d.section("Declaration")
	d.signature("Inspected by", inspected)
	d.signature("Authorised by", authorised)
}

func (d *doc) signature(label string, rec *model.SignatureRecord) {
	d.pdf.SetFont("Arial", "B", 10)
	d.pdf.CellFormat(0, 7, d.tr(label), "", 1, "L", false, 0, "")
	if rec == nil {
		d.pdf.SetFont("Arial", "I", 9)
		d.pdf.CellFormat(0, lineHeight, "Not signed", "", 1, "L", false, 0, "")
		return
	}
	d.row("Name", rec.Name)
	if rec.Position != "" {
		d.row("Position", rec.Position)
	}
	if rec.Company != "" {
		d.row("Company", rec.Company)
	}
	if rec.Address != "" {
		d.row("Address", rec.Address)
	}
	if rec.MembershipNo != "" {
		d.row("Membership no.", rec.MembershipNo)
	}
	if rec.Date != "" {
		d.row("Date", rec.Date)
	}

	x, y := d.pdf.GetXY()
	d.pdf.SetDrawColor(150, 150, 150)
	d.pdf.Rect(x+labelWidth, y, sigBoxWidth, sigBoxHigh, "D")
	if !d.image(rec.Signature, x+labelWidth+1, y+1) {
		d.pdf.SetXY(x+labelWidth+2, y+sigBoxHigh/2-3)
		d.pdf.SetFont("Times", "I", 12)
		d.pdf.CellFormat(sigBoxWidth-4, lineHeight, d.tr(typedSignature(rec.Signature)), "", 0, "L", false, 0, "")
	}
	d.pdf.SetXY(x, y+sigBoxHigh+2)
}

// image draws a data URL signature inside the signature box. It reports
// false when the signature is not an image gofpdf can decode.
func (d *doc) image(sig string, x, y float64) bool {
	kind, data, ok := decodeDataURL(sig)
	if !ok {
		return false
	}
	d.img++
	name := fmt.Sprintf("sig%d", d.img)
	opts := gofpdf.ImageOptions{ImageType: kind, ReadDpi: false}
	info := d.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if info == nil || d.pdf.Err() {
		d.pdf.ClearError()
		return false
	}
	d.pdf.ImageOptions(name, x, y, 0, sigBoxHigh-2, false, opts, 0, "")
	return true
}

// decodeDataURL extracts a base64 PNG or JPEG payload.
func decodeDataURL(s string) (kind string, data []byte, ok bool) {
	meta, payload, found := strings.Cut(s, ",")
	if !found || !strings.HasPrefix(meta, "data:image/") || !strings.HasSuffix(meta, ";base64") {
		return "", nil, false
	}
	switch strings.TrimSuffix(strings.TrimPrefix(meta, "data:image/"), ";base64") {
	case "png":
		kind = "PNG"
	case "jpeg", "jpg":
		kind = "JPG"
	default:
		return "", nil, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return "", nil, false
	}
	return kind, data, true
}

func typedSignature(sig string) string {
	if strings.HasPrefix(sig, "data:") {
		return "[signature on file]"
	}
	return sig
}
