// Package mail builds and delivers certificate emails.
package mail

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// Attachment is a file carried by a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is an outgoing email. Text is Markdown; it is sent as the plain
// part verbatim and rendered for the HTML alternative.
type Message struct {
	From        string
	To          string
	CC          []string
	Subject     string
	Text        string
	Attachments []Attachment
}

// Recipients returns the envelope recipients: To followed by CC.
func (m *Message) Recipients() []string {
	out := make([]string, 0, 1+len(m.CC))
	out = append(out, m.To)
	return append(out, m.CC...)
}

var (
	ErrNoSender    = errors.New("mail: message has no sender")
	ErrNoRecipient = errors.New("mail: message has no recipient")
)

// md escapes raw HTML in the input; WithUnsafe is not set.
var md = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

const lineLen = 76

// Build encodes m as a MIME message. It returns the raw bytes and the
// generated Message-ID.
func Build(m *Message, date time.Time) ([]byte, string, error) {
	if m.From == "" {
		return nil, "", ErrNoSender
	}
	if m.To == "" {
		return nil, "", ErrNoRecipient
	}

	domain := "localhost"
	if _, d, ok := strings.Cut(m.From, "@"); ok && d != "" {
		domain = strings.Trim(d, "<> ")
	}
	msgID := fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)

	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }
	header("From", m.From)
	header("To", m.To)
	if len(m.CC) > 0 {
		header("Cc", strings.Join(m.CC, ", "))
	}
	header("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	header("Date", date.Format(time.RFC1123Z))
	header("Message-ID", msgID)
	header("MIME-Version", "1.0")

	mixed := multipart.NewWriter(&buf)
	header("Content-Type", `multipart/mixed; boundary="`+mixed.Boundary()+`"`)
	buf.WriteString("\r\n")

	if err := writeAlternative(mixed, m.Text); err != nil {
		return nil, "", err
	}
	for _, a := range m.Attachments {
		if err := writeAttachment(mixed, a); err != nil {
			return nil, "", err
		}
	}
	if err := mixed.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), msgID, nil
}

func writeAlternative(parent *multipart.Writer, text string) error {
	var body bytes.Buffer
	alt := multipart.NewWriter(&body)

	plain, err := alt.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=utf-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return err
	}
	if err := writeBase64(plain, []byte(text)); err != nil {
		return err
	}

	var html bytes.Buffer
	if err := md.Convert([]byte(text), &html); err != nil {
		return fmt.Errorf("render html body: %w", err)
	}
	rich, err := alt.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=utf-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return err
	}
	if err := writeBase64(rich, html.Bytes()); err != nil {
		return err
	}
	if err := alt.Close(); err != nil {
		return err
	}

	part, err := parent.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`multipart/alternative; boundary="` + alt.Boundary() + `"`},
	})
	if err != nil {
		return err
	}
	_, err = part.Write(body.Bytes())
	return err
}

func writeAttachment(parent *multipart.Writer, a Attachment) error {
	ct := a.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	name := mime.QEncoding.Encode("utf-8", a.Filename)
	part, err := parent.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {fmt.Sprintf("%s; name=%q", ct, name)},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", name)},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return fmt.Errorf("attachment %s: %w", a.Filename, err)
	}
	return writeBase64(part, a.Data)
}

// writeBase64 writes data base64-encoded in CRLF-terminated lines.
func writeBase64(w io.Writer, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 0 {
		n := min(lineLen, len(enc))
		if _, err := fmt.Fprintf(w, "%s\r\n", enc[:n]); err != nil {
			return err
		}
		enc = enc[n:]
	}
	return nil
}
