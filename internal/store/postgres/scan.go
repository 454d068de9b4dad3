package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/alfredjeanlab/certflow/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// certificateRow holds the nullable and JSONB columns of a certificate row
// until they are decoded into the model.
type certificateRow struct {
	number         sql.NullString
	inspectionDate sql.NullString
	circuits       []byte
	observations   []byte
	inspectedBy    []byte
	authorisedBy   []byte
	pdfKey         sql.NullString
	generatedAt    sql.NullTime
	createdBy      sql.NullString
	fields         []byte
}

// dest returns scan destinations in certificateColumns order.
func (r *certificateRow) dest(c *model.Certificate) []any {
	return []any{
		&c.ID,
		&c.Type,
		&r.number,
		&c.ClientName,
		&c.ClientEmail,
		&c.InstallationAddress,
		&r.inspectionDate,
		&c.Assessment,
		&c.CompanyName,
		&r.circuits,
		&r.observations,
		&r.inspectedBy,
		&r.authorisedBy,
		&c.Status,
		&r.pdfKey,
		&r.generatedAt,
		&c.CreatedAt,
		&r.createdBy,
		&c.UpdatedAt,
		&r.fields,
	}
}

func (r *certificateRow) decode(c *model.Certificate) error {
	c.Number = r.number.String
	c.InspectionDate = r.inspectionDate.String
	c.PDFKey = r.pdfKey.String
	c.CreatedBy = r.createdBy.String

	if r.generatedAt.Valid {
		t := r.generatedAt.Time
		c.GeneratedAt = &t
	}
	if len(r.circuits) > 0 {
		if err := json.Unmarshal(r.circuits, &c.Circuits); err != nil {
			return fmt.Errorf("decode circuits: %w", err)
		}
	}
	if len(r.observations) > 0 {
		if err := json.Unmarshal(r.observations, &c.Observations); err != nil {
			return fmt.Errorf("decode observations: %w", err)
		}
	}
	var err error
	if c.InspectedBy, err = decodeSignature(r.inspectedBy); err != nil {
		return fmt.Errorf("decode inspected_by: %w", err)
	}
	if c.AuthorisedBy, err = decodeSignature(r.authorisedBy); err != nil {
		return fmt.Errorf("decode authorised_by: %w", err)
	}
	if len(r.fields) > 0 {
		c.Fields = json.RawMessage(r.fields)
	}
	return nil
}

// scanCertificate scans a single row into a model.Certificate.
// The row must contain columns in the order defined by certificateColumns.
func scanCertificate(row scannable) (*model.Certificate, error) {
	var c model.Certificate
	var r certificateRow
	if err := row.Scan(r.dest(&c)...); err != nil {
		return nil, err
	}
	if err := r.decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// scanCertificateWithTotal scans a row that has a leading total_count column
// followed by the standard certificate columns. Used by queryListCertificates
// with COUNT(*) OVER().
func scanCertificateWithTotal(row scannable) (*model.Certificate, int, error) {
	var total int
	var c model.Certificate
	var r certificateRow
	if err := row.Scan(append([]any{&total}, r.dest(&c)...)...); err != nil {
		return nil, 0, err
	}
	if err := r.decode(&c); err != nil {
		return nil, 0, err
	}
	return &c, total, nil
}

// scanDispatch scans a single row into a model.Dispatch.
func scanDispatch(row scannable) (*model.Dispatch, error) {
	var d model.Dispatch
	var (
		cc        []byte
		messageID sql.NullString
		errText   sql.NullString
	)
	err := row.Scan(&d.ID, &d.CertificateID, &d.Recipient, &cc, &d.Subject, &messageID, &d.Succeeded, &errText, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.MessageID = messageID.String
	d.Error = errText.String
	if len(cc) > 0 {
		if err := json.Unmarshal(cc, &d.CC); err != nil {
			return nil, fmt.Errorf("decode cc: %w", err)
		}
	}
	return &d, nil
}

// scanDispatches scans multiple rows into a slice of model.Dispatch pointers.
func scanDispatches(rows *sql.Rows) ([]*model.Dispatch, error) {
	var out []*model.Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// scanEvent scans a single row into a model.Event.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var (
		actor   sql.NullString
		payload []byte
	)
	err := row.Scan(&e.ID, &e.Topic, &e.CertificateID, &actor, &payload, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Actor = actor.String
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.Event pointers.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// decodeSignature decodes a JSONB signature column; NULL yields nil.
func decodeSignature(b []byte) (*model.SignatureRecord, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var r model.SignatureRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// signatureBytes encodes a signature record for a JSONB column; nil is null.
func signatureBytes(r *model.SignatureRecord) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// jsonbValue encodes a slice for a JSONB column; nil and empty slices are null.
func jsonbValue(v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() == reflect.Slice && rv.Len() == 0) {
		return nil, nil
	}
	return json.Marshal(v)
}

// nullTimePtr converts a *time.Time to a sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
