package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/certflow/internal/model"
)

// certificateColumns is the column list used for SELECT statements on the certificates table.
const certificateColumns = `id, type, number, client_name, client_email, installation_address,
	inspection_date, assessment, company_name, circuits, observations,
	inspected_by, authorised_by, status, pdf_key, generated_at,
	created_at, created_by, updated_at, fields`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// documentArgs encodes the JSONB columns of a certificate.
func documentArgs(c *model.Certificate) (circuits, observations, inspected, authorised []byte, err error) {
	if circuits, err = jsonbValue(c.Circuits); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode circuits: %w", err)
	}
	if observations, err = jsonbValue(c.Observations); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode observations: %w", err)
	}
	if inspected, err = signatureBytes(c.InspectedBy); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode inspected_by: %w", err)
	}
	if authorised, err = signatureBytes(c.AuthorisedBy); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode authorised_by: %w", err)
	}
	return circuits, observations, inspected, authorised, nil
}

func queryCreateCertificate(ctx context.Context, db executor, c *model.Certificate) error {
	circuits, observations, inspected, authorised, err := documentArgs(c)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO certificates (
			id, type, number, client_name, client_email, installation_address,
			inspection_date, assessment, company_name, circuits, observations,
			inspected_by, authorised_by, status, pdf_key, generated_at,
			created_at, created_by, updated_at, fields
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20
		)`,
		c.ID,
		string(c.Type),
		nullString(c.Number),
		c.ClientName,
		c.ClientEmail,
		c.InstallationAddress,
		nullString(c.InspectionDate),
		string(c.Assessment),
		c.CompanyName,
		circuits,
		observations,
		inspected,
		authorised,
		string(c.Status),
		nullString(c.PDFKey),
		nullTimePtr(c.GeneratedAt),
		c.CreatedAt,
		nullString(c.CreatedBy),
		c.UpdatedAt,
		jsonbBytes(c.Fields),
	)
	return err
}

func queryGetCertificate(ctx context.Context, db executor, id string) (*model.Certificate, error) {
	row := db.QueryRowContext(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, id)
	return scanCertificate(row)
}

func queryListCertificates(ctx context.Context, db executor, filter model.CertificateFilter) ([]*model.Certificate, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = nextArg()
			args = append(args, string(s))
		}
		whereClauses = append(whereClauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.Type) > 0 {
		placeholders := make([]string, len(filter.Type))
		for i, t := range filter.Type {
			placeholders[i] = nextArg()
			args = append(args, string(t))
		}
		whereClauses = append(whereClauses, "type IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filter.Search != "" {
		p := nextArg()
		whereClauses = append(whereClauses,
			fmt.Sprintf("(number ILIKE '%%' || %s || '%%' OR client_name ILIKE '%%' || %s || '%%' OR installation_address ILIKE '%%' || %s || '%%')", p, p, p))
		args = append(args, filter.Search)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	dataQuery := "SELECT COUNT(*) OVER() AS total_count, " + certificateColumns + " FROM certificates" + whereSQL + " ORDER BY updated_at DESC"

	if filter.Limit > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var certs []*model.Certificate
	var total int
	for rows.Next() {
		c, t, err := scanCertificateWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan certificates: %w", err)
		}
		total = t
		certs = append(certs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan certificates: %w", err)
	}

	return certs, total, nil
}

// queryUpdateCertificate writes the form fields of a certificate. Signatures
// and generation state have their own statements and are left alone.
func queryUpdateCertificate(ctx context.Context, db executor, c *model.Certificate) error {
	circuits, err := jsonbValue(c.Circuits)
	if err != nil {
		return fmt.Errorf("encode circuits: %w", err)
	}
	observations, err := jsonbValue(c.Observations)
	if err != nil {
		return fmt.Errorf("encode observations: %w", err)
	}
	return db.QueryRowContext(ctx, `
		UPDATE certificates SET
			type = $2,
			number = $3,
			client_name = $4,
			client_email = $5,
			installation_address = $6,
			inspection_date = $7,
			assessment = $8,
			company_name = $9,
			circuits = $10,
			observations = $11,
			fields = $12,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID,
		string(c.Type),
		nullString(c.Number),
		c.ClientName,
		c.ClientEmail,
		c.InstallationAddress,
		nullString(c.InspectionDate),
		string(c.Assessment),
		c.CompanyName,
		circuits,
		observations,
		jsonbBytes(c.Fields),
	).Scan(&c.UpdatedAt)
}

func queryDeleteCertificate(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM certificates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func querySaveSignatures(ctx context.Context, db executor, id string, inspectedBy, authorisedBy model.SignatureRecord) error {
	inspected, err := json.Marshal(inspectedBy)
	if err != nil {
		return fmt.Errorf("encode inspected_by: %w", err)
	}
	authorised, err := json.Marshal(authorisedBy)
	if err != nil {
		return fmt.Errorf("encode authorised_by: %w", err)
	}
	res, err := db.ExecContext(ctx, `
		UPDATE certificates
		SET inspected_by = $2, authorised_by = $3, updated_at = NOW()
		WHERE id = $1`,
		id, inspected, authorised,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func queryMarkGenerated(ctx context.Context, db executor, id, pdfKey string, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE certificates
		SET status = 'completed', pdf_key = $2, generated_at = $3, updated_at = NOW()
		WHERE id = $1`,
		id, nullString(pdfKey), at,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func queryRecordDispatch(ctx context.Context, db executor, d *model.Dispatch) error {
	cc, err := jsonbValue(d.CC)
	if err != nil {
		return fmt.Errorf("encode cc: %w", err)
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO dispatches (certificate_id, recipient, cc, subject, message_id, succeeded, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		d.CertificateID, d.Recipient, cc, d.Subject, nullString(d.MessageID), d.Succeeded, nullString(d.Error),
	).Scan(&d.ID, &d.CreatedAt)
}

func queryListDispatches(ctx context.Context, db executor, certificateID string) ([]*model.Dispatch, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, certificate_id, recipient, cc, subject, message_id, succeeded, error, created_at
		FROM dispatches
		WHERE certificate_id = $1
		ORDER BY created_at ASC`,
		certificateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDispatches(rows)
}

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO events (topic, certificate_id, actor, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.Topic, e.CertificateID, e.Actor, []byte(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryGetEvents(ctx context.Context, db executor, certificateID string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, topic, certificate_id, actor, payload, created_at
		FROM events
		WHERE certificate_id = $1
		ORDER BY created_at ASC`,
		certificateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// expectOneRow maps an update or delete that touched nothing to sql.ErrNoRows.
func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
