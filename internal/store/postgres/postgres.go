// Package postgres is the PostgreSQL store. Schema changes live in
// migrations/ and are applied on open.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/certflow/internal/model"
	"github.com/alfredjeanlab/certflow/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// conn runs the store operations against a pool or a transaction.
type conn struct {
	ex executor
}

func (c conn) CreateCertificate(ctx context.Context, cert *model.Certificate) error {
	return queryCreateCertificate(ctx, c.ex, cert)
}

func (c conn) GetCertificate(ctx context.Context, id string) (*model.Certificate, error) {
	return queryGetCertificate(ctx, c.ex, id)
}

func (c conn) ListCertificates(ctx context.Context, f model.CertificateFilter) ([]*model.Certificate, int, error) {
	return queryListCertificates(ctx, c.ex, f)
}

func (c conn) UpdateCertificate(ctx context.Context, cert *model.Certificate) error {
	return queryUpdateCertificate(ctx, c.ex, cert)
}

func (c conn) DeleteCertificate(ctx context.Context, id string) error {
	return queryDeleteCertificate(ctx, c.ex, id)
}

func (c conn) SaveSignatures(ctx context.Context, id string, inspectedBy, authorisedBy model.SignatureRecord) error {
	return querySaveSignatures(ctx, c.ex, id, inspectedBy, authorisedBy)
}

func (c conn) MarkGenerated(ctx context.Context, id, pdfKey string, at time.Time) error {
	return queryMarkGenerated(ctx, c.ex, id, pdfKey, at)
}

func (c conn) RecordDispatch(ctx context.Context, d *model.Dispatch) error {
	return queryRecordDispatch(ctx, c.ex, d)
}

func (c conn) ListDispatches(ctx context.Context, certificateID string) ([]*model.Dispatch, error) {
	return queryListDispatches(ctx, c.ex, certificateID)
}

func (c conn) RecordEvent(ctx context.Context, e *model.Event) error {
	return queryRecordEvent(ctx, c.ex, e)
}

func (c conn) GetEvents(ctx context.Context, certificateID string) ([]*model.Event, error) {
	return queryGetEvents(ctx, c.ex, certificateID)
}

// PostgresStore is a store.Store over a connection pool.
type PostgresStore struct {
	conn
	db *sql.DB
}

var _ store.Store = (*PostgresStore)(nil)

func newStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{conn: conn{ex: db}, db: db}
}

// New connects to databaseURL and migrates the schema to the latest version.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return newStore(db), nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	target, err := migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: "certflow_migrations"})
	if err != nil {
		return fmt.Errorf("migration target: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", target)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// RunInTransaction runs fn against a store bound to one transaction, which
// commits only if fn succeeds.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(txStore{conn{ex: tx}}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore is the store handed to RunInTransaction callbacks.
type txStore struct {
	conn
}

var _ store.Store = txStore{}

// RunInTransaction joins the surrounding transaction.
func (s txStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close leaves the connection to the owning PostgresStore.
func (txStore) Close() error { return nil }
