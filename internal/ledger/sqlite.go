package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"satgate/internal/payments"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed migrates) the ledger database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS invoices (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			amount_sats INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			settled_at DATETIME
		)
	`)
	return err
}

func (s *SQLiteStore) RecordCreated(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO invoices (id, path, amount_sats, created_at)
		VALUES (?, ?, ?, ?)
	`, rec.ID, rec.Path, rec.AmountSats, rec.CreatedAt)
	return err
}

func (s *SQLiteStore) RecordSettled(ctx context.Context, id string, settledAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET settled_at = ? WHERE id = ? AND settled_at IS NULL
	`, settledAt, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Either unknown (settled proof from a pre-restart invoice) or
		// already settled; record the former so the books stay complete.
		_, err = s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO invoices (id, path, amount_sats, created_at, settled_at)
			VALUES (?, '', 0, ?, ?)
		`, id, settledAt, settledAt)
		return err
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, amount_sats, created_at, settled_at
		FROM invoices WHERE id = ?
	`, id)

	var rec Record
	var settledAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.Path, &rec.AmountSats, &rec.CreatedAt, &settledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if settledAt.Valid {
		rec.SettledAt = &settledAt.Time
	}
	return &rec, nil
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN settled_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(amount_sats), 0),
			COALESCE(SUM(CASE WHEN settled_at IS NOT NULL THEN amount_sats ELSE 0 END), 0),
			COALESCE(MIN(created_at), ''),
			COALESCE(MAX(settled_at), '')
		FROM invoices
	`)

	stats := &Stats{}
	var first, lastSettled string
	err := row.Scan(
		&stats.TotalInvoices,
		&stats.SettledInvoices,
		&stats.TotalSats,
		&stats.SettledSats,
		&first,
		&lastSettled,
	)
	if err != nil {
		return nil, err
	}
	stats.OpenInvoices = stats.TotalInvoices - stats.SettledInvoices
	stats.FirstInvoice = parseSQLiteTime(first)
	stats.LastSettled = parseSQLiteTime(lastSettled)
	return stats, nil
}

func parseSQLiteTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InvoiceCreated adapts RecordCreated to the broker's Ledger interface.
func (s *SQLiteStore) InvoiceCreated(ctx context.Context, path string, inv *payments.Invoice) error {
	return s.RecordCreated(ctx, &Record{
		ID:         inv.ID,
		Path:       path,
		AmountSats: inv.AmountSats,
		CreatedAt:  inv.CreatedAt,
	})
}

// InvoiceSettled adapts RecordSettled to the broker's Ledger interface.
func (s *SQLiteStore) InvoiceSettled(ctx context.Context, id string, settledAt time.Time) error {
	return s.RecordSettled(ctx, id, settledAt)
}
