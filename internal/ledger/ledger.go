// Package ledger keeps a durable record of minted and settled invoices for
// operator accounting. Serving correctness never depends on it; the
// settlement backend stays authoritative.
package ledger

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Record is one invoice as seen by this server.
type Record struct {
	ID         string
	Path       string
	AmountSats int64
	CreatedAt  time.Time
	SettledAt  *time.Time // nil while unsettled
}

// Stats aggregates the ledger for the stats command.
type Stats struct {
	TotalInvoices   int
	SettledInvoices int
	OpenInvoices    int
	TotalSats       int64
	SettledSats     int64
	FirstInvoice    time.Time
	LastSettled     time.Time
}

// Store is the persistence interface. The sqlite implementation is the
// only one shipped; tests use it directly against temp files.
type Store interface {
	RecordCreated(ctx context.Context, rec *Record) error
	RecordSettled(ctx context.Context, id string, settledAt time.Time) error
	Get(ctx context.Context, id string) (*Record, error)
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}
