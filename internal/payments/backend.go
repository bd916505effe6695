// Package payments brokers Lightning invoices between the request gate and
// an external settlement backend.
package payments

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBackendUnavailable means the settlement backend could not be
	// reached. It must never be conflated with "not yet settled".
	ErrBackendUnavailable = errors.New("payment backend unavailable")

	// ErrBackendRejected means the backend refused the operation.
	ErrBackendRejected = errors.New("payment backend rejected the request")

	// ErrInvoiceNotFound means neither the broker nor the backend knows
	// the presented invoice id.
	ErrInvoiceNotFound = errors.New("invoice not found")
)

// Status is the backend's view of one invoice.
type Status int

const (
	StatusPending Status = iota
	StatusSettled
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSettled:
		return "settled"
	case StatusUnknown:
		return "unknown"
	}
	return "invalid"
}

// State is the broker's local lifecycle for one invoice. Settled and
// Expired are terminal.
type State int

const (
	StatePending State = iota
	StateSettled
	StateExpired
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSettled:
		return "settled"
	case StateExpired:
		return "expired"
	}
	return "invalid"
}

// Invoice is one payment claim. ID is the hex-encoded payment hash, which
// doubles as the client's bearer proof once the invoice settles.
type Invoice struct {
	ID             string
	AmountSats     int64
	PaymentRequest string // BOLT11 encoded invoice
	State          State
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Backend is the narrow capability the broker needs from a settlement
// backend. Implementations exist for LND's REST API and an in-process mock.
type Backend interface {
	// CreateInvoice mints a new invoice for the given amount. The memo
	// records the gated path for operator bookkeeping.
	CreateInvoice(ctx context.Context, amountSats int64, memo string) (*Invoice, error)

	// InvoiceStatus reports the authoritative settlement status of an
	// invoice. A backend failure is returned as an error, distinct from
	// any status.
	InvoiceStatus(ctx context.Context, id string) (Status, error)

	Close() error
}
