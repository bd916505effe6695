// Package gate makes the serve-or-charge decision for each request.
package gate

import (
	"context"
	"errors"
	"log/slog"

	"satgate/internal/access"
	"satgate/internal/payments"
)

// ErrPaymentsNotConfigured reports a request for a paid file on a server
// started without a settlement backend.
var ErrPaymentsNotConfigured = errors.New("paid access requested but no payment backend is configured")

// Outcome is the gate's verdict for one request.
type Outcome int

const (
	// OutcomeUndecided is the zero value, returned alongside errors. It is
	// deliberately not OutcomeServe: a caller that misreads an error
	// Decision must never see a serve signal.
	OutcomeUndecided Outcome = iota
	// OutcomeServe means the file may be streamed to the client.
	OutcomeServe
	// OutcomeRequirePayment means the client must settle Decision.Invoice
	// first.
	OutcomeRequirePayment
)

// Decision is the result of one gate check. Invoice is set only for
// OutcomeRequirePayment.
type Decision struct {
	Outcome Outcome
	Invoice *payments.Invoice
}

// Resolver yields the effective access decision for a file path.
type Resolver interface {
	Resolve(ctx context.Context, path string) (access.EffectiveAccess, error)
}

// Broker is the invoice lifecycle capability the gate needs.
type Broker interface {
	RequestInvoice(ctx context.Context, path string, amountSats int64) (*payments.Invoice, error)
	CheckSettlement(ctx context.Context, id string) (payments.State, error)
	InvoiceByID(id string) (*payments.Invoice, bool)
}

// Gate decides, per request, whether a file is served or held behind an
// invoice. It keeps no per-request state: the only proof of payment is a
// settled invoice id, which is a bearer instrument.
type Gate struct {
	resolver Resolver
	broker   Broker // nil when no backend is configured
	log      *slog.Logger
}

// New creates a gate. broker may be nil, in which case any paid path fails
// with ErrPaymentsNotConfigured rather than being silently served.
func New(resolver Resolver, broker Broker) *Gate {
	return &Gate{
		resolver: resolver,
		broker:   broker,
		log:      slog.Default().With("component", "gate"),
	}
}

// Decide resolves access for path and, when payment is required, checks the
// presented proof (an invoice id, possibly empty) against the broker. Every
// error path refuses to serve; ambiguity never unlocks content.
func (g *Gate) Decide(ctx context.Context, path, proof string) (Decision, error) {
	acc, err := g.resolver.Resolve(ctx, path)
	if err != nil {
		return Decision{}, err
	}
	if !acc.Paid {
		return Decision{Outcome: OutcomeServe}, nil
	}

	if g.broker == nil {
		return Decision{}, ErrPaymentsNotConfigured
	}

	if proof != "" {
		state, err := g.broker.CheckSettlement(ctx, proof)
		switch {
		case errors.Is(err, payments.ErrInvoiceNotFound):
			// Bogus or long-forgotten id: fall through and charge.
		case err != nil:
			return Decision{}, err
		case state == payments.StateSettled:
			return Decision{Outcome: OutcomeServe}, nil
		case state == payments.StatePending:
			if inv, ok := g.broker.InvoiceByID(proof); ok {
				return Decision{Outcome: OutcomeRequirePayment, Invoice: inv}, nil
			}
			// Pending but unknown locally (restart); reissue below.
		}
		// StateExpired, or pending proof we cannot re-present: mint or
		// reuse via the broker.
	}

	inv, err := g.broker.RequestInvoice(ctx, path, int64(acc.Price))
	if err != nil {
		return Decision{}, err
	}
	return Decision{Outcome: OutcomeRequirePayment, Invoice: inv}, nil
}
