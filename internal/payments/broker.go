package payments

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSettledRetention is how long a settled invoice stays resolvable
// after settlement, so clients can retry a paid download without repaying.
const DefaultSettledRetention = 24 * time.Hour

// Key identifies which open invoice may be reused for a request. Invoices
// are bearer instruments, so client identity is deliberately not part of
// the key: whoever pays may download.
type Key struct {
	Path       string
	AmountSats int64
}

// Ledger receives a record of every minted and settled invoice. It is an
// audit trail only; broker correctness never depends on it.
type Ledger interface {
	InvoiceCreated(ctx context.Context, path string, inv *Invoice) error
	InvoiceSettled(ctx context.Context, id string, settledAt time.Time) error
}

type entry struct {
	inv       *Invoice
	key       Key
	settledAt time.Time
}

// Broker owns all local invoice bookkeeping. It guarantees at most one
// open invoice per key, serializing creation so concurrent first requests
// for the same resource observe the same invoice, and it mirrors the
// backend's settlement decisions locally. All state is in-memory; the
// backend remains the source of truth across restarts.
type Broker struct {
	backend   Backend
	ledger    Ledger // may be nil
	onSettled func(id string)
	log       *slog.Logger
	retention time.Duration

	mu    sync.Mutex
	byKey map[Key]*entry
	byID  map[string]*entry
	locks map[Key]*keyLock
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithLedger records minted and settled invoices to l.
func WithLedger(l Ledger) BrokerOption {
	return func(b *Broker) { b.ledger = l }
}

// WithSettledHook calls fn whenever the broker observes a settlement.
// External components (like the per-client invoice limiter) use it to react
// to payments.
func WithSettledHook(fn func(id string)) BrokerOption {
	return func(b *Broker) { b.onSettled = fn }
}

// WithSettledRetention overrides how long settled invoices stay resolvable.
func WithSettledRetention(d time.Duration) BrokerOption {
	return func(b *Broker) { b.retention = d }
}

// NewBroker creates a broker on top of the given settlement backend.
func NewBroker(backend Backend, opts ...BrokerOption) *Broker {
	b := &Broker{
		backend:   backend,
		log:       slog.Default().With("component", "broker"),
		retention: DefaultSettledRetention,
		byKey:     make(map[Key]*entry),
		byID:      make(map[string]*entry),
		locks:     make(map[Key]*keyLock),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// keyLock serializes invoice creation per key without blocking unrelated
// keys. Refcounting lets fully released locks be dropped from the map.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (b *Broker) lockKey(k Key) *keyLock {
	b.mu.Lock()
	kl := b.locks[k]
	if kl == nil {
		kl = &keyLock{}
		b.locks[k] = kl
	}
	kl.refs++
	b.mu.Unlock()

	kl.mu.Lock()
	return kl
}

func (b *Broker) unlockKey(k Key, kl *keyLock) {
	kl.mu.Unlock()

	b.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(b.locks, k)
	}
	b.mu.Unlock()
}

// RequestInvoice returns the open invoice for (path, amount), minting one
// through the backend only if no unexpired pending invoice exists. The
// per-key critical section covers the backend call, so at most one
// creation per key is ever in flight.
func (b *Broker) RequestInvoice(ctx context.Context, path string, amountSats int64) (*Invoice, error) {
	k := Key{Path: path, AmountSats: amountSats}

	kl := b.lockKey(k)
	defer b.unlockKey(k, kl)

	now := time.Now()

	b.mu.Lock()
	if e := b.byKey[k]; e != nil {
		if e.inv.State == StatePending && now.Before(e.inv.ExpiresAt) {
			inv := *e.inv
			b.mu.Unlock()
			return &inv, nil
		}
		// Pending past its deadline: reclassify and retire the mapping so
		// a fresh invoice gets minted below.
		if e.inv.State == StatePending {
			e.inv.State = StateExpired
		}
		delete(b.byKey, k)
	}
	b.mu.Unlock()

	memo := path
	inv, err := b.backend.CreateInvoice(ctx, amountSats, memo)
	if err != nil {
		backendErrors.Inc()
		return nil, err
	}
	inv.State = StatePending
	invoicesMinted.Inc()

	e := &entry{inv: inv, key: k}
	b.mu.Lock()
	b.byKey[k] = e
	b.byID[inv.ID] = e
	b.mu.Unlock()

	b.log.Info("invoice minted", "id", shortID(inv.ID), "path", path, "amount_sats", amountSats)

	if b.ledger != nil {
		if err := b.ledger.InvoiceCreated(ctx, path, inv); err != nil {
			b.log.Warn("ledger write failed for minted invoice", "id", shortID(inv.ID), "err", err)
		}
	}

	out := *inv
	return &out, nil
}

// CheckSettlement reports the lifecycle state of the invoice with the given
// id. A locally settled invoice answers without a backend round trip
// (settlement is terminal and sticky); anything else defers to the backend.
// Ids the broker has forgotten (e.g. after a restart) are still honored if
// the backend confirms settlement. Backend failures surface as errors,
// never as a state.
func (b *Broker) CheckSettlement(ctx context.Context, id string) (State, error) {
	b.mu.Lock()
	e := b.byID[id]
	if e != nil && e.inv.State == StateSettled {
		b.mu.Unlock()
		return StateSettled, nil
	}
	b.mu.Unlock()

	status, err := b.backend.InvoiceStatus(ctx, id)
	if err != nil {
		backendErrors.Inc()
		return 0, err
	}

	switch status {
	case StatusSettled:
		b.markSettled(ctx, id, e)
		return StateSettled, nil

	case StatusPending:
		if e == nil {
			return StatePending, nil
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if e.inv.State == StatePending && !time.Now().Before(e.inv.ExpiresAt) {
			e.inv.State = StateExpired
			b.retireKey(e)
		}
		return e.inv.State, nil

	default:
		return 0, ErrInvoiceNotFound
	}
}

// InvoiceByID returns a copy of the invoice with the given id, if the
// broker still remembers it.
func (b *Broker) InvoiceByID(id string) (*Invoice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.byID[id]
	if e == nil {
		return nil, false
	}
	inv := *e.inv
	return &inv, true
}

func (b *Broker) markSettled(ctx context.Context, id string, e *entry) {
	now := time.Now()

	b.mu.Lock()
	if e == nil {
		// Settled invoice the broker never saw (restart, or evicted).
		// Remember it so retries answer locally.
		e = &entry{inv: &Invoice{ID: id, State: StateSettled}}
		b.byID[id] = e
	}
	e.inv.State = StateSettled
	e.settledAt = now
	b.retireKey(e)
	b.mu.Unlock()

	invoicesSettled.Inc()

	b.log.Info("invoice settled", "id", shortID(id))

	if b.onSettled != nil {
		b.onSettled(id)
	}

	if b.ledger != nil {
		if err := b.ledger.InvoiceSettled(ctx, id, now); err != nil {
			b.log.Warn("ledger write failed for settled invoice", "id", shortID(id), "err", err)
		}
	}
}

// retireKey drops the reuse mapping for e's key so the next request mints a
// new invoice. Caller holds b.mu.
func (b *Broker) retireKey(e *entry) {
	if cur := b.byKey[e.key]; cur == e {
		delete(b.byKey, e.key)
	}
}

// Sweep evicts stale entries: pending invoices past their deadline become
// expired and are dropped, and settled invoices older than the retention
// window are forgotten. Returns the number of entries removed.
func (b *Broker) Sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for id, e := range b.byID {
		switch e.inv.State {
		case StatePending:
			if now.Before(e.inv.ExpiresAt) {
				continue
			}
			e.inv.State = StateExpired
			fallthrough
		case StateExpired:
			b.retireKey(e)
			delete(b.byID, id)
			removed++
		case StateSettled:
			if now.Sub(e.settledAt) > b.retention {
				delete(b.byID, id)
				removed++
			}
		}
	}
	return removed
}

// StartJanitor sweeps periodically until ctx is cancelled.
func (b *Broker) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := b.Sweep(time.Now()); n > 0 {
					b.log.Debug("swept stale invoices", "count", n)
				}
			}
		}
	}()
}

func shortID(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}
