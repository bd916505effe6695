package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// MockBackend implements Backend in memory, for development and tests.
// Invoices never settle on their own unless AutoSettleAfter is set; tests
// drive settlement with Settle.
type MockBackend struct {
	mu        sync.Mutex
	statuses  map[string]Status
	expiry    time.Duration
	createErr error
	statusErr error

	// AutoSettleAfter, when non-zero, settles every minted invoice after
	// the given delay. Used by the dev server so the paywall can be
	// exercised without a Lightning node.
	AutoSettleAfter time.Duration
}

// NewMockBackend creates an empty mock backend with one-hour invoices.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		statuses: make(map[string]Status),
		expiry:   time.Hour,
	}
}

// SetInvoiceExpiry overrides the lifetime of minted invoices.
func (m *MockBackend) SetInvoiceExpiry(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiry = d
}

// FailCreate makes subsequent CreateInvoice calls return err (nil restores
// normal behavior).
func (m *MockBackend) FailCreate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

// FailStatus makes subsequent InvoiceStatus calls return err.
func (m *MockBackend) FailStatus(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusErr = err
}

func (m *MockBackend) CreateInvoice(ctx context.Context, amountSats int64, memo string) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return nil, m.createErr
	}

	hash := make([]byte, 32)
	if _, err := rand.Read(hash); err != nil {
		return nil, err
	}
	id := hex.EncodeToString(hash)
	m.statuses[id] = StatusPending

	if m.AutoSettleAfter > 0 {
		go func() {
			time.Sleep(m.AutoSettleAfter)
			m.Settle(id)
		}()
	}

	now := time.Now()
	return &Invoice{
		ID:             id,
		AmountSats:     amountSats,
		PaymentRequest: "lnbcrt" + id[:24], // fake BOLT11
		State:          StatePending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.expiry),
	}, nil
}

func (m *MockBackend) InvoiceStatus(ctx context.Context, id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.statusErr != nil {
		return 0, m.statusErr
	}
	status, ok := m.statuses[id]
	if !ok {
		return StatusUnknown, nil
	}
	return status, nil
}

// Settle marks an invoice as paid. A backend may learn about settlements
// the broker never requested, so unknown ids are recorded too.
func (m *MockBackend) Settle(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = StatusSettled
}

func (m *MockBackend) Close() error {
	return nil
}
