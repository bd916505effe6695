package server

import (
	"sync"
	"time"
)

// InvoiceLimiter caps how many distinct open invoices a single client IP
// can be handed at once, so crawlers cannot amass an unbounded backlog of
// unpaid invoices against the node. Settled invoices and invoices past
// their lifetime free up the slot.
type InvoiceLimiter struct {
	mu         sync.RWMutex
	maxOpen    int
	openByIP   map[string]map[string]time.Time // IP -> invoice id -> issued time
	invoiceIPs map[string]string               // invoice id -> IP (reverse lookup)
}

// NewInvoiceLimiter creates a limiter allowing maxOpen open invoices per IP.
func NewInvoiceLimiter(maxOpen int) *InvoiceLimiter {
	return &InvoiceLimiter{
		maxOpen:    maxOpen,
		openByIP:   make(map[string]map[string]time.Time),
		invoiceIPs: make(map[string]string),
	}
}

// Issue records that the invoice id was handed to the IP. It returns false
// when the id is new for this IP and the cap is already reached; re-presenting
// an already tracked invoice always succeeds.
func (l *InvoiceLimiter) Issue(ip, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	open := l.openByIP[ip]
	if _, tracked := open[id]; tracked {
		return true
	}
	if len(open) >= l.maxOpen {
		return false
	}
	if open == nil {
		open = make(map[string]time.Time)
		l.openByIP[ip] = open
	}
	open[id] = time.Now()
	l.invoiceIPs[id] = ip
	return true
}

// OpenCount returns how many open invoices are tracked for an IP.
func (l *InvoiceLimiter) OpenCount(ip string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.openByIP[ip])
}

// OnSettled frees the slot held by an invoice. Wired as the broker's
// settlement hook.
func (l *InvoiceLimiter) OnSettled(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ip, ok := l.invoiceIPs[id]
	if !ok {
		return
	}
	delete(l.invoiceIPs, id)
	if open := l.openByIP[ip]; open != nil {
		delete(open, id)
		if len(open) == 0 {
			delete(l.openByIP, ip)
		}
	}
}

// CleanupExpired drops entries older than maxAge, matching the invoice
// lifetime. Returns the number of entries removed.
func (l *InvoiceLimiter) CleanupExpired(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for ip, open := range l.openByIP {
		for id, issuedAt := range open {
			if issuedAt.Before(cutoff) {
				delete(open, id)
				delete(l.invoiceIPs, id)
				removed++
			}
		}
		if len(open) == 0 {
			delete(l.openByIP, ip)
		}
	}
	return removed
}
