package payments

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invoicesMinted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "satgate_invoices_minted_total",
		Help: "Invoices minted through the settlement backend",
	})

	invoicesSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "satgate_invoices_settled_total",
		Help: "Invoices observed settled",
	})

	backendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "satgate_backend_errors_total",
		Help: "Failed settlement backend calls",
	})
)
