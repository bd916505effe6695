// Package server is the HTTP surface: it maps request paths to gate
// decisions and streams, lists, or paywalls accordingly.
package server

import (
	"errors"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"satgate/internal/access"
	"satgate/internal/content"
	"satgate/internal/gate"
	"satgate/internal/payments"
)

// ProofQueryParam and ProofHeader are where clients present a previously
// issued invoice id.
const (
	ProofQueryParam = "invoice"
	ProofHeader     = "X-Invoice"
)

// Handler serves the gated file tree.
type Handler struct {
	gate     *gate.Gate
	resolver *access.Resolver
	storage  content.Storage
	limiter  *InvoiceLimiter // may be nil
	log      *slog.Logger
	mux      *http.ServeMux
}

// NewHandler creates the file-serving handler. limiter may be nil to
// disable the per-client open invoice cap.
func NewHandler(g *gate.Gate, resolver *access.Resolver, storage content.Storage, limiter *InvoiceLimiter) *Handler {
	h := &Handler{
		gate:     g,
		resolver: resolver,
		storage:  storage,
		limiter:  limiter,
		log:      slog.Default().With("component", "server"),
		mux:      http.NewServeMux(),
	}
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	// GET patterns implicitly match HEAD as well.
	h.mux.HandleFunc("GET /{path...}", h.handleRequest)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// cleanPath validates and normalizes the request path. Hidden entries
// (dot-prefixed segments, including access declarations and index
// markdown) are treated as nonexistent.
func cleanPath(raw string) (string, bool) {
	if raw == "" {
		return ".", true
	}
	cleaned := path.Clean("/" + raw)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		return ".", true
	}
	for _, seg := range strings.Split(cleaned, "/") {
		if strings.HasPrefix(seg, ".") {
			return "", false
		}
	}
	return cleaned, true
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := cleanPath(r.PathValue("path"))
	if !ok {
		requestsTotal.WithLabelValues("not_found").Inc()
		http.NotFound(w, r)
		return
	}

	info, err := h.storage.Stat(r.Context(), p)
	if errors.Is(err, fs.ErrNotExist) {
		requestsTotal.WithLabelValues("not_found").Inc()
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.log.Error("stat failed", "path", p, "err", err)
		requestsTotal.WithLabelValues("internal_error").Inc()
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// Canonicalize trailing slashes: directories get one, files do not.
	if info.Dir {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
			return
		}
		h.serveListing(w, r, p)
		return
	}
	if stripped, ok := strings.CutSuffix(r.URL.Path, "/"); ok {
		http.Redirect(w, r, stripped, http.StatusMovedPermanently)
		return
	}

	h.serveFile(w, r, p, info)
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, p string, info content.FileInfo) {
	proof := r.URL.Query().Get(ProofQueryParam)
	if proof == "" {
		proof = r.Header.Get(ProofHeader)
	}

	decision, err := h.gate.Decide(r.Context(), p, proof)
	if err != nil {
		h.writeGateError(w, p, err)
		return
	}

	switch decision.Outcome {
	case gate.OutcomeServe:
		h.stream(w, r, p, info)

	case gate.OutcomeRequirePayment:
		inv := decision.Invoice
		if h.limiter != nil && !h.limiter.Issue(extractIP(r), inv.ID) {
			requestsTotal.WithLabelValues("limited").Inc()
			http.Error(w, "too many open invoices, settle or wait for expiry", http.StatusTooManyRequests)
			return
		}
		requestsTotal.WithLabelValues("payment_required").Inc()
		h.writeChallenge(w, r, p, inv)
	}
}

func (h *Handler) writeGateError(w http.ResponseWriter, p string, err error) {
	var cfgErr *access.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		// Operator problem; keep filesystem details out of the response.
		h.log.Error("broken access config", "path", p, "err", err)
		requestsTotal.WithLabelValues("config_error").Inc()
		http.Error(w, "internal server error", http.StatusInternalServerError)

	case errors.Is(err, payments.ErrBackendUnavailable),
		errors.Is(err, payments.ErrBackendRejected):
		h.log.Warn("payment backend failure", "path", p, "err", err)
		requestsTotal.WithLabelValues("payment_unavailable").Inc()
		http.Error(w, "payment system temporarily unavailable, try again later", http.StatusServiceUnavailable)

	case errors.Is(err, fs.ErrNotExist):
		requestsTotal.WithLabelValues("not_found").Inc()
		http.Error(w, "not found", http.StatusNotFound)

	default:
		h.log.Error("gate decision failed", "path", p, "err", err)
		requestsTotal.WithLabelValues("internal_error").Inc()
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, p string, info content.FileInfo) {
	f, err := h.storage.Open(r.Context(), p)
	if errors.Is(err, fs.ErrNotExist) {
		requestsTotal.WithLabelValues("not_found").Inc()
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.log.Error("open failed", "path", p, "err", err)
		requestsTotal.WithLabelValues("internal_error").Inc()
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	contentType := mime.TypeByExtension(path.Ext(p))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)

	requestsTotal.WithLabelValues("served").Inc()
	// ServeContent handles Range requests, Content-Length, and HEAD.
	http.ServeContent(w, r, "", info.ModTime, f)
}

// challengeResponse is the JSON form of a 402 challenge.
type challengeResponse struct {
	InvoiceID      string    `json:"invoice_id"`
	PaymentRequest string    `json:"payment_request"`
	AmountSats     int64     `json:"amount_sats"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (h *Handler) writeChallenge(w http.ResponseWriter, r *http.Request, p string, inv *payments.Invoice) {
	accessURL := url.URL{
		Path:     r.URL.Path,
		RawQuery: url.Values{ProofQueryParam: {inv.ID}}.Encode(),
	}

	if wantsHTML(r) {
		writeInvoicePage(w, invoicePage{
			Filename:       path.Base(p),
			AmountSats:     inv.AmountSats,
			PaymentRequest: inv.PaymentRequest,
			AccessURL:      accessURL.String(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	writeJSON(w, challengeResponse{
		InvoiceID:      inv.ID,
		PaymentRequest: inv.PaymentRequest,
		AmountSats:     inv.AmountSats,
		ExpiresAt:      inv.ExpiresAt,
	})
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
