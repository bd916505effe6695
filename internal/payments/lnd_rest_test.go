package payments

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMacaroon(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invoice.macaroon")
	require.NoError(t, os.WriteFile(path, []byte{0x02, 0x01, 0x03}, 0o600))
	return path
}

func newFakeLND(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/getinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Grpc-Metadata-macaroon") == "" {
			http.Error(w, "expected macaroon", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"alias":"test"}`))
	})
	if handler != nil {
		mux.Handle("/", handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLNDClientRequiresConfig(t *testing.T) {
	_, err := NewLNDClient(LNDConfig{})
	require.Error(t, err)

	_, err = NewLNDClient(LNDConfig{URL: "https://localhost:8080"})
	require.Error(t, err)
}

func TestLNDClientPingFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "wallet locked", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewLNDClient(LNDConfig{URL: srv.URL, MacaroonPath: writeMacaroon(t)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to lnd")
}

func TestLNDClientCreateInvoice(t *testing.T) {
	rHash := []byte("0123456789abcdef0123456789abcdef")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/invoices", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2100", req["value"])
		assert.Equal(t, "600", req["expiry"])
		assert.Equal(t, "docs/report.pdf", req["memo"])

		_ = json.NewEncoder(w).Encode(map[string]string{
			"r_hash":          base64.StdEncoding.EncodeToString(rHash),
			"payment_request": "lnbc21u1fake",
		})
	})
	srv := newFakeLND(t, handler)

	client, err := NewLNDClient(LNDConfig{
		URL:           srv.URL,
		MacaroonPath:  writeMacaroon(t),
		InvoiceExpiry: 10 * time.Minute,
	})
	require.NoError(t, err)
	defer client.Close()

	inv, err := client.CreateInvoice(context.Background(), 2100, "docs/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(rHash), inv.ID)
	assert.Equal(t, "lnbc21u1fake", inv.PaymentRequest)
	assert.Equal(t, int64(2100), inv.AmountSats)
	assert.Equal(t, StatePending, inv.State)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), inv.ExpiresAt, 5*time.Second)
}

func TestLNDClientCreateInvoiceErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"server error is unavailable", http.StatusBadGateway, ErrBackendUnavailable},
		{"client error is rejected", http.StatusBadRequest, ErrBackendRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeLND(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "no", tt.status)
			}))
			client, err := NewLNDClient(LNDConfig{URL: srv.URL, MacaroonPath: writeMacaroon(t)})
			require.NoError(t, err)

			_, err = client.CreateInvoice(context.Background(), 100, "x")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLNDClientInvoiceStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		want Status
	}{
		{"settled state", `{"state":"SETTLED"}`, 200, StatusSettled},
		{"legacy settled flag", `{"state":"OPEN","settled":true}`, 200, StatusSettled},
		{"open", `{"state":"OPEN"}`, 200, StatusPending},
		{"accepted", `{"state":"ACCEPTED"}`, 200, StatusPending},
		{"canceled", `{"state":"CANCELED"}`, 200, StatusUnknown},
		{"not found", `{}`, 404, StatusUnknown},
		{"error message lookup", `{"message":"unable to locate invoice"}`, 500, StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeLND(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/invoice/deadbeef", r.URL.Path)
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			client, err := NewLNDClient(LNDConfig{URL: srv.URL, MacaroonPath: writeMacaroon(t)})
			require.NoError(t, err)

			status, err := client.InvoiceStatus(context.Background(), "deadbeef")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestLNDClientInvoiceStatusServerError(t *testing.T) {
	srv := newFakeLND(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	client, err := NewLNDClient(LNDConfig{URL: srv.URL, MacaroonPath: writeMacaroon(t)})
	require.NoError(t, err)

	_, err = client.InvoiceStatus(context.Background(), "deadbeef")
	require.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestLNDClientUnreachable(t *testing.T) {
	srv := newFakeLND(t, nil)
	client, err := NewLNDClient(LNDConfig{URL: srv.URL, MacaroonPath: writeMacaroon(t)})
	require.NoError(t, err)
	srv.Close()

	_, err = client.CreateInvoice(context.Background(), 100, "x")
	require.ErrorIs(t, err, ErrBackendUnavailable)

	_, err = client.InvoiceStatus(context.Background(), "deadbeef")
	require.ErrorIs(t, err, ErrBackendUnavailable)
}
