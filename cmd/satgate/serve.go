package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"satgate/internal/access"
	"satgate/internal/content"
	"satgate/internal/gate"
	"satgate/internal/ledger"
	"satgate/internal/payments"
	"satgate/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve [directory]",
	Short: "Serve a directory tree over HTTP",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP listen address")
	serveCmd.Flags().Bool("mock-payments", false, "use an in-process fake payment backend (development only)")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("payments.mock", serveCmd.Flags().Lookup("mock-payments"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		viper.Set("content.root", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	storage, err := buildStorage(cfg)
	if err != nil {
		return err
	}

	// Invoice ledger is optional; without it satgate keeps no durable
	// record of minted invoices.
	var ledgerStore *ledger.SQLiteStore
	if cfg.Ledger.Path != "" {
		ledgerStore, err = ledger.NewSQLiteStore(cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer ledgerStore.Close()
		slog.Info("invoice ledger enabled", "path", cfg.Ledger.Path)
	}

	backend, err := buildBackend(cfg)
	if err != nil {
		return err
	}

	limiter := server.NewInvoiceLimiter(cfg.Payments.MaxOpenPerClient)
	if cfg.Payments.MaxOpenPerClient == 0 {
		limiter = nil
	}

	var broker *payments.Broker
	if backend != nil {
		defer backend.Close()

		opts := []payments.BrokerOption{
			payments.WithSettledRetention(cfg.Payments.SettledRetention),
		}
		if ledgerStore != nil {
			opts = append(opts, payments.WithLedger(ledgerStore))
		}
		if limiter != nil {
			opts = append(opts, payments.WithSettledHook(limiter.OnSettled))
		}
		broker = payments.NewBroker(backend, opts...)
		broker.StartJanitor(ctx, 10*time.Minute)
	} else {
		slog.Warn("no payment backend configured; paid directories will refuse access")
	}

	resolver := access.NewResolver(storage)

	// A typed nil broker must not reach the gate as a non-nil interface.
	var brokerIface gate.Broker
	if broker != nil {
		brokerIface = broker
	}
	g := gate.New(resolver, brokerIface)

	handler := server.NewHandler(g, resolver, storage, limiter)

	// Periodically drop invoice-limiter entries for invoices that have
	// expired anyway.
	if limiter != nil {
		go func() {
			ticker := time.NewTicker(cfg.Payments.InvoiceExpiry)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := limiter.CleanupExpired(cfg.Payments.InvoiceExpiry); n > 0 {
						slog.Debug("cleaned up expired invoice slots", "count", n)
					}
				}
			}
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/", handler)

	var finalHandler http.Handler = mux
	var rateLimiter *server.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = server.NewRateLimiter(server.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.Burst,
		})
		finalHandler = rateLimiter.Middleware(finalHandler)
	}
	finalHandler = server.Logger(finalHandler)
	finalHandler = server.RequestID(finalHandler)

	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     finalHandler,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancel()
		if rateLimiter != nil {
			rateLimiter.Stop()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	slog.Info("starting server", "addr", cfg.Server.Addr, "root", cfg.Content.Root, "backend", cfg.Content.Backend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func buildStorage(cfg *Config) (content.Storage, error) {
	switch cfg.Content.Backend {
	case "s3":
		storage, err := content.NewS3Storage(content.S3Config{
			Endpoint:  cfg.Content.S3.Endpoint,
			AccessKey: cfg.Content.S3.AccessKey,
			SecretKey: cfg.Content.S3.SecretKey,
			Bucket:    cfg.Content.S3.Bucket,
			Prefix:    cfg.Content.S3.Prefix,
			UseSSL:    cfg.Content.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize s3 storage: %w", err)
		}
		slog.Info("serving from s3 bucket", "bucket", cfg.Content.S3.Bucket, "prefix", cfg.Content.S3.Prefix)
		return storage, nil

	default:
		storage, err := content.NewFSStorage(cfg.Content.Root)
		if err != nil {
			return nil, fmt.Errorf("open root directory: %w", err)
		}
		slog.Info("serving local directory", "root", cfg.Content.Root)
		return storage, nil
	}
}

// buildBackend picks the settlement backend: LND when configured, the mock
// when explicitly requested, otherwise none (free files only).
func buildBackend(cfg *Config) (payments.Backend, error) {
	if cfg.LND.URL != "" {
		client, err := payments.NewLNDClient(payments.LNDConfig{
			URL:           cfg.LND.URL,
			MacaroonPath:  cfg.LND.MacaroonPath,
			TLSCertPath:   cfg.LND.TLSCertPath,
			InvoiceExpiry: cfg.Payments.InvoiceExpiry,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to lnd: %w", err)
		}
		return client, nil
	}
	if cfg.Payments.Mock {
		slog.Warn("using mock payment backend; invoices auto-settle and no money moves")
		mock := payments.NewMockBackend()
		mock.SetInvoiceExpiry(cfg.Payments.InvoiceExpiry)
		mock.AutoSettleAfter = 20 * time.Second
		return mock, nil
	}
	return nil, nil
}
