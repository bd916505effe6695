package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"satgate/internal/ledger"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print invoice ledger statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	path := viper.GetString("ledger.path")
	if path == "" {
		return fmt.Errorf("no ledger configured (set ledger.path or --ledger)")
	}

	store, err := ledger.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	stats, err := store.GetStats(cmd.Context())
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	fmt.Println("Invoice ledger")
	fmt.Printf("  total invoices:    %d\n", stats.TotalInvoices)
	fmt.Printf("  settled:           %d\n", stats.SettledInvoices)
	fmt.Printf("  open or expired:   %d\n", stats.OpenInvoices)
	fmt.Printf("  total invoiced:    %s sat\n", humanize.Comma(stats.TotalSats))
	fmt.Printf("  total settled:     %s sat\n", humanize.Comma(stats.SettledSats))
	if !stats.FirstInvoice.IsZero() {
		fmt.Printf("  first invoice:     %s\n", stats.FirstInvoice.Format("2006-01-02 15:04"))
	}
	if !stats.LastSettled.IsZero() {
		fmt.Printf("  last settlement:   %s\n", stats.LastSettled.Format("2006-01-02 15:04"))
	}
	return nil
}
