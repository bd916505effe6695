package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"satgate/internal/logging"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "satgate",
	Short:   "Directory server with Lightning-paid downloads",
	Long: `Satgate serves a directory tree over HTTP. Directories can declare
paid access in a .satgate.yaml file; downloads from them are released only
after the Lightning invoice satgate hands out has settled.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		readConfig(cmd)
		logging.Setup(viper.GetString("env"), viper.GetString("log.level"))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./satgate.yaml)")
	rootCmd.PersistentFlags().String("ledger", "", "invoice ledger database path (env: SATGATE_LEDGER_PATH)")

	_ = viper.BindPFlag("ledger.path", rootCmd.PersistentFlags().Lookup("ledger"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
