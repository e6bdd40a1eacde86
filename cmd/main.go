package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kass/go-mt-sites/internal/logger"
	"github.com/kass/go-mt-sites/pkg/config"
)

var (
	configFile string
	catalogDir string
	indexFile  string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mtsites",
	Short: "Magnetotelluric survey site catalog",
	Long: `Validate, index and query magnetotelluric survey sites published as
GeoJSON features, and inspect the transfer function and time series files
they link to.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "mtsites.yaml", "Configuration file")
	rootCmd.PersistentFlags().StringVarP(&catalogDir, "dir", "d", "", "Catalog directory (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&indexFile, "file", "f", "", "Index file path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return err
	}
	if catalogDir != "" {
		cfg.Catalog.Dir = catalogDir
	}
	if indexFile != "" {
		cfg.Index.File = indexFile
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	logger.Setup(cfg.Log)

	log.Debug().Str("config", configFile).Str("dir", cfg.Catalog.Dir).Msg("Configuration loaded")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
