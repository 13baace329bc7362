package cmd

import (
	"fmt"
	"os"

	cfgpkg "github.com/KaramelBytes/dedupe-cli/internal/config"
	"github.com/KaramelBytes/dedupe-cli/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	cfgFile string
	debug   bool

	// Loaded configuration, or the reason it could not be loaded
	cfg    *cfgpkg.Global
	cfgErr error
)

var rootCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Dedupe CLI: find near-duplicate rows in CSV and Excel files",
	Long: `Dedupe finds fuzzy near-duplicate records in tabular files. Rows are blocked by
the first characters of their text, compared with a token-set similarity score
and labelled with a duplicate group and the rows they duplicate.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.dedupe/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
}

// loadConfig records the load error instead of exiting; commands that need
// settings surface it through effectiveConfig.
func loadConfig() {
	cfg, cfgErr = cfgpkg.Load(cfgFile)
}

// effectiveConfig returns a copy of the loaded config. An invalid config is
// an error, never a silent fallback to defaults.
func effectiveConfig() (*cfgpkg.Global, error) {
	if cfgErr != nil {
		return nil, fmt.Errorf("load config: %w", cfgErr)
	}
	if cfg == nil {
		return cfgpkg.Default(), nil
	}
	c := *cfg
	return &c, nil
}

func newLogger() *zap.Logger {
	l, err := logging.New(debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
		return zap.NewNop()
	}
	return l
}
