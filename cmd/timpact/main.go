package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/timpact/internal/config"
	"github.com/rohankatakam/timpact/internal/errors"
	"github.com/rohankatakam/timpact/internal/logging"
	"github.com/rohankatakam/timpact/internal/metrics"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile     string
	verbose     bool
	metricsFile string

	logger     *logging.Logger
	cfg        *config.Config
	runMetrics *metrics.Metrics
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	// metrics are written for failed runs too
	if runMetrics != nil {
		if werr := runMetrics.WriteTextfile(metricsFile); werr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write metrics to %s: %v\n", metricsFile, werr)
		}
	}
	if logger != nil {
		logger.Close()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if details := errors.Details(err); verbose && details != "" {
			fmt.Fprint(os.Stderr, details)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "timpact",
	Short: "timpact - run only the tests your change can affect",
	Long: `timpact records which methods every test suite executes and, for each new
change, selects the suites whose recorded methods were modified. Suites it
cannot rule out always run.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load config, using defaults: %v\n", err)
			cfg = config.Default()
		}

		logCfg := logging.Config{
			Level:      cfg.Log.Level,
			OutputFile: cfg.Log.File,
			JSONFormat: cfg.Log.JSON,
		}
		if verbose {
			logCfg.Level = "debug"
		}
		logger, err = logging.NewLogger(logCfg)
		if err != nil {
			return err
		}

		if metricsFile == "" {
			metricsFile = cfg.Metrics.TextfilePath
		}
		runMetrics = metrics.New()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .timpact/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics to this textfile on exit")

	rootCmd.SetVersionTemplate(`timpact {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(fingerprintCmd)
	rootCmd.AddCommand(configCmd)
}

// fieldLogger is the logger handed to library packages
func fieldLogger() logrus.FieldLogger {
	return logger.Logger
}
