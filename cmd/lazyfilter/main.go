// Package main is the entrypoint for the lazyfilter CLI.
package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rebeliceyang/lazyfilter/internal/config"
	"github.com/rebeliceyang/lazyfilter/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed
type app struct {
	configFile string
	logLevel   string

	cfg      *config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "lazyfilter",
		Short: "Compose product-catalog filters into MongoDB-style queries",
		Long: `lazyfilter turns groups of attribute conditions and a quick-search term
into a single nested query document, manages saved filters, and runs
queries against a MongoDB or PostgreSQL product catalog.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.logMetrics()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default: search user config dir, ., ./config)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level")

	rootCmd.AddCommand(
		newVersionCmd(),
		newOperatorsCmd(a),
		newInferCmd(a),
		newComposeCmd(a),
		newSearchCmd(a),
		newSavedCmd(a),
		newFetchCmd(a),
		newAttributesCmd(a),
	)

	return rootCmd
}

func (a *app) setup() error {
	cfg, err := config.LoadFrom(a.configFile)
	if err != nil {
		if a.configFile != "" {
			return err
		}
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v (using defaults)\n", err)
		cfg = config.GetDefaults()
	}
	a.cfg = cfg

	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.logger = newLogger(cfg.Log)

	a.registry = prometheus.NewRegistry()
	a.metrics, err = metrics.NewPrometheusMetrics(a.registry)
	if err != nil {
		return err
	}
	return nil
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.Format != "json" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger.Level(level)
}

// logMetrics reports the counters collected during the command at debug level
func (a *app) logMetrics() {
	if a.registry == nil {
		return
	}
	families, err := a.registry.Gather()
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to gather metrics")
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			event := a.logger.Debug().Str("metric", mf.GetName())
			for _, label := range m.GetLabel() {
				event = event.Str(label.GetName(), label.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				event.Float64("value", m.GetCounter().GetValue()).Msg("metric")
			case m.GetGauge() != nil:
				event.Float64("value", m.GetGauge().GetValue()).Msg("metric")
			default:
				event.Msg("metric")
			}
		}
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lazyfilter %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
