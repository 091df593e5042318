// mdeventdb builds and inspects box-tree event workspaces.
//
//	mdeventdb create  ws/ --config workspace.yaml
//	mdeventdb ingest  ws/ --events 1000000 --peaks 4
//	mdeventdb ingest  ws/ --input events.csv
//	mdeventdb inspect ws/ --dump
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"MDEventDB/config"
	"MDEventDB/metrics"
	"MDEventDB/workspace"
)

const (
	Version = "0.1.0"
	appName = "mdeventdb"
)

type globalFlags struct {
	configPath  string
	logLevel    string
	metricsAddr string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Hierarchical storage for N-dimensional events",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error), overrides the config")
	cmd.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	cmd.AddCommand(createCmd(&flags), ingestCmd(&flags), inspectCmd(&flags))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return cmd
}

// setup loads the configuration and builds the logger.
func (f *globalFlags) setup() (*config.Config, *slog.Logger, error) {
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		loaded, err := config.LoadFromFile(f.configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// openOrCreate opens the workspace in dir, creating it when there is none.
func openOrCreate(dir string, cfg *config.Config, logger *slog.Logger) (*workspace.Workspace, error) {
	w, err := workspace.Open(dir, cfg, logger)
	if errors.Is(err, os.ErrNotExist) {
		return workspace.Create(dir, cfg, logger)
	}
	return w, err
}

// serveMetrics exposes the workspace collectors until the process exits.
func (f *globalFlags) serveMetrics(w *workspace.Workspace, logger *slog.Logger) error {
	if f.metricsAddr == "" {
		return nil
	}

	collectors := []prometheus.Collector{metrics.NewControllerCollector(w.ID(), w.Controller())}
	if store := w.Store(); store != nil {
		collectors = append(collectors, metrics.NewStoreCollector(w.ID(), store))
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              f.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", f.metricsAddr))
	return nil
}

func createCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "create DIR",
		Short: "Create an empty workspace from the configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup()
			if err != nil {
				return err
			}
			w, err := workspace.Create(args[0], cfg, logger)
			if err != nil {
				return err
			}
			if err := w.Save(); err != nil {
				w.Close()
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created workspace %s in %s\n", w.ID(), args[0])
			return w.Close()
		},
	}
}
