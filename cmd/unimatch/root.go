package main

import (
	"fmt"
	"os"

	"unimatch/cmd/internal/app"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

// runtime is the state shared by all subcommands, filled in by the root pre-run.
type runtime struct {
	cfg app.Config
	log app.Logger
	reg *prometheus.Registry

	configPath  string
	logLevel    string
	logFormat   string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	rt := &runtime{}

	root := &cobra.Command{
		Use:   "unimatch",
		Short: "unimatch chat client and local dev backend",
		Long: `unimatch opens a conversation from the terminal, keeps it in sync over the
live push channel (or by polling when push is unavailable), and can run an
in-memory dev backend that speaks the same contract.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&rt.configPath, "config", "c", "", "YAML config file (overrides UNIMATCH_CONFIG)")
	pf.StringVar(&rt.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&rt.logFormat, "log-format", "", "log format: auto, json, pretty")
	pf.StringVar(&rt.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(
		newChatCmd(rt),
		newHistoryCmd(rt),
		newBrowseCmd(rt),
		newDevServerCmd(rt),
	)
	return root
}

func (rt *runtime) init(cmd *cobra.Command) error {
	if rt.configPath != "" {
		if err := os.Setenv("UNIMATCH_CONFIG", rt.configPath); err != nil {
			return err
		}
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	if rt.logLevel != "" {
		cfg.LogLevel = rt.logLevel
	}
	if rt.logFormat != "" {
		cfg.LogFormat = rt.logFormat
	}
	if rt.metricsAddr != "" {
		cfg.MetricsAddr = rt.metricsAddr
	}
	rt.cfg = cfg
	rt.log = app.NewLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

	rt.reg = prometheus.NewRegistry()
	rt.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if addr := cfg.MetricsAddr; addr != "" {
		go func() {
			if err := app.ServeMetrics(cmd.Context(), addr, rt.reg, rt.log); err != nil {
				rt.log.Error("metrics.fail", "err", err)
			}
		}()
	}
	return nil
}
