package main

import (
	"unimatch/cmd/internal/app"

	"github.com/spf13/cobra"
)

func newDevServerCmd(rt *runtime) *cobra.Command {
	var (
		addr    string
		noPush  bool
		origins []string
	)

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run the in-memory dev backend",
		Long: `Run an in-memory chat backend with the REST API under /v1, the push
channel on /ws and metrics on /metrics. Nothing is persisted.

The built-in directory has users u-alice (token dev-alice) and u-bob
(token dev-bob) sharing conversation dev-room-1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := rt.cfg.Server
			if cmd.Flags().Changed("addr") {
				cfg.HTTPAddr = addr
			}
			if noPush {
				cfg.DisablePush = true
			}
			if len(origins) > 0 {
				cfg.AllowedOrigins = origins
			}
			return app.RunDevServer(cmd.Context(), cfg, rt.log)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (UNIMATCH_DEVSERVER_ADDR)")
	fs.BoolVar(&noPush, "no-push", false, "disable the push channel so clients poll")
	fs.StringSliceVar(&origins, "allowed-origin", nil, "browser origin allowed on /ws (repeatable)")
	return cmd
}
