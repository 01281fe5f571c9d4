package cli

import (
	"github.com/spf13/cobra"

	"stockwatch/internal/dashboard"
	"stockwatch/internal/server"
)

func newServeCmd(app *App) *cobra.Command {
	var listen string
	var autoRefresh bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard over HTTP and websocket",
		Long: `Run the dashboard engine headless and expose it to browser clients.

REST routes live under /api (snapshot, columns, filters, sort, refresh, update,
alerts/history). /ws pushes every snapshot and alert and accepts control messages
of the form {"type":"control","action":"sort","value":"price"}.`,
		Example: `  stockwatch serve
  stockwatch serve --listen 0.0.0.0:8080 --auto-refresh`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := dashboard.OptionsFromConfig(app.Config.Dashboard)
			if cmd.Flags().Changed("auto-refresh") {
				opts.AutoRefresh = autoRefresh
			}

			rt, err := app.newRuntime(runtimeOptions{dashboard: opts})
			if err != nil {
				return err
			}
			defer rt.close()

			srvCfg := app.Config.Server
			if listen != "" {
				srvCfg.Listen = listen
			}
			srv := server.New(rt.dash, rt.hub, rt.journal, srvCfg, app.Logger).WithHealth(rt.health)
			return rt.run(cmd.Context(), srv.Run)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	cmd.Flags().BoolVar(&autoRefresh, "auto-refresh", false, "start auto refresh after the first load")
	return cmd
}
