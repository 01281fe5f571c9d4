package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stockwatch/internal/config"
	"stockwatch/internal/logging"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2024-06-10"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	debug  bool
}

// setLogger rebuilds the logger from config. consoleLevel, when set, raises
// the stderr threshold; --debug overrides both.
func (app *App) setLogger(consoleLevel string) {
	cfg := app.Config.LogConfig()
	cfg.ConsoleLevel = consoleLevel
	if app.debug {
		cfg.Level, cfg.ConsoleLevel = "debug", ""
	}
	app.Logger = logging.NewLoggerWithConfig(cfg)
}

// NewRootCmd creates the root command for the CLI. Configuration is loaded
// before any subcommand runs, from --config or the default directory.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "stockwatch",
		Short: "Live, ranked ticker dashboard",
		Long: `stockwatch keeps a ranked table of tickers in sync with a market-data backend.

It reloads the table when filters change, merges price updates on a timer,
keeps the table sorted, and delivers each backend price alert once.

Run 'stockwatch watch' for the terminal table or 'stockwatch serve' for browser clients.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			app.Config = cfg
			app.debug, _ = cmd.Flags().GetBool("debug")
			app.setLogger("")
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/stockwatch)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newAlertsCmd(app))
	rootCmd.AddCommand(newUpdateCmd(app))
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("stockwatch v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.Config.Dir()})
			} else {
				output.Println(app.Config.Dir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "views",
		Short: "List view presets, creating views.yaml if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path, err := config.WriteViewsTemplate(app.Config.Dir())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(app.Config.Views)
			}
			output.Dim("%s", path)
			if len(app.Config.Views) == 0 {
				output.Println("No views defined yet. Edit the file above and rerun.")
				return nil
			}
			table := NewTable(output, "Name", "Ticker", "Sector", "Leverage", "Sort")
			for _, v := range app.Config.Views {
				sort := v.Sort
				if sort != "" && v.Order != "" {
					sort += " " + v.Order
				}
				table.AddRow(v.Name, v.Ticker, v.Sector, v.Leverage, sort)
			}
			table.Render()
			return nil
		},
	})

	return cmd
}

// redacted returns a copy of cfg with secrets masked.
func redacted(cfg *config.Config) config.Config {
	out := *cfg
	out.Backend.Token = logging.MaskSecret(out.Backend.Token)
	out.Notifications.Telegram.BotToken = logging.MaskSecret(out.Notifications.Telegram.BotToken)
	return out
}

func showConfig(output *Output, cfg *config.Config) {
	c := redacted(cfg)

	output.Bold("Backend")
	output.Printf("  Base URL:        %s\n", c.Backend.BaseURL)
	output.Printf("  Token:           %s\n", orNone(c.Backend.Token))
	output.Printf("  Timeout:         %s\n", c.Backend.Timeout)
	output.Printf("  Retry Attempts:  %d\n", c.Backend.RetryAttempts)
	output.Println()

	output.Bold("Dashboard")
	output.Printf("  Debounce:        %s\n", c.Dashboard.Debounce)
	output.Printf("  Default Sort:    %s %s\n", c.Dashboard.SortColumn, c.Dashboard.SortDirection)
	output.Printf("  Refresh:         %s (auto: %v)\n", c.Dashboard.RefreshInterval, c.Dashboard.AutoRefresh)
	output.Printf("  Timezone:        %s (extended hours from %02d:00)\n", c.Dashboard.Timezone, c.Dashboard.ExtendedHoursFrom)
	output.Printf("  Alert Interval:  %s\n", c.Dashboard.AlertInterval)
	output.Printf("  Merge Warning:   after %d failures\n", c.Dashboard.MergeWarnAfter)
	output.Println()

	output.Bold("Server")
	output.Printf("  Listen:          %s\n", c.Server.Listen)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:         %v\n", c.Notifications.Enabled)
	output.Printf("  Console:         %v\n", c.Notifications.Console)
	output.Printf("  Webhook:         %v\n", c.Notifications.Webhook.Enabled)
	output.Printf("  Telegram:        %v\n", c.Notifications.Telegram.Enabled)
	output.Println()

	output.Bold("Alert Journal")
	output.Printf("  Enabled:         %v\n", c.Store.Enabled)
	output.Printf("  Path:            %s\n", orNone(c.Store.Path))
	output.Printf("  Views:           %d\n", len(c.Views))
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
