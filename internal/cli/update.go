package cli

import (
	"github.com/spf13/cobra"

	"stockwatch/internal/backend"
)

func newUpdateCmd(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Ask the backend to refresh its ticker data",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := backend.NewClient(app.Config.Backend, app.Logger)
			output := NewOutput(cmd)
			if err := client.UpdateTickerData(cmd.Context(), force); err != nil {
				output.Error("Update failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"updated": true, "force": force})
			}
			if force {
				output.Success("✓ Forced ticker data update accepted")
			} else {
				output.Success("✓ Ticker data update accepted")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "force a full update even if data is fresh")
	return cmd
}
