package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"stockwatch/internal/backend"
	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/internal/notify"
	"stockwatch/internal/store"
	"stockwatch/pkg/utils"
)

func newAlertsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Price alerts",
		Long:  "Watch backend price alerts or review the delivery journal.",
	}
	cmd.AddCommand(newAlertsWatchCmd(app))
	cmd.AddCommand(newAlertsCheckCmd(app))
	cmd.AddCommand(newAlertsHistoryCmd(app))
	return cmd
}

// openJournal opens the configured journal or returns ErrJournalDisabled.
func (app *App) openJournal() (*store.SQLiteStore, error) {
	if !app.Config.Store.Enabled {
		return nil, apperrors.ErrJournalDisabled
	}
	path := app.Config.Store.Path
	if path == "" {
		path = filepath.Join(app.Config.Dir(), "alerts.db")
	}
	return store.NewSQLiteStore(path)
}

func (app *App) newAlertWatcher(cmd *cobra.Command, journal notify.Journal) *notify.AlertWatcher {
	notifier := notify.NewMultiNotifier(app.Config.Notifications)
	notifier.AddChannel(notify.NewConsoleNotifier(cmd.OutOrStdout(), app.Config.Notifications.Bell))
	client := backend.NewClient(app.Config.Backend, app.Logger)
	return notify.NewAlertWatcher(client, notify.NewDedupCache(), notifier, journal, app.Config.Dashboard.AlertInterval, app.Logger)
}

func newAlertsWatchCmd(app *App) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll alerts and print each new one once",
		RunE: func(cmd *cobra.Command, args []string) error {
			var journal notify.Journal
			if s, err := app.openJournal(); err == nil {
				defer s.Close()
				journal = s
			} else if !errors.Is(err, apperrors.ErrJournalDisabled) {
				app.Logger.Warn().Err(err).Msg("Alert journal unavailable")
			}

			if interval > 0 {
				app.Config.Dashboard.AlertInterval = interval
			}
			w := app.newAlertWatcher(cmd, journal)
			output := NewOutput(cmd)
			output.Dim("Polling alerts every %s. Ctrl+C to stop.", app.Config.Dashboard.AlertInterval)

			err := w.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (overrides dashboard.alert_interval)")
	return cmd
}

func newAlertsCheckCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Fetch alerts once and print them",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := app.newAlertWatcher(cmd, nil)
			n := w.Check(cmd.Context())
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]int{"delivered": n})
			}
			if n == 0 {
				output.Dim("No alerts.")
			}
			return nil
		},
	}
}

func newAlertsHistoryCmd(app *App) *cobra.Command {
	var ticker, typ string
	var since time.Duration
	var limit int
	var summary bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show delivered alerts from the journal",
		Example: `  stockwatch alerts history
  stockwatch alerts history --ticker NVDA --type high --limit 10
  stockwatch alerts history --since 24h --summary`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openJournal()
			if err != nil {
				return err
			}
			defer s.Close()

			output := NewOutput(cmd)
			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}

			if summary {
				counts, err := s.CountByTicker(cmd.Context(), from)
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(counts)
				}
				return renderAlertCounts(output, counts)
			}

			filter := store.DeliveryFilter{
				Ticker: ticker,
				Type:   models.AlertType(typ),
				Since:  from,
				Limit:  limit,
			}
			deliveries, err := s.Deliveries(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(deliveries)
			}
			renderDeliveries(output, deliveries)
			return nil
		},
	}

	cmd.Flags().StringVar(&ticker, "ticker", "", "only this ticker")
	cmd.Flags().StringVar(&typ, "type", "", "only low or high alerts")
	cmd.Flags().DurationVar(&since, "since", 0, "only alerts newer than this (e.g. 24h)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().BoolVar(&summary, "summary", false, "count deliveries per ticker")
	return cmd
}

func renderDeliveries(output *Output, deliveries []models.AlertDelivery) {
	if len(deliveries) == 0 {
		output.Dim("No delivered alerts.")
		return
	}
	table := NewTable(output, "Time", "Ticker", "Type", "Price", "Message")
	for _, d := range deliveries {
		kind := output.green
		if d.Type == models.AlertLow {
			kind = output.red
		}
		table.addCells([]cell{
			{text: d.DeliveredAt.Local().Format("2006-01-02 15:04")},
			{text: d.Ticker},
			{text: string(d.Type), color: kind},
			{text: utils.FormatUSD(d.Price)},
			{text: utils.Truncate(d.Message, 60)},
		})
	}
	table.Render()
}

func renderAlertCounts(output *Output, counts map[string]int) error {
	if len(counts) == 0 {
		output.Dim("No delivered alerts.")
		return nil
	}
	tickers := make([]string, 0, len(counts))
	for t := range counts {
		tickers = append(tickers, t)
	}
	sort.Slice(tickers, func(i, j int) bool {
		if counts[tickers[i]] != counts[tickers[j]] {
			return counts[tickers[i]] > counts[tickers[j]]
		}
		return tickers[i] < tickers[j]
	})
	table := NewTable(output, "Ticker", "Alerts")
	for _, t := range tickers {
		table.AddRow(t, fmt.Sprintf("%d", counts[t]))
	}
	table.Render()
	return nil
}
