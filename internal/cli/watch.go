package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"stockwatch/internal/dashboard"
	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/internal/ranking"
	"stockwatch/internal/refresh"
	"stockwatch/internal/server"
	"stockwatch/internal/stream"
)

type watchFlags struct {
	view        string
	columns     []string
	ticker      string
	sector      string
	leverage    string
	sort        string
	order       string
	interval    string
	autoRefresh bool
	noAlerts    bool
}

func newWatchCmd(app *App) *cobra.Command {
	var f watchFlags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live ticker table in the terminal",
		Long: `Load the ticker table, keep it ranked and refreshed, and print price alerts.

Type commands on stdin while the table is running; 'help' lists them.`,
		Example: `  stockwatch watch
  stockwatch watch --view semis
  stockwatch watch --ticker AAPL,MSFT,NVDA --auto-refresh --interval 5M
  stockwatch watch --sort 5D_percentage --order asc --columns ticker,price,5D_percentage`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The table owns the terminal; warnings go to the log file only.
			app.setLogger("error")

			opts, err := f.options(app, cmd)
			if err != nil {
				return err
			}

			var alertOut io.Writer
			if !f.noAlerts {
				alertOut = cmd.ErrOrStderr()
			}
			rt, err := app.newRuntime(runtimeOptions{dashboard: opts, alertOut: alertOut})
			if err != nil {
				return err
			}
			defer rt.close()

			w := &watcher{
				out:     NewOutput(cmd),
				ctrl:    rt.dash,
				reg:     ranking.Standard(),
				columns: f.columns,
			}
			sub := rt.hub.Subscribe("terminal", stream.TopicSnapshot)
			defer rt.hub.Unsubscribe(sub)

			return rt.run(cmd.Context(),
				func(ctx context.Context) error { return w.render(ctx, sub) },
				func(ctx context.Context) error { return w.interact(ctx, cmd.InOrStdin()) },
			)
		},
	}

	cmd.Flags().StringVar(&f.view, "view", "", "named preset from views.yaml")
	cmd.Flags().StringSliceVar(&f.columns, "columns", nil, "column ids to display (default: compact set)")
	cmd.Flags().StringVar(&f.ticker, "ticker", "", "ticker filter")
	cmd.Flags().StringVar(&f.sector, "sector", "", "sector filter")
	cmd.Flags().StringVar(&f.leverage, "leverage", "", "ticker | leverage | both")
	cmd.Flags().StringVar(&f.sort, "sort", "", "sort column id")
	cmd.Flags().StringVar(&f.order, "order", "desc", "sort direction (asc/desc)")
	cmd.Flags().StringVar(&f.interval, "interval", "", "auto refresh interval: 1M, 5M, 15M, 1H")
	cmd.Flags().BoolVar(&f.autoRefresh, "auto-refresh", false, "start auto refresh after the first load")
	cmd.Flags().BoolVar(&f.noAlerts, "no-alerts", false, "do not print price alerts")

	return cmd
}

// options layers config, then the view, then explicit flags.
func (f *watchFlags) options(app *App, cmd *cobra.Command) (dashboard.Options, error) {
	opts := dashboard.OptionsFromConfig(app.Config.Dashboard)

	if f.view != "" {
		v, ok := app.Config.View(f.view)
		if !ok {
			return opts, fmt.Errorf("unknown view %q", f.view)
		}
		opts.Filters = v.Filters()
		if s, ok := v.SortState(); ok {
			opts.Sort = s
		}
	}

	if f.ticker != "" {
		opts.Filters.Ticker = strings.ToUpper(f.ticker)
	}
	if f.sector != "" {
		opts.Filters.Sector = f.sector
	}
	if f.leverage != "" {
		lev, ok := models.ParseLeverageFilter(f.leverage)
		if !ok {
			return opts, apperrors.Wrapf(apperrors.ErrInvalidLeverage, "%q", f.leverage)
		}
		opts.Filters.Leverage = lev
	}
	if f.sort != "" {
		if _, ok := ranking.Standard().Lookup(f.sort); !ok {
			return opts, apperrors.Wrapf(apperrors.ErrUnknownColumn, "%q", f.sort)
		}
		dir := models.SortDesc
		if strings.EqualFold(f.order, "asc") {
			dir = models.SortAsc
		}
		opts.Sort = models.SortState{Column: f.sort, Direction: dir}
	}
	if f.interval != "" {
		iv, err := refresh.ParseInterval(f.interval)
		if err != nil {
			return opts, err
		}
		opts.Interval = iv
	}
	if cmd.Flags().Changed("auto-refresh") {
		opts.AutoRefresh = f.autoRefresh
	}
	return opts, nil
}

// watcher redraws the table on each snapshot and applies typed commands.
type watcher struct {
	out     *Output
	ctrl    server.Controller
	reg     *ranking.Registry
	columns []string

	mu      sync.Mutex
	message string
}

func (w *watcher) setMessage(msg string) {
	w.mu.Lock()
	w.message = msg
	w.mu.Unlock()
}

func (w *watcher) render(ctx context.Context, sub *stream.Subscriber) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if ev.Snapshot == nil {
				continue
			}
			w.draw(ev.Snapshot)
		}
	}
}

func (w *watcher) draw(snap *models.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.out.ClearScreen()
	RenderSnapshot(w.out, w.reg, snap, w.columns)
	w.out.Println()
	if w.message != "" {
		w.out.Info("%s", w.message)
	}
	w.out.Dim("Type 'help' for commands, 'q' to quit.")
}

func (w *watcher) interact(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep running until interrupted
				if in == os.Stdin {
					<-ctx.Done()
					return ctx.Err()
				}
				return errQuit
			}
			msg, err := applyCommand(ctx, w.ctrl, line)
			if err == errQuit {
				return err
			}
			if err != nil {
				msg = "Error: " + err.Error()
			}
			w.setMessage(msg)
			if snap := w.ctrl.Snapshot(); snap != nil && msg != "" {
				w.draw(snap)
			}
		}
	}
}

// applyCommand runs one interactive command against the dashboard and
// returns the message to show.
func applyCommand(ctx context.Context, ctrl server.Controller, line string) (string, error) {
	verb, arg := parseCommand(line)
	switch verb {
	case "":
		return "", nil
	case "q", "quit", "exit":
		return "", errQuit
	case "help", "?":
		return watchHelp, nil
	case "cols", "columns":
		ids := make([]string, 0, 32)
		for _, c := range ctrl.Columns() {
			ids = append(ids, c.ID)
		}
		return strings.Join(ids, " "), nil
	case "t", "ticker":
		return "Ticker filter: " + strings.ToUpper(arg), ctrl.SetTickerFilter(arg)
	case "s", "sector":
		return "Sector filter: " + arg, ctrl.SetSector(arg)
	case "l", "leverage":
		return "Leverage filter: " + arg, ctrl.SetLeverage(models.LeverageFilter(arg))
	case "c", "sort":
		s, err := ctrl.ClickColumn(arg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Sorted by %s %s", s.Column, s.Direction), nil
	case "clear":
		return "Filters cleared", ctrl.ClearFilters()
	case "r", "reload":
		return "Reloading", ctrl.Reload()
	case "p", "poll":
		on := !ctrl.Snapshot().Polling
		if err := ctrl.SetPolling(on); err != nil {
			return "", err
		}
		if on {
			return "Auto refresh on", nil
		}
		return "Auto refresh off", nil
	case "i", "interval":
		return "Refresh interval: " + strings.ToUpper(arg), ctrl.SetRefreshInterval(arg)
	case "u", "update":
		force := strings.EqualFold(arg, "force")
		if err := ctrl.ForceUpdate(ctx, force); err != nil {
			return "", err
		}
		return "Ticker data update requested", nil
	case "n", "reset":
		return fmt.Sprintf("Cleared %d delivered alerts", ctrl.ResetNotifications()), nil
	case "d", "dismiss":
		return "", ctrl.DismissBanner()
	default:
		return "", fmt.Errorf("unknown command %q (type 'help')", verb)
	}
}
