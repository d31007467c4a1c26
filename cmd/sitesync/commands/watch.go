package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/sitesync/internal/filter"
	"github.com/dyluth/sitesync/internal/printer"
	"github.com/dyluth/sitesync/pkg/realtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	watchMetricsAddr string
	watchEvents      string
)

var watchCmd = &cobra.Command{
	Use:   "watch <project-id>",
	Short: "Sync a project and stream its realtime events",
	Long: `Sync a project, bind its realtime channel and print every event as
it is handled, until interrupted. Each event refreshes the affected store
exactly as the library does.

Examples:
  # Watch a project
  sitesync watch proj-42 --token $TOKEN

  # Only show budget events
  sitesync watch proj-42 --events 'bill.*'

  # Serve Prometheus metrics while watching
  sitesync watch proj-42 --metrics-addr :9090`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchEvents, "events", "", "Only print events whose name matches this glob")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	criteria := filter.Criteria{KindGlob: watchEvents}
	if err := criteria.Validate(); err != nil {
		return printer.Error(
			"invalid event filter",
			fmt.Sprintf("Pattern %q: %v", watchEvents, err),
			[]string{"Use a glob such as 'bill.*' or 'stage.tasks-*'"},
		)
	}

	rt, err := setup(ctx, runtimeOptions{
		onEvent: func(ev realtime.Event) {
			if criteria.Matches(ev) {
				printer.Event(time.Now(), ev)
			}
		},
	})
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.requireAuth(); err != nil {
		return err
	}

	addr := watchMetricsAddr
	if addr == "" && rt.cfg.Metrics.Enabled {
		addr = rt.cfg.Metrics.Addr
	}
	if addr != "" {
		srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				rt.logger.Warn("metrics server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		printer.Info("Serving metrics on %s/metrics\n", addr)
	}

	report, err := selectAndSync(cmd, rt, args[0])
	if err != nil {
		return err
	}
	printer.SyncReport(*report)

	if _, bound := rt.client.RealtimeProject(); !bound {
		printer.Warning("realtime disabled; set realtime.redis_url to follow live changes\n")
		return nil
	}
	printer.Success("Watching %s (Ctrl+C to stop)\n", args[0])
	<-ctx.Done()
	return nil
}
