package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"minerva/internal/expiry"
	"minerva/internal/platform/httpserver"
)

// WatchCommand runs the expiry monitor until interrupted.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Watch the session lifetime, warning and refreshing before it expires",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "auto-refresh",
				Usage: "Refresh inside the warning window instead of only warning (default from config)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address, e.g. :9090",
			},
		},
		Action: sessionWatch,
	}
}

func sessionWatch(c *cli.Context) error {
	rt := getRuntime(c)
	autoRefresh := rt.cfg.Expiry.AutoRefresh
	if c.IsSet("auto-refresh") {
		autoRefresh = c.Bool("auto-refresh")
	}

	opts := []expiry.Option{
		expiry.WithInterval(rt.cfg.Expiry.Interval),
		expiry.WithWarning(rt.cfg.Expiry.Warning),
		expiry.WithAutoRefresh(autoRefresh),
		expiry.WithLogger(rt.logger),
	}
	if rt.publisher != nil {
		opts = append(opts, expiry.WithAuditPublisher(rt.publisher))
	}
	monitor, err := expiry.New(rt.service, opts...)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(c.Context)
	g.Go(func() error {
		return monitor.Run(ctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-monitor.Events():
				printEvent(c, ev)
			}
		}
	})
	if addr := c.String("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))
		srv := httpserver.New(addr, mux)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printEvent(c *cli.Context, ev expiry.Event) {
	switch ev.Status {
	case expiry.StatusNoSession:
		fmt.Fprintln(c.App.Writer, "no session")
	case expiry.StatusExpired:
		fmt.Fprintln(c.App.Writer, "session expired, signed out")
	default:
		fmt.Fprintf(c.App.Writer, "%s: %s remaining (expires %s)\n",
			ev.Status, ev.Remaining.Truncate(time.Second), ev.ExpiresAt.Format(time.RFC3339))
	}
	if ev.Err != nil {
		fmt.Fprintf(c.App.ErrWriter, "  error: %v\n", ev.Err)
	}
}
