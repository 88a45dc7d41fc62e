package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/git-hulk/go-nodup/guard"
	"github.com/git-hulk/go-nodup/guard/engine"
	"github.com/git-hulk/go-nodup/internal"
	"github.com/git-hulk/go-nodup/metrics"
)

const (
	booksOperation  = "books"
	shutdownTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the guarded books endpoint and Prometheus metrics",
	Long: `Serve GET /books?token=... guarded by the lock, a token submitted again
while its lock is held is answered with 409 Conflict. Metrics are exposed on
/metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address of the http server")
	_ = viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
}

func newServeMux(g *guard.Guard, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/books", g.Handler(booksOperation, guard.QueryArgs("token"), func(w http.ResponseWriter, r *http.Request) error {
		_, err := fmt.Fprintf(w, "success - %s", r.URL.Query().Get("token"))
		return err
	}))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func newGuard(v *viper.Viper, s engine.Store, scheduler engine.Scheduler) (*guard.Guard, error) {
	manager := engine.NewManager(s, scheduler, engine.WithReleaseTimeout(v.GetDuration("timeout")))
	g, err := guard.New(manager, guard.WithReleaseTimeout(v.GetDuration("timeout")))
	if err != nil {
		return nil, err
	}
	configs, err := operationConfigs(v)
	if err != nil {
		return nil, err
	}
	for op, cfg := range configs {
		if err := g.Register(op, cfg); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viper.GetViper()
	s, closeStore, err := newStore(v)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			internal.GetLogger().Printf("Failed to close store, err: %v", err)
		}
	}()

	scheduler := engine.NewTimerScheduler(v.GetInt("max-pending-releases"))
	g, err := newGuard(v, s, scheduler)
	if err != nil {
		return err
	}
	reg := metrics.NewRegistry()
	metrics.RegisterMetrics(reg)

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           newServeMux(g, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		internal.GetLogger().Printf("Listening on %s with %s store", srv.Addr, v.GetString("store"))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		internal.GetLogger().Printf("Failed to shutdown http server, err: %v", err)
	}
	// let the delayed releases run before the store is closed
	return scheduler.Shutdown(shutdownCtx)
}
