package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the supervisord daemon: starts every registered server and serves metrics",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	for _, entry := range a.store.List() {
		if err := a.supervisor.Start(entry.Slug); err != nil {
			a.logger.Printf("start %s: %v", entry.Slug, err)
		}
	}

	metricsSrv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           a.supervisor.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Printf("metrics listening on %s", a.cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Printf("metrics server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	a.logger.Printf("shutting down...")
	_ = metricsSrv.Close()
	return a.supervisor.Shutdown(a.cfg.ShutdownGrace)
}
