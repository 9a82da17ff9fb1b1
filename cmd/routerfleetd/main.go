// Command routerfleetd is the orchestration engine's process entrypoint:
// it wires the Inventory Store, Event Bus, Scan Engine, Rollout Engine,
// Event Stream Gateway, and optional periodic scan loop together and
// serves them until signalled to stop. Shutdown sequencing — single
// signal-derived context, a reverse-order cleanupFuncs slice run after
// cancellation — is grounded on cmd/flightctl-worker/main.go.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/iotstackcloud/teltonikaupdater/internal/apiserver"
	"github.com/iotstackcloud/teltonikaupdater/internal/config"
	"github.com/iotstackcloud/teltonikaupdater/internal/eventbus"
	"github.com/iotstackcloud/teltonikaupdater/internal/metrics"
	"github.com/iotstackcloud/teltonikaupdater/internal/periodicscan"
	"github.com/iotstackcloud/teltonikaupdater/internal/rollout"
	"github.com/iotstackcloud/teltonikaupdater/internal/scan"
	"github.com/iotstackcloud/teltonikaupdater/internal/sshclient"
	"github.com/iotstackcloud/teltonikaupdater/internal/store"
	"github.com/iotstackcloud/teltonikaupdater/internal/streamgateway"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	if err := runCmd(log); err != nil {
		log.Fatalf("routerfleetd error: %v", err)
	}
}

func runCmd(log *logrus.Logger) error {
	log.Info("Starting routerfleetd")
	defer log.Info("routerfleetd stopped")

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP)

	var cleanupFuncs []func() error
	defer func() {
		log.Info("Cancelling context to stop all servers")
		cancel()

		log.Info("Starting cleanup")
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			if err := cleanupFuncs[i](); err != nil {
				log.WithError(err).Error("Cleanup error")
			}
		}
		log.Info("Cleanup completed")
	}()

	cfg, err := config.LoadOrGenerate(config.ConfigFile())
	if err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}
	log.Printf("Using config: %s", cfg)

	logLvl, err := logrus.ParseLevel(cfg.Service.LogLevel)
	if err != nil {
		logLvl = logrus.InfoLevel
	}
	log.SetLevel(logLvl)

	log.Info("Initializing data store")
	db, err := store.InitDB(cfg, log)
	if err != nil {
		return fmt.Errorf("initializing data store: %w", err)
	}
	inventory := store.NewStore(db, log.WithField("pkg", "store"))
	cleanupFuncs = append(cleanupFuncs, func() error {
		log.Info("Closing database connections")
		return inventory.Close()
	})

	log.Info("Reconciling stale state from a prior run")
	if err := inventory.ReconcileOnStartup(); err != nil {
		return fmt.Errorf("reconciling startup state: %w", err)
	}

	bus := eventbus.Singleton(log.WithField("pkg", "eventbus"))

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)

	sshFactory := func() sshclient.Client { return sshclient.New() }

	scanEngine := scan.New(inventory, bus, sshFactory, log.WithField("pkg", "scan"), collector)
	rolloutEngine := rollout.New(inventory, bus, sshFactory, log.WithField("pkg", "rollout"), collector)

	periodic := periodicscan.New(inventory, scanEngine, log.WithField("pkg", "periodicscan"))
	go periodic.Run(ctx)

	gateway := streamgateway.New(bus, log.WithField("pkg", "streamgateway"))

	errCh := make(chan error, 3)

	streamSrv := &http.Server{Addr: cfg.Service.Address, Handler: gateway.Router()}
	go func() {
		log.WithField("addr", cfg.Service.Address).Info("Starting event stream gateway")
		if err := streamSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("stream gateway: %w", err)
			return
		}
		errCh <- nil
	}()
	cleanupFuncs = append(cleanupFuncs, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownGracePeriod)
		defer cancel()
		return streamSrv.Shutdown(shutdownCtx)
	})

	metricsSrv := &http.Server{Addr: cfg.Metrics.Address, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
	go func() {
		log.WithField("addr", cfg.Metrics.Address).Info("Starting metrics server")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
			return
		}
		errCh <- nil
	}()
	cleanupFuncs = append(cleanupFuncs, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownGracePeriod)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	api := apiserver.New(inventory, scanEngine, rolloutEngine, log.WithField("pkg", "apiserver"))
	apiSrv := &http.Server{Addr: cfg.API.Address, Handler: api.Router()}
	go func() {
		log.WithField("addr", cfg.API.Address).Info("Starting operator API")
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("operator API: %w", err)
			return
		}
		errCh <- nil
	}()
	cleanupFuncs = append(cleanupFuncs, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownGracePeriod)
		defer cancel()
		return apiSrv.Shutdown(shutdownCtx)
	})

	log.Info("routerfleetd started, waiting for shutdown signal...")
	<-ctx.Done()

	var firstErr error
	for i := 0; i < 3; i++ {
		select {
		case err := <-errCh:
			if err != nil && firstErr == nil {
				firstErr = err
			}
		case <-time.After(time.Second):
		}
	}
	return firstErr
}
