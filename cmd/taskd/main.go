package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/taskflow/internal/catalog"
	"github.com/adred-codev/taskflow/internal/config"
	"github.com/adred-codev/taskflow/internal/httpapi"
	"github.com/adred-codev/taskflow/internal/kafkasink"
	"github.com/adred-codev/taskflow/internal/kafkasrc"
	"github.com/adred-codev/taskflow/internal/logging"
	"github.com/adred-codev/taskflow/internal/metrics"
	"github.com/adred-codev/taskflow/internal/plugin"
	"github.com/adred-codev/taskflow/internal/registry"
	"github.com/adred-codev/taskflow/internal/supervisor"
)

func main() {
	var debug = flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootLog := logging.New("info", "pretty")

	maxProcs := runtime.GOMAXPROCS(0)
	bootLog.Info().Int("gomaxprocs", maxProcs).Msg("starting taskd")

	cfg, err := config.Load(&bootLog)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	cfg.LogConfig(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat, err := catalog.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open catalog")
	}
	defer cat.Close()

	sources := plugin.SourceRegistry{"kafka": kafkasrc.New(log)}
	sinks := plugin.SinkRegistry{"kafka": kafkasink.New(log)}

	reg := registry.New()
	sup := supervisor.New(reg, sources, sinks, cat, log)
	sup.QueueCapacity = cfg.QueueCapacity
	sup.HeartbeatInterval = cfg.HeartbeatInterval

	closeHook := supervisor.UpdateStatusHook(cat, log)
	sup.Replay(ctx, closeHook)

	api := httpapi.New(cat, sup, sources, sinks, log)

	metrics.Register()

	mux := api.Routes()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http admission layer listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during http shutdown")
	}
	reg.CancelAll()
	cancel()
}
