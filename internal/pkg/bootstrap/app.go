package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"cinemoa/internal/pkg/config"
	"cinemoa/internal/pkg/logger"
	"cinemoa/internal/pkg/nacos"
	"cinemoa/internal/pkg/tracing"
)

type AppCtx struct {
	Mux   *http.ServeMux
	Nacos *nacos.Client
}

// Worker is a long-lived loop (scheduler, expiry listener, consumers) that
// runs until its context is cancelled.
type Worker func(ctx context.Context) error

// AppInfo carries everything service-specific the runtime needs.
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)
	Workers          []Worker
}

// StartService owns the shared lifecycle of the engine: tracer setup, nacos
// registration, the HTTP server, the background workers, and graceful
// shutdown in reverse order.
func StartService(cfg *config.Config, info AppInfo) {
	logger.Init(info.ServiceName)
	lg := logger.Ctx(context.Background())

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	namingClient, err := nacos.NewClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to initialize nacos client")
	}

	ip, err := outboundIP()
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to get outbound IP address")
	}

	if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		lg.Fatal().Err(err).Msg("failed to register service with nacos")
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Nacos: namingClient})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)
	for _, w := range info.Workers {
		worker := w
		g.Go(func() error { return worker(gCtx) })
	}
	go func() {
		lg.Info().Str("addr", server.Addr).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		lg.Info().Msgf("shutting down service %s", info.ServiceName)
	case <-gCtx.Done():
		lg.Error().Err(gCtx.Err()).Msg("worker failed, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		lg.Error().Err(err).Msg("error deregistering from nacos")
	}

	cancel()
	if err := g.Wait(); err != nil && err != context.Canceled {
		lg.Error().Err(err).Msg("worker exited with error")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("error shutting down http server")
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("error shutting down tracer provider")
	}

	lg.Info().Msgf("service %s gracefully shut down", info.ServiceName)
}

// outboundIP reports the preferred local address by dialing out (no traffic
// is actually sent on a UDP dial).
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
