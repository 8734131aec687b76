// Package boot is the startup sequence shared by the api and worker binaries.
package boot

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/relivv-escrow/internal/payments"
	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/db"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
	"github.com/angelmondragon/relivv-escrow/pkg/migrate"
	"github.com/angelmondragon/relivv-escrow/pkg/redis"
	pkgstripe "github.com/angelmondragon/relivv-escrow/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

// Runtime carries what every binary has once boot succeeded. Resources opened
// through it are closed in reverse order when Main returns.
type Runtime struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client

	closers []func(context.Context) error
}

// Main loads .env and config, builds the logger, opens the database, applies
// dev migrations and calls fn with a context cancelled on SIGINT or SIGTERM.
// It exits the process with 1 when any step or fn fails.
func Main(kind string, fn func(ctx context.Context, rt *Runtime) error) {
	os.Exit(run(kind, fn))
}

func run(kind string, fn func(context.Context, *Runtime) error) int {
	logg := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		return 1
	}
	cfg.Service.Kind = kind
	logg = logger.New(logger.Options{
		ServiceName: kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.ConsoleLogs(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": kind})

	rt := &Runtime{Config: cfg, Logger: logg}
	defer rt.close(ctx)

	if rt.DB, err = db.New(ctx, cfg.DB, logg); err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		return 1
	}
	rt.onClose(func(context.Context) error { return rt.DB.Close() })
	if err := migrate.MaybeRunDev(ctx, cfg, logg, rt.DB); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		return 1
	}

	if err := fn(ctx, rt); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, kind+" stopped unexpectedly", err)
		return 1
	}
	logg.Info(ctx, kind+" shut down gracefully")
	return 0
}

// Redis connects to the configured Redis and closes it on shutdown.
func (rt *Runtime) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, rt.Config.Redis, rt.Logger)
	if err != nil {
		return nil, err
	}
	rt.onClose(func(context.Context) error { return client.Close() })
	return client, nil
}

// Gateway builds the Stripe-backed payment gateway.
func (rt *Runtime) Gateway(ctx context.Context) (*payments.StripeGateway, error) {
	client, err := pkgstripe.NewClient(ctx, rt.Config.Stripe, rt.Logger)
	if err != nil {
		return nil, err
	}
	return payments.NewStripeGateway(client, rt.Config.Escrow.GatewayTimeout)
}

// ServeMetrics exposes g on RELIVV_METRICS_ADDR when it is set.
func (rt *Runtime) ServeMetrics(ctx context.Context, g prometheus.Gatherer) {
	addr := rt.Config.Service.MetricsAddr
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	rt.Serve(rt.Logger.WithField(ctx, "metrics_addr", addr), &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second})
}

// Serve runs srv in the background and shuts it down gracefully on close.
// A listener failure is logged and delivered on the returned channel.
func (rt *Runtime) Serve(ctx context.Context, srv *http.Server) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		rt.Logger.Info(ctx, "http listener starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Logger.Error(ctx, "http listener failed", err)
			errCh <- err
		}
		close(errCh)
	}()
	rt.onClose(srv.Shutdown)
	return errCh
}

func (rt *Runtime) onClose(fn func(context.Context) error) {
	rt.closers = append(rt.closers, fn)
}

func (rt *Runtime) close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](shutdownCtx); err != nil {
			rt.Logger.Error(ctx, "shutdown step failed", err)
		}
	}
}
