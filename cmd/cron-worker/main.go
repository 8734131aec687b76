package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/relivv-escrow/internal/app"
	"github.com/angelmondragon/relivv-escrow/internal/boot"
	"github.com/angelmondragon/relivv-escrow/internal/cron"
	"github.com/angelmondragon/relivv-escrow/pkg/metrics"
)

const serviceKind = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	only := flag.String("job", "", "run only the named job once and exit")
	flag.Parse()

	boot.Main(serviceKind, func(ctx context.Context, rt *boot.Runtime) error {
		service, err := buildService(ctx, rt)
		if err != nil {
			return err
		}
		if !*once && *only == "" {
			rt.ServeMetrics(ctx, prometheus.DefaultGatherer)
			rt.Logger.Info(ctx, "starting cron worker")
			return service.Run(ctx)
		}
		return runOnce(ctx, rt, service, *only)
	})
}

func buildService(ctx context.Context, rt *boot.Runtime) (*cron.Service, error) {
	cfg, logg := rt.Config, rt.Logger
	redisClient, err := rt.Redis(ctx)
	if err != nil {
		return nil, err
	}
	gateway, err := rt.Gateway(ctx)
	if err != nil {
		return nil, err
	}
	components, err := app.Build(app.Params{
		Config:   cfg,
		Logger:   logg,
		DB:       rt.DB,
		Store:    redisClient,
		Gateway:  gateway,
		Registry: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return nil, err
	}
	registry, err := buildRegistry(rt, components)
	if err != nil {
		return nil, fmt.Errorf("register cron jobs: %w", err)
	}
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Escrow.CronInterval,
		JobTimeout: cfg.Escrow.CronJobTimeout,
	})
}

func runOnce(ctx context.Context, rt *boot.Runtime, service *cron.Service, job string) error {
	var (
		report cron.Report
		err    error
	)
	if job != "" {
		report, err = service.RunJob(ctx, job)
	} else {
		report, err = service.RunOnce(ctx)
	}
	switch {
	case err != nil:
		return err
	case report.Skipped:
		rt.Logger.Warn(ctx, "cron lock held by another worker, cycle skipped")
		return nil
	default:
		return report.Failures
	}
}

func buildRegistry(rt *boot.Runtime, c *app.Components) (*cron.Registry, error) {
	cfg, logg := rt.Config, rt.Logger
	release, err := cron.NewEscrowReleaseJob(cron.EscrowReleaseJobParams{
		Logger:    logg,
		Releaser:  c.Escrow,
		BatchSize: cfg.Escrow.ReleaseBatchSize,
	})
	if err != nil {
		return nil, err
	}
	sweep, err := cron.NewPaymentSweepJob(cron.PaymentSweepJobParams{
		Logger:  logg,
		Sweeper: c.Sweeper,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         rt.DB,
		Repository: c.Outbox,
		Retention:  cfg.Escrow.OutboxRetention,
	})
	if err != nil {
		return nil, err
	}
	expiry, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:    logg,
		Expirer:   c.Escrow,
		TTL:       cfg.Escrow.ReservationTTL,
		BatchSize: cfg.Escrow.ReleaseBatchSize,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(release, sweep, retention, expiry)
}

// lockKey scopes the cron lock per environment so staging and prod never
// block each other on a shared Redis.
func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return "relivv:cron-worker:lock:" + env
}
