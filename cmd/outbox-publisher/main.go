package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/relivv-escrow/internal/boot"
	"github.com/angelmondragon/relivv-escrow/pkg/metrics"
	"github.com/angelmondragon/relivv-escrow/pkg/outbox"
	"github.com/angelmondragon/relivv-escrow/pkg/outbox/registry"
	"github.com/angelmondragon/relivv-escrow/pkg/pubsub"
)

func main() {
	boot.Main("outbox-publisher", publish)
}

func publish(ctx context.Context, rt *boot.Runtime) error {
	cfg := rt.Config
	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, rt.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			rt.Logger.Error(ctx, "closing pubsub client", err)
		}
	}()

	routes, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return err
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        rt.Logger,
		DB:            rt.DB,
		PubSub:        client,
		Repository:    outbox.NewRepository(rt.DB.DB()),
		Registry:      routes,
		DLQRepository: outbox.NewDLQRepository(rt.DB.DB()),
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}
	defer service.Close()

	rt.ServeMetrics(ctx, prometheus.DefaultGatherer)
	rt.Logger.Info(ctx, "starting outbox publisher")
	return service.Run(ctx)
}
