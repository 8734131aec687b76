package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/relivv-escrow/api/controllers"
	"github.com/angelmondragon/relivv-escrow/api/routes"
	"github.com/angelmondragon/relivv-escrow/internal/app"
	"github.com/angelmondragon/relivv-escrow/internal/boot"
)

func main() {
	boot.Main("api", serve)
}

func serve(ctx context.Context, rt *boot.Runtime) error {
	cfg, logg := rt.Config, rt.Logger

	redisClient, err := rt.Redis(ctx)
	if err != nil {
		return err
	}
	gateway, err := rt.Gateway(ctx)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	components, err := app.Build(app.Params{
		Config:   cfg,
		Logger:   logg,
		DB:       rt.DB,
		Store:    redisClient,
		Gateway:  gateway,
		Registry: reg,
	})
	if err != nil {
		return err
	}

	handler := routes.NewRouter(routes.Params{
		Config: cfg,
		Logger: logg,
		Store:  redisClient,
		Readiness: []controllers.ReadinessCheck{
			{Name: "database", Ping: rt.DB.Ping},
			{Name: "redis", Ping: redisClient.Ping},
		},
		Gatherer:       reg,
		Transactions:   components.TransactionService,
		Escrow:         components.Escrow,
		Checkout:       components.Checkout,
		CheckoutStatus: components.Status,
		Cart:           components.Cart,
		Invoices:       components.Invoices,
		StripeWebhook:  components.StripeWebhook,
	})

	// PORT and DYNO are set by the hosting platform.
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	instance := os.Getenv("DYNO")
	if instance == "" {
		instance = "local"
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{"addr": addr, "instance": instance})

	failed := rt.Serve(ctx, &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	})
	select {
	case err := <-failed:
		return err
	case <-ctx.Done():
		return nil
	}
}
