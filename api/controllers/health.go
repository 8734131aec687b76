package controllers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/relivv-escrow/api/responses"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

const readinessTimeout = 3 * time.Second

// ReadinessCheck is one dependency probed by /health/ready.
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Relivv-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency in parallel and fails on the first error.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Relivv-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		for _, check := range checks {
			if check.Ping == nil {
				continue
			}
			check := check
			g.Go(func() error {
				if err := check.Ping(gctx); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, check.Name+" unavailable").
						WithDetails(map[string]any{"dependency": check.Name})
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
