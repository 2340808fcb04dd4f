package controllers

import (
	"context"
	"net/http"

	"github.com/edgeup/edgeup-backend/api/responses"
	"github.com/edgeup/edgeup-backend/pkg/config"
	pkgerrors "github.com/edgeup/edgeup-backend/pkg/errors"
	"github.com/edgeup/edgeup-backend/pkg/logger"
)

// Pinger is the readiness probe contract backing stores satisfy.
type Pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-EdgeUp-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady probes the backing stores; any failure flips the endpoint to 503.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-EdgeUp-Env", cfg.App.Env)

		checks := map[string]string{}
		healthy := true

		probe := func(name string, p Pinger) {
			if p == nil {
				checks[name] = "skipped"
				return
			}
			if err := p.Ping(r.Context()); err != nil {
				checks[name] = "down"
				healthy = false
				if logg != nil {
					ctx := logg.WithField(r.Context(), "dependency", name)
					logg.Error(ctx, "health.ready.failed", err)
				}
				return
			}
			checks[name] = "up"
		}

		probe("db", dbP)
		probe("redis", redisP)

		if !healthy {
			responses.WriteError(r.Context(), nil, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
