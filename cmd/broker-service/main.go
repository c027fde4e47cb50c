// cmd/broker-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nexus/internal/broker"
	"nexus/pkg/audit"
	"nexus/pkg/config"
	"nexus/pkg/db"
	"nexus/pkg/grant"
	"nexus/pkg/logger"
	"nexus/pkg/metrics"
	"nexus/pkg/middleware"
	"nexus/pkg/tenants"
	"nexus/pkg/trustanchor"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	pool := db.MustConnect(cfg, log)

	var prov tenants.Provider
	if pool != nil {
		prov = tenants.NewPostgresProvider(pool, log)
		if err := tenants.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalw("schema", "err", err)
		}
		if err := tenants.SeedFromEnv(context.Background(), pool, os.Getenv("TENANT_SEED_JSON")); err != nil {
			log.Warnw("seed", "err", err)
		}
	} else {
		prov = tenants.NewMemoryProviderFromEnv(log)
	}

	// The capability graph is validated once at startup; a cycle is a
	// configuration bug and refuses to boot.
	if rolesFile := os.Getenv("NEXUS_ROLES_FILE"); rolesFile != "" {
		if _, err := trustanchor.LoadChain(rolesFile); err != nil {
			log.Fatalw("roles", "path", rolesFile, "err", err)
		}
	}

	var anchor trustanchor.Anchor
	if cfg.TrustAnchorURL != "" {
		anchor = trustanchor.NewHTTP(cfg.TrustAnchorURL, cfg.TrustAnchorTimeout)
	} else {
		log.Warnw("TRUST_ANCHOR_URL not set — using local dev anchor")
		anchor = trustanchor.NewLocal()
	}

	aud := audit.NewLogRecorder(log)
	if pool != nil {
		aud = audit.Multi(aud, audit.NewPostgresRecorder(pool, log))
	}
	met := metrics.New("broker", nil)
	signer := grant.NewSigner(cfg.GrantSecret)

	svc := broker.NewService(broker.Options{
		Project:      cfg.Project,
		MinLease:     cfg.MinLease,
		MaxLease:     cfg.MaxLease,
		DefaultLease: cfg.DefaultLease,
	}, prov, anchor, signer, aud, met, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Tracing(cfg))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	broker.RegisterHTTP(r, svc)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	srv := &http.Server{Addr: cfg.BrokerAddr, Handler: r}
	go func() {
		log.Infow("broker-service listening", "addr", cfg.BrokerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("broker-service stopped")
}
