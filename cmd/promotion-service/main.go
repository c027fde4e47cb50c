// cmd/promotion-service/main.go
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

	"nexus/internal/promotion"
	"nexus/pkg/config"
	"nexus/pkg/logger"
	"nexus/pkg/metrics"
	"nexus/pkg/middleware"
	"nexus/pkg/tiers"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	policy := tiers.Default()
	if cfg.TiersFile != "" {
		p, err := tiers.Load(cfg.TiersFile)
		if err != nil {
			log.Fatalw("tiers", "path", cfg.TiersFile, "err", err)
		}
		policy = p
	}

	regoModule := ""
	if cfg.PromotionRegoFile != "" {
		raw, err := os.ReadFile(cfg.PromotionRegoFile)
		if err != nil {
			log.Fatalw("promotion rego", "path", cfg.PromotionRegoFile, "err", err)
		}
		regoModule = string(raw)
	}

	met := metrics.New("promotion", nil)
	svc, err := promotion.NewService(context.Background(), policy, regoModule, met, log)
	if err != nil {
		log.Fatalw("promotion policy", "err", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Tracing(cfg))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	promotion.RegisterHTTP(r, svc)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	srv := &http.Server{Addr: cfg.PromotionAddr, Handler: r}
	go func() {
		log.Infow("promotion-service listening", "addr", cfg.PromotionAddr)
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
	fmt.Println("promotion-service stopped")
}
