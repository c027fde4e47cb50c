// cmd/ingest-service/main.go
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

	"nexus/internal/buffer"
	"nexus/internal/ingest"
	"nexus/pkg/config"
	"nexus/pkg/db"
	"nexus/pkg/grant"
	"nexus/pkg/logger"
	"nexus/pkg/metrics"
	"nexus/pkg/middleware"
	"nexus/pkg/tenants"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	var prov tenants.Provider
	if pool != nil {
		prov = tenants.NewPostgresProvider(pool, log)
	} else {
		prov = tenants.NewMemoryProviderFromEnv(log)
	}

	met := metrics.New("ingest", nil)
	signer := grant.NewSigner(cfg.GrantSecret)

	reg := buffer.NewSinkRegistry()
	reg.Register("file", func(target string) (buffer.Sink, error) {
		return buffer.NewFileSink(cfg.LandingDir), nil
	})
	reg.Register("http", func(target string) (buffer.Sink, error) {
		return buffer.NewHTTPSink(cfg.LandingURL, &http.Client{Timeout: cfg.FlushTimeout}), nil
	})
	if rdb != nil {
		reg.Register("redis", func(target string) (buffer.Sink, error) {
			return buffer.NewRedisSink(rdb), nil
		})
	}
	kind := "file"
	switch {
	case cfg.LandingURL != "":
		kind = "http"
	case cfg.LandingDir != "":
		kind = "file"
	case rdb != nil:
		kind = "redis"
	default:
		cfg.LandingDir = "./landing"
	}
	sink, err := reg.Build(kind, "")
	if err != nil {
		log.Fatalw("landing sink", "kind", kind, "err", err)
	}
	log.Infow("landing sink ready", "kind", kind)

	var codec buffer.Codec = buffer.JSONLines()
	if cfg.CompressBatches {
		codec = buffer.Gzip(codec)
	}

	var dlq buffer.DeadLetter
	if rdb != nil {
		dlq = buffer.NewRedisDeadLetter(rdb, log)
	} else {
		dlq = buffer.NewMemoryDeadLetter()
	}

	buf := buffer.New(buffer.Options{
		MaxRecords:   cfg.FlushMaxRecords,
		MaxAge:       cfg.FlushInterval,
		FlushTimeout: cfg.FlushTimeout,
		MaxRetries:   cfg.FlushMaxRetries,
	}, sink, codec, dlq, met, log)

	router := ingest.NewRouter(buf, prov, met, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Tracing(cfg))
	r.Use(middleware.Credential(signer))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	ingest.RegisterHTTP(r, router)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	srv := &http.Server{Addr: cfg.IngestAddr, Handler: r}
	go func() {
		log.Infow("ingest-service listening", "addr", cfg.IngestAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	// Drain what producers already got acks for.
	if err := buf.Close(ctx); err != nil {
		log.Errorw("buffer drain", "err", err)
	}
	fmt.Println("ingest-service stopped")
}
