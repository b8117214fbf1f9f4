package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/progress/internal/api"
	"example.com/progress/internal/auth"
	"example.com/progress/internal/catalog"
	"example.com/progress/internal/chart"
	"example.com/progress/internal/config"
	"example.com/progress/internal/domain"
	"example.com/progress/internal/notify"
	"example.com/progress/internal/persistence"
	httptransport "example.com/progress/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat := loadCatalog(cfg)

	store, err := persistence.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	var announcer notify.Announcer = notify.Noop{}
	if cfg.AnnounceTopic != "" {
		kafkaAnnouncer := notify.NewKafkaAnnouncer(cfg.KafkaBrokers, cfg.AnnounceTopic, nil)
		defer kafkaAnnouncer.Close()
		announcer = kafkaAnnouncer
	}

	renderer, err := chart.NewRenderer(chart.Options{FontPath: cfg.ChartFont, Width: cfg.ChartWidth})
	if err != nil {
		log.Fatalf("failed to build chart renderer: %v", err)
	}

	service := domain.NewService(store, cat,
		domain.WithRetry(cfg.StoreRetries, cfg.StoreRetryBase),
		domain.WithStoreTimeout(cfg.StoreTimeout),
	)

	handler := api.NewHandler(service, renderer, announcer, nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, "/healthz", "/metrics")

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(logger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("progress-service listening on %s (backend=%s)", cfg.HTTPAddress, cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

func loadCatalog(cfg config.Config) *catalog.Catalog {
	if cfg.CatalogPath == "" {
		return catalog.Default()
	}
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("failed to load catalog %s: %v", cfg.CatalogPath, err)
	}
	return cat
}
