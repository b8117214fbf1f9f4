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
	"github.com/segmentio/kafka-go"

	"example.com/progress/internal/catalog"
	"example.com/progress/internal/config"
	"example.com/progress/internal/consumer"
	"example.com/progress/internal/domain"
	"example.com/progress/internal/notify"
	"example.com/progress/internal/persistence"
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

	service := domain.NewService(store, cat,
		domain.WithRetry(cfg.StoreRetries, cfg.StoreRetryBase),
		domain.WithStoreTimeout(cfg.StoreTimeout),
	)
	handler := consumer.NewRecordHandler(service, announcer, nil)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}

	go func() {
		log.Printf("consumer metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroup,
		Topic:           cfg.CommandTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})

	proc := consumer.NewProcessor(reader, handler)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer reader.Close()

		log.Printf("consumer started (topic=%s, group=%s, backend=%s)", cfg.CommandTopic, cfg.ConsumerGroup, cfg.StoreBackend)
		if err := proc.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("consumer stopped with error: %v", err)
		}
	}()

	<-stop
	log.Println("consumer shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	<-done
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
