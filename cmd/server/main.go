package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fraclaims/internal/config"
	"fraclaims/internal/email/noop"
	"fraclaims/internal/email/ses"
	"fraclaims/internal/engine"
	"fraclaims/internal/events/kafka"
	"fraclaims/internal/guard"
	"fraclaims/internal/handler"
	"fraclaims/internal/ledger"
	"fraclaims/internal/metrics"
	"fraclaims/internal/port"
	"fraclaims/internal/repository/postgres"
	"fraclaims/internal/router"
	"fraclaims/internal/service"
	s3storage "fraclaims/internal/storage/s3"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize repositories
	docRepo := postgres.NewDocumentRepo(db)
	ledgerRepo := postgres.NewLedgerRepo(db)

	// Initialize storage
	s3Client, err := s3storage.NewS3Client(&cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	m := metrics.New()

	inFlight, closeGuard, err := newGuard(cfg)
	if err != nil {
		return err
	}
	defer closeGuard()

	// Outcome sinks
	sinks := []port.OutcomeSink{service.NewPersistenceSink(docRepo)}
	var verifier service.LedgerVerifier
	if cfg.Ledger.Enabled {
		notarizer := ledger.NewNotarizer(ledgerRepo, &cfg.Ledger)
		sinks = append(sinks, notarizer)
		verifier = notarizer
		log.Printf("ledger notarization enabled (issuer=%s)", cfg.Ledger.Issuer)
	} else {
		ledgerRepo = nil
	}
	if cfg.Kafka.Enabled {
		publisher := kafka.NewPublisher(&cfg.Kafka)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Printf("kafka publisher close: %v", err)
			}
		}()
		sinks = append(sinks, publisher)
		log.Printf("outcome events enabled (topic=%s)", cfg.Kafka.Topic)
	}
	if cfg.Email.ReviewerEmail != "" {
		sender, err := newEmailSender(&cfg.Email)
		if err != nil {
			return err
		}
		sinks = append(sinks, service.NewReviewNotifier(sender, cfg.Email.ReviewerEmail))
	}

	// Processing pipeline
	engineClient := engine.NewClient(&cfg.Engine)
	coordinator := service.NewCoordinator(&cfg.Engine,
		engineClient, engine.NewListener(&cfg.Engine), inFlight, m, sinks...)
	log.Printf("engine %s (protocol=%s, idle_timeout=%s, max_retries=%d)",
		cfg.Engine.BaseURL, cfg.Engine.Protocol, cfg.Engine.IdleTimeout, cfg.Engine.MaxRetries)

	docSvc := service.NewDocumentService(docRepo, ledgerRepo, verifier, s3Client, coordinator, service.DocumentServiceConfig{
		Bucket:        cfg.S3.Bucket,
		MaxFileSizeMB: cfg.S3.MaxFileSizeMB,
	})

	var worker *service.QueueWorker
	if cfg.Queue.Enabled {
		worker = service.NewQueueWorker(docRepo, docSvc, service.QueueConfig{
			PollInterval: time.Duration(cfg.Queue.PollIntervalSecs) * time.Second,
			Concurrency:  cfg.Queue.Concurrency,
		})
		go worker.Start(ctx)
	}

	// Initialize handlers
	documentH := handler.NewDocumentHandler(docSvc)
	healthH := handler.NewHealthHandler(
		handler.ReadinessCheck{Name: "database", Critical: true, Ping: db.PingContext},
		handler.ReadinessCheck{Name: "storage", Ping: s3Client.Ping},
		handler.ReadinessCheck{Name: "engine", Ping: func(ctx context.Context) error {
			_, err := engineClient.CheckHealth(ctx)
			return err
		}},
	)

	// Setup router
	r := router.Setup(documentH, healthH, m, cfg.CORS.AllowedOrigins)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	if worker != nil {
		stop()
		worker.Wait()
	}
	return nil
}

func newGuard(cfg *config.Config) (port.InFlightGuard, func(), error) {
	switch cfg.Guard.Backend {
	case "redis":
		rdb, err := guard.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Printf("in-flight guard: redis at %s (lease=%s)", cfg.Redis.Addr, cfg.Guard.LeaseTTL)
		return guard.NewRedisGuard(rdb, cfg.Guard.LeaseTTL), func() { _ = rdb.Close() }, nil
	case "memory", "":
		return guard.NewMemoryGuard(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown guard backend %q: must be memory or redis", cfg.Guard.Backend)
	}
}

func newEmailSender(cfg *config.EmailConfig) (port.EmailSender, error) {
	if cfg.Provider == "ses" {
		sender, err := ses.NewSESSender(cfg.Region, cfg.FromAddress, cfg.FromName, cfg.FrontendURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SES sender: %w", err)
		}
		return sender, nil
	}
	return noop.NewNoopSender(cfg.FrontendURL), nil
}
