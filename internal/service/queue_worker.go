package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"fraclaims/internal/domain"
	"fraclaims/internal/port"
)

// QueueConfig holds settings for the processing queue worker.
type QueueConfig struct {
	PollInterval time.Duration
	Concurrency  int
	// RunTimeout bounds one dispatched processing run.
	RunTimeout time.Duration
}

// QueueWorker polls for queued documents and dispatches them for processing.
type QueueWorker struct {
	docRepo    port.DocumentRepository
	docService DocumentService
	cfg        QueueConfig
	wg         sync.WaitGroup
}

// NewQueueWorker creates a new QueueWorker.
func NewQueueWorker(docRepo port.DocumentRepository, docService DocumentService, cfg QueueConfig) *QueueWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}
	return &QueueWorker{
		docRepo:    docRepo,
		docService: docService,
		cfg:        cfg,
	}
}

// Start runs the polling loop until ctx is canceled. It blocks until all
// in-flight runs have finished.
func (w *QueueWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, w.cfg.Concurrency)

	log.Printf("queueWorker: started (poll=%s, concurrency=%d)", w.cfg.PollInterval, w.cfg.Concurrency)

	for {
		select {
		case <-ctx.Done():
			log.Printf("queueWorker: shutting down, waiting for in-flight runs...")
			w.wg.Wait()
			log.Printf("queueWorker: shutdown complete")
			return
		case <-ticker.C:
			w.poll(ctx, sem)
		}
	}
}

func (w *QueueWorker) poll(ctx context.Context, sem chan struct{}) {
	available := w.cfg.Concurrency - len(sem)
	if available <= 0 {
		return
	}

	docs, err := w.docRepo.ClaimQueued(ctx, available)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("queueWorker: ClaimQueued error: %v", err)
		}
		return
	}

	for i := range docs {
		doc := docs[i]

		sem <- struct{}{}
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-sem }()

			// Runs finish even while the worker shuts down.
			runCtx, cancel := context.WithTimeout(context.Background(), w.cfg.RunTimeout)
			defer cancel()

			log.Printf("queueWorker: dispatching document %s", doc.ID)
			outcome, err := w.docService.ProcessDocument(runCtx, &doc)
			switch {
			case errors.Is(err, domain.ErrAlreadyInFlight):
				log.Printf("queueWorker: document %s is already being processed elsewhere", doc.ID)
			case err != nil:
				log.Printf("queueWorker: document %s: %v", doc.ID, err)
			default:
				log.Printf("queueWorker: document %s finished as %s (%s)", doc.ID, outcome.State, outcome.Status)
			}
		}()
	}
}

// Wait blocks until every dispatched run has finished.
func (w *QueueWorker) Wait() {
	w.wg.Wait()
}
