// Package app hosts the notifications delivery worker and the adapters that
// connect the dispatcher to the engagement engine and to concrete senders.
package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/emberforum/engagement/internal/services/notifications/storage"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultBatchSize    = 50
)

// DeliveryProcessor retries due channel deliveries.
type DeliveryProcessor interface {
	ProcessDueDeliveries(ctx context.Context, channel storage.DeliveryChannel, limit int) (int, error)
}

// WorkerConfig tunes the delivery retry loop.
type WorkerConfig struct {
	// PollInterval is how often the worker scans for due deliveries.
	PollInterval time.Duration
	// BatchSize caps how many deliveries one scan processes per channel.
	BatchSize int
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	return c
}

// Worker periodically retries failed push and email deliveries.
type Worker struct {
	cfg       WorkerConfig
	processor DeliveryProcessor
	logf      func(format string, args ...any)
}

// NewWorker constructs a delivery retry worker.
func NewWorker(cfg WorkerConfig, processor DeliveryProcessor, logf func(format string, args ...any)) (*Worker, error) {
	if processor == nil {
		return nil, errors.New("delivery processor is required")
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Worker{cfg: cfg.withDefaults(), processor: processor, logf: logf}, nil
}

// Run processes due deliveries until the context is canceled. One scan runs
// immediately on start so restarts do not delay overdue deliveries.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *Worker) scan(ctx context.Context) {
	for _, channel := range []storage.DeliveryChannel{storage.DeliveryChannelPush, storage.DeliveryChannelEmail} {
		if ctx.Err() != nil {
			return
		}
		processed, err := w.processor.ProcessDueDeliveries(ctx, channel, w.cfg.BatchSize)
		if err != nil {
			w.logf("process due %s deliveries: %v", channel, err)
			continue
		}
		if processed > 0 {
			w.logf("processed %d due %s deliveries", processed, channel)
		}
	}
}
