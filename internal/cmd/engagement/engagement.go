// Package engagement parses engagement command flags and launches the
// engagement service runtime.
package engagement

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	entrypoint "github.com/emberforum/engagement/internal/platform/cmd"
	"github.com/emberforum/engagement/internal/platform/timeouts"
	engagementdomain "github.com/emberforum/engagement/internal/services/engagement/domain"
	engagementsqlite "github.com/emberforum/engagement/internal/services/engagement/storage/sqlite"
	notificationsapp "github.com/emberforum/engagement/internal/services/notifications/app"
	notificationsdomain "github.com/emberforum/engagement/internal/services/notifications/domain"
	notificationssqlite "github.com/emberforum/engagement/internal/services/notifications/storage/sqlite"
)

// Config holds engagement command configuration.
type Config struct {
	EngagementDBPath    string        `env:"EMBERFORUM_ENGAGEMENT_DB_PATH" envDefault:"data/engagement.db"`
	NotificationsDBPath string        `env:"EMBERFORUM_NOTIFICATIONS_DB_PATH" envDefault:"data/notifications.db"`
	WorkerPollInterval  time.Duration `env:"EMBERFORUM_WORKER_POLL_INTERVAL" envDefault:"30s"`
	WorkerBatchSize     int           `env:"EMBERFORUM_WORKER_BATCH_SIZE" envDefault:"50"`
	RetryBaseDelay      time.Duration `env:"EMBERFORUM_RETRY_BASE_DELAY" envDefault:"30s"`
	RetryMaxDelay       time.Duration `env:"EMBERFORUM_RETRY_MAX_DELAY" envDefault:"15m"`
	RetryMaxAttempts    int           `env:"EMBERFORUM_RETRY_MAX_ATTEMPTS" envDefault:"6"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.EngagementDBPath, "engagement-db-path", cfg.EngagementDBPath, "The engagement SQLite database path")
	fs.StringVar(&cfg.NotificationsDBPath, "notifications-db-path", cfg.NotificationsDBPath, "The notifications SQLite database path")
	fs.DurationVar(&cfg.WorkerPollInterval, "worker-poll-interval", cfg.WorkerPollInterval, "Delivery worker poll interval")
	fs.IntVar(&cfg.WorkerBatchSize, "worker-batch-size", cfg.WorkerBatchSize, "Deliveries processed per worker scan per channel")
	fs.DurationVar(&cfg.RetryBaseDelay, "retry-base-delay", cfg.RetryBaseDelay, "Base delivery retry delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum delivery retry delay")
	fs.IntVar(&cfg.RetryMaxAttempts, "retry-max-attempts", cfg.RetryMaxAttempts, "Delivery attempts before a terminal skip")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Services bundles the wired runtime components for the engagement process.
type Services struct {
	Engine     *engagementdomain.Engine
	Dispatcher *notificationsdomain.Dispatcher
	Worker     *notificationsapp.Worker

	engagementStore    *engagementsqlite.Store
	notificationsStore *notificationssqlite.Store
}

// Close releases the underlying stores.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	if err := s.notificationsStore.Close(); err != nil {
		firstErr = err
	}
	if err := s.engagementStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// BuildServices opens both stores and wires the engine, dispatcher, and
// delivery worker.
func BuildServices(cfg Config) (*Services, error) {
	engagementStore, err := engagementsqlite.Open(cfg.EngagementDBPath)
	if err != nil {
		return nil, fmt.Errorf("open engagement store: %w", err)
	}
	notificationsStore, err := notificationssqlite.Open(cfg.NotificationsDBPath)
	if err != nil {
		_ = engagementStore.Close()
		return nil, fmt.Errorf("open notifications store: %w", err)
	}

	dispatcher, err := notificationsdomain.NewDispatcher(notificationsdomain.Config{
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		MaxAttempts:    cfg.RetryMaxAttempts,
	}, notificationsdomain.Deps{
		Store: notificationsStore,
		Push:  &notificationsapp.LogPushSender{},
		Email: &notificationsapp.LogEmailSender{},
	})
	if err != nil {
		closeBoth(engagementStore, notificationsStore)
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}
	notifier, err := notificationsapp.NewNotifier(dispatcher, nil)
	if err != nil {
		closeBoth(engagementStore, notificationsStore)
		return nil, fmt.Errorf("build notifier: %w", err)
	}
	engine, err := engagementdomain.NewEngine(engagementdomain.DefaultAwardConfig(), engagementdomain.Deps{
		Store:    engagementStore,
		Missions: engagementdomain.DefaultMissionCatalog(),
		Badges:   engagementdomain.DefaultBadgeRegistry(),
		Notifier: notifier,
	})
	if err != nil {
		closeBoth(engagementStore, notificationsStore)
		return nil, fmt.Errorf("build engine: %w", err)
	}
	worker, err := notificationsapp.NewWorker(notificationsapp.WorkerConfig{
		PollInterval: cfg.WorkerPollInterval,
		BatchSize:    cfg.WorkerBatchSize,
	}, dispatcher, nil)
	if err != nil {
		closeBoth(engagementStore, notificationsStore)
		return nil, fmt.Errorf("build worker: %w", err)
	}

	return &Services{
		Engine:             engine,
		Dispatcher:         dispatcher,
		Worker:             worker,
		engagementStore:    engagementStore,
		notificationsStore: notificationsStore,
	}, nil
}

func closeBoth(engagementStore *engagementsqlite.Store, notificationsStore *notificationssqlite.Store) {
	_ = notificationsStore.Close()
	_ = engagementStore.Close()
}

// Run starts the engagement service runtime: it wires the services and runs
// the delivery worker until the context is canceled.
func Run(ctx context.Context, cfg Config) error {
	options := entrypoint.RunOptions{ShutdownTimeout: timeouts.Shutdown}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceEngagement, options, func(ctx context.Context) error {
		services, err := BuildServices(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := services.Close(); err != nil {
				log.Printf("close stores: %v", err)
			}
		}()

		log.Printf("engagement service started (worker poll %s)", cfg.WorkerPollInterval)
		if err := services.Worker.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("delivery worker: %w", err)
		}
		return nil
	})
}
