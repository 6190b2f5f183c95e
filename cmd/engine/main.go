package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kursadbilgin/lesson-engine/internal/config"
	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"github.com/kursadbilgin/lesson-engine/internal/handler"
	"github.com/kursadbilgin/lesson-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/lesson-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/lesson-engine/internal/infra/redis"
	"github.com/kursadbilgin/lesson-engine/internal/observability"
	"github.com/kursadbilgin/lesson-engine/internal/provider"
	"github.com/kursadbilgin/lesson-engine/internal/queue"
	"github.com/kursadbilgin/lesson-engine/internal/ratelimit"
	"github.com/kursadbilgin/lesson-engine/internal/render"
	"github.com/kursadbilgin/lesson-engine/internal/repository"
	"github.com/kursadbilgin/lesson-engine/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	// Session times are interpreted in OPERATING_TIMEZONE even on images
	// without a zoneinfo database.
	_ "time/tzdata"
)

const startupTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("lesson-engine exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	location, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startupCtx, cancelStartup := context.WithTimeout(ctx, startupTimeout)
	defer cancelStartup()

	db, err := postgresql.NewPostgres(startupCtx, cfg.DatabaseDSN, postgresql.DefaultPoolOptions)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	defer postgresql.Close(db) //nolint:errcheck

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}

	rdb, err := infraredis.NewRedis(startupCtx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	broker, err := queue.NewRabbitMQ(startupCtx, cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	publisher := queue.NewRabbitMQPublisher(broker)
	defer publisher.Close()

	var throttle ratelimit.Throttle = ratelimit.Unlimited{}
	if cfg.ChannelRateLimitPerSec > 0 {
		throttle, err = infraredis.NewChannelThrottle(rdb, cfg.ChannelRateLimitPerSec, nil)
		if err != nil {
			return fmt.Errorf("channel throttle initialization failed: %w", err)
		}
	} else {
		logger.Warn("channel throttling disabled")
	}

	providers, err := newProviders(cfg)
	if err != nil {
		return err
	}
	verifyProviders(startupCtx, logger, providers)

	renderer, err := render.New()
	if err != nil {
		return fmt.Errorf("template initialization failed: %w", err)
	}

	metrics := observability.NewMetrics()

	sessions := repository.NewGormSessionRepo(db)
	users := repository.NewGormUserRepo(db)
	students := repository.NewGormStudentRepo(db)
	preferences := repository.NewGormPreferenceRepo(db)
	markers := repository.NewGormMarkerRepo(db)

	dispatcher, err := service.NewDispatcher(service.DispatcherDeps{
		Preferences:   preferences,
		Users:         users,
		Notifications: repository.NewGormNotificationRepo(db),
		Deliveries:    repository.NewGormDeliveryRepo(db),
		Renderer:      renderer,
		Providers:     providers,
		Throttle:      throttle,
	}, logger.Named("dispatcher"))
	if err != nil {
		return err
	}
	dispatcher.SetMetrics(metrics)

	converter, err := queue.NewConversionPublisher(publisher, logger.Named("conversion"))
	if err != nil {
		return err
	}

	statusEngine, err := service.NewClassStatusEngine(sessions, converter, location, logger.Named("status"))
	if err != nil {
		return err
	}
	statusEngine.SetMetrics(metrics)

	reminders, err := service.NewReminderDetector(sessions, users, preferences, markers, dispatcher, location, logger.Named("reminders"))
	if err != nil {
		return err
	}
	reminders.SetMetrics(metrics)

	lowBalance, err := service.NewLowBalanceSweeper(students, markers, dispatcher, cfg.LowBalanceThreshold, location, logger.Named("low-balance"))
	if err != nil {
		return err
	}
	lowBalance.SetMetrics(metrics)

	trialExpiry, err := service.NewTrialExpirySweeper(students, markers, dispatcher, cfg.TrialExpiryLookahead, location, logger.Named("trial-expiry"))
	if err != nil {
		return err
	}
	trialExpiry.SetMetrics(metrics)

	scheduler := service.NewTaskScheduler(logger.Named("scheduler"))
	scheduler.SetMetrics(metrics)

	jobs := []struct {
		name     string
		interval time.Duration
		task     service.Task
	}{
		{name: "status-sweep", interval: cfg.StatusSweepInterval, task: statusEngine.Run},
		{name: "reminder-24h", interval: cfg.Reminder24hInterval, task: reminders.Job(domain.Lead24Hours)},
		{name: "reminder-1h", interval: cfg.Reminder1hInterval, task: reminders.Job(domain.Lead1Hour)},
		{name: "reminder-15m", interval: cfg.Reminder15mInterval, task: reminders.Job(domain.Lead15Minutes)},
		{name: "low-balance-sweep", interval: cfg.LowBalanceInterval, task: lowBalance.Run},
		{name: "trial-expiry-sweep", interval: cfg.TrialExpiryInterval, task: trialExpiry.Run},
	}
	for _, job := range jobs {
		if err := scheduler.Register(job.name, job.interval, job.task); err != nil {
			return err
		}
	}

	app, err := handler.NewOpsApp(logger.Named("ops"), metrics, scheduler,
		handler.PostgresCheck(sqlDB),
		handler.RedisCheck(rdb),
		handler.BrokerCheck(broker.Ping),
	)
	if err != nil {
		return err
	}

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	logger.Info("lesson-engine started",
		zap.Int("opsPort", cfg.OpsPort),
		zap.String("timezone", location.String()),
		zap.Int("jobs", len(jobs)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.OpsPort)); err != nil {
			return fmt.Errorf("ops server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		stopErr := scheduler.Stop(shutdownCtx)
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown failed", zap.Error(err))
		}
		if errors.Is(stopErr, context.DeadlineExceeded) {
			logger.Warn("jobs still running at shutdown deadline")
			return nil
		}
		return stopErr
	})

	return g.Wait()
}

func newProviders(cfg *config.Config) (map[domain.Channel]provider.Provider, error) {
	var email provider.Provider
	switch cfg.EmailProvider {
	case config.EmailProviderSendgrid:
		email = provider.NewSendgridProvider(cfg.SendgridAPIKey, cfg.EmailFromAddress, cfg.EmailFromName)
	default:
		email = provider.NewSMTPProvider(provider.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Secure:      cfg.SMTPSecure,
			Username:    cfg.SMTPUser,
			Password:    cfg.SMTPPassword,
			FromAddress: cfg.EmailFromAddress,
			FromName:    cfg.EmailFromName,
		})
	}

	sms, err := provider.NewGatewayProvider(domain.ChannelSMS, cfg.SMSWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("sms gateway initialization failed: %w", err)
	}
	whatsapp, err := provider.NewGatewayProvider(domain.ChannelWhatsApp, cfg.WhatsAppWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("whatsapp gateway initialization failed: %w", err)
	}

	return map[domain.Channel]provider.Provider{
		domain.ChannelEmail:    email,
		domain.ChannelSMS:      sms,
		domain.ChannelWhatsApp: whatsapp,
	}, nil
}

// verifyProviders only warns: an unreachable channel degrades to failed
// delivery records instead of blocking the engine.
func verifyProviders(ctx context.Context, logger *zap.Logger, providers map[domain.Channel]provider.Provider) {
	for channel, adaptor := range providers {
		if !adaptor.Configured() {
			logger.Warn("channel adaptor not configured", zap.String("channel", channel.String()))
			continue
		}
		if err := adaptor.Verify(ctx); err != nil {
			logger.Warn("channel adaptor verification failed",
				zap.String("channel", channel.String()),
				zap.Error(err),
			)
		}
	}
}
