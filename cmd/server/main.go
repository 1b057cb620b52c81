package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mailwatch-ops/mailwatch-backend-go/internal/api"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/config"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/core/alerting"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/core/facts"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/notify"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/scheduler"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/websocket"
	"github.com/mailwatch-ops/mailwatch-backend-go/pkg/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}
	defer db.Close()

	// Run migrations
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
			log.Fatal("Failed to run migrations: ", err)
		}
	}

	// Create repositories
	repos := database.NewRepositories(db, log)

	// Load operator rule files on top of the seeded rules
	if cfg.Alerting.RuleDir != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := alerting.LoadRuleFiles(ctx, cfg.Alerting.RuleDir, repos.Rules, log); err != nil {
			log.WithError(err).Warn("Failed to load rule files")
		}
		cancel()
	}

	// Create WebSocket hub
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	// Notification channels and dispatcher
	channels := buildChannels(cfg, log)
	dispatcher := notify.NewDispatcher(channels,
		config.Duration(cfg.Notifications.SendTimeout, 10*time.Second),
		cfg.Notifications.FireRetries,
		config.Duration(cfg.Notifications.RetryBackoff, 2*time.Second),
		log)
	notifier := notify.NewIncidentNotifier(dispatcher, repos.Rules, repos.Incidents, log)

	// Fact snapshot provider over the collector tables
	provider := facts.NewSQLProvider(repos.Facts,
		config.Duration(cfg.Facts.MetricStaleness, 2*time.Minute),
		config.Duration(cfg.Facts.QueryTimeout, 5*time.Second),
		log)

	// Alert evaluation engine
	engine := alerting.NewEngine(alerting.Config{
		TickBudget:  config.Duration(cfg.Alerting.TickBudget, 10*time.Second),
		Level1After: config.Duration(cfg.Alerting.Level1After, 15*time.Minute),
		Level2After: config.Duration(cfg.Alerting.Level2After, 30*time.Minute),
	}, repos.Rules, repos.Incidents, provider, notifier, wsHub, log)

	// Scheduler drives evaluation, escalation and the collectors
	sched := scheduler.New(log)
	if cfg.Alerting.Enabled {
		evalInterval := config.Duration(cfg.Alerting.EvaluationInterval, 30*time.Second)
		escInterval := config.Duration(cfg.Alerting.EscalationInterval, 60*time.Second)

		if err := sched.AddJob("evaluation", evalInterval, engine.EvaluationTick); err != nil {
			log.Fatal("Failed to schedule evaluation tick: ", err)
		}
		if err := sched.AddJob("escalation", escInterval, engine.EscalationTick); err != nil {
			log.Fatal("Failed to schedule escalation tick: ", err)
		}
	}

	if cfg.Collectors.System.Enabled {
		collector := facts.NewSystemCollector(repos.Facts, cfg.Collectors.System.NodeID, log)
		interval := config.Duration(cfg.Collectors.System.Interval, 30*time.Second)
		if err := sched.AddJob("system_collector", interval, func(ctx context.Context) error {
			collector.Collect(ctx)
			return nil
		}); err != nil {
			log.Fatal("Failed to schedule system collector: ", err)
		}
	}

	if cfg.Collectors.Redis.Enabled {
		collector := facts.NewRedisCollector(cfg.Collectors.Redis.Addr, cfg.Collectors.Redis.Password,
			cfg.Collectors.Redis.DB, repos.Facts, cfg.Collectors.Redis.NodeID, log)
		defer collector.Close()
		interval := config.Duration(cfg.Collectors.Redis.Interval, 30*time.Second)
		if err := sched.AddJob("redis_collector", interval, func(ctx context.Context) error {
			collector.Collect(ctx)
			return nil
		}); err != nil {
			log.Fatal("Failed to schedule redis collector: ", err)
		}
	}

	if err := sched.Start(); err != nil {
		log.Fatal("Failed to start scheduler: ", err)
	}

	// Initialize router
	router := api.NewRouter(cfg, repos, log, wsHub)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Infof("Starting mailwatch backend on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	if err := sched.Stop(); err != nil {
		log.WithError(err).Warn("Failed to stop scheduler gracefully")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Info("Server exited")
}

// buildChannels turns channel config entries into live notification channels.
// Unknown types are skipped with a warning rather than refusing to start.
func buildChannels(cfg *config.Config, log *logrus.Logger) []notify.Channel {
	var channels []notify.Channel
	for _, cc := range cfg.Notifications.Channels {
		if !cc.Enabled {
			continue
		}
		switch cc.Type {
		case "telegram":
			channels = append(channels, notify.NewTelegramChannel(cc.ID, cc.BotToken, cc.ChatID))
		case "email":
			channels = append(channels, notify.NewEmailChannel(cc.ID, cc.SMTPHost, cc.SMTPPort,
				cc.SMTPUser, cc.SMTPPassword, cc.From, cc.To))
		case "slack":
			channels = append(channels, notify.NewSlackChannel(cc.ID, cc.WebhookURL))
		case "webhook":
			channels = append(channels, notify.NewWebhookChannel(cc.ID, cc.WebhookURL, cc.Headers))
		default:
			log.WithField("type", cc.Type).Warn("Unknown notification channel type, skipping")
		}
	}
	return channels
}
