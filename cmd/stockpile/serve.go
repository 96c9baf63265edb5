package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"stockpile_manager/internal/app"
	"stockpile_manager/internal/domain/labeldate"
	"stockpile_manager/internal/infra/archive"
	"stockpile_manager/internal/infra/config"
	idb "stockpile_manager/internal/infra/database"
	"stockpile_manager/internal/infra/httpapi"
	"stockpile_manager/internal/infra/logger"
	"stockpile_manager/internal/infra/ocr"
	"stockpile_manager/internal/infra/scheduler"
	"stockpile_manager/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the optional in-process schedule and the chat bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig((*config.AppConfig).ValidateServer)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func serve(cfg *config.AppConfig) error {
	log := logger.Init(cfg)
	log.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"provider":    cfg.MessagingProvider,
		"timezone":    cfg.NotifyTimezone,
	}).Info("Stockpile manager starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connCtx, cancel := connectTimeout()
	db, err := idb.NewPostgresConnection(connCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("Database connection established successfully.")

	familyRepo := idb.NewPostgresFamilyRepository(db)
	itemRepo := idb.NewPostgresItemRepository(db)
	bagRepo := idb.NewPostgresBagRepository(db)
	notificationRepo := idb.NewPostgresNotificationRepository(db)

	ms, err := newMessaging(cfg, log)
	if err != nil {
		return err
	}

	notifier := app.NewExpiryNotifier(notificationRepo, ms.sender, cfg.NotifyLocation, cfg.NotifyConcurrency, log)
	guard := scheduler.NewRunGuard(notifier)

	deps := httpapi.Deps{
		Inventory: app.NewInventoryService(familyRepo, itemRepo, bagRepo, log),
		Families:  app.NewFamilyService(familyRepo, ms.validator, log),
		Notifier:  guard,
	}
	if ms.line != nil {
		deps.LineWebhook = ms.line.WebhookHandler()
	}
	labels, err := newLabelService(ctx, cfg, log)
	if err != nil {
		return err
	}
	if labels != nil {
		deps.Labels = labels
	}

	if cfg.CronSpecNotify != "" {
		sched := scheduler.NewNotificationScheduler(guard, log, cfg.CronSpecNotify, cfg.NotifyLocation)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()
	} else {
		log.Info("CRON_SPEC_NOTIFY is empty, relying on the HTTP trigger")
	}

	if ms.bot != nil {
		telegram.RegisterBotCommands(ms.bot, log.WithField("component", "telegram"))
		go ms.bot.Start()
		defer ms.bot.Stop()
		log.Info("Telegram bot polling started")
	}

	server := httpapi.NewServer(deps, httpapi.Options{
		JWTSecret:      cfg.AuthJWTSecret,
		CronSecret:     cfg.CronSecret,
		CronAuthExempt: cfg.CronAuthExempt(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, log)
	httpServer := httpapi.NewHTTPServer(net.JoinHostPort("", cfg.Port), server.Router())

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down application...")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	log.Info("Application shut down gracefully.")
	return nil
}

// newLabelService returns nil when no OCR key is configured.
func newLabelService(ctx context.Context, cfg *config.AppConfig, log *logrus.Logger) (*app.LabelService, error) {
	if cfg.OCRSpaceAPIKey == "" {
		log.Warn("OCR_SPACE_API_KEY is not set, label scanning is disabled")
		return nil, nil
	}
	recognizer := ocr.NewClient(cfg.OCRSpaceEndpoint, cfg.OCRSpaceAPIKey, log)
	extractor := labeldate.Extractor{MinYear: cfg.OCRMinYear, MaxYear: cfg.OCRMaxYear}

	var store labeldate.Archive
	if cfg.LabelArchiveBucket != "" {
		s3Archive, err := archive.NewS3Archive(ctx, cfg.LabelArchiveBucket, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		store = s3Archive
		log.WithField("bucket", cfg.LabelArchiveBucket).Info("Label images are archived to S3")
	}
	return app.NewLabelService(recognizer, extractor, store, log), nil
}
