package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stockpile_manager/internal/app"
	"stockpile_manager/internal/domain/notification"
	"stockpile_manager/internal/infra/config"
	idb "stockpile_manager/internal/infra/database"
	"stockpile_manager/internal/infra/logger"
	"stockpile_manager/internal/infra/scheduler"

	"github.com/spf13/cobra"
)

var failOnDeliveryError bool

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Run one expiry notification batch and print the result as JSON",
	Long: `notify selects items reaching the 30-day and 7-day thresholds, sends one
message per family and prints the batch result on stdout. The exit status is
non-zero when the run fails. Per-family delivery failures are reported in the
result; --fail-on-delivery-error turns them into a non-zero exit as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig((*config.AppConfig).Validate)
		if err != nil {
			return err
		}
		return notifyOnce(cmd, cfg)
	},
}

func notifyOnce(cmd *cobra.Command, cfg *config.AppConfig) error {
	log := logger.Init(cfg)
	log.SetOutput(os.Stderr) // Keep stdout for the JSON result

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connCtx, cancel := connectTimeout()
	db, err := idb.NewPostgresConnection(connCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return err
	}
	defer db.Close()

	ms, err := newMessaging(cfg, log)
	if err != nil {
		return err
	}

	notifier := app.NewExpiryNotifier(idb.NewPostgresNotificationRepository(db), ms.sender, cfg.NotifyLocation, cfg.NotifyConcurrency, log)
	res, runErr := scheduler.NewRunGuard(notifier).Run(ctx)

	if res != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}
	return notifyExitError(res, runErr, failOnDeliveryError)
}

// notifyExitError decides the command's outcome. Mixed per-family results
// are a successful run unless failOnDelivery is set.
func notifyExitError(res *notification.BatchResult, runErr error, failOnDelivery bool) error {
	if runErr != nil {
		return runErr
	}
	if failOnDelivery && res != nil {
		if failed := res.Failed(); failed > 0 {
			return fmt.Errorf("%d family notification(s) failed", failed)
		}
	}
	return nil
}

func init() {
	notifyCmd.Flags().BoolVar(&failOnDeliveryError, "fail-on-delivery-error", false, "exit non-zero when any family could not be notified")
}
