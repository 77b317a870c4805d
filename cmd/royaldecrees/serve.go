package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"royal-decrees/internal/bot"
	"royal-decrees/internal/repository"
	"royal-decrees/internal/service"
	"royal-decrees/internal/snapshot"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the report scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := repository.NewDB(cfg.DatabaseURL, logger)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			logger.Info("schema migrated", zap.String("database", cfg.DatabaseURL))
			return nil
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := repository.NewDB(cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	monarchRepo := repository.NewMonarchRepository(db)
	decreeRepo := repository.NewDecreeRepository(db)
	snapshots := snapshot.NewStore(cfg.SnapshotDir)

	decreeSvc := service.NewDecreeService(decreeRepo, monarchRepo, snapshots, nil, logger)
	reminderSvc := service.NewReminderService(decreeSvc)
	calendarSvc := service.NewCalendarService(decreeSvc, cfg.CalendarWindow, cfg.Location())

	telegramBot, err := bot.New(cfg.TelegramToken, monarchRepo, decreeSvc, reminderSvc, calendarSvc, logger)
	if err != nil {
		return err
	}
	decreeSvc.SetNotifier(telegramBot)

	scheduler := service.NewSchedulerService(cfg.Location(), 0, logger)
	report := func(ctx context.Context) {
		if err := telegramBot.SendDailyReports(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("send reports", zap.Error(err))
		}
	}
	if cfg.ReportInterval > 0 {
		if _, err := scheduler.ScheduleInterval("report", cfg.ReportInterval, report); err != nil {
			return fmt.Errorf("schedule reports: %w", err)
		}
	}
	if cfg.MorningReport != "" {
		if _, err := scheduler.ScheduleDaily("morning-report", cfg.MorningReport, report); err != nil {
			return fmt.Errorf("schedule morning report: %w", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("royal decrees bot started",
		zap.String("timezone", cfg.Location().String()),
		zap.Duration("report_interval", cfg.ReportInterval),
		zap.String("morning_report", cfg.MorningReport),
	)
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("bot stopped with error: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
