package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"royal-decrees/internal/calendar"
	"royal-decrees/internal/repository"
	"royal-decrees/internal/service"
	"royal-decrees/internal/snapshot"
)

func newWarTableCmd() *cobra.Command {
	var (
		telegramID   int64
		date         string
		snapshotFile string
	)

	cmd := &cobra.Command{
		Use:   "wartable",
		Short: "Print a monarch's war table for the month around a date",
		Long: `Prints the month grid with decree markers.

Markers come from the database by default. With --snapshot the decrees are
read from a snapshot file and the database is not opened.

Example:
  royaldecrees wartable --telegram-id 12345 --date 2025-11-30
  royaldecrees wartable --snapshot snapshots/monarch-1.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := cfg.Location()
			center := time.Now().In(loc)
			if date != "" {
				parsed, err := calendar.ParseDateKey(date, loc)
				if err != nil {
					return err
				}
				center = parsed
			}

			var markers map[string]calendar.Marker
			switch {
			case snapshotFile != "":
				snap, err := snapshot.ReadFile(snapshotFile)
				if err != nil {
					return err
				}
				markers = calendar.Project(snap.Decrees, center, cfg.CalendarWindow)
			case telegramID != 0:
				var err error
				markers, err = warTableFromDB(cmd, telegramID, center)
				if err != nil {
					return err
				}
			default:
				return errors.New("either --telegram-id or --snapshot is required")
			}

			_, err := fmt.Fprintln(cmd.OutOrStdout(), service.RenderMonth(center, markers))
			return err
		},
	}

	cmd.Flags().Int64Var(&telegramID, "telegram-id", 0, "telegram user id of the monarch")
	cmd.Flags().StringVar(&date, "date", "", "center date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&snapshotFile, "snapshot", "", "read decrees from a snapshot file")
	return cmd
}

func warTableFromDB(cmd *cobra.Command, telegramID int64, center time.Time) (map[string]calendar.Marker, error) {
	db, err := repository.NewDB(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	monarchRepo := repository.NewMonarchRepository(db)
	monarch, err := monarchRepo.FindByTelegramID(cmd.Context(), telegramID)
	if err != nil {
		return nil, fmt.Errorf("find monarch %d: %w", telegramID, err)
	}

	decreeSvc := service.NewDecreeService(repository.NewDecreeRepository(db), monarchRepo, snapshot.NewStore(cfg.SnapshotDir), nil, logger)
	return service.NewCalendarService(decreeSvc, cfg.CalendarWindow, cfg.Location()).WarTable(cmd.Context(), monarch, center)
}
