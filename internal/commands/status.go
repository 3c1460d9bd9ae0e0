package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/rollcall/internal/calendar"
	"github.com/dwsmith1983/rollcall/internal/config"
	"github.com/dwsmith1983/rollcall/internal/provider"
)

const statusTimeout = 10 * time.Second

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var (
		configPath string
		studentID  string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show watermark progress and recent notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(configPath, studentID, limit)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&studentID, "student", "", "Only show notifications for this student")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of notifications to show")
	return cmd
}

func runStatus(configPath, studentID string, limit int) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	loc, err := config.Location(cfg)
	if err != nil {
		return err
	}

	prov, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	if err := prov.Start(ctx); err != nil {
		return fmt.Errorf("connecting to provider: %w", err)
	}
	defer func() { _ = prov.Stop(ctx) }()

	if err := showWatermark(ctx, prov, loc, time.Now()); err != nil {
		return err
	}
	fmt.Println()
	return showNotifications(ctx, prov, studentID, limit)
}

func showWatermark(ctx context.Context, prov provider.Provider, loc *time.Location, now time.Time) error {
	wm, err := prov.GetWatermark(ctx)
	if err != nil {
		return fmt.Errorf("reading watermark: %w", err)
	}
	yesterday := calendar.Yesterday(now, loc)

	bold := color.New(color.Bold)
	_, _ = bold.Println("Watermark:")
	fmt.Printf("  Last backfill:   %s\n", orNever(wm.LastAbsenceBackfillDate))
	fmt.Printf("  Last streak run: %s\n", orNever(wm.LastStreakRunDate))
	fmt.Printf("  Yesterday:       %s (%s)\n", yesterday, loc)

	switch {
	case wm.LastStreakRunDate == "":
		fmt.Printf("  Progress:        %s\n", color.YellowString("never run"))
	case wm.LastStreakRunDate >= yesterday:
		fmt.Printf("  Progress:        %s\n", color.GreenString("up to date"))
	default:
		days, err := calendar.Days(wm.LastStreakRunDate, yesterday)
		if err == nil {
			fmt.Printf("  Progress:        %s\n", color.YellowString("%d day(s) behind", len(days)-1))
		}
	}

	if wm.ProcessingLease.ValidAt(now) {
		expires := time.UnixMilli(wm.ProcessingLease.ExpiresAtEpochMs)
		fmt.Printf("  Lease:           %s by %s until %s\n",
			color.YellowString("HELD"), wm.ProcessingLease.Holder, expires.In(loc).Format(time.RFC3339))
	} else {
		fmt.Printf("  Lease:           %s\n", color.GreenString("free"))
	}
	return nil
}

func showNotifications(ctx context.Context, prov provider.Provider, studentID string, limit int) error {
	notes, err := prov.ListNotifications(ctx, studentID, limit)
	if err != nil {
		return fmt.Errorf("listing notifications: %w", err)
	}

	bold := color.New(color.Bold)
	_, _ = bold.Println("Recent notifications:")
	if len(notes) == 0 {
		fmt.Println("  none")
		return nil
	}
	for _, n := range notes {
		state := color.RedString("OPEN")
		if n.Resolved {
			state = color.GreenString("RESOLVED")
		}
		scope := "all subjects"
		if n.SubjectID != "" {
			scope = n.SubjectID
		}
		fmt.Printf("  %s  %-8s  %-12s  streak=%d  %s  [%s]\n",
			n.Date, state, n.StudentID, n.Streak, scope, n.ID)
	}
	return nil
}

func orNever(day string) string {
	if day == "" {
		return color.YellowString("never")
	}
	return day
}
