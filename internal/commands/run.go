package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/rollcall/internal/calendar"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the nightly job: absence backfill, then the streak engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNightly(cmd.Context(), configPath, asJSON)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func runNightly(ctx context.Context, configPath string, asJSON bool) error {
	a, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	report, runErr := a.nightly.Run(ctx, newActorID())
	if report != nil {
		if asJSON {
			if err := printJSON(report); err != nil {
				return err
			}
		} else {
			printBackfill(report.Backfill)
			printStreak(report.Streak)
		}
	}
	if runErr != nil {
		return fmt.Errorf("nightly job: %w", runErr)
	}
	return nil
}

// NewStreakCmd creates the streak command.
func NewStreakCmd() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "streak",
		Short: "Process every pending day through the streak engine",
		Long: `Acquires the processing lease, folds each day after the watermark through
yesterday into the per-subject and global absence streaks, and advances the
watermark. Run backfill first so absent students have a fact for each day.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStreak(cmd.Context(), configPath, asJSON)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}

func runStreak(ctx context.Context, configPath string, asJSON bool) error {
	a, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	summary, err := a.engine.Run(ctx, newActorID())
	if err != nil {
		return fmt.Errorf("streak run: %w", err)
	}
	if asJSON {
		return printJSON(summary)
	}
	printStreak(summary)
	return nil
}

// NewBackfillCmd creates the backfill command.
func NewBackfillCmd() *cobra.Command {
	var (
		configPath string
		day        string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Record default absences for enrolled students with no attendance",
		Long: `Sweeps every day after the backfill watermark through yesterday, skipping
non-school days. With --day only that day is swept and the watermark is left
untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd.Context(), configPath, day, asJSON)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&day, "day", "", "Sweep a single day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}

func runBackfill(ctx context.Context, configPath, day string, asJSON bool) error {
	if day != "" {
		if _, err := calendar.ParseDay(day); err != nil {
			return fmt.Errorf("--day: %w", err)
		}
	}

	a, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if day != "" {
		created, err := a.sweeper.SweepDay(ctx, day)
		if err != nil {
			return fmt.Errorf("backfill %s: %w", day, err)
		}
		summary := &types.BackfillSummary{StartDay: day, EndDay: day, Days: 1, Created: created}
		if asJSON {
			return printJSON(summary)
		}
		printBackfill(summary)
		return nil
	}

	summary, err := a.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	if asJSON {
		return printJSON(summary)
	}
	printBackfill(summary)
	return nil
}

func printBackfill(s *types.BackfillSummary) {
	if s == nil {
		return
	}
	bold := color.New(color.Bold)
	_, _ = bold.Println("Backfill:")
	if s.UpToDate {
		fmt.Printf("  %s\n", color.GreenString("up to date"))
		return
	}
	fmt.Printf("  Days:     %s .. %s (%d)\n", s.StartDay, s.EndDay, s.Days)
	if len(s.ExcludedDays) > 0 {
		fmt.Printf("  Excluded: %v\n", s.ExcludedDays)
	}
	fmt.Printf("  Created:  %d absence(s)\n", s.Created)
}

func printStreak(s *types.RunSummary) {
	if s == nil {
		return
	}
	bold := color.New(color.Bold)
	_, _ = bold.Println("Streak run:")
	switch s.Skipped {
	case types.SkipNone:
	case types.SkipLeaseHeld:
		fmt.Printf("  %s\n", color.YellowString("skipped: another run holds the lease"))
		return
	case types.SkipUpToDate:
		fmt.Printf("  %s\n", color.GreenString("up to date"))
		return
	default:
		fmt.Printf("  %s\n", color.RedString("skipped: %s", s.Skipped))
		return
	}

	fmt.Printf("  Days: %s .. %s\n", s.StartDay, s.EndDay)
	for _, d := range s.Days {
		line := fmt.Sprintf("  %s  subjects=%d facts=%d updates=%d skipped=%d",
			d.Day, d.Subjects, d.Facts, d.Updates, d.Skipped)
		if d.Notifications > 0 {
			line += color.RedString("  notifications=%d", d.Notifications)
		}
		fmt.Println(line)
	}
	fmt.Printf("  Duration: %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
}
