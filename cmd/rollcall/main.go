package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/rollcall/internal/commands"
)

var version = "dev"

func main() {
	var logLevel string

	root := &cobra.Command{
		Use:   "rollcall",
		Short: "Consecutive-absence tracking for school attendance",
		Long: `Rollcall folds daily attendance into per-subject and cross-subject absence
streaks and raises a notification when a student reaches three consecutive
absences. A nightly run first records default absences for enrolled students
with no attendance, then advances the streaks one school day at a time.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("--log-level: %w", err)
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewLoadCmd(),
		commands.NewRunCmd(),
		commands.NewBackfillCmd(),
		commands.NewStreakCmd(),
		commands.NewStatusCmd(),
		commands.NewServeCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
