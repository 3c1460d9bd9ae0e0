package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/rollcall/internal/config"
	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

const loadTimeout = 60 * time.Second

// NewLoadCmd creates the load command.
func NewLoadCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "load [subjects-dir]",
		Short: "Register subjects and their rosters from YAML files",
		Long: `Reads every *.yaml file in the directory (default ./subjects) and upserts
each subject and its enrolled students. Existing streak state is kept.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "subjects"
			if len(args) > 0 {
				dir = args[0]
			}
			return runLoad(configPath, dir)
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}

func runLoad(configPath, dir string) error {
	subjects, err := loadSubjectDir(dir)
	if err != nil {
		return fmt.Errorf("loading subjects from %s: %w", dir, err)
	}
	if len(subjects) == 0 {
		fmt.Printf("No subjects found in %s\n", dir)
		return nil
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	prov, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	if err := prov.Start(ctx); err != nil {
		return fmt.Errorf("connecting to provider: %w", err)
	}
	defer func() { _ = prov.Stop(ctx) }()

	students, err := registerSubjects(ctx, prov, subjects)
	if err != nil {
		return err
	}
	color.Green("Registered %d subject(s) and %d enrollment(s)", len(subjects), students)
	return nil
}

// registerSubjects upserts each subject and its roster and returns the
// number of enrollments written.
func registerSubjects(ctx context.Context, store provider.RosterStore, subjects []subjectFile) (int, error) {
	var n int
	for _, s := range subjects {
		if err := store.PutSubject(ctx, s.Subject); err != nil {
			return n, fmt.Errorf("registering subject %s: %w", s.ID, err)
		}
		for _, st := range s.Students {
			entry := types.RosterEntry{StudentID: st.ID, StudentName: st.Name}
			if err := store.PutRosterEntry(ctx, s.ID, entry); err != nil {
				return n, fmt.Errorf("enrolling %s in %s: %w", st.ID, s.ID, err)
			}
			n++
		}
	}
	return n, nil
}
