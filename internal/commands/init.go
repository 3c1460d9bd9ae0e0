package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/rollcall/internal/config"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var (
		providerName string
		timezone     string
	)

	cmd := &cobra.Command{
		Use:   "init [project-dir]",
		Short: "Initialize a new rollcall project",
		Long:  "Creates rollcall.yaml with a starter calendar and an example subject.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0], providerName, timezone)
		},
	}
	cmd.Flags().StringVar(&providerName, "provider", config.ProviderDynamoDB, "Storage provider: dynamodb or firestore")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "Reference timezone for school days")
	return cmd
}

func runInit(projectDir, providerName, timezone string) error {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("Initializing rollcall project: %s\n", projectDir)

	var providerBlock string
	switch providerName {
	case config.ProviderDynamoDB:
		providerBlock = `provider: dynamodb
dynamodb:
  tableName: rollcall
  region: us-east-1
  endpoint: http://localhost:8000
  createTable: true
`
	case config.ProviderFirestore:
		providerBlock = `provider: firestore
firestore:
  projectId: rollcall-local
  collection: rollcall
  emulator: localhost:8681
`
	default:
		return fmt.Errorf("unsupported provider: %s", providerName)
	}

	for _, dir := range []string{"calendars", "subjects"} {
		path := filepath.Join(projectDir, dir)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", path, err)
		}
	}

	configContent := providerBlock + fmt.Sprintf(`engine:
  timezone: %s
  leaseDuration: 5m
  calendar: school-holidays
server:
  addr: ":3000"
calendarDirs:
  - ./calendars
alerts:
  - type: log
`, timezone)

	files := map[string]string{
		config.FileName: configContent,
		filepath.Join("calendars", "school-holidays.yaml"): `name: school-holidays
days:
  - saturday
  - sunday
dates: []
`,
		filepath.Join("subjects", "example.yaml"): `id: math-101
name: Mathematics 101
days: [Mon, Wed, Fri]
students:
  - id: stu-001
    name: Ada Lovelace
  - id: stu-002
    name: Alan Turing
`,
	}
	for name, content := range files {
		path := filepath.Join(projectDir, name)
		if _, err := os.Stat(path); err == nil {
			color.Yellow("  skip %s (exists)", path)
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Printf("  %s %s\n", color.GreenString("create"), path)
	}

	fmt.Println()
	color.Green("Project initialized.")
	fmt.Println("Next steps:")
	fmt.Printf("  cd %s\n", projectDir)
	fmt.Println("  rollcall load subjects")
	fmt.Println("  rollcall run")
	return nil
}
